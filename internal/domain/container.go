package domain

import "time"

// Labels applied to every managed challenge container
const (
	LabelManaged     = "ctf.managed"
	LabelChallengeID = "ctf.challenge_id"
	LabelUserID      = "ctf.user_id"
)

// StartResult is the soft-fail outcome of starting a challenge container.
// Backend failures are reported here instead of as errors.
type StartResult struct {
	Success       bool    `json:"success"`
	ContainerID   string  `json:"container_id,omitempty"`
	ContainerName string  `json:"container_name,omitempty"`
	ContainerURL  *string `json:"container_url"`
	Port          int     `json:"port,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// StopResult is the outcome of stopping a challenge container
type StopResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ContainerInfo describes a managed container
type ContainerInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Image       string    `json:"image"`
	State       string    `json:"state"`
	Status      string    `json:"status"`
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	Ports       []int     `json:"ports"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReapReport summarises one expiry sweep
type ReapReport struct {
	Checked int      `json:"checked"`
	Stopped []string `json:"stopped"`
	Failed  []string `json:"failed"`
}

// StopContainerRequest names the container to stop
type StopContainerRequest struct {
	ContainerName string `json:"container_name" binding:"required"`
}

// CleanupRequest carries the expiry threshold for a manual sweep
type CleanupRequest struct {
	MaxAgeHours float64 `json:"max_age_hours" binding:"omitempty,gt=0"`
}
