package domain

// PlatformStatistics is the admin dashboard summary
type PlatformStatistics struct {
	Users struct {
		Total  int64 `json:"total"`
		Active int64 `json:"active"`
		Locked int64 `json:"locked"`
	} `json:"users"`
	Challenges struct {
		Total      int64                     `json:"total"`
		ByStatus   map[ChallengeStatus]int64 `json:"by_status"`
		ByCategory map[Category]int64        `json:"by_category"`
	} `json:"challenges"`
	Solves struct {
		Total   int64 `json:"total"`
		Correct int64 `json:"correct"`
	} `json:"solves"`
	AI struct {
		Calls                 int64 `json:"calls"`
		FailedCalls           int64 `json:"failed_calls"`
		Generations           int64 `json:"generations"`
		SuccessfulGenerations int64 `json:"successful_generations"`
	} `json:"ai"`
}

// Page is a generic paginated result envelope
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// NormalizePage clamps pagination input to sane bounds
func NormalizePage(page, pageSize, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > max {
		pageSize = max
	}
	return page, pageSize
}
