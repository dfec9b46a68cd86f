package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	gonanoid "github.com/matoous/go-nanoid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

const (
	nameAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
	portAttempts  = 50
	stopTimeout   = 10
	notFoundError = "not found"
)

// DockerAPI is the subset of the Docker engine client the manager needs
type DockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ContainerCreate(ctx context.Context, config *dockercontainer.Config, hostConfig *dockercontainer.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (dockercontainer.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options dockercontainer.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStop(ctx context.Context, containerID string, options dockercontainer.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options dockercontainer.RemoveOptions) error
	ContainerList(ctx context.Context, options dockercontainer.ListOptions) ([]types.Container, error)
	Close() error
}

// Manager builds challenge images and runs per-user challenge containers
type Manager struct {
	api    DockerAPI
	cfg    infrastructure.DockerConfig
	logger *zap.Logger

	portFree func(port int) bool
	now      func() time.Time
}

// NewManager connects to the Docker daemon. When the backend is disabled or
// the client cannot be created the manager is returned without a backend and
// every operation reports it as unavailable.
func NewManager(cfg infrastructure.DockerConfig, logger *zap.Logger) *Manager {
	if !cfg.Enabled {
		logger.Info("Container backend disabled")
		return NewManagerWithAPI(nil, cfg, logger)
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		logger.Warn("Failed to create Docker client", zap.Error(err))
		return NewManagerWithAPI(nil, cfg, logger)
	}
	return NewManagerWithAPI(cli, cfg, logger)
}

// NewManagerWithAPI creates a manager over an existing engine client
func NewManagerWithAPI(api DockerAPI, cfg infrastructure.DockerConfig, logger *zap.Logger) *Manager {
	return &Manager{
		api:      api,
		cfg:      cfg,
		logger:   logger,
		portFree: portFree,
		now:      time.Now,
	}
}

// Available reports whether the daemon answers
func (m *Manager) Available(ctx context.Context) bool {
	if m.api == nil {
		return false
	}
	_, err := m.api.Ping(ctx)
	return err == nil
}

// Close releases the engine client
func (m *Manager) Close() error {
	if m.api == nil {
		return nil
	}
	return m.api.Close()
}

// ImageTag is the image reference built for a challenge
func ImageTag(challengeID string) string {
	return "ctf-challenge-" + strings.ToLower(shortID(challengeID)) + ":latest"
}

// BuildImage writes the Dockerfile and source files into a temporary build
// context and builds it. The context directory is always removed.
func (m *Manager) BuildImage(ctx context.Context, challengeID, dockerfile string, files map[string]string) (string, error) {
	if m.api == nil {
		return "", domain.ErrContainerBackendUnavailable
	}

	dir, err := os.MkdirTemp("", "ctf-build-")
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := writeBuildContext(dir, dockerfile, files); err != nil {
		return "", err
	}

	buildContext, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to archive build context: %w", err)
	}
	defer buildContext.Close()

	tag := ImageTag(challengeID)
	resp, err := m.api.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
		Labels: map[string]string{
			domain.LabelManaged:     "true",
			domain.LabelChallengeID: challengeID,
		},
	})
	if err != nil {
		return "", domain.BuildFailed(err.Error())
	}
	defer resp.Body.Close()

	var logs bytes.Buffer
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, &logs, 0, false, nil); err != nil {
		m.logger.Warn("Image build failed",
			zap.String("challenge_id", challengeID),
			zap.String("logs", logs.String()),
			zap.Error(err),
		)
		return "", domain.BuildFailed(err.Error())
	}

	m.logger.Info("Image built", zap.String("challenge_id", challengeID), zap.String("image", tag))
	return tag, nil
}

func writeBuildContext(dir, dockerfile string, files map[string]string) error {
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	for name, content := range files {
		if !filepath.IsLocal(name) {
			return domain.Invalid("source_files", "path escapes the build context: "+name)
		}
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(name), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// Start runs image for a user with env set in the container. Backend
// failures are reported in the result.
func (m *Manager) Start(ctx context.Context, image, challengeID, userID string, env map[string]string) domain.StartResult {
	if !m.Available(ctx) {
		return failedStart(domain.ErrContainerBackendUnavailable.Error())
	}

	port, err := m.pickPort()
	if err != nil {
		return failedStart(err.Error())
	}

	suffix, err := gonanoid.Generate(nameAlphabet, 6)
	if err != nil {
		return failedStart(err.Error())
	}
	name := fmt.Sprintf("ctf-%s-%s-%s", shortID(challengeID), shortID(userID), suffix)

	containerPort := nat.Port(fmt.Sprintf("%d/tcp", m.cfg.ContainerPort))
	resp, err := m.api.ContainerCreate(ctx,
		&dockercontainer.Config{
			Image:        image,
			Env:          envList(env),
			ExposedPorts: nat.PortSet{containerPort: struct{}{}},
			Labels: map[string]string{
				domain.LabelManaged:     "true",
				domain.LabelChallengeID: challengeID,
				domain.LabelUserID:      userID,
			},
		},
		&dockercontainer.HostConfig{
			PortBindings: nat.PortMap{
				containerPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(port)}},
			},
			Resources: dockercontainer.Resources{
				Memory:    m.cfg.MemoryLimitMB * 1024 * 1024,
				CPUQuota:  m.cfg.CPUQuota,
				CPUPeriod: m.cfg.CPUPeriod,
			},
		},
		nil, nil, name)
	if err != nil {
		m.logger.Warn("Failed to create container", zap.String("image", image), zap.Error(err))
		return failedStart(err.Error())
	}

	if err := m.api.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		m.discard(resp.ID)
		return failedStart(err.Error())
	}

	select {
	case <-ctx.Done():
		m.discard(resp.ID)
		return failedStart(ctx.Err().Error())
	case <-time.After(m.cfg.StartGracePeriod):
	}

	inspect, err := m.api.ContainerInspect(ctx, resp.ID)
	if err != nil {
		m.discard(resp.ID)
		return failedStart(err.Error())
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil || !inspect.State.Running {
		m.discard(resp.ID)
		return failedStart("container exited during startup")
	}

	url := fmt.Sprintf("http://%s:%d", m.cfg.PublicHost, port)
	m.logger.Info("Container started",
		zap.String("container", name),
		zap.String("challenge_id", challengeID),
		zap.String("user_id", userID),
		zap.Int("port", port),
	)
	return domain.StartResult{
		Success:       true,
		ContainerID:   resp.ID,
		ContainerName: name,
		ContainerURL:  &url,
		Port:          port,
	}
}

// Stop stops and removes a container. An absent container yields "not found".
func (m *Manager) Stop(ctx context.Context, name string) domain.StopResult {
	if m.api == nil {
		return domain.StopResult{Error: domain.ErrContainerBackendUnavailable.Error()}
	}

	timeout := stopTimeout
	if err := m.api.ContainerStop(ctx, name, dockercontainer.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			return domain.StopResult{Error: notFoundError}
		}
		return domain.StopResult{Error: err.Error()}
	}
	if err := m.api.ContainerRemove(ctx, name, dockercontainer.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return domain.StopResult{Error: err.Error()}
	}

	m.logger.Info("Container stopped", zap.String("container", name))
	return domain.StopResult{Success: true}
}

// List returns managed containers, optionally narrowed to a challenge or user
func (m *Manager) List(ctx context.Context, challengeID, userID string) ([]domain.ContainerInfo, error) {
	if m.api == nil {
		return nil, domain.ErrContainerBackendUnavailable
	}

	args := filters.NewArgs(filters.Arg("label", domain.LabelManaged+"=true"))
	if challengeID != "" {
		args.Add("label", domain.LabelChallengeID+"="+challengeID)
	}
	if userID != "" {
		args.Add("label", domain.LabelUserID+"="+userID)
	}

	containers, err := m.api.ContainerList(ctx, dockercontainer.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrContainerBackendUnavailable, err)
	}

	infos := make([]domain.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		infos = append(infos, toInfo(c))
	}
	return infos, nil
}

// ReapExpired stops every managed container older than maxAge. A container
// that fails to stop is logged and the sweep continues.
func (m *Manager) ReapExpired(ctx context.Context, maxAge time.Duration) (domain.ReapReport, error) {
	report := domain.ReapReport{Stopped: []string{}, Failed: []string{}}

	containers, err := m.List(ctx, "", "")
	if err != nil {
		return report, err
	}

	now := m.now()
	for _, c := range containers {
		report.Checked++
		if now.Sub(c.CreatedAt) <= maxAge {
			continue
		}
		result := m.Stop(ctx, c.Name)
		if !result.Success && result.Error != notFoundError {
			m.logger.Warn("Failed to stop expired container",
				zap.String("container", c.Name),
				zap.String("error", result.Error),
			)
			report.Failed = append(report.Failed, c.Name)
			continue
		}
		report.Stopped = append(report.Stopped, c.Name)
	}

	if len(report.Stopped) > 0 || len(report.Failed) > 0 {
		m.logger.Info("Expired containers reaped",
			zap.Int("checked", report.Checked),
			zap.Int("stopped", len(report.Stopped)),
			zap.Int("failed", len(report.Failed)),
		)
	}
	return report, nil
}

func (m *Manager) pickPort() (int, error) {
	lo, hi := m.cfg.PortRangeStart, m.cfg.PortRangeEnd
	if hi < lo {
		lo, hi = hi, lo
	}
	for i := 0; i < portAttempts; i++ {
		port := lo + rand.Intn(hi-lo+1)
		if m.portFree(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port in range %d-%d", lo, hi)
}

func (m *Manager) discard(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.api.ContainerRemove(ctx, id, dockercontainer.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		m.logger.Warn("Failed to remove container", zap.String("container", id), zap.Error(err))
	}
}

func portFree(port int) bool {
	l, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]string, len(keys))
	for i, k := range keys {
		list[i] = k + "=" + env[k]
	}
	return list
}

func failedStart(reason string) domain.StartResult {
	return domain.StartResult{Success: false, Error: reason}
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func toInfo(c types.Container) domain.ContainerInfo {
	name := c.ID
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	ports := make([]int, 0, len(c.Ports))
	for _, p := range c.Ports {
		if p.PublicPort != 0 {
			ports = append(ports, int(p.PublicPort))
		}
	}
	return domain.ContainerInfo{
		ID:          c.ID,
		Name:        name,
		Image:       c.Image,
		State:       c.State,
		Status:      c.Status,
		ChallengeID: c.Labels[domain.LabelChallengeID],
		UserID:      c.Labels[domain.LabelUserID],
		Ports:       ports,
		CreatedAt:   time.Unix(c.Created, 0),
	}
}
