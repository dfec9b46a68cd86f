package container

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

type fakeDocker struct {
	mu sync.Mutex

	pingErr    error
	buildLog   string
	buildFiles map[string]string
	running    bool
	containers map[string]types.Container
	failStop   map[string]bool
	created    []*dockercontainer.HostConfig
	envs       [][]string
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		buildLog:   `{"stream":"Step 1/1 : FROM scratch\n"}` + "\n",
		running:    true,
		containers: map[string]types.Container{},
		failStop:   map[string]bool{},
	}
}

func (f *fakeDocker) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeDocker) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	files := map[string]string{}
	tr := tar.NewReader(buildContext)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.ImageBuildResponse{}, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, _ := io.ReadAll(tr)
		files[hdr.Name] = string(body)
	}
	f.buildFiles = files
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(f.buildLog))}, nil
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *dockercontainer.Config, hostConfig *dockercontainer.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (dockercontainer.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, hostConfig)
	f.envs = append(f.envs, config.Env)
	f.containers[containerName] = types.Container{
		ID:      containerName,
		Names:   []string{"/" + containerName},
		Image:   config.Image,
		Labels:  config.Labels,
		State:   "running",
		Created: time.Now().Unix(),
	}
	return dockercontainer.CreateResponse{ID: containerName}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, containerID string, options dockercontainer.StartOptions) error {
	return nil
}

func (f *fakeDocker) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    containerID,
			State: &types.ContainerState{Running: f.running},
		},
	}, nil
}

func (f *fakeDocker) ContainerStop(ctx context.Context, containerID string, options dockercontainer.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStop[containerID] {
		return errors.New("daemon busy")
	}
	if _, ok := f.containers[containerID]; !ok {
		return errdefs.NotFound(errors.New("no such container: " + containerID))
	}
	return nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, containerID string, options dockercontainer.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[containerID]; !ok {
		return errdefs.NotFound(errors.New("no such container: " + containerID))
	}
	delete(f.containers, containerID)
	return nil
}

func (f *fakeDocker) ContainerList(ctx context.Context, options dockercontainer.ListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Container
	for _, c := range f.containers {
		match := true
		for _, label := range options.Filters.Get("label") {
			key, value, _ := strings.Cut(label, "=")
			if c.Labels[key] != value {
				match = false
			}
		}
		if match {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDocker) Close() error { return nil }

func testConfig() infrastructure.DockerConfig {
	return infrastructure.DockerConfig{
		Enabled:        true,
		PortRangeStart: 30000,
		PortRangeEnd:   30010,
		PublicHost:     "ctf.local",
		ContainerPort:  5000,
		MemoryLimitMB:  256,
		CPUQuota:       50000,
		CPUPeriod:      100000,
	}
}

func newTestManager(api DockerAPI) *Manager {
	m := NewManagerWithAPI(api, testConfig(), zap.NewNop())
	m.portFree = func(int) bool { return true }
	return m
}

func TestManager_BuildImage(t *testing.T) {
	fake := newFakeDocker()
	m := newTestManager(fake)

	tag, err := m.BuildImage(context.Background(), "ABC-123", "FROM python:3.11-slim\n", map[string]string{
		"app.py":               "print('hi')",
		"templates/index.html": "<h1>hi</h1>",
	})

	require.NoError(t, err)
	assert.Equal(t, "ctf-challenge-abc123:latest", tag)
	assert.Equal(t, "FROM python:3.11-slim\n", fake.buildFiles["Dockerfile"])
	assert.Equal(t, "print('hi')", fake.buildFiles["app.py"])
	assert.Equal(t, "<h1>hi</h1>", fake.buildFiles["templates/index.html"])
}

func TestManager_BuildImageFailure(t *testing.T) {
	fake := newFakeDocker()
	fake.buildLog = `{"stream":"Step 1/2\n"}` + "\n" + `{"errorDetail":{"message":"pip install failed"},"error":"pip install failed"}` + "\n"
	m := newTestManager(fake)

	_, err := m.BuildImage(context.Background(), "c1", "FROM python", nil)

	assert.ErrorIs(t, err, domain.ErrBuildFailed)
	assert.Contains(t, err.Error(), "pip install failed")
}

func TestManager_BuildImageRejectsEscapingPaths(t *testing.T) {
	m := newTestManager(newFakeDocker())

	_, err := m.BuildImage(context.Background(), "c1", "FROM python", map[string]string{"../evil": "x"})

	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestManager_StartAndStop(t *testing.T) {
	fake := newFakeDocker()
	m := newTestManager(fake)

	result := m.Start(context.Background(), "img:latest", "11111111-aaaa", "22222222-bbbb", map[string]string{"FLAG": "flag{x}"})

	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.ContainerURL)
	assert.True(t, strings.HasPrefix(result.ContainerName, "ctf-11111111-22222222-"))
	assert.GreaterOrEqual(t, result.Port, 30000)
	assert.LessOrEqual(t, result.Port, 30010)
	assert.Contains(t, *result.ContainerURL, "http://ctf.local:")

	require.Len(t, fake.created, 1)
	assert.Equal(t, int64(256*1024*1024), fake.created[0].Memory)
	assert.Equal(t, int64(50000), fake.created[0].CPUQuota)
	assert.Equal(t, []string{"FLAG=flag{x}"}, fake.envs[0])

	assert.True(t, m.Stop(context.Background(), result.ContainerName).Success)

	second := m.Stop(context.Background(), result.ContainerName)
	assert.False(t, second.Success)
	assert.Equal(t, "not found", second.Error)
}

func TestManager_StartSoftFails(t *testing.T) {
	t.Run("no backend", func(t *testing.T) {
		m := NewManagerWithAPI(nil, testConfig(), zap.NewNop())
		result := m.Start(context.Background(), "img", "c", "u", nil)
		assert.False(t, result.Success)
		assert.Nil(t, result.ContainerURL)
	})

	t.Run("daemon unreachable", func(t *testing.T) {
		fake := newFakeDocker()
		fake.pingErr = errors.New("connection refused")
		result := newTestManager(fake).Start(context.Background(), "img", "c", "u", nil)
		assert.False(t, result.Success)
		assert.Nil(t, result.ContainerURL)
	})

	t.Run("container exits", func(t *testing.T) {
		fake := newFakeDocker()
		fake.running = false
		result := newTestManager(fake).Start(context.Background(), "img", "c", "u", nil)
		assert.False(t, result.Success)
		assert.Empty(t, fake.containers)
	})

	t.Run("no free port", func(t *testing.T) {
		m := newTestManager(newFakeDocker())
		m.portFree = func(int) bool { return false }
		result := m.Start(context.Background(), "img", "c", "u", nil)
		assert.False(t, result.Success)
	})
}

func TestManager_List(t *testing.T) {
	fake := newFakeDocker()
	m := newTestManager(fake)
	m.Start(context.Background(), "img", "c1", "u1", nil)
	m.Start(context.Background(), "img", "c2", "u1", nil)

	all, err := m.List(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := m.List(context.Background(), "c2", "")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "c2", one[0].ChallengeID)
	assert.Equal(t, "u1", one[0].UserID)
}

func TestManager_ReapExpired(t *testing.T) {
	fake := newFakeDocker()
	m := newTestManager(fake)
	old := time.Now().Add(-3 * time.Hour).Unix()
	for _, name := range []string{"old-a", "old-b", "fresh"} {
		created := old
		if name == "fresh" {
			created = time.Now().Unix()
		}
		fake.containers[name] = types.Container{
			ID:      name,
			Names:   []string{"/" + name},
			Labels:  map[string]string{domain.LabelManaged: "true"},
			Created: created,
		}
	}
	fake.failStop["old-a"] = true

	report, err := m.ReapExpired(context.Background(), 2*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, []string{"old-b"}, report.Stopped)
	assert.Equal(t, []string{"old-a"}, report.Failed)
	assert.Contains(t, fake.containers, "fresh")
}
