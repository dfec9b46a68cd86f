package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"

	"github.com/DarkSword404/CTF-Platform/internal/ai"
	"github.com/DarkSword404/CTF-Platform/internal/container"
	"github.com/DarkSword404/CTF-Platform/internal/data"
	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
	"github.com/DarkSword404/CTF-Platform/internal/repository"
	"github.com/DarkSword404/CTF-Platform/internal/service"
)

const testPassword = "Passw0rd1"

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedCompleter answers every prompt with the same reply
type scriptedCompleter struct {
	reply string
	err   error
}

func (s *scriptedCompleter) Complete(_ context.Context, _ string, _ ai.CallOptions) (ai.Completion, error) {
	if s.err != nil {
		return ai.Completion{}, s.err
	}
	return ai.Completion{Text: s.reply, TokensUsed: 7}, nil
}

// testServer runs the full router over an in-memory database
type testServer struct {
	router    *gin.Engine
	users     domain.UserRepository
	completer *scriptedCompleter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	tracer := tracenoop.NewTracerProvider().Tracer("test")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := infrastructure.OpenDatabase(sqlite.Open(dsn), logger)
	require.NoError(t, err)
	sqlDB, err := database.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate())

	db := database.DB
	users := repository.NewUserRepository(db)
	roles := repository.NewRoleRepository(db)
	challenges := repository.NewChallengeRepository(db)
	solves := repository.NewSolveRepository(db)
	providers := repository.NewAIProviderRepository(db)
	callLogs := repository.NewAICallLogRepository(db)
	generations := repository.NewGenerationRepository(db)
	cache := repository.NewNoopScoreboardCache()
	require.NoError(t, roles.EnsureDefaults(domain.DefaultRoles))

	metrics, err := (&infrastructure.Telemetry{Meter: noop.NewMeterProvider().Meter("test")}).CreateMetrics()
	require.NoError(t, err)

	jwtConfig := &infrastructure.JWTConfig{
		SecretKey:          "handler-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: time.Hour,
		Issuer:             "ctf-platform-test",
	}
	dockerConfig := infrastructure.DockerConfig{ContainerPort: 5000, MaxContainerAge: 2 * time.Hour}
	aiConfig := infrastructure.AIConfig{RequestTimeout: 30 * time.Second, DefaultMaxTokens: 2000, DefaultTemperature: 0.7}

	completer := &scriptedCompleter{reply: "ok"}
	registry := ai.NewRegistryHandle(ai.NewRegistry(
		ai.NewProvider("openai", "gpt-test", completer, ai.CallOptions{MaxTokens: 500, Temperature: 0.7}, 0),
	))
	manager := container.NewManager(dockerConfig, logger)
	seeder := data.NewSeeder(users, roles, providers, logger)

	services := Services{
		Users:       service.NewUserService(users, solves, jwtConfig, tracer, logger),
		Challenges:  service.NewChallengeService(challenges, solves, tracer, logger),
		Submissions: service.NewSubmissionService(challenges, solves, cache, metrics, tracer, logger),
		Containers:  service.NewContainerService(challenges, manager, dockerConfig, metrics, tracer, logger),
		AI:          service.NewAIService(registry, challenges, generations, callLogs, manager, dockerConfig, metrics, tracer, logger),
		Providers:   service.NewProviderService(providers, callLogs, seeder, registry, aiConfig, metrics, tracer, logger),
		Admin:       service.NewAdminService(users, challenges, solves, callLogs, generations, cache, tracer, logger),
	}

	router := NewRouter(services, RouterOptions{
		CORS:        infrastructure.CORSConfig{AllowOrigins: []string{"http://localhost:5173"}, MaxAge: time.Hour},
		Tracer:      tracer,
		Metrics:     metrics,
		HealthCheck: database.HealthCheck,
		Version:     "test",
	}, logger)

	return &testServer{router: router, users: users, completer: completer}
}

// createUser stores an account with the given roles and returns its access token
func (s *testServer) createUser(t *testing.T, username string, roles ...string) string {
	t.Helper()

	user := &domain.User{Username: username, Email: username + "@example.com", IsActive: true}
	require.NoError(t, user.SetPassword(testPassword))
	require.NoError(t, s.users.Create(user))
	if len(roles) > 0 {
		require.NoError(t, s.users.ReplaceRoles(user, roles))
	}

	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	decode(t, w, &resp)
	return resp.Tokens.AccessToken
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
