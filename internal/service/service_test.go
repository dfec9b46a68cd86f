package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
	"github.com/DarkSword404/CTF-Platform/internal/repository"
)

var testTracer = tracenoop.NewTracerProvider().Tracer("test")

// testEnv wires real repositories over a private in-memory database
type testEnv struct {
	db          *gorm.DB
	users       domain.UserRepository
	roles       domain.RoleRepository
	challenges  domain.ChallengeRepository
	solves      domain.SolveRepository
	providers   domain.AIProviderRepository
	callLogs    domain.AICallLogRepository
	generations domain.GenerationRepository
	cache       *fakeCache
	metrics     *infrastructure.TelemetryMetrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := infrastructure.OpenDatabase(sqlite.Open(dsn), zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := database.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate())

	db := database.DB
	env := &testEnv{
		db:          db,
		users:       repository.NewUserRepository(db),
		roles:       repository.NewRoleRepository(db),
		challenges:  repository.NewChallengeRepository(db),
		solves:      repository.NewSolveRepository(db),
		providers:   repository.NewAIProviderRepository(db),
		callLogs:    repository.NewAICallLogRepository(db),
		generations: repository.NewGenerationRepository(db),
		cache:       &fakeCache{},
	}
	require.NoError(t, env.roles.EnsureDefaults(domain.DefaultRoles))

	env.metrics, err = (&infrastructure.Telemetry{Meter: noop.NewMeterProvider().Meter("test")}).CreateMetrics()
	require.NoError(t, err)
	return env
}

func (e *testEnv) createUser(t *testing.T, username string, roles ...string) (*domain.User, domain.Principal) {
	t.Helper()

	user := &domain.User{
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
	}
	require.NoError(t, user.SetPassword("Passw0rd1"))
	require.NoError(t, e.users.Create(user))
	if len(roles) > 0 {
		require.NoError(t, e.users.ReplaceRoles(user, roles))
	}
	return user, domain.NewPrincipal(user)
}

func (e *testEnv) createChallenge(t *testing.T, author uuid.UUID, title string, status domain.ChallengeStatus) *domain.Challenge {
	t.Helper()

	challenge := &domain.Challenge{
		Title:               title,
		AuthorID:            author,
		Category:            domain.CategoryMisc,
		Difficulty:          domain.DifficultyEasy,
		Score:               100,
		Flag:                "flag{" + title + "}",
		FlagFormat:          domain.FlagFormatPlaintext,
		IsCaseSensitiveFlag: true,
		Status:              status,
	}
	require.NoError(t, e.challenges.Create(challenge))
	return challenge
}

// fakeCache is an in-memory ScoreboardCache that counts invalidations
type fakeCache struct {
	mu            sync.Mutex
	entries       map[int][]domain.ScoreboardEntry
	invalidations int
}

func (c *fakeCache) Get(_ context.Context, limit int) ([]domain.ScoreboardEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.entries[limit]
	return entries, ok, nil
}

func (c *fakeCache) Set(_ context.Context, limit int, entries []domain.ScoreboardEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[int][]domain.ScoreboardEntry{}
	}
	c.entries[limit] = entries
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.invalidations++
	return nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
