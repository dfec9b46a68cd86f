package data

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
	"github.com/DarkSword404/CTF-Platform/internal/repository"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := infrastructure.OpenDatabase(sqlite.Open(dsn), zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := database.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate())
	return database.DB
}

func newTestSeeder(db *gorm.DB) *Seeder {
	return NewSeeder(
		repository.NewUserRepository(db),
		repository.NewRoleRepository(db),
		repository.NewAIProviderRepository(db),
		zap.NewNop(),
	)
}

var aiDefaults = infrastructure.AIConfig{
	RequestTimeout:     120 * time.Second,
	DefaultMaxTokens:   2000,
	DefaultTemperature: 0.7,
}

func TestSeeder_Seed(t *testing.T) {
	db := setupDB(t)
	seeder := newTestSeeder(db)
	bootstrap := infrastructure.BootstrapConfig{
		AdminUsername: "admin",
		AdminEmail:    "admin@ctf.local",
		AdminPassword: "Admin12345",
	}

	require.NoError(t, seeder.Seed(context.Background(), bootstrap))
	require.NoError(t, seeder.Seed(context.Background(), bootstrap))

	roles, err := repository.NewRoleRepository(db).FindAll()
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	admin, err := repository.NewUserRepository(db).FindByUsernameOrEmail("admin")
	require.NoError(t, err)
	assert.True(t, admin.HasRole(domain.RoleAdmin))
	assert.True(t, admin.VerifyPassword("Admin12345"))

	count, err := repository.NewUserRepository(db).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSeeder_AdminWithoutRoleIsNotCreated(t *testing.T) {
	db := setupDB(t)
	seeder := newTestSeeder(db)
	ctx := context.Background()
	bootstrap := infrastructure.BootstrapConfig{
		AdminUsername: "admin",
		AdminEmail:    "admin@ctf.local",
		AdminPassword: "Admin12345",
	}
	users := repository.NewUserRepository(db)

	require.NoError(t, repository.NewRoleRepository(db).EnsureDefaults(domain.DefaultRoles))
	require.NoError(t, db.Where("name = ?", domain.RoleAdmin).Delete(&domain.Role{}).Error)

	err := seeder.seedAdmin(ctx, bootstrap)
	assert.ErrorIs(t, err, domain.ErrRoleNotFound)
	exists, err := users.ExistsByUsernameOrEmail("admin", "admin@ctf.local")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, seeder.Seed(ctx, bootstrap))
	admin, err := users.FindByUsernameOrEmail("admin")
	require.NoError(t, err)
	assert.True(t, admin.HasRole(domain.RoleAdmin))
}

func TestDefaultProviders(t *testing.T) {
	configs, err := DefaultProviders(aiDefaults)
	require.NoError(t, err)
	require.Len(t, configs, 8)

	priorities := map[string]int{}
	for _, c := range configs {
		priorities[c.ProviderName] = c.Priority
		assert.Equal(t, 2000, c.MaxTokens)
		assert.Equal(t, 120, c.Timeout)
		assert.Empty(t, c.APIKey)
	}
	assert.Equal(t, map[string]int{
		"openai":         100,
		"deepseek":       90,
		"ernie_bot":      80,
		"tongyi_qianwen": 70,
		"zhipu_ai":       60,
		"google":         50,
		"anthropic":      40,
		"ollama":         30,
	}, priorities)
}

func TestSeeder_SeedProviders(t *testing.T) {
	db := setupDB(t)
	providers := repository.NewAIProviderRepository(db)
	require.NoError(t, providers.Create(&domain.AIProviderConfig{
		ProviderName: "openai",
		DisplayName:  "Mine",
		ModelName:    "gpt-4o",
		APIKey:       "sk-keep",
		Enabled:      true,
		MaxTokens:    1000,
		Timeout:      30,
		Priority:     5,
	}))

	created, err := newTestSeeder(db).SeedProviders(context.Background(), aiDefaults)
	require.NoError(t, err)
	assert.Equal(t, 7, created)

	existing, err := providers.FindByName("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-keep", existing.APIKey)

	created, err = newTestSeeder(db).SeedProviders(context.Background(), aiDefaults)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestDefaultWebApp(t *testing.T) {
	app, err := DefaultWebApp("flag{abc123}", 5000)
	require.NoError(t, err)
	assert.Contains(t, app, `FLAG = "flag{abc123}"`)
	assert.Contains(t, app, "port=5000")
	assert.Contains(t, app, "username='{username}'")

	dockerfile, err := DefaultDockerfile(5000)
	require.NoError(t, err)
	assert.Contains(t, dockerfile, "EXPOSE 5000")
	assert.Contains(t, dockerfile, "FROM python")
}
