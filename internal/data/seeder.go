package data

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

//go:embed providers.yaml
var providersYAML []byte

// providerYAML represents one entry of the embedded provider catalogue
type providerYAML struct {
	ProviderName string `yaml:"provider_name"`
	DisplayName  string `yaml:"display_name"`
	ModelName    string `yaml:"model_name"`
	APIBase      string `yaml:"api_base"`
	Enabled      bool   `yaml:"enabled"`
	Priority     int    `yaml:"priority"`
}

type catalogue struct {
	Providers []providerYAML `yaml:"providers"`
}

// Seeder handles database seeding operations
type Seeder struct {
	users     domain.UserRepository
	roles     domain.RoleRepository
	providers domain.AIProviderRepository
	logger    *zap.Logger
}

// NewSeeder creates a new database seeder
func NewSeeder(users domain.UserRepository, roles domain.RoleRepository, providers domain.AIProviderRepository, logger *zap.Logger) *Seeder {
	return &Seeder{
		users:     users,
		roles:     roles,
		providers: providers,
		logger:    logger,
	}
}

// Seed creates the built-in roles and, on first start, the bootstrap admin
func (s *Seeder) Seed(ctx context.Context, bootstrap infrastructure.BootstrapConfig) error {
	if err := s.roles.WithContext(ctx).EnsureDefaults(domain.DefaultRoles); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	return s.seedAdmin(ctx, bootstrap)
}

func (s *Seeder) seedAdmin(ctx context.Context, bootstrap infrastructure.BootstrapConfig) error {
	users := s.users.WithContext(ctx)

	exists, err := users.ExistsByUsernameOrEmail(bootstrap.AdminUsername, bootstrap.AdminEmail)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	admin := &domain.User{
		Username: bootstrap.AdminUsername,
		Email:    bootstrap.AdminEmail,
		Nickname: "Administrator",
		IsActive: true,
	}
	if err := admin.SetPassword(bootstrap.AdminPassword); err != nil {
		return err
	}
	if err := users.Create(admin, domain.RoleAdmin); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	s.logger.Info("Bootstrap admin created",
		zap.String("username", admin.Username),
	)
	return nil
}

// DefaultProviders returns the embedded provider catalogue. Call parameters
// left out of the catalogue come from defaults.
func DefaultProviders(defaults infrastructure.AIConfig) ([]domain.AIProviderConfig, error) {
	var c catalogue
	if err := yaml.Unmarshal(providersYAML, &c); err != nil {
		return nil, err
	}

	timeout := int(defaults.RequestTimeout.Seconds())
	configs := make([]domain.AIProviderConfig, len(c.Providers))
	for i, p := range c.Providers {
		configs[i] = domain.AIProviderConfig{
			ProviderName: p.ProviderName,
			DisplayName:  p.DisplayName,
			ModelName:    p.ModelName,
			APIBase:      p.APIBase,
			Enabled:      p.Enabled,
			MaxTokens:    defaults.DefaultMaxTokens,
			Temperature:  defaults.DefaultTemperature,
			Timeout:      timeout,
			Priority:     p.Priority,
		}
	}
	return configs, nil
}

// SeedProviders inserts catalogue entries that are not configured yet and
// returns how many were created
func (s *Seeder) SeedProviders(ctx context.Context, defaults infrastructure.AIConfig) (int, error) {
	configs, err := DefaultProviders(defaults)
	if err != nil {
		return 0, err
	}

	providers := s.providers.WithContext(ctx)
	created := 0
	for i := range configs {
		err := providers.Create(&configs[i])
		if errors.Is(err, domain.ErrProviderExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}

	s.logger.Info("Default AI providers seeded",
		zap.Int("created", created),
	)
	return created, nil
}
