package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

var testJWTConfig = infrastructure.JWTConfig{
	SecretKey:          "test-secret",
	AccessTokenExpiry:  15 * time.Minute,
	RefreshTokenExpiry: 24 * time.Hour,
	Issuer:             "ctf-platform-test",
}

func newUserService(env *testEnv) *UserService {
	return NewUserService(env.users, env.solves, &testJWTConfig, testTracer, zap.NewNop())
}

func TestUserService_Register(t *testing.T) {
	env := newTestEnv(t)
	svc := newUserService(env)
	ctx := context.Background()

	user, tokens, err := svc.Register(ctx, &domain.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Secur3pass",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleUser}, user.RoleNames())
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	id, err := svc.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, _, err = svc.Register(ctx, &domain.RegisterRequest{Username: "alice", Email: "other@example.com", Password: "Secur3pass"})
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)

	_, _, err = svc.Register(ctx, &domain.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "lettersonly"})
	assert.ErrorIs(t, err, domain.ErrWeakCredential)

	_, _, err = svc.Register(ctx, &domain.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: strings.Repeat("a1", 40)})
	assert.ErrorIs(t, err, domain.ErrWeakCredential)
}

func TestUserService_RegisterIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	svc := newUserService(env)
	ctx := context.Background()
	req := &domain.RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "Secur3pass"}

	require.NoError(t, env.db.Where("name = ?", domain.RoleUser).Delete(&domain.Role{}).Error)

	_, _, err := svc.Register(ctx, req)
	assert.ErrorIs(t, err, domain.ErrRoleNotFound)

	exists, err := env.users.ExistsByUsernameOrEmail("carol", "carol@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, env.roles.EnsureDefaults(domain.DefaultRoles))
	user, _, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleUser}, user.RoleNames())
}

func TestUserService_Login(t *testing.T) {
	env := newTestEnv(t)
	svc := newUserService(env)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)
	ctx := context.Background()

	user, _ := env.createUser(t, "alice", domain.RoleUser)

	t.Run("by username", func(t *testing.T) {
		got, tokens, err := svc.Login(ctx, "alice", "Passw0rd1")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, now.Add(testJWTConfig.AccessTokenExpiry), tokens.ExpiresAt)

		stored, err := env.users.FindByID(user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastLoginAt)
	})

	t.Run("by email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "alice@example.com", "Passw0rd1")
		assert.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "alice", "nope")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "mallory", "Passw0rd1")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("locked", func(t *testing.T) {
		locked, _ := env.createUser(t, "locked", domain.RoleUser)
		locked.IsLocked = true
		require.NoError(t, env.users.Update(locked))

		_, _, err := svc.Login(ctx, "locked", "Passw0rd1")
		assert.ErrorIs(t, err, domain.ErrAccountLocked)
	})

	t.Run("inactive", func(t *testing.T) {
		inactive, _ := env.createUser(t, "inactive", domain.RoleUser)
		inactive.IsActive = false
		require.NoError(t, env.users.Update(inactive))

		_, _, err := svc.Login(ctx, "inactive", "Passw0rd1")
		assert.ErrorIs(t, err, domain.ErrAccountInactive)
	})
}

func TestUserService_Tokens(t *testing.T) {
	env := newTestEnv(t)
	svc := newUserService(env)
	ctx := context.Background()
	user, _ := env.createUser(t, "alice", domain.RoleChallenger)

	_, tokens, err := svc.Login(ctx, "alice", "Passw0rd1")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.RefreshToken(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	refreshed, err := svc.RefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	id, err := svc.ValidateAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, err = svc.ValidateAccessToken("not-a-token")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	t.Run("expired", func(t *testing.T) {
		svc.now = fixedClock(time.Now().Add(-time.Hour))
		_, old, err := svc.Login(ctx, "alice", "Passw0rd1")
		require.NoError(t, err)
		svc.now = time.Now

		_, err = svc.ValidateAccessToken(old.AccessToken)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		other := NewUserService(env.users, env.solves, &infrastructure.JWTConfig{
			SecretKey:          testJWTConfig.SecretKey,
			AccessTokenExpiry:  time.Minute,
			RefreshTokenExpiry: time.Hour,
			Issuer:             "someone-else",
		}, testTracer, zap.NewNop())
		_, foreign, err := other.Login(ctx, "alice", "Passw0rd1")
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(foreign.AccessToken)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})
}

func TestUserService_ResolvePrincipal(t *testing.T) {
	env := newTestEnv(t)
	svc := newUserService(env)
	ctx := context.Background()
	user, _ := env.createUser(t, "author", domain.RoleUser, domain.RoleChallenger)

	p, err := svc.ResolvePrincipal(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, p.CanAuthor())
	assert.False(t, p.IsAdmin())

	user.IsLocked = true
	require.NoError(t, env.users.Update(user))
	_, err = svc.ResolvePrincipal(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrAccountLocked)
}

func TestUserService_Profile(t *testing.T) {
	env := newTestEnv(t)
	svc := newUserService(env)
	ctx := context.Background()
	user, _ := env.createUser(t, "alice", domain.RoleUser)

	nickname, bio := "  Alice  ", "pwn enjoyer"
	updated, err := svc.UpdateProfile(ctx, user.ID, &domain.UpdateProfileRequest{Nickname: &nickname, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Nickname)
	assert.Equal(t, "pwn enjoyer", updated.Bio)

	err = svc.ChangePassword(ctx, user.ID, &domain.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "N3wpassword"})
	assert.ErrorIs(t, err, domain.ErrIncorrectPassword)

	err = svc.ChangePassword(ctx, user.ID, &domain.ChangePasswordRequest{OldPassword: "Passw0rd1", NewPassword: "short"})
	assert.ErrorIs(t, err, domain.ErrWeakCredential)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, &domain.ChangePasswordRequest{OldPassword: "Passw0rd1", NewPassword: "N3wpassword"}))
	_, _, err = svc.Login(ctx, "alice", "N3wpassword")
	assert.NoError(t, err)
}
