package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
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
	require.NoError(t, NewRoleRepository(database.DB).EnsureDefaults(domain.DefaultRoles))
	return database.DB
}

func createUser(t *testing.T, db *gorm.DB, username string, roles ...string) *domain.User {
	t.Helper()

	user := &domain.User{
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
	}
	require.NoError(t, user.SetPassword("Passw0rd1"))
	require.NoError(t, NewUserRepository(db).Create(user, roles...))
	return user
}

func createChallenge(t *testing.T, db *gorm.DB, author *domain.User, title string, status domain.ChallengeStatus) *domain.Challenge {
	t.Helper()

	challenge := &domain.Challenge{
		Title:      title,
		AuthorID:   author.ID,
		Category:   domain.CategoryCrypto,
		Difficulty: domain.DifficultyEasy,
		Score:      100,
		Flag:       "flag{" + title + "}",
		FlagFormat: domain.FlagFormatPlaintext,
		Status:     status,
	}
	require.NoError(t, NewChallengeRepository(db).Create(challenge))
	return challenge
}

func recordSolve(t *testing.T, db *gorm.DB, user *domain.User, challenge *domain.Challenge, correct bool, at time.Time) bool {
	t.Helper()

	awarded, err := NewSolveRepository(db).RecordAttempt(&domain.Solve{
		UserID:        user.ID,
		ChallengeID:   challenge.ID,
		SubmittedFlag: "flag{x}",
		IsCorrect:     correct,
		SubmittedAt:   at,
	}, challenge.Score)
	require.NoError(t, err)
	return awarded
}
