package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

func TestChallengeRepository_TitleUniqueness(t *testing.T) {
	db := setupDB(t)
	repo := NewChallengeRepository(db)
	author := createUser(t, db, "author", domain.RoleChallenger)
	first := createChallenge(t, db, author, "T1", domain.StatusDraft)

	dup := &domain.Challenge{
		Title:      "T1",
		AuthorID:   author.ID,
		Category:   domain.CategoryWeb,
		Difficulty: domain.DifficultyHard,
		Score:      300,
		Flag:       "flag{dup}",
		FlagFormat: domain.FlagFormatPlaintext,
		Status:     domain.StatusDraft,
	}
	assert.ErrorIs(t, repo.Create(dup), domain.ErrChallengeTitleTaken)

	exists, err := repo.TitleExists("T1", uuid.Nil)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.TitleExists("T1", first.ID)
	require.NoError(t, err)
	assert.False(t, exists, "a challenge does not conflict with itself")
}

func TestChallengeRepository_ListVisibility(t *testing.T) {
	db := setupDB(t)
	repo := NewChallengeRepository(db)
	author := createUser(t, db, "author", domain.RoleChallenger)
	other := createUser(t, db, "other", domain.RoleUser)

	createChallenge(t, db, author, "public", domain.StatusPublished)
	createChallenge(t, db, author, "secret-draft", domain.StatusDraft)
	createChallenge(t, db, author, "in-review", domain.StatusPendingReview)

	t.Run("stranger sees only published", func(t *testing.T) {
		challenges, total, err := repo.List(domain.ChallengeFilter{VisibleTo: &other.ID, Page: 1, PageSize: 20})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, challenges, 1)
		assert.Equal(t, "public", challenges[0].Title)
	})

	t.Run("author sees own drafts", func(t *testing.T) {
		_, total, err := repo.List(domain.ChallengeFilter{VisibleTo: &author.ID, Page: 1, PageSize: 20})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	t.Run("status and search compose with visibility", func(t *testing.T) {
		status := domain.StatusDraft
		challenges, total, err := repo.List(domain.ChallengeFilter{
			VisibleTo: &author.ID,
			Status:    &status,
			Search:    "secret",
			Page:      1,
			PageSize:  20,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "secret-draft", challenges[0].Title)
	})

	t.Run("category filter", func(t *testing.T) {
		category := domain.CategoryWeb
		_, total, err := repo.List(domain.ChallengeFilter{Category: &category, Page: 1, PageSize: 20})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestChallengeRepository_UpdateKeepsJSONColumns(t *testing.T) {
	db := setupDB(t)
	repo := NewChallengeRepository(db)
	author := createUser(t, db, "author", domain.RoleChallenger)
	challenge := createChallenge(t, db, author, "json", domain.StatusDraft)

	challenge.Hints = []string{"look closer", "rot13"}
	challenge.ContainerConfig = map[string]interface{}{"mem_limit": "256m"}
	require.NoError(t, repo.Update(challenge))

	reloaded, err := repo.FindByID(challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"look closer", "rot13"}, []string(reloaded.Hints))
	assert.Equal(t, "256m", reloaded.ContainerConfig["mem_limit"])
}

func TestChallengeRepository_DeleteCascade(t *testing.T) {
	db := setupDB(t)
	repo := NewChallengeRepository(db)
	author := createUser(t, db, "author", domain.RoleChallenger)
	player := createUser(t, db, "player", domain.RoleUser)
	doomed := createChallenge(t, db, author, "doomed", domain.StatusPublished)
	survivor := createChallenge(t, db, author, "survivor", domain.StatusPublished)

	now := time.Now().UTC()
	recordSolve(t, db, player, doomed, true, now)
	recordSolve(t, db, player, survivor, true, now)

	require.NoError(t, repo.DeleteCascade(doomed.ID))

	var solves, awards int64
	require.NoError(t, db.Model(&domain.Solve{}).Count(&solves).Error)
	require.NoError(t, db.Model(&domain.ScoreAward{}).Count(&awards).Error)
	assert.Equal(t, int64(1), solves)
	assert.Equal(t, int64(1), awards)

	assert.ErrorIs(t, repo.DeleteCascade(doomed.ID), domain.ErrChallengeNotFound)
}

func TestChallengeRepository_Counts(t *testing.T) {
	db := setupDB(t)
	repo := NewChallengeRepository(db)
	author := createUser(t, db, "author", domain.RoleChallenger)
	createChallenge(t, db, author, "a", domain.StatusPublished)
	createChallenge(t, db, author, "b", domain.StatusPublished)
	createChallenge(t, db, author, "c", domain.StatusDraft)

	byStatus, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(2), byStatus[domain.StatusPublished])
	assert.Equal(t, int64(1), byStatus[domain.StatusDraft])

	byCategory, err := repo.CountByCategory()
	require.NoError(t, err)
	assert.Equal(t, int64(3), byCategory[domain.CategoryCrypto])

	total, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}
