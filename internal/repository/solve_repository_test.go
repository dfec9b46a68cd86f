package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

func TestSolveRepository_AwardsOnlyFirstCorrect(t *testing.T) {
	db := setupDB(t)
	repo := NewSolveRepository(db).WithContext(context.Background())
	author := createUser(t, db, "author", domain.RoleChallenger)
	player := createUser(t, db, "player")
	challenge := createChallenge(t, db, author, "scored", domain.StatusPublished)

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.False(t, recordSolve(t, db, player, challenge, false, base))
	assert.True(t, recordSolve(t, db, player, challenge, true, base.Add(time.Minute)))
	assert.False(t, recordSolve(t, db, player, challenge, true, base.Add(2*time.Minute)))

	total, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "every attempt is recorded")

	correct, err := repo.CountCorrect()
	require.NoError(t, err)
	assert.Equal(t, int64(2), correct)

	var awards []domain.ScoreAward
	require.NoError(t, db.Find(&awards).Error)
	require.Len(t, awards, 1)
	assert.Equal(t, 100, awards[0].Score)

	solved, err := repo.SolvedChallengeIDs(player.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{challenge.ID}, solved)
}

func TestSolveRepository_ConcurrentFirstSolvesAwardOnce(t *testing.T) {
	db := setupDB(t)
	repo := NewSolveRepository(db)
	author := createUser(t, db, "author", domain.RoleChallenger)
	player := createUser(t, db, "player")
	challenge := createChallenge(t, db, author, "race", domain.StatusPublished)

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		awarded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.RecordAttempt(&domain.Solve{
				UserID:        player.ID,
				ChallengeID:   challenge.ID,
				SubmittedFlag: challenge.Flag,
				IsCorrect:     true,
				SubmittedAt:   time.Now().UTC(),
			}, challenge.Score)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				awarded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, awarded)
	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(attempts), count)
}

func TestSolveRepository_Scoreboard(t *testing.T) {
	db := setupDB(t)
	repo := NewSolveRepository(db)
	author := createUser(t, db, "author", domain.RoleChallenger)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	easy := createChallenge(t, db, author, "easy", domain.StatusPublished)
	hard := createChallenge(t, db, author, "hard", domain.StatusPublished)
	hard.Score = 300
	require.NoError(t, NewChallengeRepository(db).Update(hard))

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	recordSolve(t, db, alice, easy, true, base.Add(5*time.Minute))
	recordSolve(t, db, bob, easy, true, base.Add(1*time.Minute))
	recordSolve(t, db, carol, hard, true, base.Add(10*time.Minute))
	recordSolve(t, db, carol, easy, false, base.Add(11*time.Minute))

	entries, err := repo.Scoreboard(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "carol", entries[0].Username)
	assert.Equal(t, 300, entries[0].TotalScore)
	assert.Equal(t, 1, entries[0].Rank)

	// equal scores: the earlier last award ranks higher
	assert.Equal(t, "bob", entries[1].Username)
	assert.Equal(t, "alice", entries[2].Username)
	assert.Equal(t, 3, entries[2].Rank)
	assert.True(t, entries[1].LastSolveAt.Equal(base.Add(time.Minute)))

	limited, err := repo.Scoreboard(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSolveRepository_SolveCountsAndHistory(t *testing.T) {
	db := setupDB(t)
	repo := NewSolveRepository(db)
	author := createUser(t, db, "author", domain.RoleChallenger)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	first := createChallenge(t, db, author, "first", domain.StatusPublished)
	second := createChallenge(t, db, author, "second", domain.StatusPublished)

	now := time.Now().UTC()
	recordSolve(t, db, alice, first, true, now)
	recordSolve(t, db, alice, first, true, now.Add(time.Second))
	recordSolve(t, db, bob, first, true, now.Add(2*time.Second))

	counts, err := repo.SolveCounts([]uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[first.ID])
	assert.Zero(t, counts[second.ID])

	history, err := repo.FindByUserID(alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Challenge.Title)
	assert.True(t, history[0].SubmittedAt.After(history[1].SubmittedAt))

	empty, err := repo.SolveCounts(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
