package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

func newChallengeService(env *testEnv) *ChallengeService {
	return NewChallengeService(env.challenges, env.solves, testTracer, zap.NewNop())
}

func validCreateRequest(title string) *domain.CreateChallengeRequest {
	return &domain.CreateChallengeRequest{
		Title:      title,
		Category:   "Pwn",
		Difficulty: "Hard",
		Score:      500,
		Flag:       "flag{" + title + "}",
		Hints:      []string{"look at the stack"},
		Solution:   "overflow it",
	}
}

func TestChallengeService_Create(t *testing.T) {
	env := newTestEnv(t)
	svc := newChallengeService(env)
	ctx := context.Background()
	_, author := env.createUser(t, "author", domain.RoleChallenger)
	_, player := env.createUser(t, "player", domain.RoleUser)

	challenge, err := svc.Create(ctx, author, validCreateRequest("smash"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, challenge.Status)
	assert.Equal(t, domain.CategoryPwn, challenge.Category)
	assert.Equal(t, domain.FlagFormatPlaintext, challenge.FlagFormat)
	assert.True(t, challenge.IsCaseSensitiveFlag)
	assert.Equal(t, author.UserID, challenge.AuthorID)

	_, err = svc.Create(ctx, author, validCreateRequest("smash"))
	assert.ErrorIs(t, err, domain.ErrChallengeTitleTaken)

	_, err = svc.Create(ctx, player, validCreateRequest("other"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	tests := []struct {
		name    string
		mutate  func(*domain.CreateChallengeRequest)
		wantErr error
	}{
		{"bad category", func(r *domain.CreateChallengeRequest) { r.Category = "Forensics" }, domain.ErrInvalidCategory},
		{"bad difficulty", func(r *domain.CreateChallengeRequest) { r.Difficulty = "Extreme" }, domain.ErrInvalidDifficulty},
		{"zero score", func(r *domain.CreateChallengeRequest) { r.Score = 0 }, domain.ErrInvalidScore},
		{"bad flag format", func(r *domain.CreateChallengeRequest) { r.FlagFormat = "glob" }, domain.ErrInvalidFlagFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest(tt.name)
			tt.mutate(req)
			_, err := svc.Create(ctx, author, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChallengeService_Visibility(t *testing.T) {
	env := newTestEnv(t)
	svc := newChallengeService(env)
	ctx := context.Background()
	authorUser, author := env.createUser(t, "author", domain.RoleChallenger)
	_, player := env.createUser(t, "player", domain.RoleUser)
	_, admin := env.createUser(t, "root", domain.RoleAdmin)

	draft := env.createChallenge(t, authorUser.ID, "draft", domain.StatusDraft)
	published := env.createChallenge(t, authorUser.ID, "published", domain.StatusPublished)

	_, err := svc.Get(ctx, player, draft.ID)
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)

	resp, err := svc.Get(ctx, player, published.ID)
	require.NoError(t, err)
	assert.Empty(t, resp.Flag)
	assert.Empty(t, resp.Solution)

	resp, err = svc.Get(ctx, author, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "flag{draft}", resp.Flag)

	resp, err = svc.Get(ctx, admin, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "flag{draft}", resp.Flag)

	_, err = svc.Get(ctx, player, uuid.New())
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)

	page, err := svc.List(ctx, player, ListChallengesParams{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, published.ID, page.Items[0].ID)

	page, err = svc.List(ctx, author, ListChallengesParams{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	page, err = svc.List(ctx, admin, ListChallengesParams{PageSize: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 100, page.PageSize)
}

func TestChallengeService_ListAnnotatesSolves(t *testing.T) {
	env := newTestEnv(t)
	svc := newChallengeService(env)
	ctx := context.Background()
	authorUser, _ := env.createUser(t, "author", domain.RoleChallenger)
	playerUser, player := env.createUser(t, "player", domain.RoleUser)

	solved := env.createChallenge(t, authorUser.ID, "solved", domain.StatusPublished)
	env.createChallenge(t, authorUser.ID, "open", domain.StatusPublished)

	_, err := env.solves.RecordAttempt(&domain.Solve{
		UserID:        playerUser.ID,
		ChallengeID:   solved.ID,
		SubmittedFlag: solved.Flag,
		IsCorrect:     true,
		SubmittedAt:   time.Now(),
	}, solved.Score)
	require.NoError(t, err)

	page, err := svc.List(ctx, player, ListChallengesParams{Search: "solv"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].SolvedByUser)
	assert.EqualValues(t, 1, page.Items[0].SolveCount)

	_, err = svc.List(ctx, player, ListChallengesParams{Category: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)
}

func TestChallengeService_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	svc := newChallengeService(env)
	ctx := context.Background()
	authorUser, author := env.createUser(t, "author", domain.RoleChallenger)
	_, other := env.createUser(t, "other", domain.RoleChallenger)
	_, admin := env.createUser(t, "root", domain.RoleAdmin)

	draft := env.createChallenge(t, authorUser.ID, "draft", domain.StatusDraft)
	env.createChallenge(t, authorUser.ID, "taken", domain.StatusDraft)
	published := env.createChallenge(t, authorUser.ID, "published", domain.StatusPublished)

	title := "renamed"
	updated, err := svc.Update(ctx, author, draft.ID, &domain.UpdateChallengeRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)

	taken := "taken"
	_, err = svc.Update(ctx, author, draft.ID, &domain.UpdateChallengeRequest{Title: &taken})
	assert.ErrorIs(t, err, domain.ErrChallengeTitleTaken)

	empty := ""
	_, err = svc.Update(ctx, author, draft.ID, &domain.UpdateChallengeRequest{Flag: &empty})
	assert.ErrorIs(t, err, domain.ErrEmptyFlag)

	_, err = svc.Update(ctx, other, published.ID, &domain.UpdateChallengeRequest{Title: &title})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.ErrorIs(t, svc.Delete(ctx, author, published.ID), domain.ErrChallengePublished)
	assert.ErrorIs(t, svc.Delete(ctx, other, published.ID), domain.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, admin, published.ID))
	require.NoError(t, svc.Delete(ctx, author, draft.ID))

	_, err = env.challenges.FindByID(draft.ID)
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
}

func TestChallengeService_ReviewFlow(t *testing.T) {
	env := newTestEnv(t)
	svc := newChallengeService(env)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)
	ctx := context.Background()
	authorUser, author := env.createUser(t, "author", domain.RoleChallenger)
	_, admin := env.createUser(t, "root", domain.RoleAdmin)

	challenge := env.createChallenge(t, authorUser.ID, "flow", domain.StatusDraft)

	_, err := svc.Review(ctx, admin, challenge.ID, domain.ReviewApprove)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	_, err = svc.SubmitForReview(ctx, admin, challenge.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	submitted, err := svc.SubmitForReview(ctx, author, challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, submitted.Status)

	_, err = svc.Review(ctx, author, challenge.ID, domain.ReviewApprove)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	rejected, err := svc.Review(ctx, admin, challenge.ID, domain.ReviewReject)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)

	_, err = svc.SubmitForReview(ctx, author, challenge.ID)
	require.NoError(t, err)

	approved, err := svc.Review(ctx, admin, challenge.ID, domain.ReviewApprove)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, approved.Status)
	require.NotNil(t, approved.PublishedAt)
	assert.True(t, now.Equal(*approved.PublishedAt))

	offline, err := svc.SetStatus(ctx, admin, challenge.ID, "offline")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, offline.Status)

	_, err = svc.SetStatus(ctx, admin, challenge.ID, "draft")
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	_, err = svc.SetStatus(ctx, admin, challenge.ID, "archived")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
