package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/middleware"
	"github.com/DarkSword404/CTF-Platform/internal/service"
)

// ChallengeHandler handles challenge authoring and browsing
type ChallengeHandler struct {
	challengeService *service.ChallengeService
	logger           *zap.Logger
}

// NewChallengeHandler creates a new challenge handler
func NewChallengeHandler(challengeService *service.ChallengeService, logger *zap.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		logger:           logger,
	}
}

// GetChallenges lists challenges visible to the caller
// GET /api/challenges
func (h *ChallengeHandler) GetChallenges(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	params := service.ListChallengesParams{
		Category:   c.Query("category"),
		Difficulty: c.Query("difficulty"),
		Status:     c.Query("status"),
		Search:     c.Query("search"),
		Page:       queryInt(c, "page"),
		PageSize:   queryInt(c, "page_size"),
	}

	page, err := h.challengeService.List(c.Request.Context(), principal, params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetCategories returns the category enum
// GET /api/challenges/categories
func (h *ChallengeHandler) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": domain.Categories})
}

// GetDifficulties returns the difficulty enum
// GET /api/challenges/difficulties
func (h *ChallengeHandler) GetDifficulties(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"difficulties": domain.Difficulties})
}

// CreateChallenge stores a new draft
// POST /api/challenges
func (h *ChallengeHandler) CreateChallenge(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	var req domain.CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	challenge, err := h.challengeService.Create(c.Request.Context(), principal, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, challenge.ToResponse(true))
}

// GetChallenge returns one challenge; secrets only for its author or an admin
// GET /api/challenges/:id
func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	challenge, err := h.challengeService.Get(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, challenge)
}

// UpdateChallenge applies a partial update
// PUT /api/challenges/:id
func (h *ChallengeHandler) UpdateChallenge(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req domain.UpdateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	challenge, err := h.challengeService.Update(c.Request.Context(), principal, id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, challenge.ToResponse(true))
}

// DeleteChallenge removes a challenge and its submissions
// DELETE /api/challenges/:id
func (h *ChallengeHandler) DeleteChallenge(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.challengeService.Delete(c.Request.Context(), principal, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Challenge deleted"})
}

// SubmitForReview moves a draft or rejected challenge into the review queue
// POST /api/challenges/:id/submit-review
func (h *ChallengeHandler) SubmitForReview(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	challenge, err := h.challengeService.SubmitForReview(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, challenge.ToResponse(true))
}

// ReviewChallenge approves or rejects a pending challenge
// POST /api/admin/challenges/:id/review
func (h *ChallengeHandler) ReviewChallenge(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req domain.ReviewChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	challenge, err := h.challengeService.Review(c.Request.Context(), principal, id, req.Action)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, challenge.ToResponse(true))
}

// SetStatus forces a challenge into published, offline or pending_review
// PUT /api/admin/challenges/:id/status
func (h *ChallengeHandler) SetStatus(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req domain.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	challenge, err := h.challengeService.SetStatus(c.Request.Context(), principal, id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, challenge.ToResponse(true))
}

// queryInt reads an optional integer query parameter; malformed values read as zero
func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
