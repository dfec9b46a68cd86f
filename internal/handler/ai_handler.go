package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/middleware"
	"github.com/DarkSword404/CTF-Platform/internal/service"
)

// AIHandler exposes the generation endpoints to challenge authors
type AIHandler struct {
	aiService *service.AIService
	logger    *zap.Logger
}

// NewAIHandler creates a new AI handler
func NewAIHandler(aiService *service.AIService, logger *zap.Logger) *AIHandler {
	return &AIHandler{
		aiService: aiService,
		logger:    logger,
	}
}

// GetProviders lists usable providers in priority order
// GET /api/ai/providers
func (h *AIHandler) GetProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.aiService.Providers()})
}

// GenerateChallenge synthesizes a draft challenge, building its image for Web
// POST /api/ai/generate-challenge
func (h *AIHandler) GenerateChallenge(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	var req domain.GenerateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	challenge, err := h.aiService.GenerateChallenge(c.Request.Context(), principal, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, challenge.ToResponse(true))
}

// GenerateFlag returns a fresh flag for the described challenge
// POST /api/ai/generate-flag
func (h *AIHandler) GenerateFlag(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	var req domain.GenerateFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	flag, err := h.aiService.GenerateFlag(c.Request.Context(), principal, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

// GenerateText runs a free-form prompt
// POST /api/ai/generate-text
func (h *AIHandler) GenerateText(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	var req domain.GenerateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	text, err := h.aiService.GenerateText(c.Request.Context(), principal, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, text)
}

// GetGenerationHistory pages through generation records
// GET /api/ai/generation-history
func (h *AIHandler) GetGenerationHistory(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	page, err := h.aiService.History(c.Request.Context(), principal, queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}
