package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/middleware"
	"github.com/DarkSword404/CTF-Platform/internal/service"
)

// PlayHandler handles flag submissions, challenge instances and the scoreboard
type PlayHandler struct {
	submissionService *service.SubmissionService
	containerService  *service.ContainerService
	logger            *zap.Logger
}

// NewPlayHandler creates a new play handler
func NewPlayHandler(submissionService *service.SubmissionService, containerService *service.ContainerService, logger *zap.Logger) *PlayHandler {
	return &PlayHandler{
		submissionService: submissionService,
		containerService:  containerService,
		logger:            logger,
	}
}

// SubmitFlag checks a flag and awards score on the first correct attempt
// POST /api/challenges/:id/submit
func (h *PlayHandler) SubmitFlag(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req domain.SubmitFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.submissionService.Submit(c.Request.Context(), principal, id, req.Candidate())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// StartInstance launches a personal container for the challenge
// POST /api/challenges/:id/start
func (h *PlayHandler) StartInstance(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.containerService.Start(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// StopInstance stops one of the caller's containers
// POST /api/challenges/:id/stop
func (h *PlayHandler) StopInstance(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req domain.StopContainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.containerService.Stop(c.Request.Context(), principal, id, req.ContainerName)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetInstances lists the caller's running containers
// GET /api/instances
func (h *PlayHandler) GetInstances(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	instances, err := h.containerService.Instances(c.Request.Context(), principal)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if instances == nil {
		instances = []domain.ContainerInfo{}
	}

	c.JSON(http.StatusOK, gin.H{"instances": instances})
}

// GetScoreboard returns the ranking by awarded score
// GET /api/scoreboard
func (h *PlayHandler) GetScoreboard(c *gin.Context) {
	entries, err := h.submissionService.Scoreboard(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"scoreboard": entries})
}
