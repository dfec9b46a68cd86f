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

const (
	defaultSolveHistory = 50
	maxSolveHistory     = 200
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// GetCurrentUser returns the current authenticated user with roles
// GET /api/users/me
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), principal.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}

// UpdateCurrentUser edits nickname, bio and avatar
// PUT /api/users/me
func (h *UserHandler) UpdateCurrentUser(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), principal.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}

// ChangePassword verifies the old password and applies the new one
// PUT /api/users/me/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	var req domain.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.userService.ChangePassword(c.Request.Context(), principal.UserID, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// GetSolves lists the caller's own submissions, newest first
// GET /api/users/me/solves
func (h *UserHandler) GetSolves(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSolveHistory)))
	if err != nil || limit <= 0 {
		limit = defaultSolveHistory
	}
	if limit > maxSolveHistory {
		limit = maxSolveHistory
	}

	solves, err := h.userService.GetSolves(c.Request.Context(), principal.UserID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	responses := make([]domain.SolveResponse, len(solves))
	for i := range solves {
		responses[i] = solves[i].ToResponse()
	}

	c.JSON(http.StatusOK, gin.H{
		"solves": responses,
		"total":  len(responses),
	})
}
