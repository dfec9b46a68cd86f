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

// AdminHandler handles the administrator console
type AdminHandler struct {
	adminService     *service.AdminService
	providerService  *service.ProviderService
	containerService *service.ContainerService
	logger           *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	adminService *service.AdminService,
	providerService *service.ProviderService,
	containerService *service.ContainerService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		adminService:     adminService,
		providerService:  providerService,
		containerService: containerService,
		logger:           logger,
	}
}

// GetUsers lists accounts
// GET /api/admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	filter := domain.UserFilter{
		Search:   c.Query("search"),
		Role:     c.Query("role"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}
	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid is_active"})
			return
		}
		filter.IsActive = &active
	}

	page, err := h.adminService.ListUsers(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// UpdateUser changes activation, lock state, nickname or roles
// PUT /api/admin/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req domain.AdminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.adminService.UpdateUser(c.Request.Context(), principal, id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeleteUser removes a non-admin account
// DELETE /api/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteUser(c.Request.Context(), principal, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// GetStatistics returns platform-wide counters
// GET /api/admin/statistics
func (h *AdminHandler) GetStatistics(c *gin.Context) {
	stats, err := h.adminService.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetCallLogs pages through AI call logs
// GET /api/admin/ai/logs
func (h *AdminHandler) GetCallLogs(c *gin.Context) {
	filter := domain.CallLogFilter{
		Provider: c.Query("provider"),
		Status:   c.Query("status"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}

	page, err := h.adminService.CallLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetUsageStats aggregates call logs per provider and day
// GET /api/admin/ai/usage-stats
func (h *AdminHandler) GetUsageStats(c *gin.Context) {
	stats, err := h.adminService.UsageStats(c.Request.Context(), queryInt(c, "days"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if stats == nil {
		stats = []domain.AIUsageStat{}
	}

	c.JSON(http.StatusOK, gin.H{"usage": stats})
}

// GetProviders lists stored provider configs with keys hidden
// GET /api/admin/ai/providers
func (h *AdminHandler) GetProviders(c *gin.Context) {
	providers, err := h.providerService.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

// CreateProvider stores a provider config
// POST /api/admin/ai/providers
func (h *AdminHandler) CreateProvider(c *gin.Context) {
	var req domain.CreateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	provider, err := h.providerService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, provider)
}

// UpdateProvider edits a provider config
// PUT /api/admin/ai/providers/:id
func (h *AdminHandler) UpdateProvider(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req domain.UpdateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	provider, err := h.providerService.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, provider)
}

// DeleteProvider removes a provider config
// DELETE /api/admin/ai/providers/:id
func (h *AdminHandler) DeleteProvider(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.providerService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Provider deleted"})
}

// TestProvider sends a probe prompt through one provider
// POST /api/admin/ai/providers/:id/test
func (h *AdminHandler) TestProvider(c *gin.Context) {
	principal, ok := middleware.RequirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.providerService.Test(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// InitDefaultProviders inserts the missing catalogue providers
// POST /api/admin/ai/providers/init-defaults
func (h *AdminHandler) InitDefaultProviders(c *gin.Context) {
	created, err := h.providerService.InitDefaults(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"created": created})
}

// GetContainers lists every managed container
// GET /api/admin/containers
func (h *AdminHandler) GetContainers(c *gin.Context) {
	containers, err := h.containerService.AdminList(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if containers == nil {
		containers = []domain.ContainerInfo{}
	}

	c.JSON(http.StatusOK, gin.H{"containers": containers})
}

// CleanupContainers stops containers older than the given age
// POST /api/admin/containers/cleanup
func (h *AdminHandler) CleanupContainers(c *gin.Context) {
	var req domain.CleanupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	report, err := h.containerService.Cleanup(c.Request.Context(), req.MaxAgeHours)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
