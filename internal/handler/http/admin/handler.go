package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commhub-backend/internal/domain"
	"commhub-backend/internal/middleware"
	"commhub-backend/internal/service/admin"
	"commhub-backend/pkg/audit"
	"commhub-backend/pkg/pagination"
	"commhub-backend/pkg/response"
)

// Service is the administrative surface exposed over HTTP
type Service interface {
	ListUsers(ctx context.Context, filter domain.ProfileFilter) ([]*domain.ProfileResponse, int, error)
	Activate(ctx context.Context, actor *admin.Actor, userID uuid.UUID) (*domain.ProfileResponse, error)
	Suspend(ctx context.Context, actor *admin.Actor, userID uuid.UUID) (*domain.ProfileResponse, error)
	Delete(ctx context.Context, actor *admin.Actor, userID uuid.UUID) error
	ChangeRole(ctx context.Context, actor *admin.Actor, userID uuid.UUID, role domain.Role) (*domain.ProfileResponse, error)
	GetSystemStats(ctx context.Context) (*domain.SystemStats, error)
	SecurityEvents(ctx context.Context, limit int) ([]*audit.SecurityEvent, error)
}

// Handler handles admin HTTP requests. Routes are mounted behind
// middleware.RequireAdmin.
type Handler struct {
	adminService Service
}

// NewHandler creates a new admin handler
func NewHandler(adminService Service) *Handler {
	return &Handler{adminService: adminService}
}

// GetSystemStats retrieves system statistics
// GET /v1/admin/stats
func (h *Handler) GetSystemStats(c *gin.Context) {
	stats, err := h.adminService.GetSystemStats(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// GetUsers retrieves profiles in every status
// GET /v1/admin/users?status=&role=&search=&limit=&offset=
func (h *Handler) GetUsers(c *gin.Context) {
	page, err := pagination.FromQuery(c)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if c.Query("limit") == "" {
		page.Limit = 0 // service default
	}

	filter := domain.ProfileFilter{
		Status: domain.ProfileStatus(c.Query("status")),
		Role:   domain.Role(c.Query("role")),
		Search: c.Query("search"),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	users, total, err := h.adminService.ListUsers(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Page(c, users, total, filter.Limit, filter.Offset)
}

// ActivateUser approves a pending account or lifts a suspension
// POST /v1/admin/users/:id/activate
func (h *Handler) ActivateUser(c *gin.Context) {
	actor, userID, ok := actorAndTarget(c)
	if !ok {
		return
	}

	profile, err := h.adminService.Activate(c.Request.Context(), actor, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// SuspendUser suspends an account and signs it out everywhere
// POST /v1/admin/users/:id/suspend
func (h *Handler) SuspendUser(c *gin.Context) {
	actor, userID, ok := actorAndTarget(c)
	if !ok {
		return
	}

	profile, err := h.adminService.Suspend(c.Request.Context(), actor, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// DeleteUser removes an account
// DELETE /v1/admin/users/:id
func (h *Handler) DeleteUser(c *gin.Context) {
	actor, userID, ok := actorAndTarget(c)
	if !ok {
		return
	}

	if err := h.adminService.Delete(c.Request.Context(), actor, userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "User deleted"})
}

// ChangeRole assigns a new role
// PUT /v1/admin/users/:id/role
func (h *Handler) ChangeRole(c *gin.Context) {
	actor, userID, ok := actorAndTarget(c)
	if !ok {
		return
	}

	var req domain.RoleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	profile, err := h.adminService.ChangeRole(c.Request.Context(), actor, userID, req.Role)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// GetSecurityEvents returns the newest audit events
// GET /v1/admin/security-events?limit=
func (h *Handler) GetSecurityEvents(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			response.ValidationError(c, "Invalid limit parameter")
			return
		}
		limit = l
	}

	events, err := h.adminService.SecurityEvents(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func actorAndTarget(c *gin.Context) (*admin.Actor, uuid.UUID, bool) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return nil, uuid.Nil, false
	}

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return nil, uuid.Nil, false
	}

	return &admin.Actor{
		ID:        actorID,
		Username:  c.GetString(middleware.ContextUsername),
		Role:      middleware.CurrentRole(c),
		IPAddress: c.ClientIP(),
	}, userID, true
}
