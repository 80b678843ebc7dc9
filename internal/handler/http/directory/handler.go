package directory

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commhub-backend/internal/domain"
	"commhub-backend/internal/middleware"
	"commhub-backend/pkg/pagination"
	"commhub-backend/pkg/response"
)

// Service is the directory surface exposed over HTTP
type Service interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*domain.ProfileResponse, error)
	FindByUsername(ctx context.Context, username string) (*domain.ProfileResponse, error)
	ListProfiles(ctx context.Context, filter domain.ProfileFilter, includeInactive bool) ([]*domain.ProfileResponse, int, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, update *domain.ProfileUpdate) (*domain.ProfileResponse, error)
	OnlineUsers(ctx context.Context) ([]*domain.ProfileResponse, error)
}

// Handler serves the user directory
type Handler struct {
	directory Service
}

// NewHandler creates a new directory handler
func NewHandler(directory Service) *Handler {
	return &Handler{directory: directory}
}

// List returns a page of profiles. Only administrators see inactive accounts.
// GET /v1/users?search=&status=&role=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	page, err := pagination.FromQuery(c)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	filter := domain.ProfileFilter{
		Status: domain.ProfileStatus(c.Query("status")),
		Role:   domain.Role(c.Query("role")),
		Search: c.Query("search"),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	profiles, total, err := h.directory.ListProfiles(c.Request.Context(), filter, middleware.CurrentRole(c).IsAdmin())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Page(c, profiles, total, page.Limit, page.Offset)
}

// Get returns one profile
// GET /v1/users/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	profile, err := h.directory.GetProfile(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// ByUsername looks a profile up by username
// GET /v1/users/by-username/:username
func (h *Handler) ByUsername(c *gin.Context) {
	profile, err := h.directory.FindByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// UpdateMe changes the caller's username or mobile
// PATCH /v1/users/me
func (h *Handler) UpdateMe(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	profile, err := h.directory.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// Online lists active users with a live presence entry
// GET /v1/users/online
func (h *Handler) Online(c *gin.Context) {
	profiles, err := h.directory.OnlineUsers(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"users": profiles,
		"count": len(profiles),
	})
}
