package lead

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/pagination"
	"commhub-backend/pkg/response"
)

// Service manages the lead pipeline
type Service interface {
	Create(ctx context.Context, input *domain.LeadCreate) (*domain.Lead, error)
	List(ctx context.Context, status domain.LeadStatus, limit, offset int) ([]*domain.Lead, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LeadStatus) (*domain.Lead, error)
}

// Handler handles lead HTTP requests
type Handler struct {
	leads Service
}

// NewHandler creates a new lead handler
func NewHandler(leads Service) *Handler {
	return &Handler{leads: leads}
}

// Create records an enquiry from the public contact form
// POST /v1/leads
func (h *Handler) Create(c *gin.Context) {
	var req domain.LeadCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	lead, err := h.leads.Create(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, lead)
}

// List returns a page of leads
// GET /v1/leads?status=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	page, err := pagination.FromQuery(c)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	leads, total, err := h.leads.List(c.Request.Context(), domain.LeadStatus(c.Query("status")), page.Limit, page.Offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Page(c, leads, total, page.Limit, page.Offset)
}

// UpdateStatus moves a lead through the pipeline
// PATCH /v1/leads/:id
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid lead ID")
		return
	}

	var req domain.LeadStatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	lead, err := h.leads.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, lead)
}
