package contact

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

// Service manages a user's address book
type Service interface {
	Create(ctx context.Context, owner uuid.UUID, input *domain.ContactInput) (*domain.Contact, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*domain.Contact, error)
	List(ctx context.Context, owner uuid.UUID, search string, limit, offset int) ([]*domain.Contact, int, error)
	Update(ctx context.Context, owner, id uuid.UUID, input *domain.ContactInput) (*domain.Contact, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

// Handler handles contact HTTP requests
type Handler struct {
	contacts Service
}

// NewHandler creates a new contact handler
func NewHandler(contacts Service) *Handler {
	return &Handler{contacts: contacts}
}

// Create adds a contact
// POST /v1/contacts
func (h *Handler) Create(c *gin.Context) {
	owner, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.ContactInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	contact, err := h.contacts.Create(c.Request.Context(), owner, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, contact)
}

// List returns a page of contacts
// GET /v1/contacts?search=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	owner, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	page, err := pagination.FromQuery(c)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	contacts, total, err := h.contacts.List(c.Request.Context(), owner, c.Query("search"), page.Limit, page.Offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Page(c, contacts, total, page.Limit, page.Offset)
}

// Get returns one contact
// GET /v1/contacts/:id
func (h *Handler) Get(c *gin.Context) {
	owner, id, ok := ids(c)
	if !ok {
		return
	}

	contact, err := h.contacts.Get(c.Request.Context(), owner, id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, contact)
}

// Update replaces a contact
// PUT /v1/contacts/:id
func (h *Handler) Update(c *gin.Context) {
	owner, id, ok := ids(c)
	if !ok {
		return
	}

	var req domain.ContactInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	contact, err := h.contacts.Update(c.Request.Context(), owner, id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, contact)
}

// Delete removes a contact
// DELETE /v1/contacts/:id
func (h *Handler) Delete(c *gin.Context) {
	owner, id, ok := ids(c)
	if !ok {
		return
	}

	if err := h.contacts.Delete(c.Request.Context(), owner, id); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Contact deleted"})
}

func ids(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	owner, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid contact ID")
		return uuid.Nil, uuid.Nil, false
	}
	return owner, id, true
}
