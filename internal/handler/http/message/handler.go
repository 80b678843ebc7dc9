package message

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commhub-backend/internal/domain"
	"commhub-backend/internal/middleware"
	"commhub-backend/internal/service/message"
	"commhub-backend/pkg/pagination"
	"commhub-backend/pkg/response"
)

// Service is the messaging surface exposed over HTTP
type Service interface {
	Send(ctx context.Context, input *message.SendInput) (*domain.Message, error)
	Thread(ctx context.Context, ownerID uuid.UUID, ref domain.PartyRef, limit int) ([]*domain.Message, error)
	MarkRead(ctx context.Context, readerID uuid.UUID, ref domain.PartyRef) (int, error)
}

// Directory resolves the sender profile
type Directory interface {
	GetActiveProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
}

// Handler handles message HTTP requests
type Handler struct {
	messages  Service
	directory Directory
}

// NewHandler creates a new message handler
func NewHandler(messages Service, directory Directory) *Handler {
	return &Handler{messages: messages, directory: directory}
}

// ThreadQuery selects a thread from query parameters
type ThreadQuery struct {
	Kind      domain.PartyKind `form:"kind" binding:"required,oneof=system_user external_contact"`
	ProfileID string           `form:"profile_id"`
	Mobile    string           `form:"mobile"`
}

// Send delivers a web message or queues an SMS
// POST /v1/messages
func (h *Handler) Send(c *gin.Context) {
	sender, ok := h.sender(c)
	if !ok {
		return
	}

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), &message.SendInput{
		Sender: sender,
		To:     req.To,
		Body:   req.Body,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, msg)
}

// Thread returns the newest messages with a party
// GET /v1/messages/thread?kind=system_user&profile_id=...
// GET /v1/messages/thread?kind=external_contact&mobile=...
func (h *Handler) Thread(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	ref, ok := partyFromQuery(c)
	if !ok {
		return
	}

	page, err := pagination.FromQuery(c)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	messages, err := h.messages.Thread(c.Request.Context(), userID, ref, page.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// MarkRead flags the caller's unread messages in a thread
// POST /v1/messages/read
func (h *Handler) MarkRead(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var ref domain.PartyRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	updated, err := h.messages.MarkRead(c.Request.Context(), userID, ref)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) sender(c *gin.Context) (*domain.Profile, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return nil, false
	}

	profile, err := h.directory.GetActiveProfile(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return nil, false
	}
	return profile, true
}

func partyFromQuery(c *gin.Context) (domain.PartyRef, bool) {
	var q ThreadQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ValidationError(c, err.Error())
		return domain.PartyRef{}, false
	}

	ref := domain.PartyRef{Kind: q.Kind, Mobile: q.Mobile}
	if q.ProfileID != "" {
		id, err := uuid.Parse(q.ProfileID)
		if err != nil {
			response.ValidationError(c, "Invalid profile ID")
			return domain.PartyRef{}, false
		}
		ref.ProfileID = &id
	}
	return ref, true
}
