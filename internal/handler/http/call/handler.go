package call

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commhub-backend/internal/call"
	"commhub-backend/internal/domain"
	"commhub-backend/pkg/response"
)

// Controller is the call state machine driven by the local UI
type Controller interface {
	Initiate(ctx context.Context, remote domain.Party) error
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error
	End(ctx context.Context) error
	ToggleMute() bool
	Session() call.Session
}

// Handler serves the softphone control API
type Handler struct {
	controller Controller
	directory  call.Directory
}

// NewHandler creates a new call control handler
func NewHandler(controller Controller, directory call.Directory) *Handler {
	return &Handler{controller: controller, directory: directory}
}

// InitiateRequest names the user to call
type InitiateRequest struct {
	ProfileID uuid.UUID `json:"profile_id" binding:"required"`
}

// Initiate places a call to a registered user
// POST /v1/call/initiate
func (h *Handler) Initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	profile, err := h.directory.GetActiveProfile(c.Request.Context(), req.ProfileID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if err := h.controller.Initiate(c.Request.Context(), domain.SystemUser{Profile: profile}); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, h.controller.Session())
}

// Accept answers the ringing call
// POST /v1/call/accept
func (h *Handler) Accept(c *gin.Context) {
	h.run(c, h.controller.Accept)
}

// Reject declines the ringing call
// POST /v1/call/reject
func (h *Handler) Reject(c *gin.Context) {
	h.run(c, h.controller.Reject)
}

// End hangs up
// POST /v1/call/end
func (h *Handler) End(c *gin.Context) {
	h.run(c, h.controller.End)
}

// Mute toggles the microphone
// POST /v1/call/mute
func (h *Handler) Mute(c *gin.Context) {
	muted := h.controller.ToggleMute()
	response.Success(c, http.StatusOK, gin.H{"muted": muted})
}

// Session returns the current call state
// GET /v1/call/session
func (h *Handler) Session(c *gin.Context) {
	response.Success(c, http.StatusOK, h.controller.Session())
}

func (h *Handler) run(c *gin.Context, op func(context.Context) error) {
	if err := op(c.Request.Context()); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, h.controller.Session())
}
