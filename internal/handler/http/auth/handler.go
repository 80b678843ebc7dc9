package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commhub-backend/internal/domain"
	"commhub-backend/internal/middleware"
	"commhub-backend/internal/service/auth"
	"commhub-backend/pkg/response"
)

// Service is the part of the auth service the handler needs
type Service interface {
	SignUp(ctx context.Context, input *auth.SignUpInput) (*domain.ProfileResponse, error)
	SignIn(ctx context.Context, input *auth.SignInInput) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	SignOut(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.ProfileResponse, error)
}

// Handler handles HTTP requests for authentication
type Handler struct {
	authService Service
}

// NewHandler creates a new auth handler
func NewHandler(authService Service) *Handler {
	return &Handler{authService: authService}
}

// RefreshTokenRequest represents refresh token request
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// SignOutRequest optionally names the refresh token to drop with the session
type SignOutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SignUp handles registration
// POST /v1/auth/signup
func (h *Handler) SignUp(c *gin.Context) {
	var req domain.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	profile, err := h.authService.SignUp(c.Request.Context(), &auth.SignUpInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		Mobile:    req.Mobile,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":    profile,
		"message": "Account created and awaiting administrator approval",
	})
}

// SignIn handles login
// POST /v1/auth/signin
func (h *Handler) SignIn(c *gin.Context) {
	var req domain.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	pair, err := h.authService.SignIn(c.Request.Context(), &auth.SignInInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, pair)
}

// Refresh rotates a refresh token
// POST /v1/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, pair)
}

// SignOut revokes the current access token and session
// POST /v1/auth/signout
func (h *Handler) SignOut(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req SignOutRequest
	// body is optional
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.SignOut(c.Request.Context(), userID, c.GetString(middleware.ContextToken), req.RefreshToken); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Signed out"})
}

// Me returns the signed-in profile
// GET /v1/auth/me
func (h *Handler) Me(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	profile, err := h.authService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}
