package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"commhub-backend/internal/domain"
	"commhub-backend/internal/middleware"
	"commhub-backend/internal/service/auth"
	"commhub-backend/pkg/errors"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) SignUp(ctx context.Context, input *auth.SignUpInput) (*domain.ProfileResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProfileResponse), args.Error(1)
}

func (m *MockService) SignIn(ctx context.Context, input *auth.SignInInput) (*auth.TokenPair, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.TokenPair), args.Error(1)
}

func (m *MockService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.TokenPair), args.Error(1)
}

func (m *MockService) SignOut(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string) error {
	return m.Called(ctx, userID, accessToken, refreshToken).Error(0)
}

func (m *MockService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.ProfileResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProfileResponse), args.Error(1)
}

type body struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func router(svc *MockService, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(svc)
	r.POST("/v1/auth/signup", h.SignUp)
	r.POST("/v1/auth/signin", h.SignIn)
	r.POST("/v1/auth/refresh", h.Refresh)

	authed := r.Group("/v1/auth", func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.ContextUserID, userID)
			c.Set(middleware.ContextToken, "access-token")
		}
		c.Next()
	})
	authed.POST("/signout", h.SignOut)
	authed.GET("/me", h.Me)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, payload interface{}) (*httptest.ResponseRecorder, body) {
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var b body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return w, b
}

func TestHandler_SignUp(t *testing.T) {
	svc := new(MockService)
	profile := &domain.ProfileResponse{ID: uuid.New(), Username: "alice", Status: domain.ProfilePendingApproval}
	svc.On("SignUp", mock.Anything, mock.MatchedBy(func(in *auth.SignUpInput) bool {
		return in.Email == "alice@example.com" && in.Username == "alice"
	})).Return(profile, nil)

	w, b := do(t, router(svc, uuid.Nil), http.MethodPost, "/v1/auth/signup", map[string]string{
		"email": "alice@example.com", "username": "alice", "password": "password123",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, b.Success)
	svc.AssertExpectations(t)
}

func TestHandler_SignUpInvalidBody(t *testing.T) {
	svc := new(MockService)

	w, b := do(t, router(svc, uuid.Nil), http.MethodPost, "/v1/auth/signup", map[string]string{
		"email": "not-an-email", "username": "al", "password": "short",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.ErrCodeValidation), b.Error.Code)
	svc.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything)
}

func TestHandler_SignIn(t *testing.T) {
	svc := new(MockService)
	pair := &auth.TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900}
	svc.On("SignIn", mock.Anything, mock.AnythingOfType("*auth.SignInInput")).Return(pair, nil)

	w, b := do(t, router(svc, uuid.Nil), http.MethodPost, "/v1/auth/signin", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var got auth.TokenPair
	require.NoError(t, json.Unmarshal(b.Data, &got))
	assert.Equal(t, "a", got.AccessToken)
}

func TestHandler_SignInPending(t *testing.T) {
	svc := new(MockService)
	svc.On("SignIn", mock.Anything, mock.Anything).Return(nil, errors.AccountPendingError())

	w, b := do(t, router(svc, uuid.Nil), http.MethodPost, "/v1/auth/signin", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(errors.ErrCodeAccountPending), b.Error.Code)
}

func TestHandler_Refresh(t *testing.T) {
	svc := new(MockService)
	svc.On("Refresh", mock.Anything, "refresh-token").Return(&auth.TokenPair{AccessToken: "new"}, nil)

	w, _ := do(t, router(svc, uuid.Nil), http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": "refresh-token"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router(svc, uuid.Nil), http.MethodPost, "/v1/auth/refresh", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_SignOut(t *testing.T) {
	userID := uuid.New()
	svc := new(MockService)
	svc.On("SignOut", mock.Anything, userID, "access-token", "refresh-token").Return(nil)

	w, _ := do(t, router(svc, userID), http.MethodPost, "/v1/auth/signout", map[string]string{"refresh_token": "refresh-token"})

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_MeRequiresAuth(t *testing.T) {
	svc := new(MockService)

	w, _ := do(t, router(svc, uuid.Nil), http.MethodGet, "/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userID := uuid.New()
	svc.On("GetProfile", mock.Anything, userID).Return(&domain.ProfileResponse{ID: userID}, nil)
	w, _ = do(t, router(svc, userID), http.MethodGet, "/v1/auth/me", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
