package admin

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
	"commhub-backend/internal/service/admin"
	"commhub-backend/pkg/audit"
	"commhub-backend/pkg/errors"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ListUsers(ctx context.Context, filter domain.ProfileFilter) ([]*domain.ProfileResponse, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.ProfileResponse), args.Int(1), args.Error(2)
}

func (m *MockService) Activate(ctx context.Context, actor *admin.Actor, userID uuid.UUID) (*domain.ProfileResponse, error) {
	return m.profile(m.Called(ctx, actor, userID))
}

func (m *MockService) Suspend(ctx context.Context, actor *admin.Actor, userID uuid.UUID) (*domain.ProfileResponse, error) {
	return m.profile(m.Called(ctx, actor, userID))
}

func (m *MockService) Delete(ctx context.Context, actor *admin.Actor, userID uuid.UUID) error {
	return m.Called(ctx, actor, userID).Error(0)
}

func (m *MockService) ChangeRole(ctx context.Context, actor *admin.Actor, userID uuid.UUID, role domain.Role) (*domain.ProfileResponse, error) {
	return m.profile(m.Called(ctx, actor, userID, role))
}

func (m *MockService) GetSystemStats(ctx context.Context) (*domain.SystemStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SystemStats), args.Error(1)
}

func (m *MockService) SecurityEvents(ctx context.Context, limit int) ([]*audit.SecurityEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.SecurityEvent), args.Error(1)
}

func (m *MockService) profile(args mock.Arguments) (*domain.ProfileResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProfileResponse), args.Error(1)
}

var actorID = uuid.New()

func router(svc *MockService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(svc)
	g := r.Group("/v1/admin", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, actorID)
		c.Set(middleware.ContextUsername, "root")
		c.Set(middleware.ContextRole, string(domain.RoleSuperAdmin))
		c.Next()
	})
	g.GET("/stats", h.GetSystemStats)
	g.GET("/users", h.GetUsers)
	g.POST("/users/:id/activate", h.ActivateUser)
	g.POST("/users/:id/suspend", h.SuspendUser)
	g.DELETE("/users/:id", h.DeleteUser)
	g.PUT("/users/:id/role", h.ChangeRole)
	g.GET("/security-events", h.GetSecurityEvents)
	return r
}

func do(r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&buf).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func isActor(a *admin.Actor) bool {
	return a.ID == actorID && a.Username == "root" && a.Role == domain.RoleSuperAdmin
}

func TestGetUsers_DefaultLimitLeftToService(t *testing.T) {
	svc := new(MockService)
	svc.On("ListUsers", mock.Anything, domain.ProfileFilter{Status: domain.ProfilePendingApproval, Limit: 0, Offset: 0}).
		Return([]*domain.ProfileResponse{{Username: "bob"}}, 1, nil)

	w := do(router(svc), http.MethodGet, "/v1/admin/users?status=PENDING_APPROVAL", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
	svc.AssertExpectations(t)
}

func TestActivateUser(t *testing.T) {
	svc := new(MockService)
	target := uuid.New()
	svc.On("Activate", mock.Anything, mock.MatchedBy(isActor), target).
		Return(&domain.ProfileResponse{ID: target, Status: domain.ProfileActive}, nil)

	w := do(router(svc), http.MethodPost, "/v1/admin/users/"+target.String()+"/activate", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ACTIVE"`)
	svc.AssertExpectations(t)
}

func TestSuspendUser_Forbidden(t *testing.T) {
	svc := new(MockService)
	target := uuid.New()
	svc.On("Suspend", mock.Anything, mock.Anything, target).
		Return(nil, errors.ForbiddenError("Cannot suspend yourself"))

	w := do(router(svc), http.MethodPost, "/v1/admin/users/"+target.String()+"/suspend", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteUser_InvalidID(t *testing.T) {
	svc := new(MockService)

	w := do(router(svc), http.MethodDelete, "/v1/admin/users/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangeRole(t *testing.T) {
	svc := new(MockService)
	target := uuid.New()
	svc.On("ChangeRole", mock.Anything, mock.MatchedBy(isActor), target, domain.RoleAdmin).
		Return(&domain.ProfileResponse{ID: target, Role: domain.RoleAdmin}, nil)

	r := router(svc)
	w := do(r, http.MethodPut, "/v1/admin/users/"+target.String()+"/role", map[string]string{"role": "ADMIN"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPut, "/v1/admin/users/"+target.String()+"/role", map[string]string{"role": "OWNER"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "ChangeRole", 1)
}

func TestGetSecurityEvents(t *testing.T) {
	svc := new(MockService)
	svc.On("SecurityEvents", mock.Anything, 5).Return([]*audit.SecurityEvent{{}, {}}, nil)

	r := router(svc)
	w := do(r, http.MethodGet, "/v1/admin/security-events?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = do(r, http.MethodGet, "/v1/admin/security-events?limit=five", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
