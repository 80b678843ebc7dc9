package call

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

	"commhub-backend/internal/call"
	"commhub-backend/internal/domain"
	"commhub-backend/pkg/errors"
)

type MockController struct {
	mock.Mock
}

func (m *MockController) Initiate(ctx context.Context, remote domain.Party) error {
	return m.Called(ctx, remote).Error(0)
}

func (m *MockController) Accept(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockController) Reject(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockController) End(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *MockController) ToggleMute() bool                 { return m.Called().Bool(0) }

func (m *MockController) Session() call.Session {
	return m.Called().Get(0).(call.Session)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetActiveProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func setup() (*gin.Engine, *MockController, *MockDirectory) {
	gin.SetMode(gin.TestMode)
	ctrl := new(MockController)
	dir := new(MockDirectory)
	h := NewHandler(ctrl, dir)

	r := gin.New()
	g := r.Group("/v1/call")
	g.POST("/initiate", h.Initiate)
	g.POST("/accept", h.Accept)
	g.POST("/reject", h.Reject)
	g.POST("/end", h.End)
	g.POST("/mute", h.Mute)
	g.GET("/session", h.Session)
	return r, ctrl, dir
}

func request(r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
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

func TestHandler_Initiate(t *testing.T) {
	r, ctrl, dir := setup()
	bob := &domain.Profile{ID: uuid.New(), Username: "bob", Status: domain.ProfileActive}

	dir.On("GetActiveProfile", mock.Anything, bob.ID).Return(bob, nil)
	ctrl.On("Initiate", mock.Anything, domain.SystemUser{Profile: bob}).Return(nil)
	ctrl.On("Session").Return(call.Session{Status: call.StatusCalling, RemoteParty: bob})

	w := request(r, http.MethodPost, "/v1/call/initiate", map[string]string{"profile_id": bob.ID.String()})

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Data call.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, call.StatusCalling, resp.Data.Status)
	ctrl.AssertExpectations(t)
}

func TestHandler_InitiateUnknownUser(t *testing.T) {
	r, ctrl, dir := setup()
	id := uuid.New()
	dir.On("GetActiveProfile", mock.Anything, id).Return(nil, errors.ProfileNotFoundError())

	w := request(r, http.MethodPost, "/v1/call/initiate", map[string]string{"profile_id": id.String()})

	assert.Equal(t, http.StatusNotFound, w.Code)
	ctrl.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestHandler_InitiateBadBody(t *testing.T) {
	r, _, _ := setup()

	w := request(r, http.MethodPost, "/v1/call/initiate", map[string]string{"profile_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_InitiateBusy(t *testing.T) {
	r, ctrl, dir := setup()
	bob := &domain.Profile{ID: uuid.New(), Status: domain.ProfileActive}
	dir.On("GetActiveProfile", mock.Anything, bob.ID).Return(bob, nil)
	ctrl.On("Initiate", mock.Anything, mock.Anything).Return(errors.CallBusyError())

	w := request(r, http.MethodPost, "/v1/call/initiate", map[string]string{"profile_id": bob.ID.String()})
	assert.Equal(t, errors.CallBusyError().StatusCode, w.Code)
}

func TestHandler_Intents(t *testing.T) {
	r, ctrl, _ := setup()
	ctrl.On("Accept", mock.Anything).Return(nil)
	ctrl.On("Reject", mock.Anything).Return(nil)
	ctrl.On("End", mock.Anything).Return(nil)
	ctrl.On("Session").Return(call.Session{Status: call.StatusIdle})

	for _, path := range []string{"/v1/call/accept", "/v1/call/reject", "/v1/call/end"} {
		w := request(r, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	ctrl.AssertExpectations(t)
}

func TestHandler_MuteAndSession(t *testing.T) {
	r, ctrl, _ := setup()
	ctrl.On("ToggleMute").Return(true)
	ctrl.On("Session").Return(call.Session{Status: call.StatusInCall, Muted: true, Duration: 12})

	w := request(r, http.MethodPost, "/v1/call/mute", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"muted":true`)

	w = request(r, http.MethodGet, "/v1/call/session", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duration":12`)
}
