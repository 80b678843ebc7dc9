package message

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

	"commhub-backend/internal/domain"
	"commhub-backend/internal/middleware"
	"commhub-backend/internal/service/message"
	"commhub-backend/pkg/errors"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Send(ctx context.Context, input *message.SendInput) (*domain.Message, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockService) Thread(ctx context.Context, ownerID uuid.UUID, ref domain.PartyRef, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, ownerID, ref, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockService) MarkRead(ctx context.Context, readerID uuid.UUID, ref domain.PartyRef) (int, error) {
	args := m.Called(ctx, readerID, ref)
	return args.Int(0), args.Error(1)
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

func setup(userID uuid.UUID) (*gin.Engine, *MockService, *MockDirectory) {
	gin.SetMode(gin.TestMode)
	svc := new(MockService)
	dir := new(MockDirectory)
	h := NewHandler(svc, dir)

	r := gin.New()
	g := r.Group("/v1/messages", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Next()
	})
	g.POST("", h.Send)
	g.GET("/thread", h.Thread)
	g.POST("/read", h.MarkRead)
	return r, svc, dir
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

func TestHandler_SendSMS(t *testing.T) {
	alice := &domain.Profile{ID: uuid.New(), Username: "alice", Status: domain.ProfileActive}
	r, svc, dir := setup(alice.ID)

	dir.On("GetActiveProfile", mock.Anything, alice.ID).Return(alice, nil)
	svc.On("Send", mock.Anything, mock.MatchedBy(func(in *message.SendInput) bool {
		return in.Sender == alice && in.To.Kind == domain.PartyExternalContact && in.To.Mobile == "+639171234567"
	})).Return(&domain.Message{ID: uuid.New(), Type: domain.MessageSMS, Status: domain.MessagePending}, nil)

	w := request(r, http.MethodPost, "/v1/messages", map[string]interface{}{
		"to":   map[string]string{"kind": "external_contact", "mobile": "+639171234567"},
		"body": "hello",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"PENDING"`)
	svc.AssertExpectations(t)
}

func TestHandler_SendSuspendedSender(t *testing.T) {
	userID := uuid.New()
	r, svc, dir := setup(userID)
	dir.On("GetActiveProfile", mock.Anything, userID).Return(nil, errors.ProfileNotFoundError())

	w := request(r, http.MethodPost, "/v1/messages", map[string]interface{}{
		"to":   map[string]string{"kind": "external_contact", "mobile": "+639171234567"},
		"body": "hello",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandler_SendInvalidKind(t *testing.T) {
	alice := &domain.Profile{ID: uuid.New(), Status: domain.ProfileActive}
	r, _, dir := setup(alice.ID)
	dir.On("GetActiveProfile", mock.Anything, alice.ID).Return(alice, nil)

	w := request(r, http.MethodPost, "/v1/messages", map[string]interface{}{
		"to":   map[string]string{"kind": "fax"},
		"body": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Thread(t *testing.T) {
	userID, peer := uuid.New(), uuid.New()
	r, svc, _ := setup(userID)
	svc.On("Thread", mock.Anything, userID, domain.PartyRef{Kind: domain.PartySystemUser, ProfileID: &peer}, 5).
		Return([]*domain.Message{{ID: uuid.New()}}, nil)

	w := request(r, http.MethodGet, "/v1/messages/thread?kind=system_user&profile_id="+peer.String()+"&limit=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestHandler_ThreadBadQuery(t *testing.T) {
	r, _, _ := setup(uuid.New())

	w := request(r, http.MethodGet, "/v1/messages/thread?kind=system_user&profile_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodGet, "/v1/messages/thread", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_MarkRead(t *testing.T) {
	userID, peer := uuid.New(), uuid.New()
	r, svc, _ := setup(userID)
	svc.On("MarkRead", mock.Anything, userID, domain.PartyRef{Kind: domain.PartySystemUser, ProfileID: &peer}).Return(3, nil)

	w := request(r, http.MethodPost, "/v1/messages/read", map[string]interface{}{
		"kind": "system_user", "profile_id": peer.String(),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"updated":3`)
}
