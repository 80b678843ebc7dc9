package softphone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/errors"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newAPI(t *testing.T, active, other uuid.UUID) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["password"] != "correct-password" {
			writeJSON(w, http.StatusUnauthorized, envelope{Error: map[string]string{
				"code": "INVALID_CREDENTIALS", "message": "Invalid email or password",
			}})
			return
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
			"user":          domain.ProfileResponse{ID: active, Username: "alice", Status: domain.ProfileActive, Role: domain.RoleUser},
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_in":    900,
		}})
	})
	mux.HandleFunc("/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
		}})
	})
	mux.HandleFunc("/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeJSON(w, http.StatusUnauthorized, envelope{Error: map[string]string{"code": "UNAUTHORIZED", "message": "Missing token"}})
			return
		}
		switch r.URL.Path {
		case "/v1/users/" + active.String():
			writeJSON(w, http.StatusOK, envelope{Success: true, Data: domain.ProfileResponse{ID: active, Username: "alice", Status: domain.ProfileActive}})
		case "/v1/users/" + other.String():
			writeJSON(w, http.StatusOK, envelope{Success: true, Data: domain.ProfileResponse{ID: other, Username: "bob", Status: domain.ProfileSuspended}})
		default:
			writeJSON(w, http.StatusNotFound, envelope{Error: map[string]string{"code": "PROFILE_NOT_FOUND", "message": "Profile not found"}})
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SignIn(t *testing.T) {
	active := uuid.New()
	srv := newAPI(t, active, uuid.New())
	client := NewClient(srv.URL+"/", 0)

	profile, err := client.SignIn(context.Background(), "alice@example.com", "correct-password")
	require.NoError(t, err)
	assert.Equal(t, active, profile.ID)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "access-1", client.AccessToken())
	assert.Equal(t, profile, client.Profile())
}

func TestClient_SignInRejected(t *testing.T) {
	srv := newAPI(t, uuid.New(), uuid.New())
	client := NewClient(srv.URL, 0)

	_, err := client.SignIn(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidCreds))
	assert.Equal(t, http.StatusUnauthorized, errors.GetAppError(err).StatusCode)
	assert.Empty(t, client.AccessToken())
}

func TestClient_Refresh(t *testing.T) {
	srv := newAPI(t, uuid.New(), uuid.New())
	client := NewClient(srv.URL, 0)

	assert.Error(t, client.Refresh(context.Background()))

	_, err := client.SignIn(context.Background(), "alice@example.com", "correct-password")
	require.NoError(t, err)
	require.NoError(t, client.Refresh(context.Background()))
	assert.Equal(t, "access-2", client.AccessToken())
	assert.NotNil(t, client.Profile())
}

func TestClient_GetActiveProfile(t *testing.T) {
	active, suspended := uuid.New(), uuid.New()
	srv := newAPI(t, active, suspended)
	client := NewClient(srv.URL, 0)
	_, err := client.SignIn(context.Background(), "alice@example.com", "correct-password")
	require.NoError(t, err)

	profile, err := client.GetActiveProfile(context.Background(), active)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	_, err = client.GetActiveProfile(context.Background(), suspended)
	assert.True(t, errors.Is(err, errors.ErrCodeProfileNotFound))

	_, err = client.GetActiveProfile(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, errors.ErrCodeProfileNotFound))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, 0)

	_, err := client.SignIn(context.Background(), "alice@example.com", "correct-password")
	assert.True(t, errors.Is(err, errors.ErrCodeUpstream))
}
