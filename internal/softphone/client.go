// Package softphone runs a headless calling client: it signs in to the
// messenger API, drives a call.Controller and exposes call events to a local UI.
package softphone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/response"
)

// Client talks to the messenger REST API on behalf of the signed-in user.
// It implements call.Directory.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	profile      *domain.Profile
}

// NewClient creates an API client for baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type tokenPair struct {
	Profile      *domain.ProfileResponse `json:"user"`
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token"`
	ExpiresIn    int64                   `json:"expires_in"`
}

// SignIn authenticates and remembers the token pair
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Profile, error) {
	var pair tokenPair
	err := c.do(ctx, http.MethodPost, "/v1/auth/signin", false, map[string]string{
		"email":    email,
		"password": password,
	}, &pair)
	if err != nil {
		return nil, err
	}
	if pair.Profile == nil {
		return nil, errors.UpstreamError("Sign-in response has no profile", nil)
	}
	return c.store(&pair), nil
}

// Refresh rotates the token pair
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	refreshToken := c.refreshToken
	c.mu.RUnlock()
	if refreshToken == "" {
		return errors.UnauthorizedError("Not signed in")
	}

	var pair tokenPair
	if err := c.do(ctx, http.MethodPost, "/v1/auth/refresh", false, map[string]string{
		"refresh_token": refreshToken,
	}, &pair); err != nil {
		return err
	}
	c.store(&pair)
	return nil
}

// SignOut revokes the current tokens
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.RLock()
	refreshToken := c.refreshToken
	c.mu.RUnlock()

	return c.do(ctx, http.MethodPost, "/v1/auth/signout", true, map[string]string{
		"refresh_token": refreshToken,
	}, nil)
}

// AccessToken returns the current access token
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Profile returns the signed-in profile
func (c *Client) Profile() *domain.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// GetActiveProfile loads a profile from the directory; inactive accounts are not found
func (c *Client) GetActiveProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var resp domain.ProfileResponse
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+id.String(), true, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != domain.ProfileActive {
		return nil, errors.ProfileNotFoundError()
	}
	return resp.ToProfile(), nil
}

func (c *Client) store(pair *tokenPair) *domain.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = pair.AccessToken
	c.refreshToken = pair.RefreshToken
	if pair.Profile != nil {
		c.profile = pair.Profile.ToProfile()
	}
	return c.profile
}

// do sends a JSON request and decodes the data of the response envelope into out.
// Error envelopes come back as AppErrors carrying the server's code and status.
func (c *Client) do(ctx context.Context, method, path string, authed bool, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "Failed to encode request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "Failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.UpstreamError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool                  `json:"success"`
		Data    json.RawMessage       `json:"data"`
		Error   *response.ErrorDetail `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return errors.UpstreamError(fmt.Sprintf("Invalid response from %s", path), err)
	}

	if !envelope.Success || resp.StatusCode >= http.StatusBadRequest {
		if envelope.Error != nil {
			return errors.NewWithStatus(errors.ErrorCode(envelope.Error.Code), envelope.Error.Message, resp.StatusCode)
		}
		return errors.UpstreamError(fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode), nil)
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return errors.UpstreamError(fmt.Sprintf("Invalid data from %s", path), err)
	}
	return nil
}
