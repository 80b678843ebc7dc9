package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"commhub-backend/pkg/config"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
	"commhub-backend/pkg/resilience"
)

// Result describes an accepted SMS
type Result struct {
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
	Network   string `json:"network,omitempty"`
}

// Sender defines the interface for sending SMS
type Sender interface {
	Send(ctx context.Context, to, body string) (*Result, error)
}

// NewSender returns a Semaphore sender, or a MockSender when no API key is configured
func NewSender(cfg config.SMSConfig, m *metrics.Metrics) Sender {
	if cfg.APIKey == "" {
		logger.Warn("SEMAPHORE_API_KEY not set, SMS will only be logged")
		return &MockSender{}
	}
	return NewSemaphoreSender(cfg, m)
}

// MockSender is a mock implementation for development/testing
type MockSender struct{}

// Send logs the SMS instead of sending it
func (m *MockSender) Send(ctx context.Context, to, body string) (*Result, error) {
	logger.Info("Mock SMS sent",
		zap.String("to", to),
		zap.Int("length", len(body)))
	return &Result{Status: "Mocked"}, nil
}

// SemaphoreSender posts messages to the Semaphore gateway
type SemaphoreSender struct {
	cfg     config.SMSConfig
	client  *http.Client
	breaker *resilience.Breaker
	metrics *metrics.Metrics
}

// NewSemaphoreSender creates a sender for the configured endpoint; m may be nil
func NewSemaphoreSender(cfg config.SMSConfig, m *metrics.Metrics) *SemaphoreSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breakerCfg := resilience.DefaultConfig("semaphore")
	breakerCfg.CallTimeout = timeout

	return &SemaphoreSender{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker(breakerCfg, m),
		metrics: m,
	}
}

// Number formats a mobile number the way Semaphore expects it
func Number(mobile string) string {
	return strings.TrimPrefix(strings.TrimSpace(mobile), "+")
}

// Send posts one message. Gateway rejections (4xx) are not retried.
func (s *SemaphoreSender) Send(ctx context.Context, to, body string) (*Result, error) {
	number := Number(to)
	if number == "" || body == "" {
		return nil, errors.InvalidInputError("SMS needs a recipient and a body")
	}

	form := url.Values{}
	form.Set("apikey", s.cfg.APIKey)
	form.Set("number", number)
	form.Set("message", body)
	if s.cfg.SenderName != "" {
		form.Set("sendername", s.cfg.SenderName)
	}

	var result *Result
	err := s.breaker.Execute(ctx, "send", func(ctx context.Context) error {
		res, err := s.post(ctx, form)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		s.metrics.RecordSMSDispatch("failed")
		logger.Error("Semaphore dispatch failed",
			zap.String("number", number),
			zap.Error(err))
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.UpstreamError("Failed to send SMS", err)
	}

	s.metrics.RecordSMSDispatch("sent")
	logger.Info("SMS dispatched via Semaphore",
		zap.String("number", number),
		zap.Int64("message_id", result.MessageID),
		zap.String("status", result.Status))
	return result, nil
}

func (s *SemaphoreSender) post(ctx context.Context, form url.Values) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("semaphore returned status %d: %s", resp.StatusCode, payload)
	}
	if resp.StatusCode >= 400 {
		return nil, resilience.Permanent(
			errors.UpstreamError("SMS rejected by gateway", fmt.Errorf("status %d", resp.StatusCode)).
				WithDetails(json.RawMessage(sanitizeBody(payload))),
		)
	}

	return parseResult(payload)
}

// parseResult accepts both the list Semaphore normally returns and a single object
func parseResult(payload []byte) (*Result, error) {
	var list []Result
	if err := json.Unmarshal(payload, &list); err == nil {
		if len(list) == 0 {
			return nil, resilience.Permanent(fmt.Errorf("semaphore accepted no messages"))
		}
		return &list[0], nil
	}

	var single Result
	if err := json.Unmarshal(payload, &single); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("unexpected semaphore response: %w", err))
	}
	return &single, nil
}

func sanitizeBody(payload []byte) []byte {
	if json.Valid(payload) {
		return payload
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}
