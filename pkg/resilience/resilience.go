package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

func (s CircuitBreakerState) gauge() int {
	switch s {
	case CircuitBreakerHalfOpen:
		return 1
	case CircuitBreakerOpen:
		return 2
	}
	return 0
}

// Config tunes retries and the breaker of one upstream
type Config struct {
	// Name labels logs and metrics, e.g. "semaphore"
	Name string
	// FailureThreshold consecutive failures open the circuit
	FailureThreshold int
	// OpenTimeout is how long the circuit stays open before probing
	OpenTimeout time.Duration
	// HalfOpenSuccesses probes must succeed to close the circuit again
	HalfOpenSuccesses int
	// MaxAttempts per Execute call, including the first
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// CallTimeout bounds each attempt
	CallTimeout time.Duration
}

// DefaultConfig returns the settings used for external gateways
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		FailureThreshold:  3,
		OpenTimeout:       10 * time.Second,
		HalfOpenSuccesses: 1,
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		CallTimeout:       10 * time.Second,
	}
}

// Breaker wraps calls to one upstream with retry, timeout, and circuit breaker
type Breaker struct {
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenSuccesses   int
}

// NewBreaker creates a closed breaker; m may be nil
func NewBreaker(cfg Config, m *metrics.Metrics) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 1
	}
	b := &Breaker{
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		state:   CircuitBreakerClosed,
	}
	m.SetCircuitState(cfg.Name, 0)
	return b
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. It still counts as a success for
// the breaker since the upstream answered.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Execute runs fn until it succeeds, returns a permanent error, or the
// attempts run out. An open circuit fails fast with SERVICE_UNAVAILABLE.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if !b.allow() {
			logger.Warn("Circuit breaker is OPEN - request blocked",
				zap.String("upstream", b.cfg.Name),
				zap.String("operation", operation),
			)
			return errors.ServiceUnavailableError(fmt.Sprintf("%s temporarily unavailable (circuit breaker open)", b.cfg.Name))
		}

		if attempt > 1 {
			logger.Warn("Upstream operation retry",
				zap.String("upstream", b.cfg.Name),
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		err := b.call(ctx, fn)
		if err == nil {
			b.onSuccess()
			return nil
		}

		var permanent *permanentError
		if stderrors.As(err, &permanent) {
			b.onSuccess()
			return permanent.err
		}

		lastErr = err
		b.onFailure(operation, err)

		if attempt == b.cfg.MaxAttempts {
			break
		}

		backoff := time.Duration(attempt) * b.cfg.InitialBackoff
		if b.cfg.MaxBackoff > 0 && backoff > b.cfg.MaxBackoff {
			backoff = b.cfg.MaxBackoff
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s %s cancelled: %w", b.cfg.Name, operation, ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", b.cfg.Name, operation, b.cfg.MaxAttempts, lastErr)
}

func (b *Breaker) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.cfg.CallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitBreakerOpen {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
		return false
	}
	b.setStateLocked(CircuitBreakerHalfOpen)
	b.halfOpenSuccesses = 0
	logger.Info("Circuit breaker HALF-OPEN - probing upstream", zap.String("upstream", b.cfg.Name))
	return true
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state != CircuitBreakerHalfOpen {
		return
	}
	b.halfOpenSuccesses++
	if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccesses {
		b.setStateLocked(CircuitBreakerClosed)
		logger.Info("Circuit breaker CLOSED - upstream recovered", zap.String("upstream", b.cfg.Name))
	}
}

func (b *Breaker) onFailure(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			logger.Error("Circuit breaker OPEN - too many consecutive failures",
				zap.String("upstream", b.cfg.Name),
				zap.String("operation", operation),
				zap.String("error_type", classifyError(err)),
				zap.Int("consecutive_failures", b.consecutiveFailures),
			)
		}
		b.setStateLocked(CircuitBreakerOpen)
		b.openedAt = b.now()
	}
}

func (b *Breaker) setStateLocked(state CircuitBreakerState) {
	b.state = state
	b.metrics.SetCircuitState(b.cfg.Name, state.gauge())
}

// State returns the current circuit breaker state
func (b *Breaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// classifyError classifies errors for logging
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "status 5"):
		return "upstream_5xx"
	default:
		return "unknown"
	}
}
