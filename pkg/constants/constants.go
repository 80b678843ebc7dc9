// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait is how long a peer may stay silent before the connection is dropped
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// JWT-related constants
const (
	AccessTokenExpiry  = 15 * time.Minute
	RefreshTokenExpiry = 24 * time.Hour

	// TokenAudience is the audience claim expected on every access token
	TokenAudience = "commhub-api"
	TokenIssuer   = "commhub-auth"
)

// Database connection constants
const (
	MaxConnLifetime   = 1 * time.Hour
	MaxConnIdleTime   = 30 * time.Minute
	HealthCheckPeriod = 1 * time.Minute
)

// Security and rate limiting constants
const (
	// MaxFailedLoginAttempts is the maximum number of failed login attempts before lockout
	MaxFailedLoginAttempts = 5

	// AccountLockDuration is the duration an account remains locked after too many failed attempts
	AccountLockDuration = 15 * time.Minute
)

// Audit log constants
const (
	// AuditLogRetention is the duration audit logs are retained
	AuditLogRetention = 90 * 24 * time.Hour // 90 days
)

// Pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1
)

// Validation constants
const (
	MinPasswordLength = 8
	MaxNameLength     = 100
	MaxNotesLength    = 2000
)

// Call-related constants
const (
	// SignalingTopicPrefix prefixes every per-user signaling topic
	SignalingTopicPrefix = "webrtc-signaling:"

	// DefaultCallTimeout ends an outgoing call nobody answered
	DefaultCallTimeout = 45 * time.Second

	// CallTickInterval drives the in-call duration counter
	CallTickInterval = 1 * time.Second

	// MaxSignalingConnections caps concurrent relay sockets per instance
	MaxSignalingConnections = 1000
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed message length
	MaxMessageLength = 10000

	// MaxSMSLength is the longest body Semaphore accepts in one request
	MaxSMSLength = 1600

	// RealtimeMessageTopicPrefix prefixes the per-user live message channel
	RealtimeMessageTopicPrefix = "realtime-messages:"

	// SMSDispatchQueueSize bounds the pending SMS backlog held in memory
	SMSDispatchQueueSize = 256
)
