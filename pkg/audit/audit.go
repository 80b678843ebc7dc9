package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"commhub-backend/pkg/constants"
)

// SecurityEventType represents the type of security event
type SecurityEventType string

const (
	EventLoginSuccess   SecurityEventType = "LOGIN_SUCCESS"
	EventLoginFailure   SecurityEventType = "LOGIN_FAILURE"
	EventUserCreated    SecurityEventType = "USER_CREATED"
	EventUserSuspended  SecurityEventType = "USER_SUSPENDED"
	EventUserActivated  SecurityEventType = "USER_ACTIVATED"
	EventMessageSentSMS SecurityEventType = "MESSAGE_SENT_SMS"
	EventMessageSentWeb SecurityEventType = "MESSAGE_SENT_WEB"
	EventPolicyChange   SecurityEventType = "POLICY_CHANGE"
	EventAPIKeyRotated  SecurityEventType = "API_KEY_ROTATED"
)

const (
	recentKey  = "audit:recent"
	recentSize = 1000
)

// SecurityEvent represents an audit log entry
type SecurityEvent struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      SecurityEventType `json:"type"`
	ActorID   *uuid.UUID        `json:"actor_id,omitempty"`
	Actor     string            `json:"actor"` // username or email
	IPAddress string            `json:"ip_address"`
	Details   string            `json:"details"`
}

// Logger stores security events in Redis: one list per day kept for the
// retention period, plus a capped list of the most recent events
type Logger struct {
	redisClient *redis.Client
}

// NewLogger creates a new audit logger
func NewLogger(redisClient *redis.Client) *Logger {
	return &Logger{redisClient: redisClient}
}

// Log records an event
func (l *Logger) Log(ctx context.Context, event *SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	dayKey := fmt.Sprintf("audit:events:%s", event.Timestamp.Format("2006-01-02"))

	pipe := l.redisClient.TxPipeline()
	pipe.LPush(ctx, dayKey, eventJSON)
	pipe.Expire(ctx, dayKey, constants.AuditLogRetention)
	pipe.LPush(ctx, recentKey, eventJSON)
	pipe.LTrim(ctx, recentKey, 0, recentSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}

	return nil
}

// Recent returns up to limit events, newest first
func (l *Logger) Recent(ctx context.Context, limit int) ([]*SecurityEvent, error) {
	if limit <= 0 || limit > recentSize {
		limit = recentSize
	}

	raw, err := l.redisClient.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}

	return decode(raw), nil
}

// ForDay returns the events recorded on day, newest first
func (l *Logger) ForDay(ctx context.Context, day time.Time) ([]*SecurityEvent, error) {
	key := fmt.Sprintf("audit:events:%s", day.UTC().Format("2006-01-02"))
	raw, err := l.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	return decode(raw), nil
}

func decode(raw []string) []*SecurityEvent {
	events := make([]*SecurityEvent, 0, len(raw))
	for _, item := range raw {
		var event SecurityEvent
		// skip entries written by an incompatible version
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events
}

// LoginSuccess builds a LOGIN_SUCCESS event
func LoginSuccess(userID uuid.UUID, actor, ip string) *SecurityEvent {
	return &SecurityEvent{Type: EventLoginSuccess, ActorID: &userID, Actor: actor, IPAddress: ip, Details: "User signed in"}
}

// LoginFailure builds a LOGIN_FAILURE event; the actor is the attempted identifier
func LoginFailure(identifier, ip, reason string) *SecurityEvent {
	return &SecurityEvent{Type: EventLoginFailure, Actor: identifier, IPAddress: ip, Details: reason}
}

// UserCreated builds a USER_CREATED event
func UserCreated(userID uuid.UUID, actor, ip string) *SecurityEvent {
	return &SecurityEvent{Type: EventUserCreated, ActorID: &userID, Actor: actor, IPAddress: ip, Details: "Account registered, awaiting approval"}
}

// AdminAction builds an event for an administrator acting on another account
func AdminAction(eventType SecurityEventType, adminID uuid.UUID, admin, ip, details string) *SecurityEvent {
	return &SecurityEvent{Type: eventType, ActorID: &adminID, Actor: admin, IPAddress: ip, Details: details}
}

// MessageSent builds a MESSAGE_SENT_SMS or MESSAGE_SENT_WEB event
func MessageSent(sms bool, senderID uuid.UUID, sender, recipient string) *SecurityEvent {
	eventType := EventMessageSentWeb
	if sms {
		eventType = EventMessageSentSMS
	}
	return &SecurityEvent{Type: eventType, ActorID: &senderID, Actor: sender, Details: "Message sent to " + recipient}
}
