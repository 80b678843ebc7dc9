package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the delivery channel of a message
type MessageType string

const (
	MessageSMS    MessageType = "SMS"
	MessageWeb    MessageType = "WEB"
	MessageSystem MessageType = "SYSTEM"
)

// MessageStatus tracks delivery progress
type MessageStatus string

const (
	MessageSent      MessageStatus = "SENT"
	MessageDelivered MessageStatus = "DELIVERED"
	MessageFailed    MessageStatus = "FAILED"
	MessageRead      MessageStatus = "READ"
	MessagePending   MessageStatus = "PENDING"
)

// Message is one entry of a thread.
// Stored in Cassandra, partitioned by thread key
type Message struct {
	ID                 uuid.UUID     `json:"id"`
	ThreadKey          string        `json:"thread_key"`
	Bucket             int           `json:"-"`
	SenderID           uuid.UUID     `json:"sender_id"`
	RecipientProfileID *uuid.UUID    `json:"recipient_profile_id,omitempty"`
	RecipientAddress   string        `json:"recipient_address,omitempty"`
	Body               string        `json:"body"`
	Type               MessageType   `json:"type"`
	Status             MessageStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
}

// SendMessageRequest is the payload of POST /v1/messages
type SendMessageRequest struct {
	To   PartyRef `json:"to" binding:"required"`
	Body string   `json:"body" binding:"required,min=1,max=10000"`
}

// ThreadKey derives a stable partition key for the conversation between
// owner and a party. Web threads are symmetric between both profiles.
func ThreadKey(owner uuid.UUID, p Party) string {
	switch v := p.(type) {
	case SystemUser:
		a, b := owner.String(), v.Profile.ID.String()
		if a > b {
			a, b = b, a
		}
		return "web:" + a + ":" + b
	case ExternalContact:
		return "sms:" + owner.String() + ":" + v.Mobile
	}
	return ""
}

// CalculateBucket returns the monthly partition bucket (YYYYMM) for t
func CalculateBucket(t time.Time) int {
	t = t.UTC()
	return t.Year()*100 + int(t.Month())
}
