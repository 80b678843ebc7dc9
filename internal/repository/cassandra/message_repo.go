package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"commhub-backend/internal/domain"
)

// maxThreadBuckets limits how many monthly buckets a thread read walks back
const maxThreadBuckets = 12

// MessageRepository handles message storage in Cassandra.
// Threads are partitioned by (thread_key, bucket) with monthly buckets.
type MessageRepository struct {
	session *gocql.Session
	now     func() time.Time
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session, now: time.Now}
}

// Schema is the CQL for the messages table
const Schema = `
	CREATE TABLE IF NOT EXISTS messages (
		thread_key text,
		bucket int,
		created_at timestamp,
		message_id uuid,
		sender_id uuid,
		recipient_profile_id uuid,
		recipient_address text,
		body text,
		message_type text,
		status text,
		PRIMARY KEY ((thread_key, bucket), created_at, message_id)
	) WITH CLUSTERING ORDER BY (created_at DESC, message_id DESC)
`

// Migrate creates the messages table
func (r *MessageRepository) Migrate(ctx context.Context) error {
	if err := r.session.Query(Schema).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}
	return nil
}

func toCQL(id uuid.UUID) gocql.UUID {
	return gocql.UUID(id)
}

// Save inserts a new message into Cassandra
func (r *MessageRepository) Save(ctx context.Context, message *domain.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = r.now()
	}
	if message.Bucket == 0 {
		message.Bucket = domain.CalculateBucket(message.CreatedAt)
	}
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}

	var recipient *gocql.UUID
	if message.RecipientProfileID != nil {
		id := toCQL(*message.RecipientProfileID)
		recipient = &id
	}

	query := `
		INSERT INTO messages (
			thread_key, bucket, created_at, message_id, sender_id,
			recipient_profile_id, recipient_address, body, message_type, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		message.ThreadKey,
		message.Bucket,
		message.CreatedAt,
		toCQL(message.ID),
		toCQL(message.SenderID),
		recipient,
		message.RecipientAddress,
		message.Body,
		string(message.Type),
		string(message.Status),
	).WithContext(ctx).Exec()

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// UpdateStatus sets the delivery status of a stored message
func (r *MessageRepository) UpdateStatus(ctx context.Context, message *domain.Message, status domain.MessageStatus) error {
	query := `
		UPDATE messages SET status = ?
		WHERE thread_key = ? AND bucket = ? AND created_at = ? AND message_id = ?
	`

	err := r.session.Query(query,
		string(status),
		message.ThreadKey,
		message.Bucket,
		message.CreatedAt,
		toCQL(message.ID),
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}

	message.Status = status
	return nil
}

// GetByBucket retrieves up to limit messages of one bucket, newest first
func (r *MessageRepository) GetByBucket(ctx context.Context, threadKey string, bucket, limit int) ([]*domain.Message, error) {
	query := `
		SELECT thread_key, bucket, created_at, message_id, sender_id,
		       recipient_profile_id, recipient_address, body, message_type, status
		FROM messages
		WHERE thread_key = ? AND bucket = ?
		LIMIT ?
	`

	iter := r.session.Query(query, threadKey, bucket, limit).WithContext(ctx).Iter()

	var messages []*domain.Message
	for {
		var (
			message   domain.Message
			id        gocql.UUID
			sender    gocql.UUID
			recipient *gocql.UUID
			msgType   string
			status    string
		)
		if !iter.Scan(
			&message.ThreadKey,
			&message.Bucket,
			&message.CreatedAt,
			&id,
			&sender,
			&recipient,
			&message.RecipientAddress,
			&message.Body,
			&msgType,
			&status,
		) {
			break
		}
		message.ID = uuid.UUID(id)
		message.SenderID = uuid.UUID(sender)
		if recipient != nil {
			profileID := uuid.UUID(*recipient)
			message.RecipientProfileID = &profileID
		}
		message.Type = domain.MessageType(msgType)
		message.Status = domain.MessageStatus(status)
		messages = append(messages, &message)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return messages, nil
}

// GetThread retrieves the newest limit messages of a thread, walking back
// through monthly buckets. Results are newest first.
func (r *MessageRepository) GetThread(ctx context.Context, threadKey string, limit int) ([]*domain.Message, error) {
	var all []*domain.Message

	for _, bucket := range RecentBuckets(r.now(), maxThreadBuckets) {
		messages, err := r.GetByBucket(ctx, threadKey, bucket, limit-len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, messages...)
		if len(all) >= limit {
			break
		}
	}

	return all, nil
}

// RecentBuckets lists n monthly buckets ending with the one containing t, newest first
func RecentBuckets(t time.Time, n int) []int {
	buckets := make([]int, 0, n)
	current := time.Date(t.UTC().Year(), t.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		buckets = append(buckets, domain.CalculateBucket(current))
		current = current.AddDate(0, -1, 0)
	}
	return buckets
}
