package message

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/audit"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
	"commhub-backend/pkg/sanitize"
	"commhub-backend/pkg/sms"
)

// MessageRepository interface
type MessageRepository interface {
	Save(ctx context.Context, message *domain.Message) error
	UpdateStatus(ctx context.Context, message *domain.Message, status domain.MessageStatus) error
	GetThread(ctx context.Context, threadKey string, limit int) ([]*domain.Message, error)
}

// Directory resolves system users
type Directory interface {
	GetActiveProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
}

// Publisher pushes live WEB messages to recipients
type Publisher interface {
	Send(ctx context.Context, topic string, payload []byte) error
}

// AuditLogger records security events
type AuditLogger interface {
	Log(ctx context.Context, event *audit.SecurityEvent) error
}

// dispatchTimeout bounds one SMS hand-off including retries
const dispatchTimeout = 30 * time.Second

// Service stores messages and routes them to web chat or SMS
type Service struct {
	messageRepo MessageRepository
	directory   Directory
	publisher   Publisher
	sender      sms.Sender
	audit       AuditLogger
	metrics     *metrics.Metrics

	queueMu sync.RWMutex
	closed  bool
	queue   chan *domain.Message
	wg      sync.WaitGroup
}

// NewService creates the message service and starts the SMS dispatcher
func NewService(
	messageRepo MessageRepository,
	directory Directory,
	publisher Publisher,
	sender sms.Sender,
	auditLogger AuditLogger,
	m *metrics.Metrics,
) *Service {
	s := &Service{
		messageRepo: messageRepo,
		directory:   directory,
		publisher:   publisher,
		sender:      sender,
		audit:       auditLogger,
		metrics:     m,
		queue:       make(chan *domain.Message, constants.SMSDispatchQueueSize),
	}

	s.wg.Add(1)
	go s.dispatch()

	return s
}

// Close stops accepting SMS and waits for the backlog to drain
func (s *Service) Close() {
	s.queueMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.queueMu.Unlock()
	s.wg.Wait()
}

// SendInput contains an outgoing message
type SendInput struct {
	Sender *domain.Profile
	To     domain.PartyRef
	Body   string
}

// Send stores a message for a party. WEB messages are SENT immediately and
// pushed to the recipient; SMS messages stay PENDING until the gateway
// answers.
func (s *Service) Send(ctx context.Context, input *SendInput) (*domain.Message, error) {
	party, err := s.ResolveParty(ctx, input.To)
	if err != nil {
		return nil, err
	}

	body := sanitize.Text(input.Body)
	if body == "" {
		return nil, errors.ValidationError("Message body is required")
	}
	if len(body) > constants.MaxMessageLength {
		return nil, errors.ValidationError("Message is too long")
	}

	message := &domain.Message{
		ID:        uuid.New(),
		ThreadKey: domain.ThreadKey(input.Sender.ID, party),
		SenderID:  input.Sender.ID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	message.Bucket = domain.CalculateBucket(message.CreatedAt)

	switch p := party.(type) {
	case domain.SystemUser:
		if p.Profile.ID == input.Sender.ID {
			return nil, errors.InvalidInputError("Cannot message yourself")
		}
		recipient := p.Profile.ID
		message.RecipientProfileID = &recipient
		message.Type = domain.MessageWeb
		message.Status = domain.MessageSent
	case domain.ExternalContact:
		if len(body) > constants.MaxSMSLength {
			return nil, errors.ValidationError("SMS is too long")
		}
		message.RecipientAddress = p.Mobile
		message.Type = domain.MessageSMS
		message.Status = domain.MessagePending
	}

	if err := s.messageRepo.Save(ctx, message); err != nil {
		return nil, errors.DatabaseError(err)
	}
	s.metrics.RecordMessage(string(message.Type))

	if message.Type == domain.MessageWeb {
		s.publish(ctx, message)
	} else {
		s.enqueue(ctx, message)
	}

	s.record(ctx, audit.MessageSent(message.Type == domain.MessageSMS, input.Sender.ID, input.Sender.Username, party.DisplayName()))

	return message, nil
}

// ResolveParty turns a request reference into a Party
func (s *Service) ResolveParty(ctx context.Context, ref domain.PartyRef) (domain.Party, error) {
	switch ref.Kind {
	case domain.PartySystemUser:
		if ref.ProfileID == nil {
			return nil, errors.ValidationError("profile_id is required for a system user")
		}
		profile, err := s.directory.GetActiveProfile(ctx, *ref.ProfileID)
		if err != nil {
			return nil, err
		}
		return domain.SystemUser{Profile: profile}, nil
	case domain.PartyExternalContact:
		mobile := sanitize.Mobile(ref.Mobile)
		if !sanitize.ValidMobile(mobile) {
			return nil, errors.ValidationError("Invalid mobile number")
		}
		return domain.ExternalContact{Mobile: mobile, Name: sanitize.Text(ref.Name)}, nil
	}
	return nil, errors.ValidationError("Unknown party kind")
}

// Thread lists the newest messages between owner and a party, newest first
func (s *Service) Thread(ctx context.Context, ownerID uuid.UUID, ref domain.PartyRef, limit int) ([]*domain.Message, error) {
	party, err := s.threadParty(ctx, ref)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}

	messages, err := s.messageRepo.GetThread(ctx, domain.ThreadKey(ownerID, party), limit)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	return messages, nil
}

// MarkRead flags every WEB message addressed to reader in the thread as READ.
// It returns how many messages changed.
func (s *Service) MarkRead(ctx context.Context, readerID uuid.UUID, ref domain.PartyRef) (int, error) {
	messages, err := s.Thread(ctx, readerID, ref, constants.MaxPageSize)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, m := range messages {
		if m.RecipientProfileID == nil || *m.RecipientProfileID != readerID || m.Status == domain.MessageRead {
			continue
		}
		if err := s.messageRepo.UpdateStatus(ctx, m, domain.MessageRead); err != nil {
			return changed, errors.DatabaseError(err)
		}
		changed++
	}
	return changed, nil
}

// threadParty resolves a reference for reading; system users need not be active
func (s *Service) threadParty(ctx context.Context, ref domain.PartyRef) (domain.Party, error) {
	if ref.Kind == domain.PartySystemUser && ref.ProfileID != nil {
		return domain.SystemUser{Profile: &domain.Profile{ID: *ref.ProfileID}}, nil
	}
	return s.ResolveParty(ctx, ref)
}

func (s *Service) publish(ctx context.Context, message *domain.Message) {
	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal message for live delivery", zap.Error(err))
		return
	}

	topic := constants.RealtimeMessageTopicPrefix + message.RecipientProfileID.String()
	if err := s.publisher.Send(ctx, topic, payload); err != nil {
		// stored anyway, the recipient sees it on the next thread read
		logger.Warn("Failed to publish message",
			zap.String("message_id", message.ID.String()),
			zap.Error(err))
	}
}

// enqueue hands a copy to the dispatcher so the caller's value is never mutated
func (s *Service) enqueue(ctx context.Context, message *domain.Message) {
	queued := *message

	// queueMu is held across the send so Close cannot close the queue under it
	s.queueMu.RLock()
	accepted := false
	if !s.closed {
		select {
		case s.queue <- &queued:
			accepted = true
		default:
		}
	}
	closed := s.closed
	s.queueMu.RUnlock()

	if !accepted {
		if closed {
			logger.Warn("SMS dispatcher closed, dropping message", zap.String("message_id", message.ID.String()))
		} else {
			logger.Warn("SMS queue full, dropping message", zap.String("message_id", message.ID.String()))
		}
		s.metrics.RecordSMSDispatch("dropped")
		if err := s.messageRepo.UpdateStatus(ctx, message, domain.MessageFailed); err != nil {
			logger.Error("Failed to mark dropped SMS", zap.String("message_id", message.ID.String()), zap.Error(err))
		}
	}
}

func (s *Service) dispatch() {
	defer s.wg.Done()

	for message := range s.queue {
		s.deliver(message)
	}
}

func (s *Service) deliver(message *domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	status := domain.MessageSent
	result, err := s.sender.Send(ctx, message.RecipientAddress, message.Body)
	if err != nil {
		status = domain.MessageFailed
		logger.Warn("SMS dispatch failed",
			zap.String("message_id", message.ID.String()),
			zap.Error(err))
	} else {
		logger.Debug("SMS accepted by gateway",
			zap.String("message_id", message.ID.String()),
			zap.Int64("gateway_id", result.MessageID),
			zap.String("gateway_status", result.Status))
	}

	if err := s.messageRepo.UpdateStatus(ctx, message, status); err != nil {
		logger.Error("Failed to update SMS status",
			zap.String("message_id", message.ID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, event *audit.SecurityEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event); err != nil {
		logger.Warn("Failed to write audit event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
