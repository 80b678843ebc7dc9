package message

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/audit"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/sms"
)

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Save(ctx context.Context, message *domain.Message) error {
	return m.Called(ctx, message).Error(0)
}

func (m *MockMessageRepository) UpdateStatus(ctx context.Context, message *domain.Message, status domain.MessageStatus) error {
	return m.Called(ctx, message, status).Error(0)
}

func (m *MockMessageRepository) GetThread(ctx context.Context, threadKey string, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, threadKey, limit)
	return args.Get(0).([]*domain.Message), args.Error(1)
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

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Send(ctx context.Context, topic string, payload []byte) error {
	return m.Called(ctx, topic, payload).Error(0)
}

type MockSMSSender struct {
	mock.Mock
}

func (m *MockSMSSender) Send(ctx context.Context, to, body string) (*sms.Result, error) {
	args := m.Called(ctx, to, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sms.Result), args.Error(1)
}

type auditRecorder struct {
	events chan *audit.SecurityEvent
}

func (a *auditRecorder) Log(ctx context.Context, event *audit.SecurityEvent) error {
	a.events <- event
	return nil
}

type fixture struct {
	repo      *MockMessageRepository
	directory *MockDirectory
	publisher *MockPublisher
	sender    *MockSMSSender
	audit     *auditRecorder
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		repo:      new(MockMessageRepository),
		directory: new(MockDirectory),
		publisher: new(MockPublisher),
		sender:    new(MockSMSSender),
		audit:     &auditRecorder{events: make(chan *audit.SecurityEvent, 8)},
	}
	f.service = NewService(f.repo, f.directory, f.publisher, f.sender, f.audit, nil)
	t.Cleanup(f.service.Close)
	return f
}

func user(name string) *domain.Profile {
	return &domain.Profile{ID: uuid.New(), Username: name, Email: name + "@example.com", Role: domain.RoleUser, Status: domain.ProfileActive}
}

func TestSend_WebMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")

	f.directory.On("GetActiveProfile", ctx, bob.ID).Return(bob, nil)
	f.repo.On("Save", ctx, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.publisher.On("Send", ctx, "realtime-messages:"+bob.ID.String(), mock.Anything).Return(nil)

	msg, err := f.service.Send(ctx, &SendInput{
		Sender: alice,
		To:     domain.PartyRef{Kind: domain.PartySystemUser, ProfileID: &bob.ID},
		Body:   "  <b>hello</b> bob ",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MessageWeb, msg.Type)
	assert.Equal(t, domain.MessageSent, msg.Status)
	assert.Equal(t, "hello bob", msg.Body)
	assert.Equal(t, bob.ID, *msg.RecipientProfileID)
	assert.Equal(t, domain.ThreadKey(bob.ID, domain.SystemUser{Profile: alice}), msg.ThreadKey)

	payload := f.publisher.Calls[0].Arguments.Get(2).([]byte)
	var pushed domain.Message
	require.NoError(t, json.Unmarshal(payload, &pushed))
	assert.Equal(t, msg.ID, pushed.ID)

	event := <-f.audit.events
	assert.Equal(t, audit.EventMessageSentWeb, event.Type)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestSend_WebPublishFailureStillStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")

	f.directory.On("GetActiveProfile", ctx, bob.ID).Return(bob, nil)
	f.repo.On("Save", ctx, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.publisher.On("Send", ctx, mock.Anything, mock.Anything).Return(assert.AnError)

	msg, err := f.service.Send(ctx, &SendInput{
		Sender: alice,
		To:     domain.PartyRef{Kind: domain.PartySystemUser, ProfileID: &bob.ID},
		Body:   "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageSent, msg.Status)
}

func TestSend_SMSDispatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("alice")

	f.repo.On("Save", ctx, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.sender.On("Send", mock.Anything, "+639171234567", "Your order shipped").
		Return(&sms.Result{MessageID: 42, Status: "Queued"}, nil)

	updated := make(chan domain.MessageStatus, 1)
	f.repo.On("UpdateStatus", mock.Anything, mock.AnythingOfType("*domain.Message"), mock.Anything).
		Run(func(args mock.Arguments) { updated <- args.Get(2).(domain.MessageStatus) }).
		Return(nil)

	msg, err := f.service.Send(ctx, &SendInput{
		Sender: alice,
		To:     domain.PartyRef{Kind: domain.PartyExternalContact, Mobile: "+63 917 123 4567", Name: "Carol"},
		Body:   "Your order shipped",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageSMS, msg.Type)
	assert.Equal(t, domain.MessagePending, msg.Status)
	assert.Equal(t, "+639171234567", msg.RecipientAddress)
	assert.Nil(t, msg.RecipientProfileID)

	select {
	case status := <-updated:
		assert.Equal(t, domain.MessageSent, status)
	case <-time.After(2 * time.Second):
		t.Fatal("SMS status was not updated")
	}

	// the caller's copy is not touched by the dispatcher
	assert.Equal(t, domain.MessagePending, msg.Status)

	event := <-f.audit.events
	assert.Equal(t, audit.EventMessageSentSMS, event.Type)
	assert.Contains(t, event.Details, "Carol")
	f.publisher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestSend_SMSGatewayFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.On("Save", ctx, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.UpstreamError("rejected", nil))

	updated := make(chan domain.MessageStatus, 1)
	f.repo.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { updated <- args.Get(2).(domain.MessageStatus) }).
		Return(nil)

	_, err := f.service.Send(ctx, &SendInput{
		Sender: user("alice"),
		To:     domain.PartyRef{Kind: domain.PartyExternalContact, Mobile: "09171234567"},
		Body:   "ping",
	})
	require.NoError(t, err)

	select {
	case status := <-updated:
		assert.Equal(t, domain.MessageFailed, status)
	case <-time.After(2 * time.Second):
		t.Fatal("SMS status was not updated")
	}
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("alice")

	_, err := f.service.Send(ctx, &SendInput{Sender: alice, To: domain.PartyRef{Kind: domain.PartyExternalContact, Mobile: "123"}, Body: "x"})
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	_, err = f.service.Send(ctx, &SendInput{Sender: alice, To: domain.PartyRef{Kind: domain.PartySystemUser}, Body: "x"})
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	_, err = f.service.Send(ctx, &SendInput{Sender: alice, To: domain.PartyRef{Kind: domain.PartyExternalContact, Mobile: "09171234567"}, Body: "<p></p>"})
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	_, err = f.service.Send(ctx, &SendInput{
		Sender: alice,
		To:     domain.PartyRef{Kind: domain.PartyExternalContact, Mobile: "09171234567"},
		Body:   strings.Repeat("a", 1601),
	})
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	f.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSend_CannotMessageSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("alice")

	f.directory.On("GetActiveProfile", ctx, alice.ID).Return(alice, nil)

	_, err := f.service.Send(ctx, &SendInput{Sender: alice, To: domain.PartyRef{Kind: domain.PartySystemUser, ProfileID: &alice.ID}, Body: "me"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestSend_InactiveRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	f.directory.On("GetActiveProfile", ctx, id).Return(nil, errors.ProfileNotFoundError())

	_, err := f.service.Send(ctx, &SendInput{Sender: user("alice"), To: domain.PartyRef{Kind: domain.PartySystemUser, ProfileID: &id}, Body: "hi"})
	assert.True(t, errors.Is(err, errors.ErrCodeProfileNotFound))
}

func TestThread_ClampsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("alice")
	bobID := uuid.New()
	key := domain.ThreadKey(alice.ID, domain.SystemUser{Profile: &domain.Profile{ID: bobID}})

	f.repo.On("GetThread", ctx, key, 100).Return([]*domain.Message{}, nil)

	messages, err := f.service.Thread(ctx, alice.ID, domain.PartyRef{Kind: domain.PartySystemUser, ProfileID: &bobID}, 5000)
	require.NoError(t, err)
	assert.Empty(t, messages)
	f.directory.AssertNotCalled(t, "GetActiveProfile", mock.Anything, mock.Anything)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reader := uuid.New()
	other := uuid.New()
	key := domain.ThreadKey(reader, domain.SystemUser{Profile: &domain.Profile{ID: other}})

	incoming := &domain.Message{ID: uuid.New(), SenderID: other, RecipientProfileID: &reader, Status: domain.MessageSent}
	alreadyRead := &domain.Message{ID: uuid.New(), SenderID: other, RecipientProfileID: &reader, Status: domain.MessageRead}
	outgoing := &domain.Message{ID: uuid.New(), SenderID: reader, RecipientProfileID: &other, Status: domain.MessageSent}

	f.repo.On("GetThread", ctx, key, 100).Return([]*domain.Message{incoming, alreadyRead, outgoing}, nil)
	f.repo.On("UpdateStatus", ctx, incoming, domain.MessageRead).Return(nil)

	n, err := f.service.MarkRead(ctx, reader, domain.PartyRef{Kind: domain.PartySystemUser, ProfileID: &other})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.repo.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

func TestSend_SMSAfterCloseMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.On("Save", ctx, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.repo.On("UpdateStatus", ctx, mock.AnythingOfType("*domain.Message"), domain.MessageFailed).Return(nil)

	f.service.Close()

	msg, err := f.service.Send(ctx, &SendInput{
		Sender: user("alice"),
		To:     domain.PartyRef{Kind: domain.PartyExternalContact, Mobile: "09171234567"},
		Body:   "late",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageSMS, msg.Type)

	f.repo.AssertCalled(t, "UpdateStatus", ctx, mock.AnythingOfType("*domain.Message"), domain.MessageFailed)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestClose_ConcurrentWithSend(t *testing.T) {
	f := newFixture(t)
	f.audit.events = make(chan *audit.SecurityEvent, 32)
	ctx := context.Background()

	f.repo.On("Save", ctx, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.repo.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(&sms.Result{MessageID: 1, Status: "Queued"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Send(ctx, &SendInput{
				Sender: user("alice"),
				To:     domain.PartyRef{Kind: domain.PartyExternalContact, Mobile: "09171234567"},
				Body:   "race",
			})
			assert.NoError(t, err)
		}()
	}
	f.service.Close()
	wg.Wait()
}
