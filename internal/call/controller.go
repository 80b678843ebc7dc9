package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
)

// Media captures local audio/video for the controller
type Media interface {
	Acquire(ctx context.Context) (*LocalStream, error)
	Release()
	SetMicrophoneEnabled(enabled bool)
}

// Peer negotiates the peer-to-peer connection for the controller
type Peer interface {
	Open(ctx context.Context, stream *LocalStream) (<-chan PeerEvent, error)
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	ApplyRemoteCandidate(candidate webrtc.ICECandidateInit) error
	Close()
}

// Config tunes the controller
type Config struct {
	// CallTimeout ends an unanswered outgoing call; zero disables it
	CallTimeout time.Duration
	// TickInterval paces OnDurationTick while in a call
	TickInterval time.Duration
}

// DefaultConfig returns a 45 s ring timeout and a one second duration tick
func DefaultConfig() Config {
	return Config{
		CallTimeout:  constants.DefaultCallTimeout,
		TickInterval: constants.CallTickInterval,
	}
}

// Controller is the call session state machine for one local user.
//
// State is guarded by mu. Steps that block on media or negotiation run under
// opMu and re-check the generation counter after each step; every transition
// back to Idle and every call start bumps the generation so results of an
// abandoned step are discarded and their resources closed. The peer
// connection and local media are released under mu before the session
// reads Idle.
type Controller struct {
	cfg       Config
	self      *domain.Profile
	media     Media
	peer      Peer
	transport *Transport
	listener  Listener
	metrics   *metrics.Metrics
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	opMu sync.Mutex

	mu        sync.Mutex
	status    Status
	remote    *domain.Profile
	pending   *IncomingCall
	held      []webrtc.ICECandidateInit // remote candidates received while ringing
	outbox    []webrtc.ICECandidateInit // local candidates gathered before our offer/answer went out
	signaled  bool
	incoming  bool
	startedAt time.Time
	duration  int
	muted     bool
	gen       uint64
	ringTimer *time.Timer
	tickStop  chan struct{}
	closed    bool
}

// NewController wires a controller for self. listener and m may be nil.
func NewController(cfg Config, self *domain.Profile, media Media, peer Peer, transport *Transport, listener Listener, m *metrics.Metrics) *Controller {
	if listener == nil {
		listener = NopListener{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = constants.CallTickInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		cfg:       cfg,
		self:      self,
		media:     media,
		peer:      peer,
		transport: transport,
		listener:  listener,
		metrics:   m,
		log:       logger.With(zap.String("component", "call"), zap.String("user_id", self.ID.String())),
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusIdle,
	}
}

// Start subscribes to inbound signals
func (c *Controller) Start(ctx context.Context) error {
	return c.transport.Listen(ctx, c.handleSignal)
}

// Close ends any call, stops listening and releases resources. Safe to call repeatedly.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.hangup(EndShutdown)
	c.transport.Close()
	c.cancel()
}

// Session returns a snapshot of the current state
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Session{
		Status:      c.status,
		LocalParty:  c.self.ID,
		RemoteParty: c.remote,
		Duration:    c.duration,
		Muted:       c.muted,
	}
	if c.status == StatusInCall && !c.startedAt.IsZero() {
		started := c.startedAt
		s.StartedAt = &started
	}
	if c.pending != nil {
		pending := *c.pending
		s.Pending = &pending
	}
	return s
}

// Initiate calls remote. Only registered users can be called; the request is
// ignored unless the session is idle.
func (c *Controller) Initiate(ctx context.Context, remote domain.Party) error {
	user, ok := remote.(domain.SystemUser)
	if !ok || user.Profile == nil {
		return errors.InvalidInputError("Only registered users can be called")
	}
	if user.Profile.ID == c.self.ID {
		return errors.InvalidInputError("Cannot call yourself")
	}

	var notes notifier
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ServiceUnavailableError("Call controller is closed")
	}
	if c.status != StatusIdle {
		c.log.Debug("Initiate ignored", zap.String("status", string(c.status)))
		c.mu.Unlock()
		return nil
	}
	c.status = StatusCalling
	c.remote = user.Profile
	c.incoming = false
	gen := c.beginLocked()
	notes.add(func() { c.listener.OnStatusChange(StatusCalling) })
	c.mu.Unlock()
	notes.fire()

	c.log.Info("Placing call", zap.String("remote_id", user.Profile.ID.String()))

	var late notifier
	defer late.fire()
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.isCurrent(gen) {
		return nil
	}

	stream, err := c.media.Acquire(ctx)
	if err != nil {
		appErr := c.wrapMediaError(err)
		return c.abortOp(gen, appErr, false, &late)
	}
	if !c.isCurrent(gen) {
		c.peer.Close()
		return nil
	}
	late.add(func() { c.listener.OnLocalStreamReady(stream) })

	events, err := c.peer.Open(ctx, stream)
	if err != nil {
		appErr := wrapNegotiation("Failed to open peer connection", err)
		return c.abortOp(gen, appErr, false, &late)
	}
	go c.consumePeerEvents(gen, events)

	offer, err := c.peer.CreateOffer(ctx)
	if err != nil {
		appErr := wrapNegotiation("Failed to create offer", err)
		return c.abortOp(gen, appErr, false, &late)
	}
	if !c.isCurrent(gen) {
		c.peer.Close()
		return nil
	}

	if err := c.transport.SendOffer(ctx, user.Profile.ID, c.self, offer); err != nil {
		// state advances anyway; the ring timeout cleans up an offer that never arrived
		c.log.Warn("Failed to send offer", zap.Error(err))
		late.add(func() { c.listener.OnError(err) })
	}

	c.markSignaled(gen, true)
	return nil
}

// Accept answers the pending incoming call
func (c *Controller) Accept(ctx context.Context) error {
	var notes notifier
	c.mu.Lock()
	if c.status != StatusRinging || c.pending == nil {
		c.log.Debug("Accept ignored", zap.String("status", string(c.status)))
		c.mu.Unlock()
		return nil
	}
	pending := c.pending
	held := c.held
	c.pending = nil
	c.held = nil
	c.status = StatusInCall
	remote := c.remote
	gen := c.beginLocked()
	notes.add(func() { c.listener.OnStatusChange(StatusInCall) })
	c.mu.Unlock()
	notes.fire()

	c.log.Info("Accepting call", zap.String("remote_id", remote.ID.String()))

	var late notifier
	defer late.fire()
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.isCurrent(gen) {
		return nil
	}

	stream, err := c.media.Acquire(ctx)
	if err != nil {
		appErr := c.wrapMediaError(err)
		return c.abortOp(gen, appErr, true, &late)
	}
	c.mu.Lock()
	current, muted := gen == c.gen, c.muted
	c.mu.Unlock()
	if !current {
		c.peer.Close()
		return nil
	}
	// muted before capture finished
	if muted {
		stream.SetAudioEnabled(false)
	}
	late.add(func() { c.listener.OnLocalStreamReady(stream) })

	events, err := c.peer.Open(ctx, stream)
	if err != nil {
		appErr := wrapNegotiation("Failed to open peer connection", err)
		return c.abortOp(gen, appErr, true, &late)
	}
	go c.consumePeerEvents(gen, events)

	answer, err := c.peer.CreateAnswer(ctx, pending.Offer)
	if err != nil {
		appErr := wrapNegotiation("Failed to answer offer", err)
		return c.abortOp(gen, appErr, true, &late)
	}
	if !c.isCurrent(gen) {
		c.peer.Close()
		return nil
	}

	for _, candidate := range held {
		if err := c.peer.ApplyRemoteCandidate(candidate); err != nil {
			c.log.Debug("Held candidate not applied", zap.Error(err))
		}
	}

	if err := c.transport.SendAnswer(ctx, remote.ID, answer); err != nil {
		c.log.Warn("Failed to send answer", zap.Error(err))
		late.add(func() { c.listener.OnError(err) })
	}

	c.markSignaled(gen, false)
	c.metrics.RecordCall("incoming", "connected")
	return nil
}

// Reject declines the pending incoming call
func (c *Controller) Reject(ctx context.Context) error {
	var notes notifier
	c.mu.Lock()
	if c.status != StatusRinging {
		c.mu.Unlock()
		return nil
	}
	remote := c.remote
	c.endLocked(EndDeclined, &notes)
	c.mu.Unlock()
	notes.fire()

	if err := c.transport.SendReject(ctx, remote.ID); err != nil {
		c.log.Warn("Failed to send reject", zap.Error(err))
		c.listener.OnError(err)
	}
	return nil
}

// End hangs up the current call, or silently dismisses a ringing one
func (c *Controller) End(ctx context.Context) error {
	c.hangupCtx(ctx, EndLocalHangup)
	return nil
}

// ToggleMute flips the microphone gate while in a call and returns the new muted state
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	if c.status != StatusInCall {
		muted := c.muted
		c.mu.Unlock()
		return muted
	}
	c.muted = !c.muted
	muted := c.muted
	c.mu.Unlock()

	c.media.SetMicrophoneEnabled(!muted)
	c.log.Debug("Microphone toggled", zap.Bool("muted", muted))
	return muted
}

func (c *Controller) hangup(reason EndReason) {
	c.hangupCtx(c.ctx, reason)
}

func (c *Controller) hangupCtx(ctx context.Context, reason EndReason) {
	var notes notifier
	c.mu.Lock()
	status := c.status
	if status == StatusIdle {
		c.mu.Unlock()
		return
	}
	remote := c.remote
	c.endLocked(reason, &notes)
	c.mu.Unlock()
	notes.fire()

	// a ringing caller was never answered, so there is nobody to tell
	if status != StatusRinging {
		if err := c.transport.SendEnd(ctx, remote.ID); err != nil {
			c.log.Warn("Failed to send end", zap.Error(err))
		}
	}
}

// beginLocked starts a new generation for a call about to acquire resources
func (c *Controller) beginLocked() uint64 {
	c.gen++
	c.signaled = false
	c.outbox = nil
	return c.gen
}

// endLocked closes the peer connection and local media, moves the session
// to Idle and queues the end notifications
func (c *Controller) endLocked(reason EndReason, notes *notifier) {
	c.peer.Close()

	wasInCall := c.status == StatusInCall
	direction := "outgoing"
	if c.incoming {
		direction = "incoming"
	}

	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}

	if wasInCall {
		if !c.startedAt.IsZero() {
			c.metrics.RecordCallDuration(time.Since(c.startedAt))
		}
		c.metrics.SetActiveCalls(0)
	}
	c.metrics.RecordCall(direction, string(reason))
	if reason == EndFailed || reason == EndTimeout {
		c.metrics.RecordCallFailure(string(reason))
	}

	c.status = StatusIdle
	c.remote = nil
	c.pending = nil
	c.held = nil
	c.outbox = nil
	c.signaled = false
	c.incoming = false
	c.startedAt = time.Time{}
	c.duration = 0
	c.muted = false
	c.gen++

	c.log.Info("Call ended", zap.String("reason", string(reason)))

	notes.add(func() { c.listener.OnStatusChange(StatusIdle) })
	notes.add(func() { c.listener.OnCallEnded(reason) })
}

// abortOp ends a call whose blocking step failed and returns the error to
// report. A step of a call that already ended only cleans up and reports
// nothing. Caller holds opMu.
func (c *Controller) abortOp(gen uint64, err *errors.AppError, signalEnd bool, late *notifier) error {
	var notes notifier
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.peer.Close()
		return nil
	}
	remote := c.remote
	c.endLocked(EndFailed, &notes)
	c.mu.Unlock()

	c.log.Warn("Call aborted", zap.Error(err))

	if signalEnd && remote != nil {
		if sendErr := c.transport.SendEnd(c.ctx, remote.ID); sendErr != nil {
			c.log.Warn("Failed to send end", zap.Error(sendErr))
		}
	}

	*late = append(*late, notes...)
	late.add(func() { c.listener.OnError(err) })
	return err
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// markSignaled records that our offer (caller) or answer (callee) went out,
// flushes the local candidates gathered before it and starts the ring timer or
// the duration ticker.
func (c *Controller) markSignaled(gen uint64, caller bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.signaled = true
	outbox := c.outbox
	c.outbox = nil
	remote := c.remote

	if caller {
		if c.cfg.CallTimeout > 0 {
			c.ringTimer = time.AfterFunc(c.cfg.CallTimeout, func() { c.onRingTimeout(gen) })
		}
	} else {
		c.startInCallLocked(gen)
	}
	c.mu.Unlock()

	for _, candidate := range outbox {
		if err := c.transport.SendCandidate(c.ctx, remote.ID, candidate); err != nil {
			c.log.Warn("Failed to send candidate", zap.Error(err))
		}
	}
}

func (c *Controller) startInCallLocked(gen uint64) {
	c.startedAt = time.Now()
	c.duration = 0
	c.metrics.SetActiveCalls(1)

	stop := make(chan struct{})
	c.tickStop = stop
	go c.tick(gen, stop)
}

func (c *Controller) tick(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if gen != c.gen || c.status != StatusInCall {
				c.mu.Unlock()
				return
			}
			c.duration++
			seconds := c.duration
			c.mu.Unlock()

			c.listener.OnDurationTick(seconds)
		}
	}
}

func (c *Controller) onRingTimeout(gen uint64) {
	var notes notifier
	c.mu.Lock()
	if gen != c.gen || c.status != StatusCalling {
		c.mu.Unlock()
		return
	}
	c.ringTimer = nil
	remote := c.remote
	c.endLocked(EndTimeout, &notes)
	c.mu.Unlock()
	notes.fire()

	c.log.Info("Call not answered", zap.String("remote_id", remote.ID.String()))
	if err := c.transport.SendEnd(c.ctx, remote.ID); err != nil {
		c.log.Warn("Failed to send end", zap.Error(err))
	}
}

func (c *Controller) consumePeerEvents(gen uint64, events <-chan PeerEvent) {
	for ev := range events {
		switch ev.Kind {
		case EventLocalCandidate:
			c.onLocalCandidate(gen, *ev.Candidate)
		case EventRemoteStream:
			if c.isCurrent(gen) {
				c.listener.OnRemoteStreamReady(ev.Track)
			}
		case EventConnectionState:
			switch ev.State {
			case webrtc.PeerConnectionStateConnected:
				c.log.Info("Peer connected")
			case webrtc.PeerConnectionStateFailed:
				c.onPeerFailed(gen)
			}
		}
	}
}

func (c *Controller) onLocalCandidate(gen uint64, candidate webrtc.ICECandidateInit) {
	c.mu.Lock()
	if gen != c.gen || c.status == StatusIdle {
		c.mu.Unlock()
		return
	}
	if !c.signaled {
		c.outbox = append(c.outbox, candidate)
		c.mu.Unlock()
		return
	}
	remote := c.remote
	c.mu.Unlock()

	if err := c.transport.SendCandidate(c.ctx, remote.ID, candidate); err != nil {
		c.log.Warn("Failed to send candidate", zap.Error(err))
	}
}

func (c *Controller) onPeerFailed(gen uint64) {
	var notes notifier
	c.mu.Lock()
	if gen != c.gen || (c.status != StatusCalling && c.status != StatusInCall) {
		c.mu.Unlock()
		return
	}
	remote := c.remote
	c.endLocked(EndFailed, &notes)
	c.mu.Unlock()

	err := errors.NegotiationError("Peer connection failed", nil)
	notes.add(func() { c.listener.OnError(err) })
	notes.fire()

	if sendErr := c.transport.SendEnd(c.ctx, remote.ID); sendErr != nil {
		c.log.Warn("Failed to send end", zap.Error(sendErr))
	}
}

func (c *Controller) handleSignal(sig Signal) {
	switch sig.Kind {
	case SignalOffer:
		c.onOffer(sig)
	case SignalAnswer:
		c.onAnswer(sig)
	case SignalCandidate:
		c.onRemoteCandidate(sig)
	case SignalEnd:
		c.onRemoteEnd(sig)
	case SignalReject, SignalBusy:
		c.onRemoteDecline(sig)
	}
}

func (c *Controller) onOffer(sig Signal) {
	if sig.Caller == nil || sig.Caller.ID != sig.SenderID {
		c.log.Warn("Dropping offer with mismatched caller", zap.String("sender_id", sig.SenderID.String()))
		return
	}

	incoming := &IncomingCall{Caller: sig.Caller, Offer: *sig.Description, ReceivedAt: time.Now()}

	var notes notifier
	var busyTo, displaced uuid.UUID
	c.mu.Lock()
	switch c.status {
	case StatusIdle:
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.status = StatusRinging
		c.remote = sig.Caller
		c.pending = incoming
		c.held = nil
		c.incoming = true
		notes.add(func() { c.listener.OnStatusChange(StatusRinging) })
		notes.add(func() { c.listener.OnIncomingCall(*incoming) })
	case StatusRinging:
		// last offer wins; held candidates belong to the replaced offer
		if c.remote.ID != sig.SenderID {
			displaced = c.remote.ID
		}
		c.held = nil
		c.remote = sig.Caller
		c.pending = incoming
		notes.add(func() { c.listener.OnIncomingCall(*incoming) })
	default:
		busyTo = sig.SenderID
	}
	c.mu.Unlock()
	notes.fire()

	if busyTo != uuid.Nil {
		c.log.Info("Rejecting offer while busy", zap.String("sender_id", busyTo.String()))
		if err := c.transport.SendBusy(c.ctx, busyTo); err != nil {
			c.log.Warn("Failed to send busy", zap.Error(err))
		}
	}
	if displaced != uuid.Nil {
		if err := c.transport.SendBusy(c.ctx, displaced); err != nil {
			c.log.Warn("Failed to send busy", zap.Error(err))
		}
	}
}

func (c *Controller) onAnswer(sig Signal) {
	var late notifier
	defer late.fire()
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.status != StatusCalling || c.remote.ID != sig.SenderID {
		c.log.Debug("Ignoring stale answer", zap.String("sender_id", sig.SenderID.String()))
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()

	if err := c.peer.ApplyAnswer(*sig.Description); err != nil {
		if errors.Is(err, errors.ErrCodeStaleSignal) {
			c.log.Debug("Answer arrived after teardown")
			return
		}
		_ = c.abortOp(gen, wrapNegotiation("Failed to apply answer", err), true, &late)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
	c.status = StatusInCall
	c.startInCallLocked(gen)
	c.mu.Unlock()

	c.metrics.RecordCall("outgoing", "connected")
	late.add(func() { c.listener.OnStatusChange(StatusInCall) })
}

func (c *Controller) onRemoteCandidate(sig Signal) {
	c.mu.Lock()
	if c.status == StatusIdle || c.remote.ID != sig.SenderID {
		c.log.Debug("Ignoring stale candidate", zap.String("sender_id", sig.SenderID.String()))
		c.mu.Unlock()
		return
	}
	if c.status == StatusRinging {
		c.held = append(c.held, *sig.Candidate)
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()
	if !c.isCurrent(gen) {
		return
	}
	if err := c.peer.ApplyRemoteCandidate(*sig.Candidate); err != nil {
		c.log.Debug("Remote candidate not applied", zap.Error(err))
	}
}

func (c *Controller) onRemoteEnd(sig Signal) {
	var notes notifier
	c.mu.Lock()
	if c.status == StatusIdle || c.remote.ID != sig.SenderID {
		c.log.Debug("Ignoring stale end", zap.String("sender_id", sig.SenderID.String()))
		c.mu.Unlock()
		return
	}
	reason := EndRemoteHangup
	if c.status == StatusRinging {
		reason = EndMissed
	}
	c.endLocked(reason, &notes)
	c.mu.Unlock()
	notes.fire()
}

func (c *Controller) onRemoteDecline(sig Signal) {
	var notes notifier
	c.mu.Lock()
	if c.status != StatusCalling || c.remote.ID != sig.SenderID {
		c.log.Debug("Ignoring stale decline", zap.String("sender_id", sig.SenderID.String()))
		c.mu.Unlock()
		return
	}
	reason := EndRejected
	if sig.Kind == SignalBusy {
		reason = EndBusy
	}
	c.endLocked(reason, &notes)
	c.mu.Unlock()
	notes.fire()
}

func (c *Controller) wrapMediaError(err error) *errors.AppError {
	if errors.Is(err, errors.ErrCodeMediaUnavailable) {
		return errors.GetAppError(err)
	}
	return errors.MediaUnavailableError(err)
}

func wrapNegotiation(message string, err error) *errors.AppError {
	if errors.Is(err, errors.ErrCodeNegotiationFailure) {
		return errors.GetAppError(err)
	}
	return errors.NegotiationError(message, err)
}
