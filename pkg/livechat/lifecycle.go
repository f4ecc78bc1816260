package livechat

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/venturing/go-livechat-backend/internal/protocol"
)

// State is the visitor-side lifecycle position.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StatePending
	StateActive
	StateRejected
	StateExpired
	StateEnded
	StateFeedbackPending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateRejected:
		return "rejected"
	case StateExpired:
		return "expired"
	case StateEnded:
		return "ended"
	case StateFeedbackPending:
		return "feedback_pending"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// NextStep is the explicit prompt offered after a rejection or timeout. A
// dead pending request never resolves into a bare dead end.
type NextStep int

const (
	NextStepNone NextStep = iota
	NextStepCreateTicket
	NextStepTryAgain
)

// MinMessageRunes is the request-form message floor, counted in runes.
const MinMessageRunes = 20

// DefaultWaitBudget is how long a visitor waits for an agent before the
// request expires. The server enforces the same budget authoritatively.
const DefaultWaitBudget = 120 * time.Second

// DialFunc opens the messaging channel for a participant. Injected so tests
// can point the lifecycle at a local server.
type DialFunc func(ctx context.Context, participantID string, d *Dispatcher) (*Channel, error)

// LifecycleOptions tunes a Lifecycle. Zero values take the defaults.
type LifecycleOptions struct {
	WaitBudget   time.Duration
	TickInterval time.Duration
	Dial         DialFunc

	// OnState observes every transition. It runs with the machine's lock
	// held and must not call back into the Lifecycle. OnMessage receives
	// remote chat frames for rendering; locally sent messages are rendered
	// by the caller before Send and never replayed here.
	OnState   func(State)
	OnMessage func(Envelope)
	OnTick    func(remaining int)
}

// Lifecycle drives one visitor chat request from form submission to the
// closed feedback gate. All transitions go through the internal mutex, and
// the terminal pending transition (accept, reject, timeout, cancel) is
// idempotent: whichever of the local timer expiry and the remote event
// lands first wins, the later one is a no-op.
type Lifecycle struct {
	rest *Client
	opts LifecycleOptions

	mu       sync.Mutex
	state    State
	epoch    int
	nextStep NextStep

	requestID     string
	participantID string
	sessionID     string
	agentID       string
	agentName     string

	timer   *CountdownTimer
	channel *Channel
}

// NewLifecycle returns an Idle lifecycle bound to the given REST client.
func NewLifecycle(rest *Client, opts LifecycleOptions) *Lifecycle {
	if opts.WaitBudget <= 0 {
		opts.WaitBudget = DefaultWaitBudget
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	lc := &Lifecycle{rest: rest, opts: opts, state: StateIdle}
	if opts.Dial == nil {
		lc.opts.Dial = lc.defaultDial
	}
	return lc
}

func (lc *Lifecycle) defaultDial(ctx context.Context, participantID string, d *protocol.Dispatcher) (*Channel, error) {
	return Dial(ctx, VisitorChannelURL(lc.rest.BaseURL, participantID), ChannelOptions{
		SelfID:     participantID,
		Dispatcher: d,
		Reconnect:  ReconnectPolicy{MaxAttempts: 3, Interval: 2 * time.Second},
	})
}

// Validate applies the request-form rules without touching the network:
// category chosen, subcategory chosen when the category has any, name
// present, message at least MinMessageRunes runes.
func Validate(in CreateRequestInput, categoryHasSubcategories bool) error {
	if in.CategoryID == 0 {
		return &ValidationError{Field: "category_id", Message: "category is required"}
	}
	if categoryHasSubcategories && in.SubcategoryID == nil {
		return &ValidationError{Field: "subcategory_id", Message: "subcategory is required for this category"}
	}
	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if utf8.RuneCountInString(in.Message) < MinMessageRunes {
		return &ValidationError{Field: "message", Message: "message must be at least 20 characters"}
	}
	return nil
}

// Submit validates the form and creates the request. On success the machine
// is Pending: the messaging channel is open and the countdown is running.
// Validation failures and REST failures leave the machine back in Idle so
// the form can be corrected or retried.
func (lc *Lifecycle) Submit(ctx context.Context, in CreateRequestInput, categoryHasSubcategories bool) error {
	if err := Validate(in, categoryHasSubcategories); err != nil {
		return err
	}

	lc.mu.Lock()
	if lc.state != StateIdle {
		lc.mu.Unlock()
		return &StateConflict{Code: "already_submitted", Message: "a request is already in flight"}
	}
	lc.setStateLocked(StateSubmitting)
	epoch := lc.epoch
	lc.mu.Unlock()

	req, err := lc.rest.CreateRequest(ctx, in)

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.epoch != epoch || lc.state != StateSubmitting {
		// The machine moved on while the call was in flight; the response
		// no longer has a home.
		return nil
	}
	if err != nil {
		lc.setStateLocked(StateIdle)
		return err
	}

	lc.requestID = req.ID
	lc.participantID = req.VisitorID
	lc.nextStep = NextStepNone
	lc.setStateLocked(StatePending)

	ch, err := lc.opts.Dial(ctx, req.VisitorID, lc.dispatcher())
	if err != nil {
		log.Warn().Err(err).Str("request_id", req.ID).Msg("messaging channel dial failed")
	} else {
		lc.channel = ch
	}

	lc.timer = newCountdownTimer(lc.opts.WaitBudget, lc.opts.TickInterval, lc.opts.OnTick, lc.expireLocal)
	lc.timer.Start()
	return nil
}

func (lc *Lifecycle) dispatcher() *protocol.Dispatcher {
	return protocol.NewDispatcher().
		On(protocol.TypeChatAccepted, lc.handleAccepted).
		On(protocol.TypeChatRejected, lc.handleRejected).
		On(protocol.TypeRequestTimeout, func(protocol.Envelope) { lc.expire() }).
		On(protocol.TypeSessionEnded, func(protocol.Envelope) { lc.handleEnded() }).
		On(protocol.TypeChatMessage, func(env protocol.Envelope) {
			if lc.opts.OnMessage != nil {
				lc.opts.OnMessage(env)
			}
		}).
		On(protocol.TypePing, func(protocol.Envelope) {})
}

func (lc *Lifecycle) handleAccepted(env protocol.Envelope) {
	var acc protocol.ChatAccepted
	if err := protocol.DecodeData(env, &acc); err != nil {
		log.Debug().Err(err).Msg("chat_accepted frame dropped")
		return
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.state != StatePending {
		return
	}
	lc.stopTimerLocked()
	lc.sessionID = acc.SessionID
	lc.agentID = acc.AgentID
	lc.agentName = acc.AgentName
	lc.epoch++
	lc.setStateLocked(StateActive)
}

func (lc *Lifecycle) handleRejected(protocol.Envelope) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.state != StatePending {
		return
	}
	lc.stopTimerLocked()
	lc.closeChannelLocked()
	lc.nextStep = NextStepCreateTicket
	lc.epoch++
	lc.setStateLocked(StateRejected)
}

// expireLocal is the timer callback: the client-side fallback for a server
// timeout event that never arrived.
func (lc *Lifecycle) expireLocal() { lc.expire() }

func (lc *Lifecycle) expire() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.state != StatePending {
		return
	}
	lc.stopTimerLocked()
	lc.closeChannelLocked()
	lc.nextStep = NextStepTryAgain
	lc.epoch++
	lc.setStateLocked(StateExpired)
}

// Cancel withdraws the pending request. A cancel that lost the race against
// an accept is benign: the machine simply resets without surfacing an error.
func (lc *Lifecycle) Cancel(ctx context.Context) error {
	lc.mu.Lock()
	if lc.state != StatePending {
		lc.mu.Unlock()
		return nil
	}
	requestID, participantID := lc.requestID, lc.participantID
	epoch := lc.epoch
	lc.mu.Unlock()

	err := lc.rest.CancelRequest(ctx, requestID, participantID)

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.epoch != epoch || lc.state != StatePending {
		return nil
	}
	var sc *StateConflict
	if err != nil && !errors.As(err, &sc) {
		return err
	}
	lc.stopTimerLocked()
	lc.closeChannelLocked()
	lc.epoch++
	lc.setStateLocked(StateIdle)
	return nil
}

// Reset returns the machine to Idle after a terminal rejection, expiry or
// close, so the visitor can try again with a fresh request. It is a no-op
// in any other state.
func (lc *Lifecycle) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	switch lc.state {
	case StateRejected, StateExpired, StateClosed:
	default:
		return
	}
	lc.closeChannelLocked()
	lc.channel = nil
	lc.timer = nil
	lc.requestID = ""
	lc.participantID = ""
	lc.sessionID = ""
	lc.agentID = ""
	lc.agentName = ""
	lc.nextStep = NextStepNone
	lc.epoch++
	lc.setStateLocked(StateIdle)
}

// End closes the active session from the visitor side. The push event and
// the REST path funnel into the same idempotent transition.
func (lc *Lifecycle) End(ctx context.Context) error {
	lc.mu.Lock()
	if lc.state != StateActive {
		lc.mu.Unlock()
		return nil
	}
	sessionID, participantID := lc.sessionID, lc.participantID
	lc.mu.Unlock()

	if err := lc.rest.EndSession(ctx, sessionID, participantID); err != nil {
		return err
	}
	lc.handleEnded()
	return nil
}

func (lc *Lifecycle) handleEnded() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.state != StateActive {
		return
	}
	lc.epoch++
	lc.setStateLocked(StateEnded)
	lc.setStateLocked(StateFeedbackPending)
}

// Feedback returns the gate for the ended session. The gate owns the final
// channel release: submit and skip both close the messaging channel exactly
// once and park the machine in Closed.
func (lc *Lifecycle) Feedback() *FeedbackGate {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return NewFeedbackGate(lc.rest, lc.sessionID, lc.participantID, func() {
		lc.mu.Lock()
		defer lc.mu.Unlock()
		lc.closeChannelLocked()
		if lc.state == StateFeedbackPending {
			lc.setStateLocked(StateClosed)
		}
	})
}

// Send relays one chat message over the channel. The caller renders the
// message locally first; the channel's echo dedup keeps it single.
func (lc *Lifecycle) Send(text, kind string) error {
	lc.mu.Lock()
	ch, sessionID := lc.channel, lc.sessionID
	state := lc.state
	lc.mu.Unlock()
	if state != StateActive || ch == nil {
		return &TransportError{Op: "send", Err: errChannelClosed}
	}
	return ch.Send(sessionID, "visitor", text, kind)
}

// State returns the current lifecycle position.
func (lc *Lifecycle) State() State {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.state
}

// NextStep returns the prompt to show after a rejection or timeout.
func (lc *Lifecycle) NextStep() NextStep {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.nextStep
}

// Remaining returns the seconds left on the wait budget, or 0 when no
// countdown is running.
func (lc *Lifecycle) Remaining() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.timer == nil {
		return 0
	}
	return lc.timer.Remaining()
}

// SessionID returns the active session id, empty before acceptance.
func (lc *Lifecycle) SessionID() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.sessionID
}

// ParticipantID returns the id assigned by the create call.
func (lc *Lifecycle) ParticipantID() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.participantID
}

// RequestID returns the pending request id.
func (lc *Lifecycle) RequestID() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.requestID
}

// AgentName returns the accepting agent's display name.
func (lc *Lifecycle) AgentName() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.agentName
}

func (lc *Lifecycle) setStateLocked(s State) {
	lc.state = s
	if lc.opts.OnState != nil {
		lc.opts.OnState(s)
	}
}

func (lc *Lifecycle) stopTimerLocked() {
	if lc.timer != nil {
		lc.timer.Stop()
	}
}

func (lc *Lifecycle) closeChannelLocked() {
	if lc.channel != nil {
		lc.channel.Close()
	}
}
