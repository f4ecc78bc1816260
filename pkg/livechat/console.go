package livechat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venturing/go-livechat-backend/internal/protocol"
)

const (
	// DefaultPollInterval is the reconciliation cadence for the pending
	// queue and the reporting views. Push events update the queue faster;
	// the poll is the baseline that heals missed frames.
	DefaultPollInterval = 5 * time.Second

	// DefaultRetryInterval is the standing channel redial cadence. The
	// agent must stay reachable for new requests, so it retries forever.
	DefaultRetryInterval = 3 * time.Second
)

// ConsoleOptions configures a queue console.
type ConsoleOptions struct {
	AgentID   string
	AgentName string

	PollInterval  time.Duration
	RetryInterval time.Duration

	// Dial opens the standing agent channel. Defaults to dialing the
	// broker derived from the REST client's base URL.
	Dial DialFunc

	// OnQueue fires after every change to the pending list. OnMessage
	// receives chat frames for the open conversation panel.
	OnQueue   func(pending []ChatRequest)
	OnMessage func(Envelope)
}

// Console is the agent-side queue controller: the pending request list,
// this agent's live sessions, the reporting aggregates, and at most one
// open conversation panel. The pending list is read-shared across every
// agent's console; the backend resolves accept races, so a lost accept is
// just a request to drop, never an error to alarm on.
type Console struct {
	rest *Client
	opts ConsoleOptions

	mu       sync.Mutex
	pending  []ChatRequest
	sessions []ChatSession
	all      []ChatSession
	rejected []ChatRequest
	total    int64
	open     *ChatSession
	channel  *Channel
}

// NewConsole returns a console for the given agent identity.
func NewConsole(rest *Client, opts ConsoleOptions) *Console {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	c := &Console{rest: rest, opts: opts}
	if c.opts.Dial == nil {
		c.opts.Dial = func(ctx context.Context, agentID string, d *Dispatcher) (*Channel, error) {
			return Dial(ctx, AgentChannelURL(rest.BaseURL, agentID), ChannelOptions{
				SelfID:     agentID,
				Token:      rest.Token,
				Dispatcher: d,
				Reconnect:  ReconnectPolicy{MaxAttempts: -1, Interval: opts.RetryInterval},
			})
		}
	}
	return c
}

// Run keeps the standing channel and the reconciliation poll alive until
// the context ends. It blocks; run it on its own goroutine.
func (c *Console) Run(ctx context.Context) {
	go c.maintainChannel(ctx)

	if err := c.Reconcile(ctx); err != nil {
		log.Debug().Err(err).Msg("console initial reconcile failed")
	}
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			ch := c.channel
			c.mu.Unlock()
			if ch != nil {
				ch.Close()
			}
			return
		case <-ticker.C:
			if err := c.Reconcile(ctx); err != nil {
				log.Debug().Err(err).Msg("console reconcile failed")
			}
		}
	}
}

// maintainChannel dials the standing channel and redials it on the retry
// cadence for as long as the console runs. Post-connect drops are handled
// by the channel's own infinite reconnect policy; this loop covers dials
// that fail outright.
func (c *Console) maintainChannel(ctx context.Context) {
	for {
		ch, err := c.opts.Dial(ctx, c.opts.AgentID, c.dispatcher())
		if err == nil {
			c.mu.Lock()
			c.channel = ch
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				ch.Close()
				return
			case <-ch.Done():
			}
		} else {
			log.Debug().Err(err).Str("agent_id", c.opts.AgentID).Msg("agent channel dial failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.RetryInterval):
		}
	}
}

func (c *Console) dispatcher() *protocol.Dispatcher {
	return protocol.NewDispatcher().
		On(protocol.TypeNewChatRequest, c.handleNewRequest).
		On(protocol.TypeRequestCanceled, c.handleCanceled).
		On(protocol.TypeSessionEnded, c.handleSessionEnded).
		On(protocol.TypeChatMessage, func(env protocol.Envelope) {
			if c.opts.OnMessage != nil {
				c.opts.OnMessage(env)
			}
		}).
		On(protocol.TypePing, func(protocol.Envelope) {})
}

func (c *Console) handleNewRequest(env protocol.Envelope) {
	var ev protocol.NewChatRequest
	if err := protocol.DecodeData(env, &ev); err != nil {
		log.Debug().Err(err).Msg("new_chat_request frame dropped")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.pending {
		if r.ID == ev.RequestID {
			return
		}
	}
	req := ChatRequest{ID: ev.RequestID, VisitorName: ev.VisitorName, Message: ev.Message, Status: "pending"}
	if t, err := time.Parse(time.RFC3339, ev.ExpiresAt); err == nil {
		req.ExpiresAt = t
	}
	c.pending = append(c.pending, req)
	c.notifyQueueLocked()
}

func (c *Console) handleCanceled(env protocol.Envelope) {
	var ev protocol.RequestCanceled
	if err := protocol.DecodeData(env, &ev); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropPendingLocked(ev.RequestID)
}

func (c *Console) handleSessionEnded(env protocol.Envelope) {
	var ev protocol.SessionEnded
	if err := protocol.DecodeData(env, &ev); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != nil && c.open.ID == ev.SessionID {
		c.open = nil
	}
}

// Reconcile refreshes the pending queue, the live session list and the
// reporting aggregates from the backend.
func (c *Console) Reconcile(ctx context.Context) error {
	pending, err := c.rest.PendingRequests(ctx)
	if err != nil {
		return err
	}
	sessions, err := c.rest.ActiveSessions(ctx)
	if err != nil {
		return err
	}
	all, err := c.rest.AllSessions(ctx)
	if err != nil {
		return err
	}
	rejected, err := c.rest.RejectedRequests(ctx)
	if err != nil {
		return err
	}
	total, err := c.rest.TotalSessions(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = pending
	c.sessions = sessions
	c.all = all
	c.rejected = rejected
	c.total = total
	c.notifyQueueLocked()
	return nil
}

// Accept claims a request. The REST response is authoritative for this
// agent: on success the session is materialized and the conversation panel
// opens immediately, without waiting for a push confirmation. Losing the
// race to another agent is benign; the request is dropped and (nil, nil)
// returned.
func (c *Console) Accept(ctx context.Context, requestID string) (*ChatSession, error) {
	sess, err := c.rest.AcceptRequest(ctx, requestID, c.opts.AgentName)
	if err != nil {
		var sc *StateConflict
		if errors.As(err, &sc) {
			c.mu.Lock()
			c.dropPendingLocked(requestID)
			c.mu.Unlock()
			return nil, nil
		}
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropPendingLocked(requestID)
	c.sessions = append(c.sessions, *sess)
	c.open = sess
	return sess, nil
}

// Reject declines a request. Terminal for this agent's view: the request
// leaves the pending list on success, and a conflict means someone else
// resolved it first, which drops it just the same.
func (c *Console) Reject(ctx context.Context, requestID string) error {
	err := c.rest.RejectRequest(ctx, requestID)
	if err != nil && !IsConflict(err) {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropPendingLocked(requestID)
	return nil
}

// EndOpenSession closes the open conversation from the agent side.
func (c *Console) EndOpenSession(ctx context.Context) error {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if open == nil {
		return nil
	}
	if err := c.rest.EndSession(ctx, open.ID, c.opts.AgentID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != nil && c.open.ID == open.ID {
		c.open = nil
	}
	return nil
}

// Send relays a chat message into the open conversation.
func (c *Console) Send(text, kind string) error {
	c.mu.Lock()
	ch, open := c.channel, c.open
	c.mu.Unlock()
	if ch == nil || open == nil {
		return &TransportError{Op: "send", Err: errChannelClosed}
	}
	return ch.Send(open.ID, "agent", text, kind)
}

// Pending returns a copy of the pending queue.
func (c *Console) Pending() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatRequest, len(c.pending))
	copy(out, c.pending)
	return out
}

// Sessions returns a copy of this agent's live sessions.
func (c *Console) Sessions() []ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatSession, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// AllSessions returns the all-sessions reporting view.
func (c *Console) AllSessions() []ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatSession, len(c.all))
	copy(out, c.all)
	return out
}

// Rejected returns the rejected-request history.
func (c *Console) Rejected() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatRequest, len(c.rejected))
	copy(out, c.rejected)
	return out
}

// Total returns the all-time session count.
func (c *Console) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Open returns the open conversation, or nil.
func (c *Console) Open() *ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Console) dropPendingLocked(requestID string) {
	for i, r := range c.pending {
		if r.ID == requestID {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			c.notifyQueueLocked()
			return
		}
	}
}

func (c *Console) notifyQueueLocked() {
	if c.opts.OnQueue == nil {
		return
	}
	out := make([]ChatRequest, len(c.pending))
	copy(out, c.pending)
	c.opts.OnQueue(out)
}
