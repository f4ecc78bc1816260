package livechat

import (
	"context"
	"sync"
)

// Ratings is the visitor's post-session scorecard. The three 1..5 ratings
// are mandatory; comments and the recommend flag are optional.
type Ratings struct {
	Overall        int
	SupportQuality int
	ResponseTime   int
	Comments       string
	WouldRecommend bool
}

// FeedbackGate is presented exactly once per ended session. Submit and Skip
// are both terminal: either path runs the release hook exactly once, which
// closes the messaging channel and lets the session go.
type FeedbackGate struct {
	rest          *Client
	sessionID     string
	participantID string

	releaseOnce sync.Once
	release     func()

	mu      sync.Mutex
	ratings Ratings
	done    bool
}

// NewFeedbackGate returns a gate for the given ended session. release may
// be nil.
func NewFeedbackGate(rest *Client, sessionID, participantID string, release func()) *FeedbackGate {
	return &FeedbackGate{
		rest:          rest,
		sessionID:     sessionID,
		participantID: participantID,
		release:       release,
	}
}

// SetRatings records the current form values.
func (g *FeedbackGate) SetRatings(r Ratings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ratings = r
}

// CanSubmit reports whether the submit action is enabled: all three
// mandatory ratings set, and the gate not yet resolved.
func (g *FeedbackGate) CanSubmit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.done && g.ratings.Overall != 0 && g.ratings.SupportQuality != 0 && g.ratings.ResponseTime != 0
}

// Submit posts the feedback. On success the gate resolves and releases its
// resources; on failure it stays open so the visitor can retry or skip.
func (g *FeedbackGate) Submit(ctx context.Context) error {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return nil
	}
	r := g.ratings
	g.mu.Unlock()

	if r.Overall == 0 || r.SupportQuality == 0 || r.ResponseTime == 0 {
		return &ValidationError{Field: "rating", Message: "all three ratings are required"}
	}
	err := g.rest.SubmitFeedback(ctx, FeedbackInput{
		SessionID:      g.sessionID,
		ParticipantID:  g.participantID,
		Rating:         r.Overall,
		SupportQuality: r.SupportQuality,
		ResponseTime:   r.ResponseTime,
		Comments:       r.Comments,
		WouldRecommend: r.WouldRecommend,
	})
	// A duplicate-feedback conflict means the session is already rated;
	// resolve the gate rather than trapping the visitor in it.
	if err != nil && !IsConflict(err) {
		return err
	}
	g.resolve()
	return nil
}

// Skip resolves the gate without posting anything. Cleanup is identical to
// a successful submit.
func (g *FeedbackGate) Skip() {
	g.resolve()
}

// Resolved reports whether the gate has been submitted or skipped.
func (g *FeedbackGate) Resolved() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

func (g *FeedbackGate) resolve() {
	g.mu.Lock()
	g.done = true
	g.mu.Unlock()
	g.releaseOnce.Do(func() {
		if g.release != nil {
			g.release()
		}
	})
}
