// RequestService owns the chat-request
// lifecycle on the broker side: creation with form validation, the
// accept/reject/cancel outcomes with their single-winner semantics, and the
// authoritative wait-budget sweep. Outcomes are pushed to the affected
// participants over their messaging channels; the pending-request list the
// console polls is served from here as well.
//
// Service-level errors (e.g. ErrRequestTaken, ErrCancelTooLate) are returned
// for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/protocol"
	"github.com/venturing/go-livechat-backend/internal/repo"
)

// DefaultWaitBudget is the pending-request deadline enforced server-side and
// mirrored by the widget's countdown timer.
const DefaultWaitBudget = 120 * time.Second

// MinMessageRunes is the minimum length of the request-form message.
const MinMessageRunes = 20

// RequestService implements the chat-request use-cases.
type RequestService struct {
	DB   *gorm.DB
	Push ChannelPusher

	// Notify, when set, records an operator notification for each new
	// request (the "out of band" channel; see NotificationService).
	Notify func(ctx context.Context, typ, title, body string)

	// WaitBudget overrides DefaultWaitBudget when > 0.
	WaitBudget time.Duration

	// NameLocale selects the casing rules for visitor display names shown
	// in the queue. Defaults to English.
	NameLocale language.Tag
}

// CreateRequestInput is the validated payload for Create.
type CreateRequestInput struct {
	VisitorName   string
	VisitorEmail  string
	CategoryID    uint
	SubcategoryID *uint
	Message       string
}

// Create validates the form input, persists a pending request with the wait
// deadline, announces it to every connected agent, and records an operator
// notification.
//
// Validation contract (mirrors the widget):
//   - display name required
//   - message required and at least MinMessageRunes runes
//   - category must exist and be active
//   - when the category has at least one subcategory, a subcategory
//     belonging to it must be selected
func (s *RequestService) Create(ctx context.Context, in CreateRequestInput) (*domain.ChatRequest, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	name := strings.TrimSpace(in.VisitorName)
	if name == "" {
		return nil, ErrNameRequired
	}
	msg := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(msg) < MinMessageRunes {
		return nil, ErrMessageTooShort
	}

	cat, err := repo.GetCategory(ctx, s.DB, in.CategoryID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	subCount, err := repo.CountSubcategories(ctx, s.DB, cat.ID)
	if err != nil {
		return nil, err
	}
	if subCount > 0 && in.SubcategoryID == nil {
		return nil, ErrSubcategoryRequired
	}
	if in.SubcategoryID != nil {
		subs, err := repo.ListSubcategories(ctx, s.DB, cat.ID)
		if err != nil {
			return nil, err
		}
		found := false
		for i := range subs {
			if subs[i].ID == *in.SubcategoryID {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrSubcategoryInvalid
		}
	}

	req, err := repo.CreateRequest(ctx, s.DB, &domain.ChatRequest{
		VisitorName:   s.caseName(name),
		VisitorEmail:  strings.TrimSpace(in.VisitorEmail),
		CategoryID:    cat.ID,
		SubcategoryID: in.SubcategoryID,
		Message:       msg,
	}, s.budget())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("request.id", req.ID))

	// Fan the new request out to the consoles; polling reconciles anyone
	// who is offline right now.
	if frame, err := protocol.Encode(protocol.TypeNewChatRequest, protocol.NewChatRequest{
		RequestID:    req.ID,
		VisitorName:  req.VisitorName,
		CategoryName: cat.Name,
		Message:      req.Message,
		CreatedAt:    req.CreatedAt.Format(time.RFC3339),
		ExpiresAt:    req.ExpiresAt.Format(time.RFC3339),
	}); err == nil {
		s.pusher().BroadcastToAgents(frame)
	}

	if s.Notify != nil {
		s.Notify(ctx, "chat_request", "New Live Chat Request",
			"Chat request from "+req.VisitorName+" - "+cat.Name)
	}
	return req, nil
}

// Accept resolves a pending request in favor of agentID and materializes the
// session. Exactly one accept can win; the losers receive ErrRequestTaken.
// The visitor is informed over its messaging channel once the transaction
// commits.
func (s *RequestService) Accept(ctx context.Context, requestID, agentID, agentName string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Accept",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("agent.id", agentID),
		),
	)
	defer span.End()

	var sess *domain.ChatSession
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repo.GetRequest(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if !req.Pending() {
			return ErrRequestTaken
		}
		if !req.ExpiresAt.After(time.Now().UTC()) {
			return ErrRequestExpired
		}

		won, err := repo.ResolveRequest(ctx, tx, requestID, domain.RequestAccepted, agentID)
		if err != nil {
			return err
		}
		if !won {
			// Lost the race between the read above and the CAS.
			return ErrRequestTaken
		}

		sess, err = repo.CreateSession(ctx, tx, req, agentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if frame, err := protocol.Encode(protocol.TypeChatAccepted, protocol.ChatAccepted{
		SessionID:   sess.ID,
		AgentID:     agentID,
		AgentName:   agentName,
		VisitorName: sess.VisitorName,
	}); err == nil {
		s.pusher().SendToVisitor(sess.VisitorID, frame)
	}
	return sess, nil
}

// Reject resolves a pending request against the visitor. The visitor gets a
// chat_rejected push with the standard next-step guidance.
func (s *RequestService) Reject(ctx context.Context, requestID, agentID string) error {
	req, err := repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRequestNotFound
		}
		return err
	}
	won, err := repo.ResolveRequest(ctx, s.DB, requestID, domain.RequestRejected, agentID)
	if err != nil {
		return err
	}
	if !won {
		return ErrRequestTaken
	}

	if frame, err := protocol.Encode(protocol.TypeChatRejected, protocol.ChatRejected{
		Reason: "Currently no support available. Please raise a ticket or try again later.",
	}); err == nil {
		s.pusher().SendToVisitor(req.VisitorID, frame)
	}
	return nil
}

// Cancel withdraws a visitor's own pending request. The visitorID must match
// the one assigned at creation; cancel after any other outcome returns
// ErrCancelTooLate, which callers treat as benign.
func (s *RequestService) Cancel(ctx context.Context, requestID, visitorID string) error {
	req, err := repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRequestNotFound
		}
		return err
	}
	if req.VisitorID != visitorID {
		return ErrRequestNotFound
	}

	won, err := repo.ResolveRequest(ctx, s.DB, requestID, domain.RequestCanceled, "")
	if err != nil {
		return err
	}
	if !won {
		return ErrCancelTooLate
	}

	if frame, err := protocol.Encode(protocol.TypeRequestCanceled, protocol.RequestCanceled{
		RequestID: requestID,
	}); err == nil {
		s.pusher().BroadcastToAgents(frame)
	}
	return nil
}

// ListPending returns the queue the console reconciles against every poll.
func (s *RequestService) ListPending(ctx context.Context) ([]domain.ChatRequest, error) {
	return repo.ListPendingRequests(ctx, s.DB)
}

// ListRejected returns the rejected-request history (reporting view).
func (s *RequestService) ListRejected(ctx context.Context) ([]domain.ChatRequest, error) {
	return repo.ListRejectedRequests(ctx, s.DB)
}

// Categories returns the active taxonomy for the request form.
func (s *RequestService) Categories(ctx context.Context) ([]domain.ChatCategory, error) {
	return repo.ListCategories(ctx, s.DB)
}

// Subcategories returns the subcategories of one category.
func (s *RequestService) Subcategories(ctx context.Context, categoryID uint) ([]domain.ChatSubcategory, error) {
	return repo.ListSubcategories(ctx, s.DB, categoryID)
}

// SweepExpired marks overdue pending requests expired and notifies both
// sides: the visitor gets the authoritative request_timeout, the agents a
// request_canceled so their queues drop the entry. Returns the number of
// requests swept.
func (s *RequestService) SweepExpired(ctx context.Context) (int, error) {
	stale, err := repo.SweepExpiredRequests(ctx, s.DB)
	if err != nil {
		return 0, err
	}
	for i := range stale {
		req := &stale[i]
		if frame, err := protocol.Encode(protocol.TypeRequestTimeout, protocol.RequestTimeout{RequestID: req.ID}); err == nil {
			s.pusher().SendToVisitor(req.VisitorID, frame)
		}
		if frame, err := protocol.Encode(protocol.TypeRequestCanceled, protocol.RequestCanceled{RequestID: req.ID}); err == nil {
			s.pusher().BroadcastToAgents(frame)
		}
	}
	return len(stale), nil
}

// RunSweeper drives SweepExpired on a fixed cadence until ctx is canceled.
// The broker is the authority on the wait budget; the widget timer is only a
// client-side fallback.
func (s *RequestService) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.SweepExpired(ctx); err != nil {
				log.Error().Err(err).Msg("request sweep failed")
			} else if n > 0 {
				log.Info().Int("expired", n).Msg("swept overdue chat requests")
			}
		}
	}
}

// budget returns the configured wait budget or the default.
func (s *RequestService) budget() time.Duration {
	if s.WaitBudget > 0 {
		return s.WaitBudget
	}
	return DefaultWaitBudget
}

// pusher returns the configured ChannelPusher or a no-op.
func (s *RequestService) pusher() ChannelPusher {
	if s.Push != nil {
		return s.Push
	}
	return nopPusher{}
}

// caseName applies locale-aware title casing to the visitor display name so
// the queue renders consistently.
func (s *RequestService) caseName(name string) string {
	tag := s.NameLocale
	if tag == language.Und {
		tag = language.English
	}
	return cases.Title(tag, cases.NoLower).String(name)
}
