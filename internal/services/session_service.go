// SessionService owns live sessions after a
// request has been accepted: the message backlog, the relay persistence used
// by the messaging channel, the idempotent end-session transition, and the
// reporting reads the console fetches on its reconciliation cadence.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/protocol"
	"github.com/venturing/go-livechat-backend/internal/repo"
)

// SessionService implements the session use-cases.
type SessionService struct {
	DB   *gorm.DB
	Push ChannelPusher
}

// Get fetches a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.ChatSession, error) {
	sess, err := repo.GetSession(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// End closes a session on behalf of either participant. The transition is
// idempotent: only the first call flips the status and emits the
// session_ended push to both parties; later calls succeed silently.
func (s *SessionService) End(ctx context.Context, sessionID, endedBy string) error {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "End",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	flipped, err := repo.EndSession(ctx, s.DB, sessionID)
	if err != nil {
		return err
	}
	if !flipped {
		// Already ended; the push went out with the first transition.
		return nil
	}

	if frame, err := protocol.Encode(protocol.TypeSessionEnded, protocol.SessionEnded{
		SessionID: sessionID,
		EndedBy:   endedBy,
	}); err == nil {
		p := s.pusher()
		p.SendToVisitor(sess.VisitorID, frame)
		p.SendToAgent(sess.AgentID, frame)
	}
	return nil
}

// SaveMessage persists one chat message arriving on a messaging channel.
// Messages are rejected once the session has ended.
func (s *SessionService) SaveMessage(ctx context.Context, sessionID, senderRole, senderID, text, kind string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended() {
		return nil, ErrSessionEnded
	}
	return repo.CreateMessage(ctx, s.DB, sessionID, senderRole, senderID, text, kind)
}

// Counterpart returns the participant a frame from senderRole should be
// relayed to.
func (s *SessionService) Counterpart(ctx context.Context, sessionID, senderRole string) (participantID string, isAgent bool, err error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", false, err
	}
	if senderRole == domain.RoleVisitor {
		return sess.AgentID, true, nil
	}
	return sess.VisitorID, false, nil
}

// Messages returns the full backlog for a session the caller participates
// in. participantID may be the visitor's assigned id or the agent id; any
// other caller gets ErrSessionNotFound rather than a distinguishable
// forbidden (the session's existence is not leaked).
func (s *SessionService) Messages(ctx context.Context, sessionID, participantID string) ([]domain.ChatMessage, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if participantID != "" && participantID != sess.VisitorID && participantID != sess.AgentID {
		return nil, ErrSessionNotFound
	}
	return repo.ListMessages(ctx, s.DB, sessionID)
}

// MessagesPage returns one page of the backlog plus the total count.
func (s *SessionService) MessagesPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatMessage{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, sessionID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// ListActive returns the agent's live sessions.
func (s *SessionService) ListActive(ctx context.Context, agentID string) ([]domain.ChatSession, error) {
	return repo.ListActiveSessions(ctx, s.DB, agentID)
}

// ListAll returns every session including ended history (reporting view).
func (s *SessionService) ListAll(ctx context.Context) ([]domain.ChatSession, error) {
	return repo.ListAllSessions(ctx, s.DB)
}

// CountTotal returns the all-time session count (reporting view).
func (s *SessionService) CountTotal(ctx context.Context) (int64, error) {
	return repo.CountSessions(ctx, s.DB)
}

func (s *SessionService) pusher() ChannelPusher {
	if s.Push != nil {
		return s.Push
	}
	return nopPusher{}
}
