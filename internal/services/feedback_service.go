// FeedbackService records the visitor's
// satisfaction rating for an ended session. It enforces the gate's rules
// (three mandatory 1..5 ratings, session must exist and be over, at most one
// record per session) and persists the record atomically. Skipping the gate
// is a purely client-side path and never reaches this service.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/repo"
)

// FeedbackService implements the feedback use-cases.
type FeedbackService struct {
	DB *gorm.DB
}

// LeaveFeedbackInput is the payload for Leave.
type LeaveFeedbackInput struct {
	SessionID      string
	VisitorID      string
	Overall        int
	SupportQuality int
	ResponseTime   int
	Comments       string
	WouldRecommend bool
}

// Leave records the feedback for a session.
//
// Semantics and validation:
//   - all three ratings must be in 1..5; otherwise ErrInvalidRating.
//   - the session must exist; otherwise ErrSessionNotFound.
//   - the caller must be the session's visitor; otherwise ErrSessionNotFound.
//   - the session must already be ended; otherwise ErrSessionNotEnded.
//   - at most one record per session; a second attempt yields
//     ErrDuplicateFeedback.
//
// The existence checks and the insert run inside one transaction.
func (s *FeedbackService) Leave(ctx context.Context, in LeaveFeedbackInput) error {
	for _, v := range []int{in.Overall, in.SupportQuality, in.ResponseTime} {
		if v < 1 || v > 5 {
			return ErrInvalidRating
		}
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.GetSession(ctx, tx, in.SessionID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if in.VisitorID != "" && in.VisitorID != sess.VisitorID {
			return ErrSessionNotFound
		}
		if !sess.Ended() {
			return ErrSessionNotEnded
		}

		fb := &domain.ChatFeedback{
			SessionID:      sess.ID,
			VisitorID:      sess.VisitorID,
			AgentID:        sess.AgentID,
			Overall:        in.Overall,
			SupportQuality: in.SupportQuality,
			ResponseTime:   in.ResponseTime,
			Comments:       strings.TrimSpace(in.Comments),
			WouldRecommend: in.WouldRecommend,
		}
		if err := repo.CreateFeedback(ctx, tx, fb); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
				return ErrDuplicateFeedback
			}
			return err
		}
		return nil
	})
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
