// ChatFeedback persistence.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
)

// CreateFeedback inserts the feedback record for a session. The unique index
// on session_id makes a second submission fail with a duplicate-key error,
// which the service maps to its sentinel.
func CreateFeedback(ctx context.Context, db *gorm.DB, fb *domain.ChatFeedback) error {
	fb.ID = uuid.NewString()
	fb.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(fb).Error
}

// GetFeedback fetches the feedback for a session, or ErrNotFound.
func GetFeedback(ctx context.Context, db *gorm.DB, sessionID string) (*domain.ChatFeedback, error) {
	var fb domain.ChatFeedback
	if err := db.WithContext(ctx).First(&fb, "session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &fb, nil
}
