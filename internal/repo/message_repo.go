// ChatMessage persistence. Messages are append-only; the
// backlog endpoints page through them in creation order.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
)

// CreateMessage appends one message to a session.
func CreateMessage(ctx context.Context, db *gorm.DB, sessionID, senderRole, senderID, text, kind string) (*domain.ChatMessage, error) {
	if kind == "" {
		kind = "text"
	}
	m := &domain.ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		SenderRole: senderRole,
		SenderID:   senderID,
		Text:       text,
		Kind:       kind,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the session backlog in send order.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CountMessages returns the backlog size for pagination.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns one page of the backlog in send order.
func ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
