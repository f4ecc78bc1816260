// Notification persistence.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
)

// CreateNotification inserts a new unread notification.
func CreateNotification(ctx context.Context, db *gorm.DB, typ, title, body, ticketToken string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:                 uuid.NewString(),
		Type:               typ,
		Title:              title,
		Body:               body,
		RelatedTicketToken: ticketToken,
		CreatedAt:          time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotifications returns the most recent notifications, capped at limit.
func ListNotifications(ctx context.Context, db *gorm.DB, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Notification
	err := db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountUnreadNotifications returns the badge count.
func CountUnreadNotifications(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("read = ?", false).
		Count(&total).Error
	return total, err
}

// MarkNotificationRead flips the read flag. Returns ErrNotFound when the
// notification does not exist.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteNotification removes one notification. Returns ErrNotFound when it
// does not exist.
func DeleteNotification(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.Notification{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearNotifications deletes every notification.
func ClearNotifications(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.Notification{}).Error
}
