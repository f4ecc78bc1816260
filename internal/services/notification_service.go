// NotificationService persists out-of-band alerts and fans them out over
// the notification stream. Each mutation
// (create, read, delete, clear) is mirrored to every connected stream
// subscriber so badge counts stay live without polling. When an AMQP
// publisher is configured, created notifications are additionally published
// as domain events for external consumers.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/events"
	"github.com/venturing/go-livechat-backend/internal/protocol"
	"github.com/venturing/go-livechat-backend/internal/repo"
)

// NotificationService implements the notification use-cases.
type NotificationService struct {
	DB     *gorm.DB
	Stream StreamBroadcaster
	Events events.Publisher
}

// Create persists an unread notification, pushes a new_notification event to
// every stream subscriber, and publishes the domain event when an AMQP
// publisher is configured. Fan-out failures never fail the write.
func (s *NotificationService) Create(ctx context.Context, typ, title, body, ticketToken string) (*domain.Notification, error) {
	n, err := repo.CreateNotification(ctx, s.DB, typ, title, body, ticketToken)
	if err != nil {
		return nil, err
	}

	s.broadcast(protocol.TypeNewNotification, eventFor(n))

	if s.Events != nil {
		if err := s.Events.Publish(ctx, "support.notification.created", n); err != nil {
			log.Warn().Err(err).Str("notification_id", n.ID).Msg("amqp publish failed")
		}
	}
	return n, nil
}

// List returns the most recent notifications.
func (s *NotificationService) List(ctx context.Context, limit int) ([]domain.Notification, error) {
	return repo.ListNotifications(ctx, s.DB, limit)
}

// BacklogFrames encodes the recent notifications as individual stream
// events, oldest first, for replay to a fresh stream subscriber. Subscribers
// dedup by id, so a replay overlapping a live push stays single.
func (s *NotificationService) BacklogFrames(ctx context.Context, limit int) [][]byte {
	ns, err := repo.ListNotifications(ctx, s.DB, limit)
	if err != nil {
		log.Warn().Err(err).Msg("notification backlog load failed")
		return nil
	}
	frames := make([][]byte, 0, len(ns))
	for i := len(ns) - 1; i >= 0; i-- {
		frame, err := protocol.Encode(protocol.TypeNotification, eventFor(&ns[i]))
		if err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

// UnreadCount returns the badge count.
func (s *NotificationService) UnreadCount(ctx context.Context) (int64, error) {
	return repo.CountUnreadNotifications(ctx, s.DB)
}

// MarkRead flips one notification to read and mirrors the change on the
// stream.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	if err := repo.MarkNotificationRead(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	s.broadcast(protocol.TypeNotificationRead, protocol.NotificationRef{NotificationID: id})
	return nil
}

// Delete removes one notification and mirrors the change on the stream.
func (s *NotificationService) Delete(ctx context.Context, id string) error {
	if err := repo.DeleteNotification(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	s.broadcast(protocol.TypeNotificationDeleted, protocol.NotificationRef{NotificationID: id})
	return nil
}

// Clear deletes every notification and zeroes every subscriber's badge.
func (s *NotificationService) Clear(ctx context.Context) error {
	if err := repo.ClearNotifications(ctx, s.DB); err != nil {
		return err
	}
	s.broadcast(protocol.TypeNotificationsCleared, nil)
	return nil
}

// broadcast encodes and fans one stream event out; encoding failures are
// logged and dropped.
func (s *NotificationService) broadcast(typ string, payload any) {
	if s.Stream == nil {
		return
	}
	frame, err := protocol.Encode(typ, payload)
	if err != nil {
		log.Error().Err(err).Str("type", typ).Msg("encode stream event")
		return
	}
	s.Stream.Broadcast(frame)
}

// eventFor converts a persisted notification into its stream payload.
func eventFor(n *domain.Notification) protocol.NotificationEvent {
	return protocol.NotificationEvent{
		ID:                 n.ID,
		Type:               n.Type,
		Title:              n.Title,
		Body:               n.Body,
		RelatedTicketToken: n.RelatedTicketToken,
		Read:               n.Read,
		CreatedAt:          n.CreatedAt.Format(time.RFC3339),
	}
}
