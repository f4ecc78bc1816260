// ChatRequest persistence.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the thin-repository
// approach: no business logic, only CRUD persistence and the status
// compare-and-swap the accept race depends on.
//
// Error semantics:
//   - When a request is not found, functions return gorm.ErrRecordNotFound
//     (exported here as ErrNotFound).
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
)

// CreateRequest inserts a new pending ChatRequest. The request ID and the
// visitor participant id are freshly generated UUIDs; ExpiresAt is
// CreatedAt + budget.
func CreateRequest(ctx context.Context, db *gorm.DB, req *domain.ChatRequest, budget time.Duration) (*domain.ChatRequest, error) {
	now := time.Now().UTC()
	req.ID = uuid.NewString()
	req.VisitorID = "v-" + uuid.NewString()
	req.Status = domain.RequestPending
	req.CreatedAt = now
	req.ExpiresAt = now.Add(budget)
	if err := db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// GetRequest fetches a request by ID, or ErrNotFound.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.ChatRequest, error) {
	var r domain.ChatRequest
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPendingRequests returns all unexpired pending requests, oldest first
// (queue order for the console).
func ListPendingRequests(ctx context.Context, db *gorm.DB) ([]domain.ChatRequest, error) {
	var out []domain.ChatRequest
	err := db.WithContext(ctx).
		Where("status = ? AND expires_at > ?", domain.RequestPending, time.Now().UTC()).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListRejectedRequests returns resolved-rejected requests, most recent
// first. Reporting view only.
func ListRejectedRequests(ctx context.Context, db *gorm.DB) ([]domain.ChatRequest, error) {
	var out []domain.ChatRequest
	err := db.WithContext(ctx).
		Where("status = ?", domain.RequestRejected).
		Order("resolved_at desc").
		Find(&out).Error
	return out, err
}

// ResolveRequest performs the single-outcome compare-and-swap: it moves a
// request from pending to the given terminal status, recording the resolving
// agent (empty for expiry/cancel). RowsAffected == 0 means another outcome
// won the race (or the request never existed); callers translate that into
// their conflict semantics.
func ResolveRequest(ctx context.Context, db *gorm.DB, id, status, agentID string) (bool, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.ChatRequest{}).
		Where("id = ? AND status = ?", id, domain.RequestPending).
		Updates(map[string]any{
			"status":      status,
			"assigned_to": agentID,
			"resolved_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SweepExpiredRequests marks every pending request whose deadline has passed
// as expired and returns the affected rows so the caller can notify both
// sides of the protocol.
func SweepExpiredRequests(ctx context.Context, db *gorm.DB) ([]domain.ChatRequest, error) {
	now := time.Now().UTC()
	var stale []domain.ChatRequest
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ? AND expires_at <= ?", domain.RequestPending, now).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		ids := make([]string, 0, len(stale))
		for i := range stale {
			ids = append(ids, stale[i].ID)
		}
		return tx.
			Model(&domain.ChatRequest{}).
			Where("id IN ? AND status = ?", ids, domain.RequestPending).
			Updates(map[string]any{"status": domain.RequestExpired, "resolved_at": now}).Error
	})
	return stale, err
}
