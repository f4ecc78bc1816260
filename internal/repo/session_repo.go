// ChatSession persistence.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
)

// CreateSession materializes the session for an accepted request. The unique
// index on request_id guarantees at most one session per request even if two
// accept paths ever reached this point.
func CreateSession(ctx context.Context, db *gorm.DB, req *domain.ChatRequest, agentID string) (*domain.ChatSession, error) {
	s := &domain.ChatSession{
		ID:           uuid.NewString(),
		RequestID:    req.ID,
		VisitorID:    req.VisitorID,
		VisitorName:  req.VisitorName,
		VisitorEmail: req.VisitorEmail,
		AgentID:      agentID,
		Status:       domain.SessionActive,
		StartedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by ID, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActiveSessions returns the agent's live sessions, most recent first.
func ListActiveSessions(ctx context.Context, db *gorm.DB, agentID string) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Where("agent_id = ? AND status = ?", agentID, domain.SessionActive).
		Order("started_at desc").
		Find(&out).Error
	return out, err
}

// ListAllSessions returns every session including ended ones, most recent
// first. Reporting view only.
func ListAllSessions(ctx context.Context, db *gorm.DB) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Order("started_at desc").
		Find(&out).Error
	return out, err
}

// CountSessions returns the all-time session total.
func CountSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ChatSession{}).Count(&total).Error
	return total, err
}

// EndSession sets ended_at exactly once. The guard on status makes the call
// idempotent: ending an already-ended session affects zero rows and reports
// alreadyEnded=false via the boolean.
func EndSession(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Updates(map[string]any{"status": domain.SessionEnded, "ended_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
