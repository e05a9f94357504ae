package mysql

import (
	"context"

	historyDomain "approval-engine/internal/domain/history"

	"gorm.io/gorm"
)

// HistoryRepository only ever inserts; the entity's hooks refuse updates and deletes.
type HistoryRepository struct{ db *gorm.DB }

func NewHistoryRepository(db *gorm.DB) *HistoryRepository { return &HistoryRepository{db: db} }

func (r *HistoryRepository) Append(ctx context.Context, h *historyDomain.ApprovalHistory) error {
	// callers hold the approval row lock, so MAX+1 is stable; the unique
	// (approval_id, sequence) index rejects anything that slips through
	var last int
	if err := r.db.WithContext(ctx).
		Model(&historyDomain.ApprovalHistory{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("approval_id = ?", h.ApprovalID).
		Scan(&last).Error; err != nil {
		return err
	}
	h.ID = 0
	h.Sequence = last + 1
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *HistoryRepository) ListByApprovalID(ctx context.Context, approvalID uint64) ([]historyDomain.ApprovalHistory, error) {
	var out []historyDomain.ApprovalHistory
	err := r.db.WithContext(ctx).
		Where("approval_id = ?", approvalID).
		Order("action_at").
		Order("sequence").
		Find(&out).Error
	return out, err
}

func (r *HistoryRepository) Count(ctx context.Context, approvalID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&historyDomain.ApprovalHistory{}).
		Where("approval_id = ?", approvalID).
		Count(&n).Error
	return n, err
}
