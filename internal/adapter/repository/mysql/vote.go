package mysql

import (
	"context"
	"time"

	approvalDomain "approval-engine/internal/domain/approval"

	"gorm.io/gorm"
)

// VoteRepository stores the approver slots of parallel levels.
type VoteRepository struct{ db *gorm.DB }

func NewVoteRepository(db *gorm.DB) *VoteRepository { return &VoteRepository{db: db} }

func (r *VoteRepository) CreateBatch(ctx context.Context, votes []approvalDomain.LevelApprover) error {
	if len(votes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&votes).Error
}

func (r *VoteRepository) ListForLevel(ctx context.Context, approvalID uint64, level int) ([]approvalDomain.LevelApprover, error) {
	var out []approvalDomain.LevelApprover
	err := r.db.WithContext(ctx).
		Where("approval_id = ? AND level_number = ?", approvalID, level).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *VoteRepository) Decide(ctx context.Context, voteID uint64, d approvalDomain.Decision, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&approvalDomain.LevelApprover{}).
		Where("id = ?", voteID).
		Updates(map[string]any{"decision": d, "decided_at": at}).Error
}

func (r *VoteRepository) Reassign(ctx context.Context, voteID uint64, approverID string) error {
	return r.db.WithContext(ctx).
		Model(&approvalDomain.LevelApprover{}).
		Where("id = ?", voteID).
		Update("approver_id", approverID).Error
}

func (r *VoteRepository) DeletePending(ctx context.Context, approvalID uint64, level int) error {
	return r.db.WithContext(ctx).
		Where("approval_id = ? AND level_number = ? AND decision = ?", approvalID, level, approvalDomain.DecisionPending).
		Delete(&approvalDomain.LevelApprover{}).Error
}

func (r *VoteRepository) DeleteLevel(ctx context.Context, approvalID uint64, level int) error {
	return r.db.WithContext(ctx).
		Where("approval_id = ? AND level_number = ?", approvalID, level).
		Delete(&approvalDomain.LevelApprover{}).Error
}
