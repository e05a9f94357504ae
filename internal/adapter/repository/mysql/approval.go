package mysql

import (
	"context"
	"time"

	approvalDomain "approval-engine/internal/domain/approval"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApprovalRepository struct{ db *gorm.DB }

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository { return &ApprovalRepository{db: db} }

// columns a caller may order listings by
var approvalOrderColumns = map[string]bool{
	"requested_at":           true,
	"due_date":               true,
	"priority":               true,
	"status":                 true,
	"current_approval_level": true,
	"updated_at":             true,
}

func (r *ApprovalRepository) Create(ctx context.Context, a *approvalDomain.Approval) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *ApprovalRepository) GetByApprovalID(ctx context.Context, approvalID string) (*approvalDomain.Approval, error) {
	var out approvalDomain.Approval
	if err := r.db.WithContext(ctx).
		Where("approval_id = ?", approvalID).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ApprovalRepository) GetByApprovalIDForUpdate(ctx context.Context, approvalID string) (*approvalDomain.Approval, error) {
	var out approvalDomain.Approval
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("approval_id = ?", approvalID).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ApprovalRepository) UpdateVersioned(ctx context.Context, a *approvalDomain.Approval) error {
	next := a.Version + 1
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&approvalDomain.Approval{}).
		Where("id = ? AND version = ?", a.ID, a.Version).
		Updates(map[string]any{
			"current_approver_id":    a.CurrentApproverID,
			"current_approval_level": a.CurrentApprovalLevel,
			"status":                 a.Status,
			"priority":               a.Priority,
			"due_date":               a.DueDate,
			"is_overdue":             a.IsOverdue,
			"completed_at":           a.CompletedAt,
			"completed_by":           a.CompletedBy,
			"version":                next,
			"updated_at":             now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return approvalDomain.ErrConcurrencyConflict
	}
	a.Version = next
	a.UpdatedAt = now
	return nil
}

func (r *ApprovalRepository) List(ctx context.Context, f approvalDomain.Filter) ([]approvalDomain.Approval, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := r.filtered(ctx, f)
	col := f.OrderBy
	if !approvalOrderColumns[col] {
		col = "requested_at"
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: f.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: f.Desc})
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var out []approvalDomain.Approval
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ApprovalRepository) Count(ctx context.Context, f approvalDomain.Filter) (int64, error) {
	var n int64
	err := r.filtered(ctx, f).Count(&n).Error
	return n, err
}

func (r *ApprovalRepository) CountByModule(ctx context.Context, f approvalDomain.Filter) ([]approvalDomain.ModuleCount, error) {
	var out []approvalDomain.ModuleCount
	err := r.filtered(ctx, f).
		Select("module_name, COUNT(*) AS count").
		Group("module_name").
		Order("module_name").
		Scan(&out).Error
	return out, err
}

func (r *ApprovalRepository) OverdueCandidates(ctx context.Context, now time.Time, afterID uint64, limit int) ([]approvalDomain.Candidate, error) {
	var out []approvalDomain.Candidate
	q := r.db.WithContext(ctx).
		Model(&approvalDomain.Approval{}).
		Select("id, approval_id").
		Where("status = ? AND is_overdue = ? AND due_date IS NOT NULL AND due_date < ? AND id > ?",
			approvalDomain.StatusPending, false, now, afterID).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(&out).Error
	return out, err
}

func (r *ApprovalRepository) CountOpenByWorkflow(ctx context.Context, workflowID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&approvalDomain.Approval{}).
		Where("workflow_id = ? AND status IN ?", workflowID,
			[]approvalDomain.Status{approvalDomain.StatusPending, approvalDomain.StatusEscalated}).
		Count(&n).Error
	return n, err
}

func (r *ApprovalRepository) filtered(ctx context.Context, f approvalDomain.Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&approvalDomain.Approval{})
	if f.ModuleName != "" {
		q = q.Where("approvals.module_name = ?", f.ModuleName)
	}
	if f.ApprovalType != "" {
		q = q.Where("approvals.approval_type = ?", f.ApprovalType)
	}
	if f.ApprovableType != "" {
		q = q.Where("approvals.approvable_type = ?", f.ApprovableType)
	}
	if f.ApprovableID != "" {
		q = q.Where("approvals.approvable_id = ?", f.ApprovableID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("approvals.status IN ?", f.Statuses)
	}
	if len(f.Priorities) > 0 {
		q = q.Where("approvals.priority IN ?", f.Priorities)
	}
	if f.Overdue != nil {
		q = q.Where("approvals.is_overdue = ?", *f.Overdue)
	}
	if f.RequestedBy != "" {
		q = q.Where("approvals.requested_by = ?", f.RequestedBy)
	}
	if f.ApproverID != "" {
		q = q.Where(`(approvals.current_approver_id = ? OR EXISTS (
			SELECT 1 FROM approval_level_approvers v
			WHERE v.approval_id = approvals.id
			  AND v.level_number = approvals.current_approval_level
			  AND v.approver_id = ?
			  AND v.decision = ?))`, f.ApproverID, f.ApproverID, approvalDomain.DecisionPending)
	}
	if f.From != nil {
		q = q.Where("approvals.requested_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("approvals.requested_at < ?", *f.To)
	}
	return q
}
