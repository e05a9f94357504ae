package mysql

import (
	"context"
	"errors"

	"approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/uow"
	"approval-engine/internal/domain/workflow"

	"gorm.io/gorm"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func reposFor(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Workflows: &WorkflowRepository{db: tx},
		Approvals: &ApprovalRepository{db: tx},
		Votes:     &VoteRepository{db: tx},
		History:   &HistoryRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	})
	return Classify(err)
}

func (u *GormUoW) WithinApprovalTx(ctx context.Context, approvalID string, fn func(r uow.Repos, a *approval.Approval) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		// lock the approval row up-front to serialize transitions
		a, err := r.Approvals.GetByApprovalIDForUpdate(ctx, approvalID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return approval.ErrNotFound
			}
			return err
		}
		return fn(r, a)
	})
	return Classify(err)
}

// WithinWorkflowTx holds the workflow row for update, which waits out any
// approval creation holding it in share mode.
func (u *GormUoW) WithinWorkflowTx(ctx context.Context, workflowID uint64, fn func(r uow.Repos, w *workflow.Workflow) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		w, err := r.Workflows.GetByIDForUpdate(ctx, workflowID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return approval.ErrWorkflowNotFound
			}
			return err
		}
		return fn(r, w)
	})
	return Classify(err)
}
