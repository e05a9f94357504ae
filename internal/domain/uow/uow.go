package uow

import (
	"context"

	"approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/history"
	"approval-engine/internal/domain/workflow"
)

// Repos are bound to one transaction.
type Repos struct {
	Workflows workflow.Repository
	Approvals approval.Repository
	Votes     approval.VoteRepository
	History   history.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// lock the approval row first, then pass it in
	WithinApprovalTx(ctx context.Context, approvalID string, fn func(r Repos, a *approval.Approval) error) error
	// lock the workflow row (with its levels) for an admin write
	WithinWorkflowTx(ctx context.Context, workflowID uint64, fn func(r Repos, w *workflow.Workflow) error) error
}
