package approval

import (
	"context"

	domainApproval "approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/workflow"
)

// WorkflowStore is the read side of the workflow definition store.
type WorkflowStore interface {
	GetByID(ctx context.Context, id uint64) (*workflow.Workflow, error)
	GetByCode(ctx context.Context, code string) (*workflow.Workflow, error)
	Select(ctx context.Context, module, approvalType string, data map[string]any) (*workflow.Workflow, error)
	IsActive(w *workflow.Workflow) bool
}

// ApproverQuery describes the level whose approvers are being resolved.
type ApproverQuery struct {
	Workflow    *workflow.Workflow
	Level       *workflow.Level
	RequestedBy string
	Data        map[string]any
}

// ApproverResolver maps a level's approver policy to user ids.
// An empty result leaves the level unassigned.
type ApproverResolver interface {
	ResolveApprovers(ctx context.Context, q ApproverQuery) ([]string, error)
}

// EscalationResolver walks the org hierarchy above from. It returns ""
// when nobody can take the approval over.
type EscalationResolver interface {
	EscalationTarget(ctx context.Context, a *domainApproval.Approval, from string) (string, error)
}

type ApprovableResolver interface {
	Resolve(ctx context.Context, approvableType, approvableID string) (any, error)
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Metrics interface {
	ObserveTransition(action, outcome string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error { return nil }

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, string) {}
