package approval

import (
	"context"
	"time"
)

type Filter struct {
	ModuleName     string
	ApprovalType   string
	ApprovableType string
	ApprovableID   string
	Statuses       []Status
	Priorities     []Priority
	Overdue        *bool
	RequestedBy    string
	// ApproverID matches the current approver or a pending slot at the current level
	ApproverID string
	From       *time.Time
	To         *time.Time

	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Candidate is an approval the overdue scanner should look at.
type Candidate struct {
	ID         uint64
	ApprovalID string
}

type ModuleCount struct {
	ModuleName string
	Count      int64
}

type Repository interface {
	Create(ctx context.Context, a *Approval) error

	// Get by public approval_id
	GetByApprovalID(ctx context.Context, approvalID string) (*Approval, error)

	// Same as above but takes a row lock for the rest of the transaction
	GetByApprovalIDForUpdate(ctx context.Context, approvalID string) (*Approval, error)

	// UpdateVersioned writes a guarded by its version and bumps the version.
	// A stale version yields ErrConcurrencyConflict.
	UpdateVersioned(ctx context.Context, a *Approval) error

	List(ctx context.Context, f Filter) ([]Approval, int64, error)
	Count(ctx context.Context, f Filter) (int64, error)
	CountByModule(ctx context.Context, f Filter) ([]ModuleCount, error)

	// OverdueCandidates returns pending, not yet flagged approvals due before
	// now, with id > afterID, ordered by id.
	OverdueCandidates(ctx context.Context, now time.Time, afterID uint64, limit int) ([]Candidate, error)

	// CountOpenByWorkflow counts non-terminal approvals bound to a workflow.
	CountOpenByWorkflow(ctx context.Context, workflowID uint64) (int64, error)
}

type VoteRepository interface {
	CreateBatch(ctx context.Context, votes []LevelApprover) error
	ListForLevel(ctx context.Context, approvalID uint64, level int) ([]LevelApprover, error)
	Decide(ctx context.Context, voteID uint64, d Decision, at time.Time) error
	Reassign(ctx context.Context, voteID uint64, approverID string) error
	DeletePending(ctx context.Context, approvalID uint64, level int) error
	DeleteLevel(ctx context.Context, approvalID uint64, level int) error
}
