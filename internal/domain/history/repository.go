package history

import "context"

type Repository interface {
	// Append stores h with the next sequence number of its approval.
	Append(ctx context.Context, h *ApprovalHistory) error

	// ListByApprovalID returns rows ordered by action_at, then sequence.
	ListByApprovalID(ctx context.Context, approvalID uint64) ([]ApprovalHistory, error)

	Count(ctx context.Context, approvalID uint64) (int64, error)
}
