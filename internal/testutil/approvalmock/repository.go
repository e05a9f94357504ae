package approvalmock

import (
	"context"
	"errors"
	"time"

	domain "approval-engine/internal/domain/approval"
)

var _ domain.Repository = (*Repo)(nil)

var errUnimplemented = errors.New("approvalmock: method not implemented")

// Repo is a function-backed mock that satisfies domain.Repository.
// Unfilled lookups return errUnimplemented; Create is a no-op.
type Repo struct {
	CreateFn                   func(ctx context.Context, a *domain.Approval) error
	GetByApprovalIDFn          func(ctx context.Context, approvalID string) (*domain.Approval, error)
	GetByApprovalIDForUpdateFn func(ctx context.Context, approvalID string) (*domain.Approval, error)
	UpdateVersionedFn          func(ctx context.Context, a *domain.Approval) error
	ListFn                     func(ctx context.Context, f domain.Filter) ([]domain.Approval, int64, error)
	CountFn                    func(ctx context.Context, f domain.Filter) (int64, error)
	CountByModuleFn            func(ctx context.Context, f domain.Filter) ([]domain.ModuleCount, error)
	OverdueCandidatesFn        func(ctx context.Context, now time.Time, afterID uint64, limit int) ([]domain.Candidate, error)
	CountOpenByWorkflowFn      func(ctx context.Context, workflowID uint64) (int64, error)
}

func (m *Repo) Create(ctx context.Context, a *domain.Approval) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, a)
	}
	return nil
}

func (m *Repo) GetByApprovalID(ctx context.Context, approvalID string) (*domain.Approval, error) {
	if m.GetByApprovalIDFn != nil {
		return m.GetByApprovalIDFn(ctx, approvalID)
	}
	return nil, errUnimplemented
}

func (m *Repo) GetByApprovalIDForUpdate(ctx context.Context, approvalID string) (*domain.Approval, error) {
	if m.GetByApprovalIDForUpdateFn != nil {
		return m.GetByApprovalIDForUpdateFn(ctx, approvalID)
	}
	return nil, errUnimplemented
}

func (m *Repo) UpdateVersioned(ctx context.Context, a *domain.Approval) error {
	if m.UpdateVersionedFn != nil {
		return m.UpdateVersionedFn(ctx, a)
	}
	return errUnimplemented
}

func (m *Repo) List(ctx context.Context, f domain.Filter) ([]domain.Approval, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, f)
	}
	return nil, 0, errUnimplemented
}

func (m *Repo) Count(ctx context.Context, f domain.Filter) (int64, error) {
	if m.CountFn != nil {
		return m.CountFn(ctx, f)
	}
	return 0, errUnimplemented
}

func (m *Repo) CountByModule(ctx context.Context, f domain.Filter) ([]domain.ModuleCount, error) {
	if m.CountByModuleFn != nil {
		return m.CountByModuleFn(ctx, f)
	}
	return nil, errUnimplemented
}

func (m *Repo) OverdueCandidates(ctx context.Context, now time.Time, afterID uint64, limit int) ([]domain.Candidate, error) {
	if m.OverdueCandidatesFn != nil {
		return m.OverdueCandidatesFn(ctx, now, afterID, limit)
	}
	return nil, errUnimplemented
}

func (m *Repo) CountOpenByWorkflow(ctx context.Context, workflowID uint64) (int64, error) {
	if m.CountOpenByWorkflowFn != nil {
		return m.CountOpenByWorkflowFn(ctx, workflowID)
	}
	return 0, errUnimplemented
}
