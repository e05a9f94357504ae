package uowmock

import (
	"context"
	"errors"

	"approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/uow"
	"approval-engine/internal/domain/workflow"
)

// Ensure compile-time compliance
var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Fill in the function fields you need in a test; unfilled ones return errUnimplemented.
type UoW struct {
	WithinTxFn         func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinApprovalTxFn func(ctx context.Context, approvalID string, fn func(r uow.Repos, a *approval.Approval) error) error
	WithinWorkflowTxFn func(ctx context.Context, workflowID uint64, fn func(r uow.Repos, w *workflow.Workflow) error) error
}

// Convenience fluent setters
func New() *UoW { return &UoW{} }
func (m *UoW) WithWithinTx(fn func(context.Context, func(uow.Repos) error) error) *UoW {
	m.WithinTxFn = fn
	return m
}
func (m *UoW) WithWithinApprovalTx(fn func(context.Context, string, func(uow.Repos, *approval.Approval) error) error) *UoW {
	m.WithinApprovalTxFn = fn
	return m
}
func (m *UoW) WithWithinWorkflowTx(fn func(context.Context, uint64, func(uow.Repos, *workflow.Workflow) error) error) *UoW {
	m.WithinWorkflowTxFn = fn
	return m
}
func (m *UoW) Reset() { *m = UoW{} }

// Failing returns a UoW whose transactions all fail with err.
func Failing(err error) *UoW {
	return &UoW{
		WithinTxFn: func(context.Context, func(uow.Repos) error) error { return err },
		WithinApprovalTxFn: func(context.Context, string, func(uow.Repos, *approval.Approval) error) error {
			return err
		},
		WithinWorkflowTxFn: func(context.Context, uint64, func(uow.Repos, *workflow.Workflow) error) error {
			return err
		},
	}
}

// Delegate forwards to inner until a test swaps a function field.
func Delegate(inner uow.UnitOfWork) *UoW {
	return &UoW{
		WithinTxFn:         inner.WithinTx,
		WithinApprovalTxFn: inner.WithinApprovalTx,
		WithinWorkflowTxFn: inner.WithinWorkflowTx,
	}
}

// RollbackAfter runs each transaction body on inner and then fails with err,
// so the body's writes roll back as if the commit had been lost.
func RollbackAfter(inner uow.UnitOfWork, err error) *UoW {
	return &UoW{
		WithinTxFn: func(ctx context.Context, fn func(uow.Repos) error) error {
			return inner.WithinTx(ctx, func(r uow.Repos) error {
				if e := fn(r); e != nil {
					return e
				}
				return err
			})
		},
		WithinApprovalTxFn: func(ctx context.Context, id string, fn func(uow.Repos, *approval.Approval) error) error {
			return inner.WithinApprovalTx(ctx, id, func(r uow.Repos, a *approval.Approval) error {
				if e := fn(r, a); e != nil {
					return e
				}
				return err
			})
		},
		WithinWorkflowTxFn: func(ctx context.Context, id uint64, fn func(uow.Repos, *workflow.Workflow) error) error {
			return inner.WithinWorkflowTx(ctx, id, func(r uow.Repos, w *workflow.Workflow) error {
				if e := fn(r, w); e != nil {
					return e
				}
				return err
			})
		},
	}
}

// Methods implementing UnitOfWork
func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}
func (m *UoW) WithinApprovalTx(ctx context.Context, approvalID string, fn func(r uow.Repos, a *approval.Approval) error) error {
	if m.WithinApprovalTxFn != nil {
		return m.WithinApprovalTxFn(ctx, approvalID, fn)
	}
	return errUnimplemented
}
func (m *UoW) WithinWorkflowTx(ctx context.Context, workflowID uint64, fn func(r uow.Repos, w *workflow.Workflow) error) error {
	if m.WithinWorkflowTxFn != nil {
		return m.WithinWorkflowTxFn(ctx, workflowID, fn)
	}
	return errUnimplemented
}
