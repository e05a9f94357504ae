// Package workflow is the workflow definition store: lookup of active
// templates for the engine plus admin maintenance and YAML seeding.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/uow"
	"approval-engine/internal/domain/workflow"
	"approval-engine/pkg/condition"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type Store struct {
	repo workflow.Repository
	tx   uow.UnitOfWork
	log  *zap.Logger
}

// NewStore reads through repo; admin writes run in tx with the workflow
// row locked.
func NewStore(repo workflow.Repository, tx uow.UnitOfWork, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{repo: repo, tx: tx, log: log}
}

func (s *Store) IsActive(w *workflow.Workflow) bool { return w != nil && w.IsActive }

// GetWorkflow returns the first active workflow for (module, approvalType).
func (s *Store) GetWorkflow(ctx context.Context, module, approvalType string) (*workflow.Workflow, error) {
	list, err := s.repo.ListActive(ctx, module, approvalType)
	if err != nil {
		return nil, persistence(err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", approval.ErrWorkflowNotFound, module, approvalType)
	}
	return &list[0], nil
}

// Select returns the first active workflow for (module, approvalType) whose
// activation conditions match data. A workflow whose conditions cannot be
// evaluated is skipped.
func (s *Store) Select(ctx context.Context, module, approvalType string, data map[string]any) (*workflow.Workflow, error) {
	list, err := s.repo.ListActive(ctx, module, approvalType)
	if err != nil {
		return nil, persistence(err)
	}
	for i := range list {
		ok, err := condition.Evaluate(ctx, list[i].ActivationConditions.Data().Set, data)
		if err != nil {
			s.log.Warn("workflow activation conditions failed",
				zap.String("workflow_code", list[i].WorkflowCode), zap.Error(err))
			continue
		}
		if ok {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no active workflow matches %s/%s", approval.ErrWorkflowNotFound, module, approvalType)
}

func (s *Store) GetByID(ctx context.Context, id uint64) (*workflow.Workflow, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (s *Store) GetByCode(ctx context.Context, code string) (*workflow.Workflow, error) {
	w, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (s *Store) List(ctx context.Context, module string) ([]workflow.Workflow, error) {
	list, err := s.repo.List(ctx, module)
	if err != nil {
		return nil, persistence(err)
	}
	return list, nil
}

func (s *Store) Create(ctx context.Context, d Definition) (*workflow.Workflow, error) {
	w := d.Entity()
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", approval.ErrInvalidWorkflow, err)
	}
	if err := s.repo.Create(ctx, w); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: workflow_code %q already exists", approval.ErrValidation, w.WorkflowCode)
		}
		return nil, persistence(err)
	}
	s.log.Info("workflow created", zap.String("workflow_code", w.WorkflowCode), zap.Uint64("workflow_id", w.ID))
	return w, nil
}

// Update replaces the definition of workflow id. While open approvals
// reference it, only changes that keep their routing are accepted: level
// names, approver lists, SLAs, activation conditions and the header.
func (s *Store) Update(ctx context.Context, id uint64, d Definition) (*workflow.Workflow, error) {
	w := d.Entity()
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", approval.ErrInvalidWorkflow, err)
	}
	err := s.tx.WithinWorkflowTx(ctx, id, func(r uow.Repos, cur *workflow.Workflow) error {
		w.ID = cur.ID
		w.CreatedAt = cur.CreatedAt
		if !cur.SameRouting(w) {
			open, err := r.Approvals.CountOpenByWorkflow(ctx, id)
			if err != nil {
				return err
			}
			if open > 0 {
				return fmt.Errorf("%w: %d open approvals depend on its levels", approval.ErrWorkflowInUse, open)
			}
		}
		if err := r.Workflows.Update(ctx, w); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: workflow_code %q already exists", approval.ErrValidation, w.WorkflowCode)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	s.log.Info("workflow updated", zap.String("workflow_code", w.WorkflowCode), zap.Uint64("workflow_id", w.ID))
	return w, nil
}

func (s *Store) SetActive(ctx context.Context, id uint64, active bool) (*workflow.Workflow, error) {
	var out *workflow.Workflow
	err := s.tx.WithinWorkflowTx(ctx, id, func(r uow.Repos, cur *workflow.Workflow) error {
		cur.IsActive = active
		out = cur
		return r.Workflows.Update(ctx, cur)
	})
	if err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

// Delete removes a workflow no open approval refers to. The count and the
// delete share one transaction holding the workflow row, so an approval
// being created against it either commits first and is counted or waits.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	err := s.tx.WithinWorkflowTx(ctx, id, func(r uow.Repos, _ *workflow.Workflow) error {
		open, err := r.Approvals.CountOpenByWorkflow(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: %d open approvals", approval.ErrWorkflowInUse, open)
		}
		return r.Workflows.Delete(ctx, id)
	})
	if err != nil {
		return notFound(err)
	}
	s.log.Info("workflow deleted", zap.Uint64("workflow_id", id))
	return nil
}

// Seed upserts definitions by workflow_code. A definition that would
// reroute open approvals is skipped and counted.
func (s *Store) Seed(ctx context.Context, defs []Definition) (SeedReport, error) {
	var rep SeedReport
	for _, d := range defs {
		cur, err := s.repo.GetByCode(ctx, d.WorkflowCode)
		switch {
		case err == nil:
			_, err := s.Update(ctx, cur.ID, d)
			switch {
			case errors.Is(err, approval.ErrWorkflowInUse):
				s.log.Warn("seed left workflow unchanged", zap.String("workflow_code", d.WorkflowCode), zap.Error(err))
				rep.Skipped++
			case err != nil:
				return rep, fmt.Errorf("seed %s: %w", d.WorkflowCode, err)
			default:
				rep.Updated++
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if _, err := s.Create(ctx, d); err != nil {
				return rep, fmt.Errorf("seed %s: %w", d.WorkflowCode, err)
			}
			rep.Created++
		default:
			return rep, persistence(err)
		}
	}
	return rep, nil
}

// LoadDefinitions reads a YAML file with a top-level "workflows" list.
func LoadDefinitions(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f definitionFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Workflows, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return approval.ErrWorkflowNotFound
	}
	return persistence(err)
}

func persistence(err error) error {
	if approval.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", approval.ErrPersistence, err)
}
