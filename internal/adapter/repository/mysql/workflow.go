package mysql

import (
	"context"

	workflowDomain "approval-engine/internal/domain/workflow"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkflowRepository struct{ db *gorm.DB }

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository { return &WorkflowRepository{db: db} }

func orderedLevels(db *gorm.DB) *gorm.DB { return db.Order("level_number") }

func (r *WorkflowRepository) Create(ctx context.Context, w *workflowDomain.Workflow) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WorkflowRepository) Update(ctx context.Context, w *workflowDomain.Workflow) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(w).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", w.ID).Delete(&workflowDomain.Level{}).Error; err != nil {
			return err
		}
		if len(w.Levels) == 0 {
			return nil
		}
		for i := range w.Levels {
			w.Levels[i].ID = 0
			w.Levels[i].WorkflowID = w.ID
		}
		return tx.Create(&w.Levels).Error
	})
}

func (r *WorkflowRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_id = ?", id).Delete(&workflowDomain.Level{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&workflowDomain.Workflow{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id uint64) (*workflowDomain.Workflow, error) {
	var out workflowDomain.Workflow
	if err := r.db.WithContext(ctx).
		Preload("Levels", orderedLevels).
		First(&out, id).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *WorkflowRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*workflowDomain.Workflow, error) {
	return r.lockByID(ctx, id, clause.LockingStrengthUpdate)
}

func (r *WorkflowRepository) GetByIDForShare(ctx context.Context, id uint64) (*workflowDomain.Workflow, error) {
	return r.lockByID(ctx, id, clause.LockingStrengthShare)
}

func (r *WorkflowRepository) lockByID(ctx context.Context, id uint64, strength string) (*workflowDomain.Workflow, error) {
	var out workflowDomain.Workflow
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: strength}).
		Preload("Levels", orderedLevels).
		First(&out, id).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *WorkflowRepository) GetByCode(ctx context.Context, code string) (*workflowDomain.Workflow, error) {
	var out workflowDomain.Workflow
	if err := r.db.WithContext(ctx).
		Preload("Levels", orderedLevels).
		Where("workflow_code = ?", code).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *WorkflowRepository) ListActive(ctx context.Context, module, approvalType string) ([]workflowDomain.Workflow, error) {
	var out []workflowDomain.Workflow
	err := r.db.WithContext(ctx).
		Preload("Levels", orderedLevels).
		Where("module_name = ? AND approval_type = ? AND is_active = ?", module, approvalType, true).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *WorkflowRepository) List(ctx context.Context, module string) ([]workflowDomain.Workflow, error) {
	var out []workflowDomain.Workflow
	q := r.db.WithContext(ctx).Preload("Levels", orderedLevels)
	if module != "" {
		q = q.Where("module_name = ?", module)
	}
	err := q.Order("module_name").Order("id").Find(&out).Error
	return out, err
}
