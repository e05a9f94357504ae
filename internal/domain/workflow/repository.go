package workflow

import "context"

type Repository interface {
	// Create inserts the workflow together with its levels.
	Create(ctx context.Context, w *Workflow) error

	// Update saves the header and replaces the level set.
	Update(ctx context.Context, w *Workflow) error

	Delete(ctx context.Context, id uint64) error

	// Lookups preload levels ordered by level_number.
	GetByID(ctx context.Context, id uint64) (*Workflow, error)
	GetByCode(ctx context.Context, code string) (*Workflow, error)

	// Row-locking reads for use inside a transaction. The update lock is
	// taken by admin writes, the share lock by approval creation.
	GetByIDForUpdate(ctx context.Context, id uint64) (*Workflow, error)
	GetByIDForShare(ctx context.Context, id uint64) (*Workflow, error)

	// ListActive returns active workflows for (module, approvalType) ordered by id.
	ListActive(ctx context.Context, module, approvalType string) ([]Workflow, error)

	// List returns every workflow, optionally restricted to one module.
	List(ctx context.Context, module string) ([]Workflow, error)
}
