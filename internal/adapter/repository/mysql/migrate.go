package mysql

import (
	"approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/history"
	"approval-engine/internal/domain/workflow"

	"gorm.io/gorm"
)

// Migrate creates or updates the engine's tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&workflow.Workflow{},
		&workflow.Level{},
		&approval.Approval{},
		&approval.LevelApprover{},
		&history.ApprovalHistory{},
	)
}
