package mysql

import (
	"testing"
	"time"

	approvalDomain "approval-engine/internal/domain/approval"
	workflowDomain "approval-engine/internal/domain/workflow"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB creates an in-memory sqlite DB with the full schema.
// One connection keeps every query on the same in-memory database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func makeWorkflow(code string, levels int) *workflowDomain.Workflow {
	w := &workflowDomain.Workflow{
		WorkflowName: "Workflow " + code,
		WorkflowCode: code,
		ModuleName:   "procurement",
		ApprovalType: "purchase_request",
		WorkflowType: workflowDomain.TypeSequential,
		TotalLevels:  levels,
		IsActive:     true,
	}
	for n := levels; n >= 1; n-- { // reversed on purpose, reads must order them
		w.Levels = append(w.Levels, workflowDomain.Level{
			LevelNumber:     n,
			LevelName:       "L" + string(rune('0'+n)),
			ApproverUserIDs: datatypes.NewJSONType([]string{"u-approver"}),
			SLAHours:        24,
		})
	}
	return w
}

func makeApproval(approvalID string, workflowID uint64, when time.Time) *approvalDomain.Approval {
	approver := "u-approver"
	return &approvalDomain.Approval{
		ApprovalID:           approvalID,
		ApprovableType:       "purchase_request",
		ApprovableID:         "PR-1",
		ApprovalType:         "purchase_request",
		ModuleName:           "procurement",
		RequestedBy:          "u-requester",
		RequestedAt:          when.UTC(),
		CurrentApproverID:    &approver,
		CurrentApprovalLevel: 1,
		TotalApprovalLevels:  2,
		Status:               approvalDomain.StatusPending,
		Priority:             approvalDomain.PriorityMedium,
		WorkflowID:           workflowID,
		RequestData:          datatypes.JSON(`{"amount": 100}`),
	}
}
