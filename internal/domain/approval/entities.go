package approval

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusEscalated Status = "escalated"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusEscalated:
		return true
	}
	return false
}

// IsTerminal reports whether s accepts no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Table: approvals
type Approval struct {
	// Internal numeric PK
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Public identifier (32-char lowercase hex)
	ApprovalID string `gorm:"column:approval_id;type:char(32);not null;uniqueIndex:ux_approvals_approval_id"`

	// Polymorphic reference to the gated entity, owned by another module
	ApprovableType string `gorm:"column:approvable_type;size:100;not null;index:ix_approvals_approvable"`
	ApprovableID   string `gorm:"column:approvable_id;size:64;not null;index:ix_approvals_approvable"`

	ApprovalType string `gorm:"column:approval_type;size:100;not null"`
	ModuleName   string `gorm:"column:module_name;size:100;not null;index"`

	RequestedBy          string    `gorm:"column:requested_by;size:64;not null;index"`
	RequestedAt          time.Time `gorm:"column:requested_at;not null"`
	CurrentApproverID    *string   `gorm:"column:current_approver_id;size:64;index"`
	CurrentApprovalLevel int       `gorm:"column:current_approval_level;not null"`
	// Snapshot of the workflow's total_levels at creation
	TotalApprovalLevels int `gorm:"column:total_approval_levels;not null"`

	Status    Status     `gorm:"column:status;size:20;not null;index:ix_approvals_status_due"`
	Priority  Priority   `gorm:"column:priority;size:20;not null"`
	DueDate   *time.Time `gorm:"column:due_date;index:ix_approvals_status_due"`
	IsOverdue bool       `gorm:"column:is_overdue;not null"`

	WorkflowID  uint64         `gorm:"column:workflow_id;not null;index"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CompletedBy *string        `gorm:"column:completed_by;size:64"`
	RequestData datatypes.JSON `gorm:"column:request_data"`

	// Optimistic concurrency token, bumped on every write
	Version   uint64    `gorm:"column:version;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Approval) TableName() string { return "approvals" }

// Data decodes request_data; an empty payload yields an empty map.
func (a *Approval) Data() map[string]any {
	out := map[string]any{}
	if len(a.RequestData) == 0 {
		return out
	}
	if err := json.Unmarshal(a.RequestData, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// IsCurrentApprover reports whether userID holds the single-approver slot.
func (a *Approval) IsCurrentApprover(userID string) bool {
	return userID != "" && a.CurrentApproverID != nil && *a.CurrentApproverID == userID
}

// Complete moves the approval into a terminal status.
func (a *Approval) Complete(status Status, by string, at time.Time) {
	a.Status = status
	a.CompletedAt = &at
	a.CompletedBy = &by
	a.CurrentApproverID = nil
}

type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Table: approval_level_approvers
// One slot per approver seated at a parallel level.
type LevelApprover struct {
	ID          uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	ApprovalID  uint64     `gorm:"column:approval_id;not null;uniqueIndex:ux_level_approvers_slot"`
	LevelNumber int        `gorm:"column:level_number;not null;uniqueIndex:ux_level_approvers_slot"`
	ApproverID  string     `gorm:"column:approver_id;size:64;not null;uniqueIndex:ux_level_approvers_slot;index"`
	Decision    Decision   `gorm:"column:decision;size:20;not null"`
	DecidedAt   *time.Time `gorm:"column:decided_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (LevelApprover) TableName() string { return "approval_level_approvers" }
