package history

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Action string

const (
	ActionSubmitted      Action = "submitted"
	ActionAssigned       Action = "assigned"
	ActionApproved       Action = "approved"
	ActionRejected       Action = "rejected"
	ActionEscalated      Action = "escalated"
	ActionCancelled      Action = "cancelled"
	ActionCommented      Action = "commented"
	ActionDelegated      Action = "delegated"
	ActionLevelCompleted Action = "level_completed"
)

func (a Action) Valid() bool {
	switch a {
	case ActionSubmitted, ActionAssigned, ActionApproved, ActionRejected, ActionEscalated,
		ActionCancelled, ActionCommented, ActionDelegated, ActionLevelCompleted:
		return true
	}
	return false
}

var ErrImmutable = errors.New("approval history is append-only")

// Table: approval_histories
type ApprovalHistory struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// FK to approvals.id (numeric)
	ApprovalID uint64 `gorm:"column:approval_id;not null;uniqueIndex:ux_histories_sequence"`
	// 1..n per approval, gap-free, in commit order
	Sequence        int       `gorm:"column:sequence;not null;uniqueIndex:ux_histories_sequence"`
	Action          Action    `gorm:"column:action;size:30;not null"`
	ActionBy        string    `gorm:"column:action_by;size:64;not null;index"`
	ActionAt        time.Time `gorm:"column:action_at;not null"`
	FromStatus      string    `gorm:"column:from_status;size:20"`
	ToStatus        string    `gorm:"column:to_status;size:20;not null"`
	ApprovalLevel   int       `gorm:"column:approval_level;not null"`
	Comments        *string   `gorm:"column:comments;type:text"`
	RejectionReason *string   `gorm:"column:rejection_reason;type:text"`
	IPAddress       string    `gorm:"column:ip_address;size:45"`
	UserAgent       string    `gorm:"column:user_agent;size:255"`
}

func (ApprovalHistory) TableName() string { return "approval_histories" }

// Rows are never rewritten once stored.
func (h *ApprovalHistory) BeforeUpdate(*gorm.DB) error { return ErrImmutable }
func (h *ApprovalHistory) BeforeDelete(*gorm.DB) error { return ErrImmutable }
