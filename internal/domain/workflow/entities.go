package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"approval-engine/pkg/condition"

	"gorm.io/datatypes"
)

type Type string

const (
	TypeSequential  Type = "sequential"
	TypeParallel    Type = "parallel"
	TypeConditional Type = "conditional"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSequential, TypeParallel, TypeConditional:
		return true
	}
	return false
}

// ActivationConditions decide whether a workflow applies to a request and
// carry the workflow's overdue policy.
type ActivationConditions struct {
	condition.Set   `yaml:",inline"`
	EscalateOverdue bool `json:"escalate_overdue,omitempty" yaml:"escalate_overdue,omitempty"`
}

// Criteria narrows the candidate approvers of a level.
type Criteria struct {
	// "assignee" reads the approver from request_data.assignee_id
	ApproverType string `json:"approver_type,omitempty" yaml:"approver_type,omitempty"`
	// "higher_than_requester" keeps only candidates ranked above the requester
	HierarchyCheck string `json:"hierarchy_check,omitempty" yaml:"hierarchy_check,omitempty"`
}

const (
	ApproverTypeAssignee         = "assignee"
	HierarchyHigherThanRequester = "higher_than_requester"
)

// Table: approval_workflows
type Workflow struct {
	ID                   uint64                                   `gorm:"column:id;primaryKey;autoIncrement"`
	WorkflowName         string                                   `gorm:"column:workflow_name;size:150;not null"`
	WorkflowCode         string                                   `gorm:"column:workflow_code;size:100;not null;uniqueIndex:ux_workflows_code"`
	ModuleName           string                                   `gorm:"column:module_name;size:100;not null;index:ix_workflows_lookup"`
	ApprovalType         string                                   `gorm:"column:approval_type;size:100;not null;index:ix_workflows_lookup"`
	Description          string                                   `gorm:"column:description;type:text"`
	WorkflowType         Type                                     `gorm:"column:workflow_type;size:20;not null"`
	TotalLevels          int                                      `gorm:"column:total_levels;not null"`
	ActivationConditions datatypes.JSONType[ActivationConditions] `gorm:"column:activation_conditions"`
	IsActive             bool                                     `gorm:"column:is_active;not null"`
	Levels               []Level                                  `gorm:"foreignKey:WorkflowID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time                                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Workflow) TableName() string { return "approval_workflows" }

// Table: approval_workflow_levels
type Level struct {
	ID                   uint64                              `gorm:"column:id;primaryKey;autoIncrement"`
	WorkflowID           uint64                              `gorm:"column:workflow_id;not null;uniqueIndex:ux_levels_workflow_level"`
	LevelNumber          int                                 `gorm:"column:level_number;not null;uniqueIndex:ux_levels_workflow_level"`
	LevelName            string                              `gorm:"column:level_name;size:150;not null"`
	ApproverUserIDs      datatypes.JSONType[[]string]        `gorm:"column:approver_user_ids"`
	ApproverRole         string                              `gorm:"column:approver_role;size:100"`
	ApproverCriteria     datatypes.JSONType[Criteria]        `gorm:"column:approver_criteria"`
	Condition            datatypes.JSONType[condition.Set]   `gorm:"column:level_condition"`
	RequiresAllApprovers bool                                `gorm:"column:requires_all_approvers;not null"`
	MinimumApprovers     int                                 `gorm:"column:minimum_approvers;not null"`
	SLAHours             int                                 `gorm:"column:sla_hours;not null"`
	EscalationEnabled    bool                                `gorm:"column:escalation_enabled;not null"`
	EscalationHours      int                                 `gorm:"column:escalation_hours;not null"`
}

func (Level) TableName() string { return "approval_workflow_levels" }

// Level returns level n (1-based) if the workflow defines it.
func (w *Workflow) Level(n int) (*Level, bool) {
	for i := range w.Levels {
		if w.Levels[i].LevelNumber == n {
			return &w.Levels[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of a workflow definition.
func (w *Workflow) Validate() error {
	if w.WorkflowCode == "" || w.ModuleName == "" || w.ApprovalType == "" {
		return fmt.Errorf("workflow_code, module_name and approval_type are required")
	}
	if !w.WorkflowType.Valid() {
		return fmt.Errorf("unknown workflow_type %q", w.WorkflowType)
	}
	if w.TotalLevels < 1 {
		return fmt.Errorf("total_levels must be at least 1, got %d", w.TotalLevels)
	}
	if len(w.Levels) != w.TotalLevels {
		return fmt.Errorf("workflow declares %d levels but defines %d", w.TotalLevels, len(w.Levels))
	}
	for n := 1; n <= w.TotalLevels; n++ {
		l, ok := w.Level(n)
		if !ok {
			return fmt.Errorf("level %d is missing", n)
		}
		if l.MinimumApprovers < 0 || l.SLAHours < 0 || l.EscalationHours < 0 {
			return fmt.Errorf("level %d: negative counts are not allowed", n)
		}
		if err := l.Condition.Data().Validate(); err != nil {
			return fmt.Errorf("level %d: %w", n, err)
		}
	}
	return w.ActivationConditions.Data().Validate()
}

// Quorum is the number of approvals needed to clear the level when seated
// approvers hold a slot each.
func (l *Level) Quorum(seated int) int {
	if seated < 1 {
		return 1
	}
	if l.RequiresAllApprovers || l.MinimumApprovers <= 0 || l.MinimumApprovers > seated {
		return seated
	}
	return l.MinimumApprovers
}

// DueIn is the time budget of the level; zero means no due date.
func (l *Level) DueIn() time.Duration {
	switch {
	case l.SLAHours > 0:
		return time.Duration(l.SLAHours) * time.Hour
	case l.EscalationEnabled && l.EscalationHours > 0:
		return time.Duration(l.EscalationHours) * time.Hour
	}
	return 0
}

// SameRouting reports whether next moves approvals between levels exactly
// like w: same type, same level numbers, same quorum rules and level
// conditions. Names, approver lists and SLAs may differ.
func (w *Workflow) SameRouting(next *Workflow) bool {
	if w.WorkflowType != next.WorkflowType || w.TotalLevels != next.TotalLevels || len(w.Levels) != len(next.Levels) {
		return false
	}
	for i := range w.Levels {
		a := &w.Levels[i]
		b, ok := next.Level(a.LevelNumber)
		if !ok || a.RequiresAllApprovers != b.RequiresAllApprovers || a.MinimumApprovers != b.MinimumApprovers {
			return false
		}
		if !sameCondition(a.Condition.Data(), b.Condition.Data()) {
			return false
		}
	}
	return true
}

// sameCondition compares the JSON forms so 5 and 5.0 read back from a
// JSON column are equal.
func sameCondition(a, b condition.Set) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}
