package workflow

import (
	"approval-engine/internal/domain/workflow"
	"approval-engine/pkg/condition"

	"gorm.io/datatypes"
)

// Definition is the admin-facing shape of a workflow, shared by the HTTP
// API and the YAML seed file.
type Definition struct {
	WorkflowName         string                        `json:"workflow_name" yaml:"workflow_name" validate:"required,max=150"`
	WorkflowCode         string                        `json:"workflow_code" yaml:"workflow_code" validate:"required,max=100,code"`
	ModuleName           string                        `json:"module_name" yaml:"module_name" validate:"required,max=100"`
	ApprovalType         string                        `json:"approval_type" yaml:"approval_type" validate:"required,max=100"`
	Description          string                        `json:"description,omitempty" yaml:"description,omitempty"`
	WorkflowType         workflow.Type                 `json:"workflow_type" yaml:"workflow_type" validate:"required,oneof=sequential parallel conditional"`
	TotalLevels          int                           `json:"total_levels" yaml:"total_levels" validate:"gte=0"`
	ActivationConditions workflow.ActivationConditions `json:"activation_conditions" yaml:"activation_conditions"`
	IsActive             *bool                         `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	Levels               []LevelDefinition             `json:"levels" yaml:"levels" validate:"required,min=1,dive"`
}

type LevelDefinition struct {
	LevelNumber          int               `json:"level_number" yaml:"level_number" validate:"gte=1"`
	LevelName            string            `json:"level_name" yaml:"level_name" validate:"required,max=150"`
	ApproverUserIDs      []string          `json:"approver_user_ids,omitempty" yaml:"approver_user_ids,omitempty"`
	ApproverRole         string            `json:"approver_role,omitempty" yaml:"approver_role,omitempty"`
	ApproverCriteria     workflow.Criteria `json:"approver_criteria" yaml:"approver_criteria,omitempty"`
	Condition            condition.Set     `json:"condition" yaml:"condition,omitempty"`
	RequiresAllApprovers bool              `json:"requires_all_approvers" yaml:"requires_all_approvers"`
	MinimumApprovers     int               `json:"minimum_approvers" yaml:"minimum_approvers" validate:"gte=0"`
	SLAHours             int               `json:"sla_hours" yaml:"sla_hours" validate:"gte=0"`
	EscalationEnabled    bool              `json:"escalation_enabled" yaml:"escalation_enabled"`
	EscalationHours      int               `json:"escalation_hours" yaml:"escalation_hours" validate:"gte=0"`
}

// definitionFile is the layout of the YAML seed file.
type definitionFile struct {
	Workflows []Definition `yaml:"workflows"`
}

// Entity converts d into a storable workflow. total_levels defaults to the
// number of levels given.
func (d Definition) Entity() *workflow.Workflow {
	w := &workflow.Workflow{
		WorkflowName:         d.WorkflowName,
		WorkflowCode:         d.WorkflowCode,
		ModuleName:           d.ModuleName,
		ApprovalType:         d.ApprovalType,
		Description:          d.Description,
		WorkflowType:         d.WorkflowType,
		TotalLevels:          d.TotalLevels,
		ActivationConditions: datatypes.NewJSONType(d.ActivationConditions),
		IsActive:             d.IsActive == nil || *d.IsActive,
	}
	if w.TotalLevels == 0 {
		w.TotalLevels = len(d.Levels)
	}
	for _, l := range d.Levels {
		w.Levels = append(w.Levels, workflow.Level{
			LevelNumber:          l.LevelNumber,
			LevelName:            l.LevelName,
			ApproverUserIDs:      datatypes.NewJSONType(l.ApproverUserIDs),
			ApproverRole:         l.ApproverRole,
			ApproverCriteria:     datatypes.NewJSONType(l.ApproverCriteria),
			Condition:            datatypes.NewJSONType(l.Condition),
			RequiresAllApprovers: l.RequiresAllApprovers,
			MinimumApprovers:     l.MinimumApprovers,
			SLAHours:             l.SLAHours,
			EscalationEnabled:    l.EscalationEnabled,
			EscalationHours:      l.EscalationHours,
		})
	}
	return w
}

// DefinitionOf is the inverse of Entity.
func DefinitionOf(w *workflow.Workflow) Definition {
	active := w.IsActive
	d := Definition{
		WorkflowName:         w.WorkflowName,
		WorkflowCode:         w.WorkflowCode,
		ModuleName:           w.ModuleName,
		ApprovalType:         w.ApprovalType,
		Description:          w.Description,
		WorkflowType:         w.WorkflowType,
		TotalLevels:          w.TotalLevels,
		ActivationConditions: w.ActivationConditions.Data(),
		IsActive:             &active,
	}
	for _, l := range w.Levels {
		d.Levels = append(d.Levels, LevelDefinition{
			LevelNumber:          l.LevelNumber,
			LevelName:            l.LevelName,
			ApproverUserIDs:      l.ApproverUserIDs.Data(),
			ApproverRole:         l.ApproverRole,
			ApproverCriteria:     l.ApproverCriteria.Data(),
			Condition:            l.Condition.Data(),
			RequiresAllApprovers: l.RequiresAllApprovers,
			MinimumApprovers:     l.MinimumApprovers,
			SLAHours:             l.SLAHours,
			EscalationEnabled:    l.EscalationEnabled,
			EscalationHours:      l.EscalationHours,
		})
	}
	return d
}

type SeedReport struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}
