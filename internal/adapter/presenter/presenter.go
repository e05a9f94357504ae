// Package presenter projects approvals into API views. It performs no I/O:
// optional blocks appear only when the caller loaded the relation.
package presenter

import (
	"math"
	"time"

	domainApproval "approval-engine/internal/domain/approval"
	historyDomain "approval-engine/internal/domain/history"
	"approval-engine/internal/domain/workflow"
	"approval-engine/internal/usecase/approval"
)

// Names maps user ids to display names.
type Names interface {
	DisplayName(id string) string
}

type idNames struct{}

func (idNames) DisplayName(id string) string { return id }

type Progress struct {
	CurrentLevel int `json:"current_level"`
	TotalLevels  int `json:"total_levels"`
	Percentage   int `json:"percentage"`
}

type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Completion struct {
	By UserRef   `json:"by"`
	At time.Time `json:"at"`
}

type VoteView struct {
	Level     int        `json:"level"`
	Approver  UserRef    `json:"approver"`
	Decision  string     `json:"decision"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

type HistoryView struct {
	Sequence        int       `json:"sequence"`
	Action          string    `json:"action"`
	ActionBy        UserRef   `json:"action_by"`
	ActionAt        time.Time `json:"action_at"`
	FromStatus      string    `json:"from_status,omitempty"`
	ToStatus        string    `json:"to_status"`
	ApprovalLevel   int       `json:"approval_level"`
	Comments        *string   `json:"comments,omitempty"`
	RejectionReason *string   `json:"rejection_reason,omitempty"`
}

type LevelView struct {
	LevelNumber int      `json:"level_number"`
	LevelName   string   `json:"level_name"`
	Approvers   []string `json:"approver_user_ids,omitempty"`
	Role        string   `json:"approver_role,omitempty"`
	SLAHours    int      `json:"sla_hours,omitempty"`
}

type WorkflowView struct {
	ID           uint64      `json:"id"`
	WorkflowCode string      `json:"workflow_code"`
	WorkflowName string      `json:"workflow_name"`
	WorkflowType string      `json:"workflow_type"`
	TotalLevels  int         `json:"total_levels"`
	Levels       []LevelView `json:"levels"`
}

type View struct {
	ApprovalID       string         `json:"approval_id"`
	ApprovableType   string         `json:"approvable_type"`
	ApprovableID     string         `json:"approvable_id"`
	ModuleName       string         `json:"module_name"`
	ApprovalType     string         `json:"approval_type"`
	Status           string         `json:"status"`
	Priority         string         `json:"priority"`
	RequestedBy      UserRef        `json:"requested_by"`
	RequestedAt      time.Time      `json:"requested_at"`
	CurrentApprover  *UserRef       `json:"current_approver,omitempty"`
	DueDate          *time.Time     `json:"due_date,omitempty"`
	IsOverdue        bool           `json:"is_overdue"`
	RequestData      map[string]any `json:"request_data"`
	Version          uint64         `json:"version"`
	WorkflowProgress Progress       `json:"workflow_progress"`
	Completed        *Completion    `json:"completed_by,omitempty"`
	Votes            []VoteView     `json:"votes,omitempty"`
	History          []HistoryView  `json:"history,omitempty"`
	Workflow         *WorkflowView  `json:"workflow,omitempty"`
	Approvable       any            `json:"approvable,omitempty"`
}

type Presenter struct {
	names Names
}

func New(names Names) *Presenter {
	if names == nil {
		names = idNames{}
	}
	return &Presenter{names: names}
}

// Percentage is round(current/total*100), 0 when total is not positive.
func Percentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(current) / float64(total) * 100))
}

func (p *Presenter) user(id string) UserRef {
	return UserRef{ID: id, Name: p.names.DisplayName(id)}
}

// ToView renders the approval alone.
func (p *Presenter) ToView(a *domainApproval.Approval) View {
	v := View{
		ApprovalID:     a.ApprovalID,
		ApprovableType: a.ApprovableType,
		ApprovableID:   a.ApprovableID,
		ModuleName:     a.ModuleName,
		ApprovalType:   a.ApprovalType,
		Status:         string(a.Status),
		Priority:       string(a.Priority),
		RequestedBy:    p.user(a.RequestedBy),
		RequestedAt:    a.RequestedAt,
		DueDate:        a.DueDate,
		IsOverdue:      a.IsOverdue,
		RequestData:    a.Data(),
		Version:        a.Version,
		WorkflowProgress: Progress{
			CurrentLevel: a.CurrentApprovalLevel,
			TotalLevels:  a.TotalApprovalLevels,
			Percentage:   Percentage(a.CurrentApprovalLevel, a.TotalApprovalLevels),
		},
	}
	if a.CurrentApproverID != nil {
		u := p.user(*a.CurrentApproverID)
		v.CurrentApprover = &u
	}
	if a.CompletedBy != nil && a.CompletedAt != nil {
		v.Completed = &Completion{By: p.user(*a.CompletedBy), At: *a.CompletedAt}
	}
	return v
}

// Bundle renders the approval with whatever relations b carries.
func (p *Presenter) Bundle(b *approval.Bundle) View {
	v := p.ToView(b.Approval)
	for _, vote := range b.Votes {
		v.Votes = append(v.Votes, VoteView{
			Level:     vote.LevelNumber,
			Approver:  p.user(vote.ApproverID),
			Decision:  string(vote.Decision),
			DecidedAt: vote.DecidedAt,
		})
	}
	if b.History != nil {
		v.History = p.History(b.History)
	}
	if b.Workflow != nil {
		w := WorkflowOf(b.Workflow)
		v.Workflow = &w
	}
	v.Approvable = b.Approvable
	return v
}

func (p *Presenter) List(items []domainApproval.Approval) []View {
	out := make([]View, 0, len(items))
	for i := range items {
		out = append(out, p.ToView(&items[i]))
	}
	return out
}

func (p *Presenter) History(rows []historyDomain.ApprovalHistory) []HistoryView {
	out := make([]HistoryView, 0, len(rows))
	for _, h := range rows {
		out = append(out, HistoryView{
			Sequence:        h.Sequence,
			Action:          string(h.Action),
			ActionBy:        p.user(h.ActionBy),
			ActionAt:        h.ActionAt,
			FromStatus:      h.FromStatus,
			ToStatus:        h.ToStatus,
			ApprovalLevel:   h.ApprovalLevel,
			Comments:        h.Comments,
			RejectionReason: h.RejectionReason,
		})
	}
	return out
}

func WorkflowOf(w *workflow.Workflow) WorkflowView {
	out := WorkflowView{
		ID:           w.ID,
		WorkflowCode: w.WorkflowCode,
		WorkflowName: w.WorkflowName,
		WorkflowType: string(w.WorkflowType),
		TotalLevels:  w.TotalLevels,
		Levels:       make([]LevelView, 0, len(w.Levels)),
	}
	for _, l := range w.Levels {
		out.Levels = append(out.Levels, LevelView{
			LevelNumber: l.LevelNumber,
			LevelName:   l.LevelName,
			Approvers:   l.ApproverUserIDs.Data(),
			Role:        l.ApproverRole,
			SLAHours:    l.SLAHours,
		})
	}
	return out
}
