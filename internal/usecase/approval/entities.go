package approval

import (
	"strings"
	"time"

	domainApproval "approval-engine/internal/domain/approval"
	historyDomain "approval-engine/internal/domain/history"
	"approval-engine/internal/domain/workflow"
)

const (
	// PermOverride lets an actor act as approver on any approval of a module.
	PermOverride = "approvals.override"
	// PermAdmin allows cancel, escalate and assign on behalf of others.
	PermAdmin = "approvals.admin"

	// SystemActor is the actor id the overdue scanner acts as.
	SystemActor = "system"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID          string
	Permissions []string
	IPAddress   string
	UserAgent   string
}

// Can reports whether the actor holds perm globally, for module
// ("<module>:<perm>"), or holds the wildcard.
func (a Actor) Can(perm, module string) bool {
	for _, p := range a.Permissions {
		if p == "*" || p == perm || (module != "" && p == module+":"+perm) {
			return true
		}
	}
	return false
}

func (a Actor) isSystem() bool { return a.ID == SystemActor }

type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionEscalate Action = "escalate"
	ActionDelegate Action = "delegate"
	ActionComment  Action = "comment"
	ActionAssign   Action = "assign"
)

func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionCancel, ActionEscalate, ActionDelegate, ActionComment, ActionAssign:
		return true
	}
	return false
}

// CreateInput is what a producing module sends to open an approval.
type CreateInput struct {
	ApprovableType string                  `json:"approvable_type" validate:"required,max=100"`
	ApprovableID   string                  `json:"approvable_id" validate:"required,max=64"`
	ModuleName     string                  `json:"module_name" validate:"required,max=100"`
	ApprovalType   string                  `json:"approval_type" validate:"required,max=100"`
	WorkflowCode   string                  `json:"workflow_code,omitempty" validate:"max=100"`
	Priority       domainApproval.Priority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	DueDate        *time.Time              `json:"due_date,omitempty"`
	RequestData    map[string]any          `json:"request_data,omitempty"`
	Comments       string                  `json:"comments,omitempty" validate:"max=2000"`
}

func (in *CreateInput) normalize() {
	in.ApprovableType = strings.TrimSpace(in.ApprovableType)
	in.ApprovableID = strings.TrimSpace(in.ApprovableID)
	in.ModuleName = strings.TrimSpace(in.ModuleName)
	in.ApprovalType = strings.TrimSpace(in.ApprovalType)
	in.WorkflowCode = strings.TrimSpace(in.WorkflowCode)
	if in.Priority == "" {
		in.Priority = domainApproval.PriorityMedium
	}
	if in.RequestData == nil {
		in.RequestData = map[string]any{}
	}
}

// ActInput is the payload of a transition.
type ActInput struct {
	Action          Action `json:"action" validate:"required"`
	Comments        string `json:"comments,omitempty" validate:"max=2000"`
	RejectionReason string `json:"rejection_reason,omitempty" validate:"max=2000"`

	// Delegate, escalation target or assignee
	TargetUserID string `json:"target_user_id,omitempty" validate:"max=64"`

	// When set, must match the approval's current version
	Version *uint64 `json:"version,omitempty"`
}

func (in *ActInput) normalize() {
	in.Comments = strings.TrimSpace(in.Comments)
	in.RejectionReason = strings.TrimSpace(in.RejectionReason)
	in.TargetUserID = strings.TrimSpace(in.TargetUserID)
}

type NotificationKind string

const (
	NotifyPendingApproval NotificationKind = "pending_approval"
	NotifyCompleted       NotificationKind = "completed"
	NotifyCancelled       NotificationKind = "cancelled"
	NotifyDelegated       NotificationKind = "delegated"
	NotifyEscalated       NotificationKind = "escalated"
	NotifyReminder        NotificationKind = "reminder"
)

// Notification is dispatched after the transition that produced it commits.
type Notification struct {
	Kind           NotificationKind        `json:"kind"`
	Recipients     []string                `json:"recipients"`
	ApprovalID     string                  `json:"approval_id"`
	ModuleName     string                  `json:"module_name"`
	ApprovalType   string                  `json:"approval_type"`
	ApprovableType string                  `json:"approvable_type"`
	ApprovableID   string                  `json:"approvable_id"`
	Status         domainApproval.Status   `json:"status"`
	Level          int                     `json:"level"`
	ActorID        string                  `json:"actor_id"`
	Priority       domainApproval.Priority `json:"priority"`
	At             time.Time               `json:"at"`
}

// Include selects the optional relations Load fetches.
type Include struct {
	History    bool
	Workflow   bool
	Approvable bool
}

// Bundle is an approval plus whatever relations were asked for.
type Bundle struct {
	Approval   *domainApproval.Approval
	Votes      []domainApproval.LevelApprover
	Workflow   *workflow.Workflow
	History    []historyDomain.ApprovalHistory
	Approvable any
}

type Page struct {
	Items []domainApproval.Approval
	Total int64
}

type Stats struct {
	PendingApprovals  int64                        `json:"pending_approvals"`
	MyPendingRequests int64                        `json:"my_pending_requests"`
	Overdue           int64                        `json:"overdue"`
	HighPriority      int64                        `json:"high_priority"`
	ByModule          []domainApproval.ModuleCount `json:"by_module"`
}

type BulkResult struct {
	ApprovalID string                `json:"approval_id"`
	Status     domainApproval.Status `json:"status,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// FlagOutcome is what FlagOverdue did to one approval.
type FlagOutcome string

const (
	FlagSkipped   FlagOutcome = "skipped"
	FlagFlagged   FlagOutcome = "flagged"
	FlagEscalated FlagOutcome = "escalated"
)

const maxBulk = 100
