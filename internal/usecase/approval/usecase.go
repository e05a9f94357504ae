// Package approval is the approval record manager and transition engine.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"approval-engine/internal/config"
	domainApproval "approval-engine/internal/domain/approval"
	historyDomain "approval-engine/internal/domain/history"
	"approval-engine/internal/domain/uow"
	"approval-engine/internal/domain/workflow"
	"approval-engine/internal/usecase/history"
	"approval-engine/pkg/id"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Deps struct {
	UoW         uow.UnitOfWork
	Approvals   domainApproval.Repository
	Votes       domainApproval.VoteRepository
	Workflows   WorkflowStore
	History     *history.Logger
	Approvers   ApproverResolver
	Escalation  EscalationResolver
	Approvables ApprovableResolver
	Notifier    Notifier
	Metrics     Metrics
	Logger      *zap.Logger
	Now         func() time.Time

	// ParallelEscalation is config.ParallelEscalationKeepVotes (default)
	// or config.ParallelEscalationRestartQuorum.
	ParallelEscalation string
}

type Usecase struct {
	uow         uow.UnitOfWork
	approvals   domainApproval.Repository
	votes       domainApproval.VoteRepository
	workflows   WorkflowStore
	history     *history.Logger
	approvers   ApproverResolver
	escalation  EscalationResolver
	approvables ApprovableResolver
	notifier    Notifier
	metrics     Metrics
	log         *zap.Logger
	now         func() time.Time
	restart     bool
}

func NewUsecase(d Deps) *Usecase {
	u := &Usecase{
		uow:         d.UoW,
		approvals:   d.Approvals,
		votes:       d.Votes,
		workflows:   d.Workflows,
		history:     d.History,
		approvers:   d.Approvers,
		escalation:  d.Escalation,
		approvables: d.Approvables,
		notifier:    d.Notifier,
		metrics:     d.Metrics,
		log:         d.Logger,
		now:         d.Now,
		restart:     d.ParallelEscalation == config.ParallelEscalationRestartQuorum,
	}
	if u.notifier == nil {
		u.notifier = noopNotifier{}
	}
	if u.metrics == nil {
		u.metrics = noopMetrics{}
	}
	if u.log == nil {
		u.log = zap.NewNop()
	}
	if u.now == nil {
		u.now = func() time.Time { return time.Now().UTC() }
	}
	return u
}

// Create opens an approval for an approvable entity. The approval row, its
// seats and the "submitted" history row commit together.
func (u *Usecase) Create(ctx context.Context, actor Actor, in CreateInput) (*domainApproval.Approval, error) {
	in.normalize()
	if actor.ID == "" {
		return nil, domainApproval.ErrUnauthorized
	}
	if in.ApprovableType == "" || in.ApprovableID == "" || in.ModuleName == "" || in.ApprovalType == "" {
		return nil, fmt.Errorf("%w: approvable_type, approvable_id, module_name and approval_type are required", domainApproval.ErrValidation)
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", domainApproval.ErrValidation, in.Priority)
	}
	now := u.now()
	if in.DueDate != nil && !in.DueDate.After(now) {
		return nil, fmt.Errorf("%w: due_date must be in the future", domainApproval.ErrValidation)
	}
	if _, err := u.approvables.Resolve(ctx, in.ApprovableType, in.ApprovableID); err != nil {
		return nil, err
	}

	w, err := u.selectWorkflow(ctx, in)
	if err != nil {
		return nil, err
	}
	s, err := strategyFor(w.WorkflowType)
	if err != nil {
		return nil, err
	}
	level, err := s.entryLevel(ctx, w, in.RequestData)
	if err != nil {
		return nil, err
	}
	approvers, err := u.resolveApprovers(ctx, w, level, actor.ID, in.RequestData)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(in.RequestData)
	if err != nil {
		return nil, fmt.Errorf("%w: request_data: %v", domainApproval.ErrValidation, err)
	}

	a := &domainApproval.Approval{
		ApprovalID:           id.NewID32(),
		ApprovableType:       in.ApprovableType,
		ApprovableID:         in.ApprovableID,
		ApprovalType:         in.ApprovalType,
		ModuleName:           in.ModuleName,
		RequestedBy:          actor.ID,
		RequestedAt:          now,
		CurrentApprovalLevel: level.LevelNumber,
		TotalApprovalLevels:  w.TotalLevels,
		Status:               domainApproval.StatusPending,
		Priority:             in.Priority,
		WorkflowID:           w.ID,
		RequestData:          datatypes.JSON(raw),
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		a.DueDate = &due
	} else {
		a.DueDate = dueAt(level, now)
	}

	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		// the share lock holds off admin writes until this commits
		locked, err := r.Workflows.GetByIDForShare(ctx, w.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("%w: workflow %s was deleted", domainApproval.ErrWorkflowNotFound, w.WorkflowCode)
		case err != nil:
			return err
		case !locked.IsActive:
			return fmt.Errorf("%w: workflow %s was deactivated", domainApproval.ErrInvalidWorkflow, w.WorkflowCode)
		case !w.SameRouting(locked):
			return fmt.Errorf("%w: workflow %s changed", domainApproval.ErrConcurrencyConflict, w.WorkflowCode)
		}
		if err := r.Approvals.Create(ctx, a); err != nil {
			return err
		}
		if err := s.seat(ctx, r, a, level, approvers); err != nil {
			return err
		}
		if err := r.Approvals.UpdateVersioned(ctx, a); err != nil {
			return err
		}
		_, err = u.history.WithRepo(r.History).Append(ctx, history.Entry{
			ApprovalID: a.ID,
			Action:     historyDomain.ActionSubmitted,
			ActorID:    actor.ID,
			At:         now,
			To:         domainApproval.StatusPending,
			Level:      a.CurrentApprovalLevel,
			Comments:   in.Comments,
			IPAddress:  actor.IPAddress,
			UserAgent:  actor.UserAgent,
		})
		return err
	})
	err = persistence(err)
	u.metrics.ObserveTransition("submit", outcomeOf(err))
	if err != nil {
		u.log.Error("create approval failed",
			zap.String("workflow_code", w.WorkflowCode),
			zap.String("actor_id", actor.ID),
			zap.Error(err))
		return nil, err
	}

	u.log.Info("approval created",
		zap.String("approval_id", a.ApprovalID),
		zap.String("workflow_code", w.WorkflowCode),
		zap.String("actor_id", actor.ID),
		zap.Int("level", a.CurrentApprovalLevel))
	u.dispatch(ctx, []Notification{u.notification(NotifyPendingApproval, a, actor.ID, approvers)})
	return a, nil
}

func (u *Usecase) selectWorkflow(ctx context.Context, in CreateInput) (*workflow.Workflow, error) {
	if in.WorkflowCode == "" {
		return u.workflows.Select(ctx, in.ModuleName, in.ApprovalType, in.RequestData)
	}
	w, err := u.workflows.GetByCode(ctx, in.WorkflowCode)
	if err != nil {
		return nil, err
	}
	if w.ModuleName != in.ModuleName || w.ApprovalType != in.ApprovalType {
		return nil, fmt.Errorf("%w: %s does not serve %s/%s", domainApproval.ErrInvalidWorkflow, w.WorkflowCode, in.ModuleName, in.ApprovalType)
	}
	if !u.workflows.IsActive(w) {
		return nil, fmt.Errorf("%w: %s is inactive", domainApproval.ErrInvalidWorkflow, w.WorkflowCode)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domainApproval.ErrInvalidWorkflow, err)
	}
	return w, nil
}

// resolveApprovers asks the resolver for the level's approvers, dropping the
// requester and duplicates.
func (u *Usecase) resolveApprovers(ctx context.Context, w *workflow.Workflow, level *workflow.Level, requester string, data map[string]any) ([]string, error) {
	ids, err := u.approvers.ResolveApprovers(ctx, ApproverQuery{
		Workflow:    w,
		Level:       level,
		RequestedBy: requester,
		Data:        data,
	})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{requester: true, "": true}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		u.log.Warn("level has no approver",
			zap.String("workflow_code", w.WorkflowCode),
			zap.Int("level", level.LevelNumber))
	}
	return out, nil
}

func dueAt(level *workflow.Level, from time.Time) *time.Time {
	d := level.DueIn()
	if d <= 0 {
		return nil
	}
	due := from.Add(d).UTC()
	return &due
}

func (u *Usecase) Get(ctx context.Context, approvalID string) (*domainApproval.Approval, error) {
	a, err := u.approvals.GetByApprovalID(ctx, approvalID)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// Load fetches an approval with the relations selected by inc. Missing
// relations are left empty rather than failing the read.
func (u *Usecase) Load(ctx context.Context, approvalID string, inc Include) (*Bundle, error) {
	a, err := u.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Approval: a}
	if !a.Status.IsTerminal() {
		if b.Votes, err = u.votes.ListForLevel(ctx, a.ID, a.CurrentApprovalLevel); err != nil {
			return nil, persistence(err)
		}
	}
	if inc.Workflow {
		w, err := u.workflows.GetByID(ctx, a.WorkflowID)
		switch {
		case err == nil:
			b.Workflow = w
		case !errors.Is(err, domainApproval.ErrWorkflowNotFound):
			return nil, err
		}
	}
	if inc.History {
		if b.History, err = u.history.ListFor(ctx, a.ID); err != nil {
			return nil, persistence(err)
		}
	}
	if inc.Approvable {
		v, err := u.approvables.Resolve(ctx, a.ApprovableType, a.ApprovableID)
		if err != nil {
			u.log.Warn("approvable not resolved",
				zap.String("approval_id", a.ApprovalID), zap.Error(err))
		}
		b.Approvable = v
	}
	return b, nil
}

// History returns the audit trail of an approval ordered by action_at.
func (u *Usecase) History(ctx context.Context, approvalID string) (*domainApproval.Approval, []historyDomain.ApprovalHistory, error) {
	a, err := u.Get(ctx, approvalID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := u.history.ListFor(ctx, a.ID)
	if err != nil {
		return nil, nil, persistence(err)
	}
	return a, rows, nil
}

func (u *Usecase) List(ctx context.Context, f domainApproval.Filter) (*Page, error) {
	items, total, err := u.approvals.List(ctx, f)
	if err != nil {
		return nil, persistence(err)
	}
	return &Page{Items: items, Total: total}, nil
}

// PendingFor lists open approvals waiting on actorID, including parallel
// seats at the current level.
func (u *Usecase) PendingFor(ctx context.Context, actorID string, f domainApproval.Filter) (*Page, error) {
	f.ApproverID = actorID
	f.Statuses = openStatuses()
	return u.List(ctx, f)
}

func (u *Usecase) SubmittedBy(ctx context.Context, actorID string, f domainApproval.Filter) (*Page, error) {
	f.RequestedBy = actorID
	return u.List(ctx, f)
}

func (u *Usecase) OverdueFor(ctx context.Context, actorID string, f domainApproval.Filter) (*Page, error) {
	overdue := true
	f.ApproverID = actorID
	f.Overdue = &overdue
	f.Statuses = openStatuses()
	return u.List(ctx, f)
}

func (u *Usecase) Stats(ctx context.Context, actorID string) (*Stats, error) {
	waiting := domainApproval.Filter{ApproverID: actorID, Statuses: openStatuses()}
	var (
		st  Stats
		err error
	)
	if st.PendingApprovals, err = u.approvals.Count(ctx, waiting); err != nil {
		return nil, persistence(err)
	}
	mine := domainApproval.Filter{RequestedBy: actorID, Statuses: openStatuses()}
	if st.MyPendingRequests, err = u.approvals.Count(ctx, mine); err != nil {
		return nil, persistence(err)
	}
	overdue := true
	late := waiting
	late.Overdue = &overdue
	if st.Overdue, err = u.approvals.Count(ctx, late); err != nil {
		return nil, persistence(err)
	}
	urgent := waiting
	urgent.Priorities = []domainApproval.Priority{domainApproval.PriorityHigh, domainApproval.PriorityUrgent}
	if st.HighPriority, err = u.approvals.Count(ctx, urgent); err != nil {
		return nil, persistence(err)
	}
	if st.ByModule, err = u.approvals.CountByModule(ctx, waiting); err != nil {
		return nil, persistence(err)
	}
	return &st, nil
}

func openStatuses() []domainApproval.Status {
	return []domainApproval.Status{domainApproval.StatusPending, domainApproval.StatusEscalated}
}

func (u *Usecase) notification(kind NotificationKind, a *domainApproval.Approval, actorID string, to []string) Notification {
	return Notification{
		Kind:           kind,
		Recipients:     to,
		ApprovalID:     a.ApprovalID,
		ModuleName:     a.ModuleName,
		ApprovalType:   a.ApprovalType,
		ApprovableType: a.ApprovableType,
		ApprovableID:   a.ApprovableID,
		Status:         a.Status,
		Level:          a.CurrentApprovalLevel,
		ActorID:        actorID,
		Priority:       a.Priority,
		At:             u.now(),
	}
}

// dispatch runs after commit; a failed notification never fails the action.
func (u *Usecase) dispatch(ctx context.Context, notes []Notification) {
	for _, n := range notes {
		if len(n.Recipients) == 0 {
			continue
		}
		if err := u.notifier.Notify(ctx, n); err != nil {
			u.log.Warn("notification failed",
				zap.String("approval_id", n.ApprovalID),
				zap.String("kind", string(n.Kind)),
				zap.Error(err))
		}
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainApproval.ErrNotFound
	}
	return persistence(err)
}

func persistence(err error) error {
	if err == nil || domainApproval.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", domainApproval.ErrPersistence, err)
}

// outcomeOf labels a result for the transitions metric.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domainApproval.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domainApproval.ErrValidation),
		errors.Is(err, domainApproval.ErrInvalidWorkflow),
		errors.Is(err, domainApproval.ErrInvalidApprovable),
		errors.Is(err, domainApproval.ErrWorkflowNotFound):
		return "invalid"
	case errors.Is(err, domainApproval.ErrTerminalState), errors.Is(err, domainApproval.ErrInvalidTransition):
		return "rejected_transition"
	case errors.Is(err, domainApproval.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domainApproval.ErrNotFound):
		return "not_found"
	}
	return "error"
}
