package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainApproval "approval-engine/internal/domain/approval"
	historyDomain "approval-engine/internal/domain/history"
	"approval-engine/internal/domain/uow"
	"approval-engine/internal/domain/workflow"
	"approval-engine/internal/usecase/history"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// txn is one transition in flight, bound to the transaction holding the
// approval's row lock.
type txn struct {
	r     uow.Repos
	a     *domainApproval.Approval
	w     *workflow.Workflow
	s     strategy
	actor Actor
	in    ActInput
	now   time.Time
	notes []Notification
}

// handler checks the preconditions of one action, mutates t.a and names the
// history action to record.
type handler func(ctx context.Context, t *txn) (historyDomain.Action, error)

func (u *Usecase) handlerFor(a Action) handler {
	switch a {
	case ActionApprove:
		return u.approve
	case ActionReject:
		return u.reject
	case ActionCancel:
		return u.cancel
	case ActionEscalate:
		return u.escalate
	case ActionDelegate:
		return u.delegate
	case ActionComment:
		return u.comment
	case ActionAssign:
		return u.assign
	}
	return nil
}

// Act applies one action to an approval. The row is locked for the whole
// transaction and the write is guarded by the version column, so of two
// concurrent actions on one approval at most one commits a given transition.
func (u *Usecase) Act(ctx context.Context, approvalID string, actor Actor, in ActInput) (*domainApproval.Approval, error) {
	in.normalize()
	if err := validateAct(in); err != nil {
		u.metrics.ObserveTransition(string(in.Action), outcomeOf(err))
		return nil, err
	}
	if actor.ID == "" {
		u.metrics.ObserveTransition(string(in.Action), outcomeOf(domainApproval.ErrUnauthorized))
		return nil, domainApproval.ErrUnauthorized
	}

	var (
		out   *domainApproval.Approval
		notes []Notification
	)
	err := u.uow.WithinApprovalTx(ctx, approvalID, func(r uow.Repos, a *domainApproval.Approval) error {
		if in.Version != nil && *in.Version != a.Version {
			return fmt.Errorf("%w: version %d is stale", domainApproval.ErrConcurrencyConflict, *in.Version)
		}
		t, err := u.begin(ctx, r, a, actor, in)
		if err != nil {
			return err
		}
		if err := u.commit(ctx, t, u.handlerFor(in.Action)); err != nil {
			return err
		}
		out, notes = t.a, t.notes
		return nil
	})
	err = persistence(err)
	u.metrics.ObserveTransition(string(in.Action), outcomeOf(err))

	fields := []zap.Field{
		zap.String("approval_id", approvalID),
		zap.String("action", string(in.Action)),
		zap.String("actor_id", actor.ID),
	}
	if err != nil {
		if errors.Is(err, domainApproval.ErrPersistence) {
			u.log.Error("approval action failed", append(fields, zap.Error(err))...)
		} else {
			u.log.Info("approval action refused", append(fields, zap.Error(err))...)
		}
		return nil, err
	}
	u.log.Info("approval action applied", append(fields,
		zap.String("status", string(out.Status)),
		zap.Int("level", out.CurrentApprovalLevel))...)
	u.dispatch(ctx, notes)
	return out, nil
}

// BulkAct approves or rejects each approval in its own transaction. One
// failing item never aborts the rest.
func (u *Usecase) BulkAct(ctx context.Context, actor Actor, approvalIDs []string, in ActInput) ([]BulkResult, error) {
	if in.Action != ActionApprove && in.Action != ActionReject {
		return nil, fmt.Errorf("%w: bulk supports approve and reject only", domainApproval.ErrValidation)
	}
	if len(approvalIDs) == 0 || len(approvalIDs) > maxBulk {
		return nil, fmt.Errorf("%w: between 1 and %d approval ids are required", domainApproval.ErrValidation, maxBulk)
	}
	in.Version = nil
	in.normalize()
	if err := validateAct(in); err != nil {
		return nil, err
	}

	out := make([]BulkResult, 0, len(approvalIDs))
	for _, id := range approvalIDs {
		res := BulkResult{ApprovalID: id}
		a, err := u.Act(ctx, id, actor, in)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Status = a.Status
		}
		out = append(out, res)
	}
	return out, nil
}

// FlagOverdue marks a pending approval whose due date has passed. With
// escalate set and an escalation policy on the workflow or level, it also
// escalates to the next person up; otherwise the approvers get a reminder.
// Approvals that are not due, not pending or already flagged are skipped.
func (u *Usecase) FlagOverdue(ctx context.Context, approvalID string, escalate bool) (FlagOutcome, error) {
	outcome := FlagSkipped
	var notes []Notification
	err := u.uow.WithinApprovalTx(ctx, approvalID, func(r uow.Repos, a *domainApproval.Approval) error {
		now := u.now()
		if a.Status != domainApproval.StatusPending || a.IsOverdue || a.DueDate == nil || !a.DueDate.Before(now) {
			return nil
		}
		t, err := u.begin(ctx, r, a, Actor{ID: SystemActor}, ActInput{Action: ActionEscalate})
		if err != nil {
			return err
		}
		a.IsOverdue = true

		if escalate && escalationWanted(t) {
			target, err := u.escalationTarget(ctx, a)
			if err != nil {
				return err
			}
			if target != "" {
				t.in.TargetUserID = target
				if err := u.commit(ctx, t, u.escalate); err != nil {
					return err
				}
				outcome, notes = FlagEscalated, t.notes
				return nil
			}
			u.log.Warn("no escalation target, sending reminder",
				zap.String("approval_id", a.ApprovalID))
		}

		if err := r.Approvals.UpdateVersioned(ctx, a); err != nil {
			return err
		}
		seats, err := pendingSeats(ctx, r, a)
		if err != nil {
			return err
		}
		t.notify(u, NotifyReminder, seats...)
		outcome, notes = FlagFlagged, t.notes
		return nil
	})
	if err != nil {
		return FlagSkipped, persistence(err)
	}
	u.dispatch(ctx, notes)
	return outcome, nil
}

func escalationWanted(t *txn) bool {
	if t.w.ActivationConditions.Data().EscalateOverdue {
		return true
	}
	l, ok := t.w.Level(t.a.CurrentApprovalLevel)
	return ok && l.EscalationEnabled
}

func (u *Usecase) begin(ctx context.Context, r uow.Repos, a *domainApproval.Approval, actor Actor, in ActInput) (*txn, error) {
	w, err := r.Workflows.GetByID(ctx, a.WorkflowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workflow %d is gone", domainApproval.ErrInvalidWorkflow, a.WorkflowID)
		}
		return nil, err
	}
	s, err := strategyFor(w.WorkflowType)
	if err != nil {
		return nil, err
	}
	return &txn{r: r, a: a, w: w, s: s, actor: actor, in: in, now: u.now()}, nil
}

// commit runs h and persists its outcome: the versioned approval write and
// exactly one history row.
func (u *Usecase) commit(ctx context.Context, t *txn, h handler) error {
	if t.a.Status.IsTerminal() {
		return fmt.Errorf("%w: approval is %s", domainApproval.ErrTerminalState, t.a.Status)
	}
	from, level := t.a.Status, t.a.CurrentApprovalLevel
	action, err := h(ctx, t)
	if err != nil {
		return err
	}
	if err := t.r.Approvals.UpdateVersioned(ctx, t.a); err != nil {
		return err
	}
	_, err = u.history.WithRepo(t.r.History).Append(ctx, history.Entry{
		ApprovalID:      t.a.ID,
		Action:          action,
		ActorID:         t.actor.ID,
		At:              t.now,
		From:            from,
		To:              t.a.Status,
		Level:           level,
		Comments:        t.in.Comments,
		RejectionReason: t.in.RejectionReason,
		IPAddress:       t.actor.IPAddress,
		UserAgent:       t.actor.UserAgent,
	})
	return err
}

func (t *txn) notify(u *Usecase, kind NotificationKind, to ...string) {
	recipients := make([]string, 0, len(to))
	for _, id := range to {
		if id != "" && id != t.actor.ID {
			recipients = append(recipients, id)
		}
	}
	t.notes = append(t.notes, u.notification(kind, t.a, t.actor.ID, recipients))
}

// seated reports whether the actor holds the approval or a pending seat at
// the current level.
func (t *txn) seated(ctx context.Context) (bool, error) {
	if t.a.IsCurrentApprover(t.actor.ID) {
		return true, nil
	}
	seats, err := pendingSeats(ctx, t.r, t.a)
	if err != nil {
		return false, err
	}
	for _, id := range seats {
		if id == t.actor.ID {
			return true, nil
		}
	}
	return false, nil
}

func (t *txn) can(perm string) bool { return t.actor.Can(perm, t.a.ModuleName) }

func (t *txn) invalid() error {
	return fmt.Errorf("%w: cannot %s while %s", domainApproval.ErrInvalidTransition, t.in.Action, t.a.Status)
}

func (u *Usecase) approve(ctx context.Context, t *txn) (historyDomain.Action, error) {
	if t.a.Status != domainApproval.StatusPending {
		return "", t.invalid()
	}
	seated, err := t.seated(ctx)
	if err != nil {
		return "", err
	}
	if !seated && !t.can(PermOverride) {
		return "", domainApproval.ErrUnauthorized
	}
	level, err := levelOf(t.w, t.a.CurrentApprovalLevel)
	if err != nil {
		return "", err
	}
	cleared, err := t.s.approve(ctx, t.r, t.a, level, t.actor.ID, t.now)
	if err != nil || !cleared {
		return historyDomain.ActionApproved, err
	}

	data := t.a.Data()
	next, err := t.s.nextLevel(ctx, t.w, level.LevelNumber, t.a.TotalApprovalLevels, data)
	if err != nil {
		return "", err
	}
	if next == nil {
		t.a.Complete(domainApproval.StatusApproved, t.actor.ID, t.now)
		t.notify(u, NotifyCompleted, t.a.RequestedBy)
		return historyDomain.ActionApproved, nil
	}

	approvers, err := u.resolveApprovers(ctx, t.w, next, t.a.RequestedBy, data)
	if err != nil {
		return "", err
	}
	t.a.CurrentApprovalLevel = next.LevelNumber
	if err := t.s.seat(ctx, t.r, t.a, next, approvers); err != nil {
		return "", err
	}
	t.a.DueDate = dueAt(next, t.now)
	t.a.IsOverdue = false
	t.notify(u, NotifyPendingApproval, approvers...)
	if t.w.WorkflowType == workflow.TypeParallel {
		return historyDomain.ActionLevelCompleted, nil
	}
	return historyDomain.ActionApproved, nil
}

func (u *Usecase) reject(ctx context.Context, t *txn) (historyDomain.Action, error) {
	if t.a.Status != domainApproval.StatusPending && t.a.Status != domainApproval.StatusEscalated {
		return "", t.invalid()
	}
	seated, err := t.seated(ctx)
	if err != nil {
		return "", err
	}
	privileged := t.can(PermOverride) || (t.a.Status == domainApproval.StatusEscalated && t.can(PermAdmin))
	if !seated && !privileged {
		return "", domainApproval.ErrUnauthorized
	}
	if err := t.s.reject(ctx, t.r, t.a, t.actor.ID, t.now); err != nil {
		return "", err
	}
	if err := t.s.close(ctx, t.r, t.a); err != nil {
		return "", err
	}
	t.a.Complete(domainApproval.StatusRejected, t.actor.ID, t.now)
	t.notify(u, NotifyCompleted, t.a.RequestedBy)
	return historyDomain.ActionRejected, nil
}

func (u *Usecase) cancel(ctx context.Context, t *txn) (historyDomain.Action, error) {
	if t.a.Status != domainApproval.StatusPending && t.a.Status != domainApproval.StatusEscalated {
		return "", t.invalid()
	}
	if t.actor.ID != t.a.RequestedBy && !t.can(PermAdmin) {
		return "", domainApproval.ErrUnauthorized
	}
	seats, err := pendingSeats(ctx, t.r, t.a)
	if err != nil {
		return "", err
	}
	if err := t.s.close(ctx, t.r, t.a); err != nil {
		return "", err
	}
	t.a.Complete(domainApproval.StatusCancelled, t.actor.ID, t.now)
	t.notify(u, NotifyCancelled, append(seats, t.a.RequestedBy)...)
	return historyDomain.ActionCancelled, nil
}

// escalate hands the approval to the escalation target. Admins may escalate
// at any time; the system actor only once the approval is flagged overdue.
func (u *Usecase) escalate(ctx context.Context, t *txn) (historyDomain.Action, error) {
	if t.a.Status != domainApproval.StatusPending && t.a.Status != domainApproval.StatusEscalated {
		return "", t.invalid()
	}
	system := t.actor.isSystem() && t.a.Status == domainApproval.StatusPending && t.a.IsOverdue
	if !system && !t.can(PermAdmin) {
		return "", domainApproval.ErrUnauthorized
	}
	target := t.in.TargetUserID
	if target == "" {
		var err error
		if target, err = u.escalationTarget(ctx, t.a); err != nil {
			return "", err
		}
	}
	switch {
	case target == "":
		return "", fmt.Errorf("%w: no escalation target for this approval", domainApproval.ErrValidation)
	case target == t.a.RequestedBy:
		return "", fmt.Errorf("%w: cannot escalate to the requester", domainApproval.ErrValidation)
	case t.a.IsCurrentApprover(target):
		return "", fmt.Errorf("%w: %s already holds this approval", domainApproval.ErrValidation, target)
	}
	if err := t.s.escalate(ctx, t.r, t.a, target, u.restart); err != nil {
		return "", err
	}
	t.a.Status = domainApproval.StatusEscalated
	t.notify(u, NotifyEscalated, target)
	return historyDomain.ActionEscalated, nil
}

func (u *Usecase) escalationTarget(ctx context.Context, a *domainApproval.Approval) (string, error) {
	from := ""
	if a.CurrentApproverID != nil {
		from = *a.CurrentApproverID
	}
	target, err := u.escalation.EscalationTarget(ctx, a, from)
	if err != nil {
		return "", err
	}
	if target == a.RequestedBy || a.IsCurrentApprover(target) {
		return "", nil
	}
	return target, nil
}

func (u *Usecase) delegate(ctx context.Context, t *txn) (historyDomain.Action, error) {
	if t.a.Status != domainApproval.StatusPending {
		return "", t.invalid()
	}
	seated, err := t.seated(ctx)
	if err != nil {
		return "", err
	}
	from := t.actor.ID
	if !seated {
		if !t.can(PermOverride) {
			return "", domainApproval.ErrUnauthorized
		}
		if t.a.CurrentApproverID == nil {
			return "", fmt.Errorf("%w: nobody holds this approval", domainApproval.ErrValidation)
		}
		from = *t.a.CurrentApproverID
	}
	to := t.in.TargetUserID
	switch to {
	case from:
		return "", fmt.Errorf("%w: cannot delegate to the current holder", domainApproval.ErrValidation)
	case t.a.RequestedBy:
		return "", fmt.Errorf("%w: cannot delegate to the requester", domainApproval.ErrValidation)
	}
	if err := t.s.replace(ctx, t.r, t.a, from, to); err != nil {
		return "", err
	}
	t.notify(u, NotifyDelegated, to)
	return historyDomain.ActionDelegated, nil
}

// assign sets the approver of the current level. From escalated it resumes
// the approval to pending with a fresh due date.
func (u *Usecase) assign(ctx context.Context, t *txn) (historyDomain.Action, error) {
	if t.a.Status != domainApproval.StatusPending && t.a.Status != domainApproval.StatusEscalated {
		return "", t.invalid()
	}
	seated, err := t.seated(ctx)
	if err != nil {
		return "", err
	}
	escalated := t.a.Status == domainApproval.StatusEscalated
	unassigned := t.a.CurrentApproverID == nil && t.actor.ID == t.a.RequestedBy
	if !t.can(PermAdmin) && !(escalated && seated) && !(!escalated && unassigned) {
		return "", domainApproval.ErrUnauthorized
	}

	to := t.in.TargetUserID
	if to == t.a.RequestedBy {
		return "", fmt.Errorf("%w: cannot assign the requester", domainApproval.ErrValidation)
	}
	from := ""
	if t.a.CurrentApproverID != nil {
		from = *t.a.CurrentApproverID
	}
	if from == to && !escalated {
		return "", fmt.Errorf("%w: %s already holds this approval", domainApproval.ErrValidation, to)
	}
	if from != to {
		if err := t.s.replace(ctx, t.r, t.a, from, to); err != nil {
			return "", err
		}
	}
	if escalated {
		level, err := levelOf(t.w, t.a.CurrentApprovalLevel)
		if err != nil {
			return "", err
		}
		t.a.Status = domainApproval.StatusPending
		t.a.DueDate = dueAt(level, t.now)
		t.a.IsOverdue = false
	}
	t.notify(u, NotifyPendingApproval, to)
	return historyDomain.ActionAssigned, nil
}

// comment is open to the requester, anyone seated, privileged actors and
// anyone who already acted on the approval.
func (u *Usecase) comment(ctx context.Context, t *txn) (historyDomain.Action, error) {
	ok := t.actor.ID == t.a.RequestedBy || t.can(PermAdmin) || t.can(PermOverride)
	if !ok {
		seated, err := t.seated(ctx)
		if err != nil {
			return "", err
		}
		ok = seated
	}
	if !ok {
		rows, err := t.r.History.ListByApprovalID(ctx, t.a.ID)
		if err != nil {
			return "", err
		}
		for _, h := range rows {
			if h.ActionBy == t.actor.ID {
				ok = true
				break
			}
		}
	}
	if !ok {
		return "", domainApproval.ErrUnauthorized
	}
	return historyDomain.ActionCommented, nil
}

func validateAct(in ActInput) error {
	switch {
	case !in.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", domainApproval.ErrValidation, in.Action)
	case in.Action == ActionReject && in.RejectionReason == "":
		return fmt.Errorf("%w: rejection_reason is required", domainApproval.ErrValidation)
	case in.Action != ActionReject && in.RejectionReason != "":
		return fmt.Errorf("%w: rejection_reason is only accepted on reject", domainApproval.ErrValidation)
	case (in.Action == ActionDelegate || in.Action == ActionAssign) && in.TargetUserID == "":
		return fmt.Errorf("%w: target_user_id is required", domainApproval.ErrValidation)
	case in.Action == ActionComment && in.Comments == "":
		return fmt.Errorf("%w: comments are required", domainApproval.ErrValidation)
	}
	return nil
}
