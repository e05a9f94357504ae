package approval

import (
	"context"
	"fmt"
	"time"

	domainApproval "approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/uow"
	"approval-engine/internal/domain/workflow"
	"approval-engine/pkg/condition"
)

// strategy is the workflow_type specific part of a transition. Callers have
// already checked status and authorization; strategies only move approvers.
type strategy interface {
	// entryLevel is the level a new approval starts at.
	entryLevel(ctx context.Context, w *workflow.Workflow, data map[string]any) (*workflow.Level, error)

	// nextLevel follows cur, up to and including last; nil means cur was final.
	nextLevel(ctx context.Context, w *workflow.Workflow, cur, last int, data map[string]any) (*workflow.Level, error)

	// seat installs approvers at the approval's current level.
	seat(ctx context.Context, r uow.Repos, a *domainApproval.Approval, level *workflow.Level, approvers []string) error

	// approve records actorID's approval and reports whether the level cleared.
	approve(ctx context.Context, r uow.Repos, a *domainApproval.Approval, level *workflow.Level, actorID string, at time.Time) (bool, error)

	reject(ctx context.Context, r uow.Repos, a *domainApproval.Approval, actorID string, at time.Time) error

	// replace hands from's seat to to.
	replace(ctx context.Context, r uow.Repos, a *domainApproval.Approval, from, to string) error

	// escalate seats target; restart drops the votes already cast at the level.
	escalate(ctx context.Context, r uow.Repos, a *domainApproval.Approval, target string, restart bool) error

	// close releases open seats once the approval is terminal.
	close(ctx context.Context, r uow.Repos, a *domainApproval.Approval) error
}

func strategyFor(t workflow.Type) (strategy, error) {
	switch t {
	case workflow.TypeSequential:
		return sequential{}, nil
	case workflow.TypeParallel:
		return parallel{}, nil
	case workflow.TypeConditional:
		return conditional{}, nil
	}
	return nil, fmt.Errorf("%w: unknown workflow_type %q", domainApproval.ErrInvalidWorkflow, t)
}

func levelOf(w *workflow.Workflow, n int) (*workflow.Level, error) {
	l, ok := w.Level(n)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no level %d", domainApproval.ErrInvalidWorkflow, w.WorkflowCode, n)
	}
	return l, nil
}

// sequential keeps one approver per level in current_approver_id.
type sequential struct{}

func (sequential) entryLevel(_ context.Context, w *workflow.Workflow, _ map[string]any) (*workflow.Level, error) {
	return levelOf(w, 1)
}

func (sequential) nextLevel(_ context.Context, w *workflow.Workflow, cur, last int, _ map[string]any) (*workflow.Level, error) {
	if cur >= last {
		return nil, nil
	}
	return levelOf(w, cur+1)
}

func (sequential) seat(_ context.Context, _ uow.Repos, a *domainApproval.Approval, _ *workflow.Level, approvers []string) error {
	a.CurrentApproverID = nil
	if len(approvers) > 0 {
		id := approvers[0]
		a.CurrentApproverID = &id
	}
	return nil
}

func (sequential) approve(context.Context, uow.Repos, *domainApproval.Approval, *workflow.Level, string, time.Time) (bool, error) {
	return true, nil
}

func (sequential) reject(context.Context, uow.Repos, *domainApproval.Approval, string, time.Time) error {
	return nil
}

func (sequential) replace(_ context.Context, _ uow.Repos, a *domainApproval.Approval, _, to string) error {
	a.CurrentApproverID = &to
	return nil
}

func (sequential) escalate(_ context.Context, _ uow.Repos, a *domainApproval.Approval, target string, _ bool) error {
	a.CurrentApproverID = &target
	return nil
}

func (sequential) close(context.Context, uow.Repos, *domainApproval.Approval) error { return nil }

// conditional is sequential over the subset of levels whose condition
// matches the request data.
type conditional struct{ sequential }

func (conditional) entryLevel(ctx context.Context, w *workflow.Workflow, data map[string]any) (*workflow.Level, error) {
	l, err := firstMatching(ctx, w, 1, w.TotalLevels, data)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("%w: no level of %s applies to this request", domainApproval.ErrInvalidWorkflow, w.WorkflowCode)
	}
	return l, nil
}

func (conditional) nextLevel(ctx context.Context, w *workflow.Workflow, cur, last int, data map[string]any) (*workflow.Level, error) {
	return firstMatching(ctx, w, cur+1, last, data)
}

func firstMatching(ctx context.Context, w *workflow.Workflow, from, to int, data map[string]any) (*workflow.Level, error) {
	for n := from; n <= to; n++ {
		l, err := levelOf(w, n)
		if err != nil {
			return nil, err
		}
		ok, err := condition.Evaluate(ctx, l.Condition.Data(), data)
		if err != nil {
			return nil, fmt.Errorf("%w: level %d condition: %v", domainApproval.ErrInvalidWorkflow, n, err)
		}
		if ok {
			return l, nil
		}
	}
	return nil, nil
}

// parallel seats every approver of a level at once; the level clears when
// its quorum of approvals is reached. current_approver_id mirrors the first
// pending seat.
type parallel struct{ sequential }

func (parallel) seat(ctx context.Context, r uow.Repos, a *domainApproval.Approval, level *workflow.Level, approvers []string) error {
	votes := make([]domainApproval.LevelApprover, 0, len(approvers))
	for _, id := range approvers {
		votes = append(votes, domainApproval.LevelApprover{
			ApprovalID:  a.ID,
			LevelNumber: level.LevelNumber,
			ApproverID:  id,
			Decision:    domainApproval.DecisionPending,
		})
	}
	if err := r.Votes.CreateBatch(ctx, votes); err != nil {
		return err
	}
	return syncCurrent(ctx, r, a)
}

func (parallel) approve(ctx context.Context, r uow.Repos, a *domainApproval.Approval, level *workflow.Level, actorID string, at time.Time) (bool, error) {
	votes, err := r.Votes.ListForLevel(ctx, a.ID, level.LevelNumber)
	if err != nil {
		return false, err
	}
	approved := 0
	var slot *domainApproval.LevelApprover
	for i := range votes {
		if votes[i].ApproverID == actorID {
			slot = &votes[i]
		}
		if votes[i].Decision == domainApproval.DecisionApproved {
			approved++
		}
	}
	switch {
	case slot != nil && slot.Decision != domainApproval.DecisionPending:
		return false, fmt.Errorf("%w: %s already voted at level %d", domainApproval.ErrInvalidTransition, actorID, level.LevelNumber)
	case slot == nil:
		// override without a seat settles the level
		return true, r.Votes.DeletePending(ctx, a.ID, level.LevelNumber)
	}
	if err := r.Votes.Decide(ctx, slot.ID, domainApproval.DecisionApproved, at); err != nil {
		return false, err
	}
	approved++
	if approved >= level.Quorum(len(votes)) {
		return true, r.Votes.DeletePending(ctx, a.ID, level.LevelNumber)
	}
	return false, syncCurrent(ctx, r, a)
}

func (parallel) reject(ctx context.Context, r uow.Repos, a *domainApproval.Approval, actorID string, at time.Time) error {
	votes, err := r.Votes.ListForLevel(ctx, a.ID, a.CurrentApprovalLevel)
	if err != nil {
		return err
	}
	for _, v := range votes {
		if v.ApproverID == actorID && v.Decision == domainApproval.DecisionPending {
			return r.Votes.Decide(ctx, v.ID, domainApproval.DecisionRejected, at)
		}
	}
	return nil
}

func (parallel) replace(ctx context.Context, r uow.Repos, a *domainApproval.Approval, from, to string) error {
	votes, err := r.Votes.ListForLevel(ctx, a.ID, a.CurrentApprovalLevel)
	if err != nil {
		return err
	}
	var src *domainApproval.LevelApprover
	for i := range votes {
		if votes[i].ApproverID == to {
			return fmt.Errorf("%w: %s already holds a seat at level %d", domainApproval.ErrValidation, to, a.CurrentApprovalLevel)
		}
		if votes[i].ApproverID == from && votes[i].Decision == domainApproval.DecisionPending {
			src = &votes[i]
		}
	}
	if src == nil {
		err = r.Votes.CreateBatch(ctx, []domainApproval.LevelApprover{{
			ApprovalID:  a.ID,
			LevelNumber: a.CurrentApprovalLevel,
			ApproverID:  to,
			Decision:    domainApproval.DecisionPending,
		}})
	} else {
		err = r.Votes.Reassign(ctx, src.ID, to)
	}
	if err != nil {
		return err
	}
	return syncCurrent(ctx, r, a)
}

func (parallel) escalate(ctx context.Context, r uow.Repos, a *domainApproval.Approval, target string, restart bool) error {
	if restart {
		if err := r.Votes.DeleteLevel(ctx, a.ID, a.CurrentApprovalLevel); err != nil {
			return err
		}
	} else {
		votes, err := r.Votes.ListForLevel(ctx, a.ID, a.CurrentApprovalLevel)
		if err != nil {
			return err
		}
		for _, v := range votes {
			if v.ApproverID == target && v.Decision != domainApproval.DecisionPending {
				return fmt.Errorf("%w: escalation target %s already voted at level %d", domainApproval.ErrValidation, target, a.CurrentApprovalLevel)
			}
		}
		if err := r.Votes.DeletePending(ctx, a.ID, a.CurrentApprovalLevel); err != nil {
			return err
		}
	}
	err := r.Votes.CreateBatch(ctx, []domainApproval.LevelApprover{{
		ApprovalID:  a.ID,
		LevelNumber: a.CurrentApprovalLevel,
		ApproverID:  target,
		Decision:    domainApproval.DecisionPending,
	}})
	if err != nil {
		return err
	}
	a.CurrentApproverID = &target
	return nil
}

func (parallel) close(ctx context.Context, r uow.Repos, a *domainApproval.Approval) error {
	return r.Votes.DeletePending(ctx, a.ID, a.CurrentApprovalLevel)
}

// syncCurrent points current_approver_id at the first pending seat of the
// current level, or clears it.
func syncCurrent(ctx context.Context, r uow.Repos, a *domainApproval.Approval) error {
	votes, err := r.Votes.ListForLevel(ctx, a.ID, a.CurrentApprovalLevel)
	if err != nil {
		return err
	}
	a.CurrentApproverID = nil
	for _, v := range votes {
		if v.Decision == domainApproval.DecisionPending {
			id := v.ApproverID
			a.CurrentApproverID = &id
			return nil
		}
	}
	return nil
}

// pendingSeats lists the approvers still expected to act at the current level.
func pendingSeats(ctx context.Context, r uow.Repos, a *domainApproval.Approval) ([]string, error) {
	votes, err := r.Votes.ListForLevel(ctx, a.ID, a.CurrentApprovalLevel)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, v := range votes {
		if v.Decision == domainApproval.DecisionPending {
			out = append(out, v.ApproverID)
		}
	}
	if len(out) == 0 && a.CurrentApproverID != nil {
		out = append(out, *a.CurrentApproverID)
	}
	return out, nil
}
