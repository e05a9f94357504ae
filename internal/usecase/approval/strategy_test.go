package approval_test

import (
	"context"
	"testing"

	"approval-engine/internal/config"
	domainApproval "approval-engine/internal/domain/approval"
	historyDomain "approval-engine/internal/domain/history"
	wf "approval-engine/internal/domain/workflow"
	"approval-engine/internal/testutil/fixture"
	"approval-engine/internal/usecase/approval"
	workflowUC "approval-engine/internal/usecase/workflow"
	"approval-engine/pkg/condition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actions(rows []historyDomain.ApprovalHistory) []historyDomain.Action {
	out := make([]historyDomain.Action, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Action)
	}
	return out
}

func TestParallel_QuorumAdvancesLevel(t *testing.T) {
	e := fixture.New(t)
	e.Workflow(t, fixture.Parallel("PR_BOARD", []string{"u-a", "u-b", "u-c"}, []string{"u-d"}))
	a := e.Create(t, "u-req", nil)

	assert.Equal(t, "u-a", *a.CurrentApproverID)
	sent := e.Notifier.Of(approval.NotifyPendingApproval)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"u-a", "u-b", "u-c"}, sent[0].Recipients)

	// any seated approver may vote, not only the displayed one
	a, err := act(t, e, a, fixture.Actor("u-b"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, 1, a.CurrentApprovalLevel)
	assert.Equal(t, "u-a", *a.CurrentApproverID)

	_, err = act(t, e, a, fixture.Actor("u-b"), approval.ActInput{Action: approval.ActionApprove})
	assert.ErrorIs(t, err, domainApproval.ErrUnauthorized, "second vote by the same approver")

	a, err = act(t, e, a, fixture.Actor("u-a"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, 1, a.CurrentApprovalLevel)
	assert.Equal(t, "u-c", *a.CurrentApproverID)

	a, err = act(t, e, a, fixture.Actor("u-c"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, domainApproval.StatusPending, a.Status)
	assert.Equal(t, 2, a.CurrentApprovalLevel)
	assert.Equal(t, "u-d", *a.CurrentApproverID)

	a, err = act(t, e, a, fixture.Actor("u-d"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, domainApproval.StatusApproved, a.Status)

	rows := historyOf(t, e, a)
	assert.Equal(t, []historyDomain.Action{
		historyDomain.ActionSubmitted,
		historyDomain.ActionApproved,
		historyDomain.ActionApproved,
		historyDomain.ActionLevelCompleted,
		historyDomain.ActionApproved,
	}, actions(rows))
	assert.Equal(t, 1, rows[3].ApprovalLevel)
	assert.Equal(t, "approved", rows[4].ToStatus)
}

func TestParallel_RejectShortCircuits(t *testing.T) {
	e := fixture.New(t)
	e.Workflow(t, fixture.Parallel("PR_BOARD_REJ", []string{"u-a", "u-b", "u-c"}, []string{"u-d"}))
	a := e.Create(t, "u-req", nil)

	_, err := act(t, e, a, fixture.Actor("u-a"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	a, err = act(t, e, a, fixture.Actor("u-b"), approval.ActInput{Action: approval.ActionReject, RejectionReason: "too expensive"})
	require.NoError(t, err)
	assert.Equal(t, domainApproval.StatusRejected, a.Status)
	assert.Equal(t, 1, a.CurrentApprovalLevel)

	_, err = act(t, e, a, fixture.Actor("u-c"), approval.ActInput{Action: approval.ActionApprove})
	assert.ErrorIs(t, err, domainApproval.ErrTerminalState)

	b, err := e.Usecase.Load(context.Background(), a.ApprovalID, approval.Include{})
	require.NoError(t, err)
	assert.Empty(t, b.Votes)
}

func TestParallel_MinimumApprovers(t *testing.T) {
	e := fixture.New(t)
	d := fixture.Parallel("PR_MIN", []string{"u-a", "u-b", "u-c"})
	d.Levels[0].RequiresAllApprovers = false
	d.Levels[0].MinimumApprovers = 2
	e.Workflow(t, d)
	a := e.Create(t, "u-req", nil)

	a, err := act(t, e, a, fixture.Actor("u-c"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, domainApproval.StatusPending, a.Status)

	a, err = act(t, e, a, fixture.Actor("u-a"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, domainApproval.StatusApproved, a.Status)
}

func TestParallel_OverrideSettlesLevel(t *testing.T) {
	e := fixture.New(t)
	e.Workflow(t, fixture.Parallel("PR_OVR", []string{"u-a", "u-b"}, []string{"u-d"}))
	a := e.Create(t, "u-req", nil)

	a, err := act(t, e, a, fixture.Actor("u-cfo", approval.PermOverride), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, 2, a.CurrentApprovalLevel)
	assert.Equal(t, "u-d", *a.CurrentApproverID)
}

func TestParallel_PendingForSeatedApprover(t *testing.T) {
	ctx := context.Background()
	e := fixture.New(t)
	e.Workflow(t, fixture.Parallel("PR_SEATS", []string{"u-a", "u-b"}))
	e.Create(t, "u-req", nil)

	for _, who := range []string{"u-a", "u-b"} {
		page, err := e.Usecase.PendingFor(ctx, who, domainApproval.Filter{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, page.Total, who)
	}
	page, err := e.Usecase.PendingFor(ctx, "u-c", domainApproval.Filter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestParallel_DelegateMovesSeat(t *testing.T) {
	e := fixture.New(t)
	e.Workflow(t, fixture.Parallel("PR_PDEL", []string{"u-a", "u-b"}))
	a := e.Create(t, "u-req", nil)

	_, err := act(t, e, a, fixture.Actor("u-b"), approval.ActInput{Action: approval.ActionDelegate, TargetUserID: "u-a"})
	assert.ErrorIs(t, err, domainApproval.ErrValidation, "target already seated")

	_, err = act(t, e, a, fixture.Actor("u-b"), approval.ActInput{Action: approval.ActionDelegate, TargetUserID: "u-e"})
	require.NoError(t, err)

	_, err = act(t, e, a, fixture.Actor("u-a"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	a, err = act(t, e, a, fixture.Actor("u-e"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, domainApproval.StatusApproved, a.Status)
}

func TestParallel_EscalationPolicies(t *testing.T) {
	tests := []struct {
		policy    string
		wantSeats int
	}{
		{config.ParallelEscalationKeepVotes, 2},
		{config.ParallelEscalationRestartQuorum, 1},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			ctx := context.Background()
			e := fixture.New(t, fixture.WithParallelEscalation(tt.policy))
			e.Workflow(t, fixture.Parallel("PR_PESC", []string{"u-a", "u-b", "u-c"}))
			a := e.Create(t, "u-req", nil)

			_, err := act(t, e, a, fixture.Actor("u-a"), approval.ActInput{Action: approval.ActionApprove})
			require.NoError(t, err)

			admin := fixture.Actor("u-admin", approval.PermAdmin)
			a, err = act(t, e, a, admin, approval.ActInput{Action: approval.ActionEscalate, TargetUserID: "u-head"})
			require.NoError(t, err)
			assert.Equal(t, domainApproval.StatusEscalated, a.Status)
			assert.Equal(t, "u-head", *a.CurrentApproverID)

			b, err := e.Usecase.Load(ctx, a.ApprovalID, approval.Include{})
			require.NoError(t, err)
			assert.Len(t, b.Votes, tt.wantSeats)

			// the target takes the approval back to pending and decides it
			a, err = act(t, e, a, fixture.Actor("u-head"), approval.ActInput{Action: approval.ActionAssign, TargetUserID: "u-head"})
			require.NoError(t, err)
			assert.Equal(t, domainApproval.StatusPending, a.Status)

			a, err = act(t, e, a, fixture.Actor("u-head"), approval.ActInput{Action: approval.ActionApprove})
			require.NoError(t, err)
			assert.Equal(t, domainApproval.StatusApproved, a.Status)
		})
	}
}

// conditionalDefinition routes amounts above 10k to finance and above 50k
// to the director as well.
func conditionalDefinition() workflowUC.Definition {
	level := func(n int, name, approver string, when condition.Set) workflowUC.LevelDefinition {
		return workflowUC.LevelDefinition{
			LevelNumber:     n,
			LevelName:       name,
			ApproverUserIDs: []string{approver},
			Condition:       when,
			SLAHours:        24,
		}
	}
	return workflowUC.Definition{
		WorkflowName: "Purchase by amount",
		WorkflowCode: "PR_COND",
		ModuleName:   "procurement",
		ApprovalType: "purchase_request",
		WorkflowType: wf.TypeConditional,
		Levels: []workflowUC.LevelDefinition{
			level(1, "Manager", "u-mgr", condition.Set{}),
			level(2, "Finance", "u-fin", condition.Set{Rules: []condition.Rule{{Field: "amount", Operator: condition.OpGt, Value: 10000}}}),
			level(3, "Director", "u-dir", condition.Set{Expression: `ctx.amount > 50000`}),
		},
	}
}

func TestConditional_SkipsLevelsThatDoNotApply(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		approvers []string
	}{
		{"small", 500, []string{"u-mgr"}},
		{"medium", 20000, []string{"u-mgr", "u-fin"}},
		{"large", 90000, []string{"u-mgr", "u-fin", "u-dir"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := fixture.New(t)
			e.Workflow(t, conditionalDefinition())
			a := e.Create(t, "u-req", map[string]any{"amount": tt.amount})
			assert.Equal(t, 3, a.TotalApprovalLevels)

			var err error
			for i, who := range tt.approvers {
				require.Equal(t, domainApproval.StatusPending, a.Status, "step %d", i)
				require.Equal(t, who, *a.CurrentApproverID, "step %d", i)
				a, err = act(t, e, a, fixture.Actor(who), approval.ActInput{Action: approval.ActionApprove})
				require.NoError(t, err)
			}
			assert.Equal(t, domainApproval.StatusApproved, a.Status)
			assert.Len(t, historyOf(t, e, a), len(tt.approvers)+1)
		})
	}
}

func TestConditional_EntryLevel(t *testing.T) {
	e := fixture.New(t)
	d := conditionalDefinition()
	d.Levels[0].Condition = condition.Set{Rules: []condition.Rule{{Field: "amount", Operator: condition.OpLt, Value: 100}}}
	e.Workflow(t, d)

	a := e.Create(t, "u-req", map[string]any{"amount": 20000})
	assert.Equal(t, 2, a.CurrentApprovalLevel)
	assert.Equal(t, "u-fin", *a.CurrentApproverID)

	_, err := e.Usecase.Create(context.Background(), fixture.Actor("u-req"), approval.CreateInput{
		ApprovableType: "purchase_request",
		ApprovableID:   "PR-2",
		ModuleName:     "procurement",
		ApprovalType:   "purchase_request",
		RequestData:    map[string]any{"amount": 5000},
	})
	assert.ErrorIs(t, err, domainApproval.ErrInvalidWorkflow, "no level applies")
}
