package approval_test

import (
	"context"
	"testing"
	"time"

	domainApproval "approval-engine/internal/domain/approval"
	"approval-engine/internal/testutil/fixture"
	"approval-engine/internal/usecase/approval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkAct(t *testing.T) {
	ctx := context.Background()
	e := fixture.New(t)
	e.Workflow(t, fixture.Sequential("PR_BULK", "u-mgr"))
	a1 := e.Create(t, "u-req", nil)
	a2 := e.Create(t, "u-req", nil)
	a3 := e.Create(t, "u-mgr", nil) // the requester never approves their own request

	ids := []string{a1.ApprovalID, a2.ApprovalID, a3.ApprovalID, "ffffffffffffffffffffffffffffffff"}
	res, err := e.Usecase.BulkAct(ctx, fixture.Actor("u-mgr"), ids, approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)
	require.Len(t, res, 4)

	assert.Equal(t, domainApproval.StatusApproved, res[0].Status)
	assert.Empty(t, res[0].Error)
	assert.Equal(t, domainApproval.StatusApproved, res[1].Status)
	assert.Contains(t, res[2].Error, domainApproval.ErrUnauthorized.Error())
	assert.Contains(t, res[3].Error, domainApproval.ErrNotFound.Error())

	_, err = e.Usecase.BulkAct(ctx, fixture.Actor("u-mgr"), ids, approval.ActInput{Action: approval.ActionComment, Comments: "x"})
	assert.ErrorIs(t, err, domainApproval.ErrValidation)
	_, err = e.Usecase.BulkAct(ctx, fixture.Actor("u-mgr"), ids, approval.ActInput{Action: approval.ActionReject})
	assert.ErrorIs(t, err, domainApproval.ErrValidation)
	_, err = e.Usecase.BulkAct(ctx, fixture.Actor("u-mgr"), nil, approval.ActInput{Action: approval.ActionApprove})
	assert.ErrorIs(t, err, domainApproval.ErrValidation)
}

func TestStatsAndQueues(t *testing.T) {
	ctx := context.Background()
	e := fixture.New(t)
	e.Workflow(t, fixture.Sequential("PR_Q", "u-mgr"))

	e.Create(t, "u-req", nil)
	urgent, err := e.Usecase.Create(ctx, fixture.Actor("u-req"), approval.CreateInput{
		ApprovableType: "purchase_request",
		ApprovableID:   "PR-9",
		ModuleName:     "procurement",
		ApprovalType:   "purchase_request",
		Priority:       domainApproval.PriorityUrgent,
	})
	require.NoError(t, err)
	other := e.Create(t, "u-req2", nil)
	_, err = act(t, e, other, fixture.Actor("u-mgr"), approval.ActInput{Action: approval.ActionApprove})
	require.NoError(t, err)

	e.Clock.Advance(25 * time.Hour)
	_, err = e.Usecase.FlagOverdue(ctx, urgent.ApprovalID, false)
	require.NoError(t, err)

	st, err := e.Usecase.Stats(ctx, "u-mgr")
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.PendingApprovals)
	assert.EqualValues(t, 1, st.Overdue)
	assert.EqualValues(t, 1, st.HighPriority)
	require.Len(t, st.ByModule, 1)
	assert.Equal(t, "procurement", st.ByModule[0].ModuleName)
	assert.EqualValues(t, 2, st.ByModule[0].Count)

	mine, err := e.Usecase.Stats(ctx, "u-req")
	require.NoError(t, err)
	assert.EqualValues(t, 2, mine.MyPendingRequests)
	assert.Zero(t, mine.PendingApprovals)

	page, err := e.Usecase.PendingFor(ctx, "u-mgr", domainApproval.Filter{Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Len(t, page.Items, 1)

	page, err = e.Usecase.OverdueFor(ctx, "u-mgr", domainApproval.Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, urgent.ApprovalID, page.Items[0].ApprovalID)

	page, err = e.Usecase.SubmittedBy(ctx, "u-req2", domainApproval.Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, domainApproval.StatusApproved, page.Items[0].Status)
}

func TestLoad_Includes(t *testing.T) {
	ctx := context.Background()
	e := fixture.New(t)
	e.Workflow(t, fixture.Sequential("PR_LOAD", "u-mgr", "u-fin"))
	a := e.Create(t, "u-req", map[string]any{"amount": 10})

	b, err := e.Usecase.Load(ctx, a.ApprovalID, approval.Include{})
	require.NoError(t, err)
	assert.Nil(t, b.Workflow)
	assert.Nil(t, b.History)
	assert.Nil(t, b.Approvable)

	b, err = e.Usecase.Load(ctx, a.ApprovalID, approval.Include{History: true, Workflow: true, Approvable: true})
	require.NoError(t, err)
	require.NotNil(t, b.Workflow)
	assert.Equal(t, "PR_LOAD", b.Workflow.WorkflowCode)
	assert.Len(t, b.History, 1)
	assert.Equal(t, map[string]any{"type": "purchase_request", "id": "PR-1"}, b.Approvable)
}
