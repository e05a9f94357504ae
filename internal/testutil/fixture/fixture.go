// Package fixture wires the approval engine over an in-memory database
// with a controllable clock and in-memory collaborators.
package fixture

import (
	"context"
	"sync"
	"testing"
	"time"

	"approval-engine/internal/adapter/repository/mysql"
	domainApproval "approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/uow"
	"approval-engine/internal/domain/workflow"
	"approval-engine/internal/infrastructure/metrics"
	"approval-engine/internal/testutil/dbtest"
	"approval-engine/internal/usecase/approvable"
	"approval-engine/internal/usecase/approval"
	"approval-engine/internal/usecase/history"
	workflowUC "approval-engine/internal/usecase/workflow"

	"gorm.io/gorm"
)

// Epoch is the fixture clock's starting time.
var Epoch = time.Date(2025, 9, 6, 9, 0, 0, 0, time.UTC)

type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Notifier records every notification it is given.
type Notifier struct {
	mu   sync.Mutex
	sent []approval.Notification
}

func (n *Notifier) Notify(_ context.Context, x approval.Notification) error {
	n.mu.Lock()
	n.sent = append(n.sent, x)
	n.mu.Unlock()
	return nil
}

func (n *Notifier) Sent() []approval.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]approval.Notification(nil), n.sent...)
}

// Of returns the notifications of one kind.
func (n *Notifier) Of(kind approval.NotificationKind) []approval.Notification {
	var out []approval.Notification
	for _, x := range n.Sent() {
		if x.Kind == kind {
			out = append(out, x)
		}
	}
	return out
}

// Approvers resolves a level to its configured user ids, or to
// request_data.assignee_id for assignee levels.
type Approvers struct{}

func (Approvers) ResolveApprovers(_ context.Context, q approval.ApproverQuery) ([]string, error) {
	if q.Level.ApproverCriteria.Data().ApproverType == workflow.ApproverTypeAssignee {
		if id, ok := q.Data["assignee_id"].(string); ok {
			return []string{id}, nil
		}
		return nil, nil
	}
	return q.Level.ApproverUserIDs.Data(), nil
}

// Escalation maps an approver to their manager; the "" key is the fallback.
type Escalation map[string]string

func (e Escalation) EscalationTarget(_ context.Context, _ *domainApproval.Approval, from string) (string, error) {
	if t, ok := e[from]; ok {
		return t, nil
	}
	return e[""], nil
}

type Engine struct {
	DB         *gorm.DB
	Usecase    *approval.Usecase
	Store      *workflowUC.Store
	Approvals  *mysql.ApprovalRepository
	History    *history.Logger
	Clock      *Clock
	Notifier   *Notifier
	Escalation Escalation
	Metrics    *metrics.Metrics
}

type Option func(*approval.Deps)

func WithParallelEscalation(policy string) Option {
	return func(d *approval.Deps) { d.ParallelEscalation = policy }
}

// WithUoW wraps the database unit of work, e.g. to inject failures.
func WithUoW(wrap func(uow.UnitOfWork) uow.UnitOfWork) Option {
	return func(d *approval.Deps) { d.UoW = wrap(d.UoW) }
}

// New builds an engine over a fresh database. The escalation map starts
// with "u-director" as fallback target.
func New(t testing.TB, opts ...Option) *Engine {
	t.Helper()
	db := dbtest.Open(t)

	approvals := mysql.NewApprovalRepository(db)
	e := &Engine{
		DB:         db,
		Store:      workflowUC.NewStore(mysql.NewWorkflowRepository(db), mysql.NewGormUoW(db), nil),
		Approvals:  approvals,
		History:    history.NewLogger(mysql.NewHistoryRepository(db)),
		Clock:      &Clock{t: Epoch},
		Notifier:   &Notifier{},
		Escalation: Escalation{"": "u-director"},
		Metrics:    metrics.New(),
	}

	reg := approvable.NewRegistry()
	reg.RegisterPassthrough("purchase_request", "staff")

	deps := approval.Deps{
		UoW:         mysql.NewGormUoW(db),
		Approvals:   approvals,
		Votes:       mysql.NewVoteRepository(db),
		Workflows:   e.Store,
		History:     e.History,
		Approvers:   Approvers{},
		Escalation:  e.Escalation,
		Approvables: reg,
		Notifier:    e.Notifier,
		Metrics:     e.Metrics,
		Now:         e.Clock.Now,
	}
	for _, o := range opts {
		o(&deps)
	}
	e.Usecase = approval.NewUsecase(deps)
	return e
}

// Workflow stores d and fails the test on error.
func (e *Engine) Workflow(t testing.TB, d workflowUC.Definition) *workflow.Workflow {
	t.Helper()
	w, err := e.Store.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("create workflow %s: %v", d.WorkflowCode, err)
	}
	return w
}

// Sequential is a purchase_request workflow with one approver per level.
func Sequential(code string, approvers ...string) workflowUC.Definition {
	d := workflowUC.Definition{
		WorkflowName: "Purchase " + code,
		WorkflowCode: code,
		ModuleName:   "procurement",
		ApprovalType: "purchase_request",
		WorkflowType: workflow.TypeSequential,
	}
	for i, id := range approvers {
		d.Levels = append(d.Levels, workflowUC.LevelDefinition{
			LevelNumber:     i + 1,
			LevelName:       "Level " + id,
			ApproverUserIDs: []string{id},
			SLAHours:        24,
		})
	}
	return d
}

// Parallel is a single-module workflow whose levels seat several approvers.
func Parallel(code string, levels ...[]string) workflowUC.Definition {
	d := workflowUC.Definition{
		WorkflowName: "Parallel " + code,
		WorkflowCode: code,
		ModuleName:   "procurement",
		ApprovalType: "purchase_request",
		WorkflowType: workflow.TypeParallel,
	}
	for i, ids := range levels {
		d.Levels = append(d.Levels, workflowUC.LevelDefinition{
			LevelNumber:          i + 1,
			LevelName:            "Board",
			ApproverUserIDs:      ids,
			RequiresAllApprovers: true,
			SLAHours:             48,
		})
	}
	return d
}

// Actor is a caller without extra permissions.
func Actor(id string, perms ...string) approval.Actor {
	return approval.Actor{ID: id, Permissions: perms, IPAddress: "10.0.0.1", UserAgent: "fixture"}
}

// Create opens a purchase request approval as requester.
func (e *Engine) Create(t testing.TB, requester string, data map[string]any) *domainApproval.Approval {
	t.Helper()
	a, err := e.Usecase.Create(context.Background(), Actor(requester), approval.CreateInput{
		ApprovableType: "purchase_request",
		ApprovableID:   "PR-1",
		ModuleName:     "procurement",
		ApprovalType:   "purchase_request",
		RequestData:    data,
	})
	if err != nil {
		t.Fatalf("create approval: %v", err)
	}
	return a
}
