package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	domainApproval "approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/workflow"
	"approval-engine/internal/usecase/approval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const sample = `
default_escalation: u-ceo
users:
  - {id: u-staff, name: Staff, rank: 1, manager: u-mgr}
  - {id: u-mgr, name: Manager, rank: 2, manager: u-head, roles: [finance_manager]}
  - {id: u-mgr2, name: Manager Two, rank: 2, roles: [finance_manager]}
  - {id: u-head, name: Head, rank: 3, manager: u-ceo, roles: [finance_manager]}
  - {id: u-ceo, name: Chief, rank: 4}
`

func load(t *testing.T) *Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	d, err := Load(path)
	require.NoError(t, err)
	return d
}

func level(users []string, role string, crit workflow.Criteria) *workflow.Level {
	return &workflow.Level{
		LevelNumber:      1,
		ApproverUserIDs:  datatypes.NewJSONType(users),
		ApproverRole:     role,
		ApproverCriteria: datatypes.NewJSONType(crit),
	}
}

func TestResolveApprovers(t *testing.T) {
	d := load(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		level     *workflow.Level
		requester string
		data      map[string]any
		want      []string
	}{
		{"explicit users", level([]string{"u-x"}, "", workflow.Criteria{}), "u-staff", nil, []string{"u-x"}},
		{"role holders", level(nil, "finance_manager", workflow.Criteria{}), "u-staff", nil, []string{"u-head", "u-mgr", "u-mgr2"}},
		{
			"assignee from request data",
			level([]string{"u-x"}, "", workflow.Criteria{ApproverType: workflow.ApproverTypeAssignee}),
			"u-staff", map[string]any{"assignee_id": "u-mgr"}, []string{"u-mgr"},
		},
		{
			"assignee missing",
			level(nil, "", workflow.Criteria{ApproverType: workflow.ApproverTypeAssignee}),
			"u-staff", nil, nil,
		},
		{
			"higher than requester",
			level(nil, "finance_manager", workflow.Criteria{HierarchyCheck: workflow.HierarchyHigherThanRequester}),
			"u-mgr", nil, []string{"u-head"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.ResolveApprovers(ctx, approval.ApproverQuery{Level: tt.level, RequestedBy: tt.requester, Data: tt.data})
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEscalationTarget(t *testing.T) {
	d := load(t)
	ctx := context.Background()
	a := &domainApproval.Approval{RequestedBy: "u-staff"}

	got, _ := d.EscalationTarget(ctx, a, "u-mgr")
	assert.Equal(t, "u-head", got)

	got, _ = d.EscalationTarget(ctx, a, "u-mgr2")
	assert.Equal(t, "u-ceo", got, "no manager falls back to the default")

	got, _ = d.EscalationTarget(ctx, a, "u-ceo")
	assert.Empty(t, got, "nobody above the default")

	got, _ = d.EscalationTarget(ctx, &domainApproval.Approval{RequestedBy: "u-head"}, "u-mgr")
	assert.Equal(t, "u-ceo", got, "requester is never the target")
}

func TestDisplayName(t *testing.T) {
	d := load(t)
	assert.Equal(t, "Manager", d.DisplayName("u-mgr"))
	assert.Equal(t, "u-ghost", d.DisplayName("u-ghost"))
	assert.Len(t, d.Users(), 5)
}

func TestLoad_Errors(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, d.Users())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - {name: nobody}\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
