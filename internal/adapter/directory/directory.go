// Package directory is a static, file-backed view of users, roles and the
// reporting line. It resolves level approvers and escalation targets for
// the engine and display names for the presenter.
package directory

import (
	"context"
	"fmt"
	"os"
	"sort"

	domainApproval "approval-engine/internal/domain/approval"
	"approval-engine/internal/domain/workflow"
	"approval-engine/internal/usecase/approval"

	"gopkg.in/yaml.v3"
)

type User struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Roles   []string `yaml:"roles"`
	Manager string   `yaml:"manager"`
	// Higher rank sits higher in the hierarchy.
	Rank int `yaml:"rank"`
}

type file struct {
	Users             []User `yaml:"users"`
	DefaultEscalation string `yaml:"default_escalation"`
}

type Directory struct {
	users    map[string]User
	roles    map[string][]string
	fallback string
}

func New(users []User, defaultEscalation string) *Directory {
	d := &Directory{
		users:    make(map[string]User, len(users)),
		roles:    map[string][]string{},
		fallback: defaultEscalation,
	}
	for _, u := range users {
		d.users[u.ID] = u
		for _, r := range u.Roles {
			d.roles[r] = append(d.roles[r], u.ID)
		}
	}
	for r := range d.roles {
		sort.Strings(d.roles[r])
	}
	return d
}

// Load reads a YAML directory file. An empty path yields an empty directory.
func Load(path string) (*Directory, error) {
	if path == "" {
		return New(nil, ""), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("%s: user %d has no id", path, i)
		}
	}
	return New(f.Users, f.DefaultEscalation), nil
}

// ResolveApprovers merges explicit user ids with the holders of the level's
// role, then applies the level criteria.
func (d *Directory) ResolveApprovers(_ context.Context, q approval.ApproverQuery) ([]string, error) {
	if q.Level == nil {
		return nil, nil
	}
	crit := q.Level.ApproverCriteria.Data()

	var ids []string
	if crit.ApproverType == workflow.ApproverTypeAssignee {
		if v, ok := q.Data["assignee_id"].(string); ok && v != "" {
			ids = append(ids, v)
		}
	} else {
		ids = append(ids, q.Level.ApproverUserIDs.Data()...)
		if q.Level.ApproverRole != "" {
			ids = append(ids, d.roles[q.Level.ApproverRole]...)
		}
	}

	if crit.HierarchyCheck == workflow.HierarchyHigherThanRequester {
		floor := d.users[q.RequestedBy].Rank
		kept := ids[:0]
		for _, id := range ids {
			if u, ok := d.users[id]; ok && u.Rank > floor {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	return ids, nil
}

// EscalationTarget is from's manager, else the default escalation user.
// Neither may be from itself or the requester.
func (d *Directory) EscalationTarget(_ context.Context, a *domainApproval.Approval, from string) (string, error) {
	requester := ""
	if a != nil {
		requester = a.RequestedBy
	}
	for _, c := range []string{d.users[from].Manager, d.fallback} {
		if c != "" && c != from && c != requester {
			return c, nil
		}
	}
	return "", nil
}

// DisplayName falls back to the id for unknown users.
func (d *Directory) DisplayName(id string) string {
	if u, ok := d.users[id]; ok && u.Name != "" {
		return u.Name
	}
	return id
}

func (d *Directory) Users() []User {
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
