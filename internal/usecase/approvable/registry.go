// Package approvable maps approvable type tags to loaders owned by the
// modules that produce approvals. The engine only ever holds type + id.
package approvable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"approval-engine/internal/domain/approval"
)

// ErrNotFound is returned by loaders when the entity does not exist.
var ErrNotFound = errors.New("approvable not found")

// Loader fetches the entity behind id. The returned payload is exposed as
// the "approvable" block of the approval view.
type Loader func(ctx context.Context, id string) (any, error)

type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

func NewRegistry() *Registry {
	return &Registry{loaders: map[string]Loader{}}
}

// Register binds typ to l, replacing any previous loader.
func (r *Registry) Register(typ string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.TrimSpace(typ)] = l
}

// RegisterPassthrough accepts any id for the given types and echoes the
// reference back as the payload. Used for modules living in other services.
func (r *Registry) RegisterPassthrough(types ...string) {
	for _, typ := range types {
		typ := strings.TrimSpace(typ)
		if typ == "" {
			continue
		}
		r.Register(typ, func(_ context.Context, id string) (any, error) {
			return map[string]any{"type": typ, "id": id}, nil
		})
	}
}

// Resolve loads (typ, id). Unknown types, empty ids and loader failures all
// surface as ErrInvalidApprovable.
func (r *Registry) Resolve(ctx context.Context, typ, id string) (any, error) {
	r.mu.RLock()
	l, ok := r.loaders[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown approvable_type %q", approval.ErrInvalidApprovable, typ)
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: approvable_id is required", approval.ErrInvalidApprovable)
	}
	v, err := l(ctx, id)
	if err != nil {
		if approval.IsDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s/%s: %v", approval.ErrInvalidApprovable, typ, id, err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s/%s", approval.ErrInvalidApprovable, typ, id)
	}
	return v, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaders))
	for t := range r.loaders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
