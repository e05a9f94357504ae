// Package condition evaluates the predicates attached to workflows and
// workflow levels against an approval's request data.
//
// A Set holds structured rules (field/operator/value triples combined with
// "all" or "any") and an optional tengo expression. Both parts must match
// for the set to match; an empty set always matches.
package condition

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/d5/tengo/v2"
)

type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpContains Operator = "contains"
	OpExists   Operator = "exists"
)

const (
	MatchAll = "all"
	MatchAny = "any"
)

const (
	exprTimeout   = 250 * time.Millisecond
	exprMaxAllocs = 5000
	exprResultVar = "__match"
)

var ErrInvalid = errors.New("invalid condition")

type Rule struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

type Set struct {
	Match      string `json:"match,omitempty" yaml:"match,omitempty"`
	Rules      []Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

func (s Set) IsZero() bool { return len(s.Rules) == 0 && strings.TrimSpace(s.Expression) == "" }

// Validate checks operators and compiles the expression without running it.
func (s Set) Validate() error {
	switch s.Match {
	case "", MatchAll, MatchAny:
	default:
		return fmt.Errorf("%w: match must be %q or %q", ErrInvalid, MatchAll, MatchAny)
	}
	for i, r := range s.Rules {
		if strings.TrimSpace(r.Field) == "" {
			return fmt.Errorf("%w: rule %d has no field", ErrInvalid, i)
		}
		switch r.Operator {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains, OpExists:
		case OpIn, OpNotIn:
			if _, ok := asSlice(r.Value); !ok {
				return fmt.Errorf("%w: rule %d: %s needs a list value", ErrInvalid, i, r.Operator)
			}
		default:
			return fmt.Errorf("%w: rule %d: unknown operator %q", ErrInvalid, i, r.Operator)
		}
	}
	if expr := strings.TrimSpace(s.Expression); expr != "" {
		script := newScript(expr)
		if err := script.Add("ctx", map[string]any{}); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if _, err := script.Compile(); err != nil {
			return fmt.Errorf("%w: expression: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Evaluate reports whether data satisfies s.
func Evaluate(ctx context.Context, s Set, data map[string]any) (bool, error) {
	if s.IsZero() {
		return true, nil
	}
	if len(s.Rules) > 0 {
		ok, err := matchRules(s, data)
		if err != nil || !ok {
			return false, err
		}
	}
	if expr := strings.TrimSpace(s.Expression); expr != "" {
		return evalExpression(ctx, expr, data)
	}
	return true, nil
}

func matchRules(s Set, data map[string]any) (bool, error) {
	matchAny := s.Match == MatchAny
	for _, r := range s.Rules {
		ok, err := r.matches(data)
		if err != nil {
			return false, err
		}
		if matchAny && ok {
			return true, nil
		}
		if !matchAny && !ok {
			return false, nil
		}
	}
	return !matchAny, nil
}

func (r Rule) matches(data map[string]any) (bool, error) {
	v, found := Lookup(data, r.Field)
	switch r.Operator {
	case OpExists:
		want := true
		if b, ok := r.Value.(bool); ok {
			want = b
		}
		return found == want, nil
	case OpNe:
		return !found || !equal(v, r.Value), nil
	case OpNotIn:
		list, _ := asSlice(r.Value)
		return !found || !containsValue(list, v), nil
	}
	if !found {
		return false, nil
	}
	switch r.Operator {
	case OpEq:
		return equal(v, r.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		a, okA := toFloat(v)
		b, okB := toFloat(r.Value)
		if !okA || !okB {
			return false, fmt.Errorf("%w: %s %s needs numeric operands", ErrInvalid, r.Field, r.Operator)
		}
		switch r.Operator {
		case OpGt:
			return a > b, nil
		case OpGte:
			return a >= b, nil
		case OpLt:
			return a < b, nil
		default:
			return a <= b, nil
		}
	case OpIn:
		list, _ := asSlice(r.Value)
		return containsValue(list, v), nil
	case OpContains:
		if s, ok := v.(string); ok {
			return strings.Contains(s, fmt.Sprint(r.Value)), nil
		}
		if list, ok := asSlice(v); ok {
			return containsValue(list, r.Value), nil
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrInvalid, r.Operator)
}

// Lookup resolves a dotted path ("department.code") inside data.
func Lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func newScript(expr string) *tengo.Script {
	script := tengo.NewScript([]byte(exprResultVar + " := (" + expr + ")"))
	script.SetMaxAllocs(exprMaxAllocs)
	return script
}

func evalExpression(ctx context.Context, expr string, data map[string]any) (bool, error) {
	if data == nil {
		data = map[string]any{}
	}
	script := newScript(expr)
	if err := script.Add("ctx", data); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	compiled, err := script.Compile()
	if err != nil {
		return false, fmt.Errorf("%w: expression: %v", ErrInvalid, err)
	}
	ctx, cancel := context.WithTimeout(ctx, exprTimeout)
	defer cancel()
	if err := compiled.RunContext(ctx); err != nil {
		return false, fmt.Errorf("%w: expression: %v", ErrInvalid, err)
	}
	return compiled.Get(exprResultVar).Bool(), nil
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if equal(item, v) {
			return true
		}
	}
	return false
}

func asSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
