// Package extension provides the ordered hook registry through which external
// code widens or narrows an export before rules are compiled. Hooks receive the
// current value and return a possibly modified copy; they are applied in
// registration order. Compilation validates the result after every hook ran,
// so no hook can bypass the key-column redaction check.
package extension

import (
	"context"
	"fmt"
	"maps"

	"github.com/leapstack-labs/leapdump/pkg/core"
)

// CriteriaHook rewrites the root criteria before the allow-set query runs.
// A nil predicate means every root row.
type CriteriaHook func(ctx context.Context, criteria core.Predicate) (core.Predicate, error)

// AllowSetHook post-processes the resolved root allow-set.
type AllowSetHook func(ctx context.Context, set *core.AllowSet) (*core.AllowSet, error)

// TableRulesHook rewrites the explicit per-table overrides.
type TableRulesHook func(ctx context.Context, rules map[string]core.FilterRule) (map[string]core.FilterRule, error)

// RedactionsHook rewrites the list of redaction registrations.
type RedactionsHook func(ctx context.Context, rules []core.RedactionRule) ([]core.RedactionRule, error)

type hook[F any] struct {
	name string
	fn   F
}

// Registry holds the hooks of one export run.
type Registry struct {
	criteria   []hook[CriteriaHook]
	allowSets  []hook[AllowSetHook]
	tableRules []hook[TableRulesHook]
	redactions []hook[RedactionsHook]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnCriteria registers a criteria hook.
func (r *Registry) OnCriteria(name string, fn CriteriaHook) {
	r.criteria = append(r.criteria, hook[CriteriaHook]{name, fn})
}

// OnAllowSet registers an allow-set hook.
func (r *Registry) OnAllowSet(name string, fn AllowSetHook) {
	r.allowSets = append(r.allowSets, hook[AllowSetHook]{name, fn})
}

// OnTableRules registers a table-rule hook.
func (r *Registry) OnTableRules(name string, fn TableRulesHook) {
	r.tableRules = append(r.tableRules, hook[TableRulesHook]{name, fn})
}

// OnRedactions registers a redaction hook.
func (r *Registry) OnRedactions(name string, fn RedactionsHook) {
	r.redactions = append(r.redactions, hook[RedactionsHook]{name, fn})
}

// Names lists the registered hooks as "kind:name" in application order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	var names []string
	for _, h := range r.criteria {
		names = append(names, "criteria:"+h.name)
	}
	for _, h := range r.allowSets {
		names = append(names, "allow_set:"+h.name)
	}
	for _, h := range r.tableRules {
		names = append(names, "table_rules:"+h.name)
	}
	for _, h := range r.redactions {
		names = append(names, "redactions:"+h.name)
	}
	return names
}

// HookError reports a failing hook.
type HookError struct {
	Kind string
	Name string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %q: %v", e.Kind, e.Name, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// ApplyCriteria runs the criteria hooks in order.
func (r *Registry) ApplyCriteria(ctx context.Context, criteria core.Predicate) (core.Predicate, error) {
	if r == nil {
		return criteria, nil
	}
	for _, h := range r.criteria {
		next, err := h.fn(ctx, criteria)
		if err != nil {
			return nil, &HookError{Kind: "criteria", Name: h.name, Err: err}
		}
		criteria = next
	}
	return criteria, nil
}

// ApplyAllowSet runs the allow-set hooks in order. A hook must return a set;
// an empty set is a valid outcome, nil is not.
func (r *Registry) ApplyAllowSet(ctx context.Context, set *core.AllowSet) (*core.AllowSet, error) {
	if r == nil {
		return set, nil
	}
	for _, h := range r.allowSets {
		next, err := h.fn(ctx, set)
		if err != nil {
			return nil, &HookError{Kind: "allow_set", Name: h.name, Err: err}
		}
		if next == nil {
			return nil, &HookError{Kind: "allow_set", Name: h.name, Err: fmt.Errorf("returned no allow-set")}
		}
		set = next
	}
	return set, nil
}

// ApplyTableRules runs the table-rule hooks in order. Each hook works on its
// own copy of the mapping.
func (r *Registry) ApplyTableRules(ctx context.Context, rules map[string]core.FilterRule) (map[string]core.FilterRule, error) {
	out := maps.Clone(rules)
	if out == nil {
		out = make(map[string]core.FilterRule)
	}
	if r == nil {
		return out, nil
	}
	for _, h := range r.tableRules {
		next, err := h.fn(ctx, maps.Clone(out))
		if err != nil {
			return nil, &HookError{Kind: "table_rules", Name: h.name, Err: err}
		}
		if next == nil {
			next = make(map[string]core.FilterRule)
		}
		out = next
	}
	return out, nil
}

// ApplyRedactions runs the redaction hooks in order. Registrations added by a
// hook without an origin are attributed to it.
func (r *Registry) ApplyRedactions(ctx context.Context, rules []core.RedactionRule) ([]core.RedactionRule, error) {
	out := append([]core.RedactionRule(nil), rules...)
	if r == nil {
		return out, nil
	}
	for _, h := range r.redactions {
		next, err := h.fn(ctx, append([]core.RedactionRule(nil), out...))
		if err != nil {
			return nil, &HookError{Kind: "redactions", Name: h.name, Err: err}
		}
		for i := range next {
			if next[i].Origin == "" {
				next[i].Origin = "hook:" + h.name
			}
		}
		out = next
	}
	return out, nil
}
