package policy

import (
	"fmt"

	"github.com/leapstack-labs/leapdump/pkg/core"
)

// SpecOf converts a predicate back to its declarative form, so that hooks can
// inspect and rewrite it. TRUE converts to nil.
func SpecOf(p core.Predicate) (*PredicateSpec, error) {
	switch v := p.(type) {
	case nil, core.TruePredicate:
		return nil, nil
	case core.Eq:
		return &PredicateSpec{Column: v.Column, Eq: v.Value}, nil
	case core.In:
		return &PredicateSpec{Column: v.Column, In: append([]any{}, v.Values...)}, nil
	case core.InSet:
		return &PredicateSpec{Column: v.Column, In: append([]any{}, v.Set.Values()...)}, nil
	case core.Like:
		pattern := v.Pattern
		return &PredicateSpec{Column: v.Column, Like: &pattern}, nil
	case core.IsNull:
		null := true
		return &PredicateSpec{Column: v.Column, Null: &null}, nil
	case core.Not:
		inner, err := SpecOf(v.P)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, fmt.Errorf("cannot express NOT TRUE as a predicate spec")
		}
		return &PredicateSpec{Not: inner}, nil
	case core.And:
		children, err := specsOf(v)
		return &PredicateSpec{All: children}, err
	case core.Or:
		children, err := specsOf(v)
		return &PredicateSpec{Any: children}, err
	default:
		return nil, fmt.Errorf("cannot express %s as a predicate spec", p)
	}
}

func specsOf(preds []core.Predicate) ([]PredicateSpec, error) {
	out := make([]PredicateSpec, 0, len(preds))
	for _, p := range preds {
		s, err := SpecOf(p)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("cannot express nested TRUE as a predicate spec")
		}
		out = append(out, *s)
	}
	return out, nil
}

// EntryOf converts a redaction registration back to its declarative form.
func EntryOf(r core.RedactionRule) (RedactionEntry, error) {
	when, err := SpecOf(r.Redaction.When)
	if err != nil {
		return RedactionEntry{}, err
	}
	return RedactionEntry{Table: r.Table, Column: r.Column, Action: string(r.Redaction.Action), When: when}, nil
}

// Map returns the spec as a plain map using the document's key names.
func (s PredicateSpec) Map() map[string]any {
	m := make(map[string]any)
	if s.Column != "" {
		m["column"] = s.Column
	}
	if s.Eq != nil {
		m["eq"] = s.Eq
	}
	if s.In != nil {
		m["in"] = append([]any{}, s.In...)
	}
	if s.Like != nil {
		m["like"] = *s.Like
	}
	if s.Null != nil {
		m["null"] = *s.Null
	}
	if s.Any != nil {
		m["any"] = mapsOf(s.Any)
	}
	if s.All != nil {
		m["all"] = mapsOf(s.All)
	}
	if s.Not != nil {
		m["not"] = s.Not.Map()
	}
	return m
}

func mapsOf(specs []PredicateSpec) []any {
	out := make([]any, len(specs))
	for i, s := range specs {
		out[i] = s.Map()
	}
	return out
}

// Map returns the entry as a plain map using the document's key names.
func (e RedactionEntry) Map() map[string]any {
	m := map[string]any{"table": e.Table, "column": e.Column, "action": e.Action}
	if e.When != nil {
		m["when"] = e.When.Map()
	}
	return m
}

// DecodeRedactionEntry decodes a plain map into a redaction entry. Unknown keys
// are an error.
func DecodeRedactionEntry(raw map[string]any) (RedactionEntry, error) {
	var e RedactionEntry
	err := decode(raw, &e)
	return e, err
}
