package policy

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// PredicateSpec is the declarative form of a core.Predicate as written in
// leapdump.yaml or a catalog preset. Exactly one operator must be set:
//
//	{column: role, eq: administrator}
//	{column: user_email, like: "%@example.com"}
//	{column: ID, in: [1, 2, 3]}
//	{column: deleted_at, null: true}
//	{any: [...]} / {all: [...]} / {not: {...}}
type PredicateSpec struct {
	Column string          `koanf:"column" yaml:"column"`
	Eq     any             `koanf:"eq" yaml:"eq"`
	In     []any           `koanf:"in" yaml:"in"`
	Like   *string         `koanf:"like" yaml:"like"`
	Null   *bool           `koanf:"null" yaml:"null"`
	Any    []PredicateSpec `koanf:"any" yaml:"any"`
	All    []PredicateSpec `koanf:"all" yaml:"all"`
	Not    *PredicateSpec  `koanf:"not" yaml:"not"`
}

// Build converts the spec to a predicate. path locates the spec in the policy
// document and is reported in PolicyErrors.
func (s PredicateSpec) Build(path string) (core.Predicate, error) {
	var ops []string
	if s.Eq != nil {
		ops = append(ops, "eq")
	}
	if s.In != nil {
		ops = append(ops, "in")
	}
	if s.Like != nil {
		ops = append(ops, "like")
	}
	if s.Null != nil {
		ops = append(ops, "null")
	}
	if s.Any != nil {
		ops = append(ops, "any")
	}
	if s.All != nil {
		ops = append(ops, "all")
	}
	if s.Not != nil {
		ops = append(ops, "not")
	}

	switch len(ops) {
	case 0:
		return nil, &core.PolicyError{Fragment: path, Reason: "predicate has no operator (want eq, in, like, null, any, all or not)"}
	case 1:
	default:
		return nil, &core.PolicyError{Fragment: path, Reason: "predicate mixes operators " + strings.Join(ops, ", ")}
	}

	op := ops[0]
	columnOp := op == "eq" || op == "in" || op == "like" || op == "null"
	if columnOp && s.Column == "" {
		return nil, &core.PolicyError{Fragment: path, Reason: fmt.Sprintf("%q requires a column", op)}
	}
	if !columnOp && s.Column != "" {
		return nil, &core.PolicyError{Fragment: path, Reason: fmt.Sprintf("%q does not take a column", op)}
	}

	switch op {
	case "eq":
		return core.Eq{Column: s.Column, Value: s.Eq}, nil
	case "in":
		return core.In{Column: s.Column, Values: s.In}, nil
	case "like":
		return core.Like{Column: s.Column, Pattern: *s.Like}, nil
	case "null":
		if *s.Null {
			return core.IsNull{Column: s.Column}, nil
		}
		return core.Not{P: core.IsNull{Column: s.Column}}, nil
	case "not":
		inner, err := s.Not.Build(path + ".not")
		if err != nil {
			return nil, err
		}
		return core.Not{P: inner}, nil
	}

	children := s.Any
	if op == "all" {
		children = s.All
	}
	preds := make([]core.Predicate, 0, len(children))
	for i, c := range children {
		p, err := c.Build(fmt.Sprintf("%s.%s[%d]", path, op, i))
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if op == "all" {
		return core.AllOf(preds...), nil
	}
	return core.AnyOf(preds...), nil
}

// DecodePredicateSpec decodes a plain map, such as one returned by a hook
// script, into a spec. Unknown keys are an error.
func DecodePredicateSpec(raw map[string]any) (PredicateSpec, error) {
	var s PredicateSpec
	err := decode(raw, &s)
	return s, err
}

func decode(raw any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "koanf",
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}
