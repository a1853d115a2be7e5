package core

import (
	"fmt"
	"sort"
	"strings"
)

// RuleKind selects how a FilterRule treats the rows of its table.
type RuleKind int

const (
	// RuleIncludeAll exports every row.
	RuleIncludeAll RuleKind = iota
	// RuleExcludeAll exports no row (caches, logs, queues).
	RuleExcludeAll
	// RuleIncludeWhere exports rows satisfying a predicate.
	RuleIncludeWhere
)

func (k RuleKind) String() string {
	switch k {
	case RuleIncludeAll:
		return "IncludeAll"
	case RuleExcludeAll:
		return "ExcludeAll"
	case RuleIncludeWhere:
		return "IncludeWhere"
	default:
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
}

// RuleOrigin records which tier produced a table's effective rule.
type RuleOrigin string

const (
	OriginDefault  RuleOrigin = "default"
	OriginCascade  RuleOrigin = "cascade"
	OriginBaseline RuleOrigin = "baseline"
	OriginOverride RuleOrigin = "override"
)

// FilterRule decides row inclusion for one table.
type FilterRule struct {
	Kind   RuleKind
	Where  Predicate
	Origin RuleOrigin
}

// IncludeAll returns a rule with no restriction.
func IncludeAll() FilterRule {
	return FilterRule{Kind: RuleIncludeAll}
}

// ExcludeAll returns a rule that drops every row.
func ExcludeAll() FilterRule {
	return FilterRule{Kind: RuleExcludeAll}
}

// IncludeWhere returns a rule keeping rows that satisfy p. Constant predicates
// collapse to IncludeAll / ExcludeAll.
func IncludeWhere(p Predicate) FilterRule {
	switch p.(type) {
	case nil, TruePredicate:
		return IncludeAll()
	case FalsePredicate:
		return ExcludeAll()
	}
	return FilterRule{Kind: RuleIncludeWhere, Where: p}
}

// WithOrigin returns a copy of the rule tagged with its origin tier.
func (r FilterRule) WithOrigin(o RuleOrigin) FilterRule {
	r.Origin = o
	return r
}

// Allows reports whether a row passes the rule.
func (r FilterRule) Allows(row Row) bool {
	switch r.Kind {
	case RuleIncludeAll:
		return true
	case RuleExcludeAll:
		return false
	default:
		return r.Where.Eval(row)
	}
}

// Predicate returns the rule as a predicate for query push-down.
func (r FilterRule) Predicate() Predicate {
	switch r.Kind {
	case RuleIncludeAll:
		return True
	case RuleExcludeAll:
		return False
	default:
		return r.Where
	}
}

func (r FilterRule) String() string {
	if r.Kind == RuleIncludeWhere {
		return fmt.Sprintf("IncludeWhere(%s)", r.Where)
	}
	return r.Kind.String()
}

// RedactAction is a field-level redaction.
type RedactAction string

const (
	// RedactBlank replaces the value with its type's empty representation.
	RedactBlank RedactAction = "blank"
	// RedactHash replaces the value with a deterministic one-way digest.
	RedactHash RedactAction = "hash"
	// RedactOmit removes the column from the emitted row.
	RedactOmit RedactAction = "omit"
)

// ParseRedactAction validates an action name.
func ParseRedactAction(s string) (RedactAction, error) {
	switch a := RedactAction(strings.ToLower(strings.TrimSpace(s))); a {
	case RedactBlank, RedactHash, RedactOmit:
		return a, nil
	default:
		return "", fmt.Errorf("unknown redaction action %q (want blank, hash or omit)", s)
	}
}

// Redaction is the action applied to one column. When, if set, limits the
// action to rows satisfying the predicate.
type Redaction struct {
	Action RedactAction
	When   Predicate
}

// Applies reports whether the redaction applies to a row.
func (r Redaction) Applies(row Row) bool {
	return r.When == nil || r.When.Eval(row)
}

func (r Redaction) String() string {
	if r.When == nil {
		return string(r.Action)
	}
	return fmt.Sprintf("%s when %s", r.Action, r.When)
}

// RedactionSpec maps column names of one table to their redaction.
type RedactionSpec map[string]Redaction

// SortedColumns returns the redacted column names in order.
func (s RedactionSpec) SortedColumns() []string {
	cols := make([]string, 0, len(s))
	for c := range s {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Clone returns a shallow copy of the spec.
func (s RedactionSpec) Clone() RedactionSpec {
	out := make(RedactionSpec, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Combine selects how a table with several constrained parents merges the
// per-edge predicates.
type Combine string

const (
	// CombineOr keeps a row allowed through any parent.
	CombineOr Combine = "or"
	// CombineAnd keeps a row only if allowed through every parent.
	CombineAnd Combine = "and"
)

// ParseCombine validates a combination mode. Empty means CombineOr.
func ParseCombine(s string) (Combine, error) {
	switch c := Combine(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CombineOr:
		return CombineOr, nil
	case CombineAnd:
		return CombineAnd, nil
	default:
		return "", fmt.Errorf("unknown combine mode %q (want or, and)", s)
	}
}
