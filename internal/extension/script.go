package extension

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapdump/internal/policy"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"go.starlark.net/starlark"
)

// Hook function names a script may define.
const (
	FuncCriteria   = "criteria"
	FuncAllowSet   = "allow_set"
	FuncTableRules = "table_rules"
	FuncRedactions = "redactions"
)

// Script is a loaded Starlark hook file.
//
//	def table_rules(rules):
//	    rules["wp_sessions"] = "exclude"
//	    return rules
//
// Table rules are "include", "exclude" or a predicate dict. Criteria are a
// predicate dict or None. Allow-sets are lists of keys. Redactions are lists of
// {table, column, action, when} dicts.
type Script struct {
	Name    string
	Path    string
	globals starlark.StringDict
	logger  *slog.Logger
}

// LoadError represents an error loading a hook script.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// LoadScripts expands the glob patterns relative to baseDir and loads every
// match. Patterns are processed in order; matches of one pattern are sorted.
func LoadScripts(patterns []string, baseDir string, logger *slog.Logger) ([]*Script, error) {
	var scripts []*Script
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid hook pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, &LoadError{File: pattern, Message: "no hook script matches"}
		}
		sort.Strings(matches)
		for _, path := range matches {
			if seen[path] {
				continue
			}
			seen[path] = true
			s, err := LoadScript(path, logger)
			if err != nil {
				return nil, err
			}
			scripts = append(scripts, s)
		}
	}
	return scripts, nil
}

// LoadScript executes a hook file once and keeps its globals.
func LoadScript(path string, logger *slog.Logger) (*Script, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the policy's hook list
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s := &Script{Name: name, Path: path, logger: logger.With("hook", name)}

	globals, err := starlark.ExecFile(s.thread("load"), path, content, nil) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}
	s.globals = globals

	defined := 0
	for _, fn := range []string{FuncCriteria, FuncAllowSet, FuncTableRules, FuncRedactions} {
		if _, ok := s.function(fn); ok {
			defined++
		}
	}
	if defined == 0 {
		return nil, &LoadError{File: path, Message: "defines none of criteria, allow_set, table_rules, redactions"}
	}
	return s, nil
}

func (s *Script) thread(fn string) *starlark.Thread {
	return &starlark.Thread{
		Name: s.Name + ":" + fn,
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Debug(msg, "func", fn)
		},
	}
}

func (s *Script) function(name string) (starlark.Callable, bool) {
	v, ok := s.globals[name]
	if !ok {
		return nil, false
	}
	fn, ok := v.(starlark.Callable)
	return fn, ok
}

func (s *Script) call(ctx context.Context, name string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn, _ := s.function(name)
	in, err := toStarlark(arg)
	if err != nil {
		return nil, fmt.Errorf("converting argument: %w", err)
	}

	thread := s.thread(name)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	out, err := starlark.Call(thread, fn, starlark.Tuple{in}, nil)
	if err != nil {
		return nil, err
	}
	return toGo(out)
}

// Register adds a hook for every hook function the script defines.
func (s *Script) Register(r *Registry) {
	if _, ok := s.function(FuncCriteria); ok {
		r.OnCriteria(s.Name, s.criteria)
	}
	if _, ok := s.function(FuncAllowSet); ok {
		r.OnAllowSet(s.Name, s.allowSet)
	}
	if _, ok := s.function(FuncTableRules); ok {
		r.OnTableRules(s.Name, s.tableRules)
	}
	if _, ok := s.function(FuncRedactions); ok {
		r.OnRedactions(s.Name, s.redactions)
	}
}

func (s *Script) criteria(ctx context.Context, criteria core.Predicate) (core.Predicate, error) {
	spec, err := policy.SpecOf(criteria)
	if err != nil {
		return nil, err
	}
	var arg any
	if spec != nil {
		arg = spec.Map()
	}

	out, err := s.call(ctx, FuncCriteria, arg)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	raw, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("criteria must return a dict or None, got %T", out)
	}
	return buildSpec(raw, "hook:"+s.Name+".criteria")
}

func (s *Script) allowSet(ctx context.Context, set *core.AllowSet) (*core.AllowSet, error) {
	out, err := s.call(ctx, FuncAllowSet, set.Values())
	if err != nil {
		return nil, err
	}
	keys, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("allow_set must return a list, got %T", out)
	}
	return core.NewAllowSet(set.Table, set.Column, keys), nil
}

func (s *Script) tableRules(ctx context.Context, rules map[string]core.FilterRule) (map[string]core.FilterRule, error) {
	arg := make(map[string]any, len(rules))
	for table, rule := range rules {
		switch rule.Kind {
		case core.RuleIncludeAll:
			arg[table] = "include"
		case core.RuleExcludeAll:
			arg[table] = "exclude"
		default:
			spec, err := policy.SpecOf(rule.Where)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", table, err)
			}
			arg[table] = spec.Map()
		}
	}

	out, err := s.call(ctx, FuncTableRules, arg)
	if err != nil {
		return nil, err
	}
	raw, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("table_rules must return a dict, got %T", out)
	}

	result := make(map[string]core.FilterRule, len(raw))
	for table, v := range raw {
		switch val := v.(type) {
		case string:
			switch val {
			case "include":
				result[table] = core.IncludeAll()
			case "exclude":
				result[table] = core.ExcludeAll()
			default:
				return nil, fmt.Errorf("table %s: unknown rule %q (want include, exclude or a predicate)", table, val)
			}
		case map[string]any:
			pred, err := buildSpec(val, "hook:"+s.Name+".table_rules."+table)
			if err != nil {
				return nil, err
			}
			result[table] = core.IncludeWhere(pred)
		default:
			return nil, fmt.Errorf("table %s: unsupported rule type %T", table, v)
		}
		if prev, ok := rules[table]; ok && prev.String() == result[table].String() {
			result[table] = prev
		}
	}
	return result, nil
}

func (s *Script) redactions(ctx context.Context, rules []core.RedactionRule) ([]core.RedactionRule, error) {
	arg := make([]any, len(rules))
	for i, r := range rules {
		e, err := policy.EntryOf(r)
		if err != nil {
			return nil, fmt.Errorf("redaction %s.%s: %w", r.Table, r.Column, err)
		}
		m := e.Map()
		m["origin"] = r.Origin
		arg[i] = m
	}

	out, err := s.call(ctx, FuncRedactions, arg)
	if err != nil {
		return nil, err
	}
	list, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("redactions must return a list, got %T", out)
	}

	result := make([]core.RedactionRule, 0, len(list))
	for i, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("redactions[%d]: want a dict, got %T", i, item)
		}
		origin, _ := raw["origin"].(string)
		delete(raw, "origin")

		fragment := fmt.Sprintf("hook:%s.redactions[%d]", s.Name, i)
		entry, err := policy.DecodeRedactionEntry(raw)
		if err != nil {
			return nil, &core.PolicyError{Fragment: fragment, Reason: err.Error()}
		}
		rule, err := entry.Build(fragment)
		if err != nil {
			return nil, err
		}
		if origin != "" {
			rule.Origin = origin
		}
		result = append(result, rule)
	}
	return result, nil
}

func buildSpec(raw map[string]any, fragment string) (core.Predicate, error) {
	spec, err := policy.DecodePredicateSpec(raw)
	if err != nil {
		return nil, &core.PolicyError{Fragment: fragment, Reason: err.Error()}
	}
	return spec.Build(fragment)
}
