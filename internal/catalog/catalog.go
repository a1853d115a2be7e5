// Package catalog provides the SchemaCatalog: the live tables of the source,
// the declared dependency edges between them and the static baseline rules.
//
// A catalog is composed from fragments (embedded presets and configuration).
// Loading validates every edge against the live schema and rejects cycles
// with a *core.SchemaError, before any data is read.
package catalog

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/leapstack-labs/leapdump/internal/dag"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// Catalog is the immutable schema description used by the resolvers.
type Catalog struct {
	tables    []core.Table
	edges     []core.DependencyEdge
	incoming  map[string][]core.DependencyEdge
	outgoing  map[string][]core.DependencyEdge
	baselines map[string]core.FilterRule
	combine   map[string]core.Combine
	keys      map[string]map[string]struct{}
	graph     *dag.Graph
	order     []string
	levels    [][]string
}

// New builds a catalog from tables and edges without baselines.
func New(tables []core.Table, edges ...core.DependencyEdge) (*Catalog, error) {
	return Load(tables, []Fragment{{Name: "inline", Edges: edges}}, nil)
}

// Load composes the fragments over the live tables. Fragments are applied in
// order; a later baseline for the same table replaces an earlier one.
func Load(tables []core.Table, fragments []Fragment, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Catalog{
		incoming:  make(map[string][]core.DependencyEdge),
		outgoing:  make(map[string][]core.DependencyEdge),
		baselines: make(map[string]core.FilterRule),
		combine:   make(map[string]core.Combine),
		keys:      make(map[string]map[string]struct{}),
		graph:     dag.NewGraph(),
	}

	for _, t := range tables {
		if _, dup := c.graph.Node(t.Name); dup {
			return nil, &core.SchemaError{Table: t.Name, Reason: "table listed twice"}
		}
		c.tables = append(c.tables, t)
		c.graph.AddNode(t.Name, t)
	}
	sort.Slice(c.tables, func(i, j int) bool { return c.tables[i].Name < c.tables[j].Name })

	seen := make(map[core.DependencyEdge]struct{})
	for _, f := range fragments {
		for _, e := range f.Edges {
			if _, dup := seen[e]; dup {
				continue
			}
			if err := c.checkEdge(e); err != nil {
				if f.Optional && !isIncomplete(e) {
					logger.Debug("dropping optional edge", "fragment", f.Name, "edge", e.String(), "reason", err.Reason)
					continue
				}
				return nil, err
			}
			seen[e] = struct{}{}
			if err := c.addEdge(e); err != nil {
				return nil, err
			}
		}

		if err := c.addBaselines(f, logger); err != nil {
			return nil, err
		}
		if err := c.addCombine(f); err != nil {
			return nil, err
		}
	}

	if hasCycle, path := c.graph.HasCycle(); hasCycle {
		return nil, &core.SchemaError{Table: path[0], Cycle: path, Reason: "dependency cycle"}
	}

	levels, err := c.graph.Levels()
	if err != nil {
		return nil, &core.SchemaError{Reason: err.Error()}
	}
	c.levels = levels
	c.order = slices.Concat(levels...)

	for child := range c.incoming {
		sortEdges(c.incoming[child])
	}
	for parent := range c.outgoing {
		sortEdges(c.outgoing[parent])
	}
	logger.Debug("catalog loaded",
		"tables", c.graph.Len(),
		"dependencies", c.graph.EdgeCount(),
		"levels", len(levels))
	return c, nil
}

func isIncomplete(e core.DependencyEdge) bool {
	return e.ChildTable == "" || e.ChildColumn == "" || e.ParentTable == "" || e.ParentColumn == ""
}

func (c *Catalog) checkEdge(e core.DependencyEdge) *core.SchemaError {
	edge := e
	if isIncomplete(e) {
		return &core.SchemaError{Edge: &edge, Reason: "edge needs child, child_column, parent and parent_column"}
	}
	for _, side := range []struct{ table, column string }{
		{e.ChildTable, e.ChildColumn},
		{e.ParentTable, e.ParentColumn},
	} {
		t, ok := c.Table(side.table)
		if !ok {
			return &core.SchemaError{Table: side.table, Edge: &edge, Reason: "unknown table"}
		}
		if !t.HasColumn(side.column) {
			return &core.SchemaError{Table: side.table, Edge: &edge, Reason: fmt.Sprintf("unknown column %q", side.column)}
		}
	}
	return nil
}

func (c *Catalog) addEdge(e core.DependencyEdge) error {
	if e.ChildTable != e.ParentTable {
		if err := c.graph.AddEdge(e.ParentTable, e.ChildTable); err != nil {
			edge := e
			return &core.SchemaError{Edge: &edge, Reason: err.Error()}
		}
	} else {
		edge := e
		return &core.SchemaError{
			Table:  e.ChildTable,
			Edge:   &edge,
			Cycle:  []string{e.ChildTable, e.ChildTable},
			Reason: "dependency cycle",
		}
	}

	c.edges = append(c.edges, e)
	c.incoming[e.ChildTable] = append(c.incoming[e.ChildTable], e)
	c.outgoing[e.ParentTable] = append(c.outgoing[e.ParentTable], e)
	c.markKey(e.ChildTable, e.ChildColumn)
	c.markKey(e.ParentTable, e.ParentColumn)
	return nil
}

func (c *Catalog) addBaselines(f Fragment, logger *slog.Logger) error {
	set := func(table string, rule core.FilterRule) {
		if _, ok := c.graph.Node(table); !ok {
			logger.Debug("ignoring baseline for absent table", "fragment", f.Name, "table", table)
			return
		}
		if prev, ok := c.baselines[table]; ok {
			logger.Debug("replacing baseline", "fragment", f.Name, "table", table, "previous", prev.String())
		}
		c.baselines[table] = rule.WithOrigin(core.OriginBaseline)
	}

	for _, table := range f.Exclude {
		set(table, core.ExcludeAll())
	}

	tables := make([]string, 0, len(f.Where))
	for t := range f.Where {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, table := range tables {
		pred, err := f.Where[table].Build(fmt.Sprintf("catalog.%s.where.%s", f.Name, table))
		if err != nil {
			return err
		}
		if t, ok := c.Table(table); ok {
			for _, col := range pred.Columns() {
				if !t.HasColumn(col) {
					return &core.SchemaError{Table: table, Reason: fmt.Sprintf("baseline of fragment %s references unknown column %q", f.Name, col)}
				}
			}
		}
		set(table, core.IncludeWhere(pred))
	}
	return nil
}

func (c *Catalog) addCombine(f Fragment) error {
	for table, mode := range f.Combine {
		m, err := core.ParseCombine(mode)
		if err != nil {
			return &core.SchemaError{Table: table, Reason: fmt.Sprintf("fragment %s: %v", f.Name, err)}
		}
		if _, ok := c.graph.Node(table); ok {
			c.combine[table] = m
		}
	}
	return nil
}

func (c *Catalog) markKey(table, column string) {
	if c.keys[table] == nil {
		c.keys[table] = make(map[string]struct{})
	}
	c.keys[table][column] = struct{}{}
}

func sortEdges(edges []core.DependencyEdge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].ParentTable != edges[j].ParentTable {
			return edges[i].ParentTable < edges[j].ParentTable
		}
		if edges[i].ChildTable != edges[j].ChildTable {
			return edges[i].ChildTable < edges[j].ChildTable
		}
		return edges[i].ChildColumn < edges[j].ChildColumn
	})
}

// Tables returns every table, sorted by name.
func (c *Catalog) Tables() []core.Table {
	out := make([]core.Table, len(c.tables))
	copy(out, c.tables)
	return out
}

// Table returns the named table.
func (c *Catalog) Table(name string) (core.Table, bool) {
	d, ok := c.graph.Node(name)
	if !ok {
		return core.Table{}, false
	}
	return d.(core.Table), true
}

// Edges returns the accepted dependency edges in declaration order.
func (c *Catalog) Edges() []core.DependencyEdge {
	out := make([]core.DependencyEdge, len(c.edges))
	copy(out, c.edges)
	return out
}

// ParentEdges returns the edges whose child is table.
func (c *Catalog) ParentEdges(table string) []core.DependencyEdge {
	return c.incoming[table]
}

// ChildEdges returns the edges whose parent is table.
func (c *Catalog) ChildEdges(table string) []core.DependencyEdge {
	return c.outgoing[table]
}

// Baseline returns the static rule registered for a table.
func (c *Catalog) Baseline(table string) (core.FilterRule, bool) {
	r, ok := c.baselines[table]
	return r, ok
}

// Combine returns the multi-parent mode a fragment declared for a table.
func (c *Catalog) Combine(table string) (core.Combine, bool) {
	m, ok := c.combine[table]
	return m, ok
}

// Baselines returns a copy of every baseline rule.
func (c *Catalog) Baselines() map[string]core.FilterRule {
	out := make(map[string]core.FilterRule, len(c.baselines))
	for k, v := range c.baselines {
		out[k] = v
	}
	return out
}

// KeyColumns returns the columns of a table that take part in an edge.
func (c *Catalog) KeyColumns(table string) []string {
	cols := make([]string, 0, len(c.keys[table]))
	for col := range c.keys[table] {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// IsKeyColumn reports whether a column takes part in an edge.
func (c *Catalog) IsKeyColumn(table, column string) bool {
	_, ok := c.keys[table][column]
	return ok
}

// Order returns table names with parents before children.
func (c *Catalog) Order() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Levels groups table names by dependency depth. Tables in one level only
// depend on tables in earlier levels.
func (c *Catalog) Levels() [][]string {
	out := make([][]string, len(c.levels))
	for i, l := range c.levels {
		out[i] = append([]string(nil), l...)
	}
	return out
}

// Reachable returns table and every table that depends on it, directly or
// transitively.
func (c *Catalog) Reachable(table string) []string {
	return c.graph.Descendants(table)
}

// Ancestors returns every table that table depends on.
func (c *Catalog) Ancestors(table string) []string {
	return c.graph.Ancestors(table)
}

// Roots returns the tables that depend on nothing.
func (c *Catalog) Roots() []string {
	return c.graph.Roots()
}
