package commands

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/cli/output"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tables [table]",
		Aliases: []string{"catalog"},
		Short:   "List the catalog: tables, dependency edges and export order",
		Long: `Load the live schema of the source together with the configured presets
and edges, and print the resulting catalog. A dependency cycle or an edge
naming a missing table is reported as a schema error.

Given a table name, print that table's columns together with everything it
depends on and everything that depends on it. Dependents are what a root
filter on the table cascades into.`,
		Example: `  leapdump tables
  leapdump tables --edges
  leapdump tables --format json
  leapdump tables wp_users`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTables,
	}
	cmd.Flags().Bool("edges", false, "Also list every dependency edge")
	return cmd
}

type catalogJSON struct {
	Tables []tableJSON `json:"tables"`
	Edges  []edgeJSON  `json:"edges"`
	Levels [][]string  `json:"levels"`
	Roots  []string    `json:"roots"`
}

type tableDetailJSON struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	Keys       []string `json:"keys,omitempty"`
	DependsOn  []string `json:"depends_on"`
	Dependents []string `json:"dependents"`
}

type tableJSON struct {
	Name     string   `json:"name"`
	Columns  int      `json:"columns"`
	Keys     []string `json:"keys,omitempty"`
	Parents  []string `json:"parents,omitempty"`
	Baseline string   `json:"baseline,omitempty"`
}

type edgeJSON struct {
	Child        string `json:"child"`
	ChildColumn  string `json:"child_column"`
	Parent       string `json:"parent"`
	ParentColumn string `json:"parent_column"`
}

func runTables(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	sess, err := cc.OpenSession(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if len(args) == 1 {
		return renderTable(cc.Renderer, sess.Catalog, args[0])
	}
	showEdges, _ := cmd.Flags().GetBool("edges")
	return renderCatalog(cc.Renderer, sess.Catalog, showEdges)
}

func parentsOf(cat *catalog.Catalog, table string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range cat.ParentEdges(table) {
		if !seen[e.ParentTable] {
			seen[e.ParentTable] = true
			out = append(out, e.ParentTable)
		}
	}
	sort.Strings(out)
	return out
}

func renderCatalog(r *output.Renderer, cat *catalog.Catalog, showEdges bool) error {
	level := make(map[string]int)
	for i, names := range cat.Levels() {
		for _, n := range names {
			level[n] = i
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := catalogJSON{Levels: cat.Levels(), Roots: cat.Roots()}
		for _, t := range cat.Tables() {
			tj := tableJSON{Name: t.Name, Columns: len(t.Columns), Keys: cat.KeyColumns(t.Name), Parents: parentsOf(cat, t.Name)}
			if b, ok := cat.Baseline(t.Name); ok {
				tj.Baseline = b.String()
			}
			out.Tables = append(out.Tables, tj)
		}
		for _, e := range cat.Edges() {
			out.Edges = append(out.Edges, edgeJSON{
				Child: e.ChildTable, ChildColumn: e.ChildColumn,
				Parent: e.ParentTable, ParentColumn: e.ParentColumn,
			})
		}
		return r.JSON(out)
	}

	r.Header(2, "Catalog")
	rows := make([][]string, 0)
	for _, name := range cat.Order() {
		t, _ := cat.Table(name)
		baseline := ""
		if b, ok := cat.Baseline(name); ok {
			baseline = b.String()
		}
		rows = append(rows, []string{
			name,
			strconv.Itoa(level[name]),
			strconv.Itoa(len(t.Columns)),
			strings.Join(parentsOf(cat, name), ", "),
			strings.Join(cat.KeyColumns(name), ", "),
			baseline,
		})
	}
	r.Table([]string{"Table", "Level", "Columns", "Depends on", "Keys", "Baseline"}, rows)

	if showEdges {
		edges := cat.Edges()
		er := make([][]string, 0, len(edges))
		for _, e := range edges {
			er = append(er, []string{e.ChildTable + "." + e.ChildColumn, e.ParentTable + "." + e.ParentColumn})
		}
		r.Println()
		r.Table([]string{"Child", "Parent"}, er)
	}

	r.Println()
	r.Muted(output.FormatCount(int64(len(cat.Tables()))) + " tables, " + output.FormatCount(int64(len(cat.Edges()))) + " edges")
	r.Muted("roots: " + strings.Join(cat.Roots(), ", "))
	return nil
}

func renderTable(r *output.Renderer, cat *catalog.Catalog, name string) error {
	t, ok := cat.Table(name)
	if !ok {
		return &core.SchemaError{Table: name, Reason: "not in the catalog"}
	}
	columns := t.ColumnNames()
	dependents := slices.DeleteFunc(cat.Reachable(name), func(n string) bool { return n == name })
	if dependents == nil {
		dependents = []string{}
	}
	dependsOn := cat.Ancestors(name)
	if dependsOn == nil {
		dependsOn = []string{}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(tableDetailJSON{
			Name:       name,
			Columns:    columns,
			Keys:       cat.KeyColumns(name),
			DependsOn:  dependsOn,
			Dependents: dependents,
		})
	}

	r.Header(2, name)
	r.KeyValue("Columns", strings.Join(columns, ", "))
	r.KeyValue("Keys", strings.Join(cat.KeyColumns(name), ", "))
	r.KeyValue("Depends on", orNone(dependsOn))
	r.KeyValue("Dependents", orNone(dependents))

	if edges := cat.ParentEdges(name); len(edges) > 0 {
		rows := make([][]string, 0, len(edges))
		for _, e := range edges {
			rows = append(rows, []string{e.ChildColumn, e.ParentTable + "." + e.ParentColumn})
		}
		r.Println()
		r.Table([]string{"Column", "References"}, rows)
	}
	if edges := cat.ChildEdges(name); len(edges) > 0 {
		rows := make([][]string, 0, len(edges))
		for _, e := range edges {
			rows = append(rows, []string{e.ParentColumn, e.ChildTable + "." + e.ChildColumn})
		}
		r.Println()
		r.Table([]string{"Column", "Referenced by"}, rows)
	}
	return nil
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
