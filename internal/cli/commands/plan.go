package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdump/internal/cli/output"
	"github.com/leapstack-labs/leapdump/internal/export"
	"github.com/leapstack-labs/leapdump/internal/policy"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what an export would keep and redact, without writing output",
		Long: `Resolve the allow-set, cascade it through the catalog and compile every
table's rule, then print the result. Only key queries are run against the
source; no rows are streamed and nothing is written.`,
		Example: `  leapdump plan
  leapdump plan --redact-secrets --format json`,
		Args: cobra.NoArgs,
		RunE: runPlan,
	}
	cmd.Flags().String("policy", "", "Read the policy from this file instead of leapdump.yaml")
	cmd.Flags().Bool("redact-secrets", false, "Include the redactions listed in policy.secrets")
	return cmd
}

type planJSON struct {
	RootTable string          `json:"root_table"`
	RootKeys  int             `json:"root_keys"`
	KeySets   map[string]int  `json:"key_sets"`
	Tables    []planTableJSON `json:"tables"`
	Warnings  []string        `json:"warnings,omitempty"`
}

type planTableJSON struct {
	Table      string            `json:"table"`
	Rule       string            `json:"rule"`
	Origin     string            `json:"origin"`
	Redactions map[string]string `json:"redactions,omitempty"`
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cc.Cfg

	pol, err := cfg.Policy.Build(policy.BuildOptions{
		RedactSecrets: cfg.Export.RedactSecrets,
		HashSalt:      cfg.Export.HashSalt,
	})
	if err != nil {
		return err
	}
	hooks, err := cc.Hooks()
	if err != nil {
		return err
	}

	sess, err := cc.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	plan, err := export.New(export.Config{
		Source:  sess.Source,
		Catalog: sess.Catalog,
		Policy:  pol,
		Hooks:   hooks,
		Logger:  cc.Logger,
	}).Plan(ctx)
	if err != nil {
		return err
	}

	return renderPlan(cc.Renderer, plan)
}

func redactionList(spec core.RedactionSpec) string {
	cols := spec.SortedColumns()
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s=%s", c, spec[c]))
	}
	return strings.Join(parts, ", ")
}

func renderPlan(r *output.Renderer, plan *export.Plan) error {
	tables := plan.Tables()

	if r.EffectiveMode() == output.ModeJSON {
		out := planJSON{
			RootTable: plan.RootTable,
			RootKeys:  plan.RootSet.Len(),
			KeySets:   make(map[string]int, len(plan.KeySets)),
		}
		for k, set := range plan.KeySets {
			out.KeySets[k] = set.Len()
		}
		for _, tp := range tables {
			t := planTableJSON{Table: tp.Table, Rule: tp.Rule.String(), Origin: string(tp.Rule.Origin)}
			if len(tp.Redactions) > 0 {
				t.Redactions = make(map[string]string, len(tp.Redactions))
				for col, red := range tp.Redactions {
					t.Redactions[col] = red.String()
				}
			}
			out.Tables = append(out.Tables, t)
		}
		for _, w := range plan.Compiled.Warnings {
			out.Warnings = append(out.Warnings, w.String())
		}
		return r.JSON(out)
	}

	r.Header(2, "Export plan")
	r.KeyValue("Root", fmt.Sprintf("%s (%s keys retained)", plan.RootTable, output.FormatCount(int64(plan.RootSet.Len()))))
	r.Println()

	rows := make([][]string, 0, len(tables))
	for _, tp := range tables {
		rows = append(rows, []string{tp.Table, tp.Rule.String(), string(tp.Rule.Origin), redactionList(tp.Redactions)})
	}
	r.Table([]string{"Table", "Rule", "Origin", "Redactions"}, rows)

	if len(plan.KeySets) > 0 {
		keys := make([][]string, 0, len(plan.KeySets))
		for _, name := range sortedKeys(plan.KeySets) {
			keys = append(keys, []string{name, strconv.Itoa(plan.KeySets[name].Len())})
		}
		r.Println()
		r.Table([]string{"Key set", "Keys"}, keys)
	}

	for _, w := range plan.Compiled.Warnings {
		r.Warning(w.String())
	}
	return nil
}
