package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdump/internal/cli/output"
	"github.com/leapstack-labs/leapdump/internal/state"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show export-run history",
		Long: `List past export runs recorded in the state database, newest first.
With a run id, list the per-table results of that run.`,
		Example: `  leapdump runs
  leapdump runs --limit 5
  leapdump runs 3f1c2a9e-4b7d-4e0f-9d55-1c6a2b8e7f10`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRuns,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}

type runJSON struct {
	RunID       string    `json:"run_id"`
	State       string    `json:"state"`
	Output      string    `json:"output"`
	Tables      int       `json:"tables"`
	Rows        int64     `json:"rows"`
	StartedAt   string    `json:"started_at"`
	FinishedAt  string    `json:"finished_at,omitempty"`
	FailedTable string    `json:"failed_table,omitempty"`
	Error       string    `json:"error,omitempty"`
	TableRuns   []tableRJ `json:"table_runs,omitempty"`
}

type tableRJ struct {
	Table       string `json:"table"`
	Status      string `json:"status"`
	Rule        string `json:"rule"`
	RowsRead    int64  `json:"rows_read"`
	RowsEmitted int64  `json:"rows_emitted"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cc.Renderer

	path := cc.Cfg.Export.StatePath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON([]runJSON{})
		}
		r.Muted("No export runs recorded yet.")
		return nil
	}

	store := state.NewSQLiteStore(cc.Logger)
	if err := store.Open(ctx, path); err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer func() { _ = store.Close() }()
	if v, err := store.MigrationVersion(ctx); err == nil {
		cc.Logger.Debug("opened state database", "path", path, "schema_version", v)
	}

	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		tables, err := store.ListTableRuns(ctx, run.RunID)
		if err != nil {
			return err
		}
		return renderRun(r, run, tables)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	return renderRuns(r, runs)
}

func toRunJSON(run core.RunSummary) runJSON {
	out := runJSON{
		RunID:       run.RunID,
		State:       string(run.State),
		Output:      run.Output,
		Tables:      run.TablesProcessed,
		Rows:        run.RowsEmitted,
		StartedAt:   run.StartedAt.Format(time.RFC3339),
		FailedTable: run.FailedTable,
		Error:       run.Error,
	}
	if !run.FinishedAt.IsZero() {
		out.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return out
}

func renderRuns(r *output.Renderer, runs []core.RunSummary) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]runJSON, 0, len(runs))
		for _, run := range runs {
			out = append(out, toRunJSON(run))
		}
		return r.JSON(out)
	}

	if len(runs) == 0 {
		r.Muted("No export runs recorded yet.")
		return nil
	}

	r.Header(2, "Export runs")
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if !run.FinishedAt.IsZero() {
			duration = output.FormatDuration(run.FinishedAt.Sub(run.StartedAt))
		}
		rows = append(rows, []string{
			run.RunID,
			string(run.State),
			output.FormatTime(run.StartedAt),
			duration,
			strconv.Itoa(run.TablesProcessed),
			output.FormatCount(run.RowsEmitted),
			run.Output,
		})
	}
	r.Table([]string{"Run", "State", "Started", "Duration", "Tables", "Rows", "Output"}, rows)
	return nil
}

func renderRun(r *output.Renderer, run *core.RunSummary, tables []core.TableResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := toRunJSON(*run)
		for _, t := range tables {
			out.TableRuns = append(out.TableRuns, tableRJ{
				Table:       t.Table,
				Status:      string(t.Status),
				Rule:        t.Rule,
				RowsRead:    t.RowsRead,
				RowsEmitted: t.RowsEmitted,
				DurationMS:  t.Duration.Milliseconds(),
				Error:       t.Error,
			})
		}
		return r.JSON(out)
	}

	r.Header(2, "Run "+run.RunID)
	r.KeyValue("State", string(run.State))
	r.KeyValue("Output", run.Output)
	r.KeyValue("Started", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FailedTable != "" {
		r.KeyValue("Failed table", run.FailedTable)
	}
	if run.Error != "" {
		r.KeyValue("Error", run.Error)
	}
	r.Println()

	for _, t := range tables {
		detail := fmt.Sprintf("%s of %s rows, %s", output.FormatCount(t.RowsEmitted), output.FormatCount(t.RowsRead), output.FormatDuration(t.Duration))
		if t.Error != "" {
			detail = t.Error
		}
		r.StatusLine(t.Table, string(t.Status), detail)
	}
	return nil
}
