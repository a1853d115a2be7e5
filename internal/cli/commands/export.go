package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdump/internal/cli/config"
	"github.com/leapstack-labs/leapdump/internal/cli/output"
	"github.com/leapstack-labs/leapdump/internal/export"
	"github.com/leapstack-labs/leapdump/internal/policy"
	"github.com/leapstack-labs/leapdump/internal/progress"
	"github.com/leapstack-labs/leapdump/internal/sink"
	"github.com/leapstack-labs/leapdump/internal/state"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a privacy-safe copy of the source database",
		Long: `Export the source database with rows and fields removed or redacted by policy.

Rows of the root table are kept when they match policy.criteria; every table
depending on it keeps only rows whose parent survived. Redactions are applied
to the emitted rows. The destination is chosen from the output:

  dump.sql            SQL dump in the source dialect
  dump.jsonl          one JSON object per row
  sqlite://out.db     a SQLite database
  duckdb://out.duckdb a DuckDB database
  -                   SQL dump on stdout`,
		Example: `  # Export to a SQL file
  leapdump export -o clean.sql

  # Also blank the secrets listed in policy.secrets
  leapdump export -o clean.sql --redact-secrets

  # Export into a SQLite database with foreign-key ordering
  leapdump export -o sqlite://clean.db --foreign-keys

  # Machine-readable progress
  leapdump export -o clean.jsonl --json`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().StringP("output", "o", "", "Output destination (.sql, .jsonl, sqlite://, duckdb:// or - for stdout)")
	cmd.Flags().String("policy", "", "Read the policy from this file instead of leapdump.yaml")
	cmd.Flags().Bool("redact-secrets", false, "Also apply the redactions listed in policy.secrets")
	cmd.Flags().Int("concurrency", 0, "Number of tables exported in parallel")
	cmd.Flags().Bool("json", false, "Report progress as JSON lines")
	cmd.Flags().String("progress", "", "Progress reporting (auto|bar|json|log|none)")
	cmd.Flags().String("hash-salt", "", "Salt mixed into hashed values")
	cmd.Flags().Int("batch-size", 0, "Rows per INSERT statement")
	cmd.Flags().Bool("foreign-keys", false, "Write database outputs in foreign-key order with constraints enforced")

	_ = cmd.RegisterFlagCompletionFunc("progress", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "bar", "json", "log", "none"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cc.Cfg
	if err := cfg.ValidateExport(); err != nil {
		return err
	}

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

	// A dump on stdout leaves stderr for everything else.
	toStdout := cfg.Export.Output == "-"
	r := cc.Renderer
	if toStdout {
		r = output.NewRenderer(cmd.ErrOrStderr(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
	}

	out, err := sink.Open(ctx, cfg.Export.Output, sink.Options{
		Dialect:     sess.Source.Dialect(),
		BatchSize:   cfg.Export.BatchSize,
		ForeignKeys: cfg.Export.ForeignKeys,
		Stdout:      cmd.OutOrStdout(),
		Logger:      cc.Logger,
	})
	if err != nil {
		return err
	}

	reporters := []progress.Sink{cc.progressSink(r.Writer(), r.ErrWriter())}

	store := state.NewSQLiteStore(cc.Logger)
	if err := store.Open(ctx, cfg.Export.StatePath); err != nil {
		cc.Logger.Warn("run history disabled", "path", cfg.Export.StatePath, "error", err)
	} else {
		defer func() { _ = store.Close() }()
		reporters = append(reporters, store.Recorder(ctx))
	}

	sum, runErr := export.New(export.Config{
		Source:      sess.Source,
		Catalog:     sess.Catalog,
		Policy:      pol,
		Hooks:       hooks,
		Sink:        out,
		Progress:    progress.Multi(reporters...),
		Concurrency: cfg.Export.Concurrency,
		Logger:      cc.Logger,
	}).Run(ctx)

	if closeErr := out.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("closing output %s: %w", out.Location(), closeErr)
	}

	if sum != nil && cfg.Export.Progress != config.ProgressJSON {
		if err := renderSummary(r, sum); err != nil {
			return err
		}
	}
	return runErr
}

// progressSink picks the live progress reporter for export.progress.
func (c *CommandContext) progressSink(stdout, stderr io.Writer) progress.Sink {
	switch c.Cfg.Export.Progress {
	case config.ProgressBar:
		return progress.NewBarSink(stderr)
	case config.ProgressJSON:
		return progress.NewJSONSink(stdout)
	case config.ProgressLog:
		return progress.NewLogSink(c.Logger)
	case config.ProgressNone:
		return nil
	default:
		if output.IsTerminal(stderr) {
			return progress.NewBarSink(stderr)
		}
		return nil
	}
}

type summaryJSON struct {
	RunID       string `json:"run_id"`
	State       string `json:"state"`
	Output      string `json:"output"`
	Tables      int    `json:"tables"`
	Rows        int64  `json:"rows"`
	DurationMS  int64  `json:"duration_ms"`
	FailedTable string `json:"failed_table,omitempty"`
	Error       string `json:"error,omitempty"`
}

func renderSummary(r *output.Renderer, sum *core.RunSummary) error {
	duration := sum.FinishedAt.Sub(sum.StartedAt)

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(summaryJSON{
			RunID:       sum.RunID,
			State:       string(sum.State),
			Output:      sum.Output,
			Tables:      sum.TablesProcessed,
			Rows:        sum.RowsEmitted,
			DurationMS:  duration.Milliseconds(),
			FailedTable: sum.FailedTable,
			Error:       sum.Error,
		})
	}

	if sum.State == core.StateFailed {
		r.Header(2, "Export failed")
	} else {
		r.Header(2, "Export completed")
	}
	rows := [][]string{
		{"Run", sum.RunID},
		{"Output", sum.Output},
		{"Tables processed", strconv.Itoa(sum.TablesProcessed)},
		{"Rows emitted", output.FormatCount(sum.RowsEmitted)},
		{"Duration", output.FormatDuration(duration)},
	}
	if fi, err := os.Stat(sum.Output); err == nil && fi.Mode().IsRegular() {
		rows = append(rows, []string{"Size", output.FormatBytes(uint64(fi.Size()))})
	}
	if sum.FailedTable != "" {
		rows = append(rows, []string{"Failed table", sum.FailedTable})
	}
	r.Table([]string{"Item", "Value"}, rows)
	return nil
}

// ExitCode maps a command error to the process exit code: 0 on success,
// 2 for configuration problems found before any data was read and 1 for
// everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var schemaErr *core.SchemaError
	var policyErr *core.PolicyError
	if errors.As(err, &schemaErr) || errors.As(err, &policyErr) {
		return 2
	}
	return 1
}
