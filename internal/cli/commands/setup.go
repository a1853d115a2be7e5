package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/cli/config"
	"github.com/leapstack-labs/leapdump/internal/cli/output"
	"github.com/leapstack-labs/leapdump/internal/extension"
	"github.com/leapstack-labs/leapdump/internal/policy"
	"github.com/leapstack-labs/leapdump/pkg/adapter"
	"github.com/leapstack-labs/leapdump/pkg/core"

	// Register the built-in sources.
	_ "github.com/leapstack-labs/leapdump/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapdump/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/leapdump/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapdump/pkg/adapters/sqlite"
)

// CommandContext holds the shared state a command runs with.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer

	policyDir string
}

// NewCommandContext reads the config, logger and renderer from the command's context.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	cc := &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(ctx),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
	if f := cmd.Flags().Lookup("policy"); f != nil && f.Value.String() != "" {
		if err := cc.usePolicyFile(f.Value.String()); err != nil {
			return nil, err
		}
	}
	return cc, nil
}

// usePolicyFile replaces the configured policy with a standalone document.
// Hook paths inside it are resolved against the file's directory.
func (c *CommandContext) usePolicyFile(path string) error {
	doc, err := policy.LoadFile(path)
	if err != nil {
		return err
	}
	c.Logger.Debug("using policy file", "path", path, "root", doc.Root.Table)
	c.Cfg.Policy = *doc
	c.policyDir = filepath.Dir(path)
	return nil
}

// Session is an open source with its loaded catalog.
type Session struct {
	Source  adapter.Source
	Catalog *catalog.Catalog
}

// Close releases the source connection.
func (s *Session) Close() error {
	return s.Source.Close()
}

// OpenSession connects to the configured source and loads the catalog from
// its live schema plus the configured fragments.
func (c *CommandContext) OpenSession(ctx context.Context) (*Session, error) {
	if err := c.Cfg.ValidateSource(); err != nil {
		return nil, err
	}

	src, err := adapter.NewAdapter(c.Cfg.Source.ToAdapterConfig(), c.Logger)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("connecting to source", "source", c.Cfg.Source.String())
	if err := src.Connect(ctx, c.Cfg.Source.ToAdapterConfig()); err != nil {
		return nil, core.NewDataAccessError("", "connect", err)
	}

	cat, err := c.loadCatalog(ctx, src)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return &Session{Source: src, Catalog: cat}, nil
}

func (c *CommandContext) loadCatalog(ctx context.Context, src adapter.Source) (*catalog.Catalog, error) {
	tables, err := src.Tables(ctx)
	if err != nil {
		return nil, core.NewDataAccessError("", "list tables", err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("source %s has no tables", c.Cfg.Source.String())
	}

	fragments, err := c.Cfg.Catalog.Resolve()
	if err != nil {
		return nil, err
	}
	return catalog.Load(tables, fragments, c.Logger)
}

// Hooks loads the policy's hook scripts into a registry. It returns nil when
// the policy declares none.
func (c *CommandContext) Hooks() (*extension.Registry, error) {
	if len(c.Cfg.Policy.Hooks) == 0 {
		return nil, nil
	}
	base := c.Cfg.ProjectRoot
	if c.policyDir != "" {
		base = c.policyDir
	}
	scripts, err := extension.LoadScripts(c.Cfg.Policy.Hooks, base, c.Logger)
	if err != nil {
		return nil, err
	}
	reg := extension.NewRegistry()
	for _, s := range scripts {
		s.Register(reg)
	}
	c.Logger.Debug("loaded hooks", "hooks", reg.Names())
	return reg, nil
}
