package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/contentaudit/internal/datalayer"
	"github.com/fulmenhq/contentaudit/pkg/config"
	"github.com/fulmenhq/contentaudit/pkg/exitcode"
	"github.com/fulmenhq/contentaudit/pkg/ignore"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"github.com/fulmenhq/contentaudit/pkg/schema"
	"github.com/spf13/cobra"
)

// workspace is an opened content tree: its config, schema and document store.
type workspace struct {
	cfg    *config.Config
	schema *schema.Schema
	db     *datalayer.Database
}

// loadConfig resolves configuration for cmd. flagKeys maps config keys to
// flags defined on cmd.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Config, error) {
	root, _ := cmd.Flags().GetString("root")
	cfgFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(config.LoadOptions{
		Root:       root,
		ConfigFile: cfgFile,
		Flags:      cmd.Flags(),
		FlagKeys:   flagKeys,
	})
	if err != nil {
		return nil, exitcode.New(exitcode.ConfigError, err)
	}
	if cfg.Source != "" {
		logger.Debug(fmt.Sprintf("Using config file %s", cfg.Source))
	}
	return cfg, nil
}

// openWorkspace loads the schema and opens the index. Unless clean is set,
// document writes are discarded by the bridge.
func openWorkspace(ctx context.Context, cfg *config.Config, clean bool) (*workspace, error) {
	s, err := schema.Load(cfg.Content.Schema)
	if err != nil {
		return nil, exitcode.New(exitcode.SchemaError, err)
	}

	matcher, err := ignore.NewMatcher(cfg.Content.Root)
	if err != nil {
		return nil, exitcode.New(exitcode.FileSystemError, err)
	}
	fsb, err := datalayer.NewFilesystemBridge(cfg.Content.Root, matcher)
	if err != nil {
		return nil, exitcode.New(exitcode.FileSystemError, err)
	}
	var bridge datalayer.Bridge = fsb
	if !clean {
		bridge = datalayer.NewAuditFilesystemBridge(fsb)
	}

	ix, err := datalayer.OpenIndex(ctx, cfg.Index.Path)
	if err != nil {
		return nil, exitcode.New(exitcode.IndexError, err)
	}
	return &workspace{
		cfg:    cfg,
		schema: s,
		db:     datalayer.NewDatabase(bridge, ix, s),
	}, nil
}

func (w *workspace) sync(ctx context.Context) (*datalayer.SyncStats, error) {
	stats, err := w.db.Sync(ctx)
	if err != nil {
		return nil, exitcode.New(exitcode.IndexError, err)
	}
	logger.Info(fmt.Sprintf("Indexed %d documents across %d collections (%d added, %d removed)",
		stats.Indexed, stats.Collections, stats.Added, stats.Removed))
	return stats, nil
}

func (w *workspace) Close() error {
	return w.db.Close()
}
