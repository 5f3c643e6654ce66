package cmd

import (
	"fmt"

	"github.com/fulmenhq/contentaudit/internal/datalayer"
	"github.com/fulmenhq/contentaudit/pkg/exitcode"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"github.com/spf13/cobra"
)

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the document index",
		Long: `The document index records which stored documents belong to which collection.
Audit refreshes it automatically unless --no-reindex is given.`,
	}
	cmd.PersistentFlags().String("root", ".", "Content root directory")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan the content tree and refresh the index",
		Args:  cobra.NoArgs,
		RunE:  runIndexSync,
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending index migrations",
		Args:  cobra.NoArgs,
		RunE:  runIndexMigrate,
	}
	cmd.AddCommand(syncCmd, migrateCmd)
	return cmd
}

func runIndexSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	stats, err := ws.sync(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Collections: %d\n", stats.Collections)
	fmt.Fprintf(out, "Documents:   %d\n", stats.Indexed)
	fmt.Fprintf(out, "Added:       %d\n", stats.Added)
	fmt.Fprintf(out, "Removed:     %d\n", stats.Removed)
	return nil
}

func runIndexMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	// OpenIndex migrates on open; the second pass reports the version.
	ix, err := datalayer.OpenIndex(ctx, cfg.Index.Path)
	if err != nil {
		return exitcode.New(exitcode.IndexError, err)
	}
	defer func() { _ = ix.Close() }()

	version, err := ix.Migrate()
	if err != nil {
		return exitcode.New(exitcode.IndexError, err)
	}
	logger.Debug(fmt.Sprintf("Index at %s", cfg.Index.Path))
	fmt.Fprintf(cmd.OutOrStdout(), "Index schema version %d\n", version)
	return nil
}
