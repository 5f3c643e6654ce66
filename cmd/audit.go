package cmd

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/internal/audit"
	"github.com/fulmenhq/contentaudit/internal/prompt"
	"github.com/fulmenhq/contentaudit/internal/telemetry"
	"github.com/fulmenhq/contentaudit/pkg/exitcode"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// auditFlagKeys binds audit flags to their config keys.
var auditFlagKeys = map[string]string{
	"audit.verbose":            "verbose",
	"audit.use_default_values": "use-default-values",
	"telemetry.disabled":       "no-telemetry",
}

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit every collection against the schema",
		Long: `Audit walks each collection declared in the schema, checks that indexed
documents still belong to it, and validates every document's values.

The run ends with one of three results:
  passed                 no warnings and no errors
  passed with warnings   collection-level drift only
  failed                 at least one document failed validation (exit 3)

With --clean, valid documents are rewritten in their canonical form and
undeclared fields are dropped. Clean mode asks for confirmation first.`,
		Args: cobra.NoArgs,
		RunE: runAudit,
	}

	cmd.Flags().String("root", ".", "Content root directory")
	cmd.Flags().Bool("clean", false, "Rewrite documents to match the schema")
	cmd.Flags().Bool("use-default-values", false, "Fill missing top-level fields with schema defaults (requires --clean)")
	cmd.Flags().Bool("no-telemetry", false, "Do not submit a usage event")
	cmd.Flags().BoolP("verbose", "v", false, "Log each document checked and print a per-collection summary")
	cmd.Flags().BoolP("yes", "y", false, "Assume yes to the clean mode confirmation")
	cmd.Flags().Bool("no-reindex", false, "Use the existing index without syncing it first")
	cmd.Flags().SetNormalizeFunc(normalizeAuditFlags)

	return cmd
}

// normalizeAuditFlags accepts the camelCase spellings of multi-word flags.
func normalizeAuditFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "useDefaultValues":
		name = "use-default-values"
	case "noTelemetry":
		name = "no-telemetry"
	}
	return pflag.NormalizedName(name)
}

func runAudit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	clean, _ := cmd.Flags().GetBool("clean")
	assumeYes, _ := cmd.Flags().GetBool("yes")
	noReindex, _ := cmd.Flags().GetBool("no-reindex")
	noColor, _ := cmd.Flags().GetBool("no-color")

	cfg, err := loadConfig(cmd, auditFlagKeys)
	if err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, cfg, clean)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			logger.Warn("Failed to close index", logger.Err(cerr))
		}
	}()

	if cfg.Index.Reindex && !noReindex {
		if _, err := ws.sync(ctx); err != nil {
			return err
		}
	}

	gate := prompt.NewTerminalGate(cmd.InOrStdin(), cmd.ErrOrStderr(), assumeYes)
	tel := telemetry.NewClient(cfg.Telemetry.Endpoint, !cfg.TelemetryEnabled(), cfg.Telemetry.Timeout)
	pipeline := audit.NewPipeline(gate, tel)

	opts := audit.Options{
		Clean:            clean,
		UseDefaultValues: cfg.Audit.UseDefaultValues,
		NoTelemetry:      !cfg.TelemetryEnabled(),
		Verbose:          cfg.Audit.Verbose,
	}
	logger.Debug(fmt.Sprintf("Auditing %s", cfg.Content.Root),
		logger.Bool("clean", opts.Clean),
		logger.Bool("use_default_values", opts.UseDefaultValues))

	rc := audit.NewRunContext(ws.db, cfg.Content.Root, opts.Verbose)
	rc, err = pipeline.Run(ctx, rc, opts)
	if errors.Is(err, audit.ErrDeclined) {
		logger.Info("Audit not complete")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "audit")
	}

	reporter := audit.NewReporter(cmd.OutOrStdout(), noColor)
	if opts.Verbose {
		if err := reporter.Summary(rc); err != nil {
			logger.Warn("Failed to render summary", logger.Err(err))
		}
	}
	if n := len(rc.Faults); n > 0 {
		names := make([]string, 0, n)
		for _, f := range rc.Faults {
			names = append(names, f.Collection)
		}
		logger.Warn(fmt.Sprintf("%d collection(s) could not be audited: %s", n, strings.Join(names, ", ")))
	}

	outcome := audit.Report(rc)
	reporter.Emit(outcome)
	if outcome == audit.Failed {
		return exitcode.New(outcome.ExitCode(), errors.New(outcome.Message()))
	}
	return nil
}
