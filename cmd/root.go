/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/fulmenhq/contentaudit/pkg/buildinfo"
	"github.com/fulmenhq/contentaudit/pkg/exitcode"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"github.com/spf13/cobra"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contentaudit",
		Short: "Audit stored content against its collection schema",
		Long: `Contentaudit checks every document in a content tree against the collection
schema that describes it. Collection-level drift is reported as a warning;
documents that fail validation are reported as errors. With --clean, documents
are rewritten to conform to the schema after an explicit confirmation.

Examples:
   contentaudit audit                     # Audit the current directory
   contentaudit audit --verbose           # Log each document and print a summary
   contentaudit audit --clean --yes       # Repair documents without prompting
   contentaudit index sync                # Refresh the document index
   contentaudit schema validate           # Check the collection schema file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("config", "", "Config file (default: .contentaudit.yaml in the content root)")

	cmd.Version = buildinfo.Version()
	cmd.SetVersionTemplate("contentaudit {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
// This is called from init() for production and can be called explicitly in tests.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newAuditCommand())
	cmd.AddCommand(newIndexCommand())
	cmd.AddCommand(newSchemaCommand())
	cmd.AddCommand(newVersionCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}
	code := exitCodeFor(err)
	// A failed audit has already been reported.
	if code != exitcode.AuditFailed {
		logger.Error("Command execution failed", logger.Err(err))
		for _, hint := range errors.GetAllHints(err) {
			logger.Info("Hint: " + hint)
		}
	}
	logger.Flush()
	os.Exit(code)
}

func exitCodeFor(err error) int {
	var exitErr *exitcode.Error
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitcode.GeneralError
}

func init() {
	// Register all subcommands with the production rootCmd
	registerSubcommands(rootCmd)
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	// Parse log level
	var logLevel logger.Level
	switch strings.ToLower(logLevelStr) {
	case "trace":
		logLevel = logger.TraceLevel
	case "debug":
		logLevel = logger.DebugLevel
	case "info":
		logLevel = logger.InfoLevel
	case "warn":
		logLevel = logger.WarnLevel
	case "error":
		logLevel = logger.ErrorLevel
	default:
		logLevel = logger.InfoLevel
	}

	if noColor {
		color.NoColor = true
	}

	// Initialize logger
	config := logger.Config{
		Level:     logLevel,
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "contentaudit",
	}

	if err := logger.Initialize(config); err != nil {
		// Fallback to stderr
		if _, writeErr := os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n"); writeErr != nil {
			// Best effort: nothing else we can do here
			_ = writeErr
		}
		os.Exit(exitcode.ConfigError)
	}
}
