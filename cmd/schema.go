package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fulmenhq/contentaudit/pkg/exitcode"
	"github.com/fulmenhq/contentaudit/pkg/schema"
	"github.com/spf13/cobra"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the collection schema",
	}
	cmd.PersistentFlags().String("root", ".", "Content root directory")

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a collection schema file",
		Long: `Validate parses the collection schema and checks it against the schema
definition format. Without an argument the configured schema file is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSchemaValidate,
	}
	showCmd := &cobra.Command{
		Use:   "show <collection>",
		Short: "Print the JSON Schema documents are validated against",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchemaShow,
	}
	showCmd.Flags().String("template", "", "Template name for templated collections")
	cmd.AddCommand(validateCmd, showCmd)
	return cmd
}

func schemaPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return "", err
	}
	return cfg.Content.Schema, nil
}

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	path, err := schemaPath(cmd, args)
	if err != nil {
		return err
	}
	s, err := schema.Load(path)
	if err != nil {
		return exitcode.New(exitcode.SchemaError, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ %s is valid\n", path)
	for _, c := range s.GetCollections() {
		shape := fmt.Sprintf("%d fields", len(c.Fields))
		if c.HasTemplates() {
			shape = "templates: " + strings.Join(c.TemplateNames(), ", ")
		}
		fmt.Fprintf(out, "  %s (%s, %s) %s\n", c.Name, c.Path, c.Format, shape)
	}
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	path, err := schemaPath(cmd, nil)
	if err != nil {
		return err
	}
	s, err := schema.Load(path)
	if err != nil {
		return exitcode.New(exitcode.SchemaError, err)
	}
	c, err := s.GetCollection(args[0])
	if err != nil {
		return exitcode.New(exitcode.SchemaError, err)
	}
	template, _ := cmd.Flags().GetString("template")
	doc, err := c.JSONSchema(template)
	if err != nil {
		return exitcode.New(exitcode.SchemaError, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
