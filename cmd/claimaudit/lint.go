package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/cli"
	"mercator-hq/claimaudit/pkg/engine"
)

var lintFlags struct {
	file    string
	builtin bool
	strict  bool
	format  string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate a rule catalog",
	Long: `Validate a rule catalog without auditing any records.

The lint command loads the catalog and reports:
  - YAML syntax errors
  - Structural errors (missing fields, unknown shapes, duplicate keys)
  - Semantic errors (unknown code groups, bad patterns)
  - Rules that fail to compile into evaluators
  - Warnings for rules that load but behave unexpectedly

Examples:
  # Lint a catalog file
  claimaudit lint --file rules.yaml

  # Lint the embedded catalog
  claimaudit lint --builtin

  # Strict mode (warnings as errors)
  claimaudit lint --file rules.yaml --strict

  # JSON output for CI/CD
  claimaudit lint --file rules.yaml --format json`,
	RunE: lintCatalog,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.file, "file", "f", "", "catalog file to validate")
	lintCmd.Flags().BoolVar(&lintFlags.builtin, "builtin", false, "validate the embedded catalog")
	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

// ValidationResult is the lint result for one catalog.
type ValidationResult struct {
	Source   string            `json:"source"`
	Version  string            `json:"version,omitempty"`
	Rules    int               `json:"rules"`
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// ValidationError is a single lint error or warning.
type ValidationError struct {
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Rule       string `json:"rule,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Severity   string `json:"severity"`
	Type       string `json:"type,omitempty"`
}

func lintCatalog(cmd *cobra.Command, args []string) error {
	if lintFlags.file == "" && !lintFlags.builtin {
		return cli.NewConfigError("", "either --file or --builtin must be specified")
	}
	if lintFlags.file != "" && lintFlags.builtin {
		return cli.NewConfigError("", "--file and --builtin are mutually exclusive")
	}
	format, err := cli.ParseOutputFormat(lintFlags.format)
	if err != nil || format == cli.FormatCSV {
		return cli.NewConfigError("--format", fmt.Sprintf("invalid format %q: must be text or json", lintFlags.format))
	}

	var result ValidationResult
	if lintFlags.builtin {
		result = validateCatalog(catalog.Builtin())
		result.Source = catalog.BuiltinSource
	} else {
		result = validateCatalog(catalog.LoadFile(lintFlags.file))
		result.Source = lintFlags.file
	}

	if format == cli.FormatJSON {
		if err := cli.NewFormatter(cli.FormatJSON).FormatTo(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		writeLintText(cmd.OutOrStdout(), result, lintFlags.strict)
	}

	if len(result.Errors) > 0 || (lintFlags.strict && len(result.Warnings) > 0) {
		return cli.NewCommandError("lint", fmt.Errorf("validation failed"))
	}
	return nil
}

func validateCatalog(cat *catalog.Catalog, err error) ValidationResult {
	result := ValidationResult{Valid: true}
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, catalogErrors(err)...)
		return result
	}

	result.Version = cat.Version
	result.Rules = cat.Len()

	if reg, err := engine.NewRegistry(cat); err != nil {
		result.Valid = false
		if reg == nil {
			result.Errors = append(result.Errors, ValidationError{Message: err.Error(), Severity: "error"})
		} else {
			for _, rej := range reg.Rejected() {
				ve := ValidationError{
					Rule:     rej.RuleKey,
					Message:  fmt.Sprintf("rule does not compile: %v", rej.Cause),
					Severity: "error",
					Type:     "compile",
				}
				if r, ok := cat.Get(rej.RuleKey); ok {
					ve.Line, ve.Column = r.Location.Line, r.Location.Column
				}
				result.Errors = append(result.Errors, ve)
			}
		}
	}

	for _, w := range catalog.Lint(cat) {
		ve := fromCatalogError(w)
		ve.Severity = "warning"
		result.Warnings = append(result.Warnings, ve)
	}
	return result
}

func catalogErrors(err error) []ValidationError {
	var list *catalog.ErrorList
	if errors.As(err, &list) {
		out := make([]ValidationError, 0, len(list.Errors))
		for _, e := range list.Errors {
			out = append(out, fromCatalogError(e))
		}
		return out
	}
	var single *catalog.Error
	if errors.As(err, &single) {
		return []ValidationError{fromCatalogError(single)}
	}
	return []ValidationError{{Message: err.Error(), Severity: "error"}}
}

func fromCatalogError(e *catalog.Error) ValidationError {
	return ValidationError{
		Line:       e.Location.Line,
		Column:     e.Location.Column,
		Rule:       e.RuleKey,
		Message:    e.Message,
		Suggestion: e.Suggestion,
		Severity:   "error",
		Type:       string(e.Type),
	}
}

func writeLintText(w io.Writer, result ValidationResult, strict bool) {
	fmt.Fprintf(w, "Validating %s...\n", result.Source)

	if len(result.Errors) == 0 {
		fmt.Fprintf(w, "✓ Catalog %s loaded (%d rules)\n", result.Version, result.Rules)
		fmt.Fprintln(w, "✓ All rules compile")
	}

	for _, e := range result.Errors {
		fmt.Fprintf(w, "✗ Error: %s\n", describe(e))
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  Warning: %s\n", describe(warn))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  %d error(s), %d warning(s)\n", len(result.Errors), len(result.Warnings))
	if strict && len(result.Warnings) > 0 {
		fmt.Fprintln(w, "  Strict mode enabled: treating warnings as errors")
	}
}

func describe(e ValidationError) string {
	s := e.Message
	if e.Rule != "" {
		s = fmt.Sprintf("rule %q: %s", e.Rule, s)
	}
	if e.Line > 0 {
		s += fmt.Sprintf(" (line %d", e.Line)
		if e.Column > 0 {
			s += fmt.Sprintf(", col %d", e.Column)
		}
		s += ")"
	}
	if e.Type != "" {
		s += fmt.Sprintf(" [%s]", e.Type)
	}
	if e.Suggestion != "" {
		s += "\n    suggestion: " + e.Suggestion
	}
	return s
}
