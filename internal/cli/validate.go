package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/triql/internal/parser"
	"github.com/roach88/triql/internal/queryir"
)

// ValidationResult holds the portability report of one query.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Portable bool           `json:"portable"`
	Table    string         `json:"table"`
	Includes []string       `json:"includes,omitempty"`
	Targets  []TargetReport `json:"targets"`
}

// TargetReport is the portability of a query on one target.
type TargetReport struct {
	Target   string   `json:"target"`
	Dialect  string   `json:"dialect,omitempty"`
	Portable bool     `json:"portable"`
	Warnings []string `json:"warnings"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <query>",
		Short: "Check a query and report its portability",
		Long: `Parse a DSL query without rendering it and report, for every target,
the features that would make its rows differ between backends.

Portability warnings do not fail the command; syntax and schema
errors do.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, query string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	settings, err := LoadSettings(opts)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	ctx := cmd.Context()
	b, err := settings.connect(ctx, false)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	defer b.Close(ctx)

	q, err := parser.Parse(ctx, query, settings.resolver(b))
	if err != nil {
		return formatter.QueryError(err)
	}

	result := validateQuery(q, string(settings.Dialect))
	for _, t := range result.Targets {
		formatter.VerboseLog("%s: %d warning(s)", t.Target, len(t.Warnings))
	}
	return outputValidateSuccess(formatter, result)
}

// validateQuery reports q's portability on every target.
func validateQuery(q *queryir.Query, dialect string) ValidationResult {
	result := ValidationResult{Valid: true, Portable: true, Table: q.Table}
	for _, inc := range q.Includes {
		result.Includes = append(result.Includes,
			fmt.Sprintf("%s %s.%s = %s.%s", inc.Kind, inc.ParentTable, inc.ParentKey, inc.ChildTable, inc.ChildKey))
	}

	for _, target := range []queryir.Target{queryir.TargetSQL, queryir.TargetPipeline, queryir.TargetMemory} {
		report := TargetReport{Target: string(target)}
		if target == queryir.TargetSQL {
			report.Dialect = dialect
		}
		v := queryir.Validate(q, target, report.Dialect)
		report.Portable = v.IsPortable
		report.Warnings = v.Warnings
		if !v.IsPortable {
			result.Portable = false
		}
		result.Targets = append(result.Targets, report)
	}
	return result
}

// outputValidateSuccess outputs the validation report.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	// Human-readable text output
	if result.Portable {
		fmt.Fprintf(formatter.Writer, "✓ Query on %s is valid and portable\n", result.Table)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "✓ Query on %s is valid\n\n", result.Table)
	for _, t := range result.Targets {
		if t.Portable {
			continue
		}
		fmt.Fprintf(formatter.Writer, "%s:\n", t.Target)
		for _, w := range t.Warnings {
			fmt.Fprintf(formatter.Writer, "  ⚠ %s\n", w)
		}
	}
	return nil
}
