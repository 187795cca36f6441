package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/triql/internal/engine"
	"github.com/roach88/triql/internal/querypipe"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the compiled artifact of one query.
type CompilationResult struct {
	Target   string          `json:"target"`
	Dialect  string          `json:"dialect,omitempty"`
	SQL      string          `json:"sql,omitempty"`
	Pipeline json.RawMessage `json:"pipeline,omitempty"`
	Warnings []string        `json:"warnings"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query>",
		Short: "Compile a query to SQL or an aggregation pipeline",
		Long: `Compile a DSL query for the selected target.

The sql target prints a SELECT statement in the selected dialect. The
pipeline target prints the aggregation pipeline as extended JSON. The
memory target has no artifact; compile only checks the query.

Examples:
  triql compile "FROM(users) FETCH(name) FILTER(age > 30)"
  triql compile --dialect sqlserver "FROM(users) TAKE(10)"
  triql compile --target pipeline "FROM(orders) FETCH(status, SUM(total)) GROUPBY(status)"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, query string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	settings, err := LoadSettings(opts.RootOptions)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	ctx := cmd.Context()
	b, err := settings.connect(ctx, false)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	defer b.Close(ctx)

	eng := settings.newEngine(b, opts.newLogger(formatter.GetErrWriter()))
	formatter.VerboseLog("Compiling for %s", settings.Target)

	resp, err := eng.Compile(ctx, engine.Request{Query: query, Target: settings.Target})
	if err != nil {
		return formatter.QueryError(err)
	}

	result, err := newCompilationResult(resp)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error())
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(result.artifact()+"\n"), 0644); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, resp.RequestID, opts.Output)
}

func newCompilationResult(resp engine.Response) (*CompilationResult, error) {
	result := &CompilationResult{
		Target:   string(resp.Target),
		Dialect:  string(resp.Dialect),
		SQL:      resp.SQL,
		Warnings: resp.Warnings,
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	if resp.Pipeline != nil {
		raw, err := pipelineJSON(*resp.Pipeline)
		if err != nil {
			return nil, err
		}
		result.Pipeline = raw
	}
	return result, nil
}

// pipelineJSON renders a pipeline as an extended JSON aggregate command.
func pipelineJSON(p querypipe.Pipeline) (json.RawMessage, error) {
	data, err := p.MarshalExtJSON()
	if err != nil {
		return nil, fmt.Errorf("marshaling pipeline: %w", err)
	}
	return json.RawMessage(data), nil
}

// artifact is the text written by --output and printed in text mode.
func (r *CompilationResult) artifact() string {
	if r.Pipeline != nil {
		return string(r.Pipeline)
	}
	return r.SQL
}

// outputCompileSuccess outputs the compiled artifact.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, requestID, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.SuccessWithID(result, requestID)
	}

	// Human-readable text output
	if art := result.artifact(); art != "" {
		fmt.Fprintln(formatter.Writer, art)
	} else {
		fmt.Fprintf(formatter.Writer, "✓ Query is valid for %s\n", result.Target)
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, "Warnings:")
		fmt.Fprintf(formatter.Writer, "  %s\n", strings.Join(result.Warnings, "\n  "))
	}
	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote %s to %s\n", result.Target, outputFile)
	}
	return nil
}

// outputCompileError outputs a non-query compile failure.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}
