package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/triql/internal/config"
	"github.com/roach88/triql/internal/engine"
	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/querymem"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // SQL DSN
	Driver   string // sqlite3 | postgres
	MongoURI string
	MongoDB  string
	RowsFile string // YAML or JSON records for the memory target

	// IDGenerator allows overriding the request ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// RunResult is the output of a query execution.
type RunResult struct {
	Target   string           `json:"target"`
	SQL      string           `json:"sql,omitempty"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Warnings []string         `json:"warnings,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Compile a query and execute it",
		Long: `Compile a DSL query and run it against the target's backend.

The sql target runs against --db (or the config's sql block). The
pipeline target runs against --mongo (or the config's documents block).
The memory target evaluates the records in --rows.

Example:
  triql run --db ./shop.db --dialect sqlite "FROM(users) FETCH(name) FILTER(age > 30)"
  triql run --target memory --rows users.yaml "FROM(users) ORDERBY(age DESC) TAKE(3)"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQL database DSN (file path for sqlite3)")
	cmd.Flags().StringVar(&opts.Driver, "driver", "sqlite3", "SQL driver (sqlite3|postgres)")
	cmd.Flags().StringVar(&opts.MongoURI, "mongo", "", "document database URI")
	cmd.Flags().StringVar(&opts.MongoDB, "database", "", "document database name")
	cmd.Flags().StringVar(&opts.RowsFile, "rows", "", "YAML or JSON file of records for the memory target")

	return cmd
}

func runQuery(opts *RunOptions, query string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := opts.newLogger(formatter.GetErrWriter())

	settings, err := LoadSettings(opts.RootOptions)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if opts.Database != "" {
		settings.Config.SQL = &config.SQLConfig{Driver: opts.Driver, DSN: opts.Database}
	}
	if opts.MongoURI != "" {
		settings.Config.Documents = &config.DocumentsConfig{URI: opts.MongoURI, Database: opts.MongoDB}
	}

	var rows []querymem.Row
	if settings.Target == queryir.TargetMemory {
		if opts.RowsFile == "" {
			_ = formatter.Error(ErrCodeFlag, "--rows is required for the memory target", nil)
			return NewExitError(ExitCommandError, "--rows is required for the memory target")
		}
		rows, err = loadRows(opts.RowsFile)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load rows", err)
		}
		logger.Debug("rows loaded", "path", opts.RowsFile, "count", len(rows))
	}

	// Setup signal handling for graceful cancellation
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := settings.connect(ctx, true)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	defer func() {
		if closeErr := b.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	var extra []engine.EngineOption
	if opts.IDGenerator != nil {
		extra = append(extra, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng := settings.newEngine(b, logger, extra...)

	resp, err := eng.Execute(ctx, engine.Request{Query: query, Target: settings.Target, Rows: rows})
	if err != nil {
		return formatter.QueryError(err)
	}

	result := RunResult{
		Target:   string(resp.Target),
		SQL:      resp.SQL,
		Columns:  resultColumns(resp),
		Rows:     resp.Rows,
		Warnings: resp.Warnings,
	}
	if result.Rows == nil {
		result.Rows = []map[string]any{}
	}

	if formatter.Format == "json" {
		return formatter.SuccessWithID(result, resp.RequestID)
	}
	return outputRunText(formatter, result)
}

// loadRows reads a YAML (or JSON) list of records.
func loadRows(path string) ([]querymem.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows file: %w", err)
	}
	var records []map[string]any
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse rows file: %w", err)
	}
	rows := make([]querymem.Row, len(records))
	for i, r := range records {
		rows[i] = querymem.Row(r)
	}
	return rows, nil
}

// resultColumns returns the response's column order, falling back to the
// sorted keys of the first row.
func resultColumns(resp engine.Response) []string {
	if len(resp.Columns) > 0 {
		return resp.Columns
	}
	if len(resp.Rows) == 0 {
		return []string{}
	}
	cols := make([]string, 0, len(resp.Rows[0]))
	for k := range resp.Rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// outputRunText prints rows as an aligned table.
func outputRunText(formatter *OutputFormatter, result RunResult) error {
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	for i, c := range result.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
	for _, row := range result.Rows {
		for i, c := range result.Columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, displayValue(row[c]))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(formatter.Writer, "(%d row(s))\n", len(result.Rows))
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s\n", w)
	}
	return nil
}

func displayValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return cast.ToString(v)
}
