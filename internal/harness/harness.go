package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/triql/internal/engine"
	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/querymem"
	"github.com/roach88/triql/internal/querysql"
	"github.com/roach88/triql/internal/schema"
	"github.com/roach88/triql/internal/store"
	"github.com/roach88/triql/internal/testutil"
)

// Harness runs scenarios against one SQL database and the interpreter.
type Harness struct {
	db      *store.SQL
	dialect querysql.Dialect
	clock   querymem.Clock
	logger  *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithDatabase runs SQL against db in dialect instead of a fresh
// in-memory SQLite per scenario. Tables a scenario creates are dropped
// when it finishes.
func WithDatabase(db *store.SQL, dialect querysql.Dialect) Option {
	return func(h *Harness) {
		h.db = db
		h.dialect = dialect
	}
}

// WithClock fixes the interpreter's clock.
func WithClock(c querymem.Clock) Option {
	return func(h *Harness) {
		h.clock = c
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		dialect: querysql.SQLite,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs by default
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Open a fresh in-memory database (unless one was supplied)
//  2. Create the fixture tables and load their rows
//  3. Run each query on SQL and the interpreter
//  4. Compare the results with each other and with the expectations
//
// A non-nil error means the scenario could not run at all; query
// mismatches are reported in the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	db := h.db
	if db == nil {
		st, err := store.Open(ctx, store.DriverSQLite, ":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
		db = st
	} else {
		if err := h.dropTables(ctx, db, scenario); err != nil {
			return nil, err
		}
		defer func() {
			if err := h.dropTables(context.WithoutCancel(ctx), db, scenario); err != nil {
				h.logger.Warn("dropping fixture tables failed", "scenario", scenario.Name, "error", err)
			}
		}()
	}

	if err := load(ctx, db, scenario); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	var resolver schema.Resolver = db
	if len(scenario.Relations) > 0 {
		resolver = schema.NewStatic(scenario.Relations...)
	}

	interpOpts := []querymem.Option{}
	if h.clock != nil {
		interpOpts = append(interpOpts, querymem.WithClock(h.clock))
	}
	eng := engine.New(
		engine.WithResolver(resolver),
		engine.WithDialect(h.dialect),
		engine.WithSQLExecutor(db),
		engine.WithInterpreter(querymem.New(interpOpts...)),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator(scenario.Name)),
		engine.WithMaxRows(0),
		engine.WithLogger(h.logger),
	)

	result := NewResult(scenario.Name)
	for _, qc := range scenario.Queries {
		qr := h.runQuery(ctx, eng, scenario, qc)
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if qr.Pass {
			h.logger.Debug("query passed", "scenario", scenario.Name, "query", qc.Name)
		} else {
			h.logger.Info("query failed", "scenario", scenario.Name, "query", qc.Name, "errors", len(qr.Errors))
		}
		result.Add(qr)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"queries", len(result.Queries),
	)
	return result, nil
}

// outcome is one target's run of a query.
type outcome struct {
	ran  bool
	keys []string
}

func (h *Harness) runQuery(ctx context.Context, eng *engine.Engine, s *Scenario, qc QueryCase) QueryResult {
	qr := QueryResult{Name: qc.Name, Query: qc.Query, Pass: true}

	var sqlOut, memOut outcome
	if qc.RunsOn(TargetSQL) {
		resp, err := eng.Execute(ctx, engine.Request{Query: qc.Query, Target: queryir.TargetSQL})
		qr.SQL = resp.SQL
		sqlOut = h.record(&qr, qc, TargetSQL, resp, err)
		qr.SQLRows = sqlOut.keys
	}
	if qc.RunsOn(TargetMemory) {
		resp, err := h.executeMemory(ctx, eng, s, qc)
		memOut = h.record(&qr, qc, TargetMemory, resp, err)
		qr.MemoryRows = memOut.keys
	}

	if sqlOut.ran && memOut.ran {
		if err := assertSameRows(AssertSameRows, TargetSQL, TargetMemory, sqlOut.keys, memOut.keys); err != nil {
			qr.fail(err.Error())
		}
	}
	return qr
}

// executeMemory compiles the query to find its root table, then runs it
// over that table's fixture rows.
func (h *Harness) executeMemory(ctx context.Context, eng *engine.Engine, s *Scenario, qc QueryCase) (engine.Response, error) {
	compiled, err := eng.Compile(ctx, engine.Request{Query: qc.Query, Target: queryir.TargetMemory})
	if err != nil {
		return compiled, err
	}
	rows, ok := fixtureRows(s, compiled.Query.Table)
	if !ok {
		return compiled, fmt.Errorf("no fixture table %q", compiled.Query.Table)
	}
	return eng.Execute(ctx, engine.Request{Query: qc.Query, Target: queryir.TargetMemory, Rows: rows})
}

// record checks one target's outcome against the expectations.
func (h *Harness) record(qr *QueryResult, qc QueryCase, target string, resp engine.Response, err error) outcome {
	want := qc.Expect

	if err != nil {
		code := string(queryir.CodeOf(err))
		if want != nil && want.Error != "" {
			qr.ErrorCode = code
			if aerr := assertErrorCode(want.Error, code); aerr != nil {
				qr.fail(fmt.Sprintf("%s: %v", target, aerr))
			}
			return outcome{}
		}
		qr.fail(fmt.Sprintf("%s: %v", target, err))
		return outcome{}
	}
	if want != nil && want.Error != "" {
		qr.fail(fmt.Sprintf("%s: %v", target, assertErrorCode(want.Error, "")))
		return outcome{}
	}

	keys := RecordKeys(resp.Rows)
	if want != nil && want.Rows != nil {
		if aerr := assertSameRows(AssertExpectedRows, "expected", target, ExpectedKeys(want.Rows), keys); aerr != nil {
			qr.fail(aerr.Error())
		}
	}
	if want != nil && want.Count != nil {
		if aerr := assertCount(*want.Count, len(keys)); aerr != nil {
			qr.fail(fmt.Sprintf("%s: %v", target, aerr))
		}
	}
	return outcome{ran: true, keys: keys}
}

// fixtureRows returns the named table's rows with every row carrying
// every column, matching what the SQL table holds.
func fixtureRows(s *Scenario, table string) ([]querymem.Row, bool) {
	for _, t := range s.Tables {
		if !strings.EqualFold(t.Name, table) {
			continue
		}
		cols := make(map[string]bool)
		for _, r := range t.Rows {
			for k := range r {
				cols[k] = true
			}
		}
		rows := make([]querymem.Row, len(t.Rows))
		for i, r := range t.Rows {
			row := make(querymem.Row, len(cols))
			for c := range cols {
				row[c] = r[c]
			}
			rows[i] = row
		}
		return rows, true
	}
	return nil, false
}

// load creates the fixture tables and inserts their rows.
func load(ctx context.Context, db *store.SQL, s *Scenario) error {
	for _, stmt := range s.Schema {
		if err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	for _, t := range s.Tables {
		if len(s.Schema) == 0 {
			if err := db.CreateTable(ctx, t.Name, t.Rows); err != nil {
				return err
			}
		}
		if err := db.Insert(ctx, t.Name, t.Rows); err != nil {
			return err
		}
	}
	return nil
}

// dropTables removes a scenario's tables from a shared database, children
// first.
func (h *Harness) dropTables(ctx context.Context, db *store.SQL, s *Scenario) error {
	suffix := ""
	if h.dialect == querysql.Postgres {
		suffix = " CASCADE"
	}
	for i := len(s.Tables) - 1; i >= 0; i-- {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s%s", s.Tables[i].Name, suffix)
		if err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
