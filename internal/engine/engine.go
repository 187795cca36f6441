package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/triql/internal/parser"
	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/querymem"
	"github.com/roach88/triql/internal/querypipe"
	"github.com/roach88/triql/internal/querysql"
	"github.com/roach88/triql/internal/schema"
	"github.com/roach88/triql/internal/store"
)

// IDGenerator generates unique request IDs for log correlation.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// SQLExecutor runs compiled SQL. Implemented by *store.SQL.
type SQLExecutor interface {
	Query(ctx context.Context, query string) (store.Rows, error)
}

// DocumentExecutor runs compiled pipelines. Implemented by *store.Documents.
type DocumentExecutor interface {
	Aggregate(ctx context.Context, p querypipe.Pipeline) ([]map[string]any, error)
}

var (
	_ SQLExecutor      = (*store.SQL)(nil)
	_ DocumentExecutor = (*store.Documents)(nil)
)

// Request is one compile or execute call.
type Request struct {
	// Query is the DSL text.
	Query string

	// Target selects the renderer. Empty means TargetSQL.
	Target queryir.Target

	// Dialect overrides the engine's dialect for TargetSQL.
	Dialect querysql.Dialect

	// Rows are the input records for TargetMemory.
	Rows []querymem.Row
}

// Response is the outcome of a request.
type Response struct {
	RequestID string
	Seq       int64
	Target    queryir.Target

	// Dialect is set for TargetSQL.
	Dialect querysql.Dialect

	// Query is the parsed model.
	Query *queryir.Query

	// SQL is set for TargetSQL.
	SQL string

	// Pipeline is set for TargetPipeline.
	Pipeline *querypipe.Pipeline

	// Columns and Rows are set by Execute. Columns is nil when the
	// executor does not report an order (FETCH(*) in memory).
	Columns []string
	Rows    []map[string]any

	// Warnings lists portability notes and render warnings. A response
	// with warnings is still a success.
	Warnings []string
}

// Engine compiles DSL requests and optionally executes them.
//
// Thread-safety: all fields are fixed after New; Compile and Execute are
// safe from any goroutine.
type Engine struct {
	resolver schema.Resolver
	dialect  querysql.Dialect
	sqlOpts  querysql.Options
	sqlExec  SQLExecutor
	docExec  DocumentExecutor
	interp   *querymem.Interpreter
	ids      IDGenerator
	seq      *Sequence
	quota    RowQuota
	logger   *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithResolver sets the schema lookup used for INCLUDE hops.
func WithResolver(r schema.Resolver) EngineOption {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithDialect sets the default SQL dialect.
//
// Default: querysql.Postgres
func WithDialect(d querysql.Dialect) EngineOption {
	return func(e *Engine) {
		e.dialect = d
	}
}

// WithStrictPagination makes pagination that cannot be rendered a compile
// error instead of a warning.
func WithStrictPagination(strict bool) EngineOption {
	return func(e *Engine) {
		e.sqlOpts.StrictPagination = strict
	}
}

// WithSQLExecutor sets the executor for TargetSQL.
func WithSQLExecutor(x SQLExecutor) EngineOption {
	return func(e *Engine) {
		e.sqlExec = x
	}
}

// WithDocumentExecutor sets the executor for TargetPipeline.
func WithDocumentExecutor(x DocumentExecutor) EngineOption {
	return func(e *Engine) {
		e.docExec = x
	}
}

// WithInterpreter replaces the interpreter used for TargetMemory, e.g.
// one built with querymem.WithClock.
func WithInterpreter(in *querymem.Interpreter) EngineOption {
	return func(e *Engine) {
		e.interp = in
	}
}

// WithIDGenerator sets the request ID source.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithMaxRows sets the row quota for Execute.
//
// Default: 100000 rows (DefaultMaxRows). Zero disables the check.
func WithMaxRows(n int) EngineOption {
	return func(e *Engine) {
		e.quota = NewRowQuota(n)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine. Without options it compiles PostgreSQL SQL,
// resolves no INCLUDE hops and executes only TargetMemory.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		dialect: querysql.Postgres,
		interp:  querymem.New(),
		ids:     UUIDv7Generator{},
		seq:     &Sequence{},
		quota:   NewRowQuota(DefaultMaxRows),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Dialect returns the default SQL dialect.
func (e *Engine) Dialect() querysql.Dialect {
	return e.dialect
}

// Handled returns the number of requests the engine has stamped,
// including failed ones.
func (e *Engine) Handled() int64 {
	return e.seq.Handled()
}

// Compile parses req.Query and renders it for req.Target. TargetMemory
// has no artifact; Compile only parses and validates.
func (e *Engine) Compile(ctx context.Context, req Request) (Response, error) {
	resp, err := e.start(req)
	if err != nil {
		return resp, err
	}
	started := time.Now()
	log := e.logger.With(
		"request_id", resp.RequestID,
		"seq", resp.Seq,
		"target", resp.Target,
		"dialect", resp.Dialect,
	)
	log.Debug("compile started")

	if err := e.compile(ctx, req.Query, &resp); err != nil {
		log.Error("compile failed", "error", err, "elapsed", time.Since(started))
		return resp, err
	}
	log.Info("compile finished",
		"warnings", len(resp.Warnings),
		"elapsed", time.Since(started),
	)
	return resp, nil
}

// Execute compiles req and runs the artifact: SQL through the SQL
// executor, pipelines through the document executor, TargetMemory
// through the interpreter over req.Rows.
func (e *Engine) Execute(ctx context.Context, req Request) (Response, error) {
	resp, err := e.Compile(ctx, req)
	if err != nil {
		return resp, err
	}
	started := time.Now()
	log := e.logger.With("request_id", resp.RequestID, "target", resp.Target)

	if err := e.execute(ctx, &resp, req.Rows); err != nil {
		log.Error("execute failed", "error", err, "elapsed", time.Since(started))
		return resp, err
	}
	if err := e.quota.Check(resp.RequestID, len(resp.Rows)); err != nil {
		log.Error("row quota exceeded", "rows", len(resp.Rows), "max_rows", e.quota.Limit())
		return resp, err
	}
	log.Info("execute finished", "rows", len(resp.Rows), "elapsed", time.Since(started))
	return resp, nil
}

// start stamps a new response with its identity and resolved target.
func (e *Engine) start(req Request) (Response, error) {
	resp := Response{
		RequestID: e.ids.Generate(),
		Seq:       e.seq.Next(),
		Target:    queryir.TargetSQL,
	}
	if req.Target != "" {
		target, err := queryir.ParseTarget(string(req.Target))
		if err != nil {
			return resp, err
		}
		resp.Target = target
	}
	if resp.Target == queryir.TargetSQL {
		resp.Dialect = req.Dialect
		if resp.Dialect == "" {
			resp.Dialect = e.dialect
		}
	}
	return resp, nil
}

func (e *Engine) compile(ctx context.Context, text string, resp *Response) error {
	q, err := parser.Parse(ctx, text, e.resolver)
	if err != nil {
		return err
	}
	resp.Query = q

	v := queryir.Validate(q, resp.Target, string(resp.Dialect))
	resp.Warnings = append(resp.Warnings, v.Warnings...)

	switch resp.Target {
	case queryir.TargetSQL:
		res, err := querysql.NewSQLCompiler(resp.Dialect, e.sqlOpts).Compile(q)
		if err != nil {
			return err
		}
		resp.SQL = res.SQL
		for _, w := range res.Warnings {
			resp.Warnings = append(resp.Warnings, w.Error())
		}
	case queryir.TargetPipeline:
		p, err := querypipe.Compile(q)
		if err != nil {
			return err
		}
		resp.Pipeline = &p
	case queryir.TargetMemory:
		if len(q.Includes) > 0 {
			return queryir.NewUnsupportedOperatorError("INCLUDE", querymem.Target)
		}
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, resp *Response, rows []querymem.Row) error {
	switch resp.Target {
	case queryir.TargetSQL:
		if e.sqlExec == nil {
			return NewNoExecutorError(resp.RequestID, resp.Target)
		}
		res, err := e.sqlExec.Query(ctx, resp.SQL)
		if err != nil {
			return NewExecutionError(resp.RequestID, resp.Target, err)
		}
		resp.Columns = res.Columns
		resp.Rows = res.Records
	case queryir.TargetPipeline:
		if e.docExec == nil {
			return NewNoExecutorError(resp.RequestID, resp.Target)
		}
		docs, err := e.docExec.Aggregate(ctx, *resp.Pipeline)
		if err != nil {
			return NewExecutionError(resp.RequestID, resp.Target, err)
		}
		resp.Columns = resp.Pipeline.OutputFields()
		resp.Rows = docs
	case queryir.TargetMemory:
		res, err := e.interp.Evaluate(ctx, resp.Query, rows)
		if err != nil {
			var qe *queryir.Error
			if errors.As(err, &qe) {
				return err
			}
			return NewExecutionError(resp.RequestID, resp.Target, err)
		}
		resp.Columns = res.Columns
		resp.Rows = make([]map[string]any, len(res.Rows))
		for i, r := range res.Rows {
			resp.Rows[i] = r
		}
	default:
		return fmt.Errorf("unknown target %q", resp.Target)
	}
	return nil
}
