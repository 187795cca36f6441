package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/querymem"
	"github.com/roach88/triql/internal/querypipe"
	"github.com/roach88/triql/internal/querysql"
	"github.com/roach88/triql/internal/schema"
	"github.com/roach88/triql/internal/store"
	"github.com/roach88/triql/internal/testutil"
)

// stubDocuments records the pipeline it was asked to run.
type stubDocuments struct {
	got  querypipe.Pipeline
	docs []map[string]any
	err  error
}

func (s *stubDocuments) Aggregate(ctx context.Context, p querypipe.Pipeline) ([]map[string]any, error) {
	s.got = p
	return s.docs, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestEngine(opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithIDGenerator(testutil.NewSequentialIDGenerator("req")),
		WithLogger(quietLogger()),
	}
	return New(append(base, opts...)...)
}

func setupSQLite(t *testing.T) *store.SQL {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`))
	require.NoError(t, s.Exec(ctx, `CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id), total REAL)`))
	require.NoError(t, s.Insert(ctx, "users", []map[string]any{
		{"id": 1, "name": "ada", "age": 36},
		{"id": 2, "name": "bob", "age": 25},
		{"id": 3, "name": "cy", "age": 41},
	}))
	require.NoError(t, s.Insert(ctx, "orders", []map[string]any{
		{"id": 10, "user_id": 1, "total": 9.5},
		{"id": 11, "user_id": 3, "total": 20.0},
	}))
	return s
}

func TestEngine_New_Defaults(t *testing.T) {
	e := New()

	assert.Equal(t, querysql.Postgres, e.Dialect())
	assert.IsType(t, UUIDv7Generator{}, e.ids)
	assert.Equal(t, DefaultMaxRows, e.quota.Limit())
	assert.NotNil(t, e.logger)
}

func TestEngine_Compile_SQL(t *testing.T) {
	e := newTestEngine()

	resp, err := e.Compile(context.Background(), Request{
		Query: "FROM(users) FETCH(name) FILTER(age > 30)",
	})
	require.NoError(t, err)

	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, int64(1), resp.Seq)
	assert.Equal(t, queryir.TargetSQL, resp.Target)
	assert.Equal(t, querysql.Postgres, resp.Dialect)
	assert.Equal(t, "SELECT users.name FROM users WHERE users.age > 30", resp.SQL)
	assert.Nil(t, resp.Pipeline)
	assert.Empty(t, resp.Warnings)
	require.NotNil(t, resp.Query)
	assert.Equal(t, "users", resp.Query.Table)
}

func TestEngine_Compile_DialectOverride(t *testing.T) {
	e := newTestEngine(WithDialect(querysql.MySQL))

	resp, err := e.Compile(context.Background(), Request{Query: "FROM(users) TAKE(3)"})
	require.NoError(t, err)
	assert.Equal(t, querysql.MySQL, resp.Dialect)

	resp, err = e.Compile(context.Background(), Request{Query: "FROM(users) TAKE(3)", Dialect: querysql.SQLite})
	require.NoError(t, err)
	assert.Equal(t, querysql.SQLite, resp.Dialect)
	assert.Equal(t, int64(2), resp.Seq)
}

func TestEngine_Compile_PaginationWarning(t *testing.T) {
	e := newTestEngine(WithDialect(querysql.SQLServer))

	resp, err := e.Compile(context.Background(), Request{Query: "FROM(users) TAKE(5)"})
	require.NoError(t, err)
	assert.NotContains(t, resp.SQL, "FETCH NEXT")
	assert.NotEmpty(t, resp.Warnings)
}

func TestEngine_Compile_StrictPagination(t *testing.T) {
	e := newTestEngine(WithDialect(querysql.Oracle), WithStrictPagination(true))

	_, err := e.Compile(context.Background(), Request{Query: "FROM(users) TAKE(5)"})
	require.Error(t, err)
	assert.True(t, queryir.IsRenderError(err))
}

func TestEngine_Compile_Pipeline(t *testing.T) {
	e := newTestEngine()

	resp, err := e.Compile(context.Background(), Request{
		Query:  "FROM(users) FETCH(name) FILTER(age > 30)",
		Target: queryir.TargetPipeline,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Pipeline)
	assert.Equal(t, "users", resp.Pipeline.Collection)
	assert.Empty(t, resp.SQL)
	assert.Empty(t, resp.Dialect)
	assert.Equal(t, []string{"name"}, resp.Pipeline.OutputFields())
}

func TestEngine_Compile_MemoryTargetAlias(t *testing.T) {
	e := newTestEngine()

	resp, err := e.Compile(context.Background(), Request{Query: "FROM(users)", Target: "in-memory"})
	require.NoError(t, err)
	assert.Equal(t, queryir.TargetMemory, resp.Target)
}

func TestEngine_Compile_Errors(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	tests := []struct {
		name  string
		req   Request
		check func(error) bool
	}{
		{
			name:  "syntax",
			req:   Request{Query: "FROM(users) FILTER(age > 1"},
			check: queryir.IsSyntaxError,
		},
		{
			name:  "unresolvable include",
			req:   Request{Query: "FROM(users) INCLUDE(orders)"},
			check: queryir.IsSchemaResolutionError,
		},
		{
			name:  "include in memory",
			req:   Request{Query: "FROM(users) INCLUDE(orders)", Target: queryir.TargetMemory},
			check: queryir.IsSchemaResolutionError,
		},
		{
			name:  "unknown target",
			req:   Request{Query: "FROM(users)", Target: "graph"},
			check: func(err error) bool { return strings.Contains(err.Error(), "unknown target") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Compile(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestEngine_Compile_IncludeWithResolver(t *testing.T) {
	resolver := schema.NewStatic(schema.Relation{
		Table: "orders", Column: "user_id", References: "users", ReferencedColumn: "id",
	})
	e := newTestEngine(WithResolver(resolver))
	ctx := context.Background()

	resp, err := e.Compile(ctx, Request{Query: "FROM(users) INCLUDE(orders)"})
	require.NoError(t, err)
	assert.Contains(t, resp.SQL, "JOIN orders ON users.id = orders.user_id")

	_, err = e.Compile(ctx, Request{Query: "FROM(users) INCLUDE(orders)", Target: queryir.TargetMemory})
	require.Error(t, err)
	assert.True(t, queryir.IsUnsupported(err))
}

func TestEngine_Execute_SQL(t *testing.T) {
	db := setupSQLite(t)
	e := newTestEngine(WithSQLExecutor(db), WithDialect(querysql.SQLite))

	resp, err := e.Execute(context.Background(), Request{
		Query: "FROM(users) FETCH(name) FILTER(age > 30) ORDERBY(name)",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, resp.Columns)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "ada", resp.Rows[0]["name"])
	assert.Equal(t, "cy", resp.Rows[1]["name"])
}

func TestEngine_Execute_SQLIncludeIntrospected(t *testing.T) {
	db := setupSQLite(t)
	e := newTestEngine(WithSQLExecutor(db), WithResolver(db), WithDialect(querysql.SQLite))

	resp, err := e.Execute(context.Background(), Request{
		Query: "FROM(users) INCLUDE(orders INNER) FETCH(users.name, orders.total) ORDERBY(orders.total)",
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "ada", resp.Rows[0]["name"])
	assert.Equal(t, 9.5, resp.Rows[0]["total"])
}

func TestEngine_Execute_SQLFailure(t *testing.T) {
	db := setupSQLite(t)
	e := newTestEngine(WithSQLExecutor(db), WithDialect(querysql.SQLite))

	_, err := e.Execute(context.Background(), Request{Query: "FROM(missing_table)"})
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "req-1", re.RequestID)
	assert.Error(t, errors.Unwrap(re))
}

func TestEngine_Execute_NoExecutor(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Execute(ctx, Request{Query: "FROM(users)"})
	assert.True(t, IsNoExecutorError(err))

	_, err = e.Execute(ctx, Request{Query: "FROM(users)", Target: queryir.TargetPipeline})
	assert.True(t, IsNoExecutorError(err))
}

func TestEngine_Execute_Pipeline(t *testing.T) {
	docs := &stubDocuments{docs: []map[string]any{{"name": "ada"}}}
	e := newTestEngine(WithDocumentExecutor(docs))

	resp, err := e.Execute(context.Background(), Request{
		Query:  "FROM(users) FETCH(name) FILTER(age > 30)",
		Target: queryir.TargetPipeline,
	})
	require.NoError(t, err)
	assert.Equal(t, "users", docs.got.Collection)
	assert.NotEmpty(t, docs.got.Stages)
	assert.Equal(t, []string{"name"}, resp.Columns)
	assert.Equal(t, docs.docs, resp.Rows)
}

func TestEngine_Execute_PipelineFailure(t *testing.T) {
	docs := &stubDocuments{err: errors.New("connection refused")}
	e := newTestEngine(WithDocumentExecutor(docs))

	_, err := e.Execute(context.Background(), Request{Query: "FROM(users)", Target: queryir.TargetPipeline})
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEngine_Execute_Memory(t *testing.T) {
	e := newTestEngine()

	resp, err := e.Execute(context.Background(), Request{
		Query:  "FROM(users) FETCH(name, age) FILTER(age >= 30) ORDERBY(age DESC)",
		Target: queryir.TargetMemory,
		Rows: []querymem.Row{
			{"name": "ada", "age": int64(36)},
			{"name": "bob", "age": int64(25)},
			{"name": "cy", "age": int64(41)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, resp.Columns)
	assert.Equal(t, []map[string]any{
		{"name": "cy", "age": int64(41)},
		{"name": "ada", "age": int64(36)},
	}, resp.Rows)
}

func TestEngine_Execute_MemoryClock(t *testing.T) {
	clock := testutil.NewFixedClock(time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC))
	e := newTestEngine(WithInterpreter(querymem.New(querymem.WithClock(clock))))

	resp, err := e.Execute(context.Background(), Request{
		Query:  "FROM(users) FETCH(YEAR(NOW()) AS y)",
		Target: queryir.TargetMemory,
		Rows:   []querymem.Row{{"name": "ada"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, int64(2024), resp.Rows[0]["y"])
}

func TestEngine_Execute_MemoryAggregateWithoutGroup(t *testing.T) {
	e := newTestEngine()

	_, err := e.Execute(context.Background(), Request{
		Query:  "FROM(users) FETCH(COUNT(*))",
		Target: queryir.TargetMemory,
		Rows:   []querymem.Row{{"name": "ada"}},
	})
	require.Error(t, err)
	assert.True(t, queryir.IsUnsupported(err))
	assert.False(t, IsExecutionError(err))
}

func TestEngine_Execute_RowQuota(t *testing.T) {
	e := newTestEngine(WithMaxRows(2))

	_, err := e.Execute(context.Background(), Request{
		Query:  "FROM(users)",
		Target: queryir.TargetMemory,
		Rows:   []querymem.Row{{"id": 1}, {"id": 2}, {"id": 3}},
	})
	require.Error(t, err)
	assert.True(t, IsRowLimitError(err))
}

func TestEngine_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := New(WithIDGenerator(NewFixedGenerator("req-log", "req-fail")), WithLogger(logger))
	ctx := context.Background()

	_, err := e.Compile(ctx, Request{Query: "FROM(users)"})
	require.NoError(t, err)
	_, err = e.Compile(ctx, Request{Query: "FROM(users) FILTER(age >"})
	require.Error(t, err)

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 4)

	assert.Equal(t, "compile started", records[0]["msg"])
	assert.Equal(t, "compile finished", records[1]["msg"])
	assert.Equal(t, "req-log", records[1]["request_id"])
	assert.Equal(t, "sql", records[1]["target"])
	assert.Equal(t, "postgres", records[1]["dialect"])
	assert.Contains(t, records[1], "elapsed")

	assert.Equal(t, "compile failed", records[3]["msg"])
	assert.Equal(t, "req-fail", records[3]["request_id"])
	assert.Equal(t, "ERROR", records[3]["level"])
}
