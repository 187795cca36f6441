package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/triql/internal/querymem"
)

// SQLiteDriver is the database/sql driver name for SQLite connections
// configured for triql.
const SQLiteDriver = "sqlite3_triql"

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

func init() {
	sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{ConnectHook: configureSQLite})
	sqlx.BindDriver(SQLiteDriver, sqlx.QUESTION)
}

// Rows is the result of a query. Records are keyed by column name and
// hold driver values with []byte converted to string.
type Rows struct {
	Columns []string
	Records []map[string]any
}

// SQL runs SQL text against a relational database.
type SQL struct {
	db     *sqlx.DB
	driver string
}

// Open connects to a relational database. driver is "sqlite3" or
// "postgres"; dsn is a file path (or ":memory:") for SQLite and a
// connection string for PostgreSQL.
//
// SQLite databases are limited to one connection, so an in-memory
// database stays the same database for the life of the SQL.
func Open(ctx context.Context, driver, dsn string) (*SQL, error) {
	name := driver
	switch driver {
	case DriverSQLite, SQLiteDriver:
		name = SQLiteDriver
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if name == SQLiteDriver {
		// SQLite only supports one writer at a time, and each connection
		// to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}
	return &SQL{db: db, driver: name}, nil
}

// Close closes the database connection.
func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Query runs a statement and collects every row.
func (s *SQL) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return Rows{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Rows{}, fmt.Errorf("read columns: %w", err)
	}

	result := Rows{Columns: cols, Records: []map[string]any{}}
	for rows.Next() {
		rec := make(map[string]any, len(cols))
		if err := rows.MapScan(rec); err != nil {
			return Rows{}, fmt.Errorf("scan row: %w", err)
		}
		for k, v := range rec {
			if b, ok := v.([]byte); ok {
				rec[k] = string(b)
			}
		}
		result.Records = append(result.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return Rows{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// configureSQLite applies per-connection settings and functions.
func configureSQLite(conn *sqlite3.SQLiteConn) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA case_sensitive_like = ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return registerFunctions(conn)
}

// registerFunctions installs the scalar functions the SQLite dialect
// relies on. None reads the clock, so all are registered as pure.
func registerFunctions(conn *sqlite3.SQLiteConn) error {
	unary := []string{"CEIL", "FLOOR", "SQRT", "EXP", "LOG10", "REVERSE"}
	for _, name := range unary {
		if err := conn.RegisterFunc(name, scalar(name), true); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	funcs := map[string]any{
		"LN": func(x any) (any, error) {
			return querymem.Call("LOG", []any{sqliteValue(x)}, time.Time{})
		},
		// LOG(b, x), base first.
		"LOG": func(b, x any) (any, error) {
			return querymem.Call("LOG", []any{sqliteValue(x), sqliteValue(b)}, time.Time{})
		},
		"POWER": func(x, y any) (any, error) {
			return querymem.Call("POWER", []any{sqliteValue(x), sqliteValue(y)}, time.Time{})
		},
		"DATENAME": func(part, d any) (any, error) {
			return querymem.Call("DATENAME", []any{strings.ToLower(fmt.Sprint(sqliteValue(part))), sqliteValue(d)}, time.Time{})
		},
	}
	for name, impl := range funcs {
		if err := conn.RegisterFunc(name, impl, true); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func scalar(name string) func(any) (any, error) {
	return func(x any) (any, error) {
		return querymem.Call(name, []any{sqliteValue(x)}, time.Time{})
	}
}

func sqliteValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
