package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Exec runs a statement that returns no rows, such as DDL.
func (s *SQL) Exec(ctx context.Context, stmt string) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// CreateTable creates table with one column per key found in rows. Column
// types are inferred from the first non-null value; anything else is TEXT.
func (s *SQL) CreateTable(ctx context.Context, table string, rows []map[string]any) error {
	cols := columnNames(rows)
	if len(cols) == 0 {
		return fmt.Errorf("create table %s: no columns", table)
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c + " " + s.columnType(rows, c)
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
	return s.Exec(ctx, stmt)
}

// Insert adds rows to table in one transaction. Keys missing from a row
// insert null.
func (s *SQL) Insert(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	cols := columnNames(rows)
	params := make([]string, len(cols))
	for i, c := range cols {
		params[i] = ":" + c
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(params, ", "))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert into %s: %w", table, err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		arg := make(map[string]any, len(cols))
		for _, c := range cols {
			arg[c] = r[c]
		}
		if _, err := tx.NamedExecContext(ctx, stmt, arg); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert into %s: %w", table, err)
	}
	return nil
}

func (s *SQL) columnType(rows []map[string]any, col string) string {
	for _, r := range rows {
		switch r[col].(type) {
		case nil:
			continue
		case int, int32, int64:
			return "INTEGER"
		case float32, float64:
			if s.driver == DriverPostgres {
				return "DOUBLE PRECISION"
			}
			return "REAL"
		case bool:
			return "BOOLEAN"
		}
		return "TEXT"
	}
	return "TEXT"
}

// columnNames is the sorted union of keys across rows.
func columnNames(rows []map[string]any) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}
