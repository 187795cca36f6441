package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/triql/internal/schema"
)

var _ schema.Resolver = (*SQL)(nil)

type foreignKey struct {
	ChildKey  string         `db:"child_key"`
	ParentKey sql.NullString `db:"parent_key"`
}

// ResolveForeignKey looks up a foreign key on child referencing parent.
// Table names match case-insensitively. A foreign key that omits the
// referenced column resolves to the parent's primary key.
func (s *SQL) ResolveForeignKey(ctx context.Context, parent, child string) (schema.KeyPair, bool, error) {
	var (
		fk    foreignKey
		query string
	)
	switch s.driver {
	case SQLiteDriver:
		query = `
			SELECT "from" AS child_key, "to" AS parent_key
			FROM pragma_foreign_key_list(?)
			WHERE lower("table") = lower(?)
			ORDER BY id, seq
			LIMIT 1`
	case DriverPostgres:
		query = `
			SELECT kcu.column_name AS child_key, ccu.column_name AS parent_key
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
				AND lower(tc.table_name) = lower($1)
				AND lower(ccu.table_name) = lower($2)
			ORDER BY tc.constraint_name, kcu.ordinal_position
			LIMIT 1`
	default:
		return schema.KeyPair{}, false, fmt.Errorf("foreign key introspection not supported for driver %q", s.driver)
	}

	err := s.db.GetContext(ctx, &fk, query, child, parent)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.KeyPair{}, false, nil
	}
	if err != nil {
		return schema.KeyPair{}, false, fmt.Errorf("introspect %s -> %s: %w", child, parent, err)
	}

	pair := schema.KeyPair{ParentKey: fk.ParentKey.String, ChildKey: fk.ChildKey}
	if !fk.ParentKey.Valid || fk.ParentKey.String == "" {
		pk, err := s.primaryKey(ctx, parent)
		if err != nil {
			return schema.KeyPair{}, false, err
		}
		pair.ParentKey = pk
	}
	return pair, true, nil
}

func (s *SQL) primaryKey(ctx context.Context, table string) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name,
		`SELECT name FROM pragma_table_info(?) WHERE pk = 1 LIMIT 1`, table)
	if err != nil {
		return "", fmt.Errorf("primary key of %s: %w", table, err)
	}
	return name, nil
}
