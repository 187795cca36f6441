package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh in-memory SQLite database.
func createTestStore(t *testing.T) *SQL {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createSchema creates users and orders with orders.user_id -> users.id.
func createSchema(t *testing.T, s *SQL) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`))
	require.NoError(t, s.Exec(ctx, `CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		user_id INTEGER REFERENCES users(id),
		total REAL
	)`))
}
