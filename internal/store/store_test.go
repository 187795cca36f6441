package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		pragma string
		want   int64
	}{
		{"foreign_keys", 1},
		{"busy_timeout", 5000},
	}
	for _, tc := range tests {
		t.Run(tc.pragma, func(t *testing.T) {
			rows, err := s.Query(ctx, "PRAGMA "+tc.pragma)
			require.NoError(t, err)
			require.Len(t, rows.Records, 1)
			for _, v := range rows.Records[0] {
				assert.Equal(t, tc.want, v)
			}
		})
	}
}

func TestQuery_CaseSensitiveLike(t *testing.T) {
	s := createTestStore(t)
	rows, err := s.Query(context.Background(), "SELECT 'abc' LIKE 'A%' AS folded, 'abc' LIKE 'a%' AS exact")
	require.NoError(t, err)
	require.Len(t, rows.Records, 1)
	assert.Equal(t, int64(0), rows.Records[0]["folded"])
	assert.Equal(t, int64(1), rows.Records[0]["exact"])
}

func TestQuery_RegisteredFunctions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		expr string
		want any
	}{
		{"CEIL(1.2)", 2.0},
		{"FLOOR(1.8)", 1.0},
		{"SQRT(16)", 4.0},
		{"POWER(2, 3)", 8.0},
		{"LOG(10, 1000)", 3.0},
		{"LN(1)", 0.0},
		{"LOG10(100)", 2.0},
		{"REVERSE('abc')", "cba"},
		{"REVERSE(NULL)", nil},
		{"DATENAME('month', '2024-01-15')", "January"},
		{"DATENAME('weekday', '2024-01-15')", "Monday"},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			rows, err := s.Query(ctx, "SELECT "+tc.expr+" AS v")
			require.NoError(t, err)
			require.Len(t, rows.Records, 1)
			if f, ok := tc.want.(float64); ok {
				assert.InDelta(t, f, rows.Records[0]["v"], 1e-9)
				return
			}
			assert.Equal(t, tc.want, rows.Records[0]["v"])
		})
	}
}

func TestLoad_CreateInsertQuery(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rows := []map[string]any{
		{"id": 1, "name": "Alice", "score": 9.5},
		{"id": 2, "name": "Bob"},
	}
	require.NoError(t, s.CreateTable(ctx, "people", rows))
	require.NoError(t, s.Insert(ctx, "people", rows))

	got, err := s.Query(ctx, "SELECT id, name, score FROM people ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "score"}, got.Columns)
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "name": "Alice", "score": 9.5},
		{"id": int64(2), "name": "Bob", "score": nil},
	}, got.Records)
}

func TestLoad_EmptyRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	assert.Error(t, s.CreateTable(ctx, "empty", nil))
	assert.NoError(t, s.Insert(ctx, "empty", nil))
}

func TestQuery_EmptyResultIsNotNil(t *testing.T) {
	s := createTestStore(t)
	createSchema(t, s)
	rows, err := s.Query(context.Background(), "SELECT * FROM users")
	require.NoError(t, err)
	assert.NotNil(t, rows.Records)
	assert.Empty(t, rows.Records)
}

func TestQuery_SyntaxError(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Query(context.Background(), "SELEC 1")
	assert.Error(t, err)
}
