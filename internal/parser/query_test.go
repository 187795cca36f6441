package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/schema"
)

func intPtr(n int) *int { return &n }

func testResolver() *schema.Static {
	return schema.NewStatic(
		schema.Relation{Table: "orders", Column: "user_id", References: "users", ReferencedColumn: "id"},
		schema.Relation{Table: "items", Column: "order_id", References: "orders", ReferencedColumn: "id"},
	)
}

func TestParse_FullQuery(t *testing.T) {
	q, err := Parse(context.Background(),
		"FROM(users) FETCH(id,name) FILTER(age > 18 AND status = 'A') ORDERBY(name DESC) TAKE(10)", nil)
	require.NoError(t, err)

	assert.Equal(t, &queryir.Query{
		Table:   "users",
		Columns: []queryir.Column{{Expression: "users.id"}, {Expression: "users.name"}},
		Filters: and(
			cond("users.age", queryir.Gt, "18"),
			&queryir.Condition{Column: "users.status", Operator: queryir.Eq, Value: "A", Quoted: true},
		),
		OrderBy: []queryir.OrderBy{{Column: "users.name", Descending: true}},
		Limit:   intPtr(10),
	}, q)
}

func TestParse_ClauseSpellings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, q *queryir.Query)
	}{
		{
			name:  "bare FROM defaults to star",
			input: "FROM users",
			check: func(t *testing.T, q *queryir.Query) {
				assert.Equal(t, "users", q.Table)
				assert.True(t, q.IsStar())
				assert.False(t, q.Distinct)
			},
		},
		{
			name:  "lowercase keywords",
			input: "from(users) fetch(id) take(1) skip(2)",
			check: func(t *testing.T, q *queryir.Query) {
				assert.Equal(t, []queryir.Column{{Expression: "users.id"}}, q.Columns)
				assert.Equal(t, intPtr(1), q.Limit)
				assert.Equal(t, intPtr(2), q.Offset)
			},
		},
		{
			name:  "FETCHD",
			input: "FROM(users) FETCHD(city)",
			check: func(t *testing.T, q *queryir.Query) {
				assert.True(t, q.Distinct)
				assert.Equal(t, []queryir.Column{{Expression: "users.city"}}, q.Columns)
			},
		},
		{
			name:  "FETCH DISTINCT",
			input: "FROM(users) FETCH DISTINCT(city)",
			check: func(t *testing.T, q *queryir.Query) {
				assert.True(t, q.Distinct)
			},
		},
		{
			name:  "LIMIT and OFFSET",
			input: "FROM(users) ORDER BY(id) LIMIT(5) OFFSET(0)",
			check: func(t *testing.T, q *queryir.Query) {
				assert.Equal(t, []queryir.OrderBy{{Column: "users.id"}}, q.OrderBy)
				assert.Equal(t, intPtr(5), q.Limit)
				assert.Equal(t, intPtr(0), q.Offset)
			},
		},
		{
			name:  "aliases and functions",
			input: "FROM(users) FETCH(name AS n, UPPER(city) AS c, COALESCE(nick, name))",
			check: func(t *testing.T, q *queryir.Query) {
				assert.Equal(t, []queryir.Column{
					{Expression: "users.name", Alias: "n"},
					{Expression: "UPPER(users.city)", Alias: "c"},
					{Expression: "COALESCE(users.nick, users.name)"},
				}, q.Columns)
			},
		},
		{
			name:  "deep qualifier keeps last two segments",
			input: "FROM(users) FETCH(db.users.id, orders.total)",
			check: func(t *testing.T, q *queryir.Query) {
				assert.Equal(t, []queryir.Column{{Expression: "users.id"}, {Expression: "orders.total"}}, q.Columns)
			},
		},
		{
			name:  "order by alias and ASC",
			input: "FROM(users) FETCH(name AS n) ORDERBY(n, id ASC)",
			check: func(t *testing.T, q *queryir.Query) {
				assert.Equal(t, []queryir.OrderBy{{Column: "n"}, {Column: "users.id"}}, q.OrderBy)
			},
		},
		{
			name:  "empty FETCH",
			input: "FROM(users) FETCH()",
			check: func(t *testing.T, q *queryir.Query) {
				assert.True(t, q.IsStar())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(context.Background(), tt.input, nil)
			require.NoError(t, err)
			tt.check(t, q)
		})
	}
}

func TestParse_GroupBy(t *testing.T) {
	q, err := Parse(context.Background(),
		"FROM(orders) FETCH(status, COUNT(*) AS n, SUM(total)) GROUPBY(status) HAVING(COUNT(*) > 1) ORDERBY(n DESC)", nil)
	require.NoError(t, err)

	assert.Equal(t, []queryir.Column{
		{Expression: "orders.status"},
		{Expression: "COUNT(*)", Alias: "n"},
		{Expression: "SUM(orders.total)"},
	}, q.Columns)
	assert.Equal(t, []string{"orders.status"}, q.GroupBy)
	assert.Equal(t, cond("COUNT(*)", queryir.Gt, "1"), q.Having)
	assert.Equal(t, []queryir.OrderBy{{Column: "n", Descending: true}}, q.OrderBy)
}

func TestParse_Includes(t *testing.T) {
	t.Run("multi-hop chain", func(t *testing.T) {
		q, err := Parse(context.Background(), "FROM(users) INCLUDE(orders.items INNER)", testResolver())
		require.NoError(t, err)
		assert.Equal(t, []queryir.Include{
			{ParentTable: "users", ParentKey: "id", ChildTable: "orders", ChildKey: "user_id", Kind: queryir.JoinInner},
			{ParentTable: "orders", ParentKey: "id", ChildTable: "items", ChildKey: "order_id", Kind: queryir.JoinInner},
		}, q.Includes)
	})

	t.Run("default kind is LEFT", func(t *testing.T) {
		q, err := Parse(context.Background(), "FROM(users) INCLUDE(orders)", testResolver())
		require.NoError(t, err)
		require.Len(t, q.Includes, 1)
		assert.Equal(t, queryir.JoinLeft, q.Includes[0].Kind)
	})

	t.Run("reverse direction swaps keys", func(t *testing.T) {
		q, err := Parse(context.Background(), "FROM(orders) INCLUDE(users RIGHT)", testResolver())
		require.NoError(t, err)
		assert.Equal(t, []queryir.Include{
			{ParentTable: "orders", ParentKey: "user_id", ChildTable: "users", ChildKey: "id", Kind: queryir.JoinRight},
		}, q.Includes)
	})

	t.Run("shared hops are emitted once", func(t *testing.T) {
		q, err := Parse(context.Background(), "FROM(users) INCLUDE(orders, orders.items)", testResolver())
		require.NoError(t, err)
		assert.Len(t, q.Includes, 2)
	})

	t.Run("unresolvable hop", func(t *testing.T) {
		_, err := Parse(context.Background(), "FROM(users) INCLUDE(items)", testResolver())
		require.Error(t, err)
		assert.True(t, queryir.IsSchemaResolutionError(err))

		var qe *queryir.Error
		require.True(t, errors.As(err, &qe))
		assert.Equal(t, []string{"users", "items"}, qe.Tables)
	})

	t.Run("nil resolver", func(t *testing.T) {
		_, err := Parse(context.Background(), "FROM(users) INCLUDE(orders)", nil)
		assert.True(t, queryir.IsSchemaResolutionError(err))
	})

	t.Run("resolver failure aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		q, err := Parse(ctx, "FROM(users) INCLUDE(orders)", testResolver())
		assert.Nil(t, q)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("bad join kind", func(t *testing.T) {
		_, err := Parse(context.Background(), "FROM(users) INCLUDE(orders SIDEWAYS)", testResolver())
		assert.True(t, queryir.IsSyntaxError(err))
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		is    func(error) bool
	}{
		{"unbalanced before clauses", "FROM(users) FILTER(a = 1", queryir.IsSyntaxError},
		{"unbalanced in later clause", "FROM(users FETCH(id)", queryir.IsSyntaxError},
		{"missing FROM", "FETCH(id)", queryir.IsSyntaxError},
		{"bad table", "FROM('users')", queryir.IsSyntaxError},
		{"duplicate clause", "FROM(users) FILTER(a = 1) FILTER(b = 2)", queryir.IsSyntaxError},
		{"duplicate spelling", "FROM(users) TAKE(1) LIMIT(2)", queryir.IsSyntaxError},
		{"negative take", "FROM(users) TAKE(-1)", queryir.IsSyntaxError},
		{"non-numeric skip", "FROM(users) SKIP(abc)", queryir.IsSyntaxError},
		{"misspelled clause", "FROM(users) FILTR(a = 1)", queryir.IsSyntaxError},
		{"star with columns", "FROM(users) FETCH(*, id)", queryir.IsSyntaxError},
		{"having without group", "FROM(users) HAVING(COUNT(*) > 1)", queryir.IsSyntaxError},
		{"ungrouped column", "FROM(users) FETCH(name, COUNT(*)) GROUPBY(city)", queryir.IsSyntaxError},
		{"star with group", "FROM(users) GROUPBY(city)", queryir.IsSyntaxError},
		{"aggregate in filter", "FROM(users) FILTER(COUNT(id) > 1)", queryir.IsUnsupported},
		{"aggregate without group", "FROM(users) FETCH(COUNT(*))", queryir.IsUnsupported},
		{"aggregate order without group", "FROM(users) ORDERBY(MAX(age))", queryir.IsUnsupported},
		{"aggregate in group", "FROM(users) FETCH(city) GROUPBY(city, COUNT(*))", queryir.IsUnsupported},
		{"arity", "FROM(users) FETCH(ROUND(a, 1, 2))", queryir.IsUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(context.Background(), tt.input, testResolver())
			require.Error(t, err)
			assert.Nil(t, q)
			assert.True(t, tt.is(err), "got %v", err)
		})
	}
}
