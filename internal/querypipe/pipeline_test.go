package querypipe

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/triql/internal/parser"
	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/schema"
)

func mustParse(t *testing.T, dsl string) *queryir.Query {
	t.Helper()
	resolver := schema.NewStatic(
		schema.Relation{Table: "orders", Column: "user_id", References: "users", ReferencedColumn: "id"},
	)
	q, err := parser.Parse(context.Background(), dsl, resolver)
	require.NoError(t, err)
	return q
}

func compile(t *testing.T, dsl string) Pipeline {
	t.Helper()
	p, err := Compile(mustParse(t, dsl))
	require.NoError(t, err)
	return p
}

func d(key string, value any) bson.D {
	return bson.D{{Key: key, Value: value}}
}

func exprMatch(v any) bson.D {
	return d("$match", d("$expr", v))
}

func TestCompile_Basic(t *testing.T) {
	p := compile(t, "FROM(users) FETCH(id, name) FILTER(age > 18 AND status = 'A') ORDERBY(name DESC) TAKE(10) SKIP(5)")

	assert.Equal(t, "users", p.Collection)
	assert.Equal(t, []bson.D{
		exprMatch(d("$and", bson.A{
			d("$gt", bson.A{"$age", int64(18)}),
			d("$eq", bson.A{"$status", "A"}),
		})),
		d("$project", bson.D{{Key: "_id", Value: int64(0)}, {Key: "id", Value: int64(1)}, {Key: "name", Value: int64(1)}}),
		d("$sort", d("name", int64(-1))),
		d("$skip", int64(5)),
		d("$limit", int64(10)),
	}, p.Stages)
}

func TestCompile_Star(t *testing.T) {
	p := compile(t, "FROM(users)")
	assert.Equal(t, []bson.D{d("$project", d("_id", int64(0)))}, p.Stages)
}

func TestCompile_Grouped(t *testing.T) {
	p := compile(t, "FROM(orders) FETCH(status, COUNT(*) AS n) GROUPBY(status) HAVING(COUNT(*) > 1) ORDERBY(n DESC)")

	assert.Equal(t, []bson.D{
		d("$group", bson.D{
			{Key: "_id", Value: d("status", "$status")},
			{Key: "n", Value: d("$sum", int64(1))},
		}),
		d("$addFields", d("status", "$_id.status")),
		exprMatch(d("$gt", bson.A{"$n", int64(1)})),
		d("$project", bson.D{{Key: "_id", Value: int64(0)}, {Key: "status", Value: int64(1)}, {Key: "n", Value: int64(1)}}),
		d("$sort", d("n", int64(-1))),
	}, p.Stages)
}

func TestCompile_CountColumnSkipsNulls(t *testing.T) {
	p := compile(t, "FROM(orders) FETCH(status, COUNT(total) AS n) GROUPBY(status)")

	group := p.Stages[0]
	require.Equal(t, "$group", group[0].Key)
	acc := group[0].Value.(bson.D)[1]
	assert.Equal(t, "n", acc.Key)
	assert.Equal(t, d("$sum", d("$cond", bson.A{
		d("$eq", bson.A{d("$ifNull", bson.A{"$total", nil}), nil}), int64(0), int64(1),
	})), acc.Value)
}

func TestCompile_Include(t *testing.T) {
	p := compile(t, "FROM(users) FETCH(users.name, orders.total) INCLUDE(orders INNER) FILTER(orders.total >= 100)")

	assert.Equal(t, []bson.D{
		d("$lookup", bson.D{
			{Key: "from", Value: "orders"},
			{Key: "localField", Value: "id"},
			{Key: "foreignField", Value: "user_id"},
			{Key: "as", Value: "orders"},
		}),
		d("$unwind", "$orders"),
		exprMatch(d("$gte", bson.A{"$orders.total", int64(100)})),
		d("$project", bson.D{{Key: "_id", Value: int64(0)}, {Key: "name", Value: int64(1)}, {Key: "total", Value: "$orders.total"}}),
	}, p.Stages)
}

func TestCompile_LeftIncludePreservesUnmatched(t *testing.T) {
	p := compile(t, "FROM(users) INCLUDE(orders)")
	assert.Equal(t, d("$unwind", bson.D{
		{Key: "path", Value: "$orders"},
		{Key: "preserveNullAndEmptyArrays", Value: true},
	}), p.Stages[1])
}

func TestCompile_UnsupportedJoin(t *testing.T) {
	q := &queryir.Query{
		Table: "users",
		Includes: []queryir.Include{
			{ParentTable: "users", ParentKey: "id", ChildTable: "orders", ChildKey: "user_id", Kind: queryir.JoinRight},
		},
	}
	_, err := Compile(q)
	require.Error(t, err)
	assert.True(t, queryir.IsUnsupported(err))
}

func TestCompile_HoistsFunctions(t *testing.T) {
	p := compile(t, "FROM(users) FETCH(UPPER(name) AS n, LENGTH(name)) FILTER(LENGTH(name) > 3)")

	assert.Equal(t, []bson.D{
		d("$addFields", bson.D{
			{Key: "__n", Value: d("$toUpper", "$name")},
			{Key: "__LENGTH_1", Value: d("$cond", bson.A{
				d("$eq", bson.A{d("$ifNull", bson.A{"$name", nil}), nil}),
				nil,
				d("$strLenCP", "$name"),
			})},
		}),
		exprMatch(d("$gt", bson.A{"$__LENGTH_1", int64(3)})),
		d("$project", bson.D{{Key: "_id", Value: int64(0)}, {Key: "n", Value: "$__n"}, {Key: "LENGTH_1", Value: "$__LENGTH_1"}}),
	}, p.Stages)
}

func TestCompile_SortBeforeProjectOnHiddenColumn(t *testing.T) {
	p := compile(t, "FROM(users) FETCH(name) ORDERBY(age) TAKE(3)")

	assert.Equal(t, []bson.D{
		d("$sort", d("age", int64(1))),
		d("$limit", int64(3)),
		d("$project", bson.D{{Key: "_id", Value: int64(0)}, {Key: "name", Value: int64(1)}}),
	}, p.Stages)
}

func TestCompile_DistinctSortOutsideFetch(t *testing.T) {
	_, err := Compile(mustParse(t, "FROM(users) FETCH DISTINCT(name) ORDERBY(age)"))
	require.Error(t, err)
	assert.True(t, queryir.IsRenderError(err))
}

func TestCompile_Distinct(t *testing.T) {
	p := compile(t, "FROM(users) FETCH DISTINCT(name) ORDERBY(name)")

	assert.Equal(t, []bson.D{
		d("$project", bson.D{{Key: "_id", Value: int64(0)}, {Key: "name", Value: int64(1)}}),
		d("$group", d("_id", "$$ROOT")),
		d("$replaceRoot", d("newRoot", "$_id")),
		d("$sort", d("name", int64(1))),
	}, p.Stages)
}

func TestCompile_TakeZero(t *testing.T) {
	p := compile(t, "FROM(users) TAKE(0)")
	assert.Equal(t, exprMatch(false), p.Stages[len(p.Stages)-1])
}

func TestCompile_AggregateWithoutGroupBy(t *testing.T) {
	q := &queryir.Query{Table: "users", Columns: []queryir.Column{{Expression: "COUNT(*)"}}}
	_, err := Compile(q)
	require.Error(t, err)
	assert.True(t, queryir.IsUnsupported(err))
}

func TestCompile_Conditions(t *testing.T) {
	notNull := func(then bson.D) bson.D {
		return d("$and", bson.A{
			d("$not", bson.A{d("$eq", bson.A{d("$ifNull", bson.A{"$name", nil}), nil})}),
			then,
		})
	}
	text := d("$ifNull", bson.A{d("$toString", "$name"), ""})
	tests := []struct {
		name   string
		filter string
		want   any
	}{
		{"is null", "name IS NULL", d("$eq", bson.A{d("$ifNull", bson.A{"$name", nil}), nil})},
		{"eq null", "name = NULL", d("$eq", bson.A{d("$ifNull", bson.A{"$name", nil}), nil})},
		{"neq guarded", "name != 'x'", notNull(d("$ne", bson.A{"$name", "x"}))},
		{"in", "name IN ('a', 'b')", d("$in", bson.A{"$name", bson.A{"a", "b"}})},
		{"not in", "name NOT IN ('a')", notNull(d("$not", bson.A{d("$in", bson.A{"$name", bson.A{"a"}})}))},
		{"between", "name BETWEEN 1 AND 5", d("$and", bson.A{
			d("$gte", bson.A{"$name", int64(1)}),
			d("$lte", bson.A{"$name", int64(5)}),
		})},
		{"like", "name LIKE 'a%_.'", notNull(d("$regexMatch", bson.D{
			{Key: "input", Value: text},
			{Key: "regex", Value: `^a.*.\.$`},
			{Key: "options", Value: "s"},
		}))},
		{"ilike", "name ILIKE 'a%'", notNull(d("$regexMatch", bson.D{
			{Key: "input", Value: text},
			{Key: "regex", Value: `^a.*$`},
			{Key: "options", Value: "is"},
		}))},
		{"icontains", "name ICONTAINS 'a+b'", notNull(d("$regexMatch", bson.D{
			{Key: "input", Value: text},
			{Key: "regex", Value: `a\+b`},
			{Key: "options", Value: "i"},
		}))},
		{"not beginswith", "name NOT BEGINSWITH 'x'", notNull(d("$not", bson.A{d("$regexMatch", bson.D{
			{Key: "input", Value: text},
			{Key: "regex", Value: "^x"},
		})}))},
		{"quoted number", "name = '42'", d("$eq", bson.A{"$name", int64(42)})},
		{"quoted decimal", "name > '9.5'", d("$gt", bson.A{"$name", 9.5})},
		{"quoted in list", "name IN ('7', 'x')", d("$in", bson.A{"$name", bson.A{int64(7), "x"}})},
		{"quoted bool stays string", "name = 'true'", d("$eq", bson.A{"$name", "true"})},
		{"unquoted bool", "name = true", d("$eq", bson.A{"$name", true})},
		{"dollar string", "name = '$x'", d("$eq", bson.A{"$name", d("$literal", "$x")})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := compile(t, "FROM(users) FETCH(name) FILTER("+tc.filter+")")
			assert.Equal(t, exprMatch(tc.want), p.Stages[0])
		})
	}
}

func TestCompile_FlattensLogicalChains(t *testing.T) {
	p := compile(t, "FROM(users) FILTER(a = 1 OR b = 2 OR c = 3 AND e = 4)")

	assert.Equal(t, exprMatch(d("$or", bson.A{
		d("$eq", bson.A{"$a", int64(1)}),
		d("$eq", bson.A{"$b", int64(2)}),
		d("$and", bson.A{
			d("$eq", bson.A{"$c", int64(3)}),
			d("$eq", bson.A{"$e", int64(4)}),
		}),
	})), p.Stages[0])
}

func TestCompile_Functions(t *testing.T) {
	half := d("$cond", bson.A{d("$gte", bson.A{"$$x", int64(0)}), 0.5, -0.5})
	tests := []struct {
		fn   string
		want any
	}{
		{"ROUND(price)", d("$let", bson.D{
			{Key: "vars", Value: d("x", "$price")},
			{Key: "in", Value: d("$trunc", d("$add", bson.A{"$$x", half}))},
		})},
		{"ROUND(price, 2)", d("$let", bson.D{
			{Key: "vars", Value: d("x", "$price")},
			{Key: "in", Value: d("$divide", bson.A{
				d("$trunc", d("$add", bson.A{d("$multiply", bson.A{"$$x", 100.0}), half})),
				100.0,
			})},
		})},
		{"LOG(price, 2)", d("$log", bson.A{"$price", int64(2)})},
		{"LOG(price)", d("$ln", "$price")},
		{"SUBSTRING(name, 2, 3)", d("$substrCP", bson.A{"$name", int64(1), int64(3)})},
		{"CONCAT(first, last)", d("$concat", bson.A{
			d("$ifNull", bson.A{d("$toString", "$first"), ""}),
			d("$ifNull", bson.A{d("$toString", "$last"), ""}),
		})},
		{"CONCAT(first, ' ', last)", d("$concat", bson.A{
			d("$ifNull", bson.A{d("$toString", "$first"), ""}),
			" ",
			d("$ifNull", bson.A{d("$toString", "$last"), ""}),
		})},
		{"COALESCE(nick, name)", d("$ifNull", bson.A{"$nick", "$name"})},
		{"TRIM(name)", d("$trim", d("input", "$name"))},
		{"INDEXOF(email, '@')", d("$indexOfCP", bson.A{"$email", "@"})},
		{"YEAR(created)", d("$year", d("$toDate", "$created"))},
		{"DATEADD(day, 3, created)", d("$dateAdd", bson.D{
			{Key: "startDate", Value: d("$toDate", "$created")},
			{Key: "unit", Value: "day"},
			{Key: "amount", Value: int64(3)},
		})},
		{"DATEDIFF(hour, created, updated)", d("$trunc", d("$divide", bson.A{
			d("$subtract", bson.A{d("$toDate", "$updated"), d("$toDate", "$created")}),
			int64(3600000),
		}))},
		{"DATENAME(month, created)", d("$arrayElemAt", bson.A{monthNames, d("$month", d("$toDate", "$created"))})},
	}
	for _, tc := range tests {
		t.Run(tc.fn, func(t *testing.T) {
			p := compile(t, "FROM(users) FETCH("+tc.fn+" AS v)")
			require.Equal(t, "$addFields", p.Stages[0][0].Key)
			assert.Equal(t, d("__v", tc.want), p.Stages[0][0].Value)
		})
	}
}

func TestCompile_DateAddWeekdayUnsupported(t *testing.T) {
	_, err := Compile(mustParse(t, "FROM(users) FETCH(DATEADD(weekday, 1, created) AS d)"))
	require.Error(t, err)
	assert.True(t, queryir.IsUnsupported(err))
}

func TestPipeline_MarshalExtJSON(t *testing.T) {
	p := compile(t, "FROM(users) FETCH(name) TAKE(2)")
	out, err := p.MarshalExtJSON()
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"aggregate":"users","pipeline":[{"$project":{"_id":0,"name":1}},{"$limit":2}]}`,
		string(out))
}

func TestCompile_AliasShadowingColumn(t *testing.T) {
	p := compile(t, "FROM(users) FETCH(UPPER(name) AS name) FILTER(name = 'bob') ORDERBY(name)")

	assert.Equal(t, []bson.D{
		d("$addFields", d("__name", d("$toUpper", "$name"))),
		exprMatch(d("$eq", bson.A{"$name", "bob"})),
		d("$project", bson.D{{Key: "_id", Value: int64(0)}, {Key: "name", Value: "$__name"}}),
		d("$sort", d("name", int64(1))),
	}, p.Stages)
}

func TestCompile_LikeOnNumericColumn(t *testing.T) {
	p := compile(t, "FROM(users) FETCH(name) FILTER(age LIKE '2%')")

	assert.Equal(t, exprMatch(d("$and", bson.A{
		d("$not", bson.A{d("$eq", bson.A{d("$ifNull", bson.A{"$age", nil}), nil})}),
		d("$regexMatch", bson.D{
			{Key: "input", Value: d("$ifNull", bson.A{d("$toString", "$age"), ""})},
			{Key: "regex", Value: `^2.*$`},
			{Key: "options", Value: "s"},
		}),
	})), p.Stages[0])
}

func TestCompile_QuotedNumberComparesNumerically(t *testing.T) {
	p := compile(t, "FROM(users) FETCH(name) FILTER(age > '9' AND age BETWEEN '1' AND '50')")

	assert.Equal(t, exprMatch(d("$and", bson.A{
		d("$gt", bson.A{"$age", int64(9)}),
		d("$and", bson.A{
			d("$gte", bson.A{"$age", int64(1)}),
			d("$lte", bson.A{"$age", int64(50)}),
		}),
	})), p.Stages[0])
}

// evalNumber evaluates the arithmetic subset of aggregation expressions
// that ROUND renders to.
func evalNumber(t *testing.T, e any, vars map[string]float64) float64 {
	t.Helper()
	switch v := e.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		x, ok := vars[v]
		require.True(t, ok, "unbound %s", v)
		return x
	case bson.D:
		require.Len(t, v, 1)
		args := func() bson.A {
			a, ok := v[0].Value.(bson.A)
			require.True(t, ok, "%s takes an array", v[0].Key)
			return a
		}
		switch v[0].Key {
		case "$let":
			spec := v[0].Value.(bson.D)
			bound := make(map[string]float64)
			for _, e := range spec[0].Value.(bson.D) {
				bound["$$"+e.Key] = evalNumber(t, e.Value, vars)
			}
			return evalNumber(t, spec[1].Value, bound)
		case "$trunc":
			return math.Trunc(evalNumber(t, v[0].Value, vars))
		case "$add":
			a := args()
			return evalNumber(t, a[0], vars) + evalNumber(t, a[1], vars)
		case "$multiply":
			a := args()
			return evalNumber(t, a[0], vars) * evalNumber(t, a[1], vars)
		case "$divide":
			a := args()
			return evalNumber(t, a[0], vars) / evalNumber(t, a[1], vars)
		case "$cond":
			a := args()
			test := a[0].(bson.D)
			require.Equal(t, "$gte", test[0].Key)
			cmp := test[0].Value.(bson.A)
			if evalNumber(t, cmp[0], vars) >= evalNumber(t, cmp[1], vars) {
				return evalNumber(t, a[1], vars)
			}
			return evalNumber(t, a[2], vars)
		}
		t.Fatalf("unexpected operator %s", v[0].Key)
	}
	t.Fatalf("unexpected expression %T", e)
	return 0
}

func TestCompile_RoundHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		fn    string
		price float64
		want  float64
	}{
		{"ROUND(price)", 2.5, 3},
		{"ROUND(price)", -2.5, -3},
		{"ROUND(price)", 0.5, 1},
		{"ROUND(price)", 2.4, 2},
		{"ROUND(price, 1)", 1.25, 1.3},
		{"ROUND(price, 1)", -1.25, -1.3},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s=%v", tc.fn, tc.price), func(t *testing.T) {
			p := compile(t, "FROM(items) FETCH("+tc.fn+" AS v)")
			value := p.Stages[0][0].Value.(bson.D)[0].Value
			got := evalNumber(t, value, map[string]float64{"$price": tc.price})
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}
