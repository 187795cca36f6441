package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestValidate_PortableQuery(t *testing.T) {
	q := &Query{
		Table:   "users",
		Columns: []Column{{Expression: "users.id"}, {Expression: "users.name"}},
		Filters: &Condition{Column: "users.age", Operator: Gt, Value: "18"},
		OrderBy: []OrderBy{{Column: "users.name", Descending: true}},
		Limit:   intPtr(10),
	}

	for _, target := range []Target{TargetSQL, TargetPipeline, TargetMemory} {
		result := Validate(q, target, "postgres")
		assert.True(t, result.IsPortable, "target %s: %v", target, result.Warnings)
		assert.Empty(t, result.Warnings)
	}
}

func TestValidate_IncludePerTarget(t *testing.T) {
	q := &Query{
		Table:   "users",
		Columns: []Column{{Expression: "users.id"}},
		Includes: []Include{{
			ParentTable: "users", ParentKey: "id",
			ChildTable: "orders", ChildKey: "user_id",
			Kind: JoinFull,
		}},
	}

	testCases := []struct {
		target   Target
		dialect  string
		contains string
	}{
		{TargetMemory, "", "in-memory"},
		{TargetPipeline, "", "pipeline"},
		{TargetSQL, "mysql", "mysql"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.target), func(t *testing.T) {
			result := Validate(q, tc.target, tc.dialect)
			assert.False(t, result.IsPortable)
			assert.Len(t, result.Warnings, 1)
			assert.Contains(t, result.Warnings[0], tc.contains)
		})
	}

	assert.True(t, Validate(q, TargetSQL, "postgres").IsPortable)
}

func TestValidate_PaginationWithoutOrder(t *testing.T) {
	q := &Query{
		Table:   "users",
		Columns: []Column{{Expression: "users.id"}},
		Limit:   intPtr(5),
	}

	assert.True(t, Validate(q, TargetSQL, "postgres").IsPortable)

	result := Validate(q, TargetSQL, "sqlserver")
	assert.False(t, result.IsPortable)
	assert.Contains(t, result.Warnings[0], "sqlserver")

	q.Offset = intPtr(5)
	result = Validate(q, TargetMemory, "")
	assert.Contains(t, result.Warnings[0], "SKIP without ORDERBY")
}

func TestValidate_NilQuery(t *testing.T) {
	result := Validate(nil, TargetSQL, "postgres")
	assert.False(t, result.IsPortable)
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("in-memory")
	assert.NoError(t, err)
	assert.Equal(t, TargetMemory, target)

	_, err = ParseTarget("graphql")
	assert.Error(t, err)
}
