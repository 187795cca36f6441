package queryir

import "strings"

// Query is the compiled form of one DSL string.
//
// Semantics:
//
//	SELECT [DISTINCT] <Columns> FROM <Table>
//	  [<Includes> as joins/lookups]
//	  [WHERE <Filters>] [GROUP BY <GroupBy>] [HAVING <Having>]
//	  [ORDER BY <OrderBy>] [LIMIT <Limit> OFFSET <Offset>]
//
// Column expressions are already table-qualified by the parser
// (see expr.Qualify).
type Query struct {
	Table    string
	Columns  []Column
	Distinct bool
	Includes []Include
	Filters  FilterNode // nil = no WHERE
	GroupBy  []string
	Having   FilterNode // nil = no HAVING
	OrderBy  []OrderBy
	Limit    *int
	Offset   *int
}

// Column is a projected expression with an optional alias.
// A single Column with Expression "*" means all columns.
type Column struct {
	Expression string
	Alias      string
}

// IsStar reports whether the column selects every field.
func (c Column) IsStar() bool {
	return c.Expression == "*"
}

// IsStar reports whether the query projects all columns.
func (q *Query) IsStar() bool {
	return len(q.Columns) == 0 || (len(q.Columns) == 1 && q.Columns[0].IsStar())
}

// JoinKind is the join semantics applied to an Include edge.
type JoinKind string

const (
	JoinLeft  JoinKind = "LEFT"
	JoinInner JoinKind = "INNER"
	JoinRight JoinKind = "RIGHT"
	JoinFull  JoinKind = "FULL"
)

// ParseJoinKind returns the JoinKind for a keyword, case-insensitively.
func ParseJoinKind(s string) (JoinKind, bool) {
	switch JoinKind(strings.ToUpper(strings.TrimSpace(s))) {
	case JoinLeft:
		return JoinLeft, true
	case JoinInner:
		return JoinInner, true
	case JoinRight:
		return JoinRight, true
	case JoinFull:
		return JoinFull, true
	}
	return "", false
}

// Include is one hop of a join/lookup chain:
//
//	<ParentTable>.<ParentKey> = <ChildTable>.<ChildKey>
type Include struct {
	ParentTable string
	ParentKey   string
	ChildTable  string
	ChildKey    string
	Kind        JoinKind
}

// OrderBy is one ORDER BY key.
type OrderBy struct {
	Column     string
	Descending bool
}

// HasPagination reports whether TAKE or SKIP was requested.
func (q *Query) HasPagination() bool {
	return q.Limit != nil || q.Offset != nil
}

// FilterNode is a node of a filter tree.
//
// This is a sealed interface - only *Condition and *Logical implement it.
type FilterNode interface {
	filterNode()
}

// Condition is a leaf comparison: <Column> <Operator> <Value>.
//
// Value holds the unquoted right-hand side. It is empty for IsNull and
// IsNotNull. For In/NotIn, Values holds the list members; for
// Between/NotBetween, Values holds exactly [lo, hi].
type Condition struct {
	Column   string
	Operator Operator
	Value    string
	Values   []string
	Quoted   bool // right-hand side was a quoted string literal
}

func (*Condition) filterNode() {}

// LogicalOp joins two filter nodes.
type LogicalOp string

const (
	And LogicalOp = "AND"
	Or  LogicalOp = "OR"
)

// Logical combines exactly two child nodes. Chains are left-leaning:
// a AND b AND c is Logical(And, Logical(And, a, b), c).
type Logical struct {
	Op    LogicalOp
	Left  FilterNode
	Right FilterNode
}

func (*Logical) filterNode() {}

// Walk visits every Condition of the tree in left-to-right order.
// It stops at the first error returned by fn.
func Walk(node FilterNode, fn func(*Condition) error) error {
	switch n := node.(type) {
	case nil:
		return nil
	case *Condition:
		return fn(n)
	case *Logical:
		if err := Walk(n.Left, fn); err != nil {
			return err
		}
		return Walk(n.Right, fn)
	default:
		return NewSyntaxError("unknown filter node", "")
	}
}
