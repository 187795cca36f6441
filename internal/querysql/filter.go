package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/triql/internal/queryir"
)

// likeEscape prefixes wildcard characters in synthesized patterns.
const likeEscape = "!"

var comparisonSQL = map[queryir.Operator]string{
	queryir.Eq:  "=",
	queryir.Neq: "<>",
	queryir.Lt:  "<",
	queryir.Lte: "<=",
	queryir.Gt:  ">",
	queryir.Gte: ">=",
}

// compilePredicate renders a filter tree. A Logical child is parenthesized
// only when its operator differs from its parent's.
func (c *SQLCompiler) compilePredicate(node queryir.FilterNode) (string, error) {
	switch n := node.(type) {
	case *queryir.Condition:
		return c.compileCondition(n)
	case *queryir.Logical:
		left, err := c.compileOperand(n.Left, n.Op)
		if err != nil {
			return "", err
		}
		right, err := c.compileOperand(n.Right, n.Op)
		if err != nil {
			return "", err
		}
		return left + " " + string(n.Op) + " " + right, nil
	default:
		return "", fmt.Errorf("unsupported filter node: %T", node)
	}
}

func (c *SQLCompiler) compileOperand(node queryir.FilterNode, parent queryir.LogicalOp) (string, error) {
	sql, err := c.compilePredicate(node)
	if err != nil {
		return "", err
	}
	if l, ok := node.(*queryir.Logical); ok && l.Op != parent {
		return "(" + sql + ")", nil
	}
	return sql, nil
}

// compileCondition renders one leaf comparison.
func (c *SQLCompiler) compileCondition(cond *queryir.Condition) (string, error) {
	lhs, err := c.compileExpression(cond.Column)
	if err != nil {
		return "", err
	}

	if op, ok := comparisonSQL[cond.Operator]; ok {
		return fmt.Sprintf("%s %s %s", lhs, op, c.literal(cond.Value, cond.Quoted)), nil
	}

	switch cond.Operator {
	case queryir.IsNull:
		return lhs + " IS NULL", nil
	case queryir.IsNotNull:
		return lhs + " IS NOT NULL", nil
	case queryir.In, queryir.NotIn:
		if len(cond.Values) == 0 {
			return "", queryir.NewRenderError(cond.Operator.String()+" requires at least one value", string(c.dialect))
		}
		items := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			items[i] = c.literal(v, cond.Quoted)
		}
		not := ""
		if cond.Operator == queryir.NotIn {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sIN (%s)", lhs, not, strings.Join(items, ", ")), nil
	case queryir.Between, queryir.NotBetween:
		if len(cond.Values) != 2 {
			return "", queryir.NewRenderError(cond.Operator.String()+" requires two bounds", string(c.dialect))
		}
		not := ""
		if cond.Operator == queryir.NotBetween {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sBETWEEN %s AND %s", lhs, not,
			c.literal(cond.Values[0], cond.Quoted), c.literal(cond.Values[1], cond.Quoted)), nil
	}

	kind, fold, negated := cond.Operator.Match()
	if kind == queryir.MatchNone {
		return "", queryir.NewUnsupportedOperatorError(cond.Operator.String(), string(c.dialect))
	}
	return c.compileLike(lhs, cond.Value, kind, fold, negated), nil
}

// compileLike renders the LIKE family. Contains/BeginsWith/EndsWith escape
// wildcards in the value so they match literally.
func (c *SQLCompiler) compileLike(lhs, value string, kind queryir.MatchKind, fold, negated bool) string {
	pattern := value
	escaped := false
	if kind != queryir.MatchPattern {
		pattern, escaped = escapeLike(value)
		switch kind {
		case queryir.MatchContains:
			pattern = "%" + pattern + "%"
		case queryir.MatchPrefix:
			pattern += "%"
		case queryir.MatchSuffix:
			pattern = "%" + pattern
		}
	}

	op := "LIKE"
	rhs := quote(pattern)
	switch {
	case fold && c.dialect.hasNativeILike():
		op = "ILIKE"
	case fold:
		lhs = "LOWER(" + lhs + ")"
		rhs = "LOWER(" + rhs + ")"
	}
	if negated {
		op = "NOT " + op
	}

	sql := fmt.Sprintf("%s %s %s", lhs, op, rhs)
	if escaped {
		sql += " ESCAPE '" + likeEscape + "'"
	}
	return sql
}

func escapeLike(s string) (string, bool) {
	if !strings.ContainsAny(s, "%_"+likeEscape) {
		return s, false
	}
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(s), true
}
