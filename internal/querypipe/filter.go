package querypipe

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

var comparisonOps = map[queryir.Operator]string{
	queryir.Eq:  "$eq",
	queryir.Neq: "$ne",
	queryir.Lt:  "$lt",
	queryir.Lte: "$lte",
	queryir.Gt:  "$gt",
	queryir.Gte: "$gte",
}

// predicate renders a filter tree as a $match $expr. Same-operator chains
// are flattened into one $and or $or.
func (b *Builder) predicate(node queryir.FilterNode, ph phase) (any, error) {
	switch n := node.(type) {
	case *queryir.Condition:
		return b.condition(n, ph)
	case *queryir.Logical:
		var operands bson.A
		if err := b.collect(n, n.Op, ph, &operands); err != nil {
			return nil, err
		}
		return op("$"+strings.ToLower(string(n.Op)), operands), nil
	default:
		return nil, fmt.Errorf("unsupported filter node: %T", node)
	}
}

func (b *Builder) collect(node queryir.FilterNode, parent queryir.LogicalOp, ph phase, out *bson.A) error {
	if l, ok := node.(*queryir.Logical); ok && l.Op == parent {
		if err := b.collect(l.Left, parent, ph, out); err != nil {
			return err
		}
		return b.collect(l.Right, parent, ph, out)
	}
	v, err := b.predicate(node, ph)
	if err != nil {
		return err
	}
	*out = append(*out, v)
	return nil
}

// condition renders one leaf. Comparisons that BSON ordering would let a
// null satisfy are guarded so null and missing fields never match.
func (b *Builder) condition(c *queryir.Condition, ph phase) (any, error) {
	e, err := expr.Classify(c.Column)
	if err != nil {
		return nil, err
	}
	lhs, err := b.Resolve(e, "", ph)
	if err != nil {
		return nil, err
	}

	if mongoOp, ok := comparisonOps[c.Operator]; ok {
		cmp := op(mongoOp, bson.A{lhs, conditionValue(c.Value, c.Quoted)})
		if c.Operator == queryir.Neq || c.Operator == queryir.Lt || c.Operator == queryir.Lte {
			return notNull(lhs, cmp), nil
		}
		return cmp, nil
	}

	switch c.Operator {
	case queryir.IsNull:
		return isNullExpr(lhs), nil
	case queryir.IsNotNull:
		return op("$not", bson.A{isNullExpr(lhs)}), nil
	case queryir.In, queryir.NotIn:
		if len(c.Values) == 0 {
			return nil, queryir.NewRenderError(c.Operator.String()+" requires at least one value", Target)
		}
		values := make(bson.A, len(c.Values))
		for i, v := range c.Values {
			values[i] = conditionValue(v, c.Quoted)
		}
		in := op("$in", bson.A{lhs, values})
		if c.Operator == queryir.NotIn {
			return notNull(lhs, op("$not", bson.A{in})), nil
		}
		return in, nil
	case queryir.Between, queryir.NotBetween:
		if len(c.Values) != 2 {
			return nil, queryir.NewRenderError(c.Operator.String()+" requires two bounds", Target)
		}
		between := op("$and", bson.A{
			op("$gte", bson.A{lhs, conditionValue(c.Values[0], c.Quoted)}),
			op("$lte", bson.A{lhs, conditionValue(c.Values[1], c.Quoted)}),
		})
		if c.Operator == queryir.NotBetween {
			return notNull(lhs, op("$not", bson.A{between})), nil
		}
		return between, nil
	}

	kind, fold, negated := c.Operator.Match()
	if kind == queryir.MatchNone {
		return nil, queryir.NewUnsupportedOperatorError(c.Operator.String(), Target)
	}
	// $regexMatch rejects non-string input; nulls never match.
	re := bson.D{
		{Key: "input", Value: op("$ifNull", bson.A{op("$toString", lhs), ""})},
		{Key: "regex", Value: queryir.MatchRegex(kind, c.Value)},
	}
	if options := regexOptions(kind, fold); options != "" {
		re = append(re, bson.E{Key: "options", Value: options})
	}
	match := op("$regexMatch", re)
	if negated {
		return notNull(lhs, op("$not", bson.A{match})), nil
	}
	return notNull(lhs, match), nil
}

// regexOptions lets LIKE wildcards cross newlines, as SQL LIKE does.
func regexOptions(kind queryir.MatchKind, fold bool) string {
	options := ""
	if fold {
		options += "i"
	}
	if kind == queryir.MatchPattern {
		options += "s"
	}
	return options
}

func notNull(v any, then bson.D) bson.D {
	return op("$and", bson.A{op("$not", bson.A{isNullExpr(v)}), then})
}

// conditionValue types a right-hand side. Numeric-looking values become
// numbers whether quoted or not, unquoted booleans keep their type, and
// everything else compares as a string.
func conditionValue(value string, quoted bool) any {
	if expr.IsNumeric(value) {
		text := strings.TrimSpace(value)
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(text, 64)
		return f
	}
	if !quoted {
		switch strings.ToLower(value) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	if strings.HasPrefix(value, "$") {
		return op("$literal", value)
	}
	return value
}
