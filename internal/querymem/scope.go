package querymem

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

// scope is the context an expression evaluates in: a single row, or a
// group of rows represented by its first member.
type scope struct {
	row     Row
	group   []Row
	grouped bool
	now     time.Time
}

func (s *scope) eval(e expr.Expr) (any, error) {
	switch v := e.(type) {
	case expr.Literal:
		return v.Value, nil
	case expr.ColumnRef:
		return lookup(s.row, v), nil
	case expr.FunctionCall:
		if v.Spec.IsAggregate() {
			if !s.grouped {
				return nil, queryir.NewUnsupportedFunctionError(v.Spec.Name,
					fmt.Sprintf("%s requires a GROUPBY clause", v.Spec.Name), Target)
			}
			return s.aggregate(v)
		}
		args := make([]any, len(v.Args))
		for i, a := range v.Args {
			val, err := s.eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = val
		}
		return Call(v.Spec.Name, args, s.now)
	case expr.Star:
		return nil, queryir.NewSyntaxError("* is not valid here", "*")
	}
	return nil, fmt.Errorf("unsupported expression type: %T", e)
}

// lookup finds a column value. The qualified key wins over the bare
// column name; a case-insensitive match is the last resort. Missing
// columns read as null.
func lookup(r Row, ref expr.ColumnRef) any {
	if ref.Table != "" {
		if v, ok := r[ref.Path()]; ok {
			return v
		}
	}
	if v, ok := r[ref.Column]; ok {
		return v
	}
	for k, v := range r {
		if strings.EqualFold(k, ref.Path()) || strings.EqualFold(k, ref.Column) {
			return v
		}
	}
	return nil
}

// groupScopes partitions scopes by the GROUPBY expressions, keeping groups
// in order of first appearance.
func groupScopes(groupBy []string, scopes []*scope, now time.Time) ([]*scope, error) {
	keys := make([]expr.Expr, len(groupBy))
	for i, g := range groupBy {
		e, err := expr.Classify(g)
		if err != nil {
			return nil, err
		}
		keys[i] = e
	}

	var groups []*scope
	index := make(map[string]*scope)
	for _, s := range scopes {
		var b strings.Builder
		for _, k := range keys {
			v, err := s.eval(k)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&b, "%s\x00", groupKey(v))
		}
		g, ok := index[b.String()]
		if !ok {
			g = &scope{row: s.row, grouped: true, now: now}
			index[b.String()] = g
			groups = append(groups, g)
		}
		g.group = append(g.group, s.row)
	}
	return groups, nil
}

// groupKey makes numerically equal values share a group.
func groupKey(v any) string {
	if v == nil {
		return "null"
	}
	if n, ok := toNumber(v); ok {
		return fmt.Sprintf("n:%v", n)
	}
	return "s:" + toText(v)
}
