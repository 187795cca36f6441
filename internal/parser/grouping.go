package parser

import (
	"fmt"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

// rejectAggregates fails when any condition column of node calls an
// aggregate function.
func rejectAggregates(node queryir.FilterNode, clause string) error {
	return queryir.Walk(node, func(c *queryir.Condition) error {
		e, err := expr.Classify(c.Column)
		if err != nil {
			return err
		}
		if name, ok := firstAggregate(e); ok {
			return queryir.NewUnsupportedFunctionError(name,
				fmt.Sprintf("aggregate %s is not allowed in %s", name, clause), "")
		}
		return nil
	})
}

// checkGrouping enforces that aggregates only appear under GROUPBY and
// that, under GROUPBY, every non-aggregate reference is a grouped column.
func checkGrouping(q *queryir.Query) error {
	if len(q.GroupBy) == 0 {
		for _, c := range q.Columns {
			if err := requireGroupContext(c.Expression); err != nil {
				return err
			}
		}
		for _, o := range q.OrderBy {
			if isAlias(o.Column, q.Columns) {
				continue
			}
			if err := requireGroupContext(o.Column); err != nil {
				return err
			}
		}
		return nil
	}

	grouped := make(map[string]bool, len(q.GroupBy))
	for _, g := range q.GroupBy {
		grouped[g] = true
	}
	if q.IsStar() {
		return queryir.NewSyntaxError("FETCH(*) cannot be combined with GROUPBY", "*")
	}
	for _, c := range q.Columns {
		if err := checkGrouped(c.Expression, grouped, "FETCH"); err != nil {
			return err
		}
	}
	for _, o := range q.OrderBy {
		if isAlias(o.Column, q.Columns) {
			continue
		}
		if err := checkGrouped(o.Column, grouped, "ORDERBY"); err != nil {
			return err
		}
	}
	return queryir.Walk(q.Having, func(c *queryir.Condition) error {
		return checkGrouped(c.Column, grouped, "HAVING")
	})
}

func requireGroupContext(text string) error {
	e, err := expr.Classify(text)
	if err != nil {
		return err
	}
	if name, ok := firstAggregate(e); ok {
		return queryir.NewUnsupportedFunctionError(name,
			fmt.Sprintf("%s requires a GROUPBY clause", name), "")
	}
	return nil
}

func checkGrouped(text string, grouped map[string]bool, clause string) error {
	if grouped[text] {
		return nil
	}
	e, err := expr.Classify(text)
	if err != nil {
		return err
	}
	if expr.HasAggregate(e) {
		return nil
	}
	for _, ref := range columnRefs(e) {
		if !grouped[ref] {
			return queryir.NewSyntaxError(
				fmt.Sprintf("%s column %s must appear in GROUPBY or inside an aggregate", clause, ref), text)
		}
	}
	return nil
}

func firstAggregate(e expr.Expr) (string, bool) {
	fc, ok := e.(expr.FunctionCall)
	if !ok {
		return "", false
	}
	if fc.Spec.IsAggregate() {
		return fc.Spec.Name, true
	}
	for _, a := range fc.Args {
		if name, ok := firstAggregate(a); ok {
			return name, true
		}
	}
	return "", false
}

func columnRefs(e expr.Expr) []string {
	switch v := e.(type) {
	case expr.ColumnRef:
		return []string{v.Path()}
	case expr.FunctionCall:
		var refs []string
		for _, a := range v.Args {
			refs = append(refs, columnRefs(a)...)
		}
		return refs
	}
	return nil
}
