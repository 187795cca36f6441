package parser

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/scan"
	"github.com/roach88/triql/internal/schema"
)

// Parse compiles DSL text into a Query. INCLUDE hops are resolved through
// resolver, which may be nil when the query has no INCLUDE clause.
//
// Parse either returns a complete Query or an error; it never returns a
// partially built model.
func Parse(ctx context.Context, input string, resolver schema.Resolver) (*queryir.Query, error) {
	if err := scan.CheckBalanced(input); err != nil {
		return nil, err
	}
	b := &builder{input: input}
	q, err := b.build(ctx, resolver)
	if err != nil {
		return nil, err
	}
	return q, nil
}

type builder struct {
	input string
	spans []scan.Clause
	table string
}

func (b *builder) build(ctx context.Context, resolver schema.Resolver) (*queryir.Query, error) {
	from, ok, err := b.clause(true, "FROM")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, queryir.NewSyntaxError("missing FROM clause", b.input)
	}
	if !isPlainName(from.Body) {
		return nil, queryir.NewSyntaxError("invalid table name", from.Body)
	}
	b.table = from.Body
	q := &queryir.Query{Table: b.table}

	fetch, found, err := b.clause(false, "FETCH DISTINCT", "FETCHD", "FETCH")
	if err != nil {
		return nil, err
	}
	q.Distinct = found && !strings.EqualFold(fetch.Keyword, "FETCH")
	if q.Columns, err = b.columns(fetch.Body); err != nil {
		return nil, err
	}

	if inc, found, err := b.clause(false, "INCLUDE"); err != nil {
		return nil, err
	} else if found {
		if q.Includes, err = resolveIncludes(ctx, b.table, inc.Body, resolver); err != nil {
			return nil, err
		}
	}

	if filter, found, err := b.clause(false, "FILTER"); err != nil {
		return nil, err
	} else if found {
		if q.Filters, err = parseFilter(filter.Body, b.table, 0); err != nil {
			return nil, err
		}
		if err := rejectAggregates(q.Filters, "FILTER"); err != nil {
			return nil, err
		}
	}

	if group, found, err := b.clause(false, "GROUPBY", "GROUP BY"); err != nil {
		return nil, err
	} else if found {
		if q.GroupBy, err = b.groupBy(group.Body); err != nil {
			return nil, err
		}
	}

	if having, found, err := b.clause(false, "HAVING"); err != nil {
		return nil, err
	} else if found {
		if len(q.GroupBy) == 0 {
			return nil, queryir.NewSyntaxError("HAVING requires a GROUPBY clause", having.Body)
		}
		if q.Having, err = parseFilter(having.Body, b.table, 0); err != nil {
			return nil, err
		}
	}

	if order, found, err := b.clause(false, "ORDERBY", "ORDER BY"); err != nil {
		return nil, err
	} else if found {
		if q.OrderBy, err = b.orderBy(order.Body, q.Columns); err != nil {
			return nil, err
		}
	}

	if q.Limit, err = b.count("TAKE", "LIMIT"); err != nil {
		return nil, err
	}
	if q.Offset, err = b.count("SKIP", "OFFSET"); err != nil {
		return nil, err
	}

	if err := b.checkCoverage(); err != nil {
		return nil, err
	}
	if err := checkGrouping(q); err != nil {
		return nil, err
	}
	return q, nil
}

// clause finds at most one of the given spellings of a clause.
func (b *builder) clause(bare bool, spellings ...string) (scan.Clause, bool, error) {
	var (
		found scan.Clause
		ok    bool
	)
	for _, kw := range spellings {
		c, hit, err := scan.FindClause(b.input, kw, bare)
		if err != nil {
			return scan.Clause{}, false, err
		}
		if !hit {
			continue
		}
		if ok {
			return scan.Clause{}, false, queryir.NewSyntaxError(
				fmt.Sprintf("duplicate %s clause", spellings[0]), b.input[c.Start:c.End])
		}
		found, ok = c, true
	}
	if ok {
		b.spans = append(b.spans, found)
	}
	return found, ok, nil
}

// checkCoverage rejects text outside any recognized clause, which is
// almost always a misspelled keyword.
func (b *builder) checkCoverage() error {
	spans := append([]scan.Clause(nil), b.spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	pos := 0
	for _, sp := range spans {
		if gap := strings.TrimSpace(b.input[pos:sp.Start]); gap != "" {
			return queryir.NewSyntaxError("unexpected text", gap)
		}
		pos = sp.End
	}
	if gap := strings.TrimSpace(b.input[pos:]); gap != "" {
		return queryir.NewSyntaxError("unexpected text", gap)
	}
	return nil
}

func (b *builder) columns(body string) ([]queryir.Column, error) {
	entries := scan.SplitTopLevel(body, ',')
	if len(entries) == 0 {
		return []queryir.Column{{Expression: "*"}}, nil
	}
	cols := make([]queryir.Column, 0, len(entries))
	for _, entry := range entries {
		e, alias := expr.SplitAlias(entry)
		if alias != "" && !isPlainName(alias) {
			return nil, queryir.NewSyntaxError("invalid alias", entry)
		}
		if e == "*" {
			if len(entries) > 1 || alias != "" {
				return nil, queryir.NewSyntaxError("* cannot be combined with other columns or an alias", body)
			}
			return []queryir.Column{{Expression: "*"}}, nil
		}
		qualified := expr.Qualify(e, b.table)
		if _, err := expr.Classify(qualified); err != nil {
			return nil, err
		}
		cols = append(cols, queryir.Column{Expression: qualified, Alias: alias})
	}
	return cols, nil
}

func (b *builder) groupBy(body string) ([]string, error) {
	var cols []string
	for _, entry := range scan.SplitTopLevel(body, ',') {
		qualified := expr.Qualify(entry, b.table)
		e, err := expr.Classify(qualified)
		if err != nil {
			return nil, err
		}
		if fc, ok := e.(expr.FunctionCall); ok && expr.HasAggregate(e) {
			return nil, queryir.NewUnsupportedFunctionError(fc.Name(),
				fmt.Sprintf("aggregate %s is not allowed in GROUPBY", fc.Name()), "")
		}
		cols = append(cols, qualified)
	}
	if len(cols) == 0 {
		return nil, queryir.NewSyntaxError("GROUPBY requires at least one column", body)
	}
	return cols, nil
}

// orderBy parses "expr [ASC|DESC], ...". A bare name matching a FETCH alias
// is kept unqualified so it refers to the projected value.
func (b *builder) orderBy(body string, columns []queryir.Column) ([]queryir.OrderBy, error) {
	var keys []queryir.OrderBy
	for _, entry := range scan.SplitTopLevel(body, ',') {
		fields := scan.Fields(entry)
		key := queryir.OrderBy{}
		text := entry
		if last := fields[len(fields)-1]; len(fields) > 1 {
			switch strings.ToUpper(last.Text) {
			case "DESC":
				key.Descending = true
				text = entry[:last.Start]
			case "ASC":
				text = entry[:last.Start]
			}
		}
		text = strings.TrimSpace(text)
		if isAlias(text, columns) {
			key.Column = text
		} else {
			key.Column = expr.Qualify(text, b.table)
			if _, err := expr.Classify(key.Column); err != nil {
				return nil, err
			}
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, queryir.NewSyntaxError("ORDERBY requires at least one column", body)
	}
	return keys, nil
}

func isAlias(name string, columns []queryir.Column) bool {
	for _, c := range columns {
		if c.Alias != "" && c.Alias == name {
			return true
		}
	}
	return false
}

// count parses a TAKE/SKIP style clause body as a non-negative integer.
func (b *builder) count(spellings ...string) (*int, error) {
	c, found, err := b.clause(false, spellings...)
	if err != nil || !found {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(c.Body))
	if err != nil || n < 0 {
		return nil, queryir.NewSyntaxError(
			fmt.Sprintf("%s requires a non-negative integer", strings.ToUpper(c.Keyword)), c.Body)
	}
	return &n, nil
}

func isPlainName(s string) bool {
	e, err := expr.Classify(s)
	if err != nil {
		return false
	}
	ref, ok := e.(expr.ColumnRef)
	return ok && ref.Table == "" && !strings.Contains(s, ".")
}
