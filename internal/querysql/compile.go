package querysql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

// Options tune the compiler.
type Options struct {
	// StrictPagination turns pagination without ORDER BY on an
	// OFFSET/FETCH dialect into an error instead of a warning.
	StrictPagination bool
}

// Result is a compiled statement.
type Result struct {
	SQL string
	// Warnings are RenderErrors the caller must see but that did not
	// stop compilation, e.g. pagination dropped for lack of ORDER BY.
	Warnings []*queryir.Error
}

// SQLCompiler compiles a Query into SQL text for one dialect.
//
// Values are interpolated as literals: the output is a self-contained
// statement meant to be shown, stored or executed as-is.
type SQLCompiler struct {
	dialect Dialect
	opts    Options
}

// NewSQLCompiler creates a compiler for dialect.
func NewSQLCompiler(dialect Dialect, opts Options) *SQLCompiler {
	return &SQLCompiler{dialect: dialect, opts: opts}
}

// Dialect returns the compiler's dialect.
func (c *SQLCompiler) Dialect() Dialect {
	return c.dialect
}

// Compile converts a Query into a SQL statement.
func (c *SQLCompiler) Compile(q *queryir.Query) (Result, error) {
	if q == nil {
		return Result{}, fmt.Errorf("cannot compile nil query")
	}

	var (
		b      strings.Builder
		result Result
	)

	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
	}
	cols, err := c.compileColumns(q)
	if err != nil {
		return Result{}, err
	}
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(q.Table)

	for _, inc := range q.Includes {
		join, err := c.compileJoin(inc)
		if err != nil {
			return Result{}, err
		}
		b.WriteString(join)
	}

	if q.Filters != nil {
		where, err := c.compilePredicate(q.Filters)
		if err != nil {
			return Result{}, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if len(q.GroupBy) > 0 {
		keys := make([]string, len(q.GroupBy))
		for i, g := range q.GroupBy {
			if keys[i], err = c.compileExpression(g); err != nil {
				return Result{}, err
			}
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(keys, ", "))
	}

	if q.Having != nil {
		having, err := c.compilePredicate(q.Having)
		if err != nil {
			return Result{}, fmt.Errorf("compile having: %w", err)
		}
		b.WriteString(" HAVING ")
		b.WriteString(having)
	}

	if len(q.OrderBy) > 0 {
		keys, err := c.compileOrderBy(q)
		if err != nil {
			return Result{}, err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(keys)
	}

	page, warning, err := c.compilePagination(q)
	if err != nil {
		return Result{}, err
	}
	b.WriteString(page)
	if warning != nil {
		result.Warnings = append(result.Warnings, warning)
	}

	result.SQL = b.String()
	return result, nil
}

// compileColumns renders the SELECT list.
func (c *SQLCompiler) compileColumns(q *queryir.Query) (string, error) {
	if q.IsStar() {
		return "*", nil
	}
	parts := make([]string, len(q.Columns))
	for i, col := range q.Columns {
		sql, err := c.compileExpression(col.Expression)
		if err != nil {
			return "", err
		}
		if col.Alias != "" {
			sql += " AS " + col.Alias
		}
		parts[i] = sql
	}
	return strings.Join(parts, ", "), nil
}

// compileJoin renders one INCLUDE edge.
func (c *SQLCompiler) compileJoin(inc queryir.Include) (string, error) {
	var kind string
	switch inc.Kind {
	case queryir.JoinLeft, "":
		kind = "LEFT JOIN"
	case queryir.JoinInner:
		kind = "INNER JOIN"
	case queryir.JoinRight:
		kind = "RIGHT JOIN"
	case queryir.JoinFull:
		if c.dialect == MySQL {
			return "", queryir.NewUnsupportedOperatorError("FULL JOIN", string(c.dialect))
		}
		kind = "FULL OUTER JOIN"
	default:
		return "", queryir.NewUnsupportedOperatorError(string(inc.Kind)+" JOIN", string(c.dialect))
	}
	return fmt.Sprintf(" %s %s ON %s.%s = %s.%s",
		kind, inc.ChildTable,
		inc.ParentTable, inc.ParentKey,
		inc.ChildTable, inc.ChildKey), nil
}

func (c *SQLCompiler) compileOrderBy(q *queryir.Query) (string, error) {
	keys := make([]string, len(q.OrderBy))
	for i, o := range q.OrderBy {
		key := o.Column
		if !isAlias(o.Column, q.Columns) {
			sql, err := c.compileExpression(o.Column)
			if err != nil {
				return "", err
			}
			key = sql
		}
		if o.Descending {
			key += " DESC"
		}
		keys[i] = key
	}
	return strings.Join(keys, ", "), nil
}

func isAlias(name string, columns []queryir.Column) bool {
	for _, col := range columns {
		if col.Alias != "" && col.Alias == name {
			return true
		}
	}
	return false
}

// compilePagination renders TAKE/SKIP. On OFFSET/FETCH dialects without
// an ORDER BY the clause is omitted and a RenderError is returned as a
// warning, or as the error under StrictPagination.
func (c *SQLCompiler) compilePagination(q *queryir.Query) (string, *queryir.Error, error) {
	if !q.HasPagination() {
		return "", nil, nil
	}

	if c.dialect.usesOffsetFetch() {
		if len(q.OrderBy) == 0 {
			renderErr := queryir.NewRenderError(
				fmt.Sprintf("TAKE/SKIP requires ORDERBY on %s; pagination omitted", c.dialect), string(c.dialect))
			if c.opts.StrictPagination {
				renderErr.Message = fmt.Sprintf("TAKE/SKIP requires ORDERBY on %s", c.dialect)
				return "", nil, renderErr
			}
			return "", renderErr, nil
		}
		offset := 0
		if q.Offset != nil {
			offset = *q.Offset
		}
		page := fmt.Sprintf(" OFFSET %d ROWS", offset)
		if q.Limit != nil {
			page += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", *q.Limit)
		}
		return page, nil, nil
	}

	var page string
	switch {
	case q.Limit != nil:
		page = " LIMIT " + strconv.Itoa(*q.Limit)
	case c.dialect.unboundedLimit() != "":
		page = " LIMIT " + c.dialect.unboundedLimit()
	}
	if q.Offset != nil {
		page += " OFFSET " + strconv.Itoa(*q.Offset)
	}
	return page, nil, nil
}

// compileExpression classifies and renders a column expression.
func (c *SQLCompiler) compileExpression(text string) (string, error) {
	e, err := expr.Classify(text)
	if err != nil {
		return "", err
	}
	return c.render(e)
}

// render renders a classified expression.
func (c *SQLCompiler) render(e expr.Expr) (string, error) {
	switch v := e.(type) {
	case expr.Star:
		return "*", nil
	case expr.ColumnRef:
		return v.Path(), nil
	case expr.Literal:
		return c.renderLiteral(v), nil
	case expr.FunctionCall:
		return c.renderCall(v)
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (c *SQLCompiler) renderLiteral(l expr.Literal) string {
	switch l.Kind {
	case expr.KindNull:
		return "NULL"
	case expr.KindBool:
		if c.dialect.hasBooleans() {
			return strings.ToUpper(l.Raw)
		}
		if strings.EqualFold(l.Raw, "true") {
			return "1"
		}
		return "0"
	case expr.KindDate:
		t, ok := l.Value.(time.Time)
		if !ok || (c.dialect != Postgres && c.dialect != Oracle) {
			return l.Raw
		}
		if len(strings.Trim(l.Raw, "'")) > len("2006-01-02") {
			return "TIMESTAMP '" + t.Format("2006-01-02 15:04:05") + "'"
		}
		return "DATE '" + t.Format("2006-01-02") + "'"
	}
	return l.Raw
}

// literal renders a condition value: numeric-looking values are bare
// whether quoted or not, unquoted true and false become the dialect's
// boolean, everything else becomes a quoted string.
func (c *SQLCompiler) literal(value string, quoted bool) string {
	if expr.IsNumeric(value) {
		return strings.TrimSpace(value)
	}
	if quoted {
		return quote(value)
	}
	if strings.EqualFold(value, "true") || strings.EqualFold(value, "false") {
		return c.renderLiteral(expr.Literal{Kind: expr.KindBool, Raw: value})
	}
	return quote(value)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
