package querymem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

// Target is the target name used in errors.
const Target = "memory"

// Row is one record, keyed by column name. Keys may be plain ("age") or
// table-qualified ("users.age").
type Row map[string]any

// Result is the output of Evaluate. Columns lists the output keys in
// FETCH order.
type Result struct {
	Columns []string
	Rows    []Row
}

// Clock supplies the current time for NOW, TODAY and TIME.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Interpreter evaluates queries over rows. The zero value is not usable;
// create one with New.
type Interpreter struct {
	clock Clock
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(in *Interpreter) {
		in.clock = c
	}
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{clock: systemClock{}}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// output is a projected row together with the ORDERBY keys computed from
// its source.
type output struct {
	row  Row
	keys []any
}

// Evaluate runs q over rows. rows is not modified.
func (in *Interpreter) Evaluate(ctx context.Context, q *queryir.Query, rows []Row) (Result, error) {
	if q == nil {
		return Result{}, fmt.Errorf("cannot evaluate nil query")
	}
	if len(q.Includes) > 0 {
		return Result{}, queryir.NewUnsupportedOperatorError("INCLUDE", Target)
	}

	now := in.clock.Now()
	where, err := compilePredicate(q.Filters)
	if err != nil {
		return Result{}, fmt.Errorf("compile filter: %w", err)
	}
	having, err := compilePredicate(q.Having)
	if err != nil {
		return Result{}, fmt.Errorf("compile having: %w", err)
	}
	columns, err := classifyColumns(q)
	if err != nil {
		return Result{}, err
	}
	order, err := classifyOrder(q)
	if err != nil {
		return Result{}, err
	}

	var kept []*scope
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		s := &scope{row: r, now: now}
		ok, err := where(s)
		if err != nil {
			return Result{}, err
		}
		if ok {
			kept = append(kept, s)
		}
	}

	if len(q.GroupBy) > 0 {
		if kept, err = groupScopes(q.GroupBy, kept, now); err != nil {
			return Result{}, err
		}
		filtered := kept[:0]
		for _, s := range kept {
			ok, err := having(s)
			if err != nil {
				return Result{}, err
			}
			if ok {
				filtered = append(filtered, s)
			}
		}
		kept = filtered
	}

	outs := make([]output, 0, len(kept))
	for _, s := range kept {
		row, err := project(s, columns)
		if err != nil {
			return Result{}, err
		}
		keys := make([]any, len(order))
		for i, o := range order {
			if o.alias != "" {
				keys[i] = row[o.alias]
				continue
			}
			if keys[i], err = s.eval(o.expr); err != nil {
				return Result{}, err
			}
		}
		outs = append(outs, output{row: row, keys: keys})
	}

	if len(order) > 0 {
		sort.SliceStable(outs, func(i, j int) bool {
			for k, o := range order {
				c := compareValues(outs[i].keys[k], outs[j].keys[k])
				if o.desc {
					c = -c
				}
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
	}

	names := outputNames(columns)
	result := Result{Columns: names}
	seen := make(map[string]bool)
	for _, o := range outs {
		if q.Distinct {
			key := rowKey(o.row, names)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		result.Rows = append(result.Rows, o.row)
	}
	result.Rows = paginate(result.Rows, q.Offset, q.Limit)
	return result, nil
}

// Evaluate runs q over rows with a default Interpreter.
func Evaluate(ctx context.Context, q *queryir.Query, rows []Row) (Result, error) {
	return New().Evaluate(ctx, q, rows)
}

type column struct {
	name string
	expr expr.Expr // nil for *
}

type orderKey struct {
	expr  expr.Expr
	alias string // set when the key names a FETCH alias
	desc  bool
}

func classifyColumns(q *queryir.Query) ([]column, error) {
	if q.IsStar() {
		return []column{{name: "*"}}, nil
	}
	cols := make([]column, 0, len(q.Columns))
	for _, c := range q.Columns {
		e, err := expr.Classify(c.Expression)
		if err != nil {
			return nil, err
		}
		name := c.Alias
		if name == "" {
			name = expr.OutputName(e)
		}
		cols = append(cols, column{name: name, expr: e})
	}
	return cols, nil
}

func classifyOrder(q *queryir.Query) ([]orderKey, error) {
	keys := make([]orderKey, 0, len(q.OrderBy))
	for _, o := range q.OrderBy {
		k := orderKey{desc: o.Descending}
		for _, c := range q.Columns {
			if c.Alias != "" && c.Alias == o.Column {
				k.alias = c.Alias
			}
		}
		if k.alias == "" {
			e, err := expr.Classify(o.Column)
			if err != nil {
				return nil, err
			}
			k.expr = e
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func project(s *scope, columns []column) (Row, error) {
	if len(columns) == 1 && columns[0].expr == nil {
		out := make(Row, len(s.row))
		for k, v := range s.row {
			out[k] = v
		}
		return out, nil
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		v, err := s.eval(c.expr)
		if err != nil {
			return nil, err
		}
		out[c.name] = v
	}
	return out, nil
}

func outputNames(columns []column) []string {
	if len(columns) == 1 && columns[0].expr == nil {
		return nil
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

// rowKey identifies a row's values for DISTINCT. Star projections use the
// sorted key set.
func rowKey(r Row, names []string) string {
	if names == nil {
		for k := range r {
			names = append(names, k)
		}
		sort.Strings(names)
	}
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%T:%v\x00", r[n], r[n])
	}
	return b.String()
}

func paginate(rows []Row, offset, limit *int) []Row {
	if offset != nil {
		if *offset >= len(rows) {
			return nil
		}
		rows = rows[*offset:]
	}
	if limit != nil && *limit < len(rows) {
		rows = rows[:*limit]
	}
	return rows
}
