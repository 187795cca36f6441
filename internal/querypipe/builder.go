package querypipe

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

// phase selects which computed-fields stage a hoisted function lands in.
type phase int

const (
	phasePre  phase = iota // before $group (or the only phase without GROUPBY)
	phasePost              // after $group, over grouped values
)

// hiddenPrefix marks hoisted fields. A FETCH alias may repeat a source
// column name, and $match runs after the hoisting stage, so hoisted fields
// only take their output name in $project.
const hiddenPrefix = "__"

// Builder carries the mutable state of one compilation: the computed
// fields registered so far, the $group key and accumulators, and the
// counters used to name hoisted fields.
type Builder struct {
	q *queryir.Query

	pre  bson.D // $addFields before $match
	post bson.D // $addFields after the re-expose stage

	groupID      bson.D
	accumulators bson.D
	exposed      bson.D

	// fields maps canonical expression text to the field holding it,
	// per phase. Aggregates and group keys are phase independent.
	fields    [2]map[string]string
	aggs      map[string]string
	groupKeys map[string]string

	counters map[string]int
	taken    map[string]bool
}

// NewBuilder creates a Builder for q.
func NewBuilder(q *queryir.Query) *Builder {
	return &Builder{
		q:         q,
		fields:    [2]map[string]string{{}, {}},
		aggs:      make(map[string]string),
		groupKeys: make(map[string]string),
		counters:  make(map[string]int),
		taken:     make(map[string]bool),
	}
}

func (b *Builder) grouped() bool {
	return len(b.q.GroupBy) > 0
}

// outputPhase is the phase of FETCH, HAVING and ORDERBY expressions.
func (b *Builder) outputPhase() phase {
	if b.grouped() {
		return phasePost
	}
	return phasePre
}

// fieldPath maps a table-qualified column to its document path. Root
// table fields are top level; joined tables live under their own name.
func (b *Builder) fieldPath(table, column string) string {
	if table == "" || strings.EqualFold(table, b.q.Table) {
		return column
	}
	return table + "." + column
}

// nextName returns NAME_n for the first unused n, or alias when given.
func (b *Builder) nextName(fn, alias string) string {
	if alias != "" {
		b.taken[alias] = true
		return alias
	}
	for {
		b.counters[fn]++
		name := fn + "_" + strconv.Itoa(b.counters[fn])
		if !b.taken[name] {
			b.taken[name] = true
			return name
		}
	}
}

// Resolve returns a value usable in expression context: a "$field"
// reference for columns and function calls, a constant for literals.
// Function calls are hoisted into the phase's computed-fields stage;
// aggregates become accumulators of the $group stage.
func (b *Builder) Resolve(e expr.Expr, alias string, ph phase) (any, error) {
	fc, ok := e.(expr.FunctionCall)
	if !ok {
		return b.inline(e, ph)
	}
	if fc.Spec.IsAggregate() {
		return b.accumulate(fc, alias)
	}

	key := expr.Format(fc)
	if ph == phasePost {
		if name, ok := b.groupKeys[key]; ok {
			return "$" + name, nil
		}
	}
	if name, ok := b.fields[ph][key]; ok {
		return "$" + name, nil
	}

	value, err := b.translate(fc, ph)
	if err != nil {
		return nil, err
	}
	field := hiddenPrefix + b.nextName(fc.Spec.Name, alias)
	b.fields[ph][key] = field
	if ph == phasePre {
		b.pre = append(b.pre, bson.E{Key: field, Value: value})
	} else {
		b.post = append(b.post, bson.E{Key: field, Value: value})
	}
	return "$" + field, nil
}

// inline renders e in place. Only the outermost call of an expression is
// hoisted; nested calls are inlined, except aggregates, which always
// resolve to their accumulator.
func (b *Builder) inline(e expr.Expr, ph phase) (any, error) {
	switch v := e.(type) {
	case expr.ColumnRef:
		if ph == phasePost {
			if name, ok := b.groupKeys[v.Path()]; ok {
				return "$" + name, nil
			}
		}
		return "$" + b.fieldPath(v.Table, v.Column), nil
	case expr.Literal:
		return literalValue(v), nil
	case expr.FunctionCall:
		if v.Spec.IsAggregate() {
			return b.accumulate(v, "")
		}
		if ph == phasePost {
			if name, ok := b.groupKeys[expr.Format(v)]; ok {
				return "$" + name, nil
			}
		}
		return b.translate(v, ph)
	case expr.Star:
		return nil, queryir.NewSyntaxError("* is not valid here", "*")
	}
	return nil, fmt.Errorf("unsupported expression type: %T", e)
}

// accumulate registers an aggregate in the $group stage.
func (b *Builder) accumulate(fc expr.FunctionCall, alias string) (any, error) {
	if !b.grouped() {
		return nil, queryir.NewUnsupportedFunctionError(fc.Spec.Name,
			fmt.Sprintf("%s requires a GROUPBY clause", fc.Spec.Name), Target)
	}
	key := expr.Format(fc)
	if name, ok := b.aggs[key]; ok {
		return "$" + name, nil
	}

	var acc bson.D
	if _, star := fc.Args[0].(expr.Star); star {
		acc = bson.D{{Key: "$sum", Value: int64(1)}}
	} else {
		arg, err := b.inline(fc.Args[0], phasePre)
		if err != nil {
			return nil, err
		}
		switch fc.Spec.Name {
		case "COUNT":
			acc = bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				isNullExpr(arg), int64(0), int64(1),
			}}}}}
		case "SUM":
			acc = bson.D{{Key: "$sum", Value: arg}}
		case "AVG":
			acc = bson.D{{Key: "$avg", Value: arg}}
		case "MIN":
			acc = bson.D{{Key: "$min", Value: arg}}
		case "MAX":
			acc = bson.D{{Key: "$max", Value: arg}}
		}
	}

	name := b.nextName(fc.Spec.Name, alias)
	b.aggs[key] = name
	b.accumulators = append(b.accumulators, bson.E{Key: name, Value: acc})
	return "$" + name, nil
}

// registerGroupKeys builds the $group _id and the stage that re-exposes
// its members. Column keys come back under their own path; computed keys
// under a hoisted name.
func (b *Builder) registerGroupKeys() error {
	for _, g := range b.q.GroupBy {
		e, err := expr.Classify(g)
		if err != nil {
			return err
		}
		switch v := e.(type) {
		case expr.ColumnRef:
			path := b.fieldPath(v.Table, v.Column)
			key := strings.ReplaceAll(path, ".", "_")
			b.groupID = append(b.groupID, bson.E{Key: key, Value: "$" + path})
			b.exposed = append(b.exposed, bson.E{Key: path, Value: "$_id." + key})
		default:
			value, err := b.inline(e, phasePre)
			if err != nil {
				return err
			}
			name := expr.OutputName(e)
			if fc, ok := e.(expr.FunctionCall); ok {
				name = b.nextName(fc.Spec.Name, "")
			}
			b.groupKeys[expr.Format(e)] = name
			b.groupID = append(b.groupID, bson.E{Key: name, Value: value})
			b.exposed = append(b.exposed, bson.E{Key: name, Value: "$_id." + name})
		}
	}
	return nil
}

// projection is the $project document plus the source field behind each
// output key, used to decide where sorting can happen.
type projection struct {
	doc     bson.D
	star    bool
	sources []projected
}

type projected struct {
	out    string // output key
	source string // field it reads
}

func (b *Builder) projection() (projection, error) {
	var p projection
	if b.q.IsStar() {
		p.star = true
		p.doc = bson.D{{Key: "_id", Value: int64(0)}}
		return p, nil
	}

	keepID := false
	ph := b.outputPhase()
	for _, col := range b.q.Columns {
		e, err := expr.Classify(col.Expression)
		if err != nil {
			return projection{}, err
		}
		value, err := b.Resolve(e, col.Alias, ph)
		if err != nil {
			return projection{}, err
		}
		ref, isRef := value.(string)
		isRef = isRef && strings.HasPrefix(ref, "$")

		key := col.Alias
		if key == "" {
			key = expr.OutputName(e)
			if isRef && !isColumn(e) {
				key = visibleName(ref)
			}
		}
		if key == "_id" {
			keepID = true
		}
		switch {
		case !isRef:
			if d, ok := value.(bson.D); !ok || len(d) != 1 || d[0].Key != "$literal" {
				value = bson.D{{Key: "$literal", Value: value}}
			}
			p.doc = append(p.doc, bson.E{Key: key, Value: value})
		case strings.TrimPrefix(ref, "$") == key:
			p.doc = append(p.doc, bson.E{Key: key, Value: int64(1)})
		default:
			p.doc = append(p.doc, bson.E{Key: key, Value: value})
		}
		if isRef {
			p.sources = append(p.sources, projected{out: key, source: strings.TrimPrefix(ref, "$")})
		}
	}
	if !keepID {
		p.doc = append(bson.D{{Key: "_id", Value: int64(0)}}, p.doc...)
	}
	return p, nil
}

// visibleName is the output name of a field reference.
func visibleName(ref string) string {
	return strings.TrimPrefix(strings.TrimPrefix(ref, "$"), hiddenPrefix)
}

func isColumn(e expr.Expr) bool {
	_, ok := e.(expr.ColumnRef)
	return ok
}

// sortKeys resolves ORDERBY. sortBefore is set when any key reads a field
// the projection does not carry through under the same name, in which
// case sorting happens on source fields ahead of $project.
func (b *Builder) sortKeys(p projection) (bson.D, bool, error) {
	type key struct {
		field string
		dir   int64
	}
	var keys []key
	for _, o := range b.q.OrderBy {
		text := o.Column
		alias := ""
		for _, col := range b.q.Columns {
			if col.Alias != "" && col.Alias == o.Column {
				text, alias = col.Expression, col.Alias
			}
		}
		e, err := expr.Classify(text)
		if err != nil {
			return nil, false, err
		}
		value, err := b.Resolve(e, alias, b.outputPhase())
		if err != nil {
			return nil, false, err
		}
		ref, ok := value.(string)
		if !ok || !strings.HasPrefix(ref, "$") {
			return nil, false, queryir.NewRenderError("ORDERBY requires a column or expression", Target)
		}
		dir := int64(1)
		if o.Descending {
			dir = -1
		}
		keys = append(keys, key{field: strings.TrimPrefix(ref, "$"), dir: dir})
	}

	before := false
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		outKey, ok := projectedAs(p, k.field)
		if !ok {
			before = true
			break
		}
		out = append(out, bson.E{Key: outKey, Value: k.dir})
	}
	if before {
		out = out[:0]
		for _, k := range keys {
			out = append(out, bson.E{Key: k.field, Value: k.dir})
		}
	}
	return out, before, nil
}

// projectedAs finds the output key carrying field after $project.
func projectedAs(p projection, field string) (string, bool) {
	if p.star {
		return field, field != "_id"
	}
	for _, s := range p.sources {
		if s.source == field && s.out == field {
			return field, true
		}
	}
	for _, s := range p.sources {
		if s.source == field {
			return s.out, true
		}
	}
	return "", false
}
