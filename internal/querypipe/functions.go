package querypipe

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

var monthNames = bson.A{"", "January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

// $dayOfWeek is 1 for Sunday.
var weekdayNames = bson.A{"", "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

var unaryOps = map[string]string{
	"ABS":   "$abs",
	"CEIL":  "$ceil",
	"FLOOR": "$floor",
	"SQRT":  "$sqrt",
	"EXP":   "$exp",
	"LOG10": "$log10",
	"UPPER": "$toUpper",
	"LOWER": "$toLower",
}

var msPerUnit = map[expr.DatePart]int64{
	expr.PartHour:   3600000,
	expr.PartMinute: 60000,
	expr.PartSecond: 1000,
}

func op(name string, value any) bson.D {
	return bson.D{{Key: name, Value: value}}
}

// translate renders a non-aggregate call as an aggregation expression.
// Arguments are inlined; nested aggregates resolve to accumulators.
func (b *Builder) translate(fc expr.FunctionCall, ph phase) (any, error) {
	name := fc.Spec.Name
	var part expr.DatePart
	args := make([]any, 0, len(fc.Args))
	for i, a := range fc.Args {
		if i == 0 && (name == "DATEADD" || name == "DATEDIFF" || name == "DATENAME") {
			part = expr.DatePart(a.(expr.Literal).Value.(string))
			continue
		}
		v, err := b.inline(a, ph)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	if mongoOp, ok := unaryOps[name]; ok {
		return op(mongoOp, args[0]), nil
	}

	switch name {
	case "ROUND":
		var places any
		if len(args) == 2 {
			places = args[1]
		}
		return roundHalfAway(args[0], places), nil
	case "POWER":
		return op("$pow", bson.A{args[0], args[1]}), nil
	case "MOD":
		return op("$mod", bson.A{args[0], args[1]}), nil
	case "LOG":
		if len(args) == 1 {
			return op("$ln", args[0]), nil
		}
		return op("$log", bson.A{args[0], args[1]}), nil

	case "LENGTH":
		return nullGuard(args[0], op("$strLenCP", args[0])), nil
	case "SUBSTRING":
		return substring(args), nil
	case "CONCAT":
		parts := make(bson.A, len(args))
		for i, a := range args {
			if l, ok := fc.Args[i].(expr.Literal); ok && l.Kind == expr.KindString {
				parts[i] = a
				continue
			}
			parts[i] = op("$ifNull", bson.A{op("$toString", a), ""})
		}
		return op("$concat", parts), nil
	case "TRIM", "LTRIM", "RTRIM":
		return op("$"+strings.ToLower(name), bson.D{{Key: "input", Value: args[0]}}), nil
	case "REPLACE":
		return op("$replaceAll", bson.D{
			{Key: "input", Value: args[0]},
			{Key: "find", Value: args[1]},
			{Key: "replacement", Value: args[2]},
		}), nil
	case "INDEXOF":
		return op("$indexOfCP", bson.A(args)), nil
	case "REVERSE":
		return nullGuard(args[0], reverse(args[0])), nil

	case "COALESCE":
		return op("$ifNull", bson.A(args)), nil

	case "NOW":
		return "$$NOW", nil
	case "TODAY":
		d := bson.D{{Key: "date", Value: "$$NOW"}, {Key: "unit", Value: "day"}}
		if len(args) == 1 {
			d = append(d, bson.E{Key: "timezone", Value: args[0]})
		}
		return op("$dateTrunc", d), nil
	case "TIME":
		d := bson.D{{Key: "format", Value: "%H:%M:%S"}, {Key: "date", Value: "$$NOW"}}
		if len(args) == 1 {
			d = append(d, bson.E{Key: "timezone", Value: args[0]})
		}
		return op("$dateToString", d), nil
	case "DATEADD":
		if part == expr.PartWeekday {
			return nil, queryir.NewUnsupportedFunctionError(name, "DATEADD does not support weekday", Target)
		}
		return op("$dateAdd", bson.D{
			{Key: "startDate", Value: toDate(args[1])},
			{Key: "unit", Value: string(part)},
			{Key: "amount", Value: args[0]},
		}), nil
	case "DATEDIFF":
		return dateDiff(part, toDate(args[0]), toDate(args[1]))
	case "DATENAME":
		return dateName(part, toDate(args[0])), nil
	case "DAY":
		return op("$dayOfMonth", toDate(args[0])), nil
	case "MONTH":
		return op("$month", toDate(args[0])), nil
	case "YEAR":
		return op("$year", toDate(args[0])), nil
	}
	return nil, queryir.NewUnsupportedFunctionError(name,
		fmt.Sprintf("%s has no pipeline translation", name), Target)
}

// roundHalfAway rounds x half away from zero. $round rounds half to even,
// which disagrees with SQL ROUND and the interpreter at .5. A nil places
// means zero.
func roundHalfAway(x, places any) bson.D {
	half := op("$cond", bson.A{op("$gte", bson.A{"$$x", int64(0)}), 0.5, -0.5})
	var in bson.D
	switch p := places.(type) {
	case nil:
		in = op("$trunc", op("$add", bson.A{"$$x", half}))
	case int64:
		scale := math.Pow10(int(p))
		in = op("$divide", bson.A{
			op("$trunc", op("$add", bson.A{op("$multiply", bson.A{"$$x", scale}), half})),
			scale,
		})
	default:
		scale := op("$pow", bson.A{int64(10), p})
		in = op("$divide", bson.A{
			op("$trunc", op("$add", bson.A{op("$multiply", bson.A{"$$x", scale}), half})),
			scale,
		})
	}
	return op("$let", bson.D{
		{Key: "vars", Value: bson.D{{Key: "x", Value: x}}},
		{Key: "in", Value: in},
	})
}

// substring converts the 1-based SUBSTRING to $substrCP, which is 0-based
// and always takes a length.
func substring(args []any) bson.D {
	var start any
	if n, ok := args[1].(int64); ok {
		start = n - 1
	} else {
		start = op("$subtract", bson.A{args[1], int64(1)})
	}
	length := any(op("$strLenCP", op("$ifNull", bson.A{args[0], ""})))
	if len(args) == 3 {
		length = args[2]
	}
	return op("$substrCP", bson.A{args[0], start, length})
}

// reverse folds the code points of s back to front.
func reverse(s any) bson.D {
	return op("$reduce", bson.D{
		{Key: "input", Value: op("$range", bson.A{int64(0), op("$strLenCP", s)})},
		{Key: "initialValue", Value: ""},
		{Key: "in", Value: op("$concat", bson.A{
			op("$substrCP", bson.A{s, "$$this", int64(1)}),
			"$$value",
		})},
	})
}

// dateDiff counts calendar boundaries for year, month and day and whole
// elapsed units for hour, minute and second.
func dateDiff(part expr.DatePart, start, end any) (any, error) {
	if part == expr.PartWeekday {
		return nil, queryir.NewUnsupportedFunctionError("DATEDIFF", "DATEDIFF does not support weekday", Target)
	}
	if ms, ok := msPerUnit[part]; ok {
		return op("$trunc", op("$divide", bson.A{op("$subtract", bson.A{end, start}), ms})), nil
	}
	return op("$dateDiff", bson.D{
		{Key: "startDate", Value: start},
		{Key: "endDate", Value: end},
		{Key: "unit", Value: string(part)},
	}), nil
}

func dateName(part expr.DatePart, d any) bson.D {
	switch part {
	case expr.PartMonth:
		return op("$arrayElemAt", bson.A{monthNames, op("$month", d)})
	case expr.PartWeekday:
		return op("$arrayElemAt", bson.A{weekdayNames, op("$dayOfWeek", d)})
	}
	extract := map[expr.DatePart]string{
		expr.PartYear:   "$year",
		expr.PartDay:    "$dayOfMonth",
		expr.PartHour:   "$hour",
		expr.PartMinute: "$minute",
		expr.PartSecond: "$second",
	}[part]
	return op("$toString", op(extract, d))
}

// toDate leaves date constants alone and converts everything else.
func toDate(v any) any {
	if _, ok := v.(time.Time); ok {
		return v
	}
	return op("$toDate", v)
}

// nullGuard yields null when v is null instead of evaluating then, for
// operators that reject null input.
func nullGuard(v any, then bson.D) bson.D {
	return op("$cond", bson.A{isNullExpr(v), nil, then})
}

// isNullExpr is true when v is null or missing.
func isNullExpr(v any) bson.D {
	return op("$eq", bson.A{op("$ifNull", bson.A{v, nil}), nil})
}

// literalValue converts a classified literal to its BSON value. Strings
// that would read as field paths are wrapped in $literal.
func literalValue(l expr.Literal) any {
	if s, ok := l.Value.(string); ok && strings.HasPrefix(s, "$") {
		return op("$literal", s)
	}
	return l.Value
}
