package querymem

import (
	"cmp"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"

	"github.com/roach88/triql/internal/expr"
)

const textLayout = "2006-01-02 15:04:05"

// toNumber reads v as a number. Strings must look numeric; booleans and
// dates are never numbers.
func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil, bool, time.Time:
		return 0, false
	case string:
		if !expr.IsNumeric(x) {
			return 0, false
		}
	case []byte:
		if !expr.IsNumeric(string(x)) {
			return 0, false
		}
		v = string(x)
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

// toText renders v for lexicographic comparison and string functions.
func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(textLayout)
	case []byte:
		return string(x)
	}
	return cast.ToString(v)
}

// toTime reads v as a point in time.
func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, true
	case string:
		return expr.ParseDate(x)
	}
	t, err := cast.ToTimeE(v)
	return t, err == nil
}

// compareText compares a value against a condition's right-hand side.
func compareText(v any, text string) int {
	if t, ok := v.(time.Time); ok {
		if rt, ok := expr.ParseDate(text); ok {
			return t.Compare(rt)
		}
	}
	if a, ok := toNumber(v); ok {
		if b, ok := toNumber(text); ok {
			return cmp.Compare(a, b)
		}
	}
	return strings.Compare(toText(v), text)
}

// compareValues orders two computed values. Null sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return cmp.Compare(x, y)
		}
	}
	return strings.Compare(toText(a), toText(b))
}

// equalFold compares ordinally, ignoring case.
func equalFold(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

func foldString(s string) string {
	return cases.Fold().String(s)
}
