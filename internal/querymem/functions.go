package querymem

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

// Call evaluates a scalar catalog function by canonical name. Except for
// CONCAT and COALESCE, a null argument yields null. Date-part arguments
// are passed as their normalized names ("month", "day", ...).
func Call(name string, args []any, now time.Time) (any, error) {
	switch name {
	case "CONCAT":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(toText(a))
		}
		return b.String(), nil
	case "COALESCE":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	case "NOW", "TODAY", "TIME":
		return current(name, args, now)
	}
	for _, a := range args {
		if a == nil {
			return nil, nil
		}
	}

	switch name {
	case "ABS", "CEIL", "FLOOR", "ROUND", "SQRT", "POWER", "MOD", "EXP", "LOG", "LOG10":
		return numeric(name, args)
	case "LENGTH":
		return int64(utf8.RuneCountInString(toText(args[0]))), nil
	case "SUBSTRING":
		return substring(args)
	case "UPPER":
		return strings.ToUpper(toText(args[0])), nil
	case "LOWER":
		return strings.ToLower(toText(args[0])), nil
	case "TRIM":
		return strings.Trim(toText(args[0]), " "), nil
	case "LTRIM":
		return strings.TrimLeft(toText(args[0]), " "), nil
	case "RTRIM":
		return strings.TrimRight(toText(args[0]), " "), nil
	case "REPLACE":
		s, find := toText(args[0]), toText(args[1])
		if find == "" {
			return s, nil
		}
		return strings.ReplaceAll(s, find, toText(args[2])), nil
	case "INDEXOF":
		return indexOf(args)
	case "REVERSE":
		r := []rune(toText(args[0]))
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r), nil
	case "DATEADD":
		return dateAdd(expr.DatePart(toText(args[0])), args[1], args[2])
	case "DATEDIFF":
		return dateDiff(expr.DatePart(toText(args[0])), args[1], args[2])
	case "DATENAME":
		return dateName(expr.DatePart(toText(args[0])), args[1])
	case "DAY", "MONTH", "YEAR":
		t, ok := toTime(args[0])
		if !ok {
			return nil, nil
		}
		switch name {
		case "DAY":
			return int64(t.Day()), nil
		case "MONTH":
			return int64(t.Month()), nil
		}
		return int64(t.Year()), nil
	}
	return nil, queryir.NewUnsupportedFunctionError(name, fmt.Sprintf("%s is not supported in memory", name), Target)
}

func numeric(name string, args []any) (any, error) {
	nums := make([]float64, len(args))
	for i, a := range args {
		n, ok := toNumber(a)
		if !ok {
			return nil, nil
		}
		nums[i] = n
	}
	x := nums[0]
	switch name {
	case "ABS":
		if i, ok := args[0].(int64); ok {
			if i < 0 {
				return -i, nil
			}
			return i, nil
		}
		return math.Abs(x), nil
	case "CEIL":
		return math.Ceil(x), nil
	case "FLOOR":
		return math.Floor(x), nil
	case "ROUND":
		places := 0.0
		if len(nums) == 2 {
			places = nums[1]
		}
		if places < 0 {
			scale := math.Pow(10, -places)
			return math.Round(x/scale) * scale, nil
		}
		scale := math.Pow(10, places)
		return math.Round(x*scale) / scale, nil
	case "SQRT":
		return math.Sqrt(x), nil
	case "POWER":
		return math.Pow(x, nums[1]), nil
	case "MOD":
		if nums[1] == 0 {
			return nil, nil
		}
		a, aok := cast.ToInt64E(args[0])
		b, bok := cast.ToInt64E(args[1])
		if aok == nil && bok == nil && float64(a) == x && float64(b) == nums[1] {
			return a % b, nil
		}
		return math.Mod(x, nums[1]), nil
	case "EXP":
		return math.Exp(x), nil
	case "LOG":
		if len(nums) == 2 {
			return math.Log(x) / math.Log(nums[1]), nil
		}
		return math.Log(x), nil
	case "LOG10":
		return math.Log10(x), nil
	}
	return nil, queryir.NewUnsupportedFunctionError(name, fmt.Sprintf("%s is not numeric", name), Target)
}

// substring is 1-based over code points. A start before the first
// character shortens the requested length accordingly.
func substring(args []any) (any, error) {
	r := []rune(toText(args[0]))
	start, err := cast.ToInt64E(args[1])
	if err != nil {
		return nil, nil
	}
	end := int64(len(r)) + 1
	if len(args) == 3 {
		n, err := cast.ToInt64E(args[2])
		if err != nil {
			return nil, nil
		}
		end = start + n
	}
	if start < 1 {
		start = 1
	}
	if end > int64(len(r))+1 {
		end = int64(len(r)) + 1
	}
	if start >= end {
		return "", nil
	}
	return string(r[start-1 : end-1]), nil
}

// indexOf is 0-based over code points and returns -1 when absent. The
// optional third argument is the 0-based position to search from.
func indexOf(args []any) (any, error) {
	r := []rune(toText(args[0]))
	sub := toText(args[1])
	from := int64(0)
	if len(args) == 3 {
		n, err := cast.ToInt64E(args[2])
		if err != nil {
			return nil, nil
		}
		from = max(n, 0)
	}
	if from > int64(len(r)) {
		return int64(-1), nil
	}
	i := strings.Index(string(r[from:]), sub)
	if i < 0 {
		return int64(-1), nil
	}
	return from + int64(utf8.RuneCountInString(string(r[from:])[:i])), nil
}

func current(name string, args []any, now time.Time) (any, error) {
	if len(args) == 1 && args[0] != nil {
		loc, err := time.LoadLocation(toText(args[0]))
		if err != nil {
			return nil, queryir.NewUnsupportedFunctionError(name,
				fmt.Sprintf("%s: unknown time zone %s", name, toText(args[0])), Target)
		}
		now = now.In(loc)
	}
	switch name {
	case "TODAY":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case "TIME":
		return now.Format("15:04:05"), nil
	}
	return now, nil
}

func dateAdd(part expr.DatePart, amount, date any) (any, error) {
	t, ok := toTime(date)
	if !ok {
		return nil, nil
	}
	n, err := cast.ToIntE(amount)
	if err != nil {
		return nil, nil
	}
	switch part {
	case expr.PartYear:
		return t.AddDate(n, 0, 0), nil
	case expr.PartMonth:
		return t.AddDate(0, n, 0), nil
	case expr.PartDay:
		return t.AddDate(0, 0, n), nil
	case expr.PartHour:
		return t.Add(time.Duration(n) * time.Hour), nil
	case expr.PartMinute:
		return t.Add(time.Duration(n) * time.Minute), nil
	case expr.PartSecond:
		return t.Add(time.Duration(n) * time.Second), nil
	}
	return nil, queryir.NewUnsupportedFunctionError("DATEADD", "DATEADD does not support "+string(part), Target)
}

// dateDiff counts calendar boundaries for year, month and day and whole
// elapsed units for hour, minute and second.
func dateDiff(part expr.DatePart, from, to any) (any, error) {
	a, ok := toTime(from)
	if !ok {
		return nil, nil
	}
	b, ok := toTime(to)
	if !ok {
		return nil, nil
	}
	switch part {
	case expr.PartYear:
		return int64(b.Year() - a.Year()), nil
	case expr.PartMonth:
		return int64((b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())), nil
	case expr.PartDay:
		return civilDay(b) - civilDay(a), nil
	case expr.PartHour:
		return int64(b.Sub(a) / time.Hour), nil
	case expr.PartMinute:
		return int64(b.Sub(a) / time.Minute), nil
	case expr.PartSecond:
		return int64(b.Sub(a) / time.Second), nil
	}
	return nil, queryir.NewUnsupportedFunctionError("DATEDIFF", "DATEDIFF does not support "+string(part), Target)
}

func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func dateName(part expr.DatePart, date any) (any, error) {
	t, ok := toTime(date)
	if !ok {
		return nil, nil
	}
	switch part {
	case expr.PartYear:
		return strconv.Itoa(t.Year()), nil
	case expr.PartMonth:
		return t.Month().String(), nil
	case expr.PartDay:
		return strconv.Itoa(t.Day()), nil
	case expr.PartHour:
		return strconv.Itoa(t.Hour()), nil
	case expr.PartMinute:
		return strconv.Itoa(t.Minute()), nil
	case expr.PartSecond:
		return strconv.Itoa(t.Second()), nil
	}
	return t.Weekday().String(), nil
}
