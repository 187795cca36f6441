package expr

import (
	"fmt"
	"strings"

	"github.com/roach88/triql/internal/queryir"
)

// Category classifies catalog functions.
type Category string

const (
	CategoryAggregate      Category = "aggregate"
	CategoryNumeric        Category = "numeric"
	CategoryString         Category = "string"
	CategoryNullCoalescing Category = "null-coalescing"
	CategoryDate           Category = "date"
)

// Unbounded marks a variadic maximum arity.
const Unbounded = -1

// FuncSpec is one entry of the shared function catalog.
//
// Name is the canonical name; aliases (CEILING, LEN, SUBSTR, IFNULL, ...)
// resolve to the same FuncSpec. Renderers map canonical names to
// target syntax; they never keep their own notion of which functions exist.
type FuncSpec struct {
	Name     string
	Category Category
	MinArgs  int
	MaxArgs  int // Unbounded for variadic
}

// IsAggregate reports whether the function is an aggregate.
func (f FuncSpec) IsAggregate() bool {
	return f.Category == CategoryAggregate
}

// CheckArity returns an UnsupportedFunctionError when n arguments do not
// satisfy the function's arity rule.
func (f FuncSpec) CheckArity(n int) error {
	if n >= f.MinArgs && (f.MaxArgs == Unbounded || n <= f.MaxArgs) {
		return nil
	}
	return queryir.NewUnsupportedFunctionError(f.Name, f.arityMessage(), "")
}

func (f FuncSpec) arityMessage() string {
	switch {
	case f.MaxArgs == Unbounded && f.MinArgs == 1:
		return fmt.Sprintf("%s requires at least 1 argument", f.Name)
	case f.MaxArgs == Unbounded:
		return fmt.Sprintf("%s requires at least %d arguments", f.Name, f.MinArgs)
	case f.MinArgs == f.MaxArgs && f.MinArgs == 1:
		return fmt.Sprintf("%s requires 1 argument", f.Name)
	case f.MinArgs == f.MaxArgs:
		return fmt.Sprintf("%s requires %d arguments", f.Name, f.MinArgs)
	case f.MaxArgs == f.MinArgs+1:
		return fmt.Sprintf("%s requires %d or %d arguments", f.Name, f.MinArgs, f.MaxArgs)
	default:
		return fmt.Sprintf("%s requires %d to %d arguments", f.Name, f.MinArgs, f.MaxArgs)
	}
}

// catalog maps every accepted (upper-cased) name to its spec. It is built
// once at package initialization and never mutated.
var catalog = buildCatalog()

func buildCatalog() map[string]FuncSpec {
	m := make(map[string]FuncSpec)
	add := func(spec FuncSpec, aliases ...string) {
		m[spec.Name] = spec
		for _, a := range aliases {
			m[a] = spec
		}
	}

	add(FuncSpec{"COUNT", CategoryAggregate, 1, 1})
	add(FuncSpec{"SUM", CategoryAggregate, 1, 1})
	add(FuncSpec{"AVG", CategoryAggregate, 1, 1})
	add(FuncSpec{"MIN", CategoryAggregate, 1, 1})
	add(FuncSpec{"MAX", CategoryAggregate, 1, 1})

	add(FuncSpec{"ABS", CategoryNumeric, 1, 1})
	add(FuncSpec{"CEIL", CategoryNumeric, 1, 1}, "CEILING")
	add(FuncSpec{"FLOOR", CategoryNumeric, 1, 1})
	add(FuncSpec{"ROUND", CategoryNumeric, 1, 2})
	add(FuncSpec{"SQRT", CategoryNumeric, 1, 1})
	add(FuncSpec{"POWER", CategoryNumeric, 2, 2})
	add(FuncSpec{"MOD", CategoryNumeric, 2, 2})
	add(FuncSpec{"EXP", CategoryNumeric, 1, 1})
	add(FuncSpec{"LOG", CategoryNumeric, 1, 2})
	add(FuncSpec{"LOG10", CategoryNumeric, 1, 1})

	add(FuncSpec{"LENGTH", CategoryString, 1, 1}, "LEN")
	add(FuncSpec{"SUBSTRING", CategoryString, 2, 3}, "SUBSTR")
	add(FuncSpec{"CONCAT", CategoryString, 1, Unbounded})
	add(FuncSpec{"UPPER", CategoryString, 1, 1})
	add(FuncSpec{"LOWER", CategoryString, 1, 1})
	add(FuncSpec{"TRIM", CategoryString, 1, 1})
	add(FuncSpec{"LTRIM", CategoryString, 1, 1})
	add(FuncSpec{"RTRIM", CategoryString, 1, 1})
	add(FuncSpec{"REPLACE", CategoryString, 3, 3})
	add(FuncSpec{"INDEXOF", CategoryString, 2, 3})
	add(FuncSpec{"REVERSE", CategoryString, 1, 1})

	add(FuncSpec{"COALESCE", CategoryNullCoalescing, 2, Unbounded}, "IFNULL", "ISNULL", "NVL")

	add(FuncSpec{"NOW", CategoryDate, 0, 1}, "GETDATE", "CURRENT_TIMESTAMP")
	add(FuncSpec{"TODAY", CategoryDate, 0, 1}, "CURRENT_DATE")
	add(FuncSpec{"TIME", CategoryDate, 0, 1}, "CURRENT_TIME")
	add(FuncSpec{"DATEADD", CategoryDate, 3, 3})
	add(FuncSpec{"DATEDIFF", CategoryDate, 3, 3})
	add(FuncSpec{"DATENAME", CategoryDate, 2, 2})
	add(FuncSpec{"DAY", CategoryDate, 1, 1})
	add(FuncSpec{"MONTH", CategoryDate, 1, 1})
	add(FuncSpec{"YEAR", CategoryDate, 1, 1})

	return m
}

// Lookup returns the catalog entry for name, case-insensitively.
func Lookup(name string) (FuncSpec, bool) {
	spec, ok := catalog[strings.ToUpper(strings.TrimSpace(name))]
	return spec, ok
}

// Names returns the canonical function names, one per catalog entry.
func Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, spec := range catalog {
		if !seen[spec.Name] {
			seen[spec.Name] = true
			names = append(names, spec.Name)
		}
	}
	return names
}

// DatePart is a unit accepted by DATEADD, DATEDIFF and DATENAME.
type DatePart string

const (
	PartYear    DatePart = "year"
	PartMonth   DatePart = "month"
	PartDay     DatePart = "day"
	PartHour    DatePart = "hour"
	PartMinute  DatePart = "minute"
	PartSecond  DatePart = "second"
	PartWeekday DatePart = "weekday"
)

// ParseDatePart normalizes a date part name, accepting the usual
// abbreviations (yy, mm, dd, hh, mi, ss, dw).
func ParseDatePart(s string) (DatePart, bool) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), "'")) {
	case "year", "yyyy", "yy":
		return PartYear, true
	case "month", "mm", "m":
		return PartMonth, true
	case "day", "dd", "d":
		return PartDay, true
	case "hour", "hh":
		return PartHour, true
	case "minute", "mi", "n":
		return PartMinute, true
	case "second", "ss", "s":
		return PartSecond, true
	case "weekday", "dw":
		return PartWeekday, true
	}
	return "", false
}
