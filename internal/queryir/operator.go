package queryir

import (
	"regexp"
	"strings"
)

// Operator is the closed set of comparison operators.
//
// Every renderer supports every Operator. Adding a value here without
// teaching querysql, querypipe and querymem about it is a bug.
type Operator int

const (
	Eq Operator = iota
	Neq
	Lt
	Lte
	Gt
	Gte
	Like
	ILike
	NotLike
	NotILike
	Contains
	IContains
	NotContains
	NotIContains
	BeginsWith
	IBeginsWith
	NotBeginsWith
	NotIBeginsWith
	EndsWith
	IEndsWith
	NotEndsWith
	NotIEndsWith
	IsNull
	IsNotNull
	In
	NotIn
	Between
	NotBetween
)

var operatorNames = [...]string{
	Eq:             "Eq",
	Neq:            "Neq",
	Lt:             "Lt",
	Lte:            "Lte",
	Gt:             "Gt",
	Gte:            "Gte",
	Like:           "Like",
	ILike:          "ILike",
	NotLike:        "NotLike",
	NotILike:       "NotILike",
	Contains:       "Contains",
	IContains:      "IContains",
	NotContains:    "NotContains",
	NotIContains:   "NotIContains",
	BeginsWith:     "BeginsWith",
	IBeginsWith:    "IBeginsWith",
	NotBeginsWith:  "NotBeginsWith",
	NotIBeginsWith: "NotIBeginsWith",
	EndsWith:       "EndsWith",
	IEndsWith:      "IEndsWith",
	NotEndsWith:    "NotEndsWith",
	NotIEndsWith:   "NotIEndsWith",
	IsNull:         "IsNull",
	IsNotNull:      "IsNotNull",
	In:             "In",
	NotIn:          "NotIn",
	Between:        "Between",
	NotBetween:     "NotBetween",
}

// Operators lists every operator in declaration order.
func Operators() []Operator {
	ops := make([]Operator, len(operatorNames))
	for i := range operatorNames {
		ops[i] = Operator(i)
	}
	return ops
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return "Operator(?)"
	}
	return operatorNames[o]
}

// Valid reports whether o is a member of the operator set.
func (o Operator) Valid() bool {
	return o >= 0 && int(o) < len(operatorNames)
}

// MatchKind groups the pattern operators by where the wildcards go.
type MatchKind int

const (
	MatchNone     MatchKind = iota
	MatchPattern            // value used verbatim as a LIKE pattern
	MatchContains           // %value%
	MatchPrefix             // value%
	MatchSuffix             // %value
)

// Match describes a pattern operator: which wildcard placement it uses,
// whether it ignores case, and whether it is negated.
// For non-pattern operators Kind is MatchNone.
func (o Operator) Match() (kind MatchKind, fold bool, negated bool) {
	switch o {
	case Like:
		return MatchPattern, false, false
	case ILike:
		return MatchPattern, true, false
	case NotLike:
		return MatchPattern, false, true
	case NotILike:
		return MatchPattern, true, true
	case Contains:
		return MatchContains, false, false
	case IContains:
		return MatchContains, true, false
	case NotContains:
		return MatchContains, false, true
	case NotIContains:
		return MatchContains, true, true
	case BeginsWith:
		return MatchPrefix, false, false
	case IBeginsWith:
		return MatchPrefix, true, false
	case NotBeginsWith:
		return MatchPrefix, false, true
	case NotIBeginsWith:
		return MatchPrefix, true, true
	case EndsWith:
		return MatchSuffix, false, false
	case IEndsWith:
		return MatchSuffix, true, false
	case NotEndsWith:
		return MatchSuffix, false, true
	case NotIEndsWith:
		return MatchSuffix, true, true
	}
	return MatchNone, false, false
}

// HasValue reports whether conditions with this operator carry a right-hand side.
func (o Operator) HasValue() bool {
	return o != IsNull && o != IsNotNull
}

// MatchRegex translates the right-hand side of a pattern operator into a
// regular expression understood by both RE2 and PCRE. LIKE patterns map
// % to .* and _ to . and are anchored at both ends; the substring kinds
// quote the value and anchor only where the wildcard is absent.
func MatchRegex(kind MatchKind, value string) string {
	switch kind {
	case MatchPattern:
		var b strings.Builder
		b.WriteByte('^')
		for _, r := range value {
			switch r {
			case '%':
				b.WriteString(".*")
			case '_':
				b.WriteByte('.')
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteByte('$')
		return b.String()
	case MatchPrefix:
		return "^" + regexp.QuoteMeta(value)
	case MatchSuffix:
		return regexp.QuoteMeta(value) + "$"
	}
	return regexp.QuoteMeta(value)
}
