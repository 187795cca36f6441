package parser

import (
	"fmt"
	"strings"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/scan"
)

// keywordOperators lists the word operators. Negated forms come first so
// that a tie on start offset resolves to the longer match.
var keywordOperators = []struct {
	word string
	op   queryir.Operator
}{
	{"NOT BETWEEN", queryir.NotBetween},
	{"BETWEEN", queryir.Between},
	{"NOT IN", queryir.NotIn},
	{"IN", queryir.In},
	{"NOT ILIKE", queryir.NotILike},
	{"ILIKE", queryir.ILike},
	{"NOT LIKE", queryir.NotLike},
	{"LIKE", queryir.Like},
	{"NOT ICONTAINS", queryir.NotIContains},
	{"ICONTAINS", queryir.IContains},
	{"NOT CONTAINS", queryir.NotContains},
	{"CONTAINS", queryir.Contains},
	{"NOT IBEGINSWITH", queryir.NotIBeginsWith},
	{"IBEGINSWITH", queryir.IBeginsWith},
	{"NOT BEGINSWITH", queryir.NotBeginsWith},
	{"BEGINSWITH", queryir.BeginsWith},
	{"NOT IENDSWITH", queryir.NotIEndsWith},
	{"IENDSWITH", queryir.IEndsWith},
	{"NOT ENDSWITH", queryir.NotEndsWith},
	{"ENDSWITH", queryir.EndsWith},
}

var symbolOperators = map[string]queryir.Operator{
	"=":  queryir.Eq,
	"!=": queryir.Neq,
	"<>": queryir.Neq,
	"<":  queryir.Lt,
	"<=": queryir.Lte,
	">":  queryir.Gt,
	">=": queryir.Gte,
}

type operatorMatch struct {
	op         queryir.Operator
	start, end int
}

// parseCondition parses a single leaf: "col IS [NOT] NULL" or
// "col <op> rhs".
func parseCondition(s, table string) (*queryir.Condition, error) {
	s = strings.TrimSpace(s)

	if col, op, ok := cutNullSuffix(s); ok {
		column, err := conditionColumn(col, s, table)
		if err != nil {
			return nil, err
		}
		return &queryir.Condition{Column: column, Operator: op}, nil
	}

	m, ok := findOperator(s)
	if !ok {
		return nil, queryir.NewSyntaxError("cannot parse condition: no comparison operator", s)
	}
	column, err := conditionColumn(s[:m.start], s, table)
	if err != nil {
		return nil, err
	}
	rhs := strings.TrimSpace(s[m.end:])
	if rhs == "" {
		return nil, queryir.NewSyntaxError("cannot parse condition: missing value", s)
	}

	cond := &queryir.Condition{Column: column, Operator: m.op}
	switch m.op {
	case queryir.In, queryir.NotIn:
		items := scan.SplitTopLevel(scan.StripParens(rhs), ',')
		if len(items) == 0 {
			return nil, queryir.NewSyntaxError(fmt.Sprintf("%s requires at least one value", m.op), s)
		}
		for i, item := range items {
			v, quoted := scan.Unquote(item)
			cond.Values = append(cond.Values, v)
			if i == 0 {
				cond.Quoted = quoted
			}
		}
	case queryir.Between, queryir.NotBetween:
		andStart, andEnd := scan.FindKeyword(rhs, "AND", 0)
		if andStart < 0 {
			return nil, queryir.NewSyntaxError(fmt.Sprintf("%s requires 'lo AND hi'", m.op), s)
		}
		lo, loQuoted := scan.Unquote(strings.TrimSpace(rhs[:andStart]))
		hi, _ := scan.Unquote(strings.TrimSpace(rhs[andEnd:]))
		if lo == "" || hi == "" {
			return nil, queryir.NewSyntaxError(fmt.Sprintf("%s requires 'lo AND hi'", m.op), s)
		}
		cond.Values = []string{lo, hi}
		cond.Quoted = loQuoted
	default:
		value, quoted := scan.Unquote(rhs)
		if !quoted && strings.EqualFold(value, "NULL") {
			switch m.op {
			case queryir.Eq:
				return &queryir.Condition{Column: column, Operator: queryir.IsNull}, nil
			case queryir.Neq:
				return &queryir.Condition{Column: column, Operator: queryir.IsNotNull}, nil
			default:
				return nil, queryir.NewSyntaxError(fmt.Sprintf("NULL cannot be compared with %s", m.op), s)
			}
		}
		cond.Value = value
		cond.Quoted = quoted
	}
	return cond, nil
}

func cutNullSuffix(s string) (string, queryir.Operator, bool) {
	for _, suffix := range []struct {
		kw string
		op queryir.Operator
	}{
		{"IS NOT NULL", queryir.IsNotNull},
		{"IS NULL", queryir.IsNull},
	} {
		for from := 0; ; {
			start, end := scan.FindKeyword(s, suffix.kw, from)
			if start < 0 {
				break
			}
			if strings.TrimSpace(s[end:]) == "" {
				return s[:start], suffix.op, true
			}
			from = end
		}
	}
	return "", 0, false
}

// findOperator returns the earliest top-level operator in s, preferring
// the longest on a tie.
func findOperator(s string) (operatorMatch, bool) {
	best := operatorMatch{start: -1}
	consider := func(m operatorMatch) {
		if best.start < 0 || m.start < best.start || (m.start == best.start && m.end > best.end) {
			best = m
		}
	}

	for _, kw := range keywordOperators {
		if start, end := scan.FindKeyword(s, kw.word, 0); start >= 0 {
			consider(operatorMatch{op: kw.op, start: start, end: end})
		}
	}
	if m, ok := findSymbolOperator(s); ok {
		consider(m)
	}
	return best, best.start >= 0
}

func findSymbolOperator(s string) (operatorMatch, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\'':
			if end := scan.FindClosingQuote(s, i); end >= 0 {
				i = end
			}
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			continue
		}
		if depth != 0 || !strings.ContainsRune("=<>!", rune(c)) {
			continue
		}
		if i+1 < len(s) {
			if op, ok := symbolOperators[s[i:i+2]]; ok {
				return operatorMatch{op: op, start: i, end: i + 2}, true
			}
		}
		if op, ok := symbolOperators[s[i:i+1]]; ok {
			return operatorMatch{op: op, start: i, end: i + 1}, true
		}
		return operatorMatch{}, false
	}
	return operatorMatch{}, false
}

// conditionColumn qualifies and validates the left-hand side of a
// condition.
func conditionColumn(lhs, condition, table string) (string, error) {
	lhs = strings.TrimSpace(lhs)
	if lhs == "" {
		return "", queryir.NewSyntaxError("cannot parse condition: missing column", condition)
	}
	qualified := expr.Qualify(lhs, table)
	if _, err := expr.Classify(qualified); err != nil {
		return "", err
	}
	return qualified, nil
}
