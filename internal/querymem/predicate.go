package querymem

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
)

// predicate reports whether a scope satisfies a filter.
type predicate func(*scope) (bool, error)

func always(*scope) (bool, error) { return true, nil }

// compilePredicate builds the predicate for a filter tree once, so
// patterns are compiled a single time per query. A nil tree accepts
// everything.
func compilePredicate(node queryir.FilterNode) (predicate, error) {
	switch n := node.(type) {
	case nil:
		return always, nil
	case *queryir.Condition:
		return compileCondition(n)
	case *queryir.Logical:
		left, err := compilePredicate(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := compilePredicate(n.Right)
		if err != nil {
			return nil, err
		}
		if n.Op == queryir.And {
			return func(s *scope) (bool, error) {
				ok, err := left(s)
				if err != nil || !ok {
					return false, err
				}
				return right(s)
			}, nil
		}
		return func(s *scope) (bool, error) {
			ok, err := left(s)
			if err != nil || ok {
				return ok, err
			}
			return right(s)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported filter node: %T", node)
	}
}

func compileCondition(c *queryir.Condition) (predicate, error) {
	lhs, err := expr.Classify(c.Column)
	if err != nil {
		return nil, err
	}
	test, err := valueTest(c)
	if err != nil {
		return nil, err
	}
	return func(s *scope) (bool, error) {
		v, err := s.eval(lhs)
		if err != nil {
			return false, err
		}
		if v == nil {
			return c.Operator == queryir.IsNull, nil
		}
		return test(v), nil
	}, nil
}

// valueTest returns the test for a non-null left-hand side.
func valueTest(c *queryir.Condition) (func(any) bool, error) {
	switch c.Operator {
	case queryir.Eq:
		return func(v any) bool { return compareText(v, c.Value) == 0 }, nil
	case queryir.Neq:
		return func(v any) bool { return compareText(v, c.Value) != 0 }, nil
	case queryir.Lt:
		return func(v any) bool { return compareText(v, c.Value) < 0 }, nil
	case queryir.Lte:
		return func(v any) bool { return compareText(v, c.Value) <= 0 }, nil
	case queryir.Gt:
		return func(v any) bool { return compareText(v, c.Value) > 0 }, nil
	case queryir.Gte:
		return func(v any) bool { return compareText(v, c.Value) >= 0 }, nil
	case queryir.IsNull:
		return func(any) bool { return false }, nil
	case queryir.IsNotNull:
		return func(any) bool { return true }, nil
	case queryir.In, queryir.NotIn:
		want := c.Operator == queryir.In
		return func(v any) bool { return inList(v, c.Values) == want }, nil
	case queryir.Between, queryir.NotBetween:
		if len(c.Values) != 2 {
			return nil, queryir.NewRenderError(c.Operator.String()+" requires two bounds", Target)
		}
		want := c.Operator == queryir.Between
		return func(v any) bool {
			in := compareText(v, c.Values[0]) >= 0 && compareText(v, c.Values[1]) <= 0
			return in == want
		}, nil
	}

	kind, fold, negated := c.Operator.Match()
	var match func(string) bool
	switch kind {
	case queryir.MatchPattern:
		pattern := "(?s)" + queryir.MatchRegex(kind, c.Value)
		if fold {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, queryir.NewRenderError(fmt.Sprintf("invalid pattern %q: %v", c.Value, err), Target)
		}
		match = re.MatchString
	case queryir.MatchContains, queryir.MatchPrefix, queryir.MatchSuffix:
		match = substringTest(kind, fold, c.Value)
	default:
		return nil, queryir.NewUnsupportedOperatorError(c.Operator.String(), Target)
	}
	return func(v any) bool { return match(toText(v)) != negated }, nil
}

func substringTest(kind queryir.MatchKind, fold bool, value string) func(string) bool {
	test := strings.Contains
	switch kind {
	case queryir.MatchPrefix:
		test = strings.HasPrefix
	case queryir.MatchSuffix:
		test = strings.HasSuffix
	}
	if !fold {
		return func(s string) bool { return test(s, value) }
	}
	folded := foldString(value)
	return func(s string) bool { return test(foldString(s), folded) }
}

func inList(v any, values []string) bool {
	for _, item := range values {
		if a, ok := toNumber(v); ok {
			if b, ok := toNumber(item); ok {
				if a == b {
					return true
				}
				continue
			}
		}
		if equalFold(toText(v), item) {
			return true
		}
	}
	return false
}
