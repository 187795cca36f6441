package querymem

import (
	"github.com/roach88/triql/internal/expr"
)

// aggregate folds an aggregate call over the scope's group. Nulls are
// skipped; SUM, AVG, MIN and MAX of no values are null.
func (s *scope) aggregate(fc expr.FunctionCall) (any, error) {
	if _, star := fc.Args[0].(expr.Star); star {
		return int64(len(s.group)), nil
	}

	values := make([]any, 0, len(s.group))
	for _, r := range s.group {
		member := &scope{row: r, now: s.now}
		v, err := member.eval(fc.Args[0])
		if err != nil {
			return nil, err
		}
		if v != nil {
			values = append(values, v)
		}
	}

	switch fc.Spec.Name {
	case "COUNT":
		return int64(len(values)), nil
	case "SUM", "AVG":
		if len(values) == 0 {
			return nil, nil
		}
		var (
			fsum    float64
			isum    int64
			allInts = true
		)
		for _, v := range values {
			n, ok := toNumber(v)
			if !ok {
				continue
			}
			fsum += n
			if i, ok := v.(int64); ok {
				isum += i
			} else {
				allInts = false
			}
		}
		if fc.Spec.Name == "AVG" {
			return fsum / float64(len(values)), nil
		}
		if allInts {
			return isum, nil
		}
		return fsum, nil
	case "MIN", "MAX":
		var best any
		for _, v := range values {
			c := compareValues(v, best)
			if best == nil || (fc.Spec.Name == "MIN" && c < 0) || (fc.Spec.Name == "MAX" && c > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, nil
}
