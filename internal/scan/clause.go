package scan

import (
	"fmt"
	"strings"

	"github.com/roach88/triql/internal/queryir"
)

// Clause is a keyword followed by its body, e.g. FILTER(age > 18).
type Clause struct {
	Keyword string
	Body    string
	Start   int // offset of the keyword
	End     int // offset just past the body (or closing paren)
}

// FindClause locates the single top-level occurrence of keyword followed by
// a parenthesized body. With bare set, a keyword followed by a plain word
// (FROM users) is accepted too.
//
// Occurrences not followed by a body are skipped, so FindClause(s, "FETCH")
// does not match the FETCH of "FETCH DISTINCT(...)". A second occurrence is a
// syntax error.
func FindClause(s, keyword string, bare bool) (Clause, bool, error) {
	first, found, err := findClauseFrom(s, keyword, bare, 0)
	if err != nil || !found {
		return Clause{}, false, err
	}
	if dup, again, err := findClauseFrom(s, keyword, bare, first.End); err != nil {
		return Clause{}, false, err
	} else if again {
		return Clause{}, false, queryir.NewSyntaxError(
			fmt.Sprintf("duplicate %s clause", strings.ToUpper(keyword)), fragment(s, dup.Start))
	}
	return first, true, nil
}

func findClauseFrom(s, keyword string, bare bool, from int) (Clause, bool, error) {
	for {
		start, end := FindKeyword(s, keyword, from)
		if start < 0 {
			return Clause{}, false, nil
		}
		j := end
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j < len(s) && s[j] == '(' {
			closeIdx := FindMatchingClose(s, j)
			if closeIdx < 0 {
				return Clause{}, false, queryir.NewSyntaxError(
					fmt.Sprintf("unbalanced parentheses in %s clause", strings.ToUpper(keyword)), fragment(s, start))
			}
			return Clause{
				Keyword: keyword,
				Body:    strings.TrimSpace(s[j+1 : closeIdx]),
				Start:   start,
				End:     closeIdx + 1,
			}, true, nil
		}
		if bare && j < len(s) && j > end {
			k := j
			for k < len(s) && !isSpace(s[k]) {
				k++
			}
			return Clause{Keyword: keyword, Body: s[j:k], Start: start, End: k}, true, nil
		}
		from = end
	}
}
