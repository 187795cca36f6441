package scan

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/roach88/triql/internal/queryir"
)

// Span is a substring of the scanned input with its byte offsets.
type Span struct {
	Text  string
	Start int
	End   int // exclusive
}

// FindClosingQuote returns the index of the quote closing the literal that
// opens at s[open]. Returns -1 if the literal is unterminated.
func FindClosingQuote(s string, open int) int {
	for i := open + 1; i < len(s); i++ {
		if s[i] != '\'' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			i++
			continue
		}
		return i
	}
	return -1
}

func closerFor(c byte) byte {
	switch c {
	case '(':
		return ')'
	case '[':
		return ']'
	case '{':
		return '}'
	}
	return 0
}

func isCloser(c byte) bool {
	return c == ')' || c == ']' || c == '}'
}

// FindMatchingClose returns the index of the bracket closing the one at
// s[open]. Returns -1 if s[open] is not an opening bracket or the span is
// unbalanced.
func FindMatchingClose(s string, open int) int {
	if open < 0 || open >= len(s) || closerFor(s[open]) == 0 {
		return -1
	}
	var stack []byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			end := FindClosingQuote(s, i)
			if end < 0 {
				return -1
			}
			i = end
		case closerFor(c) != 0:
			stack = append(stack, closerFor(c))
		case isCloser(c):
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// CheckBalanced verifies that every bracket in s is matched and every
// quoted literal is terminated.
func CheckBalanced(s string) error {
	var stack []int
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			end := FindClosingQuote(s, i)
			if end < 0 {
				return queryir.NewSyntaxError("unterminated string literal", fragment(s, i))
			}
			i = end
		case closerFor(c) != 0:
			stack = append(stack, i)
		case isCloser(c):
			if len(stack) == 0 {
				return queryir.NewSyntaxError(fmt.Sprintf("unbalanced parentheses: unexpected %q", c), fragment(s, i))
			}
			top := stack[len(stack)-1]
			if closerFor(s[top]) != c {
				return queryir.NewSyntaxError(fmt.Sprintf("unbalanced parentheses: %q closed by %q", s[top], c), fragment(s, top))
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return queryir.NewSyntaxError("unbalanced parentheses: missing closing bracket", fragment(s, stack[len(stack)-1]))
	}
	return nil
}

// fragment returns a short excerpt of s starting at i for error messages.
func fragment(s string, i int) string {
	const width = 24
	end := i + width
	if end > len(s) {
		end = len(s)
	}
	return s[i:end]
}

// SplitTopLevel splits s at delim, ignoring delimiters inside quoted
// literals and brackets. Parts are trimmed; empty parts are dropped.
// A whitespace delimiter splits on any run of whitespace (see Fields).
func SplitTopLevel(s string, delim byte) []string {
	if delim == ' ' || delim == '\t' || delim == '\n' {
		spans := Fields(s)
		parts := make([]string, len(spans))
		for i, sp := range spans {
			parts[i] = sp.Text
		}
		return parts
	}

	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			if end := FindClosingQuote(s, i); end >= 0 {
				i = end
			}
		case closerFor(c) != 0:
			depth++
		case isCloser(c):
			depth--
		case c == delim && depth == 0:
			if part := strings.TrimSpace(s[start:i]); part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

// Fields splits s on whitespace runs at depth zero. Quoted literals and
// bracketed spans never split.
func Fields(s string) []Span {
	var spans []Span
	depth := 0
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if depth == 0 && isSpace(c) {
			if start >= 0 {
				spans = append(spans, Span{Text: s[start:i], Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
		switch {
		case c == '\'':
			if end := FindClosingQuote(s, i); end >= 0 {
				i = end
			}
		case closerFor(c) != 0:
			depth++
		case isCloser(c):
			depth--
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Text: s[start:], Start: start, End: len(s)})
	}
	return spans
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || c == '$' || c >= 0x80 || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

// FindKeyword returns the byte range of the first occurrence of keyword in
// s at or after from, matched case-insensitively on word boundaries, outside
// quotes and at bracket depth zero. A space inside keyword matches any run
// of whitespace. Returns (-1, -1) when there is no match.
func FindKeyword(s, keyword string, from int) (int, int) {
	words := strings.Fields(keyword)
	if len(words) == 0 {
		return -1, -1
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			end := FindClosingQuote(s, i)
			if end < 0 {
				return -1, -1
			}
			i = end
			continue
		case closerFor(c) != 0:
			depth++
			continue
		case isCloser(c):
			depth--
			continue
		}
		if i < from || depth != 0 || (i > 0 && isWordByte(s[i-1])) {
			continue
		}
		if end, ok := matchWords(s, i, words); ok {
			return i, end
		}
	}
	return -1, -1
}

func matchWords(s string, i int, words []string) (int, bool) {
	pos := i
	for n, w := range words {
		if n > 0 {
			j := pos
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j == pos {
				return 0, false
			}
			pos = j
		}
		if pos+len(w) > len(s) || !strings.EqualFold(s[pos:pos+len(w)], w) {
			return 0, false
		}
		pos += len(w)
	}
	if pos < len(s) && isWordByte(s[pos]) {
		return 0, false
	}
	return pos, true
}

// Unquote strips the quotes of a single-quoted literal and undoubles
// escaped quotes. ok is false when s is not a complete quoted literal.
func Unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '\'' || FindClosingQuote(s, 0) != len(s)-1 {
		return s, false
	}
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
}

// Quote wraps s in single quotes, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// StripParens removes parentheses that enclose the whole of s, repeatedly.
func StripParens(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && s[0] == '(' && FindMatchingClose(s, 0) == len(s)-1 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
