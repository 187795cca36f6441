package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when two row sets differ.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome

	// Missing rows appear only in the expected set, Extra rows only in
	// the actual set.
	Missing []string
	Extra   []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s\n", e.Actual)
	for _, r := range e.Missing {
		fmt.Fprintf(&buf, "  - %s\n", r)
	}
	for _, r := range e.Extra {
		fmt.Fprintf(&buf, "  + %s\n", r)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Assertion types.
const (
	AssertSameRows     = "same_rows"
	AssertExpectedRows = "expected_rows"
	AssertCount        = "count"
	AssertError        = "error"
)

// assertSameRows compares two sorted key lists as multisets.
func assertSameRows(kind, expectedLabel, actualLabel string, expected, actual []string) error {
	missing, extra := diffMultiset(expected, actual)
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%s: %d rows", expectedLabel, len(expected)),
		Actual:   fmt.Sprintf("%s: %d rows", actualLabel, len(actual)),
		Missing:  missing,
		Extra:    extra,
	}
}

// assertCount checks the number of rows.
func assertCount(expected, actual int) error {
	if expected == actual {
		return nil
	}
	return &AssertionError{
		Type:     AssertCount,
		Expected: fmt.Sprintf("%d rows", expected),
		Actual:   fmt.Sprintf("%d rows", actual),
	}
}

// assertErrorCode checks a compile error code.
func assertErrorCode(expected, actual string) error {
	if expected == actual {
		return nil
	}
	if actual == "" {
		actual = "no error"
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: expected,
		Actual:   actual,
	}
}

// diffMultiset walks two sorted lists and returns the entries only in a
// (missing) and only in b (extra), counting duplicates.
func diffMultiset(a, b []string) (missing, extra []string) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case a[i] < b[j]:
			missing = append(missing, a[i])
			i++
		default:
			extra = append(extra, b[j])
			j++
		}
	}
	missing = append(missing, a[i:]...)
	extra = append(extra, b[j:]...)
	return missing, extra
}
