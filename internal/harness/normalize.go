package harness

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/triql/internal/expr"
)

const dateLayout = "2006-01-02 15:04:05"

// floatPrecision is the number of decimal places floats are rounded to.
// Backends compute AVG and ROUND in different orders.
const floatPrecision = 9

// Normalize renders v in the canonical form rows are compared in.
func Normalize(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.UTC().Format(dateLayout)
	case []byte:
		return normalizeText(string(x))
	case string:
		return normalizeText(x)
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	}
	if i, err := cast.ToInt64E(v); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return norm.NFC.String(cast.ToString(v))
}

func normalizeText(s string) string {
	if expr.IsNumeric(s) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return formatFloat(f)
		}
	}
	if t, ok := expr.ParseDate(s); ok {
		return t.UTC().Format(dateLayout)
	}
	return norm.NFC.String(s)
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	scale := math.Pow(10, floatPrecision)
	r := math.Round(f*scale) / scale
	if r == math.Trunc(r) && math.Abs(r) < 1<<53 {
		return strconv.FormatInt(int64(r), 10)
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// RowKey normalizes a row's values and joins them in sorted order, so rows
// with the same values under different names or positions share a key.
func RowKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = Normalize(v)
	}
	sort.Strings(parts)
	return "(" + strings.Join(parts, ", ") + ")"
}

// RecordKeys returns the sorted RowKey of every record.
func RecordKeys(records []map[string]any) []string {
	keys := make([]string, len(records))
	for i, rec := range records {
		values := make([]any, 0, len(rec))
		for _, v := range rec {
			values = append(values, v)
		}
		keys[i] = RowKey(values)
	}
	sort.Strings(keys)
	return keys
}

// ExpectedKeys returns the sorted RowKey of every expected row.
func ExpectedKeys(rows [][]any) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = RowKey(r)
	}
	sort.Strings(keys)
	return keys
}
