package expr

import (
	"strings"

	"github.com/roach88/triql/internal/scan"
)

// Qualify table-qualifies every column reference inside expression.
//
// Rules:
//   - "*" and literals are returned unchanged
//   - an unqualified identifier gets "table." prepended
//   - a dotted identifier keeps only its last two segments (a.b.c -> b.c)
//   - function calls keep their name and qualify their arguments
//     recursively; COUNT(*) and date-part arguments are left alone
//
// Qualify is idempotent: qualifying "table.column" returns it unchanged.
// Text that is none of the above is returned trimmed but otherwise as-is;
// Classify reports it later.
func Qualify(expression, table string) string {
	e := strings.TrimSpace(expression)
	if e == "" || e == "*" {
		return e
	}
	if _, ok := scan.Unquote(e); ok {
		return e
	}
	if _, ok := classifyBare(e); ok {
		return e
	}
	if name, body, ok := SplitCall(e); ok {
		args := scan.SplitTopLevel(body, ',')
		spec, known := Lookup(name)
		for i, arg := range args {
			if known && i == 0 && takesDatePart(spec.Name) {
				continue
			}
			args[i] = Qualify(arg, table)
		}
		return name + "(" + strings.Join(args, ", ") + ")"
	}
	if !isIdentifier(e) {
		return e
	}
	parts := strings.Split(e, ".")
	switch len(parts) {
	case 1:
		if table == "" {
			return e
		}
		return table + "." + e
	case 2:
		return e
	default:
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
}

// SplitAlias splits "expression AS alias" at a top-level AS keyword.
func SplitAlias(s string) (expression, alias string) {
	s = strings.TrimSpace(s)
	start, end := scan.FindKeyword(s, "AS", 0)
	if start < 0 {
		return s, ""
	}
	return strings.TrimSpace(s[:start]), strings.TrimSpace(s[end:])
}
