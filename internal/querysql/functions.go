package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/triql/internal/expr"
	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/scan"
)

// renderCall maps a catalog function onto the dialect's syntax. Every
// catalog entry is handled here; dialects that cannot express one return
// an UnsupportedFunctionError.
func (c *SQLCompiler) renderCall(fc expr.FunctionCall) (string, error) {
	name := fc.Spec.Name
	args := fc.Args

	var part expr.DatePart
	if takesDatePart(name) {
		lit, _ := args[0].(expr.Literal)
		s, _ := lit.Value.(string)
		part = expr.DatePart(s)
		args = args[1:]
	}

	a := make([]string, len(args))
	for i, arg := range args {
		sql, err := c.render(arg)
		if err != nil {
			return "", err
		}
		a[i] = sql
	}

	d := c.dialect
	switch name {
	case "COUNT", "SUM", "AVG", "MIN", "MAX",
		"ABS", "FLOOR", "SQRT", "EXP", "POWER",
		"UPPER", "LOWER", "TRIM", "LTRIM", "RTRIM", "REPLACE", "COALESCE":
		return call(name, a...), nil

	case "CEIL":
		if d == SQLServer {
			return call("CEILING", a...), nil
		}
		return call("CEIL", a...), nil

	case "ROUND":
		// Exact types round half away from zero; floating point may not.
		switch d {
		case Postgres:
			a[0] = "CAST(" + a[0] + " AS NUMERIC)"
		case MySQL:
			a[0] = "CAST(" + a[0] + " AS DECIMAL(65, 30))"
		case SQLServer:
			if len(a) == 1 {
				return call("ROUND", a[0], "0"), nil
			}
		}
		return call("ROUND", a...), nil

	case "MOD":
		if d == SQLServer || d == SQLite {
			return "(" + a[0] + " % " + a[1] + ")", nil
		}
		return call("MOD", a...), nil

	case "LOG":
		if len(a) == 1 {
			if d == MySQL || d == SQLServer {
				return call("LOG", a[0]), nil
			}
			return call("LN", a[0]), nil
		}
		if d == SQLServer {
			return call("LOG", a[0], a[1]), nil
		}
		return call("LOG", a[1], a[0]), nil

	case "LOG10":
		if d == Oracle {
			return call("LOG", "10", a[0]), nil
		}
		return call("LOG10", a[0]), nil

	case "LENGTH":
		switch d {
		case SQLServer:
			return call("LEN", a[0]), nil
		case MySQL:
			return call("CHAR_LENGTH", a[0]), nil
		}
		return call("LENGTH", a[0]), nil

	case "SUBSTRING":
		switch d {
		case MySQL:
			return call("SUBSTRING", a...), nil
		case SQLServer:
			if len(a) == 2 {
				return call("SUBSTRING", a[0], a[1], call("LEN", a[0])), nil
			}
			return call("SUBSTRING", a...), nil
		}
		return call("SUBSTR", a...), nil

	case "CONCAT":
		return c.renderConcat(a), nil

	case "INDEXOF":
		return c.renderIndexOf(args, a), nil

	case "REVERSE":
		if d == Oracle {
			return "", c.unsupported(name)
		}
		return call("REVERSE", a[0]), nil

	case "NOW", "TODAY", "TIME":
		return c.renderCurrent(name, a)

	case "DATEADD":
		return c.renderDateAdd(part, a[0], a[1])

	case "DATEDIFF":
		return c.renderDateDiff(part, a[0], a[1])

	case "DATENAME":
		return c.renderDateName(part, a[0])

	case "DAY", "MONTH", "YEAR":
		switch d {
		case MySQL, SQLServer:
			return call(name, a[0]), nil
		case SQLite:
			return fmt.Sprintf("CAST(STRFTIME('%s', %s) AS INTEGER)", strftimeField[expr.DatePart(strings.ToLower(name))], a[0]), nil
		}
		return fmt.Sprintf("EXTRACT(%s FROM %s)", name, a[0]), nil
	}
	return "", c.unsupported(name)
}

func (c *SQLCompiler) unsupported(name string) error {
	return queryir.NewUnsupportedFunctionError(name,
		fmt.Sprintf("%s is not supported on %s", name, c.dialect), string(c.dialect))
}

func takesDatePart(name string) bool {
	return name == "DATEADD" || name == "DATEDIFF" || name == "DATENAME"
}

func call(name string, args ...string) string {
	return name + "(" + strings.Join(args, ", ") + ")"
}

// paren wraps compound SQL so it can be used as an operand.
func paren(s string) string {
	if !strings.Contains(s, " ") || (s[0] == '(' && scan.FindMatchingClose(s, 0) == len(s)-1) {
		return s
	}
	return "(" + s + ")"
}

// renderConcat treats NULL arguments as empty strings in every dialect.
func (c *SQLCompiler) renderConcat(a []string) string {
	switch c.dialect {
	case MySQL:
		return call("CONCAT_WS", append([]string{"''"}, a...)...)
	case Oracle:
		if len(a) == 1 {
			return "(" + a[0] + " || '')"
		}
		return "(" + strings.Join(a, " || ") + ")"
	case SQLServer:
		if len(a) == 1 {
			return call("CONCAT", a[0], "''")
		}
	}
	return call("CONCAT", a...)
}

// renderIndexOf renders the 0-based position of a substring, -1 when
// absent. The optional third argument is a 0-based start offset.
func (c *SQLCompiler) renderIndexOf(args []expr.Expr, a []string) string {
	s, sub := a[0], a[1]
	if len(a) == 2 {
		switch c.dialect {
		case MySQL:
			return "(" + call("LOCATE", sub, s) + " - 1)"
		case SQLServer:
			return "(" + call("CHARINDEX", sub, s) + " - 1)"
		case Postgres:
			return "(" + call("STRPOS", s, sub) + " - 1)"
		}
		return "(" + call("INSTR", s, sub) + " - 1)"
	}

	start0 := a[2]
	start1 := "(" + paren(start0) + " + 1)"
	if lit, ok := args[2].(expr.Literal); ok {
		if n, err := strconv.ParseInt(lit.Raw, 10, 64); err == nil {
			start1 = strconv.FormatInt(n+1, 10)
		}
	}
	switch c.dialect {
	case MySQL:
		return "(" + call("LOCATE", sub, s, start1) + " - 1)"
	case SQLServer:
		return "(" + call("CHARINDEX", sub, s, start1) + " - 1)"
	case Oracle:
		return "(" + call("INSTR", s, sub, start1) + " - 1)"
	}
	find := call("STRPOS", call("SUBSTR", s, start1), sub)
	if c.dialect == SQLite {
		find = call("INSTR", call("SUBSTR", s, start1), sub)
	}
	return fmt.Sprintf("(CASE WHEN %s = 0 THEN -1 ELSE %s + %s - 1 END)", find, find, paren(start0))
}

// renderCurrent renders NOW, TODAY and TIME with an optional time zone.
func (c *SQLCompiler) renderCurrent(name string, a []string) (string, error) {
	d := c.dialect
	if len(a) == 0 {
		switch name {
		case "NOW":
			return map[Dialect]string{
				Postgres: "NOW()", MySQL: "NOW()", SQLServer: "GETDATE()",
				Oracle: "SYSTIMESTAMP", SQLite: "DATETIME('now')",
			}[d], nil
		case "TODAY":
			return map[Dialect]string{
				Postgres: "CURRENT_DATE", MySQL: "CURDATE()", SQLServer: "CAST(GETDATE() AS DATE)",
				Oracle: "TRUNC(SYSDATE)", SQLite: "DATE('now')",
			}[d], nil
		default:
			return map[Dialect]string{
				Postgres: "LOCALTIME", MySQL: "CURTIME()", SQLServer: "CAST(GETDATE() AS TIME)",
				Oracle: "TO_CHAR(SYSDATE, 'HH24:MI:SS')", SQLite: "TIME('now')",
			}[d], nil
		}
	}

	tz := a[0]
	var now string
	switch d {
	case Postgres:
		now = "(NOW() AT TIME ZONE " + tz + ")"
	case MySQL:
		now = "CONVERT_TZ(NOW(), @@session.time_zone, " + tz + ")"
	case SQLServer:
		now = "CAST(SYSDATETIMEOFFSET() AT TIME ZONE " + tz + " AS DATETIME2)"
	case Oracle:
		now = "(SYSTIMESTAMP AT TIME ZONE " + tz + ")"
	default:
		return "", queryir.NewUnsupportedFunctionError(name,
			fmt.Sprintf("%s with a time zone is not supported on %s", name, d), string(d))
	}

	switch name {
	case "TODAY":
		switch d {
		case MySQL:
			return call("DATE", now), nil
		case Oracle:
			return call("TRUNC", now), nil
		}
		return "CAST(" + now + " AS DATE)", nil
	case "TIME":
		switch d {
		case MySQL:
			return call("TIME", now), nil
		case Oracle:
			return call("TO_CHAR", now, "'HH24:MI:SS'"), nil
		}
		return "CAST(" + now + " AS TIME)", nil
	}
	return now, nil
}

var strftimeField = map[expr.DatePart]string{
	expr.PartYear:   "%Y",
	expr.PartMonth:  "%m",
	expr.PartDay:    "%d",
	expr.PartHour:   "%H",
	expr.PartMinute: "%M",
	expr.PartSecond: "%S",
}

var partSeconds = map[expr.DatePart]int{
	expr.PartHour:   3600,
	expr.PartMinute: 60,
	expr.PartSecond: 1,
}

func (c *SQLCompiler) renderDateAdd(part expr.DatePart, n, date string) (string, error) {
	if part == expr.PartWeekday {
		return "", queryir.NewUnsupportedFunctionError("DATEADD", "DATEADD does not accept weekday", string(c.dialect))
	}
	unit := strings.ToUpper(string(part))
	switch c.dialect {
	case Postgres:
		return fmt.Sprintf("(%s + %s * INTERVAL '1 %s')", date, paren(n), part), nil
	case MySQL:
		return fmt.Sprintf("DATE_ADD(%s, INTERVAL %s %s)", date, paren(n), unit), nil
	case SQLServer:
		return call("DATEADD", string(part), n, date), nil
	case Oracle:
		switch part {
		case expr.PartYear:
			return call("ADD_MONTHS", date, paren(n)+" * 12"), nil
		case expr.PartMonth:
			return call("ADD_MONTHS", date, n), nil
		}
		return fmt.Sprintf("(%s + NUMTODSINTERVAL(%s, '%s'))", date, n, unit), nil
	}
	return fmt.Sprintf("DATETIME(%s, %s || ' %s')", date, paren(n), part), nil
}

// renderDateDiff renders date2 - date1 in part units. Year, month and day
// count calendar boundaries crossed; hour, minute and second count whole
// elapsed units.
func (c *SQLCompiler) renderDateDiff(part expr.DatePart, from, to string) (string, error) {
	if part == expr.PartWeekday {
		return "", queryir.NewUnsupportedFunctionError("DATEDIFF", "DATEDIFF does not accept weekday", string(c.dialect))
	}

	extract := func(p expr.DatePart, x string) string {
		switch c.dialect {
		case MySQL:
			return call(strings.ToUpper(string(p)), x)
		case SQLite:
			return fmt.Sprintf("CAST(STRFTIME('%s', %s) AS INTEGER)", strftimeField[p], x)
		}
		return fmt.Sprintf("EXTRACT(%s FROM %s)", strings.ToUpper(string(p)), x)
	}
	yearDiff := "(" + extract(expr.PartYear, to) + " - " + extract(expr.PartYear, from) + ")"

	switch part {
	case expr.PartYear:
		if c.dialect == SQLServer {
			return call("DATEDIFF", "year", from, to), nil
		}
		return yearDiff, nil
	case expr.PartMonth:
		if c.dialect == SQLServer {
			return call("DATEDIFF", "month", from, to), nil
		}
		return fmt.Sprintf("(%s * 12 + %s - %s)", yearDiff, extract(expr.PartMonth, to), extract(expr.PartMonth, from)), nil
	case expr.PartDay:
		switch c.dialect {
		case Postgres:
			return fmt.Sprintf("(CAST(%s AS DATE) - CAST(%s AS DATE))", to, from), nil
		case MySQL:
			return call("DATEDIFF", to, from), nil
		case SQLServer:
			return call("DATEDIFF", "day", from, to), nil
		case Oracle:
			return fmt.Sprintf("(TRUNC(%s) - TRUNC(%s))", to, from), nil
		}
		return fmt.Sprintf("CAST(JULIANDAY(DATE(%s)) - JULIANDAY(DATE(%s)) AS INTEGER)", to, from), nil
	}

	secs := partSeconds[part]
	switch c.dialect {
	case Postgres:
		return fmt.Sprintf("TRUNC(EXTRACT(EPOCH FROM (CAST(%s AS TIMESTAMP) - CAST(%s AS TIMESTAMP))) / %d)", to, from, secs), nil
	case MySQL:
		return call("TIMESTAMPDIFF", strings.ToUpper(string(part)), from, to), nil
	case SQLServer:
		return fmt.Sprintf("(%s / %d)", call("DATEDIFF_BIG", "second", from, to), secs), nil
	case Oracle:
		return fmt.Sprintf("TRUNC((CAST(%s AS DATE) - CAST(%s AS DATE)) * %d)", to, from, 86400/secs), nil
	}
	return fmt.Sprintf("((STRFTIME('%%s', %s) - STRFTIME('%%s', %s)) / %d)", to, from, secs), nil
}

var toCharFormat = map[expr.DatePart]string{
	expr.PartYear:    "FMYYYY",
	expr.PartMonth:   "FMMonth",
	expr.PartDay:     "FMDD",
	expr.PartHour:    "FMHH24",
	expr.PartMinute:  "FMMI",
	expr.PartSecond:  "FMSS",
	expr.PartWeekday: "FMDay",
}

// renderDateName renders the display name of a date part: month and
// weekday names, plain numbers for the rest.
func (c *SQLCompiler) renderDateName(part expr.DatePart, date string) (string, error) {
	switch c.dialect {
	case Postgres, Oracle:
		return call("TO_CHAR", date, "'"+toCharFormat[part]+"'"), nil
	case SQLServer:
		return call("DATENAME", string(part), date), nil
	case MySQL:
		switch part {
		case expr.PartMonth:
			return call("MONTHNAME", date), nil
		case expr.PartWeekday:
			return call("DAYNAME", date), nil
		}
		return "CAST(" + call(strings.ToUpper(string(part)), date) + " AS CHAR)", nil
	}
	return call("DATENAME", "'"+string(part)+"'", date), nil
}
