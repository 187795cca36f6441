package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/scan"
)

// Expr is a classified expression token.
//
// This is a sealed interface - only Literal, ColumnRef, FunctionCall and
// Star implement it.
type Expr interface {
	exprNode()
}

// LiteralKind is the type of a Literal.
type LiteralKind string

const (
	KindNull   LiteralKind = "null"
	KindBool   LiteralKind = "bool"
	KindInt    LiteralKind = "int"
	KindLong   LiteralKind = "long"
	KindDouble LiteralKind = "double"
	KindDate   LiteralKind = "date"
	KindString LiteralKind = "string"
)

// Literal is a constant. Value holds nil, bool, int64, float64, time.Time
// or string according to Kind. Raw is the token as written.
type Literal struct {
	Kind  LiteralKind
	Value any
	Raw   string
}

func (Literal) exprNode() {}

// ColumnRef references a column. Table is empty for unqualified references.
type ColumnRef struct {
	Table  string
	Column string
}

func (ColumnRef) exprNode() {}

// Path returns "table.column", or just the column when unqualified.
func (c ColumnRef) Path() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// FunctionCall is a call to a catalog function.
type FunctionCall struct {
	Spec FuncSpec
	Args []Expr
}

func (FunctionCall) exprNode() {}

// Name returns the canonical function name.
func (f FunctionCall) Name() string {
	return f.Spec.Name
}

// Star is the * argument of COUNT(*).
type Star struct{}

func (Star) exprNode() {}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseDate parses the date literal formats the DSL accepts.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Classify turns a token into a Literal, ColumnRef or FunctionCall.
// Function arguments are classified recursively and arity is checked
// against the catalog.
func Classify(token string) (Expr, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, queryir.NewSyntaxError("empty expression", "")
	}
	if token == "*" {
		return Star{}, nil
	}
	if s, ok := scan.Unquote(token); ok {
		if t, isDate := ParseDate(s); isDate {
			return Literal{Kind: KindDate, Value: t, Raw: token}, nil
		}
		return Literal{Kind: KindString, Value: s, Raw: token}, nil
	}
	if lit, ok := classifyBare(token); ok {
		return lit, nil
	}
	if name, body, ok := SplitCall(token); ok {
		return classifyCall(token, name, body)
	}
	if isIdentifier(token) {
		return columnRef(token), nil
	}
	return nil, queryir.NewSyntaxError("cannot classify expression", token)
}

func classifyBare(token string) (Literal, bool) {
	switch strings.ToLower(token) {
	case "null":
		return Literal{Kind: KindNull, Raw: token}, true
	case "true":
		return Literal{Kind: KindBool, Value: true, Raw: token}, true
	case "false":
		return Literal{Kind: KindBool, Value: false, Raw: token}, true
	}
	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		kind := KindLong
		if n >= -1<<31 && n < 1<<31 {
			kind = KindInt
		}
		return Literal{Kind: kind, Value: n, Raw: token}, true
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil && isNumberText(token) {
		return Literal{Kind: KindDouble, Value: f, Raw: token}, true
	}
	return Literal{}, false
}

// isNumberText rejects the words ParseFloat accepts (Inf, NaN).
func isNumberText(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' && c != 'e' && c != 'E' {
			return false
		}
	}
	return true
}

// IsNumeric reports whether s reads as a number literal.
func IsNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !isNumberText(s) {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func classifyCall(token, name, body string) (Expr, error) {
	spec, ok := Lookup(name)
	if !ok {
		return nil, queryir.NewUnsupportedFunctionError(strings.ToUpper(name),
			fmt.Sprintf("unknown function %s", strings.ToUpper(name)), "")
	}

	rawArgs := scan.SplitTopLevel(body, ',')
	if spec.Name == "COUNT" && len(rawArgs) == 1 && rawArgs[0] == "*" {
		return FunctionCall{Spec: spec, Args: []Expr{Star{}}}, nil
	}
	if err := spec.CheckArity(len(rawArgs)); err != nil {
		return nil, err
	}

	args := make([]Expr, 0, len(rawArgs))
	for i, raw := range rawArgs {
		if i == 0 && takesDatePart(spec.Name) {
			part, ok := ParseDatePart(raw)
			if !ok {
				return nil, queryir.NewUnsupportedFunctionError(spec.Name,
					fmt.Sprintf("%s: unknown date part %s", spec.Name, raw), "")
			}
			args = append(args, Literal{Kind: KindString, Value: string(part), Raw: raw})
			continue
		}
		arg, err := Classify(raw)
		if err != nil {
			return nil, err
		}
		if _, isStar := arg.(Star); isStar {
			return nil, queryir.NewSyntaxError(fmt.Sprintf("* is not a valid argument to %s", spec.Name), token)
		}
		args = append(args, arg)
	}
	return FunctionCall{Spec: spec, Args: args}, nil
}

func takesDatePart(name string) bool {
	return name == "DATEADD" || name == "DATEDIFF" || name == "DATENAME"
}

// SplitCall splits "NAME(args)" into name and the argument body. ok is false
// unless the parentheses enclose the remainder of the token exactly.
func SplitCall(token string) (name, body string, ok bool) {
	open := strings.IndexByte(token, '(')
	if open <= 0 || token[len(token)-1] != ')' {
		return "", "", false
	}
	name = strings.TrimSpace(token[:open])
	if !isName(name) || scan.FindMatchingClose(token, open) != len(token)-1 {
		return "", "", false
	}
	return name, token[open+1 : len(token)-1], true
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func isIdentifier(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if !isName(part) {
			return false
		}
	}
	return true
}

func columnRef(token string) ColumnRef {
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return ColumnRef{Column: token}
	}
	table := token[:i]
	if j := strings.LastIndexByte(table, '.'); j >= 0 {
		table = table[j+1:]
	}
	return ColumnRef{Table: table, Column: token[i+1:]}
}

// Format renders e back to canonical DSL text. Function names are
// canonical and arguments are separated by ", ".
func Format(e Expr) string {
	switch v := e.(type) {
	case Star:
		return "*"
	case Literal:
		return v.Raw
	case ColumnRef:
		return v.Path()
	case FunctionCall:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = Format(a)
		}
		return v.Spec.Name + "(" + strings.Join(args, ", ") + ")"
	}
	return ""
}

// HasAggregate reports whether e is or contains an aggregate call.
func HasAggregate(e Expr) bool {
	fc, ok := e.(FunctionCall)
	if !ok {
		return false
	}
	if fc.Spec.IsAggregate() {
		return true
	}
	for _, a := range fc.Args {
		if HasAggregate(a) {
			return true
		}
	}
	return false
}

// OutputName is the field name a projected expression produces when no
// alias is given: the column name for column references and the canonical
// text otherwise.
func OutputName(e Expr) string {
	if c, ok := e.(ColumnRef); ok {
		return c.Column
	}
	return Format(e)
}
