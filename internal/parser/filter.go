package parser

import (
	"strconv"
	"strings"

	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/scan"
)

// placeholderMark brackets the index of an extracted parenthesized group.
// It never appears in valid DSL text.
const placeholderMark = '\x1a'

// maxFilterDepth bounds recursion on pathological nesting.
const maxFilterDepth = 256

// ParseFilter parses a FILTER or HAVING body. Unqualified columns are
// qualified with defaultTable.
func ParseFilter(body, defaultTable string) (queryir.FilterNode, error) {
	if err := scan.CheckBalanced(body); err != nil {
		return nil, err
	}
	if strings.ContainsRune(body, placeholderMark) {
		return nil, queryir.NewSyntaxError("invalid character in filter", body)
	}
	return parseFilter(body, defaultTable, 0)
}

func parseFilter(body, table string, depth int) (queryir.FilterNode, error) {
	if depth > maxFilterDepth {
		return nil, queryir.NewSyntaxError("filter nested too deeply", body)
	}
	body = scan.StripParens(body)
	if body == "" {
		return nil, queryir.NewSyntaxError("empty filter expression", "")
	}

	flat, groups := extractGroups(body)
	operands, seps, err := splitLogical(flat)
	if err != nil {
		return nil, err
	}
	if len(operands) == 1 {
		return parseCondition(body, table)
	}

	nodes := make([]queryir.FilterNode, len(operands))
	for i, op := range operands {
		node, err := parseFilter(expandGroups(op, groups), table, depth+1)
		if err != nil {
			return nil, err
		}
		nodes[i] = node
	}
	return foldByPrecedence(nodes, seps), nil
}

// extractGroups replaces parenthesized spans innermost-first with
// placeholder tokens until the top level has no parentheses left. Each
// captured group keeps its own parentheses and may itself contain
// placeholders of groups captured earlier.
func extractGroups(s string) (string, []string) {
	var groups []string
	for {
		open := lastOpenParen(s)
		if open < 0 {
			return s, groups
		}
		closeIdx := scan.FindMatchingClose(s, open)
		if closeIdx < 0 {
			// CheckBalanced ran first; unreachable for valid input.
			return s, groups
		}
		token := " " + string(placeholderMark) + strconv.Itoa(len(groups)) + string(placeholderMark) + " "
		groups = append(groups, s[open:closeIdx+1])
		s = s[:open] + token + s[closeIdx+1:]
	}
}

func lastOpenParen(s string) int {
	last := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			if end := scan.FindClosingQuote(s, i); end >= 0 {
				i = end
			}
		case '(':
			last = i
		}
	}
	return last
}

// expandGroups restores the captured text of every placeholder in s,
// consuming the padding spaces extractGroups added around it.
func expandGroups(s string, groups []string) string {
	if !strings.ContainsRune(s, placeholderMark) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != placeholderMark {
			b.WriteByte(s[i])
			continue
		}
		end := strings.IndexByte(s[i+1:], placeholderMark) + i + 1
		n, _ := strconv.Atoi(s[i+1 : end])
		if out := b.String(); strings.HasSuffix(out, " ") {
			b.Reset()
			b.WriteString(out[:len(out)-1])
		}
		b.WriteString(expandGroups(groups[n], groups))
		i = end
		if i+1 < len(s) && s[i+1] == ' ' {
			i++
		}
	}
	return b.String()
}

// splitLogical splits a flat (parenthesis-free) string at top-level AND/OR
// words. The AND that closes a BETWEEN range is not a separator.
func splitLogical(flat string) ([]string, []queryir.LogicalOp, error) {
	var (
		operands []string
		seps     []queryir.LogicalOp
		start    = -1
		end      = -1
		between  bool
	)
	flush := func(at string) error {
		if start < 0 {
			return queryir.NewSyntaxError("malformed logical expression: missing operand", at)
		}
		operands = append(operands, flat[start:end])
		start, end = -1, -1
		return nil
	}

	for _, f := range scan.Fields(flat) {
		word := strings.ToUpper(f.Text)
		switch {
		case word == "BETWEEN":
			between = true
		case word == "AND" && between:
			between = false
		case word == "AND" || word == "OR":
			if err := flush(f.Text + " " + flat[f.End:]); err != nil {
				return nil, nil, err
			}
			seps = append(seps, queryir.LogicalOp(word))
			continue
		}
		if start < 0 {
			start = f.Start
		}
		end = f.End
	}
	if start < 0 && len(seps) > 0 {
		return nil, nil, queryir.NewSyntaxError("malformed logical expression: trailing "+string(seps[len(seps)-1]), flat)
	}
	if start >= 0 {
		operands = append(operands, flat[start:end])
	}
	if len(operands) == 0 {
		return nil, nil, queryir.NewSyntaxError("empty filter expression", "")
	}
	return operands, seps, nil
}

// foldByPrecedence builds a left-leaning tree: adjacent AND pairs fold
// first, then the remaining OR chain folds left to right.
func foldByPrecedence(nodes []queryir.FilterNode, seps []queryir.LogicalOp) queryir.FilterNode {
	terms := []queryir.FilterNode{nodes[0]}
	for i, sep := range seps {
		if sep == queryir.And {
			last := len(terms) - 1
			terms[last] = &queryir.Logical{Op: queryir.And, Left: terms[last], Right: nodes[i+1]}
			continue
		}
		terms = append(terms, nodes[i+1])
	}
	root := terms[0]
	for _, t := range terms[1:] {
		root = &queryir.Logical{Op: queryir.Or, Left: root, Right: t}
	}
	return root
}
