package queryir

import (
	"fmt"
)

// Target selects the execution backend for a compiled query.
type Target string

const (
	TargetSQL      Target = "sql"
	TargetPipeline Target = "pipeline"
	TargetMemory   Target = "memory"
)

// ParseTarget returns the Target named by s.
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetSQL, TargetPipeline, TargetMemory:
		return Target(s), nil
	case "in-memory":
		return TargetMemory, nil
	}
	return "", fmt.Errorf("unknown target %q: must be one of sql, pipeline, memory", s)
}

// ValidationResult contains portability analysis of a query.
//
// A query is portable when every target produces the same rows for it.
// Non-portable queries still compile for the targets that can express
// them; the warnings explain where results may diverge or fail.
type ValidationResult struct {
	// IsPortable indicates that no warnings were raised.
	IsPortable bool

	// Warnings lists the features that break cross-target equivalence.
	Warnings []string
}

// Validate checks a query for features that not every target supports.
//
// dialect is only consulted for TargetSQL. Validate never fails; it is a
// pure function with no side effects.
func Validate(q *Query, target Target, dialect string) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validateQuery(q, target, dialect)

	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q *Query, target Target, dialect string) {
	if q == nil {
		v.addWarning("nil query")
		return
	}

	for _, inc := range q.Includes {
		v.validateInclude(inc, target, dialect)
	}

	if q.Offset != nil && len(q.OrderBy) == 0 {
		v.addWarning("SKIP without ORDERBY selects an unspecified subset of rows")
	}

	if q.HasPagination() && len(q.OrderBy) == 0 && target == TargetSQL &&
		(dialect == "sqlserver" || dialect == "oracle") {
		v.addWarning("pagination without ORDERBY is not expressible in %s and will be omitted", dialect)
	}

	if q.IsStar() && len(q.Includes) > 0 {
		v.addWarning("FETCH(*) with INCLUDE yields target-specific column names")
	}

	v.validateFilter(q.Filters, target)
	v.validateFilter(q.Having, target)
}

func (v *validator) validateInclude(inc Include, target Target, dialect string) {
	switch target {
	case TargetMemory:
		v.addWarning("INCLUDE %s.%s is not supported by the in-memory target", inc.ParentTable, inc.ChildTable)
	case TargetPipeline:
		if inc.Kind == JoinRight || inc.Kind == JoinFull {
			v.addWarning("%s join %s->%s is not supported by the pipeline target", inc.Kind, inc.ParentTable, inc.ChildTable)
		}
	case TargetSQL:
		if inc.Kind == JoinFull && dialect == "mysql" {
			v.addWarning("FULL join %s->%s is not supported by mysql", inc.ParentTable, inc.ChildTable)
		}
	}
}

func (v *validator) validateFilter(node FilterNode, target Target) {
	_ = Walk(node, func(c *Condition) error {
		if !c.Operator.Valid() {
			v.addWarning("unknown operator on %s is not supported by the %s target", c.Column, target)
		}
		return nil
	})
}
