// Package querymem evaluates a queryir.Query directly over materialized
// rows.
//
// Clauses apply in this order: FILTER, GROUPBY with its accumulators,
// HAVING, projection, ORDERBY, DISTINCT, SKIP, TAKE. ORDERBY keys are
// computed against the source row, so a query may sort on a column it
// does not fetch.
//
// Comparisons follow one rule throughout: when both operands read as
// numbers they compare numerically, otherwise as text. A null operand
// satisfies only IS NULL.
package querymem
