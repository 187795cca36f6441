// Package expr classifies DSL expression tokens and owns the single function
// catalog shared by every renderer.
//
// Renderers never decide on their own which functions exist or how many
// arguments they take: they call Classify, which validates against the
// catalog, and only then map the canonical name to target syntax.
package expr
