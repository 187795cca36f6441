// Package queryir provides the canonical query model for triql.
//
// Every DSL string compiles to exactly one Query. The Query is the abstraction
// boundary between the DSL parser and the three execution targets:
//
//	[DSL] -> [Query] -> [SQL renderer]        (querysql)
//	                 -> [Pipeline renderer]   (querypipe)
//	                 -> [In-memory target]    (querymem)
//
// All targets must produce the same rows for the same Query. That is why the
// operator set is closed: every Operator is supported by every renderer, and
// a renderer that meets an Operator it does not know fails loudly instead of
// guessing.
//
// SEALED INTERFACES:
//
// FilterNode is a sealed interface using the marker method pattern. Only
// *Condition and *Logical implement it, so renderers can switch exhaustively:
//
//	switch n := node.(type) {
//	case *Condition:
//	    // leaf
//	case *Logical:
//	    // And / Or with exactly two children
//	}
//
// IMMUTABILITY:
//
// A Query and its filter trees are built bottom-up by the parser and never
// mutated afterwards. Renderers treat them as read-only, which is what makes
// concurrent compiles safe without coordination.
package queryir
