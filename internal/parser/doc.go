// Package parser turns DSL text into a queryir.Query.
//
// A query is a sequence of clauses, each a case-insensitive keyword followed
// by a parenthesized body:
//
//	FROM(users) FETCH(id, name) FILTER(age > 18 AND status = 'A')
//	ORDERBY(name DESC) TAKE(10)
//
// ParseFilter handles FILTER and HAVING bodies and applies AND-before-OR
// precedence, producing left-leaning chains. Parse extracts every clause,
// qualifies column references against the root table and resolves INCLUDE
// hops through a schema.Resolver.
package parser
