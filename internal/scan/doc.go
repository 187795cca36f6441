// Package scan provides the quote- and bracket-aware lexical primitives the
// DSL parser is built on.
//
// Single-quoted literals are opaque: once inside 'like this', parentheses,
// commas, whitespace and keyword text are inert. Two consecutive single
// quotes inside a literal are an escaped quote.
//
// Bracketed spans ((), [] and {}) are opaque to splitting: SplitTopLevel and
// Fields only cut at depth zero.
package scan
