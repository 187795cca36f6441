// Package engine is the request layer in front of the compilers.
//
// A Request carries DSL text and a target selector. The engine parses it
// once, renders the artifact for the target (SQL text, an aggregation
// pipeline, or nothing for the in-memory interpreter) and, on Execute,
// runs the artifact through the configured executor.
//
// Every request is stamped with an ID from an IDGenerator and a sequence
// number from the engine's Sequence, both of which appear in log records:
//
//	eng := engine.New(
//		engine.WithResolver(resolver),
//		engine.WithDialect(querysql.Postgres),
//	)
//	resp, err := eng.Compile(ctx, engine.Request{
//		Query:  "FROM(users) FETCH(name) FILTER(age > 30)",
//		Target: queryir.TargetSQL,
//	})
//
// Parsing and rendering are pure; only Execute touches a database. An
// Engine holds no per-request state and is safe for concurrent use.
package engine
