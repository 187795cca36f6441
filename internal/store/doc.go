// Package store executes compiled queries against real databases.
//
// Two executors are provided:
//   - SQL: relational databases through sqlx, with the sqlite3 and
//     postgres drivers
//   - Documents: a document database through the MongoDB driver, running
//     aggregation pipelines
//
// SQL also implements schema.Resolver by introspecting foreign keys, so
// INCLUDE hops resolve against the live schema.
//
// # SQLite Configuration
//
// Every SQLite connection is opened through the "sqlite3_triql" driver,
// which on connect:
//   - sets busy_timeout=5000 and foreign_keys=ON
//   - sets case_sensitive_like=ON so LIKE matches the interpreter
//   - registers the scalar functions the SQLite dialect emits but SQLite
//     may lack: CEIL FLOOR SQRT POWER EXP LN LOG LOG10 REVERSE DATENAME
//
// The registered functions evaluate through querymem.Call, so SQLite and
// the in-memory interpreter compute them identically.
package store
