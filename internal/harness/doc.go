// Package harness checks that backends agree on query results.
//
// A scenario lists fixture tables and DSL queries. Run loads the fixtures
// into a SQL database (an in-memory SQLite by default), then executes each
// query twice: as compiled SQL against the database, and through the
// in-memory interpreter over the same fixture rows. The two results must
// contain the same rows, compared as multisets of normalized values with
// column names and order ignored.
//
// # Scenario Format
//
//	name: users_basic
//	description: "Filtering and pagination over one table"
//	schema:                 # optional DDL; inferred from rows when absent
//	  - CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)
//	tables:
//	  users:
//	    - {id: 1, name: ada, age: 36}
//	    - {id: 2, name: bob, age: null}
//	queries:
//	  - name: adults
//	    query: FROM(users) FETCH(name) FILTER(age >= 18)
//	    expect:
//	      rows: [[ada]]
//	  - name: with_orders
//	    query: FROM(users) INCLUDE(orders INNER)
//	    targets: [sql]      # the interpreter cannot join
//	  - name: bad
//	    query: FROM(users) FILTER(COUNT(*) > 1)
//	    expect:
//	      error: UNSUPPORTED_FUNCTION
//
// INCLUDE hops resolve through the scenario's relations when given and
// through the database's foreign keys otherwise.
//
// Values are normalized before comparison: NULL is one value, numbers
// compare numerically (2 and 2.0 and "2" agree), booleans read as 1 and 0,
// dates render as "2006-01-02 15:04:05" and text is NFC-normalized.
package harness
