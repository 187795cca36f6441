// Package config loads triql settings from CUE.
//
// A config file is plain CUE validated against the embedded #Config
// schema (schema.cue), so typos in field names and out-of-range values are
// reported with file positions before anything connects to a database:
//
//	dialect: "sqlite"
//	sql: {driver: "sqlite3", dsn: "app.db"}
//	relations: [{
//		table:             "orders"
//		column:            "user_id"
//		references:        "users"
//		referenced_column: "id"
//	}]
//
// Fields the file omits take the schema defaults.
package config
