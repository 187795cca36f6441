package querysql

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavor the compiler emits.
type Dialect string

const (
	Postgres  Dialect = "postgres"
	MySQL     Dialect = "mysql"
	SQLServer Dialect = "sqlserver"
	Oracle    Dialect = "oracle"
	SQLite    Dialect = "sqlite"
)

// Dialects lists every supported dialect.
func Dialects() []Dialect {
	return []Dialect{Postgres, MySQL, SQLServer, Oracle, SQLite}
}

// ParseDialect accepts a dialect name case-insensitively. "postgresql",
// "mssql" and "sqlite3" are accepted as aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	case "oracle":
		return Oracle, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unknown SQL dialect %q", s)
}

// usesOffsetFetch reports whether the dialect paginates with
// OFFSET ... ROWS FETCH NEXT ... ROWS ONLY, which needs an ORDER BY.
func (d Dialect) usesOffsetFetch() bool {
	return d == SQLServer || d == Oracle
}

// hasNativeILike reports whether ILIKE exists.
func (d Dialect) hasNativeILike() bool {
	return d == Postgres
}

// hasBooleans reports whether TRUE/FALSE literals exist.
func (d Dialect) hasBooleans() bool {
	return d != SQLServer && d != Oracle
}

// unboundedLimit is the LIMIT value meaning "no limit" for dialects that
// cannot express OFFSET without LIMIT.
func (d Dialect) unboundedLimit() string {
	switch d {
	case MySQL:
		return "18446744073709551615"
	case SQLite:
		return "-1"
	}
	return ""
}
