package database

import (
	"database/sql"
	"regexp"
	"strconv"
)

// Dialect abstracts the database-specific pieces: driver selection, DSN
// construction, placeholder syntax and connection tuning. Repositories
// write queries with ? placeholders and let the dialect rewrite them.
type Dialect interface {
	// DriverName returns the driver name for sql.Open.
	DriverName() string

	// DSN returns the data source name for the connection.
	DSN(cfg DialectConfig) string

	// RewriteQuery converts placeholder syntax if needed (? to $1 for
	// postgres).
	RewriteQuery(query string) string

	// ConfigureConnection applies database-specific connection settings.
	ConfigureConnection(db *sql.DB) error

	// CreateMigrationsTableQuery returns the SQL creating the migrations
	// tracking table.
	CreateMigrationsTableQuery() string
}

// DialectConfig holds connection parameters: Path for SQLite, URL for
// PostgreSQL and MySQL.
type DialectConfig struct {
	Path string
	URL  string
}

var placeholderRegexp = regexp.MustCompile(`\?`)

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, etc.
func rewritePlaceholdersToNumbered(query string) string {
	counter := 0
	return placeholderRegexp.ReplaceAllStringFunc(query, func(string) string {
		counter++
		return "$" + strconv.Itoa(counter)
	})
}
