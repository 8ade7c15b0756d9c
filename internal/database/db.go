// Package database provides a thin dialect-aware wrapper over database/sql
// supporting SQLite, PostgreSQL and MySQL backends.
package database

import (
	"database/sql"
	"fmt"
	"log"

	"speakwise/internal/config"
)

// DB wraps a sql.DB with its dialect so queries written with ? placeholders
// run on every supported backend.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to the configured database and verifies the connection.
func Open(cfg *config.Config) (*DB, error) {
	var dialect Dialect
	switch cfg.DatabaseType {
	case "sqlite", "sqlite3", "":
		dialect = &SQLiteDialect{}
	case "postgres", "postgresql":
		dialect = &PostgresDialect{}
	case "mysql":
		dialect = &MySQLDialect{}
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	dsn := dialect.DSN(DialectConfig{Path: cfg.DatabasePath, URL: cfg.DatabaseURL})
	conn, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DatabaseType, err)
	}

	if err := dialect.ConfigureConnection(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure %s connection: %w", cfg.DatabaseType, err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.DatabaseType, err)
	}

	log.Printf("connected to %s database", cfg.DatabaseType)
	return &DB{conn: conn, dialect: dialect}, nil
}

// Query runs a query after dialect placeholder rewriting.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return db.conn.Query(db.dialect.RewriteQuery(query), args...)
}

// QueryRow runs a single-row query after dialect placeholder rewriting.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	return db.conn.QueryRow(db.dialect.RewriteQuery(query), args...)
}

// Exec runs a statement after dialect placeholder rewriting.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	return db.conn.Exec(db.dialect.RewriteQuery(query), args...)
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
