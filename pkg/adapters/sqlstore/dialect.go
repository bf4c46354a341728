package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Dialect captures the differences between the supported databases.
type Dialect struct {
	Name   string
	Driver string
	// numbered placeholders ($1) instead of ?
	numbered bool
	// statements run once per connection pool before the schema
	pragmas []string
	// maximum open connections, 0 for the driver default
	maxConns int
	// two-argument maximum function
	greatest string
}

var (
	// SQLite stores everything in one local file through modernc.org/sqlite.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		pragmas: []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		},
		// One connection keeps pragmas effective and serializes writers.
		maxConns: 1,
		greatest: "MAX",
	}

	// Postgres talks to a server through pgx's database/sql driver.
	Postgres = Dialect{
		Name:     "postgres",
		Driver:   "pgx",
		numbered: true,
		greatest: "GREATEST",
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (kind, key)
	)`,
	`CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (scope, key)
	)`,
}
