// Package sqlstore implements the datewatch stores on database/sql for
// PostgreSQL and SQLite.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/syntrixbase/datewatch/internal/condition"
)

// Dialect captures the differences between the supported engines.
type Dialect struct {
	Name        string
	Driver      string
	Placeholder condition.Placeholder
	schema      string
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS datewatch_field (
    id          BIGSERIAL PRIMARY KEY,
    tablename   VARCHAR(63) NOT NULL,
    fieldname   VARCHAR(63) NOT NULL,
    maxoffset   BIGINT NOT NULL DEFAULT 0,
    lastcheck   BIGINT NOT NULL DEFAULT 0,
    condhash    BIGINT NOT NULL DEFAULT 0,

    CONSTRAINT uq_datewatch_field_table_field UNIQUE (tablename, fieldname)
);

CREATE TABLE IF NOT EXISTS datewatch_upcoming (
    id          BIGSERIAL PRIMARY KEY,
    datewatchid BIGINT NOT NULL REFERENCES datewatch_field(id) ON DELETE CASCADE,
    objectid    BIGINT NOT NULL,
    value       BIGINT NOT NULL,

    CONSTRAINT uq_datewatch_upcoming_object UNIQUE (datewatchid, objectid)
);

CREATE INDEX IF NOT EXISTS idx_datewatch_upcoming_value ON datewatch_upcoming(datewatchid, value);

ALTER TABLE datewatch_field ADD COLUMN IF NOT EXISTS condhash BIGINT NOT NULL DEFAULT 0;
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS datewatch_field (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    tablename   TEXT NOT NULL,
    fieldname   TEXT NOT NULL,
    maxoffset   INTEGER NOT NULL DEFAULT 0,
    lastcheck   INTEGER NOT NULL DEFAULT 0,
    condhash    INTEGER NOT NULL DEFAULT 0,
    UNIQUE (tablename, fieldname)
);

CREATE TABLE IF NOT EXISTS datewatch_upcoming (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    datewatchid INTEGER NOT NULL REFERENCES datewatch_field(id) ON DELETE CASCADE,
    objectid    INTEGER NOT NULL,
    value       INTEGER NOT NULL,
    UNIQUE (datewatchid, objectid)
);

CREATE INDEX IF NOT EXISTS idx_datewatch_upcoming_value ON datewatch_upcoming(datewatchid, value);
`

var (
	// Postgres uses lib/pq.
	Postgres = Dialect{Name: "postgres", Driver: "postgres", Placeholder: condition.Dollar, schema: postgresSchema}
	// SQLite uses mattn/go-sqlite3.
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite3", Placeholder: condition.Question, schema: sqliteSchema}
)

// DialectFor maps a configured driver name to a dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported storage driver: %s", driver)
}

// Open opens a connection pool for the dialect and verifies it.
func Open(d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.Name == SQLite.Name {
		// Each SQLite connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the index tables if they don't exist and adds columns
// missing from tables created by older releases.
func EnsureSchema(db *sql.DB, d Dialect) error {
	if _, err := db.Exec(d.schema); err != nil {
		return err
	}
	if d.Name != SQLite.Name {
		return nil
	}

	// SQLite has no ADD COLUMN IF NOT EXISTS.
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('datewatch_field') WHERE name = 'condhash'`).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = db.Exec(`ALTER TABLE datewatch_field ADD COLUMN condhash INTEGER NOT NULL DEFAULT 0`)
	return err
}

// rebind rewrites ? markers into the dialect's placeholder style.
func (d Dialect) rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inClause renders "col IN (?, ?)" or, for PostgreSQL, "col = ANY(?)" with an array argument.
func (d Dialect) inClause(col string, ids []int64) (string, []interface{}) {
	if d.Name == Postgres.Name {
		return col + " = ANY(?)", []interface{}{pq.Array(ids)}
	}
	marks := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return col + " IN (" + strings.Join(marks, ", ") + ")", args
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
