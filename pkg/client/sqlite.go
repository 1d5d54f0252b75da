package client

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const MemoryDSN = ":memory:"

// SchemaSQL is the schema of the embedded store. Tests load it through
// OpenSQLite so the repositories always run against the same tables.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS iftar_dates (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	year INTEGER NOT NULL,
	available INTEGER NOT NULL DEFAULT 1,
	sponsor_reference TEXT,
	sponsor_name TEXT,
	sponsor_email TEXT,
	notes TEXT NOT NULL DEFAULT '',
	pending_since INTEGER,
	sponsored_at INTEGER,
	version INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(date, year),
	CHECK ((available = 1) = (sponsor_reference IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_iftar_dates_year_date ON iftar_dates(year, date);
CREATE INDEX IF NOT EXISTS idx_iftar_dates_pending ON iftar_dates(pending_since) WHERE pending_since IS NOT NULL;

CREATE TABLE IF NOT EXISTS iftar_campaigns (
	year INTEGER PRIMARY KEY,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	cost_per_slot INTEGER NOT NULL,
	currency TEXT NOT NULL,
	capacity INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_iftar_campaigns_active ON iftar_campaigns(is_active) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS iftar_reconciliations (
	id TEXT PRIMARY KEY,
	date_id TEXT NOT NULL,
	payment_intent_id TEXT NOT NULL,
	sponsor_name TEXT NOT NULL DEFAULT '',
	observed_reference TEXT,
	reason TEXT NOT NULL,
	resolved INTEGER NOT NULL DEFAULT 0,
	resolution_note TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	resolved_at INTEGER,
	UNIQUE(date_id, payment_intent_id)
);

CREATE INDEX IF NOT EXISTS idx_iftar_reconciliations_open ON iftar_reconciliations(resolved, created_at);
`

type SQLite struct {
	DB *sql.DB
}

// OpenSQLite opens the database at path and applies SchemaSQL. A single
// connection is kept open so ":memory:" databases survive and writes are
// serialized by the pool instead of failing with SQLITE_BUSY.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != MemoryDSN {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(SchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLite{DB: db}, nil
}
