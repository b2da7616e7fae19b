// Package database persists signal and trade rows in an embedded
// SQLite store. WAL journaling keeps concurrent readers (operator
// commands, reports) off the writers' backs.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sqlx.DB
	log  zerolog.Logger
}

// Open connects to (or creates) the database file and applies the
// schema. Failure here is fatal for the process: the engine cannot run
// without durable storage.
func Open(path string, log zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serializes writes; a single connection avoids lock churn.
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	db := &DB{conn: conn, log: log.With().Str("component", "database").Logger()}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	db.log.Info().Str("path", path).Msg("sqlite store ready (WAL)")
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			price REAL NOT NULL,
			volume REAL NOT NULL DEFAULT 0,
			score REAL NOT NULL DEFAULT 0,
			rsi REAL,
			macd REAL,
			macd_sig REAL,
			volume_spike REAL,
			ts_utc TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts_utc)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry REAL NOT NULL,
			size REAL NOT NULL,
			qty REAL NOT NULL,
			tp1 REAL NOT NULL,
			tp2 REAL NOT NULL,
			sl REAL NOT NULL,
			filled_tp1_qty REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			opened_at TEXT NOT NULL,
			closed_at TEXT,
			close_reason TEXT,
			pnl_usd REAL NOT NULL DEFAULT 0,
			pnl_pct REAL NOT NULL DEFAULT 0,
			last_price REAL,
			last_update TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades(symbol, status)`,
	}

	for i, stmt := range migrations {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
