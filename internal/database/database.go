// Package database wraps a SQLite connection with the operations the
// notebook persistence flows need: recordings/segments/words CRUD, FTS5
// search, time-slot overlap checks, and the backup/restore policy. Shaped on
// the teacher's internal/database package (DB struct, Connect, HealthCheck,
// Close) with the driver swapped from pgx/Postgres to mattn/go-sqlite3.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/database/migrations"
)

// DB holds the single writer/many-reader SQLite connection pool.
type DB struct {
	Conn *sql.DB
	log  zerolog.Logger
}

// Connect opens (creating if needed) the SQLite database at path, enables
// WAL mode and foreign keys, and runs any pending migrations.
func Connect(ctx context.Context, path string, log zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite allows only one writer at a time; cap the pool so readers queue
	// behind the single underlying connection rather than hitting SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	version, err := migrations.Run(path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info().Str("path", path).Uint("schema_version", version).Msg("database connected")
	return &DB{Conn: conn, log: log}, nil
}

// HealthCheck confirms the connection is alive within a short deadline.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Conn.PingContext(ctx)
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.log.Info().Msg("closing database connection")
	db.Conn.Close()
}
