// Package migrations embeds the numbered schema migrations (currently
// through 000004) and runs them with golang-migrate, the teacher's go.mod
// declared but never exercised its own inline idempotent-migration list
// instead. The spec calls for real numbered migrations, which is exactly
// golang-migrate's bread and butter, so it finally gets wired in here.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Run applies all pending migrations against the SQLite database at path.
// It is idempotent: running it again with no pending migrations is a no-op.
func Run(path string) (appliedVersion uint, err error) {
	src, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return 0, fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+path)
	if err != nil {
		return 0, fmt.Errorf("building migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}

	version, _, verErr := m.Version()
	if verErr != nil && !errors.Is(verErr, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("reading migration version: %w", verErr)
	}
	return version, nil
}
