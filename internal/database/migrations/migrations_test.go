package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestRunAppliesAllMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notebook.db")

	version, err := Run(path)
	require.NoError(t, err)
	require.Equal(t, uint(4), version)

	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"recordings", "segments", "words", "words_fts", "recordings_fts"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, table).Scan(&name)
		require.NoErrorf(t, err, "expected table %s to exist", table)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notebook.db")

	_, err := Run(path)
	require.NoError(t, err)

	version, err := Run(path)
	require.NoError(t, err)
	require.Equal(t, uint(4), version)
}
