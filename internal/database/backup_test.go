package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBackupAndRunIfStale(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "notebook.db")
	backupDir := filepath.Join(dir, "backups")

	db, err := Connect(context.Background(), dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.InsertRecording(ctx, Recording{
		Filename: "a.mp3", Filepath: "audio/a.mp3",
		RecordedAt: time.Now(), ImportedAt: time.Now(),
	})
	require.NoError(t, err)

	policy := BackupPolicy{Dir: backupDir, MaxAge: time.Hour, MaxBackups: 2}
	require.NoError(t, db.RunIfStale(ctx, dbPath, policy, zerolog.Nop()))

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Not stale the second time since MaxAge hasn't elapsed.
	require.NoError(t, db.RunIfStale(ctx, dbPath, policy, zerolog.Nop()))
	entries, err = os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestBackupPruning(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "notebook.db")
	backupDir := filepath.Join(dir, "backups")

	db, err := Connect(context.Background(), dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Backup(ctx, dbPath, backupDir, time.Now().Add(time.Duration(i)*time.Second)))
	}

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	backups, err := listBackups(backupDir)
	require.NoError(t, err)
	require.NoError(t, prune(backups, 2, zerolog.Nop()))

	entries, err = os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRestoreFromBackup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "notebook.db")
	backupDir := filepath.Join(dir, "backups")

	db, err := Connect(context.Background(), dbPath, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = db.InsertRecording(ctx, Recording{
		Filename: "before.mp3", Filepath: "audio/before.mp3",
		RecordedAt: time.Now(), ImportedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Backup(ctx, dbPath, backupDir, time.Now()))
	db.Close()

	// Reopen and add a row the backup doesn't have.
	db, err = Connect(ctx, dbPath, zerolog.Nop())
	require.NoError(t, err)
	_, err = db.InsertRecording(ctx, Recording{
		Filename: "after.mp3", Filepath: "audio/after.mp3",
		RecordedAt: time.Now(), ImportedAt: time.Now(),
	})
	require.NoError(t, err)
	db.Close()

	backups, err := listBackups(backupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	require.NoError(t, db.Restore(ctx, dbPath, backups[0].path, backupDir, zerolog.Nop()))

	restored, err := Connect(ctx, dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer restored.Close()
	recs, err := restored.ListRecordings(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "before.mp3", recs[0].Filename)

	snapshots, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	var sawSafety bool
	for _, e := range snapshots {
		if len(e.Name()) > 12 && e.Name()[:12] == "pre-restore-" {
			sawSafety = true
		}
	}
	require.True(t, sawSafety)
}
