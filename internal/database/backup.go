package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// BackupPolicy drives the startup/periodic backup rotation: a fresh backup
// is taken when the newest one is older than MaxAge, and only the newest
// MaxBackups copies are retained.
type BackupPolicy struct {
	Dir        string
	MaxAge     time.Duration
	MaxBackups int
}

const backupNameLayout = "notebook-20060102-150405.db"

// RunIfStale takes a new backup when the newest existing one is older than
// the policy's MaxAge, then prunes down to MaxBackups. It is safe to call on
// every startup and on a periodic timer.
func (db *DB) RunIfStale(ctx context.Context, dbPath string, policy BackupPolicy, log zerolog.Logger) error {
	backups, err := listBackups(policy.Dir)
	if err != nil {
		return fmt.Errorf("listing backups: %w", err)
	}

	stale := len(backups) == 0
	if !stale {
		newest := backups[len(backups)-1]
		stale = time.Since(newest.takenAt) > policy.MaxAge
	}

	if stale {
		if err := db.Backup(ctx, dbPath, policy.Dir, time.Now()); err != nil {
			return fmt.Errorf("taking backup: %w", err)
		}
		log.Info().Str("dir", policy.Dir).Msg("backup taken")
		backups, err = listBackups(policy.Dir)
		if err != nil {
			return fmt.Errorf("re-listing backups: %w", err)
		}
	}

	return prune(backups, policy.MaxBackups, log)
}

// Backup copies the live database to a timestamped file under dir and
// verifies the copy with PRAGMA integrity_check before leaving it in place.
// The copy is written to a temp file first and renamed in, so a crash
// mid-backup never leaves a half-written file at the final name.
func (db *DB) Backup(ctx context.Context, dbPath, dir string, at time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// The copy below reads only dbPath, so fold committed WAL pages into it
	// first.
	if _, err := db.Conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpointing WAL before backup: %w", err)
	}

	finalPath := filepath.Join(dir, at.UTC().Format(backupNameLayout))
	tmp, err := os.CreateTemp(dir, ".backup-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src, err := os.Open(dbPath)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("opening source database: %w", err)
	}
	_, copyErr := io.Copy(tmp, src)
	src.Close()
	closeErr := tmp.Close()
	if copyErr != nil {
		return fmt.Errorf("copying database: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing temp backup: %w", closeErr)
	}

	if err := verifyIntegrity(ctx, tmpPath); err != nil {
		return fmt.Errorf("backup failed integrity check: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming backup into place: %w", err)
	}
	return nil
}

// Restore replaces the live database with a backup snapshot, taking a
// safety snapshot of the live database first so a bad restore can be
// reversed. New writes against db must be refused by the caller while a
// restore is in flight; Restore does not itself lock the connection.
func (db *DB) Restore(ctx context.Context, dbPath, backupPath, dir string, log zerolog.Logger) error {
	if err := verifyIntegrity(ctx, backupPath); err != nil {
		return fmt.Errorf("backup is corrupt, refusing to restore: %w", err)
	}

	safetyName := "pre-restore-" + time.Now().UTC().Format(backupNameLayout)
	safetyPath := filepath.Join(dir, safetyName)
	if err := copyFile(dbPath, safetyPath); err != nil {
		return fmt.Errorf("snapshotting live database before restore: %w", err)
	}
	log.Info().Str("snapshot", safetyPath).Msg("pre-restore safety snapshot taken")

	if err := copyFile(backupPath, dbPath); err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}
	return nil
}

type backupFile struct {
	path    string
	takenAt time.Time
}

func listBackups(dir string) ([]backupFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []backupFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		t, err := time.Parse(backupNameLayout, e.Name())
		if err != nil {
			continue // not one of ours (e.g. a pre-restore snapshot)
		}
		out = append(out, backupFile{path: filepath.Join(dir, e.Name()), takenAt: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].takenAt.Before(out[j].takenAt) })
	return out, nil
}

func prune(backups []backupFile, maxBackups int, log zerolog.Logger) error {
	if maxBackups <= 0 || len(backups) <= maxBackups {
		return nil
	}
	toRemove := backups[:len(backups)-maxBackups]
	for _, b := range toRemove {
		if err := os.Remove(b.path); err != nil {
			return fmt.Errorf("pruning %s: %w", b.path, err)
		}
		log.Info().Str("path", b.path).Msg("backup pruned")
	}
	return nil
}

func verifyIntegrity(ctx context.Context, path string) error {
	db, err := Connect(ctx, path, zerolog.Nop())
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.Conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("running integrity_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check reported: %s", result)
	}
	return nil
}

func copyFile(src, dst string) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, ".restore-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	in, err := os.Open(src)
	if err != nil {
		tmp.Close()
		return err
	}
	_, copyErr := io.Copy(tmp, in)
	in.Close()
	closeErr := tmp.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	return os.Rename(tmpPath, dst)
}
