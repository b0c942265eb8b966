package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/homelab-00/transcription-suite/internal/apperror"
)

const sqliteTimeLayout = time.RFC3339Nano

// InsertRecording creates a recording row and returns its assigned ID.
func (db *DB) InsertRecording(ctx context.Context, r Recording) (int64, error) {
	res, err := db.Conn.ExecContext(ctx, `
		INSERT INTO recordings (filename, filepath, title, duration_seconds, recorded_at, imported_at, word_count, has_diarization)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Filename, r.Filepath, nullIfEmpty(r.Title), r.DurationSeconds,
		r.RecordedAt.Format(sqliteTimeLayout), r.ImportedAt.Format(sqliteTimeLayout),
		r.WordCount, boolToInt(r.HasDiarization),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting recording: %w", err)
	}
	return res.LastInsertId()
}

// GetRecording fetches a single recording by ID.
func (db *DB) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	row := db.Conn.QueryRowContext(ctx, `
		SELECT id, filename, filepath, title, duration_seconds, recorded_at, imported_at, word_count, has_diarization, summary, summary_model
		FROM recordings WHERE id = ?`, id)

	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound(fmt.Sprintf("recording %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("getting recording %d: %w", id, err)
	}
	return r, nil
}

// ListRecordings returns recordings ordered newest-first, optionally
// restricted to a [from, to) recorded_at window.
func (db *DB) ListRecordings(ctx context.Context, from, to *time.Time) ([]Recording, error) {
	query := `SELECT id, filename, filepath, title, duration_seconds, recorded_at, imported_at, word_count, has_diarization, summary, summary_model FROM recordings`
	var args []any
	var clauses []string
	if from != nil {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, from.Format(sqliteTimeLayout))
	}
	if to != nil {
		clauses = append(clauses, "recorded_at < ?")
		args = append(args, to.Format(sqliteTimeLayout))
	}
	if len(clauses) > 0 {
		query += " WHERE " + clauses[0]
		for _, c := range clauses[1:] {
			query += " AND " + c
		}
	}
	query += " ORDER BY recorded_at DESC"

	rows, err := db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recording row: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRecordingTitle renames a recording.
func (db *DB) UpdateRecordingTitle(ctx context.Context, id int64, title string) error {
	res, err := db.Conn.ExecContext(ctx, `UPDATE recordings SET title = ? WHERE id = ?`, nullIfEmpty(title), id)
	if err != nil {
		return fmt.Errorf("updating recording title: %w", err)
	}
	return requireRowAffected(res, fmt.Sprintf("recording %d not found", id))
}

// UpdateRecordingSummary sets or clears the summary and the model that
// produced it together, since one without the other is meaningless.
func (db *DB) UpdateRecordingSummary(ctx context.Context, id int64, summary, model string) error {
	res, err := db.Conn.ExecContext(ctx,
		`UPDATE recordings SET summary = ?, summary_model = ? WHERE id = ?`,
		nullIfEmpty(summary), nullIfEmpty(model), id)
	if err != nil {
		return fmt.Errorf("updating recording summary: %w", err)
	}
	return requireRowAffected(res, fmt.Sprintf("recording %d not found", id))
}

// DeleteRecording removes the database row. Callers are responsible for
// deleting the underlying audio file; the database row is dropped first so
// a crash between the two leaves an orphaned file rather than a dangling
// database reference to a missing one.
func (db *DB) DeleteRecording(ctx context.Context, id int64) error {
	res, err := db.Conn.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	return requireRowAffected(res, fmt.Sprintf("recording %d not found", id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*Recording, error) {
	var r Recording
	var title, summary, summaryModel sql.NullString
	var recordedAt, importedAt string
	var hasDiarization int
	err := row.Scan(&r.ID, &r.Filename, &r.Filepath, &title, &r.DurationSeconds,
		&recordedAt, &importedAt, &r.WordCount, &hasDiarization, &summary, &summaryModel)
	if err != nil {
		return nil, err
	}
	r.Title = title.String
	r.Summary = summary.String
	r.SummaryModel = summaryModel.String
	r.HasDiarization = hasDiarization != 0
	r.RecordedAt, err = time.Parse(sqliteTimeLayout, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing recorded_at: %w", err)
	}
	r.ImportedAt, err = time.Parse(sqliteTimeLayout, importedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing imported_at: %w", err)
	}
	return &r, nil
}

func requireRowAffected(res sql.Result, notFoundMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(notFoundMsg)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
