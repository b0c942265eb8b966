package database

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertTranscript writes a recording's segments and words inside a single
// transaction: a recording with transcript data in only one of the two
// tables is never an observable state. Each word's SegmentID, if set, is
// treated as the word's index into the segments slice rather than a real
// row id — the real id doesn't exist until the segment is inserted here, so
// callers (see notebook.flattenSegments/runDiarization) populate it with the
// segment's position instead.
func (db *DB) InsertTranscript(ctx context.Context, recordingID int64, segments []Segment, words []Word) error {
	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transcript transaction: %w", err)
	}
	defer tx.Rollback()

	segStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (recording_id, start_time, end_time, text, speaker)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing segment insert: %w", err)
	}
	defer segStmt.Close()

	segmentIDs := make([]int64, len(segments))
	for i, s := range segments {
		res, err := segStmt.ExecContext(ctx, recordingID, s.StartTime, s.EndTime, s.Text, nullIfEmpty(s.Speaker))
		if err != nil {
			return fmt.Errorf("inserting segment %d: %w", i, err)
		}
		segmentIDs[i], err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading segment id: %w", err)
		}
	}

	wordStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO words (recording_id, segment_id, word, start_time, end_time, confidence)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing word insert: %w", err)
	}
	defer wordStmt.Close()

	for i, w := range words {
		var segmentID any
		if w.SegmentID != nil {
			idx := *w.SegmentID
			if idx < 0 || int(idx) >= len(segmentIDs) {
				return fmt.Errorf("word %d references out-of-range segment index %d", i, idx)
			}
			segmentID = segmentIDs[idx]
		}
		var confidence any
		if w.Confidence != nil {
			confidence = *w.Confidence
		}
		if _, err := wordStmt.ExecContext(ctx, recordingID, segmentID, w.Text, w.StartTime, w.EndTime, confidence); err != nil {
			return fmt.Errorf("inserting word %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE recordings SET word_count = ? WHERE id = ?`, len(words), recordingID); err != nil {
		return fmt.Errorf("updating word count: %w", err)
	}

	return tx.Commit()
}

// GetSegments returns a recording's segments ordered by start time.
func (db *DB) GetSegments(ctx context.Context, recordingID int64) ([]Segment, error) {
	rows, err := db.Conn.QueryContext(ctx, `
		SELECT id, recording_id, start_time, end_time, text, speaker
		FROM segments WHERE recording_id = ? ORDER BY start_time`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var s Segment
		var speaker sql.NullString
		if err := rows.Scan(&s.ID, &s.RecordingID, &s.StartTime, &s.EndTime, &s.Text, &speaker); err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		s.Speaker = speaker.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetWords returns a recording's words ordered by start time.
func (db *DB) GetWords(ctx context.Context, recordingID int64) ([]Word, error) {
	rows, err := db.Conn.QueryContext(ctx, `
		SELECT id, recording_id, segment_id, word, start_time, end_time, confidence
		FROM words WHERE recording_id = ? ORDER BY start_time`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("listing words: %w", err)
	}
	defer rows.Close()

	var out []Word
	for rows.Next() {
		var w Word
		var segmentID sql.NullInt64
		var confidence sql.NullFloat64
		if err := rows.Scan(&w.ID, &w.RecordingID, &segmentID, &w.Text, &w.StartTime, &w.EndTime, &confidence); err != nil {
			return nil, fmt.Errorf("scanning word: %w", err)
		}
		if segmentID.Valid {
			w.SegmentID = &segmentID.Int64
		}
		if confidence.Valid {
			w.Confidence = &confidence.Float64
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
