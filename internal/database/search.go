package database

import (
	"context"
	"fmt"
	"time"
)

// DateRange restricts a search to recordings recorded in [From, To). Either
// bound may be nil to leave that side open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (d DateRange) clause(column string, args []any) (string, []any) {
	var clauses []string
	if d.From != nil {
		clauses = append(clauses, column+" >= ?")
		args = append(args, d.From.Format(sqliteTimeLayout))
	}
	if d.To != nil {
		clauses = append(clauses, column+" < ?")
		args = append(args, d.To.Format(sqliteTimeLayout))
	}
	if len(clauses) == 0 {
		return "", args
	}
	clause := clauses[0]
	for _, c := range clauses[1:] {
		clause += " AND " + c
	}
	return " AND " + clause, args
}

// WordSearchHit is a single FTS5 match against transcript text, with enough
// surrounding context to render a snippet.
type WordSearchHit struct {
	RecordingID int64   `json:"recording_id"`
	Word        string  `json:"word"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	Snippet     string  `json:"snippet"`
}

// SearchWords runs a full-text search over transcript words and returns
// matches ordered by relevance (FTS5 bm25 rank, best first). dateRange, when
// non-zero, restricts matches to words whose recording was recorded in that
// window.
func (db *DB) SearchWords(ctx context.Context, query string, dateRange DateRange, limit int) ([]WordSearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	args := []any{query}
	dateClause, args := dateRange.clause("r.recorded_at", args)
	args = append(args, limit)

	// words_fts indexes one token per row, so FTS5's own snippet() would
	// just bracket the matched word with no surrounding text. The context
	// snippet instead comes from a correlated window over the same
	// recording's words, +/-5 seconds around the match.
	rows, err := db.Conn.QueryContext(ctx, `
		SELECT w.recording_id, w.word, w.start_time, w.end_time,
		       (SELECT group_concat(w2.word, ' ')
		        FROM words w2
		        WHERE w2.recording_id = w.recording_id
		          AND w2.start_time >= w.start_time - 5
		          AND w2.end_time <= w.end_time + 5
		        ORDER BY w2.start_time) AS snippet
		FROM words_fts
		JOIN words w ON w.id = words_fts.rowid
		JOIN recordings r ON r.id = w.recording_id
		WHERE words_fts MATCH ?`+dateClause+`
		ORDER BY bm25(words_fts)
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("searching words: %w", err)
	}
	defer rows.Close()

	var out []WordSearchHit
	for rows.Next() {
		var h WordSearchHit
		if err := rows.Scan(&h.RecordingID, &h.Word, &h.StartTime, &h.EndTime, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scanning word hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// RecordingSearchHit is a match against a recording's title, summary, or
// filename.
type RecordingSearchHit struct {
	Recording
	Rank float64 `json:"-"`
}

// SearchRecordingMetadata runs a full-text search over recording titles,
// summaries, and filenames. dateRange, when non-zero, restricts matches to
// recordings recorded in that window.
func (db *DB) SearchRecordingMetadata(ctx context.Context, query string, dateRange DateRange, limit int) ([]RecordingSearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	args := []any{query}
	dateClause, args := dateRange.clause("r.recorded_at", args)
	args = append(args, limit)

	rows, err := db.Conn.QueryContext(ctx, `
		SELECT r.id, r.filename, r.filepath, r.title, r.duration_seconds, r.recorded_at,
		       r.imported_at, r.word_count, r.has_diarization, r.summary, r.summary_model,
		       bm25(recordings_fts) AS rank
		FROM recordings_fts
		JOIN recordings r ON r.id = recordings_fts.rowid
		WHERE recordings_fts MATCH ?`+dateClause+`
		ORDER BY rank
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("searching recording metadata: %w", err)
	}
	defer rows.Close()

	var out []RecordingSearchHit
	for rows.Next() {
		var h RecordingSearchHit
		scanner := &rankScanRow{rows: rows}
		r, err := scanRecording(scanner)
		if err != nil {
			return nil, fmt.Errorf("scanning recording hit: %w", err)
		}
		h.Recording = *r
		h.Rank = scanner.rank
		out = append(out, h)
	}
	return out, rows.Err()
}

// rankScanRow adapts a *sql.Rows with a trailing bm25 rank column onto the
// shared scanRecording helper, which only knows about the recording columns.
type rankScanRow struct {
	rows interface{ Scan(dest ...any) error }
	rank float64
}

func (r *rankScanRow) Scan(dest ...any) error {
	return r.rows.Scan(append(dest, &r.rank)...)
}
