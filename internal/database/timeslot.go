package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TimeSlotCollision identifies the recording a CheckTimeSlotOverlap call
// collided with.
type TimeSlotCollision struct {
	ID    int64
	Title string
}

// CheckTimeSlotOverlap reports whether [start, start+duration) overlaps any
// existing recording's [recorded_at, recorded_at+duration_seconds) window.
// excludeID, when non-zero, skips a recording being updated in place. When
// it overlaps, the colliding recording is also returned so callers can name
// it in an error message rather than a generic "an existing recording".
func (db *DB) CheckTimeSlotOverlap(ctx context.Context, start time.Time, duration time.Duration, excludeID int64) (bool, *TimeSlotCollision, error) {
	end := start.Add(duration)
	row := db.Conn.QueryRowContext(ctx, `
		SELECT id, title FROM recordings
		WHERE id != ?
		  AND recorded_at < ?
		  AND datetime(recorded_at, '+' || duration_seconds || ' seconds') > datetime(?)
		LIMIT 1`,
		excludeID, end.Format(sqliteTimeLayout), start.Format(sqliteTimeLayout))

	var collision TimeSlotCollision
	var title sql.NullString
	switch err := row.Scan(&collision.ID, &title); err {
	case nil:
		collision.Title = title.String
		if collision.Title == "" {
			collision.Title = fmt.Sprintf("recording %d", collision.ID)
		}
		return true, &collision, nil
	case sql.ErrNoRows:
		return false, nil, nil
	default:
		return false, nil, fmt.Errorf("checking time slot overlap: %w", err)
	}
}

// GetTimeSlotInfo returns the recorded_at/duration window for a recording.
func (db *DB) GetTimeSlotInfo(ctx context.Context, recordingID int64) (*TimeSlotInfo, error) {
	row := db.Conn.QueryRowContext(ctx, `
		SELECT id, recorded_at, datetime(recorded_at, '+' || duration_seconds || ' seconds')
		FROM recordings WHERE id = ?`, recordingID)

	var info TimeSlotInfo
	var recordedAt, endsAt string
	if err := row.Scan(&info.RecordingID, &recordedAt, &endsAt); err != nil {
		return nil, fmt.Errorf("getting time slot info: %w", err)
	}
	var err error
	info.RecordedAt, err = time.Parse(sqliteTimeLayout, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing recorded_at: %w", err)
	}
	info.EndsAt, err = time.Parse("2006-01-02 15:04:05", endsAt)
	if err != nil {
		// SQLite's datetime() emits a space-separated format regardless of
		// how recorded_at was stored; fall back to RFC3339 in case the
		// driver already normalized it.
		info.EndsAt, err = time.Parse(sqliteTimeLayout, endsAt)
		if err != nil {
			return nil, fmt.Errorf("parsing ends_at: %w", err)
		}
	}
	return &info, nil
}
