package database

import "time"

// Recording is a single audio-notebook entry: an imported or recorded audio
// file plus its transcript metadata.
type Recording struct {
	ID              int64     `json:"id"`
	Filename        string    `json:"filename"`
	Filepath        string    `json:"filepath"`
	Title           string    `json:"title,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	RecordedAt      time.Time `json:"recorded_at"`
	ImportedAt      time.Time `json:"imported_at"`
	WordCount       int       `json:"word_count"`
	HasDiarization  bool      `json:"has_diarization"`
	Summary         string    `json:"summary,omitempty"`
	SummaryModel    string    `json:"summary_model,omitempty"`
}

// Segment is one contiguous stretch of transcript text, optionally
// attributed to a speaker label.
type Segment struct {
	ID          int64   `json:"id"`
	RecordingID int64   `json:"recording_id"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	Text        string  `json:"text"`
	Speaker     string  `json:"speaker,omitempty"`
}

// Word is a single timestamped transcript token, optionally linked to the
// segment it falls within.
type Word struct {
	ID          int64    `json:"id"`
	RecordingID int64    `json:"recording_id"`
	SegmentID   *int64   `json:"segment_id,omitempty"`
	Text        string   `json:"word"`
	StartTime   float64  `json:"start_time"`
	EndTime     float64  `json:"end_time"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// TimeSlotInfo describes the recorded_at/duration window a recording
// occupies, used for overlap checks on import.
type TimeSlotInfo struct {
	RecordingID int64     `json:"recording_id"`
	RecordedAt  time.Time `json:"recorded_at"`
	EndsAt      time.Time `json:"ends_at"`
}
