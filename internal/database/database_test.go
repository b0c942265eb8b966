package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notebook.db")
	db, err := Connect(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestInsertAndGetRecording(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	id, err := db.InsertRecording(ctx, Recording{
		Filename:        "meeting.mp3",
		Filepath:        "audio/meeting.mp3",
		Title:           "Weekly sync",
		DurationSeconds: 120.5,
		RecordedAt:      now,
		ImportedAt:      now,
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := db.GetRecording(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "meeting.mp3", got.Filename)
	require.Equal(t, "Weekly sync", got.Title)
	require.Equal(t, now, got.RecordedAt)
}

func TestGetRecordingNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRecording(context.Background(), 999)
	require.Error(t, err)
}

func TestListRecordingsWindow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := db.InsertRecording(ctx, Recording{
			Filename: "r.mp3", Filepath: "audio/r.mp3",
			RecordedAt: base.Add(time.Duration(i) * 24 * time.Hour),
			ImportedAt: base,
		})
		require.NoError(t, err)
	}

	from := base.Add(12 * time.Hour)
	recs, err := db.ListRecordings(ctx, &from, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestInsertTranscriptAndSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	id, err := db.InsertRecording(ctx, Recording{
		Filename: "call.mp3", Filepath: "audio/call.mp3",
		RecordedAt: now, ImportedAt: now,
	})
	require.NoError(t, err)

	segments := []Segment{{StartTime: 0, EndTime: 2, Text: "hello world", Speaker: "SPEAKER_00"}}
	words := []Word{
		{Text: "hello", StartTime: 0, EndTime: 1},
		{Text: "world", StartTime: 1, EndTime: 2},
	}
	require.NoError(t, db.InsertTranscript(ctx, id, segments, words))

	got, err := db.GetRecording(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, got.WordCount)

	hits, err := db.SearchWords(ctx, "world", DateRange{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, id, hits[0].RecordingID)
	require.Contains(t, hits[0].Snippet, "world")

	before := now.Add(-time.Hour)
	noHits, err := db.SearchWords(ctx, "world", DateRange{To: &before}, 10)
	require.NoError(t, err)
	require.Empty(t, noHits)
}

func TestUpdateRecordingSummary(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	id, err := db.InsertRecording(ctx, Recording{Filename: "a.mp3", Filepath: "audio/a.mp3", RecordedAt: now, ImportedAt: now})
	require.NoError(t, err)

	require.NoError(t, db.UpdateRecordingSummary(ctx, id, "a summary", "gpt-test"))
	got, err := db.GetRecording(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "a summary", got.Summary)
	require.Equal(t, "gpt-test", got.SummaryModel)

	hits, err := db.SearchRecordingMetadata(ctx, "summary", DateRange{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestCheckTimeSlotOverlap(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	id, err := db.InsertRecording(ctx, Recording{
		Filename: "x.mp3", Filepath: "audio/x.mp3",
		RecordedAt: start, ImportedAt: start, DurationSeconds: 600,
	})
	require.NoError(t, err)

	overlaps, collision, err := db.CheckTimeSlotOverlap(ctx, start.Add(5*time.Minute), 10*time.Minute, 0)
	require.NoError(t, err)
	require.True(t, overlaps)
	require.NotNil(t, collision)
	require.Equal(t, id, collision.ID)
	require.NotEmpty(t, collision.Title)

	clear, noCollision, err := db.CheckTimeSlotOverlap(ctx, start.Add(time.Hour), 10*time.Minute, 0)
	require.NoError(t, err)
	require.False(t, clear)
	require.Nil(t, noCollision)
}

func TestDeleteRecordingCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	id, err := db.InsertRecording(ctx, Recording{Filename: "d.mp3", Filepath: "audio/d.mp3", RecordedAt: now, ImportedAt: now})
	require.NoError(t, err)
	require.NoError(t, db.InsertTranscript(ctx, id, nil, []Word{{Text: "x", StartTime: 0, EndTime: 1}}))

	require.NoError(t, db.DeleteRecording(ctx, id))

	words, err := db.GetWords(ctx, id)
	require.NoError(t, err)
	require.Empty(t, words)

	err = db.DeleteRecording(ctx, id)
	require.Error(t, err)
}
