// Package diarize assigns transcript words to speakers once a diarization
// pass has produced (start, end, speaker) segments. Grounded on the
// teacher's ingest pipeline.go pattern of small pure-function transforms
// chained together over a batch.
package diarize

import (
	"context"

	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/engines"
)

// Run diarizes samples and returns the raw speaker segments.
func Run(ctx context.Context, diarizer engines.Diarizer, samples []float32, opts engines.DiarizeOptions) ([]engines.DiarizationSegment, error) {
	return diarizer.Diarize(ctx, samples, opts)
}

// AssignedWord pairs a transcript word with the speaker label the
// diarization pass attributed it to. Speaker is empty when no diarization
// segment contains the word.
type AssignedWord struct {
	Word    database.Word
	Speaker string
}

// AssignSpeakers attaches a speaker label to each word: the label of the
// diarization segment whose [start, end) span contains the word's midpoint,
// so a midpoint on the boundary between two adjacent segments goes to the
// later one. Ties (a midpoint inside more than one overlapping segment) are
// broken by the segment with the longest overlap against the word's own
// [start, end) span. Words with no containing segment are left unlabeled.
func AssignSpeakers(words []database.Word, segments []engines.DiarizationSegment) []AssignedWord {
	out := make([]AssignedWord, len(words))

	for i, w := range words {
		out[i].Word = w
		mid := (w.StartTime + w.EndTime) / 2

		var best *engines.DiarizationSegment
		var bestOverlap float64
		for s := range segments {
			seg := &segments[s]
			if mid < seg.Start || mid >= seg.End {
				continue
			}
			overlap := overlapDuration(w.StartTime, w.EndTime, seg.Start, seg.End)
			if best == nil || overlap > bestOverlap {
				best = seg
				bestOverlap = overlap
			}
		}
		if best != nil {
			out[i].Speaker = best.Speaker
		}
	}
	return out
}

func overlapDuration(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// GroupedSegment is a speaker-attributed run of consecutive words, grouped
// for rendering (SRT/ASS cues, diarized transcript display) and for
// persisting as a database.Segment.
type GroupedSegment struct {
	Start   float64
	End     float64
	Speaker string
	Text    string
}

// GroupBySpeaker merges consecutive same-speaker words into segments,
// starting a new segment whenever the speaker changes or the running text
// would exceed maxSegmentChars — the cap forces a new boundary at the next
// word rather than splitting mid-word. The returned indices slice is
// parallel to words, giving the index into the returned groups slice that
// each word was folded into, so callers can link a persisted word back to
// its persisted segment.
func GroupBySpeaker(words []AssignedWord, maxSegmentChars int) ([]GroupedSegment, []int) {
	var out []GroupedSegment
	indices := make([]int, len(words))
	for i, aw := range words {
		text := aw.Word.Text

		if len(out) == 0 || out[len(out)-1].Speaker != aw.Speaker ||
			len(out[len(out)-1].Text)+len(text)+1 > maxSegmentChars {
			out = append(out, GroupedSegment{Start: aw.Word.StartTime, End: aw.Word.EndTime, Speaker: aw.Speaker, Text: text})
			indices[i] = len(out) - 1
			continue
		}
		indices[i] = len(out) - 1
		last := &out[len(out)-1]
		last.End = aw.Word.EndTime
		last.Text += " " + text
	}
	return out, indices
}

// ToSegments converts grouped segments into database.Segment rows ready
// for persistence (RecordingID left zero; callers fill it in on insert).
func ToSegments(groups []GroupedSegment) []database.Segment {
	out := make([]database.Segment, len(groups))
	for i, g := range groups {
		out[i] = database.Segment{StartTime: g.Start, EndTime: g.End, Text: g.Text, Speaker: g.Speaker}
	}
	return out
}
