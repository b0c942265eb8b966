package diarize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/engines"
)

func TestAssignSpeakersMidpointRule(t *testing.T) {
	words := []database.Word{
		{Text: "hello", StartTime: 0, EndTime: 1},
		{Text: "world", StartTime: 4, EndTime: 5},
	}
	segments := []engines.DiarizationSegment{
		{Start: 0, End: 2, Speaker: "SPEAKER_00"},
		{Start: 2, End: 6, Speaker: "SPEAKER_01"},
	}

	assigned := AssignSpeakers(words, segments)
	require.Equal(t, "SPEAKER_00", assigned[0].Speaker)
	require.Equal(t, "SPEAKER_01", assigned[1].Speaker)
}

func TestAssignSpeakersMidpointOnBoundaryGoesToLaterSegment(t *testing.T) {
	// word spans [1,3), midpoint 2.0 sits exactly on the segment boundary;
	// segment B [2,5) contains the midpoint ([start,end) semantics).
	words := []database.Word{{Text: "x", StartTime: 1, EndTime: 3}}
	segments := []engines.DiarizationSegment{
		{Start: 0, End: 2, Speaker: "A"},
		{Start: 2, End: 5, Speaker: "B"},
	}
	assigned := AssignSpeakers(words, segments)
	require.Equal(t, "B", assigned[0].Speaker)
}

func TestAssignSpeakersUnassignedWhenNoSegmentContainsMidpoint(t *testing.T) {
	words := []database.Word{{Text: "x", StartTime: 10, EndTime: 11}}
	segments := []engines.DiarizationSegment{{Start: 0, End: 2, Speaker: "A"}}
	assigned := AssignSpeakers(words, segments)
	require.Empty(t, assigned[0].Speaker)
}

func TestGroupBySpeakerMergesConsecutiveSameSpeaker(t *testing.T) {
	words := []AssignedWord{
		{Word: database.Word{Text: "hello", StartTime: 0, EndTime: 1}, Speaker: "A"},
		{Word: database.Word{Text: "there", StartTime: 1, EndTime: 2}, Speaker: "A"},
		{Word: database.Word{Text: "hi", StartTime: 2, EndTime: 3}, Speaker: "B"},
	}
	groups, indices := GroupBySpeaker(words, 1000)
	require.Len(t, groups, 2)
	require.Equal(t, "hello there", groups[0].Text)
	require.Equal(t, "hi", groups[1].Text)
	require.Equal(t, []int{0, 0, 1}, indices)
}

func TestGroupBySpeakerRespectsMaxSegmentChars(t *testing.T) {
	words := []AssignedWord{
		{Word: database.Word{Text: "aaaaa", StartTime: 0, EndTime: 1}, Speaker: "A"},
		{Word: database.Word{Text: "bbbbb", StartTime: 1, EndTime: 2}, Speaker: "A"},
	}
	groups, indices := GroupBySpeaker(words, 8)
	require.Len(t, groups, 2, "second word should force a new segment once the cap is exceeded")
	require.Equal(t, []int{0, 1}, indices)
}

func TestToSegments(t *testing.T) {
	groups := []GroupedSegment{{Start: 0, End: 1, Speaker: "A", Text: "hi"}}
	segs := ToSegments(groups)
	require.Len(t, segs, 1)
	require.Equal(t, "A", segs[0].Speaker)
}
