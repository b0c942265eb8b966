package notebook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homelab-00/transcription-suite/internal/database"
)

func TestRenderTXTRejectsWhenWordsPresent(t *testing.T) {
	segs := []database.Segment{{StartTime: 0, EndTime: 1, Text: "hello"}}
	words := []database.Word{{Text: "hello", StartTime: 0, EndTime: 1}}
	_, err := Render(FormatTXT, segs, words)
	require.Error(t, err)
}

func TestRenderTXTPureNote(t *testing.T) {
	segs := []database.Segment{{StartTime: 0, EndTime: 1, Text: "a note"}}
	out, err := Render(FormatTXT, segs, nil)
	require.NoError(t, err)
	require.Equal(t, "a note", out)
}

func TestRenderSRTRejectsPureNote(t *testing.T) {
	segs := []database.Segment{{StartTime: 0, EndTime: 1, Text: "a note"}}
	_, err := Render(FormatSRT, segs, nil)
	require.Error(t, err)
}

func TestRenderSRTNumbersCuesAndFormatsTimestamps(t *testing.T) {
	segs := []database.Segment{
		{StartTime: 0, EndTime: 1.5, Text: "hello"},
		{StartTime: 1.5, EndTime: 3, Text: "world"},
	}
	words := []database.Word{{Text: "hello", StartTime: 0, EndTime: 1.5}}
	out, err := Render(FormatSRT, segs, words)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "1\n00:00:00,000 --> 00:00:01,500\nhello"))
	require.Contains(t, out, "2\n00:00:01,500 --> 00:00:03,000\nworld")
}

func TestRenderASSIncludesSpeakerPrefix(t *testing.T) {
	segs := []database.Segment{{StartTime: 0, EndTime: 1, Text: "hi", Speaker: "SPEAKER_00"}}
	words := []database.Word{{Text: "hi", StartTime: 0, EndTime: 1}}
	out, err := Render(FormatASS, segs, words)
	require.NoError(t, err)
	require.Contains(t, out, `{\i1}SPEAKER_00:{\i0} hi`)
	require.Contains(t, out, "[Script Info]")
}

func TestSanitizeStemStripsPathEscape(t *testing.T) {
	stem := sanitizeStem("../../etc/passwd.wav")
	require.NotContains(t, stem, "/")
	require.NotContains(t, stem, "..")
}

func TestParseExportFormatRejectsUnknown(t *testing.T) {
	_, err := ParseExportFormat("pdf")
	require.Error(t, err)
}
