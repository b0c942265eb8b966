package notebook

import (
	"fmt"
	"strings"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/database"
)

// ExportFormat is one of the three rendered transcript formats §4.10 names.
type ExportFormat string

const (
	FormatTXT ExportFormat = "txt"
	FormatSRT ExportFormat = "srt"
	FormatASS ExportFormat = "ass"
)

// ParseExportFormat validates the ?format= query value.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case FormatTXT, FormatSRT, FormatASS:
		return ExportFormat(s), nil
	default:
		return "", apperror.BadInput(fmt.Sprintf("unsupported export format %q", s))
	}
}

// Render produces the exported transcript text for the given format.
//
// TXT is only permitted in "pure-note" mode — no words and no diarization —
// per the pinned open-question resolution in DESIGN.md: a recording that has
// word timestamps or speaker labels must use SRT/ASS, and asking for TXT
// against it is a 400, not a silent downgrade. SRT/ASS conversely require
// either word timestamps or diarization: a pure-note recording has no timing
// to build cues from.
func Render(format ExportFormat, segments []database.Segment, words []database.Word) (string, error) {
	hasWords := len(words) > 0
	hasDiarization := hasAnySpeaker(segments)

	switch format {
	case FormatTXT:
		if hasWords || hasDiarization {
			return "", apperror.BadInput("TXT export is only available for plain notes without word timing or diarization")
		}
		return renderTXT(segments), nil
	case FormatSRT:
		if !hasWords && !hasDiarization {
			return "", apperror.BadInput("SRT export requires word timestamps or diarization")
		}
		return renderSRT(segments), nil
	case FormatASS:
		if !hasWords && !hasDiarization {
			return "", apperror.BadInput("ASS export requires word timestamps or diarization")
		}
		return renderASS(segments), nil
	default:
		return "", apperror.BadInput(fmt.Sprintf("unsupported export format %q", format))
	}
}

func hasAnySpeaker(segments []database.Segment) bool {
	for _, s := range segments {
		if s.Speaker != "" {
			return true
		}
	}
	return false
}

func renderTXT(segments []database.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSRT(segments []database.Segment) string {
	var b strings.Builder
	for i, s := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n", i+1, srtTimestamp(s.StartTime), srtTimestamp(s.EndTime))
		if s.Speaker != "" {
			fmt.Fprintf(&b, "%s: %s\n\n", s.Speaker, s.Text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", s.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func srtTimestamp(seconds float64) string {
	total := int64(seconds * 1000)
	ms := total % 1000
	total /= 1000
	s := total % 60
	total /= 60
	m := total % 60
	h := total / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

const assHeader = `[Script Info]
ScriptType: v4.00+
PlayResX: 384
PlayResY: 288

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,20,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,1,0,2,10,10,10,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

func renderASS(segments []database.Segment) string {
	var b strings.Builder
	b.WriteString(assHeader)
	for _, s := range segments {
		text := s.Text
		if s.Speaker != "" {
			text = fmt.Sprintf(`{\i1}%s:{\i0} %s`, s.Speaker, s.Text)
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n", assTimestamp(s.StartTime), assTimestamp(s.EndTime), text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func assTimestamp(seconds float64) string {
	total := int64(seconds * 100)
	cs := total % 100
	total /= 100
	s := total % 60
	total /= 60
	m := total % 60
	h := total / 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
