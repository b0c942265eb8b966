package llmproxy

import (
	"strings"

	"github.com/homelab-00/transcription-suite/internal/database"
)

// BuildTranscriptPrompt renders a recording's segments into the prompt body
// for POST /api/llm/summarize/{recording_id}, speaker-prefixing lines when
// diarization is present.
func BuildTranscriptPrompt(segments []database.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Speaker != "" {
			b.WriteString(s.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
