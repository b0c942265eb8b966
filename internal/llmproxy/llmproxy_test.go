package llmproxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/engines"
)

func TestSummarizeDisabledReturnsServiceDisabled(t *testing.T) {
	c := New("http://localhost:1234/v1", "local-model", false)
	_, err := c.Summarize(context.Background(), engines.SummarizeRequest{Prompt: "hi"})
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeServiceDisabled, appErr.Code)
}

func TestSummarizeStreamDisabledReturnsServiceDisabled(t *testing.T) {
	c := New("http://localhost:1234/v1", "local-model", false)
	_, err := c.SummarizeStream(context.Background(), engines.SummarizeRequest{Prompt: "hi"})
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeServiceDisabled, appErr.Code)
}

func TestBuildTranscriptPromptPrefixesSpeakers(t *testing.T) {
	segs := []database.Segment{
		{Text: "hello", Speaker: "SPEAKER_00"},
		{Text: "hi there", Speaker: "SPEAKER_01"},
	}
	prompt := BuildTranscriptPrompt(segs)
	require.Equal(t, "SPEAKER_00: hello\nSPEAKER_01: hi there", prompt)
}

func TestBuildTranscriptPromptNoSpeakers(t *testing.T) {
	segs := []database.Segment{{Text: "just a note"}}
	prompt := BuildTranscriptPrompt(segs)
	require.Equal(t, "just a note", prompt)
}
