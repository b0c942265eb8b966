package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homelab-00/transcription-suite/internal/engines"
)

func TestPostProcessCapitalizeAndPeriod(t *testing.T) {
	out := PostProcess("hello world", PostProcessOptions{CapitalizeFirst: true, EnsureEndPeriod: true})
	require.Equal(t, "Hello world.", out)
}

func TestPostProcessNoPeriodIfAlreadyPunctuated(t *testing.T) {
	out := PostProcess("hello world!", PostProcessOptions{EnsureEndPeriod: true})
	require.Equal(t, "hello world!", out)
}

func TestPostProcessCollapsesWhitespace(t *testing.T) {
	out := PostProcess("hello   world\n\tfoo", PostProcessOptions{CollapseWhitespace: true})
	require.Equal(t, "hello world foo", out)
}

func TestPostProcessEmptyStringSafe(t *testing.T) {
	out := PostProcess("", PostProcessOptions{CapitalizeFirst: true, EnsureEndPeriod: true})
	require.Equal(t, "", out)
}

type fakeDecoder struct {
	segments []engines.Segment
	err      error
}

func (f *fakeDecoder) Decode(ctx context.Context, samples []float32, opts engines.DecodeOptions) ([]engines.Segment, error) {
	if opts.CancellationCheck != nil && opts.CancellationCheck() {
		return nil, ErrCancelled
	}
	return f.segments, f.err
}
func (f *fakeDecoder) ModelName() string        { return "fake" }
func (f *fakeDecoder) SupportsTranslation() bool { return false }
func (f *fakeDecoder) Close() error             { return nil }

func TestRunFileModeRejectsAlreadyCancelled(t *testing.T) {
	dec := &fakeDecoder{}
	_, err := RunFileMode(context.Background(), "/nonexistent.wav", dec, FileModeOptions{
		CancellationCheck: func() bool { return true },
	})
	require.True(t, errors.Is(err, ErrCancelled) || err == ErrCancelled)
}
