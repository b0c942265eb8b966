// Package transcribe drives the decoder: the file-mode bypass path (load →
// VAD-trim → decode → return) and the shared text post-processing applied
// to every decode result. Grounded on the teacher's worker.go, which wraps
// a single decode call behind the job-slot contract this package extends
// to the file-mode path.
package transcribe

import (
	"context"
	"strings"
	"unicode"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/audio"
	"github.com/homelab-00/transcription-suite/internal/engines"
)

// PostProcessOptions config-gates the three text cleanups §4.5 specifies.
type PostProcessOptions struct {
	CapitalizeFirst  bool
	EnsureEndPeriod  bool
	CollapseWhitespace bool
}

// PostProcess applies the configured text cleanups to a single segment's
// text, in order: collapse whitespace, then capitalize, then append a
// terminal period.
func PostProcess(text string, opts PostProcessOptions) string {
	if opts.CollapseWhitespace {
		text = strings.Join(strings.Fields(text), " ")
	}
	if opts.CapitalizeFirst && text != "" {
		r := []rune(text)
		r[0] = unicode.ToUpper(r[0])
		text = string(r)
	}
	if opts.EnsureEndPeriod && text != "" {
		last := rune(text[len(text)-1])
		if unicode.IsLetter(last) || unicode.IsDigit(last) {
			text += "."
		}
	}
	return text
}

// FileModeOptions configures a single file-mode transcription request.
type FileModeOptions struct {
	Decode            engines.DecodeOptions
	VADThreshold       func(chunk []float32) bool // Silero-backed voiced-chunk predicate
	VADChunkSize       int
	PostProcess        PostProcessOptions
	CancellationCheck  func() bool
}

// ErrCancelled is returned when the cancellation check observes a
// cancellation request mid-decode.
var ErrCancelled = apperror.ClientCancelled("transcription cancelled")

// RunFileMode implements the recorder's file-mode bypass: load the
// waveform, trim to voiced regions (Silero, Stage 2 only — file mode has no
// Stage 1 fast screen to run), decode, and post-process the result. The
// decoder is expected to poll opts.CancellationCheck itself between output
// segments and return an apperror.ClientCancelled error; RunFileMode also
// checks once up front, returning ErrCancelled, so an already-cancelled job
// never starts a decode.
func RunFileMode(ctx context.Context, path string, decoder engines.Decoder, opts FileModeOptions) ([]engines.Segment, error) {
	if opts.CancellationCheck != nil && opts.CancellationCheck() {
		return nil, ErrCancelled
	}

	samples, _, err := audio.LoadAudio(ctx, path, audio.TargetSampleRate)
	if err != nil {
		return nil, err
	}

	if opts.VADThreshold != nil {
		chunkSize := opts.VADChunkSize
		if chunkSize == 0 {
			chunkSize = audio.TargetSampleRate / 2 // 500ms chunks at 16kHz
		}
		samples = audio.TrimToVoiced(samples, chunkSize, opts.VADThreshold)
	}

	decodeOpts := opts.Decode
	decodeOpts.CancellationCheck = opts.CancellationCheck
	segments, err := decoder.Decode(ctx, samples, decodeOpts)
	if err != nil {
		return nil, err
	}

	for i := range segments {
		segments[i].Text = PostProcess(segments[i].Text, opts.PostProcess)
	}
	return segments, nil
}
