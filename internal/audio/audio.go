// Package audio wraps the external transcoder subprocess (FFmpeg) for
// loading, resampling, and converting audio, plus the file-mode VAD
// preprocessing pass. Grounded on the teacher's internal/transcribe
// preprocess.go (exec.CommandContext pipeline, PATH availability check,
// temp-file-with-cleanup return shape), generalized from sox to ffmpeg per
// spec §4.3.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/homelab-00/transcription-suite/internal/apperror"
)

const (
	// TargetSampleRate is the rate every decoder and VAD stage expects.
	TargetSampleRate = 16000
	int16Max         = 32768.0
)

// NormalizationMethod selects the ffmpeg filter ConvertToMP3 uses to level
// audio. NormalizationPeak maps to no filter; ToPCM16Mono never normalizes.
type NormalizationMethod string

const (
	NormalizationPeak       NormalizationMethod = "peak"
	NormalizationLoudnorm   NormalizationMethod = "loudnorm"
	NormalizationDynaudnorm NormalizationMethod = "dynaudnorm"
)

var ffmpegAvailable *bool

// CheckFFmpeg checks whether ffmpeg is in PATH. Cached after first call.
func CheckFFmpeg() bool {
	if ffmpegAvailable != nil {
		return *ffmpegAvailable
	}
	_, err := exec.LookPath("ffmpeg")
	avail := err == nil
	ffmpegAvailable = &avail
	return avail
}

func normalizationFilter(method NormalizationMethod) []string {
	switch method {
	case NormalizationLoudnorm:
		return []string{"-af", "loudnorm"}
	case NormalizationDynaudnorm:
		return []string{"-af", "dynaudnorm"}
	default:
		return nil
	}
}

// LoadAudio decodes path to mono float32 PCM at targetRate via ffmpeg,
// streaming raw signed 16-bit PCM over stdout and converting samples to the
// [-1, 1] float32 range expected by the decoders and VAD stages.
func LoadAudio(ctx context.Context, path string, targetRate int) ([]float32, int, error) {
	if !CheckFFmpeg() {
		return nil, 0, apperror.EngineFailure("ffmpeg is not installed")
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", targetRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, 0, apperror.EngineFailure(fmt.Sprintf("ffmpeg decode failed: %v", err))
	}

	samples := make([]float32, len(out)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
		samples[i] = float32(v) / int16Max
	}
	return samples, targetRate, nil
}

// ConvertToMP3 transcodes src to an MP3 at dst with the given bitrate,
// applying the configured normalization filter. dst's parent directory is
// created if missing.
func ConvertToMP3(ctx context.Context, src, dst string, bitrateKbps int, method NormalizationMethod) error {
	if !CheckFFmpeg() {
		return apperror.EngineFailure("ffmpeg is not installed")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir for mp3 output: %w", err)
	}

	args := []string{"-y", "-i", src, "-vn"}
	args = append(args, normalizationFilter(method)...)
	args = append(args, "-b:a", fmt.Sprintf("%dk", bitrateKbps), dst)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return apperror.EngineFailure(fmt.Sprintf("ffmpeg mp3 conversion failed: %v: %s", err, out))
	}
	return nil
}

// PeakNormalize scales samples so the loudest sample reaches targetPeak
// (0 < targetPeak <= 1), in-process on a decoded float32 buffer rather than
// through an ffmpeg filter. ConvertToMP3 does not call it, so selecting
// NormalizationPeak there applies no normalization.
func PeakNormalize(samples []float32, targetPeak float32) {
	if len(samples) == 0 {
		return
	}
	var peak float32
	for _, s := range samples {
		if a := abs32(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	gain := targetPeak / peak
	for i := range samples {
		samples[i] *= gain
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// FFmpegTranscoder adapts the package-level ffmpeg helpers to the
// engines.Transcoder interface the notebook orchestrator depends on.
type FFmpegTranscoder struct {
	Method NormalizationMethod
}

// ToMP3 transcodes src to an MP3 at dst with the given bitrate.
func (t FFmpegTranscoder) ToMP3(ctx context.Context, src, dst string, bitrateKbps int) error {
	return ConvertToMP3(ctx, src, dst, bitrateKbps, t.Method)
}

// ToPCM16Mono decodes src into raw signed 16-bit PCM at targetRate, mono.
func (t FFmpegTranscoder) ToPCM16Mono(ctx context.Context, src string, targetRate int) ([]int16, error) {
	samples, _, err := LoadAudio(ctx, src, targetRate)
	if err != nil {
		return nil, err
	}
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = int16(s * int16Max)
	}
	return pcm, nil
}

// ChunkWalker splits samples into fixed-size chunks for VAD preprocessing.
type ChunkWalker struct {
	samples   []float32
	chunkSize int
	pos       int
}

func NewChunkWalker(samples []float32, chunkSize int) *ChunkWalker {
	return &ChunkWalker{samples: samples, chunkSize: chunkSize}
}

// Next returns the next chunk and true, or nil and false at the end. The
// final chunk may be shorter than chunkSize.
func (w *ChunkWalker) Next() ([]float32, bool) {
	if w.pos >= len(w.samples) {
		return nil, false
	}
	end := w.pos + w.chunkSize
	if end > len(w.samples) {
		end = len(w.samples)
	}
	chunk := w.samples[w.pos:end]
	w.pos = end
	return chunk, true
}

// SpeechDetector reports whether a chunk contains speech, abstracting over
// whichever VAD stage (WebRTC fast-screen or Silero confirm) is driving the
// walk.
type SpeechDetector func(chunk []float32) bool

// TrimToVoiced walks samples in chunkSize windows, keeping only chunks the
// detector judges as speech, and concatenates them. If no chunk is judged
// speech, the original waveform is returned unchanged — the decoder must
// never be handed empty audio.
func TrimToVoiced(samples []float32, chunkSize int, isSpeech SpeechDetector) []float32 {
	walker := NewChunkWalker(samples, chunkSize)
	var voiced []float32
	for {
		chunk, ok := walker.Next()
		if !ok {
			break
		}
		if isSpeech(chunk) {
			voiced = append(voiced, chunk...)
		}
	}
	if len(voiced) == 0 {
		return samples
	}
	return voiced
}
