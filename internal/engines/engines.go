// Package engines defines the interfaces this service expects from the
// neural components it drives but does not implement: the Whisper-class
// decoder, the PyAnnote-class diarizer, and the VAD classifiers. The models
// themselves run as separate server processes; this package holds the
// contracts plus HTTP clients for those servers (HTTPDecoder, HTTPDiarizer,
// HTTPProbabilityClassifier) and an in-process energy-threshold Stage 1
// classifier, grounded on the teacher's pattern of keeping
// ingest/transcribe collaborators behind small interfaces
// (internal/ingest/pipeline.go).
package engines

import "context"

// Word is a single decoded token with timing and confidence.
type Word struct {
	Text       string
	Start      float64
	End        float64
	Confidence float64
}

// Segment is a contiguous span of decoded text.
type Segment struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

// DecodeOptions configures a single decode call.
type DecodeOptions struct {
	Language            string
	WordTimestamps      bool
	InitialPrompt       string
	BeamSize            int
	BatchSize           int
	TranslateToEnglish  bool
	// CancellationCheck, when non-nil, is polled between output segments; a
	// true result aborts the decode with an apperror.ClientCancelled error.
	CancellationCheck func() bool
}

// Decoder is the Whisper-class transcription engine contract. Main and Live
// Mode models both satisfy this interface; they differ only in load cost
// and latency, not in API shape.
type Decoder interface {
	// Decode transcribes a 16kHz mono float32 waveform into segments.
	Decode(ctx context.Context, samples []float32, opts DecodeOptions) ([]Segment, error)
	// ModelName identifies the loaded weights, used by is_same_model checks.
	ModelName() string
	SupportsTranslation() bool
	// Close releases any underlying resources (GPU memory, subprocess).
	Close() error
}

// DiarizationSegment is a single speaker-attributed span.
type DiarizationSegment struct {
	Start   float64
	End     float64
	Speaker string
}

// DiarizeOptions bounds the expected number of speakers.
type DiarizeOptions struct {
	NumSpeakers int // 0 = unknown
	MinSpeakers int
	MaxSpeakers int
}

// Diarizer is the PyAnnote-class speaker segmentation contract.
type Diarizer interface {
	Diarize(ctx context.Context, samples []float32, opts DiarizeOptions) ([]DiarizationSegment, error)
	Close() error
}

// FrameClassifier is Stage 1 of the dual VAD: a fast, cheap screen run on
// every small frame.
type FrameClassifier interface {
	// IsSpeech reports whether the frame (PCM16 samples) looks like speech.
	IsSpeech(frame []int16) bool
	Reset()
}

// ProbabilityClassifier is Stage 2 of the dual VAD: a neural confirm run on
// a larger window, returning a probability rather than a hard decision.
type ProbabilityClassifier interface {
	SpeechProbability(window []int16) float64
	Reset()
}

// Transcoder wraps the external audio conversion/normalization subprocess
// (FFmpeg in production, a fake in tests).
type Transcoder interface {
	// ToMP3 converts src to an MP3 at dst with the given bitrate (kbps).
	ToMP3(ctx context.Context, src, dst string, bitrateKbps int) error
	// ToPCM16Mono converts src into raw signed 16-bit PCM at targetRate, mono.
	ToPCM16Mono(ctx context.Context, src string, targetRate int) ([]int16, error)
}

// SummarizeRequest is a single non-streaming LLM call.
type SummarizeRequest struct {
	Prompt      string
	SystemPrompt string
	Temperature float64
	MaxTokens   int
}

// SummarizeChunk is one piece of a streamed LLM response.
type SummarizeChunk struct {
	Content string
	Done    bool
	Err     error
}

// LLMEndpoint is the local LLM summarization collaborator (e.g. LM Studio).
type LLMEndpoint interface {
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
	SummarizeStream(ctx context.Context, req SummarizeRequest) (<-chan SummarizeChunk, error)
}
