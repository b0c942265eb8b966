// Package recorder implements the streaming recorder state machine:
// inactive → listening → recording → transcribing → inactive. Grounded on
// the teacher's worker.go callback/observer pattern (internal/transcribe/
// worker.go) generalized from a single decode call into a full state
// machine with pre-roll draining and silence-based transitions.
package recorder

import (
	"sync"
	"time"
)

// State is one of the recorder's four lifecycle states.
type State string

const (
	StateInactive     State = "inactive"
	StateListening    State = "listening"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
)

// Chunk is one fed audio buffer plus the moment it was fed, used to drive
// the silence timer.
type Chunk struct {
	Samples []float32
	FedAt   time.Time
}

// Config tunes the state machine's silence-based transitions.
type Config struct {
	PostSpeechSilenceDuration time.Duration
	MinLengthOfRecording      time.Duration
	MaxSilenceDuration        time.Duration
	PreRollBufferDuration     time.Duration
	SampleRate                int
}

// Callbacks are observer hooks fired on state transitions and on every fed
// chunk, e.g. to drive metrics or a live UI.
type Callbacks struct {
	OnStateChange func(from, to State)
	OnChunk       func(Chunk)
}

// Detector is the subset of vad.Detector the recorder drives; declared
// narrowly here so the recorder can be tested without the real VAD stack.
type Detector interface {
	IsActive(frame []int16) bool
	IsEndOfSpeech(frame []int16) bool
	ResetStates()
}

// Recorder drives the inactive→listening→recording→transcribing→inactive
// state machine over a stream of fed audio chunks.
type Recorder struct {
	mu sync.Mutex

	cfg       Config
	detector  Detector
	callbacks Callbacks

	state State

	preRoll    []Chunk
	preRollDur time.Duration

	frames []float32

	recordingStart time.Time
	silenceStart   time.Time
	inSilence      bool

	trimStart time.Time
	trimming  bool
	trimmed   []trimRegion
}

type trimRegion struct {
	startSample int
	endSample   int
}

// New constructs a Recorder in the inactive state.
func New(cfg Config, detector Detector, callbacks Callbacks) *Recorder {
	return &Recorder{cfg: cfg, detector: detector, callbacks: callbacks, state: StateInactive}
}

// State returns the recorder's current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Listen transitions the recorder into the listening state, ready to sample
// the VAD on every fed chunk.
func (r *Recorder) Listen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transition(StateListening)
	r.frames = nil
	r.trimmed = nil
	r.trimming = false
	r.inSilence = false
	r.detector.ResetStates()
}

// Feed submits one chunk of audio (as float32 samples, with an Int16 view
// for the VAD) to the recorder. frame16 is the same chunk quantized to
// Int16 for the detector's consumption.
func (r *Recorder) Feed(samples []float32, frame16 []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	chunk := Chunk{Samples: samples, FedAt: now}
	if r.callbacks.OnChunk != nil {
		r.callbacks.OnChunk(chunk)
	}

	switch r.state {
	case StateListening:
		r.bufferPreRoll(chunk)
		if r.detector.IsActive(frame16) {
			r.transition(StateRecording)
			r.recordingStart = now
			r.inSilence = false
			// preRoll already ends with this chunk unless the chunk alone is
			// longer than the pre-roll window and was dropped from it.
			for _, c := range r.preRoll {
				r.frames = append(r.frames, c.Samples...)
			}
			if len(r.preRoll) == 0 {
				r.frames = append(r.frames, samples...)
			}
		}

	case StateRecording:
		startSample := len(r.frames)
		r.frames = append(r.frames, samples...)

		endOfSpeech := r.detector.IsEndOfSpeech(frame16)
		if endOfSpeech {
			if !r.inSilence {
				r.inSilence = true
				r.silenceStart = now
			}
			silenceElapsed := now.Sub(r.silenceStart)

			if !r.trimming && silenceElapsed >= r.cfg.MaxSilenceDuration {
				r.trimming = true
				r.trimStart = now
				r.trimmed = append(r.trimmed, trimRegion{startSample: startSample})
			}

			recordingLength := now.Sub(r.recordingStart)
			if silenceElapsed >= r.cfg.PostSpeechSilenceDuration && recordingLength >= r.cfg.MinLengthOfRecording {
				r.finalizeTrim(len(r.frames))
				r.transition(StateTranscribing)
			}
		} else {
			if r.trimming {
				r.finalizeTrim(startSample)
			}
			r.inSilence = false
		}

	default:
		// Feeding while inactive or transcribing is a no-op; callers must
		// call Listen() first.
	}
}

func (r *Recorder) finalizeTrim(endSample int) {
	if !r.trimming {
		return
	}
	r.trimmed[len(r.trimmed)-1].endSample = endSample
	r.trimming = false
}

func (r *Recorder) bufferPreRoll(c Chunk) {
	r.preRoll = append(r.preRoll, c)
	r.preRollDur += time.Duration(len(c.Samples)) * time.Second / time.Duration(r.sampleRate())
	for r.preRollDur > r.cfg.PreRollBufferDuration && len(r.preRoll) > 0 {
		dropped := r.preRoll[0]
		r.preRoll = r.preRoll[1:]
		r.preRollDur -= time.Duration(len(dropped.Samples)) * time.Second / time.Duration(r.sampleRate())
	}
}

func (r *Recorder) sampleRate() int {
	if r.cfg.SampleRate == 0 {
		return 16000
	}
	return r.cfg.SampleRate
}

func (r *Recorder) transition(to State) {
	from := r.state
	r.state = to
	if r.callbacks.OnStateChange != nil {
		r.callbacks.OnStateChange(from, to)
	}
}

// Finish transitions out of transcribing back to inactive, returning the
// trimmed waveform ready for the decoder. It must be called exactly once
// per recording, before the caller hands that waveform to the decoder.
func (r *Recorder) Finish() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := applyTrim(r.frames, r.trimmed)
	r.transition(StateInactive)
	r.frames = nil
	r.preRoll = nil
	r.preRollDur = 0
	r.detector.ResetStates()
	return out
}

// applyTrim removes the extended-silence regions from frames, preventing
// the decoder from hallucinating on long gaps.
func applyTrim(frames []float32, regions []trimRegion) []float32 {
	if len(regions) == 0 {
		return frames
	}
	out := make([]float32, 0, len(frames))
	cursor := 0
	for _, reg := range regions {
		if reg.startSample > cursor {
			out = append(out, frames[cursor:reg.startSample]...)
		}
		end := reg.endSample
		if end == 0 || end > len(frames) {
			end = len(frames)
		}
		cursor = end
	}
	if cursor < len(frames) {
		out = append(out, frames[cursor:]...)
	}
	return out
}
