// Package vad implements the streaming dual voice-activity detector: a fast
// per-10ms-frame screen (Stage 1) confirmed by a neural per-window
// classifier (Stage 2) that runs on a background worker so the audio feed
// path never blocks on it. Grounded on the teacher's worker.go single
// shared-worker pattern (internal/transcribe/worker.go) applied here to the
// Stage 2 classifier instead of the decoder.
package vad

import (
	"sync"
	"sync/atomic"

	"github.com/homelab-00/transcription-suite/internal/engines"
)

// Detector combines a fast frame classifier (Stage 1) with a neural
// confirm classifier (Stage 2) run on a background worker. Voice is
// reported active only when both stages agree; until Stage 2 answers for
// the current window, its last verdict is reused.
type Detector struct {
	stage1 engines.FrameClassifier
	stage2 engines.ProbabilityClassifier

	threshold float64

	mu          sync.Mutex
	stage2Queue chan []int16
	stage2Last  atomic.Bool

	deactivityMode bool

	wg     sync.WaitGroup
	closed chan struct{}
}

// New constructs a Detector and starts its Stage 2 background worker.
// threshold is the Stage 2 speech-probability cutoff.
func New(stage1 engines.FrameClassifier, stage2 engines.ProbabilityClassifier, threshold float64) *Detector {
	d := &Detector{
		stage1:      stage1,
		stage2:      stage2,
		threshold:   threshold,
		stage2Queue: make(chan []int16, 8),
		closed:      make(chan struct{}),
	}
	d.stage2Last.Store(false)
	d.wg.Add(1)
	go d.runStage2()
	return d
}

func (d *Detector) runStage2() {
	defer d.wg.Done()
	for {
		select {
		case window, ok := <-d.stage2Queue:
			if !ok {
				return
			}
			prob := d.stage2.SpeechProbability(window)
			d.stage2Last.Store(prob >= d.threshold)
		case <-d.closed:
			return
		}
	}
}

// SetDeactivityMode switches end-of-speech detection: when true, end-of-
// speech relies solely on Stage 2 (stricter); when false, Stage 1 alone
// with all-frames-voiced semantics governs end-of-speech.
func (d *Detector) SetDeactivityMode(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deactivityMode = on
}

// Feed submits one frame (Stage 1 size, e.g. 10ms) for the fast screen, and
// enqueues the same samples for Stage 2 confirmation (non-blocking — if the
// worker is still busy with a previous window, this frame's Stage 2 opinion
// is skipped and the last known verdict is reused).
func (d *Detector) Feed(frame []int16) {
	if !d.stage1.IsSpeech(frame) {
		return
	}
	select {
	case d.stage2Queue <- frame:
	default:
		// worker still busy; Stage 2's last verdict carries forward
	}
}

// IsActive reports whether voice is currently active: both stages must
// agree. Stage 1 disagreement short-circuits without touching Stage 2's
// remembered verdict.
func (d *Detector) IsActive(frame []int16) bool {
	stage1Voiced := d.stage1.IsSpeech(frame)
	if !stage1Voiced {
		return false
	}
	d.Feed(frame)
	return d.stage2Last.Load()
}

// IsEndOfSpeech reports whether the current frame should count toward a
// silence timer, honoring the deactivity mode switch.
func (d *Detector) IsEndOfSpeech(frame []int16) bool {
	d.mu.Lock()
	strict := d.deactivityMode
	d.mu.Unlock()
	if strict {
		return !d.stage2Last.Load()
	}
	return !d.stage1.IsSpeech(frame)
}

// ResetStates must be called on every recording boundary so neither stage
// carries state (e.g. RNN hidden state, smoothing windows) across
// unrelated recordings.
func (d *Detector) ResetStates() {
	d.stage1.Reset()
	d.stage2.Reset()
	d.stage2Last.Store(false)
}

// Close stops the Stage 2 background worker. The Detector must not be used
// after Close.
func (d *Detector) Close() {
	close(d.closed)
	d.wg.Wait()
}
