// Package livemode implements the Live Mode WebSocket session controller
// (§4.9): model-swap semantics around a single global session, feeding PCM
// frames through the streaming recorder/VAD stack, and bridging the
// recorder's callbacks to a bounded outbound message queue. Grounded on the
// teacher's internal/ingest pipeline's worker-to-callback bridge, generalized
// from a fire-and-forget publish into a queue an async send loop drains.
package livemode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/engines"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
	"github.com/homelab-00/transcription-suite/internal/recorder"
	"github.com/homelab-00/transcription-suite/internal/vad"
)

// eventQueueSize bounds the server→client message queue; when it is full,
// Live Mode drops the message being emitted rather than block the engine's
// callback thread on a slow client (§4.9, §9).
const eventQueueSize = 64

// StartConfig is the client-supplied `start` message payload.
type StartConfig struct {
	Model                     string  `json:"model,omitempty"`
	Language                  string  `json:"language,omitempty"`
	TranslationEnabled        bool    `json:"translation_enabled,omitempty"`
	TranslationTargetLanguage string  `json:"translation_target_language,omitempty"`
	WebRTCSensitivity         int     `json:"webrtc_sensitivity,omitempty"`
	SileroSensitivity         float64 `json:"silero_sensitivity,omitempty"`
}

// Event is one server→client message: {type, data, timestamp}.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// HistoryEntry is one finalized sentence kept for `get_history`.
type HistoryEntry struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Detector is the VAD subset the recorder drives.
type Detector interface {
	IsActive(frame []int16) bool
	IsEndOfSpeech(frame []int16) bool
	ResetStates()
	SetDeactivityMode(bool)
}

var _ Detector = (*vad.Detector)(nil)

// DetectorFactory builds a fresh Detector per session, tuned by the
// client's requested sensitivities.
type DetectorFactory func(webrtcSensitivity int, sileroSensitivity float64) Detector

// Controller owns the single global Live Mode slot: only one session may be
// active at a time, independent of the Job Tracker's HTTP/file-mode slot
// (§4.9's "only one session may be active globally").
type Controller struct {
	mu          sync.Mutex
	session     *Session
	models      *modelmanager.Manager
	newDetector DetectorFactory
	recCfg      recorder.Config
	log         zerolog.Logger
}

func NewController(models *modelmanager.Manager, newDetector DetectorFactory, recCfg recorder.Config, log zerolog.Logger) *Controller {
	return &Controller{models: models, newDetector: newDetector, recCfg: recCfg, log: log.With().Str("component", "livemode").Logger()}
}

// Start begins a new Live Mode session, rejecting the request if one is
// already active.
func (c *Controller) Start(ctx context.Context, cfg StartConfig) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil, apperror.Conflict("a Live Mode session is already active")
	}

	if cfg.TranslationEnabled && cfg.TranslationTargetLanguage != "" && cfg.TranslationTargetLanguage != "en" {
		return nil, apperror.BadInput("translation target language must be \"en\" in this version")
	}

	s := &Session{
		controller: c,
		models:     c.models,
		events:     make(chan Event, eventQueueSize),
		log:        c.log,
		cfg:        cfg,
	}

	sameModel := modelmanager.IsSameModel(cfg.Model, currentMainModelName(c.models))
	s.emit("status", map[string]any{"same_model": sameModel})

	s.emit("status", map[string]any{"message": "Unloading main model..."})
	if err := c.models.UnloadMainModel(); err != nil {
		c.log.Warn().Err(err).Msg("unloading main model before live mode, continuing")
	}

	computeType := ""
	if err := c.models.LoadLiveModel(cfg.Model, computeType); err != nil {
		// Best effort: try to restore the main model before surfacing the error.
		go c.models.ReloadMainModel()
		return nil, err
	}

	decoder := c.models.LiveModel()
	if cfg.TranslationEnabled && !decoder.SupportsTranslation() {
		c.models.UnloadLiveModel()
		go c.models.ReloadMainModel()
		return nil, apperror.BadInput("the selected Live Mode model does not support translation")
	}
	s.decoder = decoder

	detector := c.newDetector(cfg.WebRTCSensitivity, cfg.SileroSensitivity)
	s.detector = detector
	s.recorder = recorder.New(c.recCfg, &detectorAdapter{detector}, recorder.Callbacks{
		OnStateChange: s.onStateChange,
	})
	s.recorder.Listen()
	s.emit("state", "LISTENING")

	c.session = s
	return s, nil
}

// currentMainModelName reads the main model's name, or "" if unloaded.
func currentMainModelName(m *modelmanager.Manager) string {
	if dec := m.MainModel(); dec != nil {
		return dec.ModelName()
	}
	return ""
}

// detectorAdapter narrows the richer Detector to recorder.Detector.
type detectorAdapter struct{ d Detector }

func (a *detectorAdapter) IsActive(frame []int16) bool      { return a.d.IsActive(frame) }
func (a *detectorAdapter) IsEndOfSpeech(frame []int16) bool { return a.d.IsEndOfSpeech(frame) }
func (a *detectorAdapter) ResetStates()                     { a.d.ResetStates() }

// Session is one live transcription session: fed PCM frames, decoded
// sentence-by-sentence, and drained by the caller's WebSocket send loop via
// Events().
type Session struct {
	controller *Controller
	models     *modelmanager.Manager
	cfg        StartConfig

	mu       sync.Mutex
	recorder *recorder.Recorder
	detector Detector
	decoder  engines.Decoder
	history  []HistoryEntry
	stopped  bool
	partialFrames int

	events chan Event
	log    zerolog.Logger
}

// Events returns the channel the transport layer should drain and forward
// as WebSocket text frames.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) emit(typ string, data any) {
	ev := Event{Type: typ, Data: data, Timestamp: time.Now().UnixMilli()}
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("type", typ).Msg("live mode event queue full, dropping message")
	}
}

// Feed submits one chunk of PCM Int16 samples (already resampled to 16kHz
// mono by the caller) into the recorder/VAD pipeline.
func (s *Session) Feed(frame []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	samples := make([]float32, len(frame))
	for i, v := range frame {
		samples[i] = float32(v) / 32768.0
	}
	s.recorder.Feed(samples, frame)

	// The live decoder is whole-utterance only (engines.Decoder has no
	// incremental API); `partial` reports recording progress rather than
	// speculative text, updated on every fed chunk while recording is active.
	if s.recorder.State() == recorder.StateRecording {
		s.partialFrames += len(frame)
		s.emit("partial", map[string]any{"elapsed_seconds": float64(s.partialFrames) / float64(s.sampleRate())})
	}
}

func (s *Session) sampleRate() int {
	if s.controller == nil {
		return 16000
	}
	if s.controller.recCfg.SampleRate == 0 {
		return 16000
	}
	return s.controller.recCfg.SampleRate
}

// onStateChange runs synchronously inside the recorder's Feed call, with the
// recorder's own lock held — it must never call back into the recorder
// (Finish/Listen) directly, or it would deadlock on that same lock. The
// transcribing branch hands off to a goroutine that runs once Feed returns.
func (s *Session) onStateChange(from, to recorder.State) {
	s.emit("state", string(to))
	if to == recorder.StateTranscribing {
		s.partialFrames = 0
		go s.decodeAndEmit()
	}
}

// decodeAndEmit finalizes the in-progress recording and decodes it on the
// live model, emitting a `sentence` event and returning the recorder to
// listening so the session keeps running without a client round trip. Runs
// on its own goroutine (spawned from onStateChange, never from inside the
// recorder's own lock) and takes s.mu itself to guard history/stopped.
func (s *Session) decodeAndEmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	frames := s.recorder.Finish()
	if len(frames) == 0 {
		s.recorder.Listen()
		s.emit("state", "LISTENING")
		return
	}

	segments, err := s.decoder.Decode(context.Background(), frames, engines.DecodeOptions{
		Language:           s.cfg.Language,
		TranslateToEnglish: s.cfg.TranslationEnabled,
	})
	if err != nil {
		s.emit("error", map[string]any{"message": err.Error()})
	} else {
		for _, seg := range segments {
			entry := HistoryEntry{Text: seg.Text, StartTime: seg.Start, EndTime: seg.End}
			s.history = append(s.history, entry)
			s.emit("sentence", entry)
		}
	}

	s.recorder.Listen()
	s.emit("state", "LISTENING")
}

// GetHistory returns all finalized sentences so far.
func (s *Session) GetHistory() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory empties the finalized-sentence history.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Stop ends the session: any in-progress recording is finalized and
// decoded, the live model is unloaded, and the main model is reloaded in
// the background so normal transcription can resume (§4.9 step 5).
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.recorder.State() != recorder.StateInactive {
		s.decodeAndEmitLocked()
	}
	s.mu.Unlock()

	s.emit("state", "STOPPED")

	if err := s.models.UnloadLiveModel(); err != nil {
		s.log.Warn().Err(err).Msg("unloading live model on stop")
	}
	go func() {
		if err := s.models.ReloadMainModel(); err != nil {
			s.log.Error().Err(err).Msg("reloading main model after live mode stop failed")
		}
	}()

	s.controller.mu.Lock()
	if s.controller.session == s {
		s.controller.session = nil
	}
	s.controller.mu.Unlock()
	close(s.events)
}

// decodeAndEmitLocked is decodeAndEmit for the caller that already holds
// s.mu (Stop), avoiding recursive locking.
func (s *Session) decodeAndEmitLocked() {
	frames := s.recorder.Finish()
	if len(frames) == 0 {
		return
	}
	segments, err := s.decoder.Decode(context.Background(), frames, engines.DecodeOptions{
		Language:           s.cfg.Language,
		TranslateToEnglish: s.cfg.TranslationEnabled,
	})
	if err != nil {
		s.emit("error", map[string]any{"message": err.Error()})
		return
	}
	for _, seg := range segments {
		entry := HistoryEntry{Text: seg.Text, StartTime: seg.Start, EndTime: seg.End}
		s.history = append(s.history, entry)
		s.emit("sentence", entry)
	}
}

// ErrNoActiveSession is returned by transport-layer lookups when a client
// message arrives without a session having been started.
var ErrNoActiveSession = fmt.Errorf("no active live mode session")
