// Package modelmanager owns the singleton model handles (main transcription,
// live transcription, diarization) and the Job Tracker that serializes
// access to them. Grounded on the teacher's worker.go pattern of a single
// shared worker per resource (no pool, since only one decode may run at a
// time) and its zerolog-based status logging.
package modelmanager

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/engines"
)

// DecoderLoader and DiarizerLoader construct a Decoder or Diarizer for a
// given model name. Swapped out in tests for a fake.
type DecoderLoader func(modelName, device, computeType string) (engines.Decoder, error)
type DiarizerLoader func(modelName, device string) (engines.Diarizer, error)

// Status reports which models are resident for the admin status endpoint.
type Status struct {
	MainLoaded        bool   `json:"main_loaded"`
	MainModel         string `json:"main_model,omitempty"`
	LiveLoaded        bool   `json:"live_loaded"`
	LiveModel         string `json:"live_model,omitempty"`
	DiarizationLoaded bool   `json:"diarization_loaded"`
	Device            string `json:"device"`
}

// Manager is the singleton owner of the model handles. One Manager exists
// per server process.
type Manager struct {
	mu sync.Mutex

	loadDecoder  DecoderLoader
	loadDiarizer DiarizerLoader
	device       string

	main         engines.Decoder
	live         engines.Decoder
	diarization  engines.Diarizer

	log zerolog.Logger

	Jobs *JobTracker
}

// New constructs a Manager. loadDecoder/loadDiarizer are the constructors
// for real engine handles; device is reported in Status.
func New(loadDecoder DecoderLoader, loadDiarizer DiarizerLoader, device string, log zerolog.Logger) *Manager {
	return &Manager{
		loadDecoder:  loadDecoder,
		loadDiarizer: loadDiarizer,
		device:       device,
		log:          log,
		Jobs:         NewJobTracker(),
	}
}

// LoadMainModel loads (or replaces) the main transcription model.
func (m *Manager) LoadMainModel(modelName, computeType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dec, err := m.loadDecoder(modelName, m.device, computeType)
	if err != nil {
		return apperror.EngineFailure(fmt.Sprintf("loading main model %s: %v", modelName, err))
	}
	if m.main != nil {
		if cerr := m.main.Close(); cerr != nil {
			m.log.Warn().Err(cerr).Msg("closing previous main model")
		}
	}
	m.main = dec
	m.log.Info().Str("model", modelName).Msg("main model loaded")
	return nil
}

// UnloadMainModel releases the main model's resources. Always permitted
// while no job is active; calling it while a job holds the slot is caller
// error and is not itself prevented here.
func (m *Manager) UnloadMainModel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.main == nil {
		return nil
	}
	err := m.main.Close()
	m.main = nil
	if err != nil {
		m.log.Warn().Err(err).Msg("unloading main model")
		return nil // absence of the main model on unload is not fatal
	}
	m.log.Info().Msg("main model unloaded")
	return nil
}

// ReloadMainModel unloads and reloads the main model with the same name and
// compute type it was last loaded with.
func (m *Manager) ReloadMainModel() error {
	m.mu.Lock()
	name, computeType := "", ""
	if m.main != nil {
		name = m.main.ModelName()
	}
	m.mu.Unlock()
	if name == "" {
		return nil
	}
	if err := m.UnloadMainModel(); err != nil {
		return err
	}
	return m.LoadMainModel(name, computeType)
}

// LoadLiveModel loads the Live Mode model.
func (m *Manager) LoadLiveModel(modelName, computeType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dec, err := m.loadDecoder(modelName, m.device, computeType)
	if err != nil {
		return apperror.EngineFailure(fmt.Sprintf("loading live model %s: %v", modelName, err))
	}
	if m.live != nil {
		if cerr := m.live.Close(); cerr != nil {
			m.log.Warn().Err(cerr).Msg("closing previous live model")
		}
	}
	m.live = dec
	m.log.Info().Str("model", modelName).Msg("live model loaded")
	return nil
}

// UnloadLiveModel releases the Live Mode model's resources.
func (m *Manager) UnloadLiveModel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return nil
	}
	err := m.live.Close()
	m.live = nil
	if err != nil {
		m.log.Warn().Err(err).Msg("unloading live model")
	}
	return nil
}

// LoadDiarizationModel loads the diarization model. An auth-token error
// (e.g. missing Hugging Face token) is a configuration error surfaced here,
// at load time, not deferred to first diarize request.
func (m *Manager) LoadDiarizationModel(modelName, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.loadDiarizer(modelName, device)
	if err != nil {
		return apperror.BadInput(fmt.Sprintf("loading diarization model: %v", err))
	}
	m.diarization = d
	m.log.Info().Str("model", modelName).Msg("diarization model loaded")
	return nil
}

func (m *Manager) UnloadDiarizationModel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.diarization == nil {
		return nil
	}
	err := m.diarization.Close()
	m.diarization = nil
	return err
}

// MainModel returns the resident main decoder, or nil if unloaded.
func (m *Manager) MainModel() engines.Decoder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.main
}

// LiveModel returns the resident live decoder, or nil if unloaded.
func (m *Manager) LiveModel() engines.Decoder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// DiarizationModel returns the resident diarizer, or nil if unloaded.
func (m *Manager) DiarizationModel() engines.Diarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diarization
}

// IsSameModel reports whether two model names refer to the same weights.
// Live Mode reports the result to the client as `same_model`; it unloads
// the main model and loads the live model whether or not they match.
func IsSameModel(a, b string) bool {
	return a != "" && a == b
}

// MainModelLoaded reports whether the main transcription model is resident.
// Satisfies metrics.ModelStats.
func (m *Manager) MainModelLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.main != nil
}

// LiveModelLoaded reports whether the live transcription model is resident.
// Satisfies metrics.ModelStats.
func (m *Manager) LiveModelLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live != nil
}

// JobActive reports whether a transcription job currently holds the job
// slot. Satisfies metrics.ModelStats.
func (m *Manager) JobActive() bool {
	return m.Jobs.IsActive()
}

// GetStatus reports which models are currently resident.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{Device: m.device}
	if m.main != nil {
		s.MainLoaded = true
		s.MainModel = m.main.ModelName()
	}
	if m.live != nil {
		s.LiveLoaded = true
		s.LiveModel = m.live.ModelName()
	}
	s.DiarizationLoaded = m.diarization != nil
	return s
}

// JobTracker is a single-slot mutex guarding access to the model handles: at
// most one transcription job runs at a time, across HTTP and WebSocket
// paths alike.
type JobTracker struct {
	mu               sync.Mutex
	active           bool
	jobID            string
	activeClientName string
	cancelRequested  bool
	startedAt        time.Time
}

func NewJobTracker() *JobTracker {
	return &JobTracker{}
}

// TryStartJob attempts to acquire the single job slot. If another job is
// already active, it returns ok=false and the name of the client holding
// the slot, which the router translates to HTTP 409.
func (j *JobTracker) TryStartJob(clientName string) (ok bool, jobID string, activeUser string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active {
		return false, "", j.activeClientName
	}
	j.active = true
	j.activeClientName = clientName
	j.cancelRequested = false
	j.jobID = fmt.Sprintf("job-%d", time.Now().UnixNano())
	j.startedAt = time.Now()
	return true, j.jobID, ""
}

// EndJob releases the slot. jobID is checked so a stale caller can't release
// a job it no longer owns.
func (j *JobTracker) EndJob(jobID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.jobID != jobID {
		return
	}
	j.active = false
	j.jobID = ""
	j.activeClientName = ""
	j.cancelRequested = false
}

// CancelJob requests cancellation of the active job. Returns ok=false if no
// job is active.
func (j *JobTracker) CancelJob() (ok bool, cancelledUser string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.active {
		return false, ""
	}
	j.cancelRequested = true
	return true, j.activeClientName
}

// IsCancelled is polled by the engine between output segments.
func (j *JobTracker) IsCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// IsActive reports whether a job currently holds the slot.
func (j *JobTracker) IsActive() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}
