package api

import (
	"net/http"
	"time"

	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// HealthHandler reports database reachability and model-manager residency.
type HealthHandler struct {
	db        *database.DB
	models    *modelmanager.Manager
	version   string
	startTime time.Time
}

func NewHealthHandler(db *database.DB, models *modelmanager.Manager, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{db: db, models: models, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.models != nil {
		st := h.models.GetStatus()
		if st.MainLoaded {
			checks["main_model"] = "loaded"
		} else {
			checks["main_model"] = "unloaded"
		}
		if h.models.Jobs.IsActive() {
			checks["job_slot"] = "busy"
		} else {
			checks["job_slot"] = "idle"
		}
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
