package api

import (
	"fmt"
	"net/http"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
)

// AdminHandler serves the admin-only /api/admin/* endpoints: model
// residency status and load/unload control. Mounted behind RequireAdmin.
type AdminHandler struct {
	models *modelmanager.Manager
}

func NewAdminHandler(models *modelmanager.Manager) *AdminHandler {
	return &AdminHandler{models: models}
}

type adminStatusResponse struct {
	modelmanager.Status
	JobActive bool `json:"job_active"`
}

// Status handles GET /api/admin/status.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, adminStatusResponse{
		Status:    h.models.GetStatus(),
		JobActive: h.models.Jobs.IsActive(),
	})
}

type loadModelRequest struct {
	Target      string `json:"target"` // "main" | "live" | "diarization"
	ModelName   string `json:"model_name"`
	Device      string `json:"device"`
	ComputeType string `json:"compute_type"`
}

// LoadModel handles POST /api/admin/models/load.
func (h *AdminHandler) LoadModel(w http.ResponseWriter, r *http.Request) {
	var req loadModelRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch req.Target {
	case "main":
		err = h.models.LoadMainModel(req.ModelName, req.ComputeType)
	case "live":
		err = h.models.LoadLiveModel(req.ModelName, req.ComputeType)
	case "diarization":
		err = h.models.LoadDiarizationModel(req.ModelName, req.Device)
	default:
		WriteAppError(w, apperror.BadInput(fmt.Sprintf("unknown model target %q", req.Target)))
		return
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.models.GetStatus())
}

type unloadModelRequest struct {
	Target string `json:"target"`
}

// UnloadModel handles POST /api/admin/models/unload.
func (h *AdminHandler) UnloadModel(w http.ResponseWriter, r *http.Request) {
	var req unloadModelRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch req.Target {
	case "main":
		err = h.models.UnloadMainModel()
	case "live":
		err = h.models.UnloadLiveModel()
	case "diarization":
		err = h.models.UnloadDiarizationModel()
	default:
		WriteAppError(w, apperror.BadInput(fmt.Sprintf("unknown model target %q", req.Target)))
		return
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.models.GetStatus())
}
