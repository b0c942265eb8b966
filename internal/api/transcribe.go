package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/engines"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
	"github.com/homelab-00/transcription-suite/internal/notebook"
	"github.com/homelab-00/transcription-suite/internal/transcribe"
)

// TranscribeHandler serves the bare /api/transcribe/* endpoints: upload +
// decode with no persistence (§4.8's non-notebook transcription path).
type TranscribeHandler struct {
	models      *modelmanager.Manager
	uploadDir   string
	postProcess transcribe.PostProcessOptions
}

func NewTranscribeHandler(models *modelmanager.Manager, uploadDir string, postProcess transcribe.PostProcessOptions) *TranscribeHandler {
	return &TranscribeHandler{models: models, uploadDir: uploadDir, postProcess: postProcess}
}

type transcribeResponse struct {
	Segments []engines.Segment `json:"segments"`
}

// Audio handles POST /api/transcribe/audio: full transcription with word
// timestamps if the client requests them. No diarization runs on this path.
func (h *TranscribeHandler) Audio(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, true)
}

// Quick handles POST /api/transcribe/quick: the fast path, forcing word
// timestamps off regardless of client-supplied flags.
func (h *TranscribeHandler) Quick(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, false)
}

func (h *TranscribeHandler) run(w http.ResponseWriter, r *http.Request, allowWordTimestamps bool) {
	identity, _ := IdentityFromContext(r.Context())

	tempPath, _, language, wantWords, err := h.bufferUpload(r)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if !allowWordTimestamps {
		wantWords = false
	}

	ok, jobID, activeUser := h.models.Jobs.TryStartJob(identity.ClientName)
	if !ok {
		WriteAppError(w, apperror.Conflict(fmt.Sprintf("transcription already in progress for %s", activeUser)))
		return
	}
	defer h.models.Jobs.EndJob(jobID)

	decoder := h.models.MainModel()
	if decoder == nil {
		WriteAppError(w, apperror.EngineFailure("no transcription model loaded"))
		return
	}

	segments, err := transcribe.RunFileMode(r.Context(), tempPath, decoder, transcribe.FileModeOptions{
		Decode: engines.DecodeOptions{
			Language:          language,
			WordTimestamps:    wantWords,
			CancellationCheck: h.models.Jobs.IsCancelled,
		},
		PostProcess:       h.postProcess,
		CancellationCheck: h.models.Jobs.IsCancelled,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, transcribeResponse{Segments: segments})
}

// Cancel handles POST /api/transcribe/cancel.
func (h *TranscribeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ok, cancelledUser := h.models.Jobs.CancelJob()
	WriteJSON(w, http.StatusOK, map[string]any{"success": ok, "cancelled_user": cancelledUser})
}

// languages is the static list §4.8 calls for: the language codes the main
// decoder family supports, independent of which model is currently loaded.
var languages = []string{
	"en", "es", "fr", "de", "it", "pt", "nl", "ru", "zh", "ja", "ko", "ar", "hi", "tr", "pl", "sv", "el",
}

// Languages handles GET /api/transcribe/languages.
func (h *TranscribeHandler) Languages(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"languages": languages})
}

// bufferUpload reads the multipart "file" field into a temp file and
// returns it alongside the caller's original filename and decode
// preferences. Shared by the bare transcribe endpoints; the notebook
// upload endpoint has its own richer variant in notebook.go.
func (h *TranscribeHandler) bufferUpload(r *http.Request) (path, filename, language string, wordTimestamps bool, err error) {
	if err = r.ParseMultipartForm(32 << 20); err != nil {
		return "", "", "", false, apperror.BadInput("invalid multipart upload")
	}
	file, header, ferr := r.FormFile("file")
	if ferr != nil {
		return "", "", "", false, apperror.BadInput("missing \"file\" field")
	}
	defer file.Close()

	path, err = notebook.BufferUpload(file, h.uploadDir, filepath.Ext(header.Filename))
	if err != nil {
		return "", "", "", false, apperror.EngineFailure(fmt.Sprintf("buffering upload: %v", err))
	}

	language = r.FormValue("language")
	wordTimestamps = formBool(r.MultipartForm, "enable_word_timestamps")
	return path, header.Filename, language, wordTimestamps, nil
}

func formBool(form *multipart.Form, key string) bool {
	if form == nil {
		return false
	}
	vals, ok := form.Value[key]
	if !ok || len(vals) == 0 {
		return false
	}
	b, _ := strconv.ParseBool(vals[0])
	return b
}
