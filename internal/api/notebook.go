package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/notebook"
	"github.com/homelab-00/transcription-suite/internal/transcribe"
)

// NotebookHandler serves the /api/notebook/* persistence endpoints.
type NotebookHandler struct {
	db           *database.DB
	orchestrator *notebook.Orchestrator
	uploadDir    string
	backupDir    string
	dbPath       string
	backupPolicy database.BackupPolicy
	log          zerolog.Logger
}

func NewNotebookHandler(db *database.DB, orchestrator *notebook.Orchestrator, uploadDir, backupDir, dbPath string, backupPolicy database.BackupPolicy, log zerolog.Logger) *NotebookHandler {
	return &NotebookHandler{db: db, orchestrator: orchestrator, uploadDir: uploadDir, backupDir: backupDir, dbPath: dbPath, backupPolicy: backupPolicy, log: log.With().Str("component", "notebook-api").Logger()}
}

// Upload handles POST /api/notebook/transcribe/upload.
func (h *NotebookHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	if err := r.ParseMultipartForm(512 << 20); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing \"file\" field")
		return
	}
	defer file.Close()

	tempPath, err := notebook.BufferUpload(file, h.uploadDir, filepath.Ext(header.Filename))
	if err != nil {
		WriteAppError(w, apperror.EngineFailure(fmt.Sprintf("buffering upload: %v", err)))
		return
	}

	req := notebook.UploadRequest{
		TempFilePath:         tempPath,
		OriginalFilename:     header.Filename,
		ClientName:           identity.ClientName,
		Language:             r.FormValue("language"),
		EnableWordTimestamps: formValueBool(r, "enable_word_timestamps"),
		EnableDiarization:    formValueBool(r, "enable_diarization"),
		PostProcess:          transcribe.PostProcessOptions{CapitalizeFirst: true, EnsureEndPeriod: true, CollapseWhitespace: true},
	}
	if raw := r.FormValue("file_created_at"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			req.FileCreatedAt = &t
		}
	}

	result, err := h.orchestrator.Upload(r.Context(), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func formValueBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.FormValue(key))
	return b
}

// List handles GET /api/notebook/recordings.
func (h *NotebookHandler) List(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time
	if t, ok := QueryTime(r, "start_date"); ok {
		from = &t
	}
	if t, ok := QueryTime(r, "end_date"); ok {
		to = &t
	}
	recordings, err := h.db.ListRecordings(r.Context(), from, to)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"recordings": recordings})
}

// Detail handles GET /api/notebook/recordings/{id}.
func (h *NotebookHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	recording, err := h.db.GetRecording(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	segments, err := h.db.GetSegments(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	words, err := h.db.GetWords(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"recording": recording,
		"segments":  segments,
		"words":     words,
	})
}

// Delete handles DELETE /api/notebook/recordings/{id}: the database row is
// dropped first, then the underlying audio file — matching the teacher's
// DeleteRecording doc comment on why row-then-file is the safer order.
func (h *NotebookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	recording, err := h.db.GetRecording(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if err := h.db.DeleteRecording(r.Context(), id); err != nil {
		WriteAppError(w, err)
		return
	}
	if err := os.Remove(recording.Filepath); err != nil && !os.IsNotExist(err) {
		WriteAppError(w, apperror.EngineFailure(fmt.Sprintf("deleting audio file: %v", err)))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

type titleRequest struct {
	Title string `json:"title"`
}

// UpdateTitle handles PATCH /api/notebook/recordings/{id}/title.
func (h *NotebookHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	var req titleRequest
	if err := DecodeJSON(r, &req); err != nil || req.Title == "" {
		WriteError(w, http.StatusBadRequest, "title must not be empty")
		return
	}
	if err := h.db.UpdateRecordingTitle(r.Context(), id, req.Title); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "title": req.Title})
}

type summaryRequest struct {
	Summary string `json:"summary"`
	Model   string `json:"model"`
}

// UpdateSummary handles PATCH /api/notebook/recordings/{id}/summary.
func (h *NotebookHandler) UpdateSummary(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	var req summaryRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.db.UpdateRecordingSummary(r.Context(), id, req.Summary, req.Model); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"id": id})
}

// Audio handles GET /api/notebook/recordings/{id}/audio, serving the file
// with HTTP Range support via the stdlib's ServeContent (the same primitive
// the teacher's call-audio endpoint uses).
func (h *NotebookHandler) Audio(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	recording, err := h.db.GetRecording(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	f, err := os.Open(recording.Filepath)
	if err != nil {
		WriteAppError(w, apperror.NotFound("audio file not found on disk"))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		WriteAppError(w, apperror.EngineFailure("stat audio file"))
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, recording.Filename, info.ModTime(), f)
}

// Transcription handles GET /api/notebook/recordings/{id}/transcription:
// segments grouped with their embedded words.
func (h *NotebookHandler) Transcription(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	if _, err := h.db.GetRecording(r.Context(), id); err != nil {
		WriteAppError(w, err)
		return
	}
	segments, err := h.db.GetSegments(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	words, err := h.db.GetWords(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"segments": groupWordsBySegment(segments, words)})
}

type segmentWithWords struct {
	database.Segment
	Words []database.Word `json:"words"`
}

func groupWordsBySegment(segments []database.Segment, words []database.Word) []segmentWithWords {
	bySegment := make(map[int64][]database.Word)
	var unassigned []database.Word
	for _, w := range words {
		if w.SegmentID != nil {
			bySegment[*w.SegmentID] = append(bySegment[*w.SegmentID], w)
		} else {
			unassigned = append(unassigned, w)
		}
	}
	out := make([]segmentWithWords, len(segments))
	for i, s := range segments {
		out[i] = segmentWithWords{Segment: s, Words: bySegment[s.ID]}
	}
	if len(unassigned) > 0 && len(out) > 0 {
		out[0].Words = append(out[0].Words, unassigned...)
	}
	return out
}

// Export handles GET /api/notebook/recordings/{id}/export?format=txt|srt|ass.
func (h *NotebookHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	format, err := notebook.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if _, err := h.db.GetRecording(r.Context(), id); err != nil {
		WriteAppError(w, err)
		return
	}
	segments, err := h.db.GetSegments(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	words, err := h.db.GetWords(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	rendered, err := notebook.Render(format, segments, words)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(rendered))
}

// Calendar handles GET /api/notebook/calendar?year,month.
func (h *NotebookHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	year := QueryInt(r, "year", time.Now().Year())
	month := QueryInt(r, "month", int(time.Now().Month()))
	groups, err := notebook.Calendar(r.Context(), h.db, year, month)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"days": groups})
}

// Timeslot handles GET /api/notebook/timeslot?date,hour.
func (h *NotebookHandler) Timeslot(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	hour := QueryInt(r, "hour", 0)
	if date == "" {
		WriteError(w, http.StatusBadRequest, "missing date")
		return
	}
	slot, err := notebook.TimeSlot(r.Context(), h.db, date, hour)
	if err != nil {
		WriteAppError(w, apperror.BadInput(fmt.Sprintf("invalid date: %v", err)))
		return
	}
	WriteJSON(w, http.StatusOK, slot)
}

// Backups handles GET /api/notebook/backups.
func (h *NotebookHandler) Backups(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.backupDir)
	if err != nil && !os.IsNotExist(err) {
		WriteAppError(w, apperror.EngineFailure(fmt.Sprintf("listing backups: %v", err)))
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"backups": names})
}

// Backup handles POST /api/notebook/backup.
func (h *NotebookHandler) Backup(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Backup(r.Context(), h.dbPath, h.backupDir, time.Now()); err != nil {
		WriteAppError(w, apperror.EngineFailure(fmt.Sprintf("backup failed: %v", err)))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type restoreRequest struct {
	Filename string `json:"filename"`
}

// Restore handles POST /api/notebook/restore.
func (h *NotebookHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := DecodeJSON(r, &req); err != nil || req.Filename == "" {
		WriteError(w, http.StatusBadRequest, "missing filename")
		return
	}
	backupPath := filepath.Join(h.backupDir, filepath.Base(req.Filename))
	if _, err := os.Stat(backupPath); err != nil {
		WriteAppError(w, apperror.NotFound(fmt.Sprintf("backup %q not found", req.Filename)))
		return
	}
	if err := h.db.Restore(r.Context(), h.dbPath, backupPath, h.backupDir, h.log); err != nil {
		WriteAppError(w, apperror.EngineFailure(fmt.Sprintf("restore failed: %v", err)))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
