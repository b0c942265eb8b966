package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/engines"
	"github.com/homelab-00/transcription-suite/internal/llmproxy"
)

// LLMHandler serves the /api/llm/* summarization endpoints.
type LLMHandler struct {
	client *llmproxy.Client
	db     *database.DB
}

func NewLLMHandler(client *llmproxy.Client, db *database.DB) *LLMHandler {
	return &LLMHandler{client: client, db: db}
}

type llmProcessRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

func (req llmProcessRequest) toEngineRequest() engines.SummarizeRequest {
	return engines.SummarizeRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}
}

// Process handles POST /api/llm/process.
func (h *LLMHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req llmProcessRequest
	if err := DecodeJSON(r, &req); err != nil || req.Prompt == "" {
		WriteError(w, http.StatusBadRequest, "missing prompt")
		return
	}
	result, err := h.client.Summarize(r.Context(), req.toEngineRequest())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"content": result})
}

// ProcessStream handles POST /api/llm/process/stream, framing the response
// per §6: `data: {json}\n\n` per delta, a final `data: {"done":true}\n\n`,
// or `data: {"error":"..."}\n\n` on failure.
func (h *LLMHandler) ProcessStream(w http.ResponseWriter, r *http.Request) {
	var req llmProcessRequest
	if err := DecodeJSON(r, &req); err != nil || req.Prompt == "" {
		WriteError(w, http.StatusBadRequest, "missing prompt")
		return
	}

	chunks, err := h.client.SummarizeStream(r.Context(), req.toEngineRequest())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	streamSSE(w, chunks)
}

// Summarize handles POST /api/llm/summarize/{recording_id}: builds the
// prompt from the stored transcript rather than an arbitrary client-
// supplied one.
func (h *LLMHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "recording_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	segments, err := h.db.GetSegments(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if len(segments) == 0 {
		WriteAppError(w, apperror.NotFound(fmt.Sprintf("recording %d has no transcript", id)))
		return
	}

	prompt := llmproxy.BuildTranscriptPrompt(segments)
	result, err := h.client.Summarize(r.Context(), engines.SummarizeRequest{Prompt: prompt})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if err := h.db.UpdateRecordingSummary(r.Context(), id, result, "local-llm"); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"recording_id": id, "summary": result})
}

// streamSSE drains chunks onto w as text/event-stream frames, flushing after
// every write so the client sees deltas as they arrive.
func streamSSE(w http.ResponseWriter, chunks <-chan engines.SummarizeChunk) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	for chunk := range chunks {
		var payload []byte
		switch {
		case chunk.Err != nil:
			appErr, _ := apperror.As(chunk.Err)
			msg := chunk.Err.Error()
			if appErr != nil {
				msg = appErr.Message
			}
			payload, _ = json.Marshal(map[string]any{"error": msg})
		case chunk.Done:
			payload, _ = json.Marshal(map[string]any{"done": true})
		default:
			payload, _ = json.Marshal(map[string]any{"content": chunk.Content})
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
		if chunk.Err != nil || chunk.Done {
			return
		}
	}
}
