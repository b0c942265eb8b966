package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homelab-00/transcription-suite/internal/apperror"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the consistent error envelope spec §7 requires.
type errorBody struct {
	Detail string `json:"detail"`
}

// WriteAppError translates an *apperror.Error to its HTTP status and the
// {"detail": "..."} envelope. Any other error is treated as unexpected:
// reported as 500 with no internals leaked.
func WriteAppError(w http.ResponseWriter, err error) {
	if appErr, ok := apperror.As(err); ok {
		WriteJSON(w, appErr.Status, errorBody{Detail: appErr.Message})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, errorBody{Detail: "Internal server error"})
}

// WriteError writes a {"detail": msg} error body with an explicit status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Detail: msg})
}

// PathInt64 extracts an int64 from a chi URL parameter.
func PathInt64(r *http.Request, name string) (int64, error) {
	v := chi.URLParam(r, name)
	if v == "" {
		return 0, fmt.Errorf("missing path parameter: %s", name)
	}
	return strconv.ParseInt(v, 10, 64)
}

// QueryInt extracts an integer query parameter, returning def if missing or invalid.
func QueryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// QueryTime extracts an RFC 3339 time query parameter.
func QueryTime(r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
