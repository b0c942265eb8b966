package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/homelab-00/transcription-suite/internal/database"
)

// SearchHandler serves GET /api/search/: a unified FTS5 search across
// transcript words and recording metadata.
type SearchHandler struct {
	db *database.DB
}

func NewSearchHandler(db *database.DB) *SearchHandler {
	return &SearchHandler{db: db}
}

type searchResponse struct {
	Words       []database.WordSearchHit      `json:"words"`
	Recordings  []database.RecordingSearchHit `json:"recordings"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		WriteError(w, http.StatusBadRequest, "missing query parameter \"q\"")
		return
	}
	limit := QueryInt(r, "limit", 50)

	var dateRange database.DateRange
	if from, ok := QueryTime(r, "start_date"); ok {
		dateRange.From = &from
	}
	if to, ok := QueryTime(r, "end_date"); ok {
		dateRange.To = &to
	}

	words, err := h.db.SearchWords(r.Context(), ftsQuery(query), dateRange, limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	recordings, err := h.db.SearchRecordingMetadata(r.Context(), ftsQuery(query), dateRange, limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, searchResponse{Words: words, Recordings: recordings})
}

// ftsQuery wraps the user's raw query as an FTS5 prefix match on every
// token, matching the "fuzzy" (partial-word) search behavior §4's search
// endpoint calls for without needing a separate fuzzy flag query plan.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = strconv.Quote(f) + "*"
	}
	return strings.Join(fields, " ")
}
