package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/homelab-00/transcription-suite/internal/apperror"
)

// HTTPDiarizer implements Diarizer against a local pyannote-compatible HTTP
// server, the same external-process delegation pattern as HTTPDecoder.
type HTTPDiarizer struct {
	url    string
	client *http.Client
}

var _ Diarizer = (*HTTPDiarizer)(nil)

func NewHTTPDiarizer(url string) *HTTPDiarizer {
	return &HTTPDiarizer{url: url, client: &http.Client{Timeout: 10 * time.Minute}}
}

func (d *HTTPDiarizer) Close() error { return nil }

type diarizeResponseEntry struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarize posts WAV-encoded audio plus the requested speaker bounds to the
// diarization backend and returns its speaker-labeled segments.
func (d *HTTPDiarizer) Diarize(ctx context.Context, samples []float32, opts DiarizeOptions) ([]DiarizationSegment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, apperror.EngineFailure(fmt.Sprintf("building diarization request: %v", err))
	}
	if err := writeWAV(part, samples, 16000); err != nil {
		return nil, apperror.EngineFailure(fmt.Sprintf("encoding audio: %v", err))
	}
	if opts.NumSpeakers > 0 {
		mw.WriteField("num_speakers", fmt.Sprintf("%d", opts.NumSpeakers))
	}
	if opts.MinSpeakers > 0 {
		mw.WriteField("min_speakers", fmt.Sprintf("%d", opts.MinSpeakers))
	}
	if opts.MaxSpeakers > 0 {
		mw.WriteField("max_speakers", fmt.Sprintf("%d", opts.MaxSpeakers))
	}
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return nil, apperror.EngineFailure(fmt.Sprintf("building diarization request: %v", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperror.UpstreamUnavailable(fmt.Sprintf("diarization backend unreachable: %v", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.UpstreamUnavailable(fmt.Sprintf("reading diarization response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperror.UpstreamUnavailable(fmt.Sprintf("diarization backend returned %d: %s", resp.StatusCode, payload))
	}

	var entries []diarizeResponseEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, apperror.EngineFailure(fmt.Sprintf("parsing diarization response: %v", err))
	}

	segments := make([]DiarizationSegment, len(entries))
	for i, e := range entries {
		segments[i] = DiarizationSegment{Start: e.Start, End: e.End, Speaker: e.Speaker}
	}
	return segments, nil
}
