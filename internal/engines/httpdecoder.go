package engines

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/homelab-00/transcription-suite/internal/apperror"
)

// HTTPDecoder implements Decoder against a local faster-whisper-compatible
// HTTP server (e.g. speaches, whisper-server): the same OpenAI-shaped
// /v1/audio/transcriptions multipart endpoint the teacher's WhisperClient
// already spoke to for call-audio transcription, pointed instead at the
// per-request raw PCM this service decodes rather than a file on disk.
type HTTPDecoder struct {
	url         string
	modelName   string
	computeType string
	translation bool
	client      *http.Client
}

var _ Decoder = (*HTTPDecoder)(nil)

// NewHTTPDecoder constructs a Decoder that posts WAV-encoded audio to url
// (a faster-whisper-compatible /v1/audio/transcriptions endpoint).
// supportsTranslation reflects whether modelName is known to support
// Whisper's built-in translate task (the multilingual models do; the
// English-only `.en` variants do not).
func NewHTTPDecoder(url, modelName, computeType string, supportsTranslation bool) *HTTPDecoder {
	return &HTTPDecoder{
		url:         url,
		modelName:   modelName,
		computeType: computeType,
		translation: supportsTranslation,
		client:      &http.Client{Timeout: 10 * time.Minute},
	}
}

func (d *HTTPDecoder) ModelName() string         { return d.modelName }
func (d *HTTPDecoder) SupportsTranslation() bool  { return d.translation }
func (d *HTTPDecoder) Close() error               { return nil }

// verboseJSONResponse mirrors the OpenAI verbose_json transcription shape.
type verboseJSONResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word       string  `json:"word"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Confidence float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// Decode encodes samples as a WAV file and posts it to the configured
// faster-whisper-compatible endpoint, polling CancellationCheck before the
// request is dispatched and again between the returned segments (the
// server-side decode itself cannot be interrupted mid-flight).
func (d *HTTPDecoder) Decode(ctx context.Context, samples []float32, opts DecodeOptions) ([]Segment, error) {
	if opts.CancellationCheck != nil && opts.CancellationCheck() {
		return nil, apperror.ClientCancelled("transcription cancelled")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, apperror.EngineFailure(fmt.Sprintf("building transcription request: %v", err))
	}
	if err := writeWAV(part, samples, 16000); err != nil {
		return nil, apperror.EngineFailure(fmt.Sprintf("encoding audio: %v", err))
	}

	mw.WriteField("model", d.modelName)
	mw.WriteField("response_format", "verbose_json")
	mw.WriteField("timestamp_granularities[]", "word")
	if opts.Language != "" {
		mw.WriteField("language", opts.Language)
	}
	if opts.InitialPrompt != "" {
		mw.WriteField("prompt", opts.InitialPrompt)
	}
	if opts.BeamSize > 0 {
		mw.WriteField("beam_size", fmt.Sprintf("%d", opts.BeamSize))
	}
	if opts.TranslateToEnglish {
		mw.WriteField("task", "translate")
	}
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return nil, apperror.EngineFailure(fmt.Sprintf("building transcription request: %v", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperror.UpstreamUnavailable(fmt.Sprintf("transcription backend unreachable: %v", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.UpstreamUnavailable(fmt.Sprintf("reading transcription response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperror.UpstreamUnavailable(fmt.Sprintf("transcription backend returned %d: %s", resp.StatusCode, payload))
	}

	var parsed verboseJSONResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, apperror.EngineFailure(fmt.Sprintf("parsing transcription response: %v", err))
	}

	segments := make([]Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		if opts.CancellationCheck != nil && opts.CancellationCheck() {
			return nil, apperror.ClientCancelled("transcription cancelled")
		}
		seg := Segment{Start: s.Start, End: s.End, Text: s.Text}
		if opts.WordTimestamps {
			for _, w := range s.Words {
				seg.Words = append(seg.Words, Word{Text: w.Word, Start: w.Start, End: w.End, Confidence: w.Confidence})
			}
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// writeWAV encodes mono float32 samples as 16-bit PCM WAV, the upload shape
// every OpenAI-compatible transcription endpoint expects.
func writeWAV(w io.Writer, samples []float32, sampleRate int) error {
	dataSize := len(samples) * 2
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
	if _, err := w.Write(header); err != nil {
		return err
	}

	buf := make([]byte, dataSize)
	for i, s := range samples {
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	_, err := w.Write(buf)
	return err
}
