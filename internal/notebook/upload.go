// Package notebook orchestrates the audio-notebook persistence flows on top
// of internal/database and internal/transcribe: upload→transcribe→persist
// (§4.10 step 1-9), and the TXT/SRT/ASS export renderers. Grounded on the
// teacher's internal/ingest/pipeline.go, which wires a similar
// buffer→decode→persist sequence behind a single orchestration type.
package notebook

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/diarize"
	"github.com/homelab-00/transcription-suite/internal/engines"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
	"github.com/homelab-00/transcription-suite/internal/transcribe"
)

// UploadRequest carries a buffered upload plus the client's transcription
// preferences, already resolved from form fields/headers by the HTTP layer.
type UploadRequest struct {
	TempFilePath        string
	OriginalFilename     string
	ClientName           string
	Language             string
	EnableWordTimestamps bool
	EnableDiarization    bool
	FileCreatedAt        *time.Time
	PostProcess          transcribe.PostProcessOptions
}

// UploadResult is the JSON body returned from the upload endpoint.
type UploadResult struct {
	RecordingID int64  `json:"recording_id"`
	Message     string `json:"message"`
}

// Orchestrator ties the Job Tracker, the decoder/diarizer handles, the audio
// converter, and the database together for the notebook's upload pipeline.
type Orchestrator struct {
	db          *database.DB
	models      *modelmanager.Manager
	transcoder  engines.Transcoder
	audioDir    string
	mp3Bitrate  int
	maxSegChars int
	log         zerolog.Logger
}

func NewOrchestrator(db *database.DB, models *modelmanager.Manager, transcoder engines.Transcoder, audioDir string, mp3Bitrate, maxSegChars int, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		db:          db,
		models:      models,
		transcoder:  transcoder,
		audioDir:    audioDir,
		mp3Bitrate:  mp3Bitrate,
		maxSegChars: maxSegChars,
		log:         log.With().Str("component", "notebook").Logger(),
	}
}

// Upload runs the full §4.10 pipeline: reserve the job slot, transcribe,
// optionally diarize, check the time slot, convert to MP3, and persist
// everything in one transaction. The temp file is always removed before
// returning, success or failure.
func (o *Orchestrator) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	defer os.Remove(req.TempFilePath)

	ok, jobID, activeUser := o.models.Jobs.TryStartJob(req.ClientName)
	if !ok {
		return nil, apperror.Conflict(fmt.Sprintf("transcription already in progress for %s", activeUser))
	}
	defer o.models.Jobs.EndJob(jobID)

	decoder := o.models.MainModel()
	if decoder == nil {
		return nil, apperror.EngineFailure("no transcription model loaded")
	}

	// Word timestamps are forced on whenever diarization is requested,
	// regardless of the client's preference, since diarization alignment
	// needs per-word timing (§4.10 step 3).
	wantWords := req.EnableWordTimestamps || req.EnableDiarization

	segments, err := transcribe.RunFileMode(ctx, req.TempFilePath, decoder, transcribe.FileModeOptions{
		Decode: engines.DecodeOptions{
			Language:          req.Language,
			WordTimestamps:    wantWords,
			CancellationCheck: o.models.Jobs.IsCancelled,
		},
		PostProcess:       req.PostProcess,
		CancellationCheck: o.models.Jobs.IsCancelled,
	})
	if err != nil {
		return nil, err
	}

	dbSegments, dbWords := flattenSegments(segments)

	hasDiarization := false
	if req.EnableDiarization {
		diarizer := o.models.DiarizationModel()
		if diarizer == nil {
			o.log.Warn().Msg("diarization requested but no diarization model loaded, continuing without speakers")
		} else {
			diarized, err := o.runDiarization(ctx, req.TempFilePath, diarizer, dbWords)
			if err != nil {
				// Diarization failure is not fatal (§7): persist the plain
				// transcript and log.
				o.log.Warn().Err(err).Msg("diarization failed, persisting transcript without speakers")
			} else {
				dbSegments = diarized.segments
				dbWords = diarized.words
				hasDiarization = true
			}
		}
	}

	createdAt := time.Now().UTC()
	if req.FileCreatedAt != nil {
		createdAt = *req.FileCreatedAt
	}

	duration := 0.0
	if len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	if overlaps, colliding, err := o.checkOverlap(ctx, createdAt, duration); err != nil {
		return nil, err
	} else if overlaps {
		return nil, apperror.Conflict(fmt.Sprintf("recording overlaps existing recording %s", colliding))
	}

	finalPath, err := o.convertToMP3(ctx, req.TempFilePath, req.OriginalFilename)
	if err != nil {
		return nil, err
	}

	recording := database.Recording{
		Filename:        filepath.Base(finalPath),
		Filepath:        finalPath,
		DurationSeconds: duration,
		RecordedAt:      createdAt,
		ImportedAt:      time.Now().UTC(),
		HasDiarization:  hasDiarization,
	}
	recordingID, err := o.db.InsertRecording(ctx, recording)
	if err != nil {
		os.Remove(finalPath)
		return nil, err
	}

	for i := range dbSegments {
		dbSegments[i].RecordingID = recordingID
	}
	for i := range dbWords {
		dbWords[i].RecordingID = recordingID
	}
	if err := o.db.InsertTranscript(ctx, recordingID, dbSegments, dbWords); err != nil {
		return nil, err
	}

	return &UploadResult{RecordingID: recordingID, Message: "transcription saved"}, nil
}

func (o *Orchestrator) checkOverlap(ctx context.Context, start time.Time, durationSeconds float64) (bool, string, error) {
	overlaps, collision, err := o.db.CheckTimeSlotOverlap(ctx, start, time.Duration(durationSeconds*float64(time.Second)), 0)
	if err != nil {
		return false, "", err
	}
	if !overlaps {
		return false, "", nil
	}
	return true, collision.Title, nil
}

type diarizedTranscript struct {
	segments []database.Segment
	words    []database.Word
}

func (o *Orchestrator) runDiarization(ctx context.Context, path string, diarizer engines.Diarizer, words []database.Word) (*diarizedTranscript, error) {
	samples, err := o.transcoder.ToPCM16Mono(ctx, path, 16000)
	if err != nil {
		return nil, fmt.Errorf("decoding audio for diarization: %w", err)
	}
	float32Samples := make([]float32, len(samples))
	for i, s := range samples {
		float32Samples[i] = float32(s) / 32768.0
	}

	diarSegments, err := diarize.Run(ctx, diarizer, float32Samples, engines.DiarizeOptions{})
	if err != nil {
		return nil, err
	}

	assigned := diarize.AssignSpeakers(words, diarSegments)
	grouped, segIndices := diarize.GroupBySpeaker(assigned, o.maxSegChars)

	outWords := make([]database.Word, len(assigned))
	for i, aw := range assigned {
		w := aw.Word
		idx := int64(segIndices[i])
		w.SegmentID = &idx
		outWords[i] = w
	}
	return &diarizedTranscript{segments: diarize.ToSegments(grouped), words: outWords}, nil
}

// sanitizeFilenamePattern matches every character NOT in the allowed set,
// per §8's boundary test: "../../etc/passwd.wav" must map to a path with no
// escape out of audio_dir.
var sanitizeFilenamePattern = regexp.MustCompile(`[^a-zA-Z0-9._\- ]`)

const maxStemLength = 100

// sanitizeStem strips path separators and any character outside
// alphanumeric + "._- ", then truncates.
func sanitizeStem(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = sanitizeFilenamePattern.ReplaceAllString(stem, "_")
	stem = strings.TrimSpace(stem)
	if stem == "" {
		stem = "recording"
	}
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}
	return stem
}

// convertToMP3 picks a collision-free destination path under audioDir and
// converts the temp file into it.
func (o *Orchestrator) convertToMP3(ctx context.Context, tempPath, originalFilename string) (string, error) {
	stem := sanitizeStem(originalFilename)
	dest := filepath.Join(o.audioDir, stem+".mp3")
	for i := 2; fileExists(dest); i++ {
		dest = filepath.Join(o.audioDir, fmt.Sprintf("%s-%d.mp3", stem, i))
	}
	if err := os.MkdirAll(o.audioDir, 0o755); err != nil {
		return "", fmt.Errorf("creating audio dir: %w", err)
	}
	if err := o.transcoder.ToMP3(ctx, tempPath, dest, o.mp3Bitrate); err != nil {
		return "", apperror.EngineFailure(fmt.Sprintf("converting to mp3: %v", err))
	}
	return dest, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// flattenSegments converts decoded segments into their database rows. Each
// word's SegmentID is set to the segment's index within the returned slice
// (not yet a real row id — InsertTranscript resolves it to the segment's
// actual id once the segments themselves are inserted).
func flattenSegments(segments []engines.Segment) ([]database.Segment, []database.Word) {
	dbSegments := make([]database.Segment, 0, len(segments))
	var dbWords []database.Word
	for i, s := range segments {
		dbSegments = append(dbSegments, database.Segment{
			StartTime: s.Start,
			EndTime:   s.End,
			Text:      s.Text,
		})
		for _, w := range s.Words {
			segIndex := int64(i)
			word := database.Word{
				Text:      w.Text,
				StartTime: w.Start,
				EndTime:   w.End,
				SegmentID: &segIndex,
			}
			if w.Confidence != 0 {
				c := w.Confidence
				word.Confidence = &c
			}
			dbWords = append(dbWords, word)
		}
	}
	return dbSegments, dbWords
}

// BufferUpload copies an incoming upload stream to a temp file under dir,
// returning its path. The caller (or Upload, via defer) is responsible for
// removing it.
func BufferUpload(r io.Reader, dir, suffix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload temp dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "upload-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("creating temp upload file: %w", err)
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, r); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("buffering upload: %w", err)
	}
	return tmp.Name(), nil
}
