package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/api"
	"github.com/homelab-00/transcription-suite/internal/audio"
	"github.com/homelab-00/transcription-suite/internal/config"
	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/database/migrations"
	"github.com/homelab-00/transcription-suite/internal/engines"
	"github.com/homelab-00/transcription-suite/internal/livemode"
	"github.com/homelab-00/transcription-suite/internal/llmproxy"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
	"github.com/homelab-00/transcription-suite/internal/notebook"
	"github.com/homelab-00/transcription-suite/internal/recorder"
	"github.com/homelab-00/transcription-suite/internal/tokenstore"
	"github.com/homelab-00/transcription-suite/internal/vad"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

const (
	mp3Bitrate      = 128
	maxSegmentChars = 500
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.ConfigFile, "config", "", "Path to config.yaml (default: ./config.yaml)")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides SERVER_HOST/SERVER_PORT)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DataDir, "data-dir", "", "Data directory root (overrides DATA_DIR)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("transcription-suite starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := cfg.Paths()
	for _, dir := range []string{paths.DatabaseDir, paths.BackupsDir, paths.AudioDir, paths.LogsDir, paths.CertsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create data directory")
		}
	}

	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, paths.DatabaseFile, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if _, err := migrations.Run(paths.DatabaseFile); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	backupPolicy := database.BackupPolicy{
		Dir:        paths.BackupsDir,
		MaxAge:     time.Duration(cfg.Backup.MaxAgeHours) * time.Hour,
		MaxBackups: cfg.Backup.MaxBackups,
	}
	if cfg.Backup.Enabled {
		if err := db.RunIfStale(ctx, paths.DatabaseFile, backupPolicy, log); err != nil {
			log.Warn().Err(err).Msg("startup backup check failed")
		}
	}

	tokenLog := log.With().Str("component", "tokenstore").Logger()
	tokens, err := tokenstore.Load(paths.TokensFile, tokenLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load token store")
	}

	decoderLoader := func(modelName, device, computeType string) (engines.Decoder, error) {
		return engines.NewHTTPDecoder(cfg.STTBackendURL, modelName, computeType, true), nil
	}
	diarizerLoader := func(modelName, device string) (engines.Diarizer, error) {
		return engines.NewHTTPDiarizer(cfg.DiarizationBackendURL), nil
	}
	models := modelmanager.New(decoderLoader, diarizerLoader, cfg.MainTranscriber.Device, log.With().Str("component", "modelmanager").Logger())

	if err := models.LoadMainModel(cfg.MainTranscriber.Model, cfg.MainTranscriber.ComputeType); err != nil {
		log.Error().Err(err).Msg("failed to load main model at startup; it can be loaded later via /api/admin/models/load")
	}
	cfg.TranscriptionOptions.EnableLiveTranscriber = cfg.TranscriptionOptions.EnableLiveTranscriber || cfg.LiveTranscriber.Enabled
	if cfg.TranscriptionOptions.EnableLiveTranscriber {
		if err := models.LoadLiveModel(cfg.LiveTranscriber.Model, cfg.LiveTranscriber.ComputeType); err != nil {
			log.Error().Err(err).Msg("failed to load live model at startup")
		}
	}
	if cfg.Diarization.Model != "" {
		if err := models.LoadDiarizationModel(cfg.Diarization.Model, cfg.Diarization.Device); err != nil {
			log.Error().Err(err).Msg("failed to load diarization model at startup")
		}
	}

	transcoder := audio.FFmpegTranscoder{Method: audio.NormalizationMethod(cfg.AudioProcessing.NormalizationMethod)}
	orchestrator := notebook.NewOrchestrator(db, models, transcoder, paths.AudioDir, mp3Bitrate, maxSegmentChars,
		log.With().Str("component", "notebook").Logger())

	llmClient := llmproxy.New(cfg.LocalLLM.BaseURL, cfg.LocalLLM.Model, cfg.LocalLLM.Enabled)

	newDetector := func(webrtcSensitivity int, sileroSensitivity float64) livemode.Detector {
		return vad.New(
			engines.NewEnergyFrameClassifier(webrtcSensitivity),
			engines.NewHTTPProbabilityClassifier(cfg.DiarizationBackendURL),
			sileroSensitivity,
		)
	}
	recCfg := recorder.Config{
		PostSpeechSilenceDuration: time.Duration(cfg.STT.PostSpeechSilenceDuration * float64(time.Second)),
		MinLengthOfRecording:      time.Duration(cfg.STT.MinLengthOfRecording * float64(time.Second)),
		MaxSilenceDuration:        time.Duration(cfg.STT.MaxSilenceDuration * float64(time.Second)),
		PreRollBufferDuration:     time.Duration(cfg.STT.PreRecordingBufferDuration * float64(time.Second)),
		SampleRate:                audio.TargetSampleRate,
	}
	liveController := livemode.NewController(models, newDetector, recCfg, log.With().Str("component", "livemode").Logger())

	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		DB:        db,
		Tokens:    tokens,
		Models:    models,
		Notebook:  orchestrator,
		LLM:       llmClient,
		Live:      liveController,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	})

	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS.Enabled {
			serveErr <- srv.StartTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serveErr <- srv.Start()
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("transcription-suite stopped")
}
