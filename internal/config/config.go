// Package config loads the server's YAML configuration file, layers
// environment variable and CLI flag overrides on top, and exposes a typed
// Config. Precedence, highest first: CLI flags > environment variables >
// config.yaml > struct defaults.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	envpkg "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type ServerSection struct {
	Host               string    `mapstructure:"host"`
	Port               int       `mapstructure:"port"`
	TLS                TLSConfig `mapstructure:"tls"`
	RateLimitRPS       float64   `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int       `mapstructure:"rate_limit_burst"`
	ReadTimeoutSeconds int       `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds"`
	MaxUploadMB        int       `mapstructure:"max_upload_mb"`
	CORSOrigins        string    `mapstructure:"cors_origins"`
}

// Addr returns the host:port the HTTP server should bind to.
func (s ServerSection) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerSection) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

func (s ServerSection) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

type MainTranscriberSection struct {
	Model                  string `mapstructure:"model"`
	Device                 string `mapstructure:"device"`
	ComputeType            string `mapstructure:"compute_type"`
	BeamSize               int    `mapstructure:"beam_size"`
	BatchSize              int    `mapstructure:"batch_size"`
	InitialPrompt          string `mapstructure:"initial_prompt"`
	FasterWhisperVADFilter bool   `mapstructure:"faster_whisper_vad_filter"`
}

type LiveTranscriberSection struct {
	Enabled                     bool    `mapstructure:"enabled"`
	Model                       string  `mapstructure:"model"`
	Device                      string  `mapstructure:"device"`
	ComputeType                 string  `mapstructure:"compute_type"`
	BeamSize                    int     `mapstructure:"beam_size"`
	BatchSize                   int     `mapstructure:"batch_size"`
	WebRTCSensitivity           int     `mapstructure:"webrtc_sensitivity"`
	SileroSensitivity           float64 `mapstructure:"silero_sensitivity"`
	PostSpeechSilenceDuration   float64 `mapstructure:"post_speech_silence_duration"`
	EarlyTranscriptionOnSilence bool    `mapstructure:"early_transcription_on_silence"`
	LiveLanguage                string  `mapstructure:"live_language"`
}

type STTSection struct {
	WebRTCSensitivity            int     `mapstructure:"webrtc_sensitivity"`
	PostSpeechSilenceDuration    float64 `mapstructure:"post_speech_silence_duration"`
	MinLengthOfRecording         float64 `mapstructure:"min_length_of_recording"`
	MinGapBetweenRecordings      float64 `mapstructure:"min_gap_between_recordings"`
	PreRecordingBufferDuration   float64 `mapstructure:"pre_recording_buffer_duration"`
	MaxSilenceDuration           float64 `mapstructure:"max_silence_duration"`
	NormalizeAudio               bool    `mapstructure:"normalize_audio"`
	EnsureSentenceStartingUpper  bool    `mapstructure:"ensure_sentence_starting_uppercase"`
	EnsureSentenceEndsWithPeriod bool    `mapstructure:"ensure_sentence_ends_with_period"`
	BufferSize                   int     `mapstructure:"buffer_size"`
	AllowedLatencyLimit          int     `mapstructure:"allowed_latency_limit"`
}

type DiarizationSection struct {
	Model          string  `mapstructure:"model"`
	HFToken        string  `mapstructure:"hf_token"`
	Device         string  `mapstructure:"device"`
	NumSpeakers    int     `mapstructure:"num_speakers"`
	MinSpeakers    int     `mapstructure:"min_speakers"`
	MaxSpeakers    int     `mapstructure:"max_speakers"`
	MinDurationOn  float64 `mapstructure:"min_duration_on"`
	MinDurationOff float64 `mapstructure:"min_duration_off"`
}

type AudioProcessingSection struct {
	Backend             string `mapstructure:"backend"`             // ffmpeg | legacy
	NormalizationMethod string `mapstructure:"normalization_method"` // peak | loudnorm | dynaudnorm
}

type BackupSection struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxAgeHours int  `mapstructure:"max_age_hours"`
	MaxBackups  int  `mapstructure:"max_backups"`
}

type LocalLLMSection struct {
	Enabled             bool    `mapstructure:"enabled"`
	BaseURL             string  `mapstructure:"base_url"`
	Model               string  `mapstructure:"model"`
	Temperature         float64 `mapstructure:"temperature"`
	MaxTokens           int     `mapstructure:"max_tokens"`
	DefaultSystemPrompt string  `mapstructure:"default_system_prompt"`
}

type LongformRecordingSection struct {
	AutoAddToAudioNotebook bool `mapstructure:"auto_add_to_audio_notebook"`
}

type TranscriptionOptionsSection struct {
	EnableLiveTranscriber bool `mapstructure:"enable_live_transcriber"`
}

// Config is the fully resolved server configuration: YAML sections plus the
// environment-only/CLI-only knobs that have no natural home in config.yaml.
type Config struct {
	Server               ServerSection               `mapstructure:"server"`
	MainTranscriber      MainTranscriberSection      `mapstructure:"main_transcriber"`
	LiveTranscriber      LiveTranscriberSection      `mapstructure:"live_transcriber"`
	PreviewTranscriber   LiveTranscriberSection      `mapstructure:"preview_transcriber"` // legacy alias; live_transcriber wins on conflict
	STT                  STTSection                  `mapstructure:"stt"`
	Diarization          DiarizationSection          `mapstructure:"diarization"`
	AudioProcessing      AudioProcessingSection      `mapstructure:"audio_processing"`
	Backup               BackupSection               `mapstructure:"backup"`
	LocalLLM             LocalLLMSection             `mapstructure:"local_llm"`
	LongformRecording    LongformRecordingSection    `mapstructure:"longform_recording"`
	TranscriptionOptions TranscriptionOptionsSection `mapstructure:"transcription_options"`

	// Environment-only / CLI-only settings, grounded on the teacher's env-first Config.
	DataDir          string `env:"DATA_DIR" envDefault:"./data"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	TLSEnabled       bool   `env:"TLS_ENABLED" envDefault:"false"`
	TLSCertFile      string `env:"TLS_CERT_FILE"`
	TLSKeyFile       string `env:"TLS_KEY_FILE"`
	HuggingFaceToken string `env:"HUGGINGFACE_TOKEN"`
	LMStudioURL      string `env:"LM_STUDIO_URL"`
	ServerHost       string `env:"SERVER_HOST"`
	ServerPort       string `env:"SERVER_PORT"`

	// STTBackendURL points at the faster-whisper-compatible HTTP server the
	// decoder engines delegate the actual model inference to (§9: the
	// source's in-process ctranslate2 model load has no Go-native
	// equivalent, so loading a model means pointing a decoder handle at
	// this endpoint rather than loading weights in this process).
	STTBackendURL string `env:"STT_BACKEND_URL" envDefault:"http://localhost:9000/v1/audio/transcriptions"`
	// DiarizationBackendURL is the equivalent endpoint for the pyannote-class
	// diarization model.
	DiarizationBackendURL string `env:"DIARIZATION_BACKEND_URL" envDefault:"http://localhost:9001/diarize"`
}

// resolveLiveTranscriber applies the v1 synonym policy: live_transcriber wins
// over the legacy preview_transcriber name when both are set. It runs before
// Unmarshal so keys the preview section leaves out keep their defaults.
func resolveLiveTranscriber(v *viper.Viper) {
	if v.InConfig("live_transcriber") || !v.InConfig("preview_transcriber") {
		return
	}
	sub := v.Sub("preview_transcriber")
	if sub == nil {
		return
	}
	for _, k := range sub.AllKeys() {
		v.Set("live_transcriber."+k, sub.Get(k))
	}
}

// Overrides holds CLI flag values that take priority over everything else.
type Overrides struct {
	ConfigFile string
	EnvFile    string
	HTTPAddr   string
	LogLevel   string
	DataDir    string
}

// Load reads config.yaml (if present), applies environment variable
// overrides, then CLI overrides, and returns the resolved Config.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if overrides.ConfigFile != "" {
		v.SetConfigFile(overrides.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing config.yaml is fine: defaults + env vars still apply.
	}

	resolveLiveTranscriber(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := envpkg.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.ServerHost != "" {
		cfg.Server.Host = cfg.ServerHost
	}
	if cfg.ServerPort != "" {
		if p, err := parsePort(cfg.ServerPort); err == nil {
			cfg.Server.Port = p
		}
	}
	cfg.Server.TLS.Enabled = cfg.TLSEnabled || cfg.Server.TLS.Enabled
	if cfg.TLSCertFile != "" {
		cfg.Server.TLS.CertFile = cfg.TLSCertFile
	}
	if cfg.TLSKeyFile != "" {
		cfg.Server.TLS.KeyFile = cfg.TLSKeyFile
	}
	if cfg.Diarization.HFToken == "" {
		cfg.Diarization.HFToken = cfg.HuggingFaceToken
	}

	if overrides.HTTPAddr != "" {
		host, port, err := splitAddr(overrides.HTTPAddr)
		if err == nil {
			cfg.Server.Host, cfg.Server.Port = host, port
		}
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}

	if cfg.TLSEnabled && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return nil, fmt.Errorf("TLS_ENABLED is set but TLS_CERT_FILE/TLS_KEY_FILE are missing")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.rate_limit_rps", 5.0)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 120)
	v.SetDefault("server.max_upload_mb", 200)
	v.SetDefault("main_transcriber.model", "Systran/faster-whisper-large-v3")
	v.SetDefault("main_transcriber.device", "cuda")
	v.SetDefault("main_transcriber.compute_type", "float16")
	v.SetDefault("main_transcriber.beam_size", 5)
	v.SetDefault("main_transcriber.batch_size", 16)
	v.SetDefault("live_transcriber.enabled", false)
	v.SetDefault("live_transcriber.model", "Systran/faster-whisper-small")
	v.SetDefault("live_transcriber.webrtc_sensitivity", 3)
	v.SetDefault("live_transcriber.silero_sensitivity", 0.4)
	v.SetDefault("live_transcriber.post_speech_silence_duration", 0.6)
	v.SetDefault("stt.webrtc_sensitivity", 3)
	v.SetDefault("stt.post_speech_silence_duration", 0.7)
	v.SetDefault("stt.min_length_of_recording", 0.5)
	v.SetDefault("stt.min_gap_between_recordings", 0.0)
	v.SetDefault("stt.pre_recording_buffer_duration", 1.0)
	v.SetDefault("stt.max_silence_duration", 30.0)
	v.SetDefault("stt.normalize_audio", false)
	v.SetDefault("stt.ensure_sentence_starting_uppercase", true)
	v.SetDefault("stt.ensure_sentence_ends_with_period", true)
	v.SetDefault("stt.buffer_size", 1024)
	v.SetDefault("stt.allowed_latency_limit", 10)
	v.SetDefault("audio_processing.backend", "ffmpeg")
	v.SetDefault("audio_processing.normalization_method", "peak")
	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.max_age_hours", 24)
	v.SetDefault("backup.max_backups", 7)
	v.SetDefault("local_llm.enabled", false)
	v.SetDefault("local_llm.temperature", 0.7)
	v.SetDefault("local_llm.max_tokens", 4096)
	v.SetDefault("longform_recording.auto_add_to_audio_notebook", false)
	v.SetDefault("transcription_options.enable_live_transcriber", false)
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	return p, err
}

func splitAddr(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("invalid address %q", addr)
	}
	host := addr[:idx]
	port, err := parsePort(addr[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// GenerateToken returns a random, URL-safe token with at least 256 bits of
// entropy, used by the token store to bootstrap the initial admin token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DataPaths resolves the on-disk layout under DataDir.
type DataPaths struct {
	Root         string
	DatabaseDir  string
	DatabaseFile string
	BackupsDir   string
	AudioDir     string
	LogsDir      string
	TokensFile   string
	CertsDir     string
}

func (c *Config) Paths() DataPaths {
	root := c.DataDir
	return DataPaths{
		Root:         root,
		DatabaseDir:  root + "/database",
		DatabaseFile: root + "/database/notebook.db",
		BackupsDir:   root + "/database/backups",
		AudioDir:     root + "/audio",
		LogsDir:      root + "/logs",
		TokensFile:   root + "/tokens/tokens.json",
		CertsDir:     root + "/certs",
	}
}

// StartupTimestamp is used to name the once-per-process log file.
func StartupTimestamp(t time.Time) string {
	return t.Format("20060102-150405")
}
