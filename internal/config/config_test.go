package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Overrides{EnvFile: "nonexistent.env", ConfigFile: "nonexistent.yaml"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if !cfg.STT.EnsureSentenceEndsWithPeriod {
		t.Error("STT.EnsureSentenceEndsWithPeriod = false, want true")
	}
	if cfg.Backup.MaxBackups != 7 {
		t.Errorf("Backup.MaxBackups = %d, want 7", cfg.Backup.MaxBackups)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
server:
  host: 127.0.0.1
  port: 9443
  tls:
    enabled: true
    cert_file: /data/certs/server.crt
    key_file: /data/certs/server.key
main_transcriber:
  model: large-v3
  beam_size: 8
live_transcriber:
  model: small
  enabled: true
backup:
  max_age_hours: 12
  max_backups: 3
`)
	if err := os.WriteFile(path, yaml, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env", ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9443 {
		t.Errorf("Server = %+v, want 127.0.0.1:9443", cfg.Server)
	}
	if !cfg.Server.TLS.Enabled {
		t.Error("Server.TLS.Enabled = false, want true")
	}
	if cfg.MainTranscriber.Model != "large-v3" || cfg.MainTranscriber.BeamSize != 8 {
		t.Errorf("MainTranscriber = %+v", cfg.MainTranscriber)
	}
	if cfg.Backup.MaxAgeHours != 12 || cfg.Backup.MaxBackups != 3 {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
}

func TestLoadPreviewTranscriberSynonym(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
preview_transcriber:
  model: legacy-preview-model
  enabled: true
`)
	if err := os.WriteFile(path, yaml, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env", ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LiveTranscriber.Model != "legacy-preview-model" {
		t.Errorf("LiveTranscriber.Model = %q, want legacy-preview-model (from preview_transcriber)", cfg.LiveTranscriber.Model)
	}

	t.Run("live_transcriber_wins_on_conflict", func(t *testing.T) {
		path2 := filepath.Join(dir, "config2.yaml")
		yaml2 := []byte(`
preview_transcriber:
  model: legacy-preview-model
live_transcriber:
  model: new-model
`)
		if err := os.WriteFile(path2, yaml2, 0o644); err != nil {
			t.Fatal(err)
		}
		cfg2, err := Load(Overrides{EnvFile: "nonexistent.env", ConfigFile: path2})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg2.LiveTranscriber.Model != "new-model" {
			t.Errorf("LiveTranscriber.Model = %q, want new-model (live_transcriber should win)", cfg2.LiveTranscriber.Model)
		}
	})
}

func TestLoadCLIOverridesTakePriority(t *testing.T) {
	cfg, err := Load(Overrides{
		EnvFile:    "nonexistent.env",
		ConfigFile: "nonexistent.yaml",
		HTTPAddr:   "127.0.0.1:9999",
		LogLevel:   "debug",
		DataDir:    "/tmp/data",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9999 {
		t.Errorf("Server = %+v, want 127.0.0.1:9999", cfg.Server)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.DataDir != "/tmp/data" {
		t.Errorf("DataDir = %q, want /tmp/data", cfg.DataDir)
	}
}

func TestLoadTLSEnabledWithoutCertFails(t *testing.T) {
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_FILE", "")
	t.Setenv("TLS_KEY_FILE", "")
	_, err := Load(Overrides{EnvFile: "nonexistent.env", ConfigFile: "nonexistent.yaml"})
	if err == nil {
		t.Error("expected error when TLS_ENABLED is set but cert/key files are missing")
	}
}

func TestGenerateTokenEntropy(t *testing.T) {
	tok, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(tok) < 32 {
		t.Errorf("token length = %d, want >= 32 chars", len(tok))
	}
	tok2, _ := GenerateToken()
	if tok == tok2 {
		t.Error("two generated tokens were identical")
	}
}
