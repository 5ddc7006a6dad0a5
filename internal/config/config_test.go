package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Mode != "local" {
		t.Errorf("expected default mode local, got %q", cfg.Mode)
	}
	if cfg.Remote.PollIntervalSeconds != 5 || cfg.Remote.MaxPollAttempts != 60 {
		t.Errorf("unexpected remote defaults %+v", cfg.Remote)
	}
	if cfg.Playback.ToleranceSeconds != 0.5 {
		t.Errorf("unexpected tolerance %v", cfg.Playback.ToleranceSeconds)
	}
}

func TestLoadFile_ParsesYAML(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mode: remote
api_key: secret-key
speaker_labels: true
language: de
transcript_formats: [txt, srt]
remote:
  poll_interval_seconds: 10
  max_poll_attempts: 30
playback:
  tolerance_seconds: 1.5
local:
  binary_path: /opt/whisper
  timeout_seconds: 120
player:
  websocket_url: ws://localhost:9999
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Mode != "remote" || cfg.APIKey != "secret-key" {
		t.Errorf("unexpected mode/key %q/%q", cfg.Mode, cfg.APIKey)
	}
	if !cfg.SpeakerLabels || cfg.Language != "de" {
		t.Errorf("unexpected options %+v", cfg)
	}
	if cfg.Remote.PollIntervalSeconds != 10 || cfg.Remote.MaxPollAttempts != 30 {
		t.Errorf("unexpected remote config %+v", cfg.Remote)
	}
	if cfg.Playback.ToleranceSeconds != 1.5 {
		t.Errorf("unexpected tolerance %v", cfg.Playback.ToleranceSeconds)
	}
	if cfg.Local.BinaryPath != "/opt/whisper" || cfg.Local.TimeoutSeconds != 120 {
		t.Errorf("unexpected local config %+v", cfg.Local)
	}
	if cfg.Player.WebSocketURL != "ws://localhost:9999" {
		t.Errorf("unexpected player config %+v", cfg.Player)
	}
	if len(cfg.TranscriptFormats) != 2 {
		t.Errorf("unexpected formats %v", cfg.TranscriptFormats)
	}
}

func TestLoadFile_APIKeyEnvFallback(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "env-key")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("expected env fallback key, got %q", cfg.APIKey)
	}
}

func TestLoadFile_FileKeyWinsOverEnv(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api_key: file-key\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.APIKey != "file-key" {
		t.Errorf("expected file key to win, got %q", cfg.APIKey)
	}
}

func TestLoadFile_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Mode = "hybrid" }, "mode"},
		{"poll interval too low", func(c *Config) { c.Remote.PollIntervalSeconds = 0 }, "poll_interval_seconds"},
		{"poll interval too high", func(c *Config) { c.Remote.PollIntervalSeconds = 61 }, "poll_interval_seconds"},
		{"attempts too low", func(c *Config) { c.Remote.MaxPollAttempts = 0 }, "max_poll_attempts"},
		{"attempts too high", func(c *Config) { c.Remote.MaxPollAttempts = 601 }, "max_poll_attempts"},
		{"negative tolerance", func(c *Config) { c.Playback.ToleranceSeconds = -0.1 }, "tolerance_seconds"},
		{"tolerance too high", func(c *Config) { c.Playback.ToleranceSeconds = 5.1 }, "tolerance_seconds"},
		{"negative timeout", func(c *Config) { c.Local.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"unknown format", func(c *Config) { c.TranscriptFormats = []string{"pdf"} }, "format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
