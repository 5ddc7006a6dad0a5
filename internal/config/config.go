// Package config loads and validates the scribed configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RemoteConfig tunes the remote transcription provider.
type RemoteConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"` // between status polls
	MaxPollAttempts     int `yaml:"max_poll_attempts"`     // ceiling before giving up
}

// LocalConfig tunes the local transcription host command.
type LocalConfig struct {
	BinaryPath     string `yaml:"binary_path"`
	ModelPath      string `yaml:"model_path"`
	Threads        int    `yaml:"threads"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PlaybackConfig tunes segment resolution during playback.
type PlaybackConfig struct {
	ToleranceSeconds float64 `yaml:"tolerance_seconds"`
}

// PlayerConfig points at the media player's websocket endpoint.
type PlayerConfig struct {
	WebSocketURL string `yaml:"websocket_url"`
}

// Config is the full scribed configuration.
type Config struct {
	Mode          string `yaml:"mode"` // "local" or "remote"
	APIKey        string `yaml:"api_key"`
	SpeakerLabels bool   `yaml:"speaker_labels"`
	ModelName     string `yaml:"model_name"`
	Language      string `yaml:"language"`

	RecordingsDir     string   `yaml:"recordings_dir"`
	TranscriptFormats []string `yaml:"transcript_formats"` // txt, srt, vtt

	Remote   RemoteConfig   `yaml:"remote"`
	Local    LocalConfig    `yaml:"local"`
	Playback PlaybackConfig `yaml:"playback"`
	Player   PlayerConfig   `yaml:"player"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home := os.Getenv("HOME")
	return &Config{
		Mode:              "local",
		TranscriptFormats: []string{"txt"},
		RecordingsDir:     filepath.Join(home, "Recordings"),
		Remote: RemoteConfig{
			PollIntervalSeconds: 5,
			MaxPollAttempts:     60,
		},
		Local: LocalConfig{
			BinaryPath:     "/usr/local/bin/whisper-cpp",
			TimeoutSeconds: 300,
		},
		Playback: PlaybackConfig{
			ToleranceSeconds: 0.5,
		},
		Player: PlayerConfig{
			WebSocketURL: "ws://localhost:4555",
		},
	}
}

// Path returns the user config file location.
func Path() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "scribed", "config.yaml")
}

// Load reads the user config from ~/.config/scribed/config.yaml, falling
// back to defaults when the file does not exist. An empty api_key falls
// back to the ASSEMBLYAI_API_KEY environment variable.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads and validates the config at path. A missing file yields
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the user config path.
func Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the config for usable values.
func (c *Config) Validate() error {
	if c.Mode != "local" && c.Mode != "remote" {
		return fmt.Errorf("mode must be \"local\" or \"remote\", got %q", c.Mode)
	}

	if c.Remote.PollIntervalSeconds < 1 || c.Remote.PollIntervalSeconds > 60 {
		return fmt.Errorf("remote.poll_interval_seconds must be between 1 and 60, got %d", c.Remote.PollIntervalSeconds)
	}
	if c.Remote.MaxPollAttempts < 1 || c.Remote.MaxPollAttempts > 600 {
		return fmt.Errorf("remote.max_poll_attempts must be between 1 and 600, got %d", c.Remote.MaxPollAttempts)
	}

	if c.Playback.ToleranceSeconds < 0 || c.Playback.ToleranceSeconds > 5 {
		return fmt.Errorf("playback.tolerance_seconds must be between 0 and 5, got %v", c.Playback.ToleranceSeconds)
	}

	if c.Local.TimeoutSeconds < 0 {
		return fmt.Errorf("local.timeout_seconds must not be negative, got %d", c.Local.TimeoutSeconds)
	}

	for _, f := range c.TranscriptFormats {
		switch f {
		case "txt", "srt", "vtt":
		default:
			return fmt.Errorf("unknown transcript format %q", f)
		}
	}

	return nil
}
