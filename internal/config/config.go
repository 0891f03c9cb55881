package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Recording RecordingConfig `json:"recording" yaml:"recording"`
	Playback  PlaybackConfig  `json:"playback" yaml:"playback"`
	Session   SessionConfig   `json:"session" yaml:"session"`
}

// ServerConfig selects how the MCP server is reached
type ServerConfig struct {
	Transport string `json:"transport" yaml:"transport"` // "http" or "stdio"
	Port      int    `json:"port" yaml:"port"`
}

// RecordingConfig bounds a single recording
type RecordingConfig struct {
	TimeoutMs       int `json:"timeout_ms" yaml:"timeout_ms"`
	MaxSteps        int `json:"max_steps" yaml:"max_steps"`
	MaxTimerDelayMs int `json:"max_timer_delay_ms" yaml:"max_timer_delay_ms"`
}

// PlaybackConfig controls the stepper cadence
type PlaybackConfig struct {
	IntervalMs int    `json:"interval_ms" yaml:"interval_ms"`
	SpinMs     int    `json:"spin_ms" yaml:"spin_ms"`
	Mode       string `json:"mode" yaml:"mode"` // "live" or "settled"
}

// SessionConfig controls how long idle sessions are kept
type SessionConfig struct {
	IdleTimeoutMs int `json:"idle_timeout_ms" yaml:"idle_timeout_ms"`
}

func (r RecordingConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func (r RecordingConfig) MaxTimerDelay() time.Duration {
	return time.Duration(r.MaxTimerDelayMs) * time.Millisecond
}

func (p PlaybackConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

func (p PlaybackConfig) Spin() time.Duration {
	return time.Duration(p.SpinMs) * time.Millisecond
}

func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMs) * time.Millisecond
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{Transport: "http", Port: 8080},
		Recording: RecordingConfig{
			TimeoutMs:       5000,
			MaxSteps:        5000,
			MaxTimerDelayMs: 10000,
		},
		Playback: PlaybackConfig{IntervalMs: 500, SpinMs: 500, Mode: "live"},
		Session:  SessionConfig{IdleTimeoutMs: 30 * 60 * 1000},
	}
}

// Load reads and parses the configuration file. Fields missing from the
// file keep their defaults; an empty path yields the defaults.
func Load(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(configPath)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = json.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// FromEnv loads the file named by CONFIG_PATH and applies the PORT and
// TRANSPORT overrides
func FromEnv() (*Config, error) {
	config, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, err
	}

	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		config.Server.Port = n
	}
	if transport := os.Getenv("TRANSPORT"); transport != "" {
		config.Server.Transport = transport
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// validate checks if the configuration is valid
func validate(config *Config) error {
	switch config.Server.Transport {
	case "http":
		if config.Server.Port <= 0 || config.Server.Port > 65535 {
			return fmt.Errorf("server: invalid port %d", config.Server.Port)
		}
	case "stdio":
	default:
		return fmt.Errorf("server: invalid transport %q (must be http or stdio)", config.Server.Transport)
	}

	if config.Recording.TimeoutMs <= 0 {
		return fmt.Errorf("recording: timeout_ms must be positive")
	}
	if config.Recording.MaxSteps <= 0 {
		return fmt.Errorf("recording: max_steps must be positive")
	}
	if config.Recording.MaxTimerDelayMs <= 0 {
		return fmt.Errorf("recording: max_timer_delay_ms must be positive")
	}

	if config.Playback.IntervalMs <= 0 {
		return fmt.Errorf("playback: interval_ms must be positive")
	}
	if config.Playback.SpinMs <= 0 {
		return fmt.Errorf("playback: spin_ms must be positive")
	}
	switch config.Playback.Mode {
	case "live", "settled":
	default:
		return fmt.Errorf("playback: invalid mode %q (must be live or settled)", config.Playback.Mode)
	}

	if config.Session.IdleTimeoutMs < 0 {
		return fmt.Errorf("session: idle_timeout_ms must not be negative")
	}

	return nil
}
