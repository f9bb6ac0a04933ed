// Package config loads beatgrid settings from an optional YAML file and
// BEATGRID_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration.
type Config struct {
	// Server
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	// Engine
	Tempo         float64 `yaml:"tempo"`
	TrimThreshold float64 `yaml:"trim_threshold"`
	FrameRate     int     `yaml:"frame_rate"`      // sequencer ticks per second
	ReleaseTailMS int     `yaml:"release_tail_ms"` // extra time before a voice is released

	// Transcription service
	TranscribeURL    string `yaml:"transcribe_url"`
	TranscribeAPIKey string `yaml:"transcribe_api_key"`
	IconURL          string `yaml:"icon_url"`
	FactURL          string `yaml:"fact_url"`

	// S3 storage; the data directory is used when Bucket is empty
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`

	// WebRTC
	STUNURL string `yaml:"stun_url"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:          8080,
		DataDir:       "./data",
		Tempo:         125,
		TrimThreshold: 0.01,
		FrameRate:     60,
		ReleaseTailMS: 500,
		S3Region:      "us-east-1",
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies environment
// variables on top. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", c.FrameRate)
	}
	if c.ReleaseTailMS < 0 {
		return fmt.Errorf("release tail must not be negative, got %d", c.ReleaseTailMS)
	}
	if c.TrimThreshold < 0 || c.TrimThreshold >= 1 {
		return fmt.Errorf("trim threshold %g out of range [0, 1)", c.TrimThreshold)
	}
	return nil
}

// ReleaseTail returns ReleaseTailMS as a duration.
func (c Config) ReleaseTail() time.Duration {
	return time.Duration(c.ReleaseTailMS) * time.Millisecond
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) applyEnv() {
	c.Port = envInt("BEATGRID_PORT", c.Port)
	c.DataDir = envStr("BEATGRID_DATA_DIR", c.DataDir)

	c.Tempo = envFloat("BEATGRID_TEMPO", c.Tempo)
	c.TrimThreshold = envFloat("BEATGRID_TRIM_THRESHOLD", c.TrimThreshold)
	c.FrameRate = envInt("BEATGRID_FRAME_RATE", c.FrameRate)
	c.ReleaseTailMS = envInt("BEATGRID_RELEASE_TAIL_MS", c.ReleaseTailMS)

	c.TranscribeURL = envStr("BEATGRID_TRANSCRIBE_URL", c.TranscribeURL)
	c.TranscribeAPIKey = envStr("BEATGRID_TRANSCRIBE_API_KEY", c.TranscribeAPIKey)
	c.IconURL = envStr("BEATGRID_ICON_URL", c.IconURL)
	c.FactURL = envStr("BEATGRID_FACT_URL", c.FactURL)

	c.S3Bucket = envStr("BEATGRID_S3_BUCKET", c.S3Bucket)
	c.S3Region = envStr("BEATGRID_S3_REGION", c.S3Region)
	c.S3Endpoint = envStr("BEATGRID_S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = envStr("BEATGRID_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = envStr("BEATGRID_S3_SECRET_KEY", c.S3SecretKey)

	c.STUNURL = envStr("BEATGRID_STUN_URL", c.STUNURL)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
