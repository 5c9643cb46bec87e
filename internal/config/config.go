package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration. Defaults are overlaid by an
// optional YAML file, then by DJ_* environment variables.
type Config struct {
	// Server
	Port int `yaml:"port"`

	// Output
	LocalOutput bool   `yaml:"local_output"` // play the master bus on the sound card
	OpusBitrate int    `yaml:"opus_bitrate"` // WebRTC monitor, bits per second
	MP3Bitrate  string `yaml:"mp3_bitrate"`  // MP3 monitor, ffmpeg syntax

	// Track loading
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb"`

	// Engine and decks
	ResumeTimeout time.Duration `yaml:"resume_timeout"` // wait for the device to start
	CueDebounce   time.Duration `yaml:"cue_debounce"`   // taps ignored after a cue release
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:          8080,
		LocalOutput:   true,
		OpusBitrate:   128000,
		MP3Bitrate:    "192k",
		UploadDir:     filepath.Join(os.TempDir(), "diskjockey"),
		MaxUploadMB:   200,
		ResumeTimeout: 5 * time.Second,
		CueDebounce:   250 * time.Millisecond,
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	cfg := Defaults()
	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg
}

// LoadFile reads a YAML config file, then applies environment overrides.
// An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// MaxUploadBytes is the upload size limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (c *Config) applyEnv() {
	c.Port = envInt("DJ_PORT", c.Port)
	c.LocalOutput = envBool("DJ_LOCAL_OUTPUT", c.LocalOutput)
	c.OpusBitrate = envInt("DJ_OPUS_BITRATE", c.OpusBitrate)
	c.MP3Bitrate = envStr("DJ_MP3_BITRATE", c.MP3Bitrate)
	c.UploadDir = envStr("DJ_UPLOAD_DIR", c.UploadDir)
	c.MaxUploadMB = envInt("DJ_MAX_UPLOAD_MB", c.MaxUploadMB)
	c.ResumeTimeout = time.Duration(envFloat("DJ_RESUME_TIMEOUT", c.ResumeTimeout.Seconds()) * float64(time.Second))
	c.CueDebounce = time.Duration(envInt("DJ_CUE_DEBOUNCE_MS", int(c.CueDebounce/time.Millisecond))) * time.Millisecond
}

// fillDefaults replaces unusable values with the defaults.
func (c *Config) fillDefaults() {
	d := Defaults()
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = d.Port
	}
	if c.OpusBitrate <= 0 {
		c.OpusBitrate = d.OpusBitrate
	}
	if c.MP3Bitrate == "" {
		c.MP3Bitrate = d.MP3Bitrate
	}
	if c.UploadDir == "" {
		c.UploadDir = d.UploadDir
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = d.MaxUploadMB
	}
	if c.ResumeTimeout <= 0 {
		c.ResumeTimeout = d.ResumeTimeout
	}
	if c.CueDebounce < 0 {
		c.CueDebounce = d.CueDebounce
	}
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
