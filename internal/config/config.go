// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/pcapstream/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `pcapstream:` root key in YAML.
type GlobalConfig struct {
	Log          LogConfig          `mapstructure:"log"`
	Decoder      DecoderConfig      `mapstructure:"decoder"`
	Backpressure BackpressureConfig `mapstructure:"backpressure"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Sink         SinkConfig         `mapstructure:"sink"`
}

// ─── Decoder ───

// DecoderConfig tunes validation and read sizes.
type DecoderConfig struct {
	StrictVersion     bool   `mapstructure:"strict_version"`      // accept only format 2.4 exactly
	MaxCapturedLength uint32 `mapstructure:"max_captured_length"` // 0 = unlimited
	ChunkSize         int    `mapstructure:"chunk_size"`          // bytes per file read
}

// ─── Backpressure ───

// BackpressureConfig bounds the event queue between parser and sink.
type BackpressureConfig struct {
	Capacity      int     `mapstructure:"capacity"`
	HighWatermark float64 `mapstructure:"high_watermark"`
	LowWatermark  float64 `mapstructure:"low_watermark"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Sink ───

// SinkConfig selects where decoded packets go. Options are sink specific.
type SinkConfig struct {
	Name    string         `mapstructure:"name"`
	Options map[string]any `mapstructure:"options"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations. Stderr is always on.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pcapstream: ...`.
type configRoot struct {
	PcapStream GlobalConfig `mapstructure:"pcapstream"`
}

// Load loads configuration from file.
// The YAML file uses `pcapstream:` as root key; env vars use the PCAPSTREAM_
// prefix (e.g., PCAPSTREAM_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return unmarshal(v)
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*GlobalConfig, error) {
	return unmarshal(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	// The `pcapstream.` key prefix maps to `PCAPSTREAM_` in env vars via the
	// key replacer (key "pcapstream.log.level" → env "PCAPSTREAM_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*GlobalConfig, error) {
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.PcapStream
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "pcapstream." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pcapstream.log.level", "info")
	v.SetDefault("pcapstream.log.format", "text")
	v.SetDefault("pcapstream.log.outputs.file.enabled", false)
	v.SetDefault("pcapstream.log.outputs.file.path", "/var/log/pcapstream/pcapstream.log")
	v.SetDefault("pcapstream.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pcapstream.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pcapstream.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pcapstream.log.outputs.file.rotation.compress", true)

	// Decoder defaults
	v.SetDefault("pcapstream.decoder.strict_version", false)
	v.SetDefault("pcapstream.decoder.max_captured_length", 0)
	v.SetDefault("pcapstream.decoder.chunk_size", 64*1024)

	// Backpressure defaults
	v.SetDefault("pcapstream.backpressure.capacity", 1024)
	v.SetDefault("pcapstream.backpressure.high_watermark", 0.8)
	v.SetDefault("pcapstream.backpressure.low_watermark", 0.3)

	// Metrics defaults
	v.SetDefault("pcapstream.metrics.enabled", false)
	v.SetDefault("pcapstream.metrics.listen", ":9091")
	v.SetDefault("pcapstream.metrics.path", "/metrics")

	// Sink defaults
	v.SetDefault("pcapstream.sink.name", "console")
}

// ValidateAndApplyDefaults validates configuration and fills runtime defaults
// for values left zero by callers that build a GlobalConfig by hand.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Decoder ──
	if cfg.Decoder.ChunkSize < 0 {
		return fmt.Errorf("%w: decoder.chunk_size must not be negative, got %d", core.ErrConfigInvalid, cfg.Decoder.ChunkSize)
	}
	if cfg.Decoder.ChunkSize == 0 {
		cfg.Decoder.ChunkSize = 64 * 1024
	}

	// ── Backpressure ──
	bp := &cfg.Backpressure
	if bp.Capacity == 0 {
		bp.Capacity = 1024
	}
	if bp.HighWatermark == 0 && bp.LowWatermark == 0 {
		bp.HighWatermark, bp.LowWatermark = 0.8, 0.3
	}
	if bp.Capacity < 0 {
		return fmt.Errorf("%w: backpressure.capacity must be positive, got %d", core.ErrConfigInvalid, bp.Capacity)
	}
	if bp.HighWatermark <= 0 || bp.HighWatermark > 1 {
		return fmt.Errorf("%w: backpressure.high_watermark must be in (0, 1], got %v", core.ErrConfigInvalid, bp.HighWatermark)
	}
	if bp.LowWatermark < 0 || bp.LowWatermark >= bp.HighWatermark {
		return fmt.Errorf("%w: backpressure.low_watermark must be in [0, high_watermark), got %v", core.ErrConfigInvalid, bp.LowWatermark)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// ── Sink ──
	if cfg.Sink.Name == "" {
		cfg.Sink.Name = "console"
	}
	if cfg.Sink.Options == nil {
		cfg.Sink.Options = map[string]any{}
	}
	return nil
}
