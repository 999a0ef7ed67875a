// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig represents the top-level static configuration.
// Maps to the `dsmark:` root key in YAML.
type GlobalConfig struct {
	Log       LogConfig      `mapstructure:"log"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
	Source    PluginConfig   `mapstructure:"source"`
	Sink      PluginConfig   `mapstructure:"sink"`
	RulesFile string         `mapstructure:"rules_file"` // Mutually exclusive with an inline table
	Table     RuleSetConfig  `mapstructure:"table"`
}

// ─── Pipeline ───

// PipelineConfig sizes the packet pipeline.
type PipelineConfig struct {
	Workers    int `mapstructure:"workers"`     // 0 = GOMAXPROCS
	BufferSize int `mapstructure:"buffer_size"` // Capture channel capacity
}

// PluginConfig selects a source or sink plugin by type.
type PluginConfig struct {
	Type   string         `mapstructure:"type"`   // pcap / nfqueue / afpacket / console / discard
	Config map[string]any `mapstructure:"config"` // Plugin-specific settings
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`       // trace / debug / info / warn / error
	Format     string           `mapstructure:"format"`      // json / text / pattern
	Pattern    string           `mapstructure:"pattern"`     // Used when format is pattern
	TimeFormat string           `mapstructure:"time_format"` // Go layout
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations. Stdout is always on.
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

// configRoot is the top-level wrapper matching the YAML structure `dsmark: ...`.
type configRoot struct {
	DSMark GlobalConfig `mapstructure:"dsmark"`
}

// Load loads configuration from file.
// The YAML file uses `dsmark:` as root key; env vars use the DSMARK_ prefix
// (e.g., DSMARK_LOG_LEVEL). A relative rules_file is resolved against the
// directory of the config file.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// key "dsmark.log.level" -> env "DSMARK_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.DSMark

	if cfg.RulesFile != "" && !filepath.IsAbs(cfg.RulesFile) {
		cfg.RulesFile = filepath.Join(filepath.Dir(path), cfg.RulesFile)
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "dsmark." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("dsmark.log.level", "info")
	v.SetDefault("dsmark.log.format", "text")
	v.SetDefault("dsmark.log.pattern", "%time [%level] %field %msg%n")
	v.SetDefault("dsmark.log.time_format", "2006-01-02 15:04:05.000")
	v.SetDefault("dsmark.log.outputs.file.enabled", false)
	v.SetDefault("dsmark.log.outputs.file.path", "/var/log/dsmark/dsmark.log")
	v.SetDefault("dsmark.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("dsmark.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("dsmark.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("dsmark.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("dsmark.metrics.enabled", false)
	v.SetDefault("dsmark.metrics.listen", ":9092")
	v.SetDefault("dsmark.metrics.path", "/metrics")

	// Pipeline defaults
	v.SetDefault("dsmark.pipeline.workers", 0)
	v.SetDefault("dsmark.pipeline.buffer_size", 4096)

	// Plugin defaults
	v.SetDefault("dsmark.source.type", "pcap")
	v.SetDefault("dsmark.sink.type", "")
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults. It loads the rules file when one is configured.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text", "pattern":
	default:
		return fmt.Errorf("invalid log format: %s (must be json/text/pattern)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled")
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
		}
	}

	// ── Pipeline ──
	if cfg.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must not be negative, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Pipeline.BufferSize <= 0 {
		cfg.Pipeline.BufferSize = 4096
	}

	// ── Source / sink pairing ──
	switch cfg.Source.Type {
	case "pcap", "nfqueue", "afpacket":
	default:
		return fmt.Errorf("unsupported source.type: %s (must be pcap/nfqueue/afpacket)", cfg.Source.Type)
	}
	if cfg.Sink.Type == "" {
		if cfg.Source.Type == "nfqueue" {
			cfg.Sink.Type = "nfqueue"
		} else {
			cfg.Sink.Type = "discard"
		}
	}
	switch cfg.Sink.Type {
	case "pcap", "discard", "console":
		if cfg.Source.Type == "nfqueue" {
			return fmt.Errorf("source.type nfqueue requires sink.type nfqueue, got %s", cfg.Sink.Type)
		}
	case "nfqueue":
		if cfg.Source.Type != "nfqueue" {
			return fmt.Errorf("sink.type nfqueue requires source.type nfqueue, got %s", cfg.Source.Type)
		}
	default:
		return fmt.Errorf("unsupported sink.type: %s (must be pcap/console/discard/nfqueue)", cfg.Sink.Type)
	}

	// ── Rules ──
	if cfg.RulesFile != "" {
		if len(cfg.Table.Rules) > 0 {
			return fmt.Errorf("rules_file and an inline table are mutually exclusive")
		}
		rs, err := LoadRuleSet(cfg.RulesFile)
		if err != nil {
			return err
		}
		cfg.Table = *rs
		return nil
	}
	return cfg.Table.Validate()
}
