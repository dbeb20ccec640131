package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/INLOpen/dictbase/core"
)

// CollationConfig holds the key ordering options recorded in a built
// container's header.
type CollationConfig struct {
	// Locale is a BCP 47 tag, e.g. "de" or "zh-u-co-pinyin". Empty means
	// plain fold ordering.
	Locale        string `yaml:"locale"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	StripKey      bool   `yaml:"strip_key"`
}

// BuilderConfig holds builder-specific configurations.
type BuilderConfig struct {
	Compression          string          `yaml:"compression"` // none, snappy, lz4, zstd
	Encryption           string          `yaml:"encryption"`  // none, shuffle, salsa20
	KeyBlockSizeBytes    int             `yaml:"key_block_size_bytes"`
	RecordBlockSizeBytes int             `yaml:"record_block_size_bytes"`
	Collation            CollationConfig `yaml:"collation"`
}

// CacheConfig holds cache-specific configurations.
type CacheConfig struct {
	BlockCacheCapacityBytes int64 `yaml:"block_cache_capacity_bytes"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stdout", "stderr", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// Config is the top-level configuration struct.
type Config struct {
	Builder BuilderConfig `yaml:"builder"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// Load reads configuration from an io.Reader. A nil or empty reader
// yields the defaults. The result is validated before it is returned.
func Load(r io.Reader) (*Config, error) {
	cfg := &Config{
		Builder: BuilderConfig{
			Compression:          "zstd",
			Encryption:           "none",
			KeyBlockSizeBytes:    16 * 1024,
			RecordBlockSizeBytes: 64 * 1024,
		},
		Cache: CacheConfig{
			BlockCacheCapacityBytes: 32 * 1024 * 1024, // 32 MiB
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "dictbase.log",
		},
	}

	if r == nil {
		return cfg, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path. A missing
// file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	if _, err := core.ParseCompressionType(c.Builder.Compression); err != nil {
		return fmt.Errorf("builder.compression: %w", err)
	}
	if _, err := core.ParseEncryptionType(c.Builder.Encryption); err != nil {
		return fmt.Errorf("builder.encryption: %w", err)
	}
	if c.Builder.KeyBlockSizeBytes < 0 {
		return fmt.Errorf("builder.key_block_size_bytes must not be negative, got %d", c.Builder.KeyBlockSizeBytes)
	}
	if c.Builder.RecordBlockSizeBytes < 0 {
		return fmt.Errorf("builder.record_block_size_bytes must not be negative, got %d", c.Builder.RecordBlockSizeBytes)
	}
	if c.Cache.BlockCacheCapacityBytes < 0 {
		return fmt.Errorf("cache.block_cache_capacity_bytes must not be negative, got %d", c.Cache.BlockCacheCapacityBytes)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr", "file", "none":
	default:
		return fmt.Errorf("logging.output %q is not one of stdout, stderr, file, none", c.Logging.Output)
	}
	return nil
}

// NewLogger builds a slog.Logger from the logging configuration.
func (l LoggingConfig) NewLogger() (*slog.Logger, error) {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", l.Level)
	}

	var w io.Writer
	switch l.Output {
	case "stdout":
		w = os.Stdout
	case "", "stderr":
		w = os.Stderr
	case "none":
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	case "file":
		f, err := os.OpenFile(l.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", l.File, err)
		}
		w = f
	default:
		return nil, fmt.Errorf("unknown log output %q", l.Output)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
