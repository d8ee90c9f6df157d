// Package config loads the settings of a robot program from a TOML file,
// optional .env files, and MAGICBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sarchlab/magicbot/logging"
)

// Environment variables that override the file.
const (
	EnvLoopPeriod          = "MAGICBOT_LOOP_PERIOD"
	EnvNamespace           = "MAGICBOT_NAMESPACE"
	EnvErrorReportInterval = "MAGICBOT_ERROR_REPORT_INTERVAL"
	EnvCompetition         = "MAGICBOT_COMPETITION"
	EnvMonitorPort         = "MAGICBOT_MONITOR_PORT"
	EnvMonitorAssets       = "MAGICBOT_MONITOR_ASSETS"
	EnvRedisAddr           = "MAGICBOT_REDIS_ADDR"
	EnvRecordingFile       = "MAGICBOT_RECORDING_FILE"
)

// MonitorConfig controls the HTTP monitor. A non-empty AssetDir serves the
// dashboard from that directory instead of the built-in pages.
type MonitorConfig struct {
	Enabled  bool
	Port     int
	AssetDir string
}

// RedisConfig controls the Redis tunable store. An empty Addr keeps tunables
// in memory.
type RedisConfig struct {
	Addr         string
	Prefix       string
	SyncInterval time.Duration
}

// RecordingConfig controls the SQLite recorder.
type RecordingConfig struct {
	Enabled       bool
	File          string
	FlushInterval time.Duration
}

// Config holds everything a robot program can be configured with.
type Config struct {
	LoopPeriod          time.Duration
	Namespace           string
	ErrorReportInterval time.Duration
	Competition         bool
	LogLevel            string

	Monitor   MonitorConfig
	Redis     RedisConfig
	Recording RecordingConfig
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LoopPeriod:          20 * time.Millisecond,
		Namespace:           "components",
		ErrorReportInterval: 500 * time.Millisecond,
		LogLevel:            "info",
		Monitor:             MonitorConfig{Port: 0},
		Redis: RedisConfig{
			Prefix:       "magicbot",
			SyncInterval: 100 * time.Millisecond,
		},
		Recording: RecordingConfig{FlushInterval: time.Second},
	}
}

type fileConfig struct {
	LoopPeriod          string `toml:"loop_period"`
	Namespace           string `toml:"namespace"`
	ErrorReportInterval string `toml:"error_report_interval"`
	Competition         bool   `toml:"competition"`
	LogLevel            string `toml:"log_level"`

	Monitor struct {
		Enabled  bool   `toml:"enabled"`
		Port     int    `toml:"port"`
		AssetDir string `toml:"asset_dir"`
	} `toml:"monitor"`

	Redis struct {
		Addr         string `toml:"addr"`
		Prefix       string `toml:"prefix"`
		SyncInterval string `toml:"sync_interval"`
	} `toml:"redis"`

	Recording struct {
		Enabled       bool   `toml:"enabled"`
		File          string `toml:"file"`
		FlushInterval string `toml:"flush_interval"`
	} `toml:"recording"`
}

// Load builds a Config from the defaults, the TOML file at path (skipped when
// path is empty), the given .env files, and the environment, in that order.
// Missing .env files are ignored. The result is validated.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env (%s): %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var raw fileConfig

	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %s", undecoded[0])
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"loop_period", raw.LoopPeriod, &c.LoopPeriod},
		{"error_report_interval", raw.ErrorReportInterval,
			&c.ErrorReportInterval},
		{"redis.sync_interval", raw.Redis.SyncInterval, &c.Redis.SyncInterval},
		{"recording.flush_interval", raw.Recording.FlushInterval,
			&c.Recording.FlushInterval},
	}

	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}

		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}

		*d.dst = parsed
	}

	if meta.IsDefined("namespace") {
		c.Namespace = strings.TrimSpace(raw.Namespace)
	}

	if meta.IsDefined("competition") {
		c.Competition = raw.Competition
	}

	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("monitor", "enabled") {
		c.Monitor.Enabled = raw.Monitor.Enabled
	}

	if meta.IsDefined("monitor", "port") {
		c.Monitor.Port = raw.Monitor.Port
	}

	if meta.IsDefined("monitor", "asset_dir") {
		c.Monitor.AssetDir = strings.TrimSpace(raw.Monitor.AssetDir)
	}

	if meta.IsDefined("redis", "addr") {
		c.Redis.Addr = strings.TrimSpace(raw.Redis.Addr)
	}

	if meta.IsDefined("redis", "prefix") {
		c.Redis.Prefix = strings.TrimSpace(raw.Redis.Prefix)
	}

	if meta.IsDefined("recording", "enabled") {
		c.Recording.Enabled = raw.Recording.Enabled
	}

	if meta.IsDefined("recording", "file") {
		c.Recording.File = strings.TrimSpace(raw.Recording.File)
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup(EnvLoopPeriod); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLoopPeriod, err)
		}
		c.LoopPeriod = d
	}

	if v, ok := lookup(EnvErrorReportInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvErrorReportInterval, err)
		}
		c.ErrorReportInterval = d
	}

	if v, ok := lookup(EnvNamespace); ok {
		c.Namespace = v
	}

	if v, ok := lookup(EnvCompetition); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvCompetition, err)
		}
		c.Competition = b
	}

	if v, ok := lookup(logging.EnvLogLevel); ok {
		c.LogLevel = v
	}

	if v, ok := lookup(EnvMonitorPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvMonitorPort, err)
		}
		c.Monitor.Enabled = true
		c.Monitor.Port = port
	}

	if v, ok := lookup(EnvMonitorAssets); ok {
		c.Monitor.AssetDir = v
	}

	if v, ok := lookup(EnvRedisAddr); ok {
		c.Redis.Addr = v
	}

	if v, ok := lookup(EnvRecordingFile); ok {
		c.Recording.Enabled = true
		c.Recording.File = v
	}

	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}

	v = strings.TrimSpace(v)

	return v, v != ""
}

// Validate checks that every field is in range.
func (c Config) Validate() error {
	var errs []error

	if c.LoopPeriod <= 0 {
		errs = append(errs, fmt.Errorf("loop period must be positive, got %s",
			c.LoopPeriod))
	}

	if c.ErrorReportInterval < 0 {
		errs = append(errs, fmt.Errorf(
			"error report interval must not be negative, got %s",
			c.ErrorReportInterval))
	}

	if c.Namespace == "" || strings.Contains(c.Namespace, "/") {
		errs = append(errs, fmt.Errorf("invalid namespace %q", c.Namespace))
	}

	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid monitor port %d",
			c.Monitor.Port))
	}

	if c.Redis.Addr != "" && c.Redis.SyncInterval <= 0 {
		errs = append(errs, errors.New("redis sync interval must be positive"))
	}

	if c.Recording.Enabled && c.Recording.FlushInterval <= 0 {
		errs = append(errs,
			errors.New("recording flush interval must be positive"))
	}

	return errors.Join(errs...)
}
