// Package logging configures the zerolog loggers used across the module.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables that override the profile defaults.
const (
	EnvLogLevel   = "MAGICBOT_LOG_LEVEL"
	EnvLogNoColor = "MAGICBOT_LOG_NOCOLOR"
	EnvLogJSON    = "MAGICBOT_LOG_JSON"
)

// Profile selects a set of defaults.
type Profile int

// Profiles.
const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logging configuration.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	JSON      bool
	Output    io.Writer
}

var (
	configureOnce sync.Once
	root          = zerolog.New(os.Stderr).With().Timestamp().Logger()
	rootLock      sync.RWMutex
)

// ConfigureRuntime configures logging for a robot program.
func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

// ConfigureTests configures logging for test binaries.
func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure applies a profile and the environment overrides. Only the first
// call has an effect.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		applyEnvOverrides(&cfg)
		Apply(cfg)
	})
}

// DefaultConfig returns the defaults of a profile.
func DefaultConfig(profile Profile) Config {
	cfg := Config{Output: os.Stderr}

	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}

	return cfg
}

// Apply installs cfg as the root logger configuration, regardless of any
// previous call.
func Apply(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if !cfg.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.StampMilli,
		}
	}

	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}

	rootLock.Lock()
	root = ctx.Logger()
	rootLock.Unlock()
}

// SetLevel changes the level of the root logger.
func SetLevel(level zerolog.Level) {
	rootLock.Lock()
	root = root.Level(level)
	rootLock.Unlock()
}

// Root returns the root logger.
func Root() zerolog.Logger {
	rootLock.RLock()
	defer rootLock.RUnlock()

	return root
}

// For returns a child logger that tags every entry with the component name.
func For(name string) zerolog.Logger {
	return Root().With().Str("component", name).Logger()
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}
}

// ParseLevel parses a level name. The second result is false for empty or
// unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
