// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat is returned when a LogFormat value is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format")
	// ErrInvalidTarget is returned when a Target value is not recognized.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidGlob is returned for malformed vendor_dirs, always_reload or watch.ignore patterns.
	ErrInvalidGlob = errors.New("invalid glob pattern")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")

	validTargets = []Target{"es2017", "es2018", "es2019", "es2020", "es2021", "es2022", "esnext"}
)

type (
	// LogLevel is the minimum level of emitted log records.
	LogLevel string

	// LogFormat selects the log handler output format.
	LogFormat string

	// Target is the ECMAScript language level emitted by the transform.
	Target string

	// InvalidValueError reports an unrecognized enumerated value.
	InvalidValueError struct {
		Field string
		Value string
		err   error
	}

	// InvalidConfigError collects field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// JSXConfig configures the JSX transform.
	JSXConfig struct {
		Factory  string `json:"factory" mapstructure:"factory"`
		Fragment string `json:"fragment" mapstructure:"fragment"`
	}

	// RemoteConfig controls http(s) imports.
	RemoteConfig struct {
		Enabled  bool          `json:"enabled" mapstructure:"enabled"`
		Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
		MaxBytes int64         `json:"max_bytes" mapstructure:"max_bytes"`
	}

	// WatchConfig configures the file watcher used by `run --watch`.
	WatchConfig struct {
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
		Ignore   []string      `json:"ignore" mapstructure:"ignore"`
	}

	// LogConfig configures the CLI log handler.
	LogConfig struct {
		Level  LogLevel  `json:"level" mapstructure:"level"`
		Format LogFormat `json:"format" mapstructure:"format"`
	}

	// Config holds the loader configuration.
	Config struct {
		// Root is the directory relative entry points and aliases resolve against.
		Root string `json:"root" mapstructure:"root"`
		// Timeout bounds a caller's wait for one Resolve.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
		// Extensions are probed, in order, for extensionless imports.
		Extensions []string `json:"extensions" mapstructure:"extensions"`
		// VendorDirs are glob patterns for dependency storage (not reloadable).
		VendorDirs []string `json:"vendor_dirs" mapstructure:"vendor_dirs"`
		// AlwaysReload are glob patterns of modules re-executed on every request.
		AlwaysReload []string `json:"always_reload" mapstructure:"always_reload"`
		// VirtualPrefix marks synthetic module identifiers.
		VirtualPrefix string `json:"virtual_prefix" mapstructure:"virtual_prefix"`
		// Aliases map import prefixes to paths relative to Root.
		Aliases map[string]string `json:"aliases" mapstructure:"aliases"`
		Target  Target            `json:"target" mapstructure:"target"`
		JSX     JSXConfig         `json:"jsx" mapstructure:"jsx"`
		Remote  RemoteConfig      `json:"remote" mapstructure:"remote"`
		Watch   WatchConfig       `json:"watch" mapstructure:"watch"`
		Log     LogConfig         `json:"log" mapstructure:"log"`
	}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Root:          ".",
		Timeout:       60 * time.Second,
		Extensions:    []string{".ts", ".tsx", ".mts", ".jsx", ".js", ".mjs", ".cjs", ".json"},
		VendorDirs:    []string{"**/node_modules/**"},
		AlwaysReload:  []string{},
		VirtualPrefix: "virtual:",
		Aliases:       map[string]string{},
		Target:        "es2017",
		JSX:           JSXConfig{Factory: "h", Fragment: "Fragment"},
		Remote:        RemoteConfig{Enabled: true, Timeout: 30 * time.Second, MaxBytes: 10 << 20},
		Watch:         WatchConfig{Debounce: 100 * time.Millisecond, Ignore: []string{}},
		Log:           LogConfig{Level: LogLevelInfo, Format: LogFormatText},
	}
}

func (l LogLevel) String() string { return string(l) }

// Validate returns an error if the level is not one of debug, info, warn, error.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	}
	return &InvalidValueError{Field: "log.level", Value: string(l), err: ErrInvalidLogLevel}
}

func (f LogFormat) String() string { return string(f) }

// Validate returns an error if the format is not text or json.
func (f LogFormat) Validate() error {
	switch f {
	case LogFormatText, LogFormatJSON:
		return nil
	}
	return &InvalidValueError{Field: "log.format", Value: string(f), err: ErrInvalidLogFormat}
}

func (t Target) String() string { return string(t) }

// Validate returns an error if the target is not a supported language level.
func (t Target) Validate() error {
	if slices.Contains(validTargets, t) {
		return nil
	}
	return &InvalidValueError{Field: "target", Value: string(t), err: ErrInvalidTarget}
}

// Validate checks the constraints CUE does not express (glob syntax) plus
// the enumerations, so configs built in Go are held to the same rules.
func (c *Config) Validate() error {
	var errs []error
	for _, v := range []interface{ Validate() error }{c.Log.Level, c.Log.Format, c.Target} {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for field, patterns := range map[string][]string{
		"vendor_dirs":   c.VendorDirs,
		"always_reload": c.AlwaysReload,
		"watch.ignore":  c.Watch.Ignore,
	} {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				errs = append(errs, &InvalidValueError{Field: field, Value: p, err: ErrInvalidGlob})
			}
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout: must not be negative, got %s", c.Timeout))
	}
	if len(errs) > 0 {
		slices.SortFunc(errs, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: %v %q", e.Field, e.err, e.Value)
}

func (e *InvalidValueError) Unwrap() error { return e.err }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes the sentinel and every field error to errors.Is/As.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
