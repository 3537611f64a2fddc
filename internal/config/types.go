// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// PolicyStrict fails a load whose marker comment is malformed.
	PolicyStrict CommentConfigPolicy = "strict"
	// PolicyLenient logs the problem and continues with an empty comment config.
	PolicyLenient CommentConfigPolicy = "lenient"

	// LogLevelDebug logs every loader build.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs each processed loader.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs temp-dir and comment-config problems only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs failures only.
	LogLevelError LogLevel = "error"

	defaultDebounce = "100ms"
)

var (
	// ErrInvalidCommentConfigPolicy is returned when a CommentConfigPolicy value is not recognized.
	ErrInvalidCommentConfigPolicy = errors.New("invalid comment config policy")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidDebounce is returned when the watch debounce is not a positive duration.
	ErrInvalidDebounce = errors.New("invalid watch debounce")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// CommentConfigPolicy decides what happens to a malformed marker comment.
	CommentConfigPolicy string

	// InvalidCommentConfigPolicyError is returned when a CommentConfigPolicy value is not recognized.
	// It wraps ErrInvalidCommentConfigPolicy for errors.Is() compatibility.
	InvalidCommentConfigPolicyError struct {
		Value CommentConfigPolicy
	}

	// LogLevel is the minimum level of messages written to stderr.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidDebounceError is returned when WatchConfig.Debounce does not
	// parse as a positive duration.
	InvalidDebounceError struct {
		Value string
		Err   error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the project configuration.
	Config struct {
		// Root is the project root used to resolve relative ignore globs.
		Root string `json:"root" mapstructure:"root"`
		// Ignore lists globs for files that are never treated as data loaders.
		Ignore []string `json:"ignore" mapstructure:"ignore"`
		// External lists module names left unbundled in loader builds.
		External []string `json:"external" mapstructure:"external"`
		// Alias maps import specifiers to replacement paths.
		Alias map[string]string `json:"alias" mapstructure:"-"`
		// Conditions are extra package.json export conditions.
		Conditions []string `json:"conditions" mapstructure:"conditions"`
		// Define maps global identifiers to JavaScript expressions.
		Define map[string]string `json:"define" mapstructure:"-"`
		// Tsconfig overrides the tsconfig.json used for loader builds.
		Tsconfig string `json:"tsconfig" mapstructure:"tsconfig"`
		// CommentConfigPolicy is "strict" or "lenient".
		CommentConfigPolicy CommentConfigPolicy `json:"comment_config_policy" mapstructure:"comment_config_policy"`
		// LogLevel is "debug", "info", "warn" or "error".
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
		// Watch configures watch mode.
		Watch WatchConfig `json:"watch" mapstructure:"watch"`

		// Path is the file the configuration was read from; empty when only
		// defaults and environment overrides apply.
		Path string `json:"-" mapstructure:"-"`
	}

	// WatchConfig configures watch mode.
	WatchConfig struct {
		// Debounce is the quiet period before a rebuild, as a Go duration.
		Debounce string `json:"debounce" mapstructure:"debounce"`
		// Ignore adds globs that never trigger a rebuild.
		Ignore []string `json:"ignore" mapstructure:"ignore"`
	}
)

// Error implements the error interface.
func (e *InvalidCommentConfigPolicyError) Error() string {
	return fmt.Sprintf("invalid comment config policy %q (valid: strict, lenient)", e.Value)
}

// Unwrap returns ErrInvalidCommentConfigPolicy for errors.Is() compatibility.
func (e *InvalidCommentConfigPolicyError) Unwrap() error { return ErrInvalidCommentConfigPolicy }

// IsValid returns whether the CommentConfigPolicy is one of the defined policies.
// The zero value is valid and means strict.
func (p CommentConfigPolicy) IsValid() (bool, []error) {
	switch p {
	case "", PolicyStrict, PolicyLenient:
		return true, nil
	default:
		return false, []error{&InvalidCommentConfigPolicyError{Value: p}}
	}
}

// String returns the string representation of the CommentConfigPolicy.
func (p CommentConfigPolicy) String() string { return string(p) }

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// IsValid returns whether the LogLevel is one of the defined levels.
// The zero value is valid and means info.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Error implements the error interface.
func (e *InvalidDebounceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid watch debounce %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("invalid watch debounce %q: must be positive", e.Value)
}

// Unwrap returns ErrInvalidDebounce for errors.Is() compatibility.
func (e *InvalidDebounceError) Unwrap() error { return ErrInvalidDebounce }

// DebounceDuration parses Debounce. An empty value yields the default.
func (c WatchConfig) DebounceDuration() (time.Duration, error) {
	value := c.Debounce
	if strings.TrimSpace(value) == "" {
		value = defaultDebounce
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &InvalidDebounceError{Value: c.Debounce, Err: err}
	}
	if d <= 0 {
		return 0, &InvalidDebounceError{Value: c.Debounce}
	}
	return d, nil
}

// IsValid returns whether the WatchConfig has a usable debounce.
func (c WatchConfig) IsValid() (bool, []error) {
	if _, err := c.DebounceDuration(); err != nil {
		return false, []error{err}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	if len(e.FieldErrors) == 1 {
		return fmt.Sprintf("invalid config: %v", e.FieldErrors[0])
	}
	return fmt.Sprintf("invalid config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// IsValid returns whether the Config has valid fields. It covers the rules
// the CUE schema cannot see, such as values that arrive through environment
// variables.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.CommentConfigPolicy.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.LogLevel.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Watch.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ignore:              []string{},
		External:            []string{},
		Alias:               map[string]string{},
		Conditions:          []string{},
		Define:              map[string]string{},
		CommentConfigPolicy: PolicyStrict,
		LogLevel:            LogLevelInfo,
		Watch: WatchConfig{
			Debounce: defaultDebounce,
			Ignore:   []string{},
		},
	}
}
