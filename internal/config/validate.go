package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidExtension indicates an extension without a leading dot.
	ErrInvalidExtension = errors.New("invalid extension")

	// ErrInvalidIgnore indicates an ignore pattern that does not compile.
	ErrInvalidIgnore = errors.New("invalid ignore pattern")

	// ErrEmptyStoreDir indicates a missing store directory.
	ErrEmptyStoreDir = errors.New("empty store directory")

	// ErrInvalidWorkers indicates a negative worker count or timeout.
	ErrInvalidWorkers = errors.New("invalid worker settings")

	// ErrInvalidCacheSize indicates a non-positive query cache size.
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Validate checks every section and returns all problems joined.
func Validate(cfg *Config) error {
	var errs []error

	if len(cfg.Index.Extensions) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one extension required", ErrInvalidExtension))
	}
	for _, ext := range cfg.Index.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, fmt.Errorf("%w: %q must start with '.'", ErrInvalidExtension, ext))
		}
	}
	for _, pattern := range cfg.Index.Ignore {
		if _, err := CompileIgnore([]string{pattern}); err != nil {
			errs = append(errs, err)
		}
	}
	if strings.TrimSpace(cfg.Index.StoreDir) == "" {
		errs = append(errs, fmt.Errorf("%w: store_dir is required", ErrEmptyStoreDir))
	}

	if cfg.Workers.Count < 0 {
		errs = append(errs, fmt.Errorf("%w: count must not be negative, got %d", ErrInvalidWorkers, cfg.Workers.Count))
	}
	if cfg.Workers.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must not be negative, got %s", ErrInvalidWorkers, cfg.Workers.Timeout))
	}

	if cfg.Query.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidCacheSize, cfg.Query.CacheSize))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Log.Level))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, cfg.Log.Format))
	}

	return errors.Join(errs...)
}

// CompileIgnore compiles ignore patterns with '/' as the separator, so
// '*' stays within one path segment and '**' crosses segments.
func CompileIgnore(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidIgnore, p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}
