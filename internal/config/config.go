// Package config loads symdex settings from defaults, an optional
// .symdex/config.yml and SYMDEX_* environment variables.
package config

import (
	"time"

	"github.com/jward/symdex/internal/parser"
)

// Config is the complete symdex configuration.
type Config struct {
	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Workers WorkersConfig `yaml:"workers" mapstructure:"workers"`
	Query   QueryConfig   `yaml:"query" mapstructure:"query"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// IndexConfig controls file discovery and storage location.
type IndexConfig struct {
	Extensions   []string `yaml:"extensions" mapstructure:"extensions"`       // source suffixes, dot included
	Ignore       []string `yaml:"ignore" mapstructure:"ignore"`               // glob patterns relative to the root
	StoreDir     string   `yaml:"store_dir" mapstructure:"store_dir"`         // relative to the root unless absolute
	CompilerArgs string   `yaml:"compiler_args" mapstructure:"compiler_args"` // used when a request carries none
}

// WorkersConfig controls directory indexing fan-out.
type WorkersConfig struct {
	Count   int           `yaml:"count" mapstructure:"count"`     // 0 means one per CPU
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"` // per worker; 0 disables
}

// QueryConfig controls the parsed translation unit cache.
type QueryConfig struct {
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size"`
}

// LogConfig controls the slog handler built by the CLI.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn or error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Extensions: parser.Extensions(),
			Ignore: []string{
				".*/**",
				"**/.*/**",
				"build/**",
				"**/node_modules/**",
				"**/CMakeFiles/**",
			},
			StoreDir: ".symdex",
		},
		Workers: WorkersConfig{
			Timeout: 30 * time.Minute,
		},
		Query: QueryConfig{
			CacheSize: 16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
