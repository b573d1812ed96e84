package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration for the project at rootDir. Priority, highest
// first: SYMDEX_* environment variables, <rootDir>/.symdex/config.yml,
// defaults. A missing config file is not an error.
func Load(rootDir string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(rootDir, ".symdex"))

	v.SetEnvPrefix("SYMDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("index.extensions", d.Index.Extensions)
	v.SetDefault("index.ignore", d.Index.Ignore)
	v.SetDefault("index.store_dir", d.Index.StoreDir)
	v.SetDefault("index.compiler_args", d.Index.CompilerArgs)

	v.SetDefault("workers.count", d.Workers.Count)
	v.SetDefault("workers.timeout", d.Workers.Timeout)

	v.SetDefault("query.cache_size", d.Query.CacheSize)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
