// Package config loads cross-cutting operator knobs that are not already
// carried by the repository manifest: parallelism, color mode, and the
// debug-stack-trace flag (spec.md §7). Values are populated from
// .forge.yaml, FORGE_* env vars, and CLI flags, in that increasing
// priority order.
package config

import "github.com/spf13/viper"

// Config holds all runtime configuration for a forge invocation.
type Config struct {
	Parallelism int    `mapstructure:"parallelism"`
	ColorMode   string `mapstructure:"color_mode"` // "auto", "always", "never"
	Debug       bool   `mapstructure:"debug"`
	Verbose     bool   `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() Config {
	viper.SetDefault("parallelism", 0) // 0 means "use host CPU count"
	viper.SetDefault("color_mode", "auto")
	viper.SetDefault("debug", false)
	viper.SetDefault("verbose", false)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
