package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	cfg := Load()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Parallelism", cfg.Parallelism, 0},
		{"ColorMode", cfg.ColorMode, "auto"},
		{"Debug", cfg.Debug, false},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "parallelism",
			envKey: "FORGE_PARALLELISM",
			envVal: "4",
			field:  func(c Config) any { return c.Parallelism },
			want:   4,
		},
		{
			name:   "color_mode",
			envKey: "FORGE_COLOR_MODE",
			envVal: "always",
			field:  func(c Config) any { return c.ColorMode },
			want:   "always",
		},
		{
			name:   "debug",
			envKey: "FORGE_DEBUG",
			envVal: "true",
			field:  func(c Config) any { return c.Debug },
			want:   true,
		},
		{
			name:   "verbose",
			envKey: "FORGE_VERBOSE",
			envVal: "true",
			field:  func(c Config) any { return c.Verbose },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper()
			// Mirrors the env-prefix wiring the root command sets up before Load.
			viper.SetEnvPrefix("FORGE")
			viper.AutomaticEnv()

			os.Setenv(tt.envKey, tt.envVal)
			defer os.Unsetenv(tt.envKey)

			cfg := Load()
			got := tt.field(cfg)
			if got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestLoad_ColorModeDefaultIsNotEmpty(t *testing.T) {
	resetViper()

	cfg := Load()

	if cfg.ColorMode == "" {
		t.Error("ColorMode should not be empty")
	}
}
