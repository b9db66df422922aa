package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v6"
)

// envOverrides holds the settings that may be forced from the environment.
// Empty or zero values leave the file/default value untouched.
type envOverrides struct {
	Listen       string `env:"VEGAD_LISTEN"`
	HealthListen string `env:"VEGAD_HEALTH_LISTEN"`
	MountDriver  string `env:"VEGAD_MOUNT_DRIVER"`
	MountPort    string `env:"VEGAD_MOUNT_PORT"`
	MountBaud    int    `env:"VEGAD_MOUNT_BAUD"`
	LogLevel     string `env:"VEGAD_LOG_LEVEL"`
}

func applyEnv(cfg *Config) ([]Warning, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	warnings := make([]Warning, 0)
	note := func(name string) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("%s overrides config file value", name)})
	}

	if v := strings.TrimSpace(overrides.Listen); v != "" {
		cfg.Listen = v
		note("VEGAD_LISTEN")
	}
	if v := strings.TrimSpace(overrides.HealthListen); v != "" {
		cfg.Health.Listen = v
		note("VEGAD_HEALTH_LISTEN")
	}
	if v := strings.TrimSpace(overrides.MountDriver); v != "" {
		cfg.Mount.Driver = strings.ToLower(v)
		note("VEGAD_MOUNT_DRIVER")
	}
	if v := strings.TrimSpace(overrides.MountPort); v != "" {
		cfg.Mount.Port = v
		note("VEGAD_MOUNT_PORT")
	}
	if overrides.MountBaud != 0 {
		cfg.Mount.Baud = overrides.MountBaud
		note("VEGAD_MOUNT_BAUD")
	}
	if v := strings.TrimSpace(overrides.LogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
		note("VEGAD_LOG_LEVEL")
	}
	return warnings, nil
}
