package config

import (
	"fmt"
	"math"
	"net"
	"strings"
)

const minTelemetryIntervalMS = 500

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validateAddr("listen", cfg.Listen); err != nil {
		return nil, err
	}
	if cfg.Health.Enable {
		if err := validateAddr("health.listen", cfg.Health.Listen); err != nil {
			return nil, err
		}
		if samePort(cfg.Health.Listen, cfg.Listen) {
			return nil, fmt.Errorf("health.listen must use a different port than listen")
		}
	}

	switch cfg.Mount.Driver {
	case DriverSerial:
		if strings.TrimSpace(cfg.Mount.Port) == "" {
			return nil, fmt.Errorf("mount.port must not be empty when mount.driver=serial")
		}
		if cfg.Mount.Baud <= 0 {
			return nil, fmt.Errorf("mount.baud must be > 0")
		}
		if cfg.Mount.ReadTimeoutMS <= 0 {
			return nil, fmt.Errorf("mount.read_timeout_ms must be > 0")
		}
		if cfg.Mount.MotionTimeoutS <= 0 {
			return nil, fmt.Errorf("mount.motion_timeout_s must be > 0")
		}
	case DriverSimulator:
		if cfg.Mount.SlewRate < 0 {
			return nil, fmt.Errorf("mount.slew_rate must be >= 0")
		}
	default:
		return nil, fmt.Errorf("mount.driver must be one of: serial, simulator")
	}
	if cfg.Mount.TrackIntervalMS <= 0 {
		return nil, fmt.Errorf("mount.track_interval_ms must be > 0")
	}

	if math.IsNaN(cfg.Site.Latitude) || math.Abs(cfg.Site.Latitude) > 90 {
		return nil, fmt.Errorf("site.latitude must be within [-90, 90]")
	}
	if math.IsNaN(cfg.Site.Longitude) || math.Abs(cfg.Site.Longitude) > 180 {
		return nil, fmt.Errorf("site.longitude must be within [-180, 180]")
	}

	if cfg.Schedule.TelemetryIntervalMS <= 0 {
		return nil, fmt.Errorf("schedule.telemetry_interval_ms must be > 0")
	}
	if cfg.Schedule.MaintenanceIntervalS <= 0 {
		return nil, fmt.Errorf("schedule.maintenance_interval_s must be > 0")
	}
	if cfg.Schedule.PollIntervalMS <= 0 {
		return nil, fmt.Errorf("schedule.poll_interval_ms must be > 0")
	}
	if cfg.Schedule.TelemetryIntervalMS < minTelemetryIntervalMS {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"schedule.telemetry_interval_ms=%d is below %d; clients may be flooded with coordinates",
			cfg.Schedule.TelemetryIntervalMS, minTelemetryIntervalMS)})
	}

	if cfg.Session.WriteTimeoutMS <= 0 {
		return nil, fmt.Errorf("session.write_timeout_ms must be > 0")
	}
	if cfg.Session.ReadBufferBytes < 64 {
		return nil, fmt.Errorf("session.read_buffer_bytes must be >= 64")
	}
	if cfg.Session.UserTimeoutMS < 0 {
		return nil, fmt.Errorf("session.user_timeout_ms must be >= 0")
	}

	if strings.TrimSpace(cfg.Observe.Repo) == "" {
		return nil, fmt.Errorf("observe.repo must not be empty")
	}
	if !logLevels[cfg.Log.Level] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

func validateAddr(key, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// samePort reports a fixed port shared by both addresses. Port 0 never clashes.
func samePort(a, b string) bool {
	_, portA, errA := net.SplitHostPort(a)
	_, portB, errB := net.SplitHostPort(b)
	return errA == nil && errB == nil && portA == portB && portA != "0"
}
