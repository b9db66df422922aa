package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/jsonc"
)

type jsoncConfig struct {
	Listen   *string        `json:"listen"`
	Health   *jsoncHealth   `json:"health"`
	Mount    *jsoncMount    `json:"mount"`
	Site     *jsoncSite     `json:"site"`
	Schedule *jsoncSchedule `json:"schedule"`
	Session  *jsoncSession  `json:"session"`
	Observe  *jsoncObserve  `json:"observe"`
	Cues     *jsoncCues     `json:"cues"`
	Log      *jsoncLog      `json:"log"`
}

type jsoncHealth struct {
	Enable *bool   `json:"enable"`
	Listen *string `json:"listen"`
}

type jsoncMount struct {
	Driver          *string  `json:"driver"`
	Port            *string  `json:"port"`
	Baud            *int     `json:"baud"`
	ReadTimeoutMS   *int     `json:"read_timeout_ms"`
	MotionTimeoutS  *int     `json:"motion_timeout_s"`
	SlewRate        *float64 `json:"slew_rate"`
	TrackIntervalMS *int     `json:"track_interval_ms"`
}

type jsoncSite struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Elevation *float64 `json:"elevation"`
}

type jsoncSchedule struct {
	TelemetryIntervalMS  *int `json:"telemetry_interval_ms"`
	MaintenanceIntervalS *int `json:"maintenance_interval_s"`
	PollIntervalMS       *int `json:"poll_interval_ms"`
}

type jsoncSession struct {
	WriteTimeoutMS  *int `json:"write_timeout_ms"`
	ReadBufferBytes *int `json:"read_buffer_bytes"`
	UserTimeoutMS   *int `json:"user_timeout_ms"`
}

type jsoncObserve struct {
	Repo *string `json:"repo"`
}

type jsoncCues struct {
	Enable *bool `json:"enable"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

// Parse decodes JSONC content over base. Fields absent from content keep the
// base value. The result is not validated.
func Parse(content string, base Config) (Config, []Warning, error) {
	normalized := jsonc.ToJSON([]byte(content))
	if len(bytes.TrimSpace(normalized)) == 0 {
		return base, []Warning{{Line: 1, Message: "config file is empty; using defaults"}}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(string(normalized), err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(string(normalized), err)
	}

	cfg := base
	return cfg, payload.applyTo(&cfg), nil
}

func (payload jsoncConfig) applyTo(cfg *Config) []Warning {
	warnings := make([]Warning, 0)

	if payload.Listen != nil {
		cfg.Listen = strings.TrimSpace(*payload.Listen)
	}

	if payload.Health != nil {
		if payload.Health.Enable != nil {
			cfg.Health.Enable = *payload.Health.Enable
		}
		if payload.Health.Listen != nil {
			cfg.Health.Listen = strings.TrimSpace(*payload.Health.Listen)
		}
	}

	if payload.Mount != nil {
		if payload.Mount.Driver != nil {
			cfg.Mount.Driver = strings.ToLower(strings.TrimSpace(*payload.Mount.Driver))
		}
		if payload.Mount.Port != nil {
			cfg.Mount.Port = strings.TrimSpace(*payload.Mount.Port)
		}
		if payload.Mount.Baud != nil {
			cfg.Mount.Baud = *payload.Mount.Baud
		}
		if payload.Mount.ReadTimeoutMS != nil {
			cfg.Mount.ReadTimeoutMS = *payload.Mount.ReadTimeoutMS
		}
		if payload.Mount.MotionTimeoutS != nil {
			cfg.Mount.MotionTimeoutS = *payload.Mount.MotionTimeoutS
		}
		if payload.Mount.SlewRate != nil {
			cfg.Mount.SlewRate = *payload.Mount.SlewRate
		}
		if payload.Mount.TrackIntervalMS != nil {
			cfg.Mount.TrackIntervalMS = *payload.Mount.TrackIntervalMS
		}
	}

	if payload.Site != nil {
		if payload.Site.Latitude != nil {
			cfg.Site.Latitude = *payload.Site.Latitude
		}
		if payload.Site.Longitude != nil {
			cfg.Site.Longitude = *payload.Site.Longitude
		}
		if payload.Site.Elevation != nil {
			cfg.Site.Elevation = *payload.Site.Elevation
		}
	}

	if payload.Schedule != nil {
		if payload.Schedule.TelemetryIntervalMS != nil {
			cfg.Schedule.TelemetryIntervalMS = *payload.Schedule.TelemetryIntervalMS
		}
		if payload.Schedule.MaintenanceIntervalS != nil {
			cfg.Schedule.MaintenanceIntervalS = *payload.Schedule.MaintenanceIntervalS
		}
		if payload.Schedule.PollIntervalMS != nil {
			cfg.Schedule.PollIntervalMS = *payload.Schedule.PollIntervalMS
		}
	}

	if payload.Session != nil {
		if payload.Session.WriteTimeoutMS != nil {
			cfg.Session.WriteTimeoutMS = *payload.Session.WriteTimeoutMS
		}
		if payload.Session.ReadBufferBytes != nil {
			cfg.Session.ReadBufferBytes = *payload.Session.ReadBufferBytes
		}
		if payload.Session.UserTimeoutMS != nil {
			cfg.Session.UserTimeoutMS = *payload.Session.UserTimeoutMS
		}
	}

	if payload.Observe != nil && payload.Observe.Repo != nil {
		cfg.Observe.Repo = strings.TrimSpace(*payload.Observe.Repo)
	}

	if payload.Cues != nil && payload.Cues.Enable != nil {
		cfg.Cues.Enable = *payload.Cues.Enable
	}

	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}

	if payload.Mount != nil && payload.Mount.SlewRate != nil && cfg.Mount.Driver != DriverSimulator {
		warnings = append(warnings, Warning{Message: "mount.slew_rate only applies to the simulator driver"})
	}

	return warnings
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

// wrapJSONDecodeError prefixes decode errors with a position. jsonc.ToJSON
// keeps byte offsets stable, so the position matches the original file.
func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
