// Package config resolves, parses, validates, and defaults vegad configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by vegad.
type Config struct {
	Listen   string
	Health   HealthConfig
	Mount    MountConfig
	Site     SiteConfig
	Schedule ScheduleConfig
	Session  SessionConfig
	Observe  ObserveConfig
	Cues     CuesConfig
	Log      LogConfig
}

// HealthConfig controls the gRPC health endpoint.
type HealthConfig struct {
	Enable bool
	Listen string
}

// MountConfig selects and tunes the hardware driver.
type MountConfig struct {
	Driver          string
	Port            string
	Baud            int
	ReadTimeoutMS   int
	MotionTimeoutS  int
	SlewRate        float64
	TrackIntervalMS int
}

// SiteConfig is the geodetic position of the antenna.
type SiteConfig struct {
	Latitude  float64
	Longitude float64
	Elevation float64
}

// ScheduleConfig paces the command worker.
type ScheduleConfig struct {
	TelemetryIntervalMS  int
	MaintenanceIntervalS int
	PollIntervalMS       int
}

// SessionConfig tunes the client socket.
type SessionConfig struct {
	WriteTimeoutMS  int
	ReadBufferBytes int
	UserTimeoutMS   int
}

// ObserveConfig controls where measurement metadata is written.
type ObserveConfig struct {
	Repo string
}

// CuesConfig toggles audible operator cues.
type CuesConfig struct {
	Enable bool
}

// LogConfig controls the runtime log.
type LogConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

const (
	DriverSerial    = "serial"
	DriverSimulator = "simulator"
)

func (m MountConfig) ReadTimeout() time.Duration {
	return time.Duration(m.ReadTimeoutMS) * time.Millisecond
}

func (m MountConfig) MotionTimeout() time.Duration {
	return time.Duration(m.MotionTimeoutS) * time.Second
}

func (m MountConfig) TrackInterval() time.Duration {
	return time.Duration(m.TrackIntervalMS) * time.Millisecond
}

func (s ScheduleConfig) TelemetryInterval() time.Duration {
	return time.Duration(s.TelemetryIntervalMS) * time.Millisecond
}

func (s ScheduleConfig) MaintenanceInterval() time.Duration {
	return time.Duration(s.MaintenanceIntervalS) * time.Second
}

func (s ScheduleConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

func (s SessionConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s SessionConfig) UserTimeout() time.Duration {
	return time.Duration(s.UserTimeoutMS) * time.Millisecond
}
