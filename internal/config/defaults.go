package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Listen: "0.0.0.0:5005",
		Health: HealthConfig{
			Enable: true,
			Listen: "127.0.0.1:5006",
		},
		Mount: MountConfig{
			Driver:          DriverSerial,
			Port:            "/dev/ttyUSB0",
			Baud:            115200,
			ReadTimeoutMS:   2000,
			MotionTimeoutS:  600,
			TrackIntervalMS: 1000,
		},
		Site: SiteConfig{
			Latitude:  57.393,
			Longitude: 11.918,
			Elevation: 20,
		},
		Schedule: ScheduleConfig{
			TelemetryIntervalMS:  3000,
			MaintenanceIntervalS: 3600,
			PollIntervalMS:       20,
		},
		Session: SessionConfig{
			WriteTimeoutMS:  5000,
			ReadBufferBytes: 4096,
			UserTimeoutMS:   30000,
		},
		Observe: ObserveConfig{Repo: "~/vega/observations"},
		Cues:    CuesConfig{Enable: false},
		Log:     LogConfig{Level: "info"},
	}
}
