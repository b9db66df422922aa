// Package mount is the hardware facade over the antenna mount controller.
//
// Blocking calls last as long as the physical motion they command. Status
// strings mirror what the controller firmware reports.
package mount

import (
	"context"
	"errors"

	"github.com/vega-srt/vegad/internal/astro"
)

// Sentinel marks a coordinate that could not be read from the hardware.
const Sentinel = -1.0

// ZenithMarginDeg keeps the dish away from the zenith singularity.
const ZenithMarginDeg = 2.0

const (
	StateIdle         = "IDLE"
	StateUntangled    = "Untangled"
	StateStandby      = "Standby"
	StateTracking     = "Tracking"
	StateDisconnected = "Disconnected"
)

var (
	ErrNotConnected   = errors.New("mount link is not connected")
	ErrAlreadyRunning = errors.New("observation already running")
)

// Coords is one telemetry snapshot. Long/Lat are galactic coordinates.
type Coords struct {
	Az   float64
	Alt  float64
	RA   float64
	Dec  float64
	Long float64
	Lat  float64
}

// FailedCoords is returned when the hardware position cannot be read.
func FailedCoords() Coords {
	return Coords{Az: Sentinel, Alt: Sentinel, RA: Sentinel, Dec: Sentinel, Long: Sentinel, Lat: Sentinel}
}

// Failed reports whether the snapshot carries the read-failure sentinel.
func (c Coords) Failed() bool {
	return c.Az == Sentinel || c.Alt == Sentinel
}

// ObserveParams configures one asynchronous observation.
type ObserveParams struct {
	Repo        string
	Prefix      string
	RFGain      float64
	IFGain      float64
	BBGain      float64
	CenterFreq  float64
	Bandwidth   float64
	Channels    int
	SampleTime  float64
	Duration    float64
	ObsMode     bool
	RawMode     bool
	StudentFlag bool
}

// Mount is the capability set the command worker drives.
type Mount interface {
	PointAzAlt(ctx context.Context, az, alt float64) (string, error)
	TrackRaDec(ctx context.Context, ra, dec float64) (string, error)
	TrackGal(ctx context.Context, l, b float64) (string, error)
	StopTracking(ctx context.Context) (string, error)
	GoHome(ctx context.Context) (string, error)
	Untangle(ctx context.Context) (string, error)
	Standby(ctx context.Context) (string, error)
	Connect(ctx context.Context, water bool) (string, error)
	Disconnect(ctx context.Context) (string, error)
	Observe(ctx context.Context, params ObserveParams) error
	Observing() bool
	Coords() Coords
}

// deriveCoords fills the equatorial and galactic fields for a horizontal position.
func deriveCoords(conv astro.Converter, az, alt float64) Coords {
	ra, dec, err := conv.AzAltToRaDec(az, alt)
	if err != nil {
		return FailedCoords()
	}
	l, b, err := astro.RaDecToGal(ra, dec)
	if err != nil {
		return FailedCoords()
	}
	return Coords{Az: az, Alt: alt, RA: ra, Dec: dec, Long: l, Lat: b}
}

// clampElevation applies the firmware's elevation limits.
func clampElevation(alt float64) float64 {
	if alt > 90-ZenithMarginDeg {
		return 90 - ZenithMarginDeg
	}
	if alt < 0 {
		return 0
	}
	return alt
}

// normalizeAzimuth folds azimuth into [0, 360).
func normalizeAzimuth(az float64) float64 {
	for az < 0 {
		az += 360
	}
	for az >= 360 {
		az -= 360
	}
	return az
}
