// Package astro converts between the horizontal, equatorial and galactic
// coordinate systems for a fixed observing site. All angles are in degrees.
package astro

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrInvalidCoordinates reports an angle outside its valid range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// equatorialToGalactic is the J2000 rotation from equatorial to galactic unit vectors.
var equatorialToGalactic = mgl64.Mat3FromRows(
	mgl64.Vec3{-0.0548755604162154, -0.8734370902348850, -0.4838350155487132},
	mgl64.Vec3{0.4941094278755837, -0.4448296299600112, 0.7469822444972189},
	mgl64.Vec3{-0.8676661490190047, -0.1980763734312015, 0.4559837761750669},
)

const (
	j2000JulianDay   = 2451545.0
	unixEpochJulian  = 2440587.5
	secondsPerDay    = 86400.0
	gmstAtJ2000Deg   = 280.46061837
	gmstDegreesRate  = 360.98564736629
	fullCircleDegree = 360.0
)

// Site is the observer location. Longitude is east-positive.
type Site struct {
	Latitude  float64
	Longitude float64
	Elevation float64
}

// Validate checks the site latitude and longitude ranges.
func (s Site) Validate() error {
	if err := checkLatitude("site latitude", s.Latitude); err != nil {
		return err
	}
	if !finite(s.Longitude) || s.Longitude < -180 || s.Longitude > 360 {
		return fmt.Errorf("%w: site longitude %v", ErrInvalidCoordinates, s.Longitude)
	}
	return nil
}

// Converter evaluates time-dependent conversions at Now for Site.
type Converter struct {
	Site Site
	Now  func() time.Time
}

// NewConverter returns a converter using the wall clock.
func NewConverter(site Site) Converter {
	return Converter{Site: site, Now: time.Now}
}

func (c Converter) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// CheckHorizontal validates an azimuth/altitude pair without converting it.
func CheckHorizontal(az, alt float64) error {
	if err := checkLongitude("azimuth", az); err != nil {
		return err
	}
	return checkLatitude("altitude", alt)
}

// RaDecToAzAlt converts equatorial coordinates to azimuth (from north through east) and altitude.
func (c Converter) RaDecToAzAlt(ra, dec float64) (float64, float64, error) {
	if err := checkLongitude("right ascension", ra); err != nil {
		return 0, 0, err
	}
	if err := checkLatitude("declination", dec); err != nil {
		return 0, 0, err
	}

	hourAngle := LocalSiderealTime(c.now(), c.Site.Longitude) - ra
	az, alt := rotateHorizon(hourAngle, dec, c.Site.Latitude)
	return normalizeDegrees(az), alt, nil
}

// AzAltToRaDec converts horizontal coordinates back to equatorial ones.
func (c Converter) AzAltToRaDec(az, alt float64) (float64, float64, error) {
	if err := checkLongitude("azimuth", az); err != nil {
		return 0, 0, err
	}
	if err := checkLatitude("altitude", alt); err != nil {
		return 0, 0, err
	}

	hourAngle, dec := rotateHorizon(az, alt, c.Site.Latitude)
	ra := LocalSiderealTime(c.now(), c.Site.Longitude) - hourAngle
	return normalizeDegrees(ra), dec, nil
}

// GalToAzAlt converts galactic longitude/latitude to azimuth and altitude.
func (c Converter) GalToAzAlt(l, b float64) (float64, float64, error) {
	ra, dec, err := GalToRaDec(l, b)
	if err != nil {
		return 0, 0, err
	}
	return c.RaDecToAzAlt(ra, dec)
}

// GalToRaDec converts galactic coordinates to J2000 equatorial coordinates.
func GalToRaDec(l, b float64) (float64, float64, error) {
	if err := checkLongitude("galactic longitude", l); err != nil {
		return 0, 0, err
	}
	if err := checkLatitude("galactic latitude", b); err != nil {
		return 0, 0, err
	}
	v := equatorialToGalactic.Transpose().Mul3x1(unitVector(l, b))
	ra, dec := sphericalAngles(v)
	return ra, dec, nil
}

// RaDecToGal converts J2000 equatorial coordinates to galactic coordinates.
func RaDecToGal(ra, dec float64) (float64, float64, error) {
	if err := checkLongitude("right ascension", ra); err != nil {
		return 0, 0, err
	}
	if err := checkLatitude("declination", dec); err != nil {
		return 0, 0, err
	}
	l, b := sphericalAngles(equatorialToGalactic.Mul3x1(unitVector(ra, dec)))
	return l, b, nil
}

// LocalSiderealTime returns the local mean sidereal time at t in degrees.
func LocalSiderealTime(t time.Time, longitude float64) float64 {
	julian := float64(t.UTC().UnixNano())/1e9/secondsPerDay + unixEpochJulian
	gmst := gmstAtJ2000Deg + gmstDegreesRate*(julian-j2000JulianDay)
	return normalizeDegrees(gmst + longitude)
}

// rotateHorizon maps (angle, lat) between the hour-angle and horizontal frames.
// The transform is its own inverse, so it serves both directions.
func rotateHorizon(angle, lat, siteLat float64) (float64, float64) {
	a := mgl64.DegToRad(angle)
	d := mgl64.DegToRad(lat)
	phi := mgl64.DegToRad(siteLat)

	sinOut := math.Sin(d)*math.Sin(phi) + math.Cos(d)*math.Cos(phi)*math.Cos(a)
	sinOut = mgl64.Clamp(sinOut, -1, 1)
	y := -math.Cos(d) * math.Sin(a)
	x := math.Sin(d)*math.Cos(phi) - math.Cos(d)*math.Sin(phi)*math.Cos(a)

	return mgl64.RadToDeg(math.Atan2(y, x)), mgl64.RadToDeg(math.Asin(sinOut))
}

func unitVector(lon, lat float64) mgl64.Vec3 {
	l := mgl64.DegToRad(lon)
	b := mgl64.DegToRad(lat)
	return mgl64.Vec3{math.Cos(b) * math.Cos(l), math.Cos(b) * math.Sin(l), math.Sin(b)}
}

func sphericalAngles(v mgl64.Vec3) (float64, float64) {
	v = v.Normalize()
	lon := mgl64.RadToDeg(math.Atan2(v.Y(), v.X()))
	lat := mgl64.RadToDeg(math.Asin(mgl64.Clamp(v.Z(), -1, 1)))
	return normalizeDegrees(lon), lat
}

func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, fullCircleDegree)
	if deg < 0 {
		deg += fullCircleDegree
	}
	return deg
}

func checkLatitude(name string, v float64) error {
	if !finite(v) || v < -90 || v > 90 {
		return fmt.Errorf("%w: %s %v outside [-90, 90]", ErrInvalidCoordinates, name, v)
	}
	return nil
}

func checkLongitude(name string, v float64) error {
	if !finite(v) || v < 0 || v > fullCircleDegree {
		return fmt.Errorf("%w: %s %v outside [0, 360]", ErrInvalidCoordinates, name, v)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
