package mount

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vega-srt/vegad/internal/astro"
	"github.com/vega-srt/vegad/internal/relay"
)

// SimulatorConfig tunes the in-memory mount.
type SimulatorConfig struct {
	// SlewRate in degrees per second; zero moves instantly.
	SlewRate      float64
	TrackInterval time.Duration
}

// Simulator is an in-memory mount used for development and tests.
type Simulator struct {
	cfg      SimulatorConfig
	conv     astro.Converter
	narrator relay.Narrator
	recorder *Recorder

	mu         sync.Mutex
	connected  bool
	az, alt    float64
	failReads  bool
	connectErr error

	track tracker
}

func NewSimulator(cfg SimulatorConfig, conv astro.Converter, recorder *Recorder, narrator relay.Narrator) *Simulator {
	if narrator == nil {
		narrator = relay.Discard
	}
	return &Simulator{
		cfg:      cfg,
		conv:     conv,
		narrator: narrator,
		recorder: recorder,
		alt:      90 - ZenithMarginDeg,
	}
}

// SetReadFailure makes Coords return sentinels, as a damaged encoder would.
func (s *Simulator) SetReadFailure(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = fail
}

// SetConnectError makes the next Connect calls fail with err.
func (s *Simulator) SetConnectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// Connected reports whether the simulated link is up.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Simulator) PointAzAlt(ctx context.Context, az, alt float64) (string, error) {
	s.track.stop()
	if err := s.slew(ctx, az, alt); err != nil {
		return "", err
	}
	return StateIdle, nil
}

func (s *Simulator) TrackRaDec(ctx context.Context, ra, dec float64) (string, error) {
	return s.startTrack(ctx, func() (float64, float64, error) {
		return s.conv.RaDecToAzAlt(ra, dec)
	})
}

func (s *Simulator) TrackGal(ctx context.Context, l, b float64) (string, error) {
	return s.startTrack(ctx, func() (float64, float64, error) {
		return s.conv.GalToAzAlt(l, b)
	})
}

func (s *Simulator) startTrack(ctx context.Context, resolve target) (string, error) {
	s.track.stop()
	az, alt, err := resolve()
	if err != nil {
		return "", err
	}
	if err := s.slew(ctx, az, alt); err != nil {
		return "", err
	}
	s.track.start(s.cfg.TrackInterval, resolve, s.slew, func(err error) {
		s.narrator.Printf("Tracking update failed: %v", err)
	})
	return StateTracking, nil
}

// StopTracking returns an empty status, matching the controller's silent stop.
func (s *Simulator) StopTracking(context.Context) (string, error) {
	if s.track.stop() {
		s.narrator.Printf("Tracking stopped")
	}
	return "", nil
}

func (s *Simulator) GoHome(ctx context.Context) (string, error) {
	s.track.stop()
	s.narrator.Printf("Going home")
	if err := s.slew(ctx, 0, 90); err != nil {
		return "", err
	}
	return StateIdle, nil
}

func (s *Simulator) Untangle(ctx context.Context) (string, error) {
	s.track.stop()
	s.mu.Lock()
	alt := s.alt
	s.mu.Unlock()
	s.narrator.Printf("Untangling cables")
	if err := s.slew(ctx, 0, alt); err != nil {
		return "", err
	}
	return StateUntangled, nil
}

func (s *Simulator) Standby(ctx context.Context) (string, error) {
	s.track.stop()
	if err := s.requireConnected(); err != nil {
		return "", err
	}
	return StateStandby, nil
}

func (s *Simulator) Connect(ctx context.Context, water bool) (string, error) {
	s.mu.Lock()
	err := s.connectErr
	if err == nil {
		s.connected = true
	}
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.narrator.Printf("Mount link established")
	if water {
		s.narrator.Printf("Evacuating water")
		if err := s.slew(ctx, 0, 60); err != nil {
			return "", err
		}
		if err := s.slew(ctx, 0, 90); err != nil {
			return "", err
		}
	}
	return StateIdle, nil
}

func (s *Simulator) Disconnect(context.Context) (string, error) {
	s.track.stop()
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.narrator.Printf("Mount link released")
	return StateDisconnected, nil
}

func (s *Simulator) Observe(_ context.Context, params ObserveParams) error {
	if s.recorder == nil {
		return ErrNotConnected
	}
	path, err := s.recorder.Start(params, s.Coords())
	if err != nil {
		return err
	}
	s.narrator.Printf("Observation started, metadata in %s", path)
	return nil
}

func (s *Simulator) Observing() bool {
	return s.recorder != nil && s.recorder.Active()
}

func (s *Simulator) Coords() Coords {
	s.mu.Lock()
	az, alt, fail := s.az, s.alt, s.failReads
	s.mu.Unlock()
	if fail {
		return FailedCoords()
	}
	return deriveCoords(s.conv, az, alt)
}

func (s *Simulator) requireConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	return nil
}

// slew moves the simulated dish, blocking in proportion to the angular distance.
func (s *Simulator) slew(ctx context.Context, az, alt float64) error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	az = normalizeAzimuth(az)
	alt = clampElevation(alt)

	s.mu.Lock()
	distance := math.Max(math.Abs(az-s.az), math.Abs(alt-s.alt))
	s.mu.Unlock()

	if s.cfg.SlewRate > 0 && distance > 0 {
		wait := time.Duration(distance / s.cfg.SlewRate * float64(time.Second))
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	s.az, s.alt = az, alt
	s.mu.Unlock()
	return nil
}
