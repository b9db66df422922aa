package mount

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/vega-srt/vegad/internal/astro"
	"github.com/vega-srt/vegad/internal/relay"
)

// SerialConfig describes the controller link.
type SerialConfig struct {
	Port          string
	Baud          int
	ReadTimeout   time.Duration
	MotionTimeout time.Duration
	TrackInterval time.Duration
}

// ErrReadTimeout is returned when the controller does not answer in time.
var ErrReadTimeout = errors.New("mount controller did not answer in time")

// link is the subset of serial.Port the driver uses.
type link interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
	ResetInputBuffer() error
}

type opener func(port string, baud int) (link, error)

func openSerial(port string, baud int) (link, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, describePortError(port, err)
	}
	return p, nil
}

func describePortError(port string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("mount controller not found at %s: %w", port, err)
		case serial.PortBusy:
			return fmt.Errorf("mount controller port %s is busy: %w", port, err)
		case serial.PermissionDenied:
			return fmt.Errorf("permission denied opening %s: %w", port, err)
		}
	}
	return fmt.Errorf("open mount controller %s: %w", port, err)
}

// reply is one parsed controller response line.
type reply struct {
	kind   string
	state  string
	az     float64
	alt    float64
	errMsg string
}

// parseReply decodes `OK <state>`, `POS <az> <el>` and `ERR <message>`.
func parseReply(line string) (reply, error) {
	line = strings.TrimSpace(line)
	kind, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch kind {
	case "OK":
		return reply{kind: kind, state: rest}, nil
	case "ERR":
		return reply{kind: kind, errMsg: rest}, nil
	case "POS":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return reply{}, fmt.Errorf("malformed position reply %q", line)
		}
		az, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return reply{}, fmt.Errorf("parse azimuth in %q: %w", line, err)
		}
		alt, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return reply{}, fmt.Errorf("parse elevation in %q: %w", line, err)
		}
		return reply{kind: kind, az: az, alt: alt}, nil
	default:
		return reply{}, fmt.Errorf("unexpected controller reply %q", line)
	}
}

// Serial drives the antenna controller firmware over a serial line.
type Serial struct {
	cfg      SerialConfig
	conv     astro.Converter
	narrator relay.Narrator
	recorder *Recorder
	open     opener

	mu      sync.Mutex
	port    link
	pending []byte

	posMu   sync.Mutex
	az, alt float64
	posOK   bool

	track tracker
}

func NewSerial(cfg SerialConfig, conv astro.Converter, recorder *Recorder, narrator relay.Narrator) *Serial {
	if narrator == nil {
		narrator = relay.Discard
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.MotionTimeout <= 0 {
		cfg.MotionTimeout = 10 * time.Minute
	}
	return &Serial{
		cfg:      cfg,
		conv:     conv,
		narrator: narrator,
		recorder: recorder,
		open:     openSerial,
	}
}

func (s *Serial) PointAzAlt(ctx context.Context, az, alt float64) (string, error) {
	s.track.stop()
	s.narrator.Printf("Pointing to az=%.3f alt=%.3f", az, alt)
	return s.point(ctx, az, alt)
}

func (s *Serial) point(ctx context.Context, az, alt float64) (string, error) {
	az = normalizeAzimuth(az)
	alt = clampElevation(alt)
	r, err := s.exchange(ctx, fmt.Sprintf("POINT %.4f %.4f", az, alt), s.cfg.MotionTimeout)
	if err != nil {
		return "", err
	}
	s.refreshPosition(ctx)
	return r.state, nil
}

func (s *Serial) TrackRaDec(ctx context.Context, ra, dec float64) (string, error) {
	return s.startTrack(ctx, func() (float64, float64, error) {
		return s.conv.RaDecToAzAlt(ra, dec)
	})
}

func (s *Serial) TrackGal(ctx context.Context, l, b float64) (string, error) {
	return s.startTrack(ctx, func() (float64, float64, error) {
		return s.conv.GalToAzAlt(l, b)
	})
}

func (s *Serial) startTrack(ctx context.Context, resolve target) (string, error) {
	s.track.stop()
	az, alt, err := resolve()
	if err != nil {
		return "", err
	}
	if _, err := s.point(ctx, az, alt); err != nil {
		return "", err
	}
	s.track.start(s.cfg.TrackInterval, resolve, func(ctx context.Context, az, alt float64) error {
		_, err := s.point(ctx, az, alt)
		return err
	}, func(err error) {
		s.narrator.Printf("Tracking update failed: %v", err)
	})
	return StateTracking, nil
}

func (s *Serial) StopTracking(context.Context) (string, error) {
	if s.track.stop() {
		s.narrator.Printf("Tracking stopped")
	}
	return "", nil
}

func (s *Serial) GoHome(ctx context.Context) (string, error) {
	s.track.stop()
	s.narrator.Printf("Going home")
	return s.command(ctx, "HOME", s.cfg.MotionTimeout)
}

func (s *Serial) Untangle(ctx context.Context) (string, error) {
	s.track.stop()
	s.narrator.Printf("Untangling cables")
	return s.command(ctx, "UNTANGLE", s.cfg.MotionTimeout)
}

func (s *Serial) Standby(ctx context.Context) (string, error) {
	s.track.stop()
	return s.command(ctx, "STANDBY", s.cfg.ReadTimeout)
}

// Connect opens the serial link and reads the controller state. In water mode
// the controller runs its water evacuation routine before reporting.
func (s *Serial) Connect(ctx context.Context, water bool) (string, error) {
	s.mu.Lock()
	if s.port == nil {
		port, err := s.open(s.cfg.Port, s.cfg.Baud)
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		if err := port.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
			_ = port.Close()
			s.mu.Unlock()
			return "", fmt.Errorf("set read timeout: %w", err)
		}
		_ = port.ResetInputBuffer()
		s.port = port
		s.pending = nil
	}
	s.mu.Unlock()

	s.narrator.Printf("Mount link open on %s", s.cfg.Port)
	state, err := s.command(ctx, "STANDBY", s.cfg.ReadTimeout)
	if err != nil {
		s.closePort()
		return "", err
	}
	if water {
		s.narrator.Printf("Evacuating water")
		state, err = s.command(ctx, "WATER", s.cfg.MotionTimeout)
		if err != nil {
			return "", err
		}
	}
	s.refreshPosition(ctx)
	return state, nil
}

func (s *Serial) Disconnect(ctx context.Context) (string, error) {
	s.track.stop()

	_, standbyErr := s.command(ctx, "STANDBY", s.cfg.ReadTimeout)

	port := s.detachPort()
	if port == nil {
		return StateDisconnected, nil
	}
	if err := port.Close(); err != nil {
		return StateDisconnected, fmt.Errorf("close mount controller: %w", err)
	}
	if standbyErr != nil && !errors.Is(standbyErr, ErrNotConnected) {
		s.narrator.Printf("Standby before disconnect failed: %v", standbyErr)
	}
	s.narrator.Printf("Mount link released")
	return StateDisconnected, nil
}

// detachPort forgets the open port and the last known position.
func (s *Serial) detachPort() link {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.pending = nil
	s.mu.Unlock()

	s.posMu.Lock()
	s.posOK = false
	s.posMu.Unlock()
	return port
}

// closePort releases a port whose controller never answered.
func (s *Serial) closePort() {
	if port := s.detachPort(); port != nil {
		_ = port.Close()
	}
}

func (s *Serial) Observe(_ context.Context, params ObserveParams) error {
	if s.recorder == nil {
		return errors.New("no observation recorder configured")
	}
	path, err := s.recorder.Start(params, s.Coords())
	if err != nil {
		return err
	}
	s.narrator.Printf("Observation started, metadata in %s", path)
	return nil
}

func (s *Serial) Observing() bool {
	return s.recorder != nil && s.recorder.Active()
}

// Coords returns the last position read from the controller.
func (s *Serial) Coords() Coords {
	s.posMu.Lock()
	az, alt, ok := s.az, s.alt, s.posOK
	s.posMu.Unlock()
	if !ok {
		return FailedCoords()
	}
	return deriveCoords(s.conv, az, alt)
}

func (s *Serial) refreshPosition(ctx context.Context) {
	r, err := s.exchange(ctx, "POS", s.cfg.ReadTimeout)

	s.posMu.Lock()
	defer s.posMu.Unlock()
	if err != nil || r.kind != "POS" {
		s.posOK = false
		return
	}
	s.az, s.alt, s.posOK = r.az, r.alt, true
}

// command sends a state-changing request and returns the reported state.
func (s *Serial) command(ctx context.Context, line string, limit time.Duration) (string, error) {
	r, err := s.exchange(ctx, line, limit)
	if err != nil {
		return "", err
	}
	if r.kind != "OK" {
		return "", fmt.Errorf("controller answered %s to %q", r.kind, line)
	}
	return r.state, nil
}

// exchange writes one request line and waits up to limit for its reply. Motion
// requests only reply once the motion is finished, so they get a longer limit.
func (s *Serial) exchange(ctx context.Context, line string, limit time.Duration) (reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return reply{}, ErrNotConnected
	}
	if _, err := s.port.Write([]byte(line + "\n")); err != nil {
		return reply{}, fmt.Errorf("write %q: %w", line, err)
	}

	raw, err := s.readLine(ctx, time.Now().Add(limit))
	if err != nil {
		return reply{}, fmt.Errorf("read reply to %q: %w", line, err)
	}
	r, err := parseReply(raw)
	if err != nil {
		return reply{}, err
	}
	if r.kind == "ERR" {
		return r, fmt.Errorf("controller error on %q: %s", line, r.errMsg)
	}
	return r, nil
}

// readLine reads until a newline. The port returns zero bytes once its read
// timeout expires; past deadline that is reported as ErrReadTimeout.
func (s *Serial) readLine(ctx context.Context, deadline time.Time) (string, error) {
	buf := make([]byte, 128)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := string(s.pending[:i])
			s.pending = s.pending[i+1:]
			if strings.TrimSpace(line) == "" {
				continue
			}
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := s.port.Read(buf)
		if n > 0 {
			s.pending = append(s.pending, buf[:n]...)
		}
		if err != nil {
			return "", err
		}
		if n == 0 && !time.Now().Before(deadline) {
			return "", ErrReadTimeout
		}
	}
}
