// Package session owns the single client connection: exclusivity, handshake,
// inbound frame handling and every write to the client socket.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/vega-srt/vegad/internal/fsm"
	"github.com/vega-srt/vegad/internal/protocol"
	"github.com/vega-srt/vegad/internal/relay"
	"github.com/vega-srt/vegad/internal/worker"
)

// ErrNoClient is returned when a response is written with no client attached.
var ErrNoClient = errors.New("no connected client")

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadBuffer   = 4096
	rejectWriteTimeout  = time.Second
	detachTimeout       = 5 * time.Minute
)

// Worker is the session-facing subset of the command worker.
type Worker interface {
	Submit(protocol.Command) error
	SubmitWhenIdle(context.Context, protocol.Command) error
	WaitIdle(context.Context) error
	PauseTelemetry() func()
}

// Display receives human-readable event lines.
type Display interface {
	AppendLog(text string)
}

// Cues announces client attach and detach on the control-room host.
type Cues interface {
	ClientConnected(context.Context)
	ClientDisconnected(context.Context)
}

type noopDisplay struct{}

func (noopDisplay) AppendLog(string) {}

type noopCues struct{}

func (noopCues) ClientConnected(context.Context)    {}
func (noopCues) ClientDisconnected(context.Context) {}

// Options tunes socket handling. Zero values fall back to defaults.
type Options struct {
	WriteTimeout    time.Duration
	ReadBufferBytes int
	Display         Display
	Cues            Cues
}

// Manager implements worker.Sink for the one attached client.
type Manager struct {
	logger *slog.Logger
	worker Worker
	relay  *relay.Relay
	opts   Options

	mu    sync.RWMutex
	state fsm.State
	// owner is the accepted connection; conn is only set once its handshake is written.
	owner net.Conn
	conn  net.Conn

	writeMu sync.Mutex
}

var _ worker.Sink = (*Manager)(nil)

// New builds a manager in the no-client state.
func New(logger *slog.Logger, w Worker, r *relay.Relay, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = relay.New(logger)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.ReadBufferBytes <= 0 {
		opts.ReadBufferBytes = defaultReadBuffer
	}
	if opts.Display == nil {
		opts.Display = noopDisplay{}
	}
	if opts.Cues == nil {
		opts.Cues = noopCues{}
	}

	return &Manager{
		logger: logger,
		worker: w,
		relay:  r,
		opts:   opts,
		state:  fsm.StateNoClient,
	}
}

// State returns the current session state snapshot.
func (m *Manager) State() fsm.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attached reports whether a client is connected.
func (m *Manager) Attached() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil
}

// HandleConn serves one inbound connection until it closes or ctx ends.
// A connection arriving while another client is attached gets BUSY and is closed.
func (m *Manager) HandleConn(ctx context.Context, conn net.Conn) {
	if err := m.attach(conn); err != nil {
		if errors.Is(err, fsm.ErrBusy) {
			m.reject(conn)
			return
		}
		m.logger.Error("attach client", "remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer m.detach(ctx, conn)

	m.logger.Info("client connected", "remote", conn.RemoteAddr().String())
	m.opts.Display.AppendLog("Client connected.")
	m.opts.Cues.ClientConnected(ctx)

	if err := m.handshake(ctx, conn); err != nil {
		m.logger.Warn("handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	m.relay.Install(m.relayPrint)

	buf := make([]byte, m.opts.ReadBufferBytes)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			m.processChunk(string(buf[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				m.logger.Warn("client read failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}
	}
}

func (m *Manager) attach(conn net.Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fsm.Transition(m.state, fsm.EventAccept)
	if err != nil {
		return err
	}
	m.state = next
	m.owner = conn
	return nil
}

// handshake writes OK|CONNECTED once the worker is idle and only then publishes
// conn, so output of an earlier command cannot reach the new client first.
func (m *Manager) handshake(ctx context.Context, conn net.Conn) error {
	resume := m.worker.PauseTelemetry()
	defer resume()

	if err := m.worker.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait for idle worker: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	frame := protocol.OK("CONNECTED").Encode()
	if err := conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout)); err != nil {
		m.logger.Warn("set write deadline", "error", err)
	}
	if _, err := io.WriteString(conn, frame); err != nil {
		return fmt.Errorf("write %q: %w", frame, err)
	}

	m.mu.Lock()
	if m.owner == conn {
		m.conn = conn
	}
	m.mu.Unlock()

	m.opts.Display.AppendLog("Message sent : " + frame)
	return nil
}

func (m *Manager) reject(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(rejectWriteTimeout))
	if _, err := io.WriteString(conn, protocol.Busy); err != nil {
		m.logger.Warn("write busy rejection", "remote", conn.RemoteAddr().String(), "error", err)
	}
	m.logger.Info("connection rejected", "remote", conn.RemoteAddr().String())
	m.opts.Display.AppendLog("New connection rejected for a client is already connected")
}

// detach tears down the relay and issues the safety disconnect to the worker.
func (m *Manager) detach(ctx context.Context, conn net.Conn) {
	m.relay.Remove()

	m.mu.Lock()
	if m.owner == conn {
		m.owner = nil
		m.conn = nil
		if next, err := fsm.Transition(m.state, fsm.EventClose); err == nil {
			m.state = next
		}
	}
	m.mu.Unlock()

	_ = conn.Close()
	m.logger.Info("client disconnected", "remote", conn.RemoteAddr().String())
	m.opts.Display.AppendLog("Client disconnected.")
	m.opts.Cues.ClientDisconnected(context.WithoutCancel(ctx))

	if ctx.Err() != nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, detachTimeout)
	defer cancel()
	if err := m.worker.SubmitWhenIdle(waitCtx, disconnectCommand); err != nil {
		m.logger.Error("queue safety disconnect", "error", err)
	}
}

var disconnectCommand = protocol.Command{Verb: "disconnect"}

func (m *Manager) processChunk(chunk string) {
	frames, err := protocol.Split(chunk)
	if err != nil {
		m.logger.Warn("malformed chunk dropped", "error", err)
		m.opts.Display.AppendLog("Warning : incorrectly formatted message received : " + strings.TrimSpace(chunk))
		return
	}
	for _, frame := range frames {
		m.processMsg(frame)
	}
}

// processMsg hands one frame to the worker, or answers MOVING if it is busy.
func (m *Manager) processMsg(frame string) {
	if strings.TrimSpace(frame) == "" {
		return
	}
	m.opts.Display.AppendLog("Received: " + protocol.FrameStart + strings.TrimSpace(frame))

	cmd, err := protocol.ParseCommand(frame)
	if err != nil {
		m.logger.Warn("unparseable frame", "frame", frame, "error", err)
		return
	}

	if err := m.worker.Submit(cmd); err != nil {
		if errors.Is(err, worker.ErrBusy) {
			m.logger.Info("command rejected while busy", "command", cmd.String())
			_ = m.write(protocol.Warning("MOVING"), true)
			return
		}
		m.logger.Error("submit command", "command", cmd.String(), "error", err)
	}
}

// SendClient writes resp once no command is pending. Telemetry is held back
// for the duration of the call.
func (m *Manager) SendClient(ctx context.Context, resp protocol.Response) error {
	resume := m.worker.PauseTelemetry()
	defer resume()

	if err := m.worker.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait for idle worker: %w", err)
	}
	return m.write(resp, true)
}

// Send writes an unsolicited response from the worker.
func (m *Manager) Send(resp protocol.Response) {
	_ = m.write(resp, true)
}

// Completed translates a finished command into its client responses.
func (m *Manager) Completed(cmd protocol.Command, feedback string) {
	responses := Translate(cmd, feedback)
	if last := responses[len(responses)-1]; last == protocol.OK(statusOther) {
		m.logger.Info("untranslated feedback", "command", cmd.String(), "feedback", feedback)
	}
	for _, resp := range responses {
		if err := m.write(resp, true); err != nil {
			return
		}
	}
}

func (m *Manager) relayPrint(resp protocol.Response) {
	_ = m.write(resp, false)
}

// write sends one frame under the write lock. announce echoes it to the display.
func (m *Manager) write(resp protocol.Response, announce bool) error {
	frame := resp.Encode()

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		m.opts.Display.AppendLog("No connected client to send msg : " + frame)
		return ErrNoClient
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout)); err != nil {
		m.logger.Warn("set write deadline", "error", err)
	}
	if _, err := io.WriteString(conn, frame); err != nil {
		m.logger.Warn("client write failed", "frame", frame, "error", err)
		return fmt.Errorf("write %q: %w", frame, err)
	}
	if announce {
		m.opts.Display.AppendLog("Message sent : " + frame)
	}
	return nil
}
