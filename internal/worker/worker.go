// Package worker owns the mount and runs the cooperative scheduling loop that
// interleaves command execution, telemetry pushes and idle maintenance.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vega-srt/vegad/internal/astro"
	"github.com/vega-srt/vegad/internal/mount"
	"github.com/vega-srt/vegad/internal/protocol"
	"github.com/vega-srt/vegad/internal/relay"
)

const (
	DefaultTelemetryInterval   = 3 * time.Second
	DefaultMaintenanceInterval = time.Hour
	DefaultPollInterval        = 20 * time.Millisecond
)

var (
	// ErrBusy is returned by Submit while a command occupies the pending slot.
	ErrBusy = errors.New("a command is already pending")
	// ErrInvalidShape marks a known verb with the wrong arguments.
	ErrInvalidShape = errors.New("invalid command shape")
)

// Sink is the worker's outbound side, implemented by the session manager.
type Sink interface {
	// Attached reports whether a client is currently connected.
	Attached() bool
	// Send writes one unsolicited response (telemetry, completion, rejections).
	Send(protocol.Response)
	// Completed hands over a finished command and its feedback for translation.
	Completed(cmd protocol.Command, feedback string)
}

// Hooks observes the unattended maintenance cycle.
type Hooks interface {
	MaintenanceStarted()
	MaintenanceFinished(err error)
}

type noopSink struct{}

func (noopSink) Attached() bool                     { return false }
func (noopSink) Send(protocol.Response)             {}
func (noopSink) Completed(protocol.Command, string) {}

type noopHooks struct{}

func (noopHooks) MaintenanceStarted()       {}
func (noopHooks) MaintenanceFinished(error) {}

// Status is a snapshot of the shared session flags.
type Status struct {
	Pending        bool
	Tracking       bool
	Measuring      bool
	MountConnected bool
}

// Options tunes the scheduling loop. Zero values fall back to defaults.
type Options struct {
	TelemetryInterval   time.Duration
	MaintenanceInterval time.Duration
	PollInterval        time.Duration
	Now                 func() time.Time
	Hooks               Hooks
}

func (o Options) withDefaults() Options {
	if o.TelemetryInterval <= 0 {
		o.TelemetryInterval = DefaultTelemetryInterval
	}
	if o.MaintenanceInterval <= 0 {
		o.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Hooks == nil {
		o.Hooks = noopHooks{}
	}
	return o
}

// Worker executes at most one command at a time against the mount.
type Worker struct {
	logger   *slog.Logger
	mount    mount.Mount
	conv     astro.Converter
	narrator relay.Narrator
	opts     Options

	mu              sync.Mutex
	idle            *sync.Cond
	pending         *protocol.Command
	status          Status
	sink            Sink
	telemetryPaused int
	lastTelemetry   time.Time
	lastMaintenance time.Time

	wake chan struct{}
}

// New builds a worker. Both timers start at construction time.
func New(logger *slog.Logger, m mount.Mount, conv astro.Converter, narrator relay.Narrator, opts Options) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if narrator == nil {
		narrator = relay.Discard
	}
	opts = opts.withDefaults()
	now := opts.Now()

	w := &Worker{
		logger:          logger,
		mount:           m,
		conv:            conv,
		narrator:        narrator,
		opts:            opts,
		sink:            noopSink{},
		lastTelemetry:   now,
		lastMaintenance: now,
		wake:            make(chan struct{}, 1),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// SetSink installs the outbound side. A nil sink discards output.
func (w *Worker) SetSink(sink Sink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if sink == nil {
		sink = noopSink{}
	}
	w.sink = sink
}

// Submit places cmd in the pending slot, or returns ErrBusy if it is occupied.
func (w *Worker) Submit(cmd protocol.Command) error {
	w.mu.Lock()
	if w.pending != nil {
		w.mu.Unlock()
		return ErrBusy
	}
	w.pending = &cmd
	w.status.Pending = true
	w.mu.Unlock()

	w.notify()
	return nil
}

// SubmitWhenIdle waits for the pending slot to empty, then submits cmd.
func (w *Worker) SubmitWhenIdle(ctx context.Context, cmd protocol.Command) error {
	w.mu.Lock()
	if err := w.waitIdleLocked(ctx); err != nil {
		w.mu.Unlock()
		return err
	}
	w.pending = &cmd
	w.status.Pending = true
	w.mu.Unlock()

	w.notify()
	return nil
}

// Pending reports whether the slot is occupied.
func (w *Worker) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

// WaitIdle blocks until the pending slot is empty or ctx is done.
func (w *Worker) WaitIdle(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waitIdleLocked(ctx)
}

func (w *Worker) waitIdleLocked(ctx context.Context) error {
	if w.pending == nil {
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.idle.Broadcast()
		w.mu.Unlock()
	})
	defer stop()

	for w.pending != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.idle.Wait()
	}
	return nil
}

// PauseTelemetry suspends telemetry pushes until the returned func is called.
func (w *Worker) PauseTelemetry() (resume func()) {
	w.mu.Lock()
	w.telemetryPaused++
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			w.telemetryPaused--
			w.mu.Unlock()
		})
	}
}

// Status returns a snapshot of the shared flags.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run drives the scheduling loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started",
		"telemetry_interval", w.opts.TelemetryInterval.String(),
		"maintenance_interval", w.opts.MaintenanceInterval.String(),
	)
	for {
		w.step(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// step is one pass of the loop: telemetry, measurement, command, maintenance.
func (w *Worker) step(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.pushTelemetry()
	w.checkMeasurement()
	w.executePending(ctx)
	w.runMaintenance(ctx)
}

func (w *Worker) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) currentSink() Sink {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sink
}

func (w *Worker) pushTelemetry() {
	w.mu.Lock()
	now := w.opts.Now()
	if now.Sub(w.lastTelemetry) < w.opts.TelemetryInterval || w.telemetryPaused > 0 {
		w.mu.Unlock()
		return
	}
	w.lastTelemetry = now
	sink, connected := w.sink, w.status.MountConnected
	w.mu.Unlock()

	if !connected || !sink.Attached() {
		return
	}

	coords := w.mount.Coords()
	sink.Send(protocol.OK(formatCoords(coords)))
	if coords.Failed() {
		sink.Send(protocol.Error(HardwareFailureText))
	}
}

func (w *Worker) checkMeasurement() {
	w.mu.Lock()
	measuring := w.status.Measuring
	w.mu.Unlock()
	if !measuring || w.mount.Observing() {
		return
	}

	w.mu.Lock()
	w.status.Measuring = false
	w.mu.Unlock()

	w.logger.Info("measurement completed")
	w.currentSink().Send(protocol.OK(MeasurementCompleted))
}

func (w *Worker) executePending(ctx context.Context) {
	w.mu.Lock()
	pending := w.pending
	w.mu.Unlock()
	if pending == nil {
		return
	}
	cmd := *pending

	w.narrator.Printf("Handling %s at the moment.", cmd)
	feedback, err := w.dispatch(ctx, cmd)

	w.mu.Lock()
	w.pending = nil
	w.status.Pending = false
	w.idle.Broadcast()
	sink := w.sink
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("command rejected", "command", cmd.String(), "error", err)
		sink.Send(protocol.Error(fmt.Sprintf("invalid command passed to server: %v", err)))
		return
	}

	w.logger.Info("command handled", "command", cmd.String(), "feedback", feedback)
	w.narrator.Printf("SRT Thread handled: %s with feedback: %s", cmd, feedback)
	sink.Completed(cmd, feedback)
}

func (w *Worker) runMaintenance(ctx context.Context) {
	w.mu.Lock()
	now := w.opts.Now()
	due := !w.status.MountConnected && now.Sub(w.lastMaintenance) >= w.opts.MaintenanceInterval
	if due {
		w.lastMaintenance = now
	}
	w.mu.Unlock()
	if !due {
		return
	}

	w.logger.Info("maintenance cycle started")
	w.opts.Hooks.MaintenanceStarted()

	_, err := w.mount.Connect(ctx, true)
	if err == nil {
		_, err = w.mount.Disconnect(ctx)
	}
	if err != nil {
		w.logger.Error("maintenance cycle failed", "error", err)
	} else {
		w.logger.Info("maintenance cycle finished")
	}
	w.opts.Hooks.MaintenanceFinished(err)
}

func formatCoords(c mount.Coords) string {
	return fmt.Sprintf("COORDS %.4f %.4f %.4f %.4f %.4f %.4f", c.Az, c.Alt, c.RA, c.Dec, c.Long, c.Lat)
}
