package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vega-srt/vegad/internal/astro"
	"github.com/vega-srt/vegad/internal/config"
	"github.com/vega-srt/vegad/internal/cue"
	"github.com/vega-srt/vegad/internal/health"
	"github.com/vega-srt/vegad/internal/logging"
	"github.com/vega-srt/vegad/internal/mount"
	"github.com/vega-srt/vegad/internal/relay"
	"github.com/vega-srt/vegad/internal/server"
	"github.com/vega-srt/vegad/internal/session"
	"github.com/vega-srt/vegad/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Daemon is the process-scoped server: one mount, one worker, one session
// manager. It is built once by serve and torn down by Shutdown.
type Daemon struct {
	cfg     config.Config
	logger  *slog.Logger
	display *logging.Display
	cues    *cue.Player

	relay    *relay.Relay
	mount    mount.Mount
	recorder *mount.Recorder
	worker   *worker.Worker
	sessions *session.Manager

	listener       net.Listener
	healthListener net.Listener
}

// NewDaemon assembles every component from cfg. Nothing is opened yet.
func NewDaemon(cfg config.Config, logger *slog.Logger, displayOut io.Writer) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		display: logging.NewDisplay(displayOut, logger),
		cues:    cue.NewPlayer(cfg.Cues.Enable, logger),
		relay:   relay.New(logger),
	}

	conv := astro.NewConverter(astro.Site{
		Latitude:  cfg.Site.Latitude,
		Longitude: cfg.Site.Longitude,
		Elevation: cfg.Site.Elevation,
	})
	d.recorder = mount.NewRecorder(cfg.Observe.Repo)
	d.mount = newMount(cfg.Mount, conv, d.recorder, d.relay)

	d.worker = worker.New(logger, d.mount, conv, d.relay, worker.Options{
		TelemetryInterval:   cfg.Schedule.TelemetryInterval(),
		MaintenanceInterval: cfg.Schedule.MaintenanceInterval(),
		PollInterval:        cfg.Schedule.PollInterval(),
		Hooks:               maintenanceHooks{display: d.display, cues: d.cues},
	})
	d.sessions = session.New(logger, d.worker, d.relay, session.Options{
		WriteTimeout:    cfg.Session.WriteTimeout(),
		ReadBufferBytes: cfg.Session.ReadBufferBytes,
		Display:         d.display,
		Cues:            d.cues,
	})
	d.worker.SetSink(d.sessions)
	return d
}

func newMount(cfg config.MountConfig, conv astro.Converter, recorder *mount.Recorder, narrator relay.Narrator) mount.Mount {
	if cfg.Driver == config.DriverSimulator {
		return mount.NewSimulator(mount.SimulatorConfig{
			SlewRate:      cfg.SlewRate,
			TrackInterval: cfg.TrackInterval(),
		}, conv, recorder, narrator)
	}
	return mount.NewSerial(mount.SerialConfig{
		Port:          cfg.Port,
		Baud:          cfg.Baud,
		ReadTimeout:   cfg.ReadTimeout(),
		MotionTimeout: cfg.MotionTimeout(),
		TrackInterval: cfg.TrackInterval(),
	}, conv, recorder, narrator)
}

// Listen binds the client port and, when enabled, the health port.
func (d *Daemon) Listen(ctx context.Context) error {
	listener, err := server.Listen(ctx, d.cfg.Listen)
	if err != nil {
		return err
	}
	d.listener = listener

	if d.cfg.Health.Enable {
		healthListener, err := server.Listen(ctx, d.cfg.Health.Listen)
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("health: %w", err)
		}
		d.healthListener = healthListener
	}
	return nil
}

// Addr is the bound client address. Listen must have succeeded.
func (d *Daemon) Addr() string {
	return d.listener.Addr().String()
}

// HealthAddr is the bound health address, or empty when disabled.
func (d *Daemon) HealthAddr() string {
	if d.healthListener == nil {
		return ""
	}
	return d.healthListener.Addr().String()
}

// Serve runs the worker loop, the accept loop, and the health service until
// ctx ends or one of them fails.
func (d *Daemon) Serve(ctx context.Context) error {
	if d.listener == nil {
		return errors.New("daemon is not listening")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.worker.Run(gctx) })
	g.Go(func() error {
		return server.Serve(gctx, d.listener, d.sessions, server.Options{
			UserTimeout: d.cfg.Session.UserTimeout(),
			Logger:      d.logger,
		})
	})
	if d.healthListener != nil {
		hs := health.NewServer(d.logger, d.mountConnected, time.Second)
		g.Go(func() error { return hs.Serve(gctx, d.healthListener) })
	}

	d.display.AppendLog("Launched server.")
	d.logger.Info("server launched", "listen", d.Addr(), "health", d.HealthAddr(), "driver", d.cfg.Mount.Driver)
	if ip, err := server.AdvertisedIPv4(); err == nil {
		d.display.AppendLog("Server address: " + ip)
	} else {
		d.logger.Warn("no advertised address", "error", err)
	}

	return g.Wait()
}

func (d *Daemon) mountConnected() bool {
	return d.worker.Status().MountConnected
}

// Shutdown releases the mount. The safety disconnect normally issued when a
// client leaves is skipped during shutdown, so it happens here.
func (d *Daemon) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	d.recorder.Stop()
	_, err := d.mount.Disconnect(ctx)
	if err != nil {
		d.logger.Error("disconnect mount on shutdown", "error", err)
	} else {
		d.logger.Info("mount released on shutdown")
	}
	d.display.AppendLog("Server stopped.")
	d.cues.Wait()
	return err
}

// maintenanceHooks surfaces the unattended water evacuation cycle.
type maintenanceHooks struct {
	display *logging.Display
	cues    *cue.Player
}

func (h maintenanceHooks) MaintenanceStarted() {
	h.display.AppendLog("Water evacuation process launched")
	h.cues.Play(context.Background(), cue.MaintenanceStart)
}

func (h maintenanceHooks) MaintenanceFinished(err error) {
	if err != nil {
		h.display.AppendLog("Water evacuation process failed: " + err.Error())
		h.cues.Play(context.Background(), cue.MaintenanceFailed)
		return
	}
	h.display.AppendLog("Water evacuation process over")
	h.cues.Play(context.Background(), cue.MaintenanceEnd)
}
