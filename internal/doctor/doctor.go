// Package doctor runs readiness diagnostics for config, the mount link, and a running server.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vega-srt/vegad/internal/astro"
	"github.com/vega-srt/vegad/internal/config"
	"github.com/vega-srt/vegad/internal/health"
	"github.com/vega-srt/vegad/internal/server"
)

const defaultTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Options selects the server to probe.
type Options struct {
	// Addr overrides the address derived from the config listen address.
	Addr    string
	Timeout time.Duration
}

// Run executes config, device, and runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, opts Options) Report {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	cfg := loaded.Config

	checks := []Check{checkConfig(loaded), checkSite(cfg.Site), checkMountDevice(cfg.Mount)}

	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		addr = server.LocalAddr(cfg.Listen)
	}
	checks = append(checks, checkServer(ctx, addr, opts.Timeout))

	if cfg.Health.Enable {
		healthAddr := server.LocalAddr(cfg.Health.Listen)
		checks = append(checks,
			checkHealth(ctx, healthAddr, health.ServiceDaemon, opts.Timeout),
			checkMountLink(ctx, healthAddr, opts.Timeout),
		)
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("no file at %q, using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		message += fmt.Sprintf(" (%d warning(s))", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

func checkSite(site config.SiteConfig) Check {
	s := astro.Site{Latitude: site.Latitude, Longitude: site.Longitude, Elevation: site.Elevation}
	if err := s.Validate(); err != nil {
		return Check{Name: "site", Pass: false, Message: err.Error()}
	}
	return Check{Name: "site", Pass: true, Message: fmt.Sprintf("lat %.4f lon %.4f", site.Latitude, site.Longitude)}
}

// checkMountDevice verifies the serial device node exists. The port is not
// opened so a running server keeps exclusive use of it.
func checkMountDevice(m config.MountConfig) Check {
	if m.Driver == config.DriverSimulator {
		return Check{Name: "mount.device", Pass: true, Message: "simulator driver, no device needed"}
	}
	info, err := os.Stat(m.Port)
	if err != nil {
		return Check{Name: "mount.device", Pass: false, Message: err.Error()}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Check{Name: "mount.device", Pass: false, Message: fmt.Sprintf("%s is not a character device", m.Port)}
	}
	return Check{Name: "mount.device", Pass: true, Message: fmt.Sprintf("%s present (%d baud)", m.Port, m.Baud)}
}

func checkServer(ctx context.Context, addr string, timeout time.Duration) Check {
	alive, err := server.Probe(ctx, addr, timeout)
	switch {
	case err != nil:
		return Check{Name: "server", Pass: false, Message: err.Error()}
	case !alive:
		return Check{Name: "server", Pass: false, Message: fmt.Sprintf("nothing listening on %s", addr)}
	default:
		return Check{Name: "server", Pass: true, Message: fmt.Sprintf("answering on %s", addr)}
	}
}

func checkHealth(ctx context.Context, addr, service string, timeout time.Duration) Check {
	name := "health." + service
	status, err := health.Check(ctx, addr, service, timeout)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return Check{Name: name, Pass: false, Message: status.String()}
	}
	return Check{Name: name, Pass: true, Message: "SERVING"}
}

// checkMountLink reports the link state. A disconnected mount is normal
// between sessions, so only an unreachable health endpoint fails.
func checkMountLink(ctx context.Context, addr string, timeout time.Duration) Check {
	status, err := health.Check(ctx, addr, health.ServiceMount, timeout)
	if err != nil {
		return Check{Name: "mount.link", Pass: false, Message: err.Error()}
	}
	if status == healthpb.HealthCheckResponse_SERVING {
		return Check{Name: "mount.link", Pass: true, Message: "connected"}
	}
	return Check{Name: "mount.link", Pass: true, Message: "idle (" + status.String() + ")"}
}
