// Package app wires command-line invocations to the vegad components.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vega-srt/vegad/internal/cli"
	"github.com/vega-srt/vegad/internal/config"
	"github.com/vega-srt/vegad/internal/console"
	"github.com/vega-srt/vegad/internal/doctor"
	"github.com/vega-srt/vegad/internal/logging"
	"github.com/vega-srt/vegad/internal/server"
	"github.com/vega-srt/vegad/internal/version"
)

const consoleDialTimeout = 3 * time.Second

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Ready, when set, receives the daemon once it is listening.
	Ready func(*Daemon)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(version.Name))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(version.Name))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if parsed.Simulator {
		cfgLoaded.Config.Mount.Driver = config.DriverSimulator
	}

	logger := r.Logger
	if logger == nil {
		logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
			return 1
		}
		defer func() { _ = logRuntime.Close() }()
		logger = logRuntime.Logger
		logger.Info("command start", "command", parsed.Command, "config", cfgLoaded.Path, "log", logRuntime.Path)
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandConsole:
		return r.commandConsole(ctx, r.targetAddr(parsed, cfgLoaded.Config), logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, doctor.Options{Addr: parsed.Addr})
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) targetAddr(parsed cli.Parsed, cfg config.Config) string {
	if addr := strings.TrimSpace(parsed.Addr); addr != "" {
		return addr
	}
	return server.LocalAddr(cfg.Listen)
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	daemon := NewDaemon(cfg, logger, r.Stdout)
	if err := daemon.Listen(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("listen failed", "error", err)
		return 1
	}
	if r.Ready != nil {
		r.Ready(daemon)
	}

	serveErr := daemon.Serve(ctx)
	shutdownErr := daemon.Shutdown(context.WithoutCancel(ctx))

	if serveErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", serveErr)
		logger.Error("server failed", "error", serveErr)
		return 1
	}
	if shutdownErr != nil {
		fmt.Fprintf(r.Stderr, "error: release mount: %v\n", shutdownErr)
		return 1
	}
	return 0
}

func (r Runner) commandConsole(ctx context.Context, addr string, logger *slog.Logger) int {
	client, err := server.Dial(ctx, addr, consoleDialTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: connect %s: %v\n", addr, err)
		return 1
	}

	c := console.New(client, r.Stdout, logger)
	banner := fmt.Sprintf("%s console connected to %s. Type help for commands, exit to quit.", version.Name, addr)
	if err := c.Run(ctx, banner); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
