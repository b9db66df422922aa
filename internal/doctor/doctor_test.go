package doctor

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vega-srt/vegad/internal/config"
	"github.com/vega-srt/vegad/internal/health"
	"github.com/vega-srt/vegad/internal/protocol"
	"github.com/vega-srt/vegad/internal/server"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckConfigMentionsDefaultsAndWarnings(t *testing.T) {
	check := checkConfig(config.Loaded{
		Path:     "/etc/vegad.jsonc",
		Warnings: []config.Warning{{Message: "x"}},
	})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "using defaults")
	require.Contains(t, check.Message, "1 warning(s)")
}

func TestCheckSite(t *testing.T) {
	require.True(t, checkSite(config.Default().Site).Pass)

	check := checkSite(config.SiteConfig{Latitude: 120})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "latitude")
}

func TestCheckMountDevice(t *testing.T) {
	sim := config.Default().Mount
	sim.Driver = config.DriverSimulator
	require.True(t, checkMountDevice(sim).Pass)

	missing := config.Default().Mount
	missing.Port = filepath.Join(t.TempDir(), "ttyUSB9")
	check := checkMountDevice(missing)
	require.False(t, check.Pass)

	regular := config.Default().Mount
	regular.Port = filepath.Join(t.TempDir(), "not-a-tty")
	require.NoError(t, os.WriteFile(regular.Port, nil, 0o600))
	check = checkMountDevice(regular)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "not a character device")

	if _, err := os.Stat("/dev/null"); err == nil {
		devnull := config.Default().Mount
		devnull.Port = "/dev/null"
		require.True(t, checkMountDevice(devnull).Pass)
	}
}

func TestCheckServerNotRunning(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	check := checkServer(context.Background(), addr, time.Second)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "nothing listening")
}

func TestRunAgainstLiveServerAndHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	listener, err := server.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	handler := server.ConnHandlerFunc(func(_ context.Context, conn net.Conn) {
		defer conn.Close()
		_, _ = io.WriteString(conn, protocol.OK("CONNECTED").Encode())
		_, _ = io.Copy(io.Discard, conn)
	})
	go func() { _ = server.Serve(ctx, listener, handler, server.Options{}) }()

	healthListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hs := health.NewServer(nil, func() bool { return false }, 10*time.Millisecond)
	go func() { _ = hs.Serve(ctx, healthListener) }()

	loaded := config.Loaded{Path: "/tmp/vegad.jsonc", Exists: true, Config: config.Default()}
	loaded.Config.Mount.Driver = config.DriverSimulator
	loaded.Config.Listen = listener.Addr().String()
	loaded.Config.Health.Listen = healthListener.Addr().String()

	report := Run(ctx, loaded, Options{Timeout: 2 * time.Second})
	require.True(t, report.OK(), report.String())

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "site", "mount.device", "server", "health.vegad", "mount.link"}, names)
	require.Contains(t, report.String(), "idle (NOT_SERVING)")
}

func TestRunSkipsHealthWhenDisabled(t *testing.T) {
	loaded := config.Loaded{Path: "/tmp/vegad.jsonc", Config: config.Default()}
	loaded.Config.Health.Enable = false
	loaded.Config.Mount.Driver = config.DriverSimulator

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	loaded.Config.Listen = listener.Addr().String()
	require.NoError(t, listener.Close())

	report := Run(context.Background(), loaded, Options{Timeout: 500 * time.Millisecond})
	require.False(t, report.OK())
	require.Len(t, report.Checks, 4)
}
