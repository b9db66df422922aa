package relay

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vega-srt/vegad/internal/protocol"
)

func TestPrintWithoutSinkOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	r := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	r.Printf("Handling %s at the moment.", "connect")
	require.False(t, r.Active())
	require.Contains(t, buf.String(), `"text":"Handling connect at the moment."`)
}

func TestInstalledSinkReceivesPrintResponses(t *testing.T) {
	var buf bytes.Buffer
	r := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	var got []protocol.Response
	r.Install(func(resp protocol.Response) { got = append(got, resp) })
	require.True(t, r.Active())

	r.Print("moving to az=10\n")
	r.Print("\n")
	r.Print("a|b&c")

	require.Equal(t, []protocol.Response{
		protocol.Print("moving to az=10"),
		protocol.Print("a/b+c"),
	}, got)
	require.Contains(t, buf.String(), "moving to az=10")
}

func TestRemoveStopsForwarding(t *testing.T) {
	r := New(nil)

	calls := 0
	r.Install(func(protocol.Response) { calls++ })
	r.Print("one")
	r.Remove()
	r.Print("two")

	require.Equal(t, 1, calls)
	require.False(t, r.Active())
}

func TestDiscardNarrator(t *testing.T) {
	require.NotPanics(t, func() { Discard.Printf("ignored %d", 1) })
}
