package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vega-srt/vegad/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []protocol.Command
	sendFn func(protocol.Command) error

	responses chan protocol.Response
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{responses: make(chan protocol.Response, 16)}
}

func (f *fakeConn) Send(cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(cmd)
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeConn) Next(ctx context.Context) (protocol.Response, error) {
	select {
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	case resp, ok := <-f.responses:
		if !ok {
			return protocol.Response{}, io.EOF
		}
		return resp, nil
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBuildCommand(t *testing.T) {
	cmd, err := BuildCommand("pointAzAlt", []string{"180", "45"})
	require.NoError(t, err)
	require.Equal(t, "&pointAzAlt 180 45", cmd.Encode())

	cmd, err = BuildCommand("goHome", nil)
	require.NoError(t, err)
	require.Equal(t, "&goHome", cmd.Encode())

	_, err = BuildCommand("slew", nil)
	require.ErrorContains(t, err, "unknown command")

	_, err = BuildCommand("trackRA", []string{"10"})
	require.ErrorContains(t, err, "takes 2 argument(s), got 1")

	_, err = BuildCommand("pointRA", []string{"10&goHome", "5"})
	require.ErrorIs(t, err, protocol.ErrReservedCharacter)
}

func TestVerbNamesSortedAndDocumented(t *testing.T) {
	names := VerbNames()
	require.Len(t, names, 12)
	require.IsNonDecreasing(t, names)
	require.Contains(t, names, "measure")

	require.Equal(t, "goHome", usage("goHome"))
	require.Equal(t, "pointGal <l> <b>", usage("pointGal"))
}

func TestFormatResponse(t *testing.T) {
	require.Equal(t, "[OK] IDLE", FormatResponse(protocol.OK("IDLE")))
	require.Equal(t, "[WARNING] MOVING", FormatResponse(protocol.Warning("MOVING")))
	require.Equal(t, "  Handling goHome at the moment.", FormatResponse(protocol.Print("Handling goHome at the moment.")))
}

func TestSubmitSendsValidatedCommands(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, io.Discard, nil)

	require.NoError(t, c.Submit("connect", nil))
	require.Error(t, c.Submit("connect", []string{"now"}))

	conn.sendFn = func(protocol.Command) error { return errors.New("broken pipe") }
	require.ErrorContains(t, c.Submit("standby", nil), "broken pipe")

	require.Len(t, conn.sent, 1)
	require.Equal(t, "connect", conn.sent[0].Verb)
}

func TestPumpPrintsUntilServerCloses(t *testing.T) {
	conn := newFakeConn()
	out := &syncBuffer{}
	c := New(conn, out, nil)

	conn.responses <- protocol.Print("APMConnected")
	conn.responses <- protocol.OK("connected")
	close(conn.responses)

	require.NoError(t, c.Pump(context.Background()))
	require.Equal(t, "  APMConnected\n[OK] connected\nconnection closed by server\n", out.String())
}

func TestPumpStopsOnContext(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, io.Discard, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Pump(ctx))
}
