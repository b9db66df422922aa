package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vega-srt/vegad/internal/astro"
	"github.com/vega-srt/vegad/internal/mount"
	"github.com/vega-srt/vegad/internal/protocol"
)

type fakeMount struct {
	mu         sync.Mutex
	calls      []string
	connectErr error
	state      string
	observing  bool
	coords     mount.Coords
	observed   []mount.ObserveParams
	block      chan struct{}
}

func (f *fakeMount) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (f *fakeMount) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMount) PointAzAlt(context.Context, float64, float64) (string, error) {
	f.record("point")
	return mount.StateIdle, nil
}

func (f *fakeMount) TrackRaDec(context.Context, float64, float64) (string, error) {
	f.record("trackRaDec")
	return mount.StateTracking, nil
}

func (f *fakeMount) TrackGal(context.Context, float64, float64) (string, error) {
	f.record("trackGal")
	return mount.StateTracking, nil
}

func (f *fakeMount) StopTracking(context.Context) (string, error) {
	f.record("stopTracking")
	return "", nil
}

func (f *fakeMount) GoHome(context.Context) (string, error) {
	f.record("goHome")
	return mount.StateIdle, nil
}

func (f *fakeMount) Untangle(context.Context) (string, error) {
	f.record("untangle")
	return mount.StateUntangled, nil
}

func (f *fakeMount) Standby(context.Context) (string, error) {
	f.record("standby")
	return "", errors.New("controller answered ERR to \"STANDBY\" | retry")
}

func (f *fakeMount) Connect(_ context.Context, water bool) (string, error) {
	if water {
		f.record("connect-water")
	} else {
		f.record("connect")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return "", f.connectErr
	}
	if f.state != "" {
		return f.state, nil
	}
	return mount.StateIdle, nil
}

func (f *fakeMount) Disconnect(context.Context) (string, error) {
	f.record("disconnect")
	return mount.StateDisconnected, nil
}

func (f *fakeMount) Observe(_ context.Context, params mount.ObserveParams) error {
	f.record("observe")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, params)
	f.observing = true
	return nil
}

func (f *fakeMount) Observing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observing
}

func (f *fakeMount) setObserving(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observing = on
}

func (f *fakeMount) Coords() mount.Coords {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coords
}

type completion struct {
	cmd      protocol.Command
	feedback string
}

type fakeSink struct {
	mu        sync.Mutex
	attached  bool
	sent      []protocol.Response
	completed []completion
}

func (s *fakeSink) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

func (s *fakeSink) Send(resp protocol.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, resp)
}

func (s *fakeSink) Completed(cmd protocol.Command, feedback string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, completion{cmd: cmd, feedback: feedback})
}

func (s *fakeSink) Sent() []protocol.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Response(nil), s.sent...)
}

func (s *fakeSink) Completions() []completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]completion(nil), s.completed...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeHooks struct {
	mu       sync.Mutex
	started  int
	finished []error
}

func (h *fakeHooks) MaintenanceStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started++
}

func (h *fakeHooks) MaintenanceFinished(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, err)
}

type harness struct {
	worker *Worker
	mount  *fakeMount
	sink   *fakeSink
	clock  *fakeClock
	hooks  *fakeHooks
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)}
	m := &fakeMount{coords: mount.Coords{Az: 10, Alt: 20, RA: 30, Dec: 40, Long: 50, Lat: 60}}
	sink := &fakeSink{attached: true}
	hooks := &fakeHooks{}
	conv := astro.Converter{Site: astro.Site{Latitude: 46.52, Longitude: 6.57}, Now: clock.Now}

	w := New(nil, m, conv, nil, Options{Now: clock.Now, Hooks: hooks})
	w.SetSink(sink)
	return &harness{worker: w, mount: m, sink: sink, clock: clock, hooks: hooks}
}

func command(t *testing.T, verb string, args ...string) protocol.Command {
	t.Helper()
	cmd, err := protocol.NewCommand(verb, args...)
	require.NoError(t, err)
	return cmd
}

func (h *harness) run(t *testing.T, cmd protocol.Command) completion {
	t.Helper()
	require.NoError(t, h.worker.Submit(cmd))
	before := len(h.sink.Completions())
	h.worker.step(context.Background())
	got := h.sink.Completions()
	require.Len(t, got, before+1)
	require.False(t, h.worker.Pending())
	return got[len(got)-1]
}

func TestSubmitRejectsWhilePending(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.worker.Submit(command(t, "goHome")))
	require.True(t, h.worker.Pending())
	require.ErrorIs(t, h.worker.Submit(command(t, "connect")), ErrBusy)

	h.worker.step(context.Background())
	completions := h.sink.Completions()
	require.Len(t, completions, 1)
	require.Equal(t, "goHome", completions[0].cmd.Verb)
	require.Equal(t, []string{"goHome"}, h.mount.Calls())
}

func TestConnectNormalizesDriverState(t *testing.T) {
	h := newHarness(t)

	done := h.run(t, command(t, "connect"))
	require.Equal(t, FeedbackConnected, done.feedback)
	require.True(t, h.worker.Status().MountConnected)

	h.mount.state = mount.StateUntangled
	done = h.run(t, command(t, "connect"))
	require.Equal(t, FeedbackConnected, done.feedback)

	h.mount.state = mount.StateStandby
	done = h.run(t, command(t, "connect"))
	require.Equal(t, mount.StateStandby, done.feedback)
}

func TestConnectFailureLeavesMountDisconnected(t *testing.T) {
	h := newHarness(t)
	h.mount.connectErr = errors.New("port busy")

	done := h.run(t, command(t, "connect"))
	require.Equal(t, "port busy", done.feedback)
	require.False(t, h.worker.Status().MountConnected)
}

func TestDisconnectResetsMaintenanceTimer(t *testing.T) {
	h := newHarness(t)
	h.run(t, command(t, "connect"))

	h.clock.Advance(59 * time.Minute)
	done := h.run(t, command(t, "disconnect"))
	require.Equal(t, FeedbackDisconnected, done.feedback)
	require.False(t, h.worker.Status().MountConnected)

	h.clock.Advance(2 * time.Minute)
	h.worker.step(context.Background())
	require.Zero(t, h.hooks.started)
}

func TestPointingFeedback(t *testing.T) {
	h := newHarness(t)

	done := h.run(t, command(t, "pointAzAlt", "10", "20"))
	require.Equal(t, FeedbackFinishedPointing, done.feedback)

	done = h.run(t, command(t, "pointAzAlt", "10", "95"))
	require.Equal(t, FeedbackPointingAborted, done.feedback)

	done = h.run(t, command(t, "pointRA", "400", "10"))
	require.Equal(t, FeedbackPointingAborted, done.feedback)

	done = h.run(t, command(t, "pointGal", "120", "-95"))
	require.Equal(t, FeedbackPointingAborted, done.feedback)

	done = h.run(t, command(t, "pointGal", "120", "5"))
	require.Equal(t, FeedbackFinishedPointing, done.feedback)

	require.Equal(t, []string{"point", "point"}, h.mount.Calls())
}

func TestTrackingFlag(t *testing.T) {
	h := newHarness(t)

	done := h.run(t, command(t, "trackRA", "83.6", "22.0"))
	require.Equal(t, mount.StateTracking, done.feedback)
	require.True(t, h.worker.Status().Tracking)

	done = h.run(t, command(t, "stopTracking"))
	require.Empty(t, done.feedback)
	require.False(t, h.worker.Status().Tracking)

	done = h.run(t, command(t, "trackGal", "10", "91"))
	require.Equal(t, FeedbackPointingAborted, done.feedback)
	require.False(t, h.worker.Status().Tracking)
}

func TestDelegatedMountFailureBecomesSafeFeedback(t *testing.T) {
	h := newHarness(t)

	done := h.run(t, command(t, "standby"))
	require.False(t, protocol.ContainsReserved(done.feedback))
	require.Contains(t, done.feedback, "retry")
}

func TestUnknownVerbIsFeedback(t *testing.T) {
	h := newHarness(t)

	done := h.run(t, command(t, "selfDestruct"))
	require.Equal(t, "Unknown command selfDestruct", done.feedback)
}

func TestInvalidShapeBecomesErrorResponse(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.worker.Submit(command(t, "pointRA", "10")))
	h.worker.step(context.Background())
	require.Empty(t, h.sink.Completions())
	require.False(t, h.worker.Pending())

	sent := h.sink.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, protocol.StatusError, sent[0].Status)
	require.Contains(t, sent[0].Body, "pointRA expects 2 arguments")

	require.NoError(t, h.worker.Submit(command(t, "pointAzAlt", "ten", "20")))
	h.worker.step(context.Background())
	sent = h.sink.Sent()
	require.Len(t, sent, 2)
	require.Contains(t, sent[1].Body, "is not a number")
}

func measureArgs() []string {
	return []string{"repo", "hline", "10", "20", "30", "1420e6", "2.4e6", "1024", "1", "60", "1", "0", "1"}
}

func TestMeasureLifecycle(t *testing.T) {
	h := newHarness(t)

	done := h.run(t, command(t, "measure", measureArgs()...))
	require.Equal(t, FeedbackMeasurementReceived, done.feedback)
	require.True(t, h.worker.Status().Measuring)

	params := h.mount.observed[0]
	require.Equal(t, "repo", params.Repo)
	require.Equal(t, 1024, params.Channels)
	require.Equal(t, 60.0, params.Duration)
	require.True(t, params.ObsMode)
	require.False(t, params.RawMode)
	require.True(t, params.StudentFlag)

	done = h.run(t, command(t, "measure", measureArgs()...))
	require.Equal(t, FeedbackAlreadyMeasuring, done.feedback)
	require.Contains(t, h.sink.Sent(), protocol.Error(FeedbackAlreadyMeasuring))

	h.mount.setObserving(false)
	h.worker.step(context.Background())
	require.False(t, h.worker.Status().Measuring)
	require.Contains(t, h.sink.Sent(), protocol.OK(MeasurementCompleted))
}

func TestMeasureRejectsBadFlag(t *testing.T) {
	h := newHarness(t)
	args := measureArgs()
	args[12] = "2"

	require.NoError(t, h.worker.Submit(command(t, "measure", args...)))
	h.worker.step(context.Background())
	require.Empty(t, h.sink.Completions())
	require.Equal(t, protocol.StatusError, h.sink.Sent()[0].Status)
}

func TestTelemetryRequiresClientAndMount(t *testing.T) {
	h := newHarness(t)

	h.clock.Advance(DefaultTelemetryInterval)
	h.worker.step(context.Background())
	require.Empty(t, h.sink.Sent())

	h.run(t, command(t, "connect"))
	h.clock.Advance(DefaultTelemetryInterval)
	h.worker.step(context.Background())
	require.Equal(t, []protocol.Response{
		protocol.OK("COORDS 10.0000 20.0000 30.0000 40.0000 50.0000 60.0000"),
	}, h.sink.Sent())

	h.clock.Advance(DefaultTelemetryInterval - time.Millisecond)
	h.worker.step(context.Background())
	require.Len(t, h.sink.Sent(), 1)
}

func TestTelemetryFailureAddsError(t *testing.T) {
	h := newHarness(t)
	h.run(t, command(t, "connect"))
	h.mount.coords = mount.FailedCoords()

	h.clock.Advance(DefaultTelemetryInterval)
	h.worker.step(context.Background())

	sent := h.sink.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, protocol.StatusOK, sent[0].Status)
	require.Equal(t, protocol.Error(HardwareFailureText), sent[1])
}

func TestTelemetryPausedDoesNotResetTimer(t *testing.T) {
	h := newHarness(t)
	h.run(t, command(t, "connect"))

	resume := h.worker.PauseTelemetry()
	h.clock.Advance(DefaultTelemetryInterval)
	h.worker.step(context.Background())
	require.Empty(t, h.sink.Sent())

	resume()
	resume()
	h.worker.step(context.Background())
	require.Len(t, h.sink.Sent(), 1)
}

func TestMaintenanceRunsOncePerInterval(t *testing.T) {
	h := newHarness(t)

	h.clock.Advance(DefaultMaintenanceInterval - time.Second)
	h.worker.step(context.Background())
	require.Empty(t, h.mount.Calls())

	h.clock.Advance(time.Second)
	h.worker.step(context.Background())
	h.worker.step(context.Background())
	require.Equal(t, []string{"connect-water", "disconnect"}, h.mount.Calls())
	require.Equal(t, 1, h.hooks.started)
	require.Equal(t, []error{nil}, h.hooks.finished)
	require.Empty(t, h.sink.Sent())

	h.clock.Advance(DefaultMaintenanceInterval)
	h.worker.step(context.Background())
	require.Len(t, h.mount.Calls(), 4)
}

func TestMaintenanceSkippedWhileMountConnected(t *testing.T) {
	h := newHarness(t)
	h.run(t, command(t, "connect"))

	h.clock.Advance(2 * DefaultMaintenanceInterval)
	h.worker.step(context.Background())
	require.Equal(t, []string{"connect"}, h.mount.Calls())
}

func TestMaintenanceFailureIsReportedAndLoopContinues(t *testing.T) {
	h := newHarness(t)
	h.mount.connectErr = errors.New("no power")

	h.clock.Advance(DefaultMaintenanceInterval)
	h.worker.step(context.Background())
	require.Len(t, h.hooks.finished, 1)
	require.EqualError(t, h.hooks.finished[0], "no power")

	h.mount.connectErr = nil
	done := h.run(t, command(t, "goHome"))
	require.Equal(t, mount.StateIdle, done.feedback)
}

func TestWaitIdleBlocksUntilCommandCompletes(t *testing.T) {
	h := newHarness(t)
	h.mount.block = make(chan struct{})

	require.NoError(t, h.worker.Submit(command(t, "goHome")))
	go h.worker.step(context.Background())

	waited := make(chan error, 1)
	go func() { waited <- h.worker.WaitIdle(context.Background()) }()

	select {
	case <-waited:
		t.Fatal("WaitIdle returned while a command was pending")
	case <-time.After(30 * time.Millisecond):
	}

	close(h.mount.block)
	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitIdle did not return after completion")
	}
}

func TestWaitIdleHonoursContext(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.worker.Submit(command(t, "goHome")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.worker.WaitIdle(ctx), context.DeadlineExceeded)

	require.ErrorIs(t, h.worker.SubmitWhenIdle(ctx, command(t, "disconnect")), context.DeadlineExceeded)
}

func TestSubmitWhenIdleQueuesAfterCurrentCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.worker.Submit(command(t, "goHome")))

	queued := make(chan error, 1)
	go func() {
		queued <- h.worker.SubmitWhenIdle(context.Background(), command(t, "disconnect"))
	}()

	h.worker.step(context.Background())
	require.NoError(t, <-queued)
	h.worker.step(context.Background())
	require.Equal(t, []string{"goHome", "disconnect"}, h.mount.Calls())
}

func TestRunExecutesSubmittedCommands(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	require.NoError(t, h.worker.Submit(command(t, "connect")))
	require.Eventually(t, func() bool { return h.worker.Status().MountConnected }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestVerbsTable(t *testing.T) {
	table := Verbs()
	require.Equal(t, 2, table["pointRA"])
	require.Equal(t, 0, table["connect"])
	require.Equal(t, MeasureArgs, table["measure"])
	require.Len(t, table, 12)
}
