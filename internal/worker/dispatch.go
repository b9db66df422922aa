package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/vega-srt/vegad/internal/astro"
	"github.com/vega-srt/vegad/internal/mount"
	"github.com/vega-srt/vegad/internal/protocol"
)

// Feedback strings produced by the dispatch table.
const (
	FeedbackFinishedPointing    = "finishedPointing"
	FeedbackConnected           = "APMConnected"
	FeedbackDisconnected        = "APMDisconnected"
	FeedbackMeasurementReceived = "measurementReceived"
	FeedbackAlreadyMeasuring    = "Already measuring!"
	FeedbackPointingAborted     = "Invalid coordinates values. Latitudes should be within [-90°, 90°]. Pointing aborted."

	// PointingAbortedMarker identifies aborted-pointing feedback.
	PointingAbortedMarker = "Pointing aborted"
	// MeasurementCompleted is pushed once an observation finishes.
	MeasurementCompleted = "measurement_completed"
	// HardwareFailureText accompanies telemetry carrying sentinel coordinates.
	HardwareFailureText = "Error while trying to get current coordinates. Hardware may be damaged. Please report this event to the person in charge ASAP"
)

type handler func(w *Worker, ctx context.Context, args []string) (string, error)

type verb struct {
	args int
	run  handler
}

// MeasureArgs is the argument count of the measure verb.
const MeasureArgs = 13

var verbs = map[string]verb{
	"pointRA":      {args: 2, run: (*Worker).pointRA},
	"pointGal":     {args: 2, run: (*Worker).pointGal},
	"pointAzAlt":   {args: 2, run: (*Worker).pointAzAlt},
	"trackRA":      {args: 2, run: (*Worker).trackRA},
	"trackGal":     {args: 2, run: (*Worker).trackGal},
	"connect":      {args: 0, run: (*Worker).connect},
	"disconnect":   {args: 0, run: (*Worker).disconnect},
	"goHome":       {args: 0, run: delegate(mount.Mount.GoHome)},
	"untangle":     {args: 0, run: delegate(mount.Mount.Untangle)},
	"standby":      {args: 0, run: delegate(mount.Mount.Standby)},
	"stopTracking": {args: 0, run: (*Worker).stopTracking},
	"measure":      {args: MeasureArgs, run: (*Worker).measure},
}

// Verbs lists every verb the worker understands with its argument count.
func Verbs() map[string]int {
	out := make(map[string]int, len(verbs))
	for name, v := range verbs {
		out[name] = v.args
	}
	return out
}

// dispatch runs one command. A non-nil error means the command was malformed;
// mount failures are reported as feedback text instead.
func (w *Worker) dispatch(ctx context.Context, cmd protocol.Command) (string, error) {
	v, ok := verbs[cmd.Verb]
	if !ok {
		return "Unknown command " + cmd.Verb, nil
	}
	if len(cmd.Args) != v.args {
		return "", fmt.Errorf("%w: %s expects %d arguments, got %d", ErrInvalidShape, cmd.Verb, v.args, len(cmd.Args))
	}
	return v.run(w, ctx, cmd.Args)
}

func (w *Worker) pointRA(ctx context.Context, args []string) (string, error) {
	ra, dec, err := floatPair(args)
	if err != nil {
		return "", err
	}
	az, alt, err := w.conv.RaDecToAzAlt(ra, dec)
	if err != nil {
		return FeedbackPointingAborted, nil
	}
	return w.point(ctx, az, alt), nil
}

func (w *Worker) pointGal(ctx context.Context, args []string) (string, error) {
	l, b, err := floatPair(args)
	if err != nil {
		return "", err
	}
	az, alt, err := w.conv.GalToAzAlt(l, b)
	if err != nil {
		return FeedbackPointingAborted, nil
	}
	return w.point(ctx, az, alt), nil
}

func (w *Worker) pointAzAlt(ctx context.Context, args []string) (string, error) {
	az, alt, err := floatPair(args)
	if err != nil {
		return "", err
	}
	if err := astro.CheckHorizontal(az, alt); err != nil {
		return FeedbackPointingAborted, nil
	}
	return w.point(ctx, az, alt), nil
}

func (w *Worker) point(ctx context.Context, az, alt float64) string {
	w.setTracking(false)
	if _, err := w.mount.PointAzAlt(ctx, az, alt); err != nil {
		return w.failure(err)
	}
	return FeedbackFinishedPointing
}

func (w *Worker) trackRA(ctx context.Context, args []string) (string, error) {
	ra, dec, err := floatPair(args)
	if err != nil {
		return "", err
	}
	if _, _, err := w.conv.RaDecToAzAlt(ra, dec); err != nil {
		return FeedbackPointingAborted, nil
	}
	return w.track(ctx, func(ctx context.Context) (string, error) {
		return w.mount.TrackRaDec(ctx, ra, dec)
	}), nil
}

func (w *Worker) trackGal(ctx context.Context, args []string) (string, error) {
	l, b, err := floatPair(args)
	if err != nil {
		return "", err
	}
	if _, _, err := w.conv.GalToAzAlt(l, b); err != nil {
		return FeedbackPointingAborted, nil
	}
	return w.track(ctx, func(ctx context.Context) (string, error) {
		return w.mount.TrackGal(ctx, l, b)
	}), nil
}

func (w *Worker) track(ctx context.Context, start func(context.Context) (string, error)) string {
	state, err := start(ctx)
	if errors.Is(err, astro.ErrInvalidCoordinates) {
		return FeedbackPointingAborted
	}
	if err != nil {
		w.setTracking(false)
		return w.failure(err)
	}
	w.setTracking(true)
	return state
}

func (w *Worker) connect(ctx context.Context, _ []string) (string, error) {
	state, err := w.mount.Connect(ctx, false)
	if err != nil {
		return w.failure(err), nil
	}

	w.mu.Lock()
	w.status.MountConnected = true
	w.mu.Unlock()

	switch state {
	case mount.StateIdle, mount.StateUntangled:
		return FeedbackConnected, nil
	default:
		return state, nil
	}
}

func (w *Worker) disconnect(ctx context.Context, _ []string) (string, error) {
	if _, err := w.mount.Disconnect(ctx); err != nil {
		w.logger.Warn("mount disconnect failed", "error", err)
		w.narrator.Printf("Disconnect reported: %v", err)
	}

	w.mu.Lock()
	w.lastMaintenance = w.opts.Now()
	w.status.MountConnected = false
	w.status.Tracking = false
	w.mu.Unlock()

	return FeedbackDisconnected, nil
}

func (w *Worker) stopTracking(ctx context.Context, _ []string) (string, error) {
	state, err := w.mount.StopTracking(ctx)
	w.setTracking(false)
	if err != nil {
		return w.failure(err), nil
	}
	return state, nil
}

// delegate adapts a no-argument mount operation. Motion stops any tracking.
func delegate(op func(mount.Mount, context.Context) (string, error)) handler {
	return func(w *Worker, ctx context.Context, _ []string) (string, error) {
		state, err := op(w.mount, ctx)
		w.setTracking(false)
		if err != nil {
			return w.failure(err), nil
		}
		return state, nil
	}
}

func (w *Worker) measure(ctx context.Context, args []string) (string, error) {
	params, err := parseObserveParams(args)
	if err != nil {
		return "", err
	}
	if w.mount.Observing() {
		w.currentSink().Send(protocol.Error(FeedbackAlreadyMeasuring))
		return FeedbackAlreadyMeasuring, nil
	}
	if err := w.mount.Observe(ctx, params); err != nil {
		return w.failure(err), nil
	}

	w.mu.Lock()
	w.status.Measuring = true
	w.mu.Unlock()
	return FeedbackMeasurementReceived, nil
}

func (w *Worker) setTracking(on bool) {
	w.mu.Lock()
	w.status.Tracking = on
	w.mu.Unlock()
}

// failure turns a mount error into feedback text safe to put on the wire.
func (w *Worker) failure(err error) string {
	w.logger.Error("mount operation failed", "error", err)
	return protocol.Sanitize(err.Error())
}

func floatPair(args []string) (float64, float64, error) {
	a, err := parseFloat(args[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := parseFloat(args[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidShape, raw)
	}
	return v, nil
}

func parseFlag(raw string) (bool, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || (v != 0 && v != 1) {
		return false, fmt.Errorf("%w: %q is not 0 or 1", ErrInvalidShape, raw)
	}
	return v == 1, nil
}

// parseObserveParams reads: repo prefix rf_gain if_gain bb_gain center_freq
// bandwidth channels sample_time duration obs_mode raw_mode student_flag.
func parseObserveParams(args []string) (mount.ObserveParams, error) {
	p := mount.ObserveParams{Repo: args[0], Prefix: args[1]}

	floats := []*float64{&p.RFGain, &p.IFGain, &p.BBGain, &p.CenterFreq, &p.Bandwidth}
	for i, dst := range floats {
		v, err := parseFloat(args[2+i])
		if err != nil {
			return mount.ObserveParams{}, err
		}
		*dst = v
	}

	channels, err := strconv.Atoi(args[7])
	if err != nil {
		return mount.ObserveParams{}, fmt.Errorf("%w: channels %q is not an integer", ErrInvalidShape, args[7])
	}
	p.Channels = channels

	if p.SampleTime, err = parseFloat(args[8]); err != nil {
		return mount.ObserveParams{}, err
	}
	if p.Duration, err = parseFloat(args[9]); err != nil {
		return mount.ObserveParams{}, err
	}

	flags := []*bool{&p.ObsMode, &p.RawMode, &p.StudentFlag}
	for i, dst := range flags {
		v, err := parseFlag(args[10+i])
		if err != nil {
			return mount.ObserveParams{}, err
		}
		*dst = v
	}
	return p, nil
}
