package session

import (
	"strings"

	"github.com/vega-srt/vegad/internal/protocol"
	"github.com/vega-srt/vegad/internal/worker"
)

const (
	statusConnected           = "connected"
	statusDisconnected        = "disconnected"
	statusTracking            = "tracking"
	statusMeasurementReceived = "measurementReceived"
	statusIdle                = "IDLE"
	statusOther               = "other"
)

// Translate maps a finished command and its feedback to the client responses:
// always PRINT|feedback first, then exactly one terminal status.
func Translate(cmd protocol.Command, feedback string) []protocol.Response {
	feedback = protocol.Sanitize(feedback)
	out := []protocol.Response{protocol.Print(feedback)}

	switch {
	case cmd.Verb == "connect":
		return append(out, protocol.OK(statusConnected))
	case cmd.Verb == "disconnect":
		return append(out, protocol.OK(statusDisconnected))
	// Checked before the track verbs so an aborted track reports IDLE, not tracking.
	case strings.Contains(feedback, worker.PointingAbortedMarker):
		return append(out, protocol.Warning(feedback), protocol.OK(statusIdle))
	case cmd.Verb == "trackRA" || cmd.Verb == "trackGal":
		return append(out, protocol.OK(statusTracking))
	case feedback == worker.FeedbackMeasurementReceived:
		return append(out, protocol.OK(statusMeasurementReceived))
	case feedback == worker.FeedbackFinishedPointing:
		return append(out, protocol.OK(statusIdle))
	case cmd.Verb == "stopTracking" && feedback == "":
		return append(out, protocol.OK(statusIdle))
	default:
		return append(out, protocol.OK(statusOther))
	}
}
