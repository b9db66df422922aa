// Package relay duplicates progress text produced during command execution:
// once to the local log and, while a client is attached, once to the client
// as a PRINT message.
package relay

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vega-srt/vegad/internal/protocol"
)

// Narrator is handed to every code path that reports progress to the operator.
type Narrator interface {
	Printf(format string, args ...any)
}

// Sink receives relayed text as a ready-to-send response.
type Sink func(protocol.Response)

// Discard is a Narrator that drops everything.
var Discard Narrator = discard{}

type discard struct{}

func (discard) Printf(string, ...any) {}

// Relay fans narration out to the logger and the installed client sink.
type Relay struct {
	logger *slog.Logger

	mu   sync.RWMutex
	sink Sink
}

func New(logger *slog.Logger) *Relay {
	return &Relay{logger: logger}
}

// Install attaches the client sink. A previously installed sink is replaced.
func (r *Relay) Install(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Remove detaches the client sink; later text only reaches the local log.
func (r *Relay) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = nil
}

// Active reports whether a client sink is installed.
func (r *Relay) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sink != nil
}

func (r *Relay) Printf(format string, args ...any) {
	r.Print(fmt.Sprintf(format, args...))
}

// Print relays one line of text. Blank text is dropped.
func (r *Relay) Print(text string) {
	text = strings.TrimRight(text, "\r\n")
	if strings.TrimSpace(text) == "" {
		return
	}

	if r.logger != nil {
		r.logger.Info("narration", "text", text)
	}

	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink == nil {
		return
	}
	sink(protocol.Print(protocol.Sanitize(text)))
}
