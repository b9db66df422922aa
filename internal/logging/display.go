package logging

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const displayTimeLayout = "2006-01-02 15:04:05"

// Display is the operator-facing event log. Each line is stamped with local
// time and mirrored to the runtime logger.
type Display struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewDisplay writes display lines to out. A nil out only mirrors to logger.
func NewDisplay(out io.Writer, logger *slog.Logger) *Display {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Display{out: out, logger: logger, now: time.Now}
}

// AppendLog writes one stamped line.
func (d *Display) AppendLog(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stamp := d.now().Format(displayTimeLayout)
	if _, err := fmt.Fprintf(d.out, "%s: %s\n", stamp, text); err != nil {
		d.logger.Warn("display write failed", "error", err)
	}
	d.logger.Info("display", "text", text)
}
