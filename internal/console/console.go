// Package console is the interactive operator client for a running vegad.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/vega-srt/vegad/internal/protocol"
	"github.com/vega-srt/vegad/internal/worker"
)

// Conn is the protocol connection the console drives.
type Conn interface {
	Send(protocol.Command) error
	Next(context.Context) (protocol.Response, error)
	Close() error
}

// BuildCommand checks verb and argument count against the server's command table.
func BuildCommand(verb string, args []string) (protocol.Command, error) {
	want, ok := worker.Verbs()[verb]
	if !ok {
		return protocol.Command{}, fmt.Errorf("unknown command %q", verb)
	}
	if len(args) != want {
		return protocol.Command{}, fmt.Errorf("%s takes %d argument(s), got %d", verb, want, len(args))
	}
	return protocol.NewCommand(verb, args...)
}

// VerbNames lists the commands the server accepts, sorted.
func VerbNames() []string {
	verbs := worker.Verbs()
	names := make([]string, 0, len(verbs))
	for name := range verbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatResponse renders one server response for the terminal.
func FormatResponse(resp protocol.Response) string {
	switch resp.Status {
	case protocol.StatusPrint:
		return "  " + resp.Body
	default:
		return fmt.Sprintf("[%s] %s", resp.Status, resp.Body)
	}
}

// Console pairs a connection with the terminal output.
type Console struct {
	conn   Conn
	out    io.Writer
	logger *slog.Logger

	mu sync.Mutex
}

func New(conn Conn, out io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{conn: conn, out: out, logger: logger}
}

// Submit validates and sends one command.
func (c *Console) Submit(verb string, args []string) error {
	cmd, err := BuildCommand(verb, args)
	if err != nil {
		return err
	}
	if err := c.conn.Send(cmd); err != nil {
		return err
	}
	c.logger.Debug("console command sent", "command", cmd.String())
	return nil
}

// Pump prints responses until the connection closes or ctx ends.
func (c *Console) Pump(ctx context.Context) error {
	for {
		resp, err := c.conn.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.println("connection closed by server")
				return nil
			}
			return fmt.Errorf("read response: %w", err)
		}
		c.println(FormatResponse(resp))
	}
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, strings.TrimRight(line, "\n"))
}
