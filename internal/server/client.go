package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vega-srt/vegad/internal/protocol"
)

// ErrBusy is returned by Dial when the server already has a client.
var ErrBusy = errors.New("server busy: another client is connected")

// Client is one protocol connection to a running server.
type Client struct {
	conn net.Conn

	mu      sync.Mutex
	pending []protocol.Response
	buf     []byte
}

// Dial connects to addr and consumes the handshake.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, buf: make([]byte, 4096)}
	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	first, err := c.Next(hsCtx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	if first != protocol.OK("CONNECTED") {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected handshake %q", first.Encode())
	}
	return c, nil
}

// Send writes one command frame.
func (c *Client) Send(cmd protocol.Command) error {
	if _, err := io.WriteString(c.conn, cmd.Encode()); err != nil {
		return fmt.Errorf("send %q: %w", cmd.Encode(), err)
	}
	return nil
}

// Next returns the next response, reading from the socket as needed.
func (c *Client) Next(ctx context.Context) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.pending) == 0 {
		if deadline, ok := ctx.Deadline(); ok {
			_ = c.conn.SetReadDeadline(deadline)
		} else {
			_ = c.conn.SetReadDeadline(time.Time{})
		}
		stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
		n, err := c.conn.Read(c.buf)
		stop()

		if n > 0 {
			chunk := string(c.buf[:n])
			if strings.TrimSpace(chunk) == protocol.Busy {
				return protocol.Response{}, ErrBusy
			}
			if err := c.queue(chunk); err != nil {
				return protocol.Response{}, err
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return protocol.Response{}, ctxErr
			}
			return protocol.Response{}, err
		}
	}

	resp := c.pending[0]
	c.pending = c.pending[1:]
	return resp, nil
}

func (c *Client) queue(chunk string) error {
	frames, err := protocol.Split(chunk)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if frame == "" {
			continue
		}
		resp, err := protocol.DecodeResponse(frame)
		if err != nil {
			return err
		}
		c.pending = append(c.pending, resp)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Probe reports whether a server answers on addr. A busy server counts as alive.
func Probe(ctx context.Context, addr string, timeout time.Duration) (bool, error) {
	c, err := Dial(ctx, addr, timeout)
	if err == nil {
		_ = c.Close()
		return true, nil
	}
	if errors.Is(err, ErrBusy) {
		return true, nil
	}
	if isConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe %s: %w", addr, err)
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
