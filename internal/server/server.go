// Package server runs the TCP accept loop and provides a small protocol client.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ConnHandler serves one accepted connection until it closes.
type ConnHandler interface {
	HandleConn(context.Context, net.Conn)
}

// ConnHandlerFunc adapts a function to the ConnHandler interface.
type ConnHandlerFunc func(context.Context, net.Conn)

func (f ConnHandlerFunc) HandleConn(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// Options tunes accepted sockets.
type Options struct {
	// UserTimeout bounds how long unacknowledged writes may stay in flight
	// before the kernel drops a vanished peer. Zero keeps the system default.
	UserTimeout time.Duration
	Logger      *slog.Logger
}

// Listen opens the TCP listener for addr.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return listener, nil
}

// Serve accepts clients until context cancellation or listener close. Every
// connection is handed to handler on its own goroutine; exclusivity is the
// handler's concern.
func Serve(ctx context.Context, listener net.Listener, handler ConnHandler, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept client connection: %w", err)
		}

		if err := tune(conn, opts.UserTimeout); err != nil {
			logger.Warn("tune client socket", "remote", conn.RemoteAddr().String(), "error", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			handler.HandleConn(ctx, c)
		}(conn)
	}
}
