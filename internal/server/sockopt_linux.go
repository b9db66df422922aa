//go:build linux

package server

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// tune enables keepalive and TCP_USER_TIMEOUT so a client that disappears
// without closing releases the session.
func tune(conn net.Conn, userTimeout time.Duration) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcp.SetKeepAlive(true); err != nil {
		return fmt.Errorf("enable keepalive: %w", err)
	}
	if userTimeout <= 0 {
		return nil
	}

	raw, err := tcp.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw socket: %w", err)
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, int(userTimeout.Milliseconds()))
	}); err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("set TCP_USER_TIMEOUT: %w", sockErr)
	}
	return nil
}
