//go:build !linux

package server

import (
	"net"
	"time"
)

func tune(conn net.Conn, _ time.Duration) error {
	if tcp, ok := conn.(*net.TCPConn); ok {
		return tcp.SetKeepAlive(true)
	}
	return nil
}
