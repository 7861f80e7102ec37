//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package supervisor

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReusePortSupported reports whether Listen sets SO_REUSEPORT.
const ReusePortSupported = true

// Listen opens a TCP listener with SO_REUSEPORT so that every worker process
// can bind the same address.
func Listen(network, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}
	return lc.Listen(context.Background(), network, addr)
}
