//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package supervisor

import "net"

// ReusePortSupported reports whether Listen sets SO_REUSEPORT.
const ReusePortSupported = false

// Listen falls back to a plain listener.
func Listen(network, addr string) (net.Listener, error) {
	return net.Listen(network, addr)
}
