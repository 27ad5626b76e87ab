package mysqlwire

import (
	"errors"
	"net"
	"syscall"
)

// isEINTR reports whether err is an interrupted-syscall condition,
// the sole case spec.md §4.4 "Connect" retries automatically.
func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// splitHost returns the host part of a "host:port" address, or addr
// unchanged if it has no port (e.g. a Unix socket path).
func splitHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
