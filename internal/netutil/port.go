// Package netutil probes local TCP ports for queue endpoint allocation.
package netutil

import (
	"fmt"
	"net"
)

// FreePort returns the first port in [start, end] that is neither in the
// taken set nor bound by another listener on the host.
func FreePort(start, end int, taken map[int]bool) (int, error) {
	if start <= 0 || end < start || end > 65535 {
		return 0, fmt.Errorf("invalid port range %d-%d", start, end)
	}

	for port := start; port <= end; port++ {
		if taken[port] {
			continue
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			// Bound out-of-band by some other process.
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}
