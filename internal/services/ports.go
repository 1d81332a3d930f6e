package services

import (
	"fmt"
	"net"
	"time"
)

const probeDialTimeout = 2 * time.Second

// DefaultPortMap is the fixed service→port map probed during environment
// checks.
func DefaultPortMap() map[string]int {
	return map[string]int{
		ServiceWeb:      8000,
		ServiceRedis:    6379,
		ServiceFrontend: 5173,
		ServiceDatabase: 5432,
	}
}

// PortInUse reports whether something is listening on host:port. A successful
// TCP connect means the port is taken.
func PortInUse(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), probeDialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
