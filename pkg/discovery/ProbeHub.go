// Package discovery with helpers to locate and probe a maveo box on the local network
package discovery

import (
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// ProbeHub checks whether a hub accepts TCP connections on the given port.
// The connection is closed immediately after it is established. Intended for
// configuration validation before committing to a host.
//  host hostname or IP address of the hub
//  port command channel port to probe
//  timeout maximum time to wait for the connection
// Returns true if the port accepted the connection
func ProbeHub(host string, port int, timeout time.Duration) bool {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		logrus.Infof("ProbeHub: %s is not reachable: %s", address, err)
		return false
	}
	conn.Close()
	logrus.Debugf("ProbeHub: %s accepted the connection", address)
	return true
}
