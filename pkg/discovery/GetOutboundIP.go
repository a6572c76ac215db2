package discovery

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Get the default outbound IP address used to reach the given destination.
// Useful to determine the interface address a simulator should bind to, or
// which local address carries the route towards a hub.
//  destination host to reach, or "" for the default route address
// No connection is established, UDP dial only resolves the local address.
func GetOutboundIP(destination string) net.IP {
	if destination == "" {
		destination = "1.1.1.1"
	}
	conn, err := net.Dial("udp", destination+":80")
	if err != nil {
		logrus.Errorf("GetOutboundIP: %s", err)
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP
}
