package discovery

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Get a list of active network interfaces excluding the loopback interface
//  address to only return the interface that serves the given IP address
func GetInterfaces(address string) ([]net.Interface, error) {
	result := make([]net.Interface, 0)
	ip := net.ParseIP(address)

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		// ignore interfaces without address
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ifNet, isIPNet := a.(*net.IPNet)
			if !isIPNet {
				continue
			}
			// ignore loopback interface
			if ifNet.Contains(ip) && !ifNet.IP.IsLoopback() {
				result = append(result, iface)
				logrus.Infof("GetInterfaces: Found network %v : %s [%v/%v]", iface.Name, ifNet, ifNet.IP, ifNet.Mask)
			}
		}
	}
	return result, nil
}
