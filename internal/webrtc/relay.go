package webrtc

import (
	"net"
	"strings"
)

// Carrier-grade NAT range. Cloudflare WARP and Tailscale hand out
// addresses from it too, and direct paths from there rarely work.
var cgnatBlock = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

type netInterface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

// ShouldForceRelay reports whether this host looks like it sits behind a
// VPN or CGNAT, where only a TURN relay is likely to connect.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	list := make([]netInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		list = append(list, netInterface{name: iface.Name, flags: iface.Flags, addrs: addrs})
	}
	return behindTunnel(list)
}

func behindTunnel(ifaces []netInterface) bool {
	for _, iface := range ifaces {
		if iface.flags&net.FlagUp == 0 || iface.flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.name)
		for _, marker := range tunnelNames {
			if strings.Contains(name, marker) {
				return true
			}
		}

		for _, addr := range iface.addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
