package call

import (
	"net"
	"strings"
)

var cgnatBlock = mustCIDR("100.64.0.0/10")

// tunnelHints are interface name fragments of VPN and tunnel adapters.
var tunnelHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// iface is the part of a network interface relay detection looks at.
type iface struct {
	Name  string
	Flags net.Flags
	IPs   []net.IP
}

// ShouldForceRelay reports whether this host looks like it sits behind a
// VPN or carrier-grade NAT, where direct peer connections rarely work.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	list := make([]iface, 0, len(interfaces))
	for _, ni := range interfaces {
		entry := iface{Name: ni.Name, Flags: ni.Flags}
		addrs, err := ni.Addrs()
		if err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					entry.IPs = append(entry.IPs, v.IP)
				case *net.IPAddr:
					entry.IPs = append(entry.IPs, v.IP)
				}
			}
		}
		list = append(list, entry)
	}
	return restrictedNetwork(list)
}

func restrictedNetwork(list []iface) bool {
	for _, ni := range list {
		if ni.Flags&net.FlagUp == 0 || ni.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(ni.Name)
		for _, hint := range tunnelHints {
			if strings.Contains(name, hint) {
				return true
			}
		}

		// Cloudflare WARP, Tailscale and CGNAT all hand out 100.64.0.0/10.
		for _, ip := range ni.IPs {
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func mustCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return block
}
