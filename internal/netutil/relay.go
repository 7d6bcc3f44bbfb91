package netutil

import (
	"net"
	"strings"
)

// cgnat is 100.64.0.0/10, used by carrier-grade NAT, Cloudflare WARP and Tailscale.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// Interface is the subset of net.Interface the heuristic looks at.
type Interface struct {
	Name  string
	Up    bool
	Loop  bool
	Addrs []net.IP
}

// ShouldForceRelay reports whether the host is likely behind a VPN or CGNAT,
// where direct peer-to-peer paths usually fail and TURN should be forced.
func ShouldForceRelay() bool {
	ifaces, err := SystemInterfaces()
	if err != nil {
		return false
	}
	return LooksTunneled(ifaces)
}

// LooksTunneled applies the VPN/CGNAT heuristic to a list of interfaces.
func LooksTunneled(ifaces []Interface) bool {
	for _, iface := range ifaces {
		if !iface.Up || iface.Loop {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, marker := range tunnelNames {
			if strings.Contains(name, marker) {
				return true
			}
		}

		for _, ip := range iface.Addrs {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}

// SystemInterfaces snapshots the host's interfaces.
func SystemInterfaces() ([]Interface, error) {
	raw, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Interface, 0, len(raw))
	for _, iface := range raw {
		entry := Interface{
			Name: iface.Name,
			Up:   iface.Flags&net.FlagUp != 0,
			Loop: iface.Flags&net.FlagLoopback != 0,
		}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					entry.Addrs = append(entry.Addrs, v.IP)
				case *net.IPAddr:
					entry.Addrs = append(entry.Addrs, v.IP)
				}
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
