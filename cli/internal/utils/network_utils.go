// Package utils holds small helpers shared by the CLI packages.
package utils

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10. Cloudflare WARP, Tailscale and carrier
// grade NATs hand out addresses from it.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// tunnelHints are interface name fragments of VPN and virtual adapters.
var tunnelHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether this host looks like it sits behind a
// VPN or CGNAT, where direct media paths rarely work and TURN is needed.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnelInterface(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if isCGNAT(addrIP(addr)) {
				return true
			}
		}
	}

	return false
}

func isTunnelInterface(name string) bool {
	name = strings.ToLower(name)
	for _, hint := range tunnelHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

func isCGNAT(ip net.IP) bool {
	return ip != nil && cgnatBlock.Contains(ip)
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
