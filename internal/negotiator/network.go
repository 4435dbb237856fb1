package negotiator

import (
	"net"
	"strings"
)

// Carrier-grade NAT range. WARP and Tailscale hand out addresses from it too.
var cgnatBlock = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

var tunnelPrefixes = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// iface is the part of net.Interface the relay heuristic looks at.
type iface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

// interfaces is swapped out in tests.
var interfaces = func() []iface {
	list, err := net.Interfaces()
	if err != nil {
		return nil
	}
	out := make([]iface, 0, len(list))
	for _, i := range list {
		addrs, _ := i.Addrs()
		out = append(out, iface{name: i.Name, flags: i.Flags, addrs: addrs})
	}
	return out
}

// RelayAdvised reports whether the device looks like it sits behind a VPN
// tunnel or CGNAT, where host and srflx candidates rarely connect to a browser.
func RelayAdvised() bool {
	return relayAdvised(interfaces())
}

func relayAdvised(list []iface) bool {
	for _, i := range list {
		if i.flags&net.FlagUp == 0 || i.flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnel(i.name) {
			return true
		}
		for _, addr := range i.addrs {
			if cgnatBlock.Contains(addrIP(addr)) {
				return true
			}
		}
	}
	return false
}

func isTunnel(name string) bool {
	name = strings.ToLower(name)
	for _, p := range tunnelPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
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
