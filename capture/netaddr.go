package capture

import (
	"net"
	"net/netip"
)

// netipAddrFromIP converts a net.IP (as produced by gopacket's layer
// decoders) into a netip.Addr, accepting only 4-byte IPv4 forms.
func netipAddrFromIP(ip net.IP) (netip.Addr, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte(v4)), true
}
