package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParseFrameLayers decodes frame using gopacket's layer parsers. This is the
// primary decode path when running against a live capture handle; ParseFrame
// remains available as the byte-exact fallback used by tests that construct
// synthetic frames without a gopacket.Packet to hand.
func ParseFrameLayers(frame []byte, linkType layers.LinkType) (Packet, bool) {
	pk := gopacket.NewPacket(frame, linkType, gopacket.NoCopy)
	ipLayer := pk.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return Packet{}, false
	}
	ip4, ok := ipLayer.(*layers.IPv4)
	if !ok {
		return Packet{}, false
	}

	var pkt Packet
	src, srcOK := netipAddrFromIP(ip4.SrcIP)
	dst, dstOK := netipAddrFromIP(ip4.DstIP)
	if !srcOK || !dstOK {
		return Packet{}, false
	}
	pkt.IPSrc = src
	pkt.IPDst = dst
	pkt.IPID = ip4.Id
	pkt.IPTOS = ip4.TOS
	pkt.IPTTL = ip4.TTL
	pkt.IPProto = uint8(ip4.Protocol)

	switch {
	case pk.Layer(layers.LayerTypeTCP) != nil:
		tcp := pk.Layer(layers.LayerTypeTCP).(*layers.TCP)
		pkt.Transport = TransportTCP
		pkt.SrcPort = uint16(tcp.SrcPort)
		pkt.DstPort = uint16(tcp.DstPort)
		pkt.Payload = tcp.Payload
		pkt.PayloadLen = len(tcp.Payload)

	case pk.Layer(layers.LayerTypeUDP) != nil:
		udp := pk.Layer(layers.LayerTypeUDP).(*layers.UDP)
		pkt.Transport = TransportUDP
		pkt.SrcPort = uint16(udp.SrcPort)
		pkt.DstPort = uint16(udp.DstPort)
		pkt.Payload = udp.Payload
		pkt.PayloadLen = len(udp.Payload)

	case pk.Layer(layers.LayerTypeICMPv4) != nil:
		icmp := pk.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
		pkt.Transport = TransportICMP
		pkt.ICMPType = icmp.TypeCode.Type()
		pkt.ICMPCode = icmp.TypeCode.Code()
		pkt.PayloadLen = 0

	default:
		pkt.Transport = TransportNone
	}

	return pkt, true
}
