package capture

import (
	"encoding/binary"
	"errors"
	"net/netip"
)

// TransportKind identifies which transport-layer header (if any) followed
// the IPv4 header.
type TransportKind int

const (
	TransportNone TransportKind = iota
	TransportTCP
	TransportUDP
	TransportICMP
)

// Packet is the decoded view of one captured IPv4 frame, carrying exactly
// the fields the original field-level Packet struct exposed plus the L7
// payload slice that gets scanned.
type Packet struct {
	IPSrc   netip.Addr
	IPDst   netip.Addr
	IPID    uint16
	IPTOS   uint8
	IPTTL   uint8
	IPProto uint8

	Transport TransportKind
	SrcPort   uint16
	DstPort   uint16
	ICMPType  uint8
	ICMPCode  uint8

	Payload    []byte
	PayloadLen int
}

// ErrUnsupportedLinkType is returned for any pcap link type other than the
// four this sniffer understands (NULL, Ethernet, SLIP, PPP).
var ErrUnsupportedLinkType = errors.New("capture: unsupported data link type")

const (
	linkHdrLenNull     = 4  // DLT_NULL / loopback
	linkHdrLenEthernet = 14 // DLT_EN10MB
	linkHdrLenSerial   = 24 // DLT_SLIP / DLT_PPP
)

// pcap data link type identifiers (bpf.h DLT_* values), independent of the
// header lengths above.
const (
	dltNull   = 0
	dltEN10MB = 1
	dltSLIP   = 8
	dltPPP    = 9
)

const (
	ipProtoICMP = 1
	ipProtoTCP  = 6
	ipProtoUDP  = 17
)

// ParseFrame decodes the IPv4 (+TCP/UDP/ICMP) headers of frame, skipping
// linkHdrLen bytes of link-layer header first. It reports ok=false rather
// than an error for any malformed or truncated input: a sniffer forwards
// frames it cannot parse unchanged rather than dropping them, so callers
// are expected to fall back to passthrough on ok=false.
func ParseFrame(frame []byte, linkHdrLen int) (pkt Packet, ok bool) {
	if linkHdrLen < 0 || len(frame) < linkHdrLen+20 {
		return Packet{}, false
	}
	ip := frame[linkHdrLen:]

	verIHL := ip[0]
	version := verIHL >> 4
	ihl := int(verIHL&0x0f) * 4
	if version != 4 || ihl < 20 || len(ip) < ihl {
		return Packet{}, false
	}
	totalLen := int(binary.BigEndian.Uint16(ip[2:4]))
	if totalLen < ihl || totalLen > len(ip) {
		return Packet{}, false
	}

	pkt.IPTOS = ip[1]
	pkt.IPID = binary.BigEndian.Uint16(ip[4:6])
	pkt.IPTTL = ip[8]
	pkt.IPProto = ip[9]
	pkt.IPSrc = netip.AddrFrom4([4]byte(ip[12:16]))
	pkt.IPDst = netip.AddrFrom4([4]byte(ip[16:20]))

	transport := ip[ihl:totalLen]

	switch pkt.IPProto {
	case ipProtoTCP:
		if len(transport) < 20 {
			return Packet{}, false
		}
		dataOff := int(transport[12]>>4) * 4
		if dataOff < 20 || dataOff > len(transport) {
			return Packet{}, false
		}
		pkt.Transport = TransportTCP
		pkt.SrcPort = binary.BigEndian.Uint16(transport[0:2])
		pkt.DstPort = binary.BigEndian.Uint16(transport[2:4])
		pkt.Payload = transport[dataOff:]
		pkt.PayloadLen = len(pkt.Payload)

	case ipProtoUDP:
		if len(transport) < 8 {
			return Packet{}, false
		}
		pkt.Transport = TransportUDP
		pkt.SrcPort = binary.BigEndian.Uint16(transport[0:2])
		pkt.DstPort = binary.BigEndian.Uint16(transport[2:4])
		pkt.Payload = transport[8:]
		pkt.PayloadLen = len(pkt.Payload)

	case ipProtoICMP:
		if len(transport) < 2 {
			return Packet{}, false
		}
		pkt.Transport = TransportICMP
		pkt.ICMPType = transport[0]
		pkt.ICMPCode = transport[1]
		pkt.Payload = nil
		pkt.PayloadLen = 0

	default:
		pkt.Transport = TransportNone
		pkt.Payload = nil
		pkt.PayloadLen = 0
	}

	return pkt, true
}

// LinkHeaderLen maps a pcap link type to the number of leading bytes to
// skip before the IPv4 header begins. Only the four link types the
// original sniffer recognizes are supported; anything else is a startup
// error, not a per-packet one.
func LinkHeaderLen(dlt int) (int, error) {
	switch dlt {
	case dltNull:
		return linkHdrLenNull, nil
	case dltEN10MB:
		return linkHdrLenEthernet, nil
	case dltSLIP, dltPPP:
		return linkHdrLenSerial, nil
	default:
		return 0, ErrUnsupportedLinkType
	}
}
