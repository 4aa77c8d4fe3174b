package capture

import (
	"encoding/binary"
	"testing"
)

func buildIPv4TCP(payload []byte) []byte {
	ihl := 20
	tcpHdrLen := 20
	totalLen := ihl + tcpHdrLen + len(payload)

	buf := make([]byte, totalLen)
	buf[0] = 0x45 // version 4, IHL 5
	buf[1] = 0x10 // TOS
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(buf[4:6], 0xBEEF) // IP ID
	buf[8] = 64                                  // TTL
	buf[9] = 6                                   // TCP
	copy(buf[12:16], []byte{10, 0, 0, 1})
	copy(buf[16:20], []byte{10, 0, 0, 2})

	tcp := buf[ihl:]
	binary.BigEndian.PutUint16(tcp[0:2], 1234) // src port
	binary.BigEndian.PutUint16(tcp[2:4], 80)   // dst port
	tcp[12] = byte(tcpHdrLen/4) << 4           // data offset
	copy(tcp[tcpHdrLen:], payload)

	return buf
}

func TestParseFrameTCP(t *testing.T) {
	payload := []byte("GET / HTTP/1.1\r\n")
	frame := buildIPv4TCP(payload)

	pkt, ok := ParseFrame(frame, 0)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if pkt.Transport != TransportTCP {
		t.Fatalf("expected TCP transport, got %v", pkt.Transport)
	}
	if pkt.SrcPort != 1234 || pkt.DstPort != 80 {
		t.Fatalf("unexpected ports: %d -> %d", pkt.SrcPort, pkt.DstPort)
	}
	if pkt.IPID != 0xBEEF || pkt.IPTTL != 64 {
		t.Fatalf("unexpected IP fields: id=%x ttl=%d", pkt.IPID, pkt.IPTTL)
	}
	if string(pkt.Payload) != string(payload) {
		t.Fatalf("unexpected payload: %q", pkt.Payload)
	}
}

func TestParseFrameWithLinkHeader(t *testing.T) {
	payload := []byte("hello")
	ip := buildIPv4TCP(payload)
	frame := append(make([]byte, 14), ip...) // fake ethernet header

	pkt, ok := ParseFrame(frame, 14)
	if !ok {
		t.Fatalf("expected successful parse with link header skip")
	}
	if string(pkt.Payload) != "hello" {
		t.Fatalf("unexpected payload: %q", pkt.Payload)
	}
}

func TestParseFrameTruncated(t *testing.T) {
	if _, ok := ParseFrame([]byte{0x45, 0x00}, 0); ok {
		t.Fatalf("expected failure on truncated frame")
	}
}

func TestParseFrameBadVersion(t *testing.T) {
	frame := buildIPv4TCP([]byte("x"))
	frame[0] = 0x65 // version 6
	if _, ok := ParseFrame(frame, 0); ok {
		t.Fatalf("expected failure on non-IPv4 version nibble")
	}
}

func TestParseFrameBadTotalLength(t *testing.T) {
	frame := buildIPv4TCP([]byte("x"))
	binary.BigEndian.PutUint16(frame[2:4], 0xFFFF) // bogus, larger than frame
	if _, ok := ParseFrame(frame, 0); ok {
		t.Fatalf("expected failure on out-of-range total length")
	}
}

func TestLinkHeaderLenMapping(t *testing.T) {
	cases := map[int]int{dltNull: 4, dltEN10MB: 14, dltSLIP: 24, dltPPP: 24}
	for dlt, want := range cases {
		got, err := LinkHeaderLen(dlt)
		if err != nil {
			t.Fatalf("LinkHeaderLen(%d): %v", dlt, err)
		}
		if got != want {
			t.Fatalf("LinkHeaderLen(%d) = %d, want %d", dlt, got, want)
		}
	}
}

func TestLinkHeaderLenUnsupported(t *testing.T) {
	if _, err := LinkHeaderLen(99); err != ErrUnsupportedLinkType {
		t.Fatalf("expected ErrUnsupportedLinkType, got %v", err)
	}
}
