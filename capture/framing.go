package capture

import (
	"encoding/binary"

	"github.com/swarmguard/dpi-sniffer/scanner"
)

const (
	reportMagic     uint16 = 0xDEE4
	reportRecordLen        = 12 // rid(4) + offset(4) + reserved(4), all big-endian
)

// ReportRecord is a resolved match, ready to be written onto the wire: the
// rule id and an offset relative to the start of the L7 payload, computed as
// the match's end position minus the pattern length, which is one less than
// the index of the pattern's first byte. Offset is signed on the wire; it is
// -1 when the pattern starts at the first payload byte.
type ReportRecord struct {
	RID    uint32
	Offset int32
}

// ResolveReports turns raw automaton hits into wire-ready records by
// looking up the first rule recorded at each accepting state. Reports whose
// state carries no rules (shouldn't happen for reachable accepting states,
// but defensively skipped) are dropped.
func ResolveReports(tm *scanner.TableMachine, reports []scanner.MatchReport) []ReportRecord {
	if len(reports) == 0 {
		return nil
	}
	out := make([]ReportRecord, 0, len(reports))
	for _, r := range reports {
		rules := tm.MatchRules[r.State]
		if len(rules) == 0 {
			continue
		}
		out = append(out, ReportRecord{
			RID:    rules[0].RID,
			Offset: int32(r.Position - rules[0].Len()),
		})
	}
	return out
}

// BuildResultFrame serializes the outgoing frame: if resolved carries no
// records the captured frame is passed through byte-for-byte; otherwise the
// original headers (everything up to the start of the L7 payload) are kept,
// followed by the magic/count/record prefix, followed by the original
// payload bytes.
func BuildResultFrame(captured []byte, payloadLen int, resolved []ReportRecord) []byte {
	if len(resolved) == 0 {
		out := make([]byte, len(captured))
		copy(out, captured)
		return out
	}

	hdrsLen := len(captured) - payloadLen
	out := make([]byte, hdrsLen+4+len(resolved)*reportRecordLen+payloadLen)
	copy(out, captured[:hdrsLen])

	p := hdrsLen
	binary.BigEndian.PutUint16(out[p:], reportMagic)
	p += 2
	binary.BigEndian.PutUint16(out[p:], uint16(len(resolved)))
	p += 2

	for _, rec := range resolved {
		binary.BigEndian.PutUint32(out[p:], rec.RID)
		p += 4
		binary.BigEndian.PutUint32(out[p:], uint32(rec.Offset))
		p += 4
		binary.BigEndian.PutUint32(out[p:], 0)
		p += 4
	}

	copy(out[p:], captured[hdrsLen:hdrsLen+payloadLen])
	return out
}

// DecodedFrame is the reverse of BuildResultFrame, used by tests to verify
// the round-trip property.
type DecodedFrame struct {
	HasReports bool
	Reports    []ReportRecord
	Payload    []byte
}

// DecodeResultFrame decodes a frame produced by BuildResultFrame, given the
// header length in bytes preceding the report prefix (or the payload, for a
// passthrough frame).
func DecodeResultFrame(frame []byte, hdrLen int) (DecodedFrame, bool) {
	if hdrLen < 0 || hdrLen > len(frame) {
		return DecodedFrame{}, false
	}
	rest := frame[hdrLen:]
	if len(rest) < 4 {
		return DecodedFrame{HasReports: false, Payload: rest}, true
	}
	magic := binary.BigEndian.Uint16(rest[0:2])
	if magic != reportMagic {
		return DecodedFrame{HasReports: false, Payload: rest}, true
	}
	count := int(binary.BigEndian.Uint16(rest[2:4]))
	p := 4
	if len(rest) < p+count*reportRecordLen {
		return DecodedFrame{}, false
	}
	records := make([]ReportRecord, 0, count)
	for i := 0; i < count; i++ {
		rid := binary.BigEndian.Uint32(rest[p:])
		p += 4
		offset := int32(binary.BigEndian.Uint32(rest[p:]))
		p += 4
		p += 4 // reserved
		records = append(records, ReportRecord{RID: rid, Offset: offset})
	}
	return DecodedFrame{HasReports: true, Reports: records, Payload: rest[p:]}, true
}
