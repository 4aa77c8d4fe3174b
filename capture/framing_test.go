package capture

import (
	"bytes"
	"testing"

	"github.com/swarmguard/dpi-sniffer/scanner"
)

func TestBuildResultFramePassthrough(t *testing.T) {
	captured := []byte("headers+payload-unchanged")
	out := BuildResultFrame(captured, 10, nil)
	if !bytes.Equal(out, captured) {
		t.Fatalf("expected passthrough frame to equal input verbatim")
	}
}

func TestBuildResultFrameWithReports(t *testing.T) {
	hdrs := []byte{0xAA, 0xBB, 0xCC, 0xDD} // pretend IP+TCP headers
	payload := []byte("malicious-payload")
	captured := append(append([]byte{}, hdrs...), payload...)

	resolved := []ReportRecord{{RID: 42, Offset: 3}}
	out := BuildResultFrame(captured, len(payload), resolved)

	decoded, ok := DecodeResultFrame(out, len(hdrs))
	if !ok {
		t.Fatalf("failed to decode result frame")
	}
	if !decoded.HasReports || len(decoded.Reports) != 1 {
		t.Fatalf("expected exactly one decoded report, got %#v", decoded)
	}
	if decoded.Reports[0].RID != 42 || decoded.Reports[0].Offset != 3 {
		t.Fatalf("unexpected decoded report: %#v", decoded.Reports[0])
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch after round-trip: %q", decoded.Payload)
	}
}

func TestResolveReportsUsesFirstRuleAtState(t *testing.T) {
	tm := &scanner.TableMachine{
		MatchRules: [][]scanner.Rule{
			0: nil,
			1: {{RID: 7, Pattern: []byte("abcd")}, {RID: 8, Pattern: []byte("xycd")}},
		},
	}
	reports := []scanner.MatchReport{{State: 1, Position: 10}}
	resolved := ResolveReports(tm, reports)
	if len(resolved) != 1 {
		t.Fatalf("expected 1 resolved record, got %d", len(resolved))
	}
	if resolved[0].RID != 7 {
		t.Fatalf("expected first rule (rid 7) to win, got %d", resolved[0].RID)
	}
	if resolved[0].Offset != 10-4 {
		t.Fatalf("expected offset %d, got %d", 10-4, resolved[0].Offset)
	}
}

func TestResolveReportsEmpty(t *testing.T) {
	if got := ResolveReports(nil, nil); got != nil {
		t.Fatalf("expected nil for no reports, got %#v", got)
	}
}
