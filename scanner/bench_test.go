package scanner

import (
	"math/rand"
	"testing"
)

func BenchmarkScanHotLoop(b *testing.B) {
	rules := make([]Rule, 0, 200)
	for i := 0; i < 200; i++ {
		rules = append(rules, Rule{RID: uint32(i), Pattern: []byte(randomPattern(i, 24))})
	}
	tm, err := BuildAutomaton(rules, DefaultMinPatternLength)
	if err != nil {
		b.Fatalf("build: %v", err)
	}
	payload := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(payload)
	reports := make([]MatchReport, 0, 64)

	b.ResetTimer()
	b.SetBytes(int64(len(payload)))
	for i := 0; i < b.N; i++ {
		reports = tm.Scan(payload, reports)
	}
}

func randomPattern(seed, length int) []byte {
	r := rand.New(rand.NewSource(int64(seed)))
	buf := make([]byte, length)
	r.Read(buf)
	return buf
}
