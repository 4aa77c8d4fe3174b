package corelog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSampledLoggerSuppressesRepeats(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sl := NewSampledLogger(logger, 3)

	for i := 0; i < 7; i++ {
		sl.Warn("write_failed", "packet injection failed")
	}

	lines := strings.Count(buf.String(), "packet injection failed")
	if lines != 3 {
		t.Fatalf("expected 3 logged occurrences (1st, 4th, 7th), got %d: %s", lines, buf.String())
	}
}

func TestSampledLoggerTracksKeysIndependently(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sl := NewSampledLogger(logger, 2)

	sl.Warn("a", "first failure mode")
	sl.Warn("b", "second failure mode")

	if strings.Count(buf.String(), "first failure mode") != 1 {
		t.Fatalf("expected first key's initial call to log")
	}
	if strings.Count(buf.String(), "second failure mode") != 1 {
		t.Fatalf("expected second key's initial call to log independently")
	}
}
