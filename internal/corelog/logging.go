package corelog

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Init configures a global slog logger. JSON if DPI_JSON_LOG=1/true/json else text.
func Init(service string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("DPI_JSON_LOG"))
	var handler slog.Handler
	if mode == "1" || mode == "true" || mode == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()})
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", (mode == "1" || mode == "true" || mode == "json"))
	return logger
}

// SampledLogger wraps a logger for call sites on the per-packet hot path,
// where a failure can repeat thousands of times a second (an output
// interface going down, say) and logging every single occurrence would
// itself become a throughput problem. It logs the first occurrence of a
// key and then every `every`th one after that, adding the running total of
// occurrences for that key to the line that does get written.
type SampledLogger struct {
	logger *slog.Logger
	every  int64

	mu     sync.Mutex
	counts map[string]int64
}

// NewSampledLogger wraps logger, sampling at 1-in-every. every<=0 disables
// sampling (every call is logged).
func NewSampledLogger(logger *slog.Logger, every int) *SampledLogger {
	if every <= 0 {
		every = 1
	}
	return &SampledLogger{logger: logger, every: int64(every), counts: make(map[string]int64)}
}

// Warn logs at most once every s.every calls sharing the same key.
func (s *SampledLogger) Warn(key, msg string, args ...any) {
	s.mu.Lock()
	s.counts[key]++
	n := s.counts[key]
	s.mu.Unlock()
	if (n-1)%s.every != 0 {
		return
	}
	s.logger.Warn(msg, append(args, "occurrences", n)...)
}

func levelFromEnv() slog.Leveler {
	lvl := strings.ToLower(os.Getenv("DPI_LOG_LEVEL"))
	switch lvl {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
