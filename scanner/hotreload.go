package scanner

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ReloadMetadata tracks reload statistics for a ReloadableMatcher.
type ReloadMetadata struct {
	Version         string
	LoadedAt        time.Time
	RuleCount       int
	BuildDurationMs int64
	LastReloadAt    time.Time
	ReloadCount     int
	LastError       string
}

// ReloadableMatcher wraps a TableMachine built from a catalog file, watching
// it on an interval and atomically swapping in a freshly compiled machine
// whenever the catalog content changes. Current() always returns a machine
// safe to scan against even mid-swap: a scan in flight holds its own
// *TableMachine value and is never mutated underneath it.
type ReloadableMatcher struct {
	path          string
	minLen        int
	checkInterval time.Duration

	current  atomic.Value // *TableMachine
	lastHash string

	mu       sync.RWMutex
	metadata ReloadMetadata

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReloadableMatcher performs an initial catalog load/build and starts a
// background watcher goroutine.
func NewReloadableMatcher(path string, minLen int, checkInterval time.Duration) (*ReloadableMatcher, error) {
	m := &ReloadableMatcher{
		path:          path,
		minLen:        minLen,
		checkInterval: checkInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	go m.watchLoop()
	return m, nil
}

func (m *ReloadableMatcher) reload() error {
	rules, err := ReadCatalog(m.path)
	if err != nil {
		m.mu.Lock()
		m.metadata.LastError = err.Error()
		m.mu.Unlock()
		return err
	}

	hash := rulesHash(rules)
	if hash == m.lastHash {
		return nil
	}

	start := time.Now()
	tm, err := BuildAutomaton(rules, m.minLen)
	if err != nil {
		m.mu.Lock()
		m.metadata.LastError = err.Error()
		m.mu.Unlock()
		return err
	}

	m.current.Store(tm)
	m.lastHash = hash

	m.mu.Lock()
	m.metadata = ReloadMetadata{
		Version:         hash[:12],
		LoadedAt:        start,
		RuleCount:       tm.RuleCount,
		BuildDurationMs: time.Since(start).Milliseconds(),
		LastReloadAt:    time.Now(),
		ReloadCount:     m.metadata.ReloadCount + 1,
		LastError:       "",
	}
	m.mu.Unlock()

	slog.Info("rule catalog reloaded", "path", m.path, "version", hash[:12], "rules", tm.RuleCount)
	return nil
}

func (m *ReloadableMatcher) watchLoop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.reload(); err != nil {
				slog.Warn("rule catalog reload failed", "path", m.path, "error", err)
			}
		case <-m.stopCh:
			return
		}
	}
}

// Current returns the presently active compiled machine.
func (m *ReloadableMatcher) Current() *TableMachine {
	tm, _ := m.current.Load().(*TableMachine)
	return tm
}

// Metadata returns a snapshot of reload statistics.
func (m *ReloadableMatcher) Metadata() ReloadMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata
}

// ForceReload triggers an immediate reload check, ignoring the watch
// interval.
func (m *ReloadableMatcher) ForceReload() error {
	return m.reload()
}

// Stop terminates the background watcher goroutine.
func (m *ReloadableMatcher) Stop() {
	close(m.stopCh)
	<-m.doneCh
}
