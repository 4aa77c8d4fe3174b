package scanner

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultMinPatternLength is the minimum literal pattern length accepted
	// into the automaton; shorter patterns are dropped before enter to keep
	// the compiled table small and the false-positive rate low.
	DefaultMinPatternLength = 16

	// MaxRulesPerState bounds how many distinct rules may terminate at the
	// same trie state.
	MaxRulesPerState = 8

	// MaxPatternLength bounds a single rule's pattern length.
	MaxPatternLength = 1024

	// MaxReports bounds how many MatchReport entries Scan will ever emit for
	// a single payload, matching the original machine's report cap.
	MaxReports = 65535
)

// MatchReport is one transition-function hit: at byte position Position the
// machine entered accepting state State.
type MatchReport struct {
	State    int
	Position int
}

// TableMachine is the fully-resolved delta transition table: table[state*256+b]
// always yields the next state with no runtime failure-walking.
type TableMachine struct {
	NumStates  int
	Table      []uint16
	Matches    []uint64 // packed accepting-state bitmap
	MatchRules [][]Rule // per-state accepting rules, indexed by state
	BuildHash  string
	BuildNanos int64
	RuleCount  int
}

func setBit(bits []uint64, i int) {
	bits[i/64] |= 1 << uint(i%64)
}

func hasBit(bits []uint64, i int) bool {
	return bits[i/64]&(1<<uint(i%64)) != 0
}

// Compile resolves a built trie (with failure links already computed) into
// a dense TableMachine. For each state, in BFS order, explicit gotos are
// copied directly into that state's row; any byte without an explicit goto
// is resolved by walking the state's own failure chain, inclusive of the
// root, taking the first ancestor (or the root itself) that has an explicit
// goto for that byte.
func Compile(t *Trie) (*TableMachine, error) {
	n := len(t.nodes)
	if n > 1<<16 {
		return nil, ErrRuleSetTooLarge
	}
	tm := &TableMachine{
		NumStates:  n,
		Table:      make([]uint16, n*256),
		Matches:    make([]uint64, (n+63)/64),
		MatchRules: make([][]Rule, n),
	}

	order := make([]*trieNode, 0, n)
	visited := make([]bool, n)
	queue := []*trieNode{t.root}
	visited[0] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, child := range cur.gotos {
			if !visited[child.id] {
				visited[child.id] = true
				queue = append(queue, child)
			}
		}
	}

	for _, node := range order {
		row := tm.Table[node.id*256 : node.id*256+256]
		has := make([]bool, 256)
		for b, child := range node.gotos {
			row[b] = uint16(child.id)
			has[b] = true
		}
		if node.id != 0 {
			state := node.failure
			for {
				for b, child := range state.gotos {
					if !has[b] {
						row[b] = uint16(child.id)
						has[b] = true
					}
				}
				if state.id == 0 {
					break
				}
				state = state.failure
			}
		}
		if node.match {
			setBit(tm.Matches, node.id)
			tm.MatchRules[node.id] = append([]Rule(nil), node.rules...)
			tm.RuleCount += len(node.rules)
		}
	}
	return tm, nil
}

// Scan runs the byte-at-a-time hot loop: one table lookup, one bit test,
// and a conditional append per input byte. reports is reused as scratch
// space and truncated to the number of hits (capped at MaxReports).
func (tm *TableMachine) Scan(payload []byte, reports []MatchReport) []MatchReport {
	reports = reports[:0]
	state := 0
	for i, b := range payload {
		next := int(tm.Table[state*256+int(b)])
		if hasBit(tm.Matches, next) {
			if len(reports) < MaxReports {
				reports = append(reports, MatchReport{State: next, Position: i})
			}
		}
		state = next
	}
	return reports
}

// ScanUpTo is a convenience wrapper allocating fresh scratch space.
func (tm *TableMachine) ScanUpTo(payload []byte, maxReports int) []MatchReport {
	reports := tm.Scan(payload, make([]MatchReport, 0, 16))
	if maxReports > 0 && len(reports) > maxReports {
		reports = reports[:maxReports]
	}
	return reports
}

// BuildAutomaton is the top-level pipeline entry point: filter regex/too-short
// rules, build the trie, close it over failure links, and compile the delta
// table. It logs a one-line build summary in place of the original builder's
// printed "AC DFA Info" banner.
func BuildAutomaton(rules []Rule, minLen int) (*TableMachine, error) {
	if minLen <= 0 {
		minLen = DefaultMinPatternLength
	}
	start := time.Now()
	trie := newTrie()
	added := 0
	for _, r := range rules {
		if r.IsRegex {
			continue
		}
		if len(r.Pattern) < minLen || len(r.Pattern) > MaxPatternLength {
			continue
		}
		if err := trie.enter(r); err != nil {
			return nil, fmt.Errorf("scanner: enter rule %d: %w", r.RID, err)
		}
		added++
	}
	trie.constructFailures()
	tm, err := Compile(trie)
	if err != nil {
		return nil, err
	}
	tm.BuildHash = rulesHash(rules)
	tm.BuildNanos = time.Since(start).Nanoseconds()
	slog.Info("automaton compiled",
		"rules_loaded", len(rules),
		"rules_compiled", added,
		"states", tm.NumStates,
		"table_bytes", len(tm.Table)*2,
		"build_ms", float64(tm.BuildNanos)/1e6,
	)
	return tm, nil
}

// rulesHash fingerprints a rule set deterministically, independent of
// catalog file ordering semantics beyond the slice order given.
func rulesHash(rules []Rule) string {
	h := sha256.New()
	for _, r := range rules {
		var ridBuf [4]byte
		binary.BigEndian.PutUint32(ridBuf[:], r.RID)
		h.Write(ridBuf[:])
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(r.Pattern)))
		h.Write(lenBuf[:])
		h.Write(r.Pattern)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
