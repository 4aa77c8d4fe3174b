package scanner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hillu/go-yara/v4"
)

// RegexCollaborator handles the is_regex=true slice of the catalog that the
// Aho-Corasick core never sees. Regex patterns are compiled once, at
// startup, into a YARA ruleset and matched only from an out-of-band path —
// never from the per-packet hot loop.
type RegexCollaborator struct {
	mu    sync.RWMutex
	rules *yara.Rules
	count int
}

// RegexMatch is one YARA hit, with the catalog RID recovered from the
// synthetic rule name it was compiled under.
type RegexMatch struct {
	RID    uint32
	Offset int64
	Length int
}

// NewRegexCollaborator compiles every is_regex rule in catalog into a YARA
// ruleset. Returns (nil, nil) when the catalog carries no regex rules, so
// callers can treat a nil collaborator as "nothing to do" rather than an
// error.
func NewRegexCollaborator(catalog []Rule) (*RegexCollaborator, error) {
	compiler, err := yara.NewCompiler()
	if err != nil {
		return nil, fmt.Errorf("yara compiler init: %w", err)
	}

	var src strings.Builder
	n := 0
	for _, r := range catalog {
		if !r.IsRegex {
			continue
		}
		src.WriteString(buildYaraSource(r))
		n++
	}
	if n == 0 {
		return nil, nil
	}
	if err := compiler.AddString(src.String(), "dpi"); err != nil {
		return nil, fmt.Errorf("compile regex rules: %w", err)
	}
	rules, err := compiler.GetRules()
	if err != nil {
		return nil, fmt.Errorf("get regex rules: %w", err)
	}
	return &RegexCollaborator{rules: rules, count: n}, nil
}

func buildYaraSource(r Rule) string {
	return fmt.Sprintf("rule r_%d {\n  strings:\n    $a = /%s/\n  condition:\n    $a\n}\n",
		r.RID, escapeYaraRegex(string(r.Pattern)))
}

func escapeYaraRegex(pattern string) string {
	return strings.ReplaceAll(pattern, "/", "\\/")
}

// Scan runs every compiled regex rule against data, bounded by timeoutSec.
func (c *RegexCollaborator) Scan(data []byte, timeoutSec int) ([]RegexMatch, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.RLock()
	rules := c.rules
	c.mu.RUnlock()
	if rules == nil {
		return nil, errors.New("scanner: regex collaborator has no compiled rules")
	}

	var matches []RegexMatch
	err := rules.ScanMemWithCallback(data, yara.ScanFlagsFastMode, timeoutSec, func(m *yara.MatchRule) (bool, error) {
		rid, ok := ridFromRuleName(m.Rule)
		if !ok {
			return true, nil
		}
		for _, str := range m.Strings {
			for _, sm := range str.Matches {
				matches = append(matches, RegexMatch{
					RID:    rid,
					Offset: int64(sm.Offset),
					Length: len(sm.Data),
				})
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("yara scan: %w", err)
	}
	return matches, nil
}

func ridFromRuleName(name string) (uint32, bool) {
	const prefix = "r_"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(name[len(prefix):], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Count returns how many regex rules were compiled.
func (c *RegexCollaborator) Count() int {
	if c == nil {
		return 0
	}
	return c.count
}

// Close releases the underlying YARA ruleset.
func (c *RegexCollaborator) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rules != nil {
		c.rules.Destroy()
		c.rules = nil
	}
	return nil
}
