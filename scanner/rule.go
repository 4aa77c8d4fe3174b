package scanner

// Rule is a single catalog entry: a literal byte pattern to match, or a
// regex pattern handled entirely outside the Aho-Corasick core.
type Rule struct {
	RID     uint32
	Pattern []byte
	IsRegex bool

	// Severity, Tags and SamplePercent are parsed from the catalog and kept
	// on the rule as metadata; none of them influence the compiled
	// automaton, the wire-reported match stream or the published alerts.
	Severity      string
	Tags          []string
	SamplePercent int
}

// Len returns the pattern length in bytes.
func (r Rule) Len() int { return len(r.Pattern) }
