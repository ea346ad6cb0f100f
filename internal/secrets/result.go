package secrets

// Result contains the scrubbing result.
type Result struct {
	Scrubbed string         `json:"scrubbed"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// Finding locates a detected secret. The matched value is never retained.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"`
	Line        int    `json:"line,omitempty"` // 1-indexed
}

// HasFindings returns true if any secrets were found.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// Count returns the number of findings.
func (r *Result) Count() int {
	return len(r.Findings)
}

func newResult(content string) *Result {
	return &Result{Scrubbed: content, ByRule: map[string]int{}}
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	r.ByRule[f.RuleID]++
}
