package secrets

import (
	"sort"
	"strings"
)

// Scrubber redacts secrets from text.
type Scrubber interface {
	// Scrub returns the content with every detected secret replaced.
	Scrub(content string) *Result
	IsEnabled() bool
}

// regexScrubber applies compiled Config rules. Config is immutable after
// Validate, so no locking is needed.
type regexScrubber struct {
	config *Config
}

type span struct {
	start, end int
}

// New creates a regex Scrubber. A nil config uses DefaultConfig().
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &regexScrubber{config: cfg}, nil
}

// MustNew creates a Scrubber, panicking on error.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *regexScrubber) Scrub(content string) *Result {
	result := newResult(content)
	if !s.config.Enabled || content == "" {
		return result
	}

	var spans []span
	for _, rule := range s.config.compiledRules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			result.add(Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				Line:        strings.Count(content[:m[0]], "\n") + 1,
			})
			spans = append(spans, span{m[0], m[1]})
		}
	}

	if len(spans) > 0 {
		result.Scrubbed = redact(content, spans, s.config.RedactionString)
	}
	return result
}

func (s *regexScrubber) IsEnabled() bool {
	return s.config.Enabled
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *regexScrubber) allowed(match string) bool {
	for _, re := range s.config.compiledAllowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// redact merges overlapping spans and replaces each with repl.
func redact(content string, spans []span, repl string) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for i := 0; i < len(spans); {
		start, end := spans[i].start, spans[i].end
		for i++; i < len(spans) && spans[i].start <= end; i++ {
			if spans[i].end > end {
				end = spans[i].end
			}
		}
		b.WriteString(content[pos:start])
		b.WriteString(repl)
		pos = end
	}
	b.WriteString(content[pos:])
	return b.String()
}

// NoopScrubber returns content unchanged.
type NoopScrubber struct{}

func (n *NoopScrubber) Scrub(content string) *Result {
	return newResult(content)
}

func (n *NoopScrubber) IsEnabled() bool {
	return false
}

var (
	_ Scrubber = (*regexScrubber)(nil)
	_ Scrubber = (*NoopScrubber)(nil)
)
