package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"
)

// gitleaksScrubber runs the gitleaks default rule pack over content.
type gitleaksScrubber struct {
	mu          sync.Mutex // Detector accumulates findings internally
	detector    *detect.Detector
	replacement string
}

// NewGitleaks creates a Scrubber backed by the gitleaks default config.
func NewGitleaks(replacement string) (Scrubber, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	if replacement == "" {
		replacement = defaultRedaction
	}
	return &gitleaksScrubber{detector: d, replacement: replacement}, nil
}

func (g *gitleaksScrubber) Scrub(content string) *Result {
	result := newResult(content)
	if content == "" {
		return result
	}

	g.mu.Lock()
	findings := g.detector.DetectString(content)
	g.mu.Unlock()

	secrets := make([]string, 0, len(findings))
	for _, f := range findings {
		result.add(Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Severity:    severity(f),
			Line:        f.StartLine,
		})
		if f.Secret != "" {
			secrets = append(secrets, f.Secret)
		}
	}

	// Longest first so a secret containing another is replaced whole.
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
	scrubbed := content
	for _, s := range secrets {
		scrubbed = strings.ReplaceAll(scrubbed, s, g.replacement)
	}
	result.Scrubbed = scrubbed
	return result
}

func (g *gitleaksScrubber) IsEnabled() bool {
	return true
}

// severity maps gitleaks tags onto the regex engine's levels. gitleaks has
// no severity field; everything it reports is treated as high.
func severity(f report.Finding) string {
	for _, tag := range f.Tags {
		switch strings.ToLower(tag) {
		case "low", "medium", "high":
			return strings.ToLower(tag)
		}
	}
	return "high"
}
