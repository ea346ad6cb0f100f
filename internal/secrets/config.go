package secrets

import (
	"fmt"
	"regexp"

	appconfig "github.com/fyrsmithlabs/taskd/internal/config"
)

// Engine names accepted by NewFromConfig.
const (
	EngineRegex    = "regex"
	EngineGitleaks = "gitleaks"
)

const defaultRedaction = "[REDACTED]"

// Config configures the regex scrubber.
type Config struct {
	Enabled bool
	Rules   []Rule
	// RedactionString replaces each detected secret. Defaults to "[REDACTED]".
	RedactionString string
	// AllowList holds patterns for matches that must be left alone.
	AllowList []string

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule defines a secret detection rule.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords gate the rule: when set, at least one must appear in the
	// content (case-insensitive) before the pattern is evaluated.
	Keywords []string
	Severity string // high, medium, low
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns the regex engine with the built-in rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		RedactionString: defaultRedaction,
		Rules:           DefaultRules(),
	}
}

// Validate compiles the rules and allow list.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RedactionString == "" {
		c.RedactionString = defaultRedaction
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}

		cr := &compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiledRules = append(c.compiledRules, cr)
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, re)
	}

	return nil
}

// NewFromConfig builds the scrubber selected by the application config.
// A disabled config yields a NoopScrubber.
func NewFromConfig(c appconfig.SecretsConfig) (Scrubber, error) {
	if !c.Enabled {
		return &NoopScrubber{}, nil
	}
	switch c.Engine {
	case "", EngineRegex:
		return New(DefaultConfig())
	case EngineGitleaks:
		return NewGitleaks(defaultRedaction)
	default:
		return nil, fmt.Errorf("unknown secrets engine %q", c.Engine)
	}
}
