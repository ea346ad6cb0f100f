package extraction

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/taskd/internal/names"
	"github.com/fyrsmithlabs/taskd/internal/normalize"
)

const (
	// AutoAcceptThreshold is the inclusive confidence at which a candidate
	// becomes a task without review.
	AutoAcceptThreshold = 0.70
	// UserMatchBoost is added when the item names the current user.
	UserMatchBoost = 0.1

	maxDerivedTitle = 120
)

// Decision is the triage verdict for one candidate.
type Decision string

const (
	DecisionCreate  Decision = "create"
	DecisionQueue   Decision = "queue"
	DecisionDiscard Decision = "discard"
)

// Candidate is a triaged candidate task.
type Candidate struct {
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Context         string      `json:"context,omitempty"`
	Assignee        string      `json:"assignee,omitempty"`
	ModelConfidence float64     `json:"model_confidence"`
	Confidence      float64     `json:"confidence"`
	Match           names.Match `json:"match"`
	Decision        Decision    `json:"decision"`
	Reason          string      `json:"reason,omitempty"`
}

// Triage scores and classifies one normalized candidate.
func Triage(c normalize.CandidateTask, variants names.VariantSet) Candidate {
	title := c.Title
	if title == "" {
		title = firstSentence(c.Description)
	}

	match := names.Resolve(names.Fields{
		Title:       title,
		Description: c.Description,
		Context:     c.Context,
		Assignee:    c.Assignee,
	}, variants)

	conf := c.Confidence
	if match == names.MatchUser {
		conf += UserMatchBoost
	}

	out := Candidate{
		Title:           title,
		Description:     c.Description,
		Context:         c.Context,
		Assignee:        c.Assignee,
		ModelConfidence: c.Confidence,
		Confidence:      round4(normalize.Clamp(conf)),
		Match:           match,
	}
	out.Decision, out.Reason = decide(out)
	return out
}

// decide applies the fixed triage rules to an already scored candidate.
func decide(c Candidate) (Decision, string) {
	switch {
	case strings.TrimSpace(c.Title) == "":
		return DecisionDiscard, "no title"
	case c.Match == names.MatchOther:
		return DecisionDiscard, "assigned to someone else"
	case c.Confidence >= AutoAcceptThreshold:
		return DecisionCreate, ""
	default:
		return DecisionQueue, ""
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// firstSentence returns the text up to the first sentence terminator,
// without it, capped at maxDerivedTitle runes.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.IndexAny(s, "\n"); i >= 0 {
		s = s[:i]
	}
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next == len(s) || s[next] == ' ' {
			s = s[:i]
			break
		}
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxDerivedTitle {
		s = strings.TrimSpace(string([]rune(s)[:maxDerivedTitle]))
	}
	return s
}

func count(cands []Candidate) (created, queued, discarded int) {
	for _, c := range cands {
		switch c.Decision {
		case DecisionCreate:
			created++
		case DecisionQueue:
			queued++
		default:
			discarded++
		}
	}
	return created, queued, discarded
}
