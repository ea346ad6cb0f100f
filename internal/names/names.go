// Package names decides whether extracted action items belong to the
// current user.
package names

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// VariantSet holds the user's names. The first entry is the canonical
// display name; the rest are aliases used only for matching.
type VariantSet []string

// NewVariantSet trims the names and drops blanks and case-insensitive
// duplicates, keeping first-seen order.
func NewVariantSet(variants ...string) VariantSet {
	seen := make(map[string]bool, len(variants))
	set := make(VariantSet, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		set = append(set, v)
	}
	return set
}

// Canonical returns the display name, or "" for an empty set.
func (s VariantSet) Canonical() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Aliases returns every name but the canonical one.
func (s VariantSet) Aliases() []string {
	if len(s) < 2 {
		return nil
	}
	return s[1:]
}

// Match is the ownership verdict for one candidate.
type Match int

const (
	// MatchNone means nobody in particular is named.
	MatchNone Match = iota
	// MatchUser means the item names the current user.
	MatchUser
	// MatchOther means the item is explicitly someone else's.
	MatchOther
)

func (m Match) String() string {
	switch m {
	case MatchUser:
		return "user"
	case MatchOther:
		return "other"
	default:
		return "none"
	}
}

func (m Match) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Match) UnmarshalText(text []byte) error {
	switch string(text) {
	case "user":
		*m = MatchUser
	case "other":
		*m = MatchOther
	case "none", "":
		*m = MatchNone
	default:
		return fmt.Errorf("unknown match %q", text)
	}
	return nil
}

// Fields are the candidate text fields Resolve inspects.
type Fields struct {
	Title       string
	Description string
	Context     string
	Assignee    string
}

func (f Fields) text() string {
	return strings.Join([]string{f.Title, f.Description, f.Context}, "\n")
}

// MatchesUser reports whether any variant occurs in text as a whole-word
// token sequence, ignoring case. "Alex's" matches "Alex"; "Alexander" does
// not.
func MatchesUser(text string, set VariantSet) bool {
	hay := tokenize(text)
	if len(hay) == 0 {
		return false
	}
	for _, v := range set {
		if needle := tokenize(v); len(needle) > 0 && containsSeq(hay, needle) {
			return true
		}
	}
	return false
}

// Resolve decides who an item belongs to. A non-generic assignee decides
// on its own. Otherwise explicit mentions ("@bob", "assigned to Bob") and
// subject forms ("Bob needs to", a leading "Bob:") are checked, a mention
// of the user winning over mentions of others. Subject forms only count
// for someone else when the word looks like a person's name, so "Monday:"
// or "Tests must pass" name nobody. Failing all that, any occurrence of a
// variant in the text counts as the user.
func Resolve(f Fields, set VariantSet) Match {
	if a := strings.TrimSpace(f.Assignee); a != "" && !isGeneric(a) {
		if MatchesUser(a, set) {
			return MatchUser
		}
		return MatchOther
	}

	var user, other bool
	for _, m := range mentions(f.text()) {
		if isGeneric(m.text) {
			continue
		}
		switch {
		case MatchesUser(m.text, set):
			user = true
		case m.explicit || looksLikePerson(m.text):
			other = true
		}
	}
	switch {
	case user:
		return MatchUser
	case other:
		return MatchOther
	case MatchesUser(f.text(), set):
		return MatchUser
	default:
		return MatchNone
	}
}

// name is one or two capitalized words on the same line.
const name = `[A-Z][\p{L}'-]*(?: [A-Z][\p{L}'-]*)?`

var (
	explicitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|\s)@([\p{L}\d._-]+)`),
		regexp.MustCompile(`(?i:assigned to) +(` + name + `)`),
	}
	prefixPattern = regexp.MustCompile(`(?m)^[ \t]*(` + name + `):`)
	// The following verb is captured so passive "needs to be" clauses,
	// where the capitalized word is an object, can be skipped.
	subjectPattern = regexp.MustCompile(`\b(` + name + `) (?:needs to|has to|must|should) (\p{L}+)`)
)

type mention struct {
	text     string
	explicit bool
}

func mentions(text string) []mention {
	var out []mention
	for _, re := range explicitPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out = append(out, mention{text: m[1], explicit: true})
		}
	}
	for _, m := range prefixPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, mention{text: m[1]})
	}
	for _, m := range subjectPattern.FindAllStringSubmatch(text, -1) {
		if !strings.EqualFold(m[2], "be") {
			out = append(out, mention{text: m[1]})
		}
	}
	return out
}

// looksLikePerson rejects phrases containing a calendar word, a common
// workplace noun, an acronym or a noun-shaped suffix.
func looksLikePerson(s string) bool {
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, "'-")
		if len(w) >= 2 && strings.ToUpper(w) == w {
			return false
		}
		lw := strings.ToLower(w)
		if notPeople[lw] {
			return false
		}
		for _, suffix := range nounSuffixes {
			if len(lw) > len(suffix)+2 && strings.HasSuffix(lw, suffix) {
				return false
			}
		}
	}
	return true
}

var nounSuffixes = []string{"ing", "tion", "sion", "ment", "ness", "ware"}

var notPeople = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true, "today": true, "tomorrow": true, "tonight": true,
	"yesterday": true, "weekend": true, "morning": true, "afternoon": true, "evening": true,
	"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
	"july": true, "august": true, "september": true, "october": true, "november": true,
	"december": true, "q1": true, "q2": true, "q3": true, "q4": true,
	"backend": true, "frontend": true, "front": true, "back": true, "end": true,
	"marketing": true, "sales": true, "design": true, "engineering": true, "legal": true,
	"finance": true, "ops": true, "devops": true, "support": true, "product": true,
	"management": true, "leadership": true, "security": true, "infra": true, "platform": true,
	"mobile": true, "web": true, "data": true, "analytics": true, "research": true, "hr": true,
	"tests": true, "test": true, "docs": true, "documentation": true, "build": true,
	"builds": true, "release": true, "deploy": true, "deployment": true, "server": true,
	"servers": true, "client": true, "clients": true, "customer": true, "customers": true,
	"vendor": true, "vendors": true, "staff": true, "budget": true,
	"invoice": true, "invoices": true, "report": true, "reports": true, "deck": true,
	"code": true, "database": true, "migration": true, "bug": true, "bugs": true,
	"feature": true, "features": true, "issue": true, "issues": true, "project": true,
	"meeting": true, "meetings": true, "call": true, "email": true, "follow": true,
	"decision": true, "decisions": true, "question": true, "questions": true, "blocker": true,
	"blockers": true, "risk": true, "risks": true, "goal": true, "goals": true,
	"everything": true, "nothing": true, "something": true, "people": true, "folks": true,
	"there": true, "these": true, "those": true, "each": true, "both": true,
}

var generic = map[string]bool{
	"i": true, "me": true, "my": true, "myself": true, "we": true, "us": true, "our": true,
	"you": true, "your": true, "he": true, "him": true, "she": true, "her": true,
	"they": true, "them": true, "it": true, "this": true, "that": true, "who": true,
	"someone": true, "somebody": true, "anyone": true, "anybody": true,
	"everyone": true, "everybody": true, "nobody": true, "all": true, "team": true,
	"user": true, "self": true, "unassigned": true, "unknown": true, "none": true,
	"n/a": true, "na": true, "tbd": true, "the": true,
	// Header and label words that look like "Name:" prefixes.
	"todo": true, "note": true, "notes": true, "action": true, "item": true, "items": true,
	"re": true, "fw": true, "fwd": true, "subject": true, "from": true, "to": true, "cc": true,
	"date": true, "update": true, "reminder": true, "fyi": true, "ps": true, "important": true,
	"task": true, "tasks": true, "context": true, "title": true, "description": true,
	"next": true, "steps": true, "agenda": true, "summary": true,
}

// isGeneric reports whether every token of s is a pronoun or label word.
func isGeneric(s string) bool {
	if generic[strings.ToLower(strings.TrimSpace(s))] {
		return true
	}
	toks := tokenize(s)
	if len(toks) == 0 {
		return true
	}
	for _, t := range toks {
		if !generic[t] {
			return false
		}
	}
	return true
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsSeq(hay, needle []string) bool {
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j := range needle {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
