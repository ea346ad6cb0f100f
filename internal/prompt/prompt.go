// Package prompt renders the system prompt sent to the extraction model.
package prompt

import (
	"fmt"
	"strings"
)

const (
	// UserNamePlaceholder is replaced by the user's canonical name.
	UserNamePlaceholder = "{userName}"
	// NameVariationsPlaceholder is replaced by an alias clause, or nothing.
	NameVariationsPlaceholder = "{nameVariations}"
)

// DefaultSystemTemplate asks for the JSON shape the normalizer understands.
const DefaultSystemTemplate = `You extract action items from text written to or by {userName}{nameVariations}.

Return only JSON of the form:
{"tasks": [{"title": "...", "description": "...", "context": "...", "assignee": "...", "confidence": 0.0}]}

Rules:
- Include only concrete actions someone has to take.
- "title" is a short imperative phrase. "context" quotes or summarizes the sentence the action came from.
- "assignee" is the person expected to do it, or "" if unclear.
- "confidence" is between 0 and 1 and reflects how sure you are that this is a real task for {userName}.
- If there are no action items, return {"tasks": []}.`

// Build substitutes the name placeholders in template. Entries of variants
// equal to userName (ignoring case) and duplicates are left out of the
// alias clause. An empty userName takes the first variant.
func Build(template, userName string, variants []string) string {
	userName = strings.TrimSpace(userName)
	if userName == "" && len(variants) > 0 {
		userName = strings.TrimSpace(variants[0])
	}

	r := strings.NewReplacer(
		UserNamePlaceholder, userName,
		NameVariationsPlaceholder, Variations(userName, variants),
	)
	return r.Replace(template)
}

// Variations renders ` (also referred to as "A", "B")` for the aliases of
// userName, or "" when there are none.
func Variations(userName string, variants []string) string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(userName)): true}
	quoted := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	if len(quoted) == 0 {
		return ""
	}
	return " (also referred to as " + strings.Join(quoted, ", ") + ")"
}
