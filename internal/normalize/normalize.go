// Package normalize turns raw model output into candidate tasks.
//
// Model output is untrusted: it may be wrapped in markdown fences, preceded
// by prose, truncated, or not JSON at all. Normalize never fails; anything
// it cannot make sense of is an Empty result.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultConfidence is used when the model omits confidence or sends
// something unparseable.
const DefaultConfidence = 0.7

// Outcome says whether anything usable was decoded.
type Outcome int

const (
	// Empty means no candidate tasks were found.
	Empty Outcome = iota
	// Decoded means at least one candidate task was found.
	Decoded
)

func (o Outcome) String() string {
	if o == Decoded {
		return "decoded"
	}
	return "empty"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "decoded":
		*o = Decoded
	case "empty", "":
		*o = Empty
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// CandidateTask is one action item proposed by the model.
type CandidateTask struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Context     string  `json:"context,omitempty"`
	Assignee    string  `json:"assignee,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Result is the normalizer output. Tasks is empty iff Outcome is Empty.
type Result struct {
	Outcome Outcome
	Tasks   []CandidateTask
}

type rawTask struct {
	Title       string
	Description string
	Context     string
	Assignee    string
	Confidence  json.RawMessage
}

// Normalize decodes raw into candidate tasks. It accepts an object with a
// "tasks" array or a single task object. A bare top-level array is not
// accepted.
func Normalize(raw string) Result {
	body := stripFence(strings.TrimSpace(raw))
	if body == "" || body[0] == '[' {
		return Result{Outcome: Empty}
	}

	obj, ok := decodeObject(body)
	if !ok {
		// Prose around an unfenced object.
		start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}')
		if start < 0 || end <= start {
			return Result{Outcome: Empty}
		}
		if obj, ok = decodeObject(body[start : end+1]); !ok {
			return Result{Outcome: Empty}
		}
	}

	var entries []rawTask
	if list, has := obj["tasks"]; has {
		var items []json.RawMessage
		if err := json.Unmarshal(list, &items); err != nil {
			return Result{Outcome: Empty}
		}
		for _, item := range items {
			if o, ok := decodeObject(string(item)); ok {
				entries = append(entries, fromObject(o))
			}
		}
	} else {
		entries = []rawTask{fromObject(obj)}
	}

	tasks := make([]CandidateTask, 0, len(entries))
	for _, e := range entries {
		t := CandidateTask{
			Title:       strings.TrimSpace(e.Title),
			Description: strings.TrimSpace(e.Description),
			Context:     strings.TrimSpace(e.Context),
			Assignee:    strings.TrimSpace(e.Assignee),
			Confidence:  parseConfidence(e.Confidence),
		}
		if t.Title == "" && t.Description == "" {
			continue
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 {
		return Result{Outcome: Empty}
	}
	return Result{Outcome: Decoded, Tasks: tasks}
}

// decodeObject decodes s as a single JSON object.
func decodeObject(s string) (map[string]json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// fromObject rebuilds a task from decoded fields, tolerating fields of
// the wrong type by leaving them empty.
func fromObject(obj map[string]json.RawMessage) rawTask {
	str := func(key string) string {
		var v string
		_ = json.Unmarshal(obj[key], &v)
		return v
	}
	return rawTask{
		Title:       str("title"),
		Description: str("description"),
		Context:     str("context"),
		Assignee:    str("assignee"),
		Confidence:  obj["confidence"],
	}
}

// stripFence returns the body of the first markdown code fence in s, with
// or without a language tag. Text without a fence is returned unchanged.
func stripFence(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	rest := s[open+3:]
	// Drop the language tag line, if any.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(rest[:nl]); tag == "" || isLangTag(tag) {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isLangTag(s string) bool {
	if s == "" || len(s) > 16 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '+') {
			return false
		}
	}
	return true
}

// parseConfidence accepts a JSON number or numeric string and clamps it to
// [0,1].
func parseConfidence(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return DefaultConfidence
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return DefaultConfidence
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return DefaultConfidence
		}
	}
	if math.IsNaN(v) {
		return DefaultConfidence
	}
	return Clamp(v)
}

// Clamp limits v to [0,1].
func Clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
