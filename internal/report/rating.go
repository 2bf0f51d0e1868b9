package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScaleEntry maps an answer substring to a value on the rating scale.
type ScaleEntry struct {
	Key   string
	Value int
}

// Scale infers a rating from option answer text for options that carry no
// explicit weight. Entries are matched case-insensitively as substrings,
// longest key first, so "very poor" wins over "poor".
type Scale []ScaleEntry

// DefaultScale is the five-point scale used by the feedback forms.
var DefaultScale = NewScale([]ScaleEntry{
	{Key: "excellent", Value: 5},
	{Key: "good", Value: 4},
	{Key: "average", Value: 3},
	{Key: "poor", Value: 2},
	{Key: "very poor", Value: 1},
})

// NewScale returns the entries as a Scale, with keys lower-cased and ordered
// longest first.
func NewScale(entries []ScaleEntry) Scale {
	s := make(Scale, len(entries))
	for i, e := range entries {
		s[i] = ScaleEntry{Key: strings.ToLower(strings.TrimSpace(e.Key)), Value: e.Value}
	}
	sort.SliceStable(s, func(i, j int) bool { return len(s[i].Key) > len(s[j].Key) })
	return s
}

// ParseScale builds a Scale from "label=value" pairs such as "excellent=5".
func ParseScale(pairs []string) (Scale, error) {
	entries := make([]ScaleEntry, 0, len(pairs))
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("rating scale entry %q: want label=value", p)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("rating scale entry %q: %w", p, err)
		}
		entries = append(entries, ScaleEntry{Key: key, Value: n})
	}
	return NewScale(entries), nil
}

// Lookup returns the value of the first entry whose key occurs in answer.
func (s Scale) Lookup(answer string) (int, bool) {
	lower := strings.ToLower(answer)
	for _, e := range s {
		if e.Key != "" && strings.Contains(lower, e.Key) {
			return e.Value, true
		}
	}
	return 0, false
}

// Rate returns the rating of a chosen option. An explicit weight takes
// precedence over the text lookup.
func (s Scale) Rate(weight *int, answer string) (int, bool) {
	if weight != nil {
		return *weight, true
	}
	return s.Lookup(answer)
}
