package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// IndexDirection is the per-field kind of a suggested index
type IndexDirection string

const (
	// Ascending is used for equality, range and ascending sort fields
	Ascending IndexDirection = "1"
	// Descending mirrors a descending sort key
	Descending IndexDirection = "-1"
	// Text is suggested for fields filtered by a regular expression
	Text IndexDirection = "text"
)

// IndexField is one field of a suggested index
type IndexField struct {
	Field     string         `json:"field"`
	Direction IndexDirection `json:"direction"`
}

// IndexSuggestion is an index the observed queries would benefit from
type IndexSuggestion struct {
	Collection  string       `json:"collection"`
	Fields      []IndexField `json:"fields"`
	Reason      string       `json:"reason"`
	FirstSeen   time.Time    `json:"first_seen"`
	Occurrences int          `json:"occurrences"`
}

// Key is the suggestion's identity: collection plus ordered field spec
func (s IndexSuggestion) Key() string {
	return suggestionKey(s.Collection, s.Fields)
}

func suggestionKey(collection string, fields []IndexField) string {
	var b strings.Builder
	b.WriteString(collection)
	b.WriteByte('|')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Field)
		b.WriteByte(':')
		b.WriteString(string(f.Direction))
	}
	return b.String()
}

var rangeOperators = []string{"$gt", "$gte", "$lt", "$lte"}

// IndexAdvisor accumulates deduplicated index suggestions from the filter and
// sort shapes of executed queries.
type IndexAdvisor struct {
	mu          sync.RWMutex
	suggestions map[string]*IndexSuggestion
}

// NewIndexAdvisor creates an empty advisor
func NewIndexAdvisor() *IndexAdvisor {
	return &IndexAdvisor{
		suggestions: make(map[string]*IndexSuggestion),
	}
}

// Suggest records a suggestion and reports whether it was new
func (a *IndexAdvisor) Suggest(collection string, fields []IndexField, reason string, at time.Time) bool {
	if len(fields) == 0 {
		return false
	}

	key := suggestionKey(collection, fields)

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.suggestions[key]; ok {
		existing.Occurrences++
		return false
	}

	copied := make([]IndexField, len(fields))
	copy(copied, fields)
	a.suggestions[key] = &IndexSuggestion{
		Collection:  collection,
		Fields:      copied,
		Reason:      reason,
		FirstSeen:   at,
		Occurrences: 1,
	}
	return true
}

// ObservePipeline walks every Match and Sort stage of p
func (a *IndexAdvisor) ObservePipeline(collection string, p Pipeline, at time.Time) []IndexSuggestion {
	var added []IndexSuggestion
	for _, stage := range p {
		switch s := stage.(type) {
		case Match:
			added = append(added, a.ObserveMatch(collection, s.Conditions, at)...)
		case Sort:
			added = append(added, a.ObserveSort(collection, s.Keys, at)...)
		}
	}
	return added
}

// ObserveMatch derives suggestions from a match condition document and
// returns those that were new.
func (a *IndexAdvisor) ObserveMatch(collection string, conditions map[string]any, at time.Time) []IndexSuggestion {
	var added []IndexSuggestion

	for _, field := range sortedKeys(conditions) {
		value := conditions[field]

		switch field {
		case "$or":
			fields := unionFields(branches(value))
			if len(fields) == 0 {
				continue
			}
			indexFields := make([]IndexField, len(fields))
			names := make([]string, len(fields))
			for i, f := range fields {
				indexFields[i] = IndexField{Field: f, Direction: Ascending}
				names[i] = f
			}
			reason := fmt.Sprintf("$or across %s", strings.Join(names, ", "))
			if a.Suggest(collection, indexFields, reason, at) {
				added = append(added, a.lookup(collection, indexFields))
			}
			continue
		case "$and":
			for _, branch := range branches(value) {
				added = append(added, a.ObserveMatch(collection, branch, at)...)
			}
			continue
		}

		if strings.HasPrefix(field, "$") {
			continue
		}

		direction, reason := classifyCondition(field, value)
		indexFields := []IndexField{{Field: field, Direction: direction}}
		if a.Suggest(collection, indexFields, reason, at) {
			added = append(added, a.lookup(collection, indexFields))
		}
	}

	return added
}

// ObserveSort suggests an index matching the sort key order
func (a *IndexAdvisor) ObserveSort(collection string, keys []SortKey, at time.Time) []IndexSuggestion {
	if len(keys) == 0 {
		return nil
	}

	fields := make([]IndexField, len(keys))
	names := make([]string, len(keys))
	for i, k := range keys {
		dir := Ascending
		if k.Direction < 0 {
			dir = Descending
		}
		fields[i] = IndexField{Field: k.Field, Direction: dir}
		names[i] = k.Field
	}

	if a.Suggest(collection, fields, "sort on "+strings.Join(names, ", "), at) {
		return []IndexSuggestion{a.lookup(collection, fields)}
	}
	return nil
}

func (a *IndexAdvisor) lookup(collection string, fields []IndexField) IndexSuggestion {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return *a.suggestions[suggestionKey(collection, fields)]
}

// Suggestions returns all suggestions ordered by collection then first sighting
func (a *IndexAdvisor) Suggestions() []IndexSuggestion {
	a.mu.RLock()
	out := make([]IndexSuggestion, 0, len(a.suggestions))
	for _, s := range a.suggestions {
		out = append(out, *s)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Len returns the number of distinct suggestions
func (a *IndexAdvisor) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.suggestions)
}

// Prune drops suggestions first seen before cutoff
func (a *IndexAdvisor) Prune(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for key, s := range a.suggestions {
		if s.FirstSeen.Before(cutoff) {
			delete(a.suggestions, key)
			removed++
		}
	}
	return removed
}

// Reset drops every suggestion
func (a *IndexAdvisor) Reset() {
	a.mu.Lock()
	a.suggestions = make(map[string]*IndexSuggestion)
	a.mu.Unlock()
}

func classifyCondition(field string, value any) (IndexDirection, string) {
	switch v := value.(type) {
	case *regexp.Regexp:
		return Text, "text search on " + field
	case map[string]any:
		if _, ok := v["$regex"]; ok {
			return Text, "text search on " + field
		}
		for _, op := range rangeOperators {
			if _, ok := v[op]; ok {
				return Ascending, "range filter on " + field
			}
		}
		return Ascending, "operator filter on " + field
	default:
		return Ascending, "equality filter on " + field
	}
}

// branches normalizes the operand of $or / $and into condition documents
func branches(value any) []map[string]any {
	switch v := value.(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// unionFields lists the non-operator fields referenced by the branches in
// first-appearance order.
func unionFields(bs []map[string]any) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, branch := range bs {
		for _, f := range sortedKeys(branch) {
			if strings.HasPrefix(f, "$") || seen[f] {
				continue
			}
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
