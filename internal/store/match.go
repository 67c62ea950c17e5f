package store

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fabienpiette/wanderlust/internal/query"
)

// Matches reports whether doc satisfies every condition
func Matches(doc query.Document, conditions map[string]any) bool {
	for field, want := range conditions {
		switch field {
		case "$or":
			if !anyBranch(doc, want) {
				return false
			}
		case "$and":
			for _, branch := range branchList(want) {
				if !Matches(doc, branch) {
					return false
				}
			}
		case "$nor":
			if anyBranch(doc, want) {
				return false
			}
		default:
			got, exists := lookupPath(doc, field)
			if !matchValue(got, exists, want) {
				return false
			}
		}
	}
	return true
}

func anyBranch(doc query.Document, value any) bool {
	for _, branch := range branchList(value) {
		if Matches(doc, branch) {
			return true
		}
	}
	return false
}

func branchList(value any) []map[string]any {
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
	}
	return nil
}

// lookupPath resolves dotted paths through nested documents
func lookupPath(doc query.Document, path string) (any, bool) {
	var current any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch v := current.(type) {
		case map[string]any:
			m = v
		case query.Document:
			m = v
		default:
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func isOperatorDoc(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func matchValue(got any, exists bool, want any) bool {
	switch w := want.(type) {
	case *regexp.Regexp:
		s, ok := got.(string)
		return ok && w.MatchString(s)
	case map[string]any:
		if isOperatorDoc(w) {
			return matchOperators(got, exists, w)
		}
	}
	return exists && equalValues(got, want)
}

func matchOperators(got any, exists bool, ops map[string]any) bool {
	for op, arg := range ops {
		switch op {
		case "$eq":
			if !exists || !equalValues(got, arg) {
				return false
			}
		case "$ne":
			if exists && equalValues(got, arg) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !exists {
				return false
			}
			c, ok := compareValues(got, arg)
			if !ok {
				return false
			}
			switch op {
			case "$gt":
				if c <= 0 {
					return false
				}
			case "$gte":
				if c < 0 {
					return false
				}
			case "$lt":
				if c >= 0 {
					return false
				}
			case "$lte":
				if c > 0 {
					return false
				}
			}
		case "$in":
			if !exists || !inList(got, arg) {
				return false
			}
		case "$nin":
			if exists && inList(got, arg) {
				return false
			}
		case "$exists":
			want, _ := arg.(bool)
			if exists != want {
				return false
			}
		case "$regex":
			if !matchRegex(got, arg, ops["$options"]) {
				return false
			}
		case "$options":
			// consumed by $regex
		default:
			return false
		}
	}
	return true
}

func matchRegex(got, pattern, options any) bool {
	s, ok := got.(string)
	if !ok {
		return false
	}

	var re *regexp.Regexp
	switch p := pattern.(type) {
	case *regexp.Regexp:
		re = p
	case string:
		flags := ""
		if o, ok := options.(string); ok && strings.Contains(o, "i") {
			flags = "(?i)"
		}
		compiled, err := regexp.Compile(flags + p)
		if err != nil {
			return false
		}
		re = compiled
	default:
		return false
	}
	return re.MatchString(s)
}

func inList(got, list any) bool {
	v := reflect.ValueOf(list)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if equalValues(got, v.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders numbers, strings and times. ok is false for
// incomparable pairs.
func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

// sortDocuments orders docs by keys. Missing or incomparable values sort
// before present ones in ascending order.
func sortDocuments(docs []query.Document, keys []query.SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			c := compareForSort(docs[i], docs[j], k.Field)
			if c == 0 {
				continue
			}
			if k.Direction < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareForSort(a, b query.Document, field string) int {
	av, aok := lookupPath(a, field)
	bv, bok := lookupPath(b, field)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if c, ok := compareValues(av, bv); ok {
		return c
	}
	return strings.Compare(fmt.Sprint(av), fmt.Sprint(bv))
}

func window(docs []query.Document, skip, limit int) []query.Document {
	if skip > 0 {
		if skip >= len(docs) {
			return []query.Document{}
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
