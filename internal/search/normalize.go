package search

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinQueryLength is the shortest query that reaches the backend
	MinQueryLength = 2
	// MaxQueryLength is the longest accepted query
	MaxQueryLength = 100
)

var disallowedChars = regexp.MustCompile(`[^\w\s-]`)

// Normalize strips characters outside word characters, hyphen and whitespace,
// lowercases and collapses runs of whitespace.
func Normalize(raw string) string {
	q := disallowedChars.ReplaceAllString(raw, "")
	q = strings.ToLower(q)
	return strings.Join(strings.Fields(q), " ")
}

// Valid reports whether a normalized query's length is within bounds
func Valid(query string, minLen, maxLen int) bool {
	n := utf8.RuneCountInString(query)
	return n >= minLen && n <= maxLen
}
