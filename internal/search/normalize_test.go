package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trim and lowercase", "  Paris  ", "paris"},
		{"collapse whitespace", "new \t york   city", "new york city"},
		{"strip punctuation", "Paris!! Hotels?", "paris hotels"},
		{"keep hyphen and underscore", "Saint-Tropez_beach", "saint-tropez_beach"},
		{"punctuation between words", "rome , italy", "rome italy"},
		{"only symbols", "!!! ???", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name  string
		query string
		valid bool
	}{
		{"empty", "", false},
		{"one char", "a", false},
		{"two chars", "ab", true},
		{"max length", strings.Repeat("a", MaxQueryLength), true},
		{"too long", strings.Repeat("a", MaxQueryLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, Valid(tt.query, MinQueryLength, MaxQueryLength))
		})
	}
}
