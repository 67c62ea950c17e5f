package search

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// SuggestionKind names the strategy that produced a suggestion
type SuggestionKind string

const (
	KindFuzzy        SuggestionKind = "fuzzy"
	KindPopular      SuggestionKind = "popular"
	KindAutocomplete SuggestionKind = "autocomplete"
	KindCategory     SuggestionKind = "category"
)

const (
	// MaxSuggestions caps every suggestion list
	MaxSuggestions = 8
	// DefaultFuzzyThreshold is the minimum similarity for a fuzzy match
	DefaultFuzzyThreshold = 0.8

	minFuzzyQueryLength    = 3
	popularConfidence      = 0.9
	autocompleteConfidence = 0.7
	categoryBaseConfidence = 0.5
	categoryOverlapStep    = 0.1
	categoryMaxConfidence  = 0.9
	popularityDivisor      = 100.0
	maxPopularityBoost     = 0.3
	exactMatchBonus        = 0.5
	prefixMatchBonus       = 0.3
)

var autocompleteSuffixes = []string{"hotels", "attractions", "restaurants", "weather"}

// Suggestion is a ranked query proposal
type Suggestion struct {
	Text       string         `json:"text"`
	Kind       SuggestionKind `json:"kind"`
	Confidence float64        `json:"confidence"`
	Popularity int            `json:"popularity"`
	Score      float64        `json:"score"`
}

// Category maps a travel theme to the keywords that evoke it
type Category struct {
	Name     string   `json:"name"`
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

// DefaultVocabulary is matched against for typo correction
var DefaultVocabulary = []string{
	"amsterdam", "athens", "bangkok", "barcelona", "berlin", "budapest",
	"cairo", "dubai", "florence", "istanbul", "kyoto", "lisbon", "london",
	"madrid", "marrakech", "new york", "paris", "prague", "reykjavik",
	"rome", "santorini", "sydney", "tokyo", "venice", "vienna",
	"hotels", "hostels", "resorts", "restaurants", "attractions", "museums",
	"beaches", "weather", "tours", "nightlife",
}

// DefaultCategories is the fixed category table
var DefaultCategories = []Category{
	{Name: "beach", Text: "beach getaways", Keywords: []string{"beach", "beaches", "sea", "coast", "island", "surf", "sand", "sun"}},
	{Name: "city", Text: "city breaks", Keywords: []string{"city", "downtown", "urban", "shopping", "nightlife", "skyline"}},
	{Name: "mountain", Text: "mountain retreats", Keywords: []string{"mountain", "mountains", "hiking", "ski", "alps", "trek", "cabin"}},
	{Name: "culture", Text: "cultural tours", Keywords: []string{"museum", "museums", "history", "art", "heritage", "temple", "castle"}},
	{Name: "food", Text: "food and wine trips", Keywords: []string{"food", "wine", "restaurant", "restaurants", "cuisine", "tasting", "market"}},
	{Name: "nature", Text: "nature escapes", Keywords: []string{"nature", "park", "wildlife", "forest", "lake", "safari", "camping"}},
}

// Suggester generates suggestions from the four strategies
type Suggester struct {
	vocabulary     []string
	categories     []Category
	fuzzyThreshold float64
	typoTolerance  bool
}

// NewSuggester creates a suggester. Nil vocabulary or categories fall back to
// the defaults.
func NewSuggester(vocabulary []string, categories []Category, fuzzyThreshold float64, typoTolerance bool) *Suggester {
	if vocabulary == nil {
		vocabulary = DefaultVocabulary
	}
	if categories == nil {
		categories = DefaultCategories
	}
	if fuzzyThreshold <= 0 || fuzzyThreshold > 1 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	return &Suggester{
		vocabulary:     vocabulary,
		categories:     categories,
		fuzzyThreshold: fuzzyThreshold,
		typoTolerance:  typoTolerance,
	}
}

// Similarity is 1 - editDistance(a, b) / max(len(a), len(b))
func Similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Suggest merges, deduplicates, scores and truncates suggestions for a
// normalized query. popularity maps past queries to their search counts.
func (s *Suggester) Suggest(query string, popularity map[string]int, limit int) []Suggestion {
	if limit <= 0 || limit > MaxSuggestions {
		limit = MaxSuggestions
	}

	var candidates []Suggestion
	candidates = append(candidates, s.fuzzy(query)...)
	candidates = append(candidates, s.popular(query, popularity)...)
	candidates = append(candidates, s.autocomplete(query)...)
	candidates = append(candidates, s.category(query)...)

	merged := dedupe(candidates)
	for i := range merged {
		merged[i].Popularity = popularity[merged[i].Text]
		merged[i].Score = score(query, merged[i])
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].Text != merged[j].Text {
			return merged[i].Text < merged[j].Text
		}
		return merged[i].Kind < merged[j].Kind
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func (s *Suggester) fuzzy(query string) []Suggestion {
	if !s.typoTolerance || utf8.RuneCountInString(query) < minFuzzyQueryLength {
		return nil
	}

	var out []Suggestion
	for _, word := range s.vocabulary {
		if word == query {
			continue
		}
		if sim := Similarity(query, word); sim >= s.fuzzyThreshold {
			out = append(out, Suggestion{Text: word, Kind: KindFuzzy, Confidence: sim})
		}
	}
	return out
}

func (s *Suggester) popular(query string, popularity map[string]int) []Suggestion {
	var out []Suggestion
	for past := range popularity {
		if past != query && strings.Contains(past, query) {
			out = append(out, Suggestion{Text: past, Kind: KindPopular, Confidence: popularConfidence})
		}
	}
	return out
}

func (s *Suggester) autocomplete(query string) []Suggestion {
	out := make([]Suggestion, 0, len(autocompleteSuffixes))
	for _, suffix := range autocompleteSuffixes {
		if strings.HasSuffix(query, " "+suffix) || query == suffix {
			continue
		}
		out = append(out, Suggestion{
			Text:       query + " " + suffix,
			Kind:       KindAutocomplete,
			Confidence: autocompleteConfidence,
		})
	}
	return out
}

func (s *Suggester) category(query string) []Suggestion {
	words := strings.Fields(query)

	var out []Suggestion
	for _, c := range s.categories {
		overlap := 0
		for _, w := range words {
			for _, k := range c.Keywords {
				if w == k {
					overlap++
					break
				}
			}
		}
		if overlap == 0 {
			continue
		}
		confidence := math.Min(categoryBaseConfidence+categoryOverlapStep*float64(overlap), categoryMaxConfidence)
		out = append(out, Suggestion{Text: c.Text, Kind: KindCategory, Confidence: confidence})
	}
	return out
}

// dedupe keeps one suggestion per (Text, Kind), the most confident one
func dedupe(in []Suggestion) []Suggestion {
	type key struct {
		text string
		kind SuggestionKind
	}

	index := make(map[key]int, len(in))
	out := make([]Suggestion, 0, len(in))
	for _, s := range in {
		k := key{s.Text, s.Kind}
		if i, ok := index[k]; ok {
			if s.Confidence > out[i].Confidence {
				out[i] = s
			}
			continue
		}
		index[k] = len(out)
		out = append(out, s)
	}
	return out
}

func score(query string, s Suggestion) float64 {
	total := s.Confidence + math.Min(float64(s.Popularity)/popularityDivisor, maxPopularityBoost)
	if s.Text == query {
		total += exactMatchBonus
	} else if strings.HasPrefix(s.Text, query) {
		total += prefixMatchBonus
	}
	return total
}
