package search

import (
	"html"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Relevance weights
const (
	titleMatchWeight       = 10.0
	exactTitleBonus        = 5.0
	descriptionMatchWeight = 5.0
	locationMatchWeight    = 7.0
	ratingWeight           = 0.5
	clickWeight            = 0.1
	maxClickBoost          = 2.0
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

// ClickCounter returns how often a result has been clicked
type ClickCounter func(resultID int64) int

// Score computes the relevance of r for a normalized query
func Score(query string, r Record, clicks int) float64 {
	score := 0.0

	title := strings.ToLower(r.Title)
	if strings.Contains(title, query) {
		score += titleMatchWeight
		if title == query {
			score += exactTitleBonus
		}
	}
	if strings.Contains(strings.ToLower(r.Description), query) {
		score += descriptionMatchWeight
	}
	if strings.Contains(strings.ToLower(r.Location), query) {
		score += locationMatchWeight
	}

	score += ratingWeight * r.Rating
	score += math.Min(clickWeight*float64(clicks), maxClickBoost)

	return score
}

// Highlight HTML-escapes text and wraps every case-insensitive occurrence of
// query in <mark> tags
func Highlight(text, query string) string {
	escaped := html.EscapeString(text)
	if query == "" || text == "" {
		return escaped
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(html.EscapeString(query)))
	if err != nil {
		return escaped
	}
	return re.ReplaceAllString(escaped, markOpen+"${0}"+markClose)
}

// Rank scores and highlights records. With SortRelevance (or no sort) the
// results are ordered by descending score; other orders keep the backend's.
func Rank(query string, records []Record, sortOrder string, clicks ClickCounter) []Result {
	results := make([]Result, len(records))
	for i, r := range records {
		n := 0
		if clicks != nil {
			n = clicks(r.ID)
		}
		results[i] = Result{
			Record:                 r,
			Score:                  Score(query, r, n),
			HighlightedTitle:       Highlight(r.Title, query),
			HighlightedDescription: Highlight(r.Description, query),
		}
	}

	if sortOrder == "" || sortOrder == SortRelevance {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}

	for i := range results {
		results[i].Tracking = Tracking{
			Query:    query,
			ResultID: results[i].ID,
			Rank:     i + 1,
		}
	}

	return results
}
