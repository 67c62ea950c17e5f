package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		record   Record
		clicks   int
		expected float64
	}{
		{
			name:     "exact title",
			query:    "paris",
			record:   Record{Title: "Paris"},
			expected: 15,
		},
		{
			name:     "title substring",
			query:    "paris",
			record:   Record{Title: "Paris Loft"},
			expected: 10,
		},
		{
			name:     "description and location",
			query:    "paris",
			record:   Record{Title: "Loft", Description: "Close to central Paris", Location: "Paris, France"},
			expected: 12,
		},
		{
			name:     "rating",
			query:    "rome",
			record:   Record{Title: "Villa", Rating: 4},
			expected: 2,
		},
		{
			name:     "clicks",
			query:    "rome",
			record:   Record{Title: "Villa"},
			clicks:   5,
			expected: 0.5,
		},
		{
			name:     "click boost is capped",
			query:    "rome",
			record:   Record{Title: "Villa"},
			clicks:   500,
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Score(tt.query, tt.record, tt.clicks), 1e-9)
		})
	}
}

func TestHighlight(t *testing.T) {
	assert.Equal(t, "<mark>Paris</mark> in spring, <mark>paris</mark> in fall", Highlight("Paris in spring, paris in fall", "paris"))
	assert.Equal(t, "no match here", Highlight("no match here", "rome"))
	assert.Equal(t, "a.b", Highlight("a.b", ""))
	assert.Equal(t, "x <mark>a-b</mark>", Highlight("x a-b", "a-b"))
	assert.Equal(t, "&lt;script&gt;<mark>Rome</mark>&lt;/script&gt; &amp; co", Highlight("<script>Rome</script> & co", "rome"))
	assert.Equal(t, "&lt;b&gt;bold&lt;/b&gt;", Highlight("<b>bold</b>", ""))
}

func TestRank(t *testing.T) {
	records := []Record{
		{ID: 1, Title: "Budget Hostel", Location: "Lisbon", Rating: 3},
		{ID: 2, Title: "Lisbon", Rating: 4},
		{ID: 3, Title: "Lisbon Riverside Flat", Description: "Heart of lisbon", Rating: 5},
	}

	results := Rank("lisbon", records, "", nil)

	require.Len(t, results, 3)
	assert.Equal(t, int64(3), results[0].ID)
	assert.Equal(t, int64(2), results[1].ID)
	assert.Equal(t, int64(1), results[2].ID)

	for i, r := range results {
		assert.Equal(t, Tracking{Query: "lisbon", ResultID: r.ID, Rank: i + 1}, r.Tracking)
	}
	assert.Equal(t, "<mark>Lisbon</mark> Riverside Flat", results[0].HighlightedTitle)
	assert.Equal(t, "Heart of <mark>lisbon</mark>", results[0].HighlightedDescription)
}

func TestRank_ClicksBreakTies(t *testing.T) {
	records := []Record{
		{ID: 1, Title: "Tokyo Inn"},
		{ID: 2, Title: "Tokyo Inn"},
	}
	clicks := func(id int64) int {
		if id == 2 {
			return 10
		}
		return 0
	}

	results := Rank("tokyo", records, SortRelevance, clicks)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestRank_NonRelevanceSortKeepsBackendOrder(t *testing.T) {
	records := []Record{
		{ID: 1, Title: "Cheap"},
		{ID: 2, Title: "Oslo"},
	}

	results := Rank("oslo", records, SortPriceAsc, nil)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, 1, results[0].Tracking.Rank)
}

func TestRank_Empty(t *testing.T) {
	results := Rank("oslo", nil, "", nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
