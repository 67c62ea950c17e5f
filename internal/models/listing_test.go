package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabienpiette/wanderlust/internal/query"
)

func float(v float64) *float64 { return &v }

func TestListingFilter_Conditions(t *testing.T) {
	tests := []struct {
		name   string
		filter ListingFilter
		want   map[string]any
	}{
		{
			name:   "empty",
			filter: ListingFilter{},
			want:   map[string]any{},
		},
		{
			name:   "equality fields",
			filter: ListingFilter{Country: "Italy", Category: "Beach", Location: "Positano"},
			want:   map[string]any{"country": "Italy", "category": "beach", "location": "Positano"},
		},
		{
			name:   "price range",
			filter: ListingFilter{MinPrice: float(100), MaxPrice: float(250)},
			want:   map[string]any{"price": map[string]any{"$gte": 100.0, "$lte": 250.0}},
		},
		{
			name:   "min rating",
			filter: ListingFilter{MinRating: float(4.5)},
			want:   map[string]any{"rating": map[string]any{"$gte": 4.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Conditions())
		})
	}
}

func TestListingFilter_SortAndValidate(t *testing.T) {
	assert.Equal(t, -1, ListingFilter{}.SortDirection())
	assert.Equal(t, 1, ListingFilter{SortOrder: "asc"}.SortDirection())

	assert.NoError(t, ListingFilter{MinPrice: float(10), MaxPrice: float(10)}.Validate())
	assert.ErrorIs(t, ListingFilter{MinPrice: float(300), MaxPrice: float(100)}.Validate(), ErrInvalidInput)
}

func TestListingFromDocument(t *testing.T) {
	doc := query.Document{
		"id":           int64(1),
		"title":        "Montmartre Artist Loft",
		"location":     "Paris",
		"country":      "France",
		"category":     "city",
		"price":        185.0,
		"rating":       4.7,
		"review_count": int64(3),
		"created_at":   "2026-01-02T03:04:05Z",
		"reviews": []query.Document{
			{"id": int64(10), "listing_id": int64(1), "author": "camille", "rating": int64(5), "comment": "Beautiful light"},
		},
	}

	l := ListingFromDocument(doc)

	assert.Equal(t, int64(1), l.ID)
	assert.Equal(t, "Montmartre Artist Loft", l.Title)
	assert.Equal(t, 185.0, l.Price)
	assert.Equal(t, 3, l.ReviewCount)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), l.CreatedAt)
	require.Len(t, l.Reviews, 1)
	assert.Equal(t, "camille", l.Reviews[0].Author)
	assert.Equal(t, 5, l.Reviews[0].Rating)
}

func TestListingFromDocument_Tolerant(t *testing.T) {
	l := ListingFromDocument(query.Document{"id": "not a number", "price": "free", "created_at": "yesterday"})

	assert.Zero(t, l.ID)
	assert.Zero(t, l.Price)
	assert.True(t, l.CreatedAt.IsZero())
	assert.Nil(t, l.Reviews)

	l = ListingFromDocument(query.Document{"created_at": "2026-01-02 03:04:05"})
	assert.Equal(t, 2026, l.CreatedAt.Year())
}
