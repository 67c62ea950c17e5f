package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fabienpiette/wanderlust/internal/query"
	"github.com/fabienpiette/wanderlust/internal/search"
)

// MockCollection is a mock implementation of query.Collection
type MockCollection struct {
	mock.Mock
	CollectionName string
}

func (m *MockCollection) Name() string {
	return m.CollectionName
}

func (m *MockCollection) Find(ctx context.Context, filter map[string]any, opts query.FindOptions) ([]query.Document, error) {
	args := m.Called(ctx, filter, opts)
	if docs := args.Get(0); docs != nil {
		return docs.([]query.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCollection) Aggregate(ctx context.Context, p query.Pipeline) ([]query.Document, error) {
	args := m.Called(ctx, p)
	if docs := args.Get(0); docs != nil {
		return docs.([]query.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBackend is a mock implementation of search.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Search(ctx context.Context, q string, opts search.Options) ([]search.Record, error) {
	args := m.Called(ctx, q, opts)
	if records := args.Get(0); records != nil {
		return records.([]search.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

// TestRecords returns a small fixed result set for search tests
func TestRecords() []search.Record {
	return []search.Record{
		{
			ID:          1,
			Title:       "Montmartre Artist Loft",
			Description: "Sunlit loft a short walk from Sacre-Coeur and the Paris cafes",
			Location:    "Paris",
			Country:     "France",
			Category:    "city",
			Price:       185,
			Rating:      4.7,
		},
		{
			ID:          2,
			Title:       "Paris Riverside Studio",
			Description: "Compact studio on the Seine with views of Notre-Dame",
			Location:    "Paris",
			Country:     "France",
			Category:    "city",
			Price:       140,
			Rating:      4.4,
		},
	}
}

// TestDocuments returns listing documents shaped like the store's output
func TestDocuments() []query.Document {
	return []query.Document{
		{"id": int64(4), "title": "Amalfi Cliffside Villa", "country": "Italy", "category": "beach", "price": 420.0, "rating": 4.9},
		{"id": int64(3), "title": "Trastevere Terrace Flat", "country": "Italy", "category": "culture", "price": 120.0, "rating": 4.6},
	}
}
