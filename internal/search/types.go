package search

import (
	"context"
	"errors"
)

// ErrSearchTimeout is returned when an admitted backend call outlives the
// request timeout
var ErrSearchTimeout = errors.New("search timeout")

// Backend executes a normalized query against the listing data
type Backend interface {
	Search(ctx context.Context, query string, opts Options) ([]Record, error)
}

// BackendFunc adapts a function to the Backend interface
type BackendFunc func(ctx context.Context, query string, opts Options) ([]Record, error)

// Search calls f
func (f BackendFunc) Search(ctx context.Context, query string, opts Options) ([]Record, error) {
	return f(ctx, query, opts)
}

// Sort orders understood by the optimizer. Anything other than SortRelevance
// keeps the backend's ordering.
const (
	SortRelevance = "relevance"
	SortRating    = "rating"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
)

// Options are the caller-controlled search parameters
type Options struct {
	Category       string            `json:"category,omitempty"`
	Sort           string            `json:"sort,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`
	SessionID      string            `json:"-"`
	MaxSuggestions int               `json:"-"`
	SkipCache      bool              `json:"-"`
}

// Record is a raw backend hit
type Record struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Country     string  `json:"country"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating"`
}

// Tracking is attached to each result so clicks can be attributed
type Tracking struct {
	Query    string `json:"query"`
	ResultID int64  `json:"result_id"`
	Rank     int    `json:"rank"`
}

// Result is a ranked, highlighted record
type Result struct {
	Record
	Score                  float64  `json:"score"`
	HighlightedTitle       string   `json:"highlighted_title"`
	HighlightedDescription string   `json:"highlighted_description"`
	Tracking               Tracking `json:"tracking"`
}

// Response is what ExecuteSearch returns
type Response struct {
	Query           string       `json:"query"`
	Results         []Result     `json:"results"`
	Suggestions     []Suggestion `json:"suggestions"`
	Cached          bool         `json:"cached"`
	ExecutionTimeMS float64      `json:"execution_time_ms"`
	TotalFound      int          `json:"total_found"`
}

func emptyResponse(query string) *Response {
	return &Response{
		Query:       query,
		Results:     []Result{},
		Suggestions: []Suggestion{},
	}
}
