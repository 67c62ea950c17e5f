package query

import (
	"context"
	"time"
)

// Document is one record returned by a collection
type Document map[string]any

// FindOptions shapes a plain find
type FindOptions struct {
	Sort  []SortKey
	Limit int
	Skip  int
}

// Collection is the storage backend the optimizer wraps
type Collection interface {
	// Name identifies the collection in metrics and cache keys.
	Name() string
	Find(ctx context.Context, filter map[string]any, opts FindOptions) ([]Document, error)
	Aggregate(ctx context.Context, pipeline Pipeline) ([]Document, error)
}

// Request selects either a filter (find) or a pipeline (aggregate). A
// non-empty Pipeline takes precedence.
type Request struct {
	Filter   map[string]any
	Pipeline Pipeline
}

// Options tunes a single ExecuteQuery call
type Options struct {
	SkipCache bool
	CacheTTL  time.Duration
	Sort      []SortKey
	Limit     int
	Skip      int
}
