// Package store exposes the SQLite tables as document collections for the
// query optimizer and as the listing search backend.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fabienpiette/wanderlust/internal/query"
)

const (
	Listings = "listings"
	Reviews  = "reviews"
)

var (
	// ErrUnknownCollection is returned for names outside the schema
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrUnsupportedStage is returned for pipeline stages the store cannot run
	ErrUnsupportedStage = errors.New("unsupported pipeline stage")
	// ErrInvalidFilter is returned for malformed search filters
	ErrInvalidFilter = errors.New("invalid search filter")
)

// schema lists the columns of every table served as a collection
var schema = map[string][]string{
	Listings: {"id", "title", "description", "location", "country", "category", "price", "rating", "review_count", "created_at"},
	Reviews:  {"id", "listing_id", "author", "rating", "comment", "created_at"},
}

// Store hands out collections backed by one database handle
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// New creates a store over db
func New(db *sql.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{db: db, logger: logger}
}

// Collection returns the named collection
func (s *Store) Collection(name string) (*Collection, error) {
	columns, ok := schema[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return &Collection{store: s, name: name, columns: columns}, nil
}

// MustCollection is Collection for names known at compile time
func (s *Store) MustCollection(name string) *Collection {
	c, err := s.Collection(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Health checks the underlying connection
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ query.Collection = (*Collection)(nil)
