package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fabienpiette/wanderlust/internal/search"
)

// DefaultMaxSearchResults caps a single backend search
const DefaultMaxSearchResults = 100

var searchColumns = []string{"title", "description", "location", "country", "category"}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListingSearch is the search backend over the listings table. Every query
// term must appear in at least one text column.
type ListingSearch struct {
	store      *Store
	maxResults int
}

// NewListingSearch creates the listing search backend
func NewListingSearch(s *Store, maxResults int) *ListingSearch {
	if maxResults <= 0 {
		maxResults = DefaultMaxSearchResults
	}
	return &ListingSearch{store: s, maxResults: maxResults}
}

var _ search.Backend = (*ListingSearch)(nil)

// Search implements search.Backend
func (l *ListingSearch) Search(ctx context.Context, q string, opts search.Options) ([]search.Record, error) {
	var conditions []string
	var args []interface{}

	for _, term := range strings.Fields(q) {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
		ors := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			ors[i] = fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col)
			args = append(args, pattern)
		}
		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
	}

	if opts.Category != "" {
		conditions = append(conditions, "LOWER(category) = LOWER(?)")
		args = append(args, opts.Category)
	}

	filterConds, filterArgs, err := filterClauses(opts.Filters)
	if err != nil {
		return nil, err
	}
	conditions = append(conditions, filterConds...)
	args = append(args, filterArgs...)

	stmt := `SELECT id, title, description, location, country, category, price, rating FROM listings`
	if len(conditions) > 0 {
		stmt += " WHERE " + strings.Join(conditions, " AND ")
	}
	stmt += " ORDER BY " + orderClause(opts.Sort) + " LIMIT ?"
	args = append(args, l.maxResults)

	rows, err := l.store.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer rows.Close()

	records := []search.Record{}
	for rows.Next() {
		var r search.Record
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.Location, &r.Country, &r.Category, &r.Price, &r.Rating); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func orderClause(sortOrder string) string {
	switch sortOrder {
	case search.SortPriceAsc:
		return "price ASC, id ASC"
	case search.SortPriceDesc:
		return "price DESC, id ASC"
	default:
		return "rating DESC, id ASC"
	}
}

// filterClauses validates the supported filters: country, min_price,
// max_price and min_rating
func filterClauses(filters map[string]string) ([]string, []interface{}, error) {
	var conditions []string
	var args []interface{}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(filters[key])
		if value == "" {
			continue
		}

		switch key {
		case "country":
			conditions = append(conditions, "LOWER(country) = LOWER(?)")
			args = append(args, value)
		case "min_price", "max_price", "min_rating":
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s must be a number", ErrInvalidFilter, key)
			}
			switch key {
			case "min_price":
				conditions = append(conditions, "price >= ?")
			case "max_price":
				conditions = append(conditions, "price <= ?")
			case "min_rating":
				conditions = append(conditions, "rating >= ?")
			}
			args = append(args, n)
		default:
			return nil, nil, fmt.Errorf("%w: unknown filter %q", ErrInvalidFilter, key)
		}
	}

	return conditions, args, nil
}
