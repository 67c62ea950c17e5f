package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/fabienpiette/wanderlust/internal/query"
)

// Listing is a bookable stay
type Listing struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Country     string    `json:"country"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	CreatedAt   time.Time `json:"created_at"`

	Reviews []Review `json:"reviews,omitempty"`
}

// Review is a guest review of a listing
type Review struct {
	ID        int64     `json:"id"`
	ListingID int64     `json:"listing_id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ListingFilter holds the query parameters of a listing browse request
type ListingFilter struct {
	Country   string   `form:"country"`
	Category  string   `form:"category"`
	Location  string   `form:"location"`
	MinPrice  *float64 `form:"min_price" binding:"omitempty,min=0"`
	MaxPrice  *float64 `form:"max_price" binding:"omitempty,min=0"`
	MinRating *float64 `form:"min_rating" binding:"omitempty,min=0,max=5"`
	SortBy    string   `form:"sort_by" binding:"omitempty,oneof=price rating review_count created_at title"`
	SortOrder string   `form:"sort_order" binding:"omitempty,oneof=asc desc"`
	Limit     int      `form:"limit,default=20" binding:"min=1,max=100"`
	Offset    int      `form:"offset" binding:"min=0"`
}

// Conditions turns the filter into document match conditions
func (f ListingFilter) Conditions() map[string]any {
	conditions := map[string]any{}

	if f.Country != "" {
		conditions["country"] = f.Country
	}
	if f.Category != "" {
		conditions["category"] = strings.ToLower(f.Category)
	}
	if f.Location != "" {
		conditions["location"] = f.Location
	}

	price := map[string]any{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		conditions["price"] = price
	}

	if f.MinRating != nil {
		conditions["rating"] = map[string]any{"$gte": *f.MinRating}
	}

	return conditions
}

// SortDirection returns 1 for ascending and -1 for descending. Descending is
// the default.
func (f ListingFilter) SortDirection() int {
	if f.SortOrder == "asc" {
		return 1
	}
	return -1
}

// Validate checks cross-field constraints binding tags cannot express
func (f ListingFilter) Validate() error {
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return fmt.Errorf("%w: min_price exceeds max_price", ErrInvalidInput)
	}
	return nil
}

// ListingFromDocument converts a store document into a Listing. Unknown or
// mistyped fields are left zero.
func ListingFromDocument(doc map[string]any) Listing {
	l := Listing{
		ID:          asInt64(doc["id"]),
		Title:       asString(doc["title"]),
		Description: asString(doc["description"]),
		Location:    asString(doc["location"]),
		Country:     asString(doc["country"]),
		Category:    asString(doc["category"]),
		Price:       asFloat(doc["price"]),
		Rating:      asFloat(doc["rating"]),
		ReviewCount: int(asInt64(doc["review_count"])),
		CreatedAt:   asTime(doc["created_at"]),
	}

	if reviews, ok := doc["reviews"].([]query.Document); ok {
		l.Reviews = make([]Review, 0, len(reviews))
		for _, r := range reviews {
			l.Reviews = append(l.Reviews, ReviewFromDocument(r))
		}
	}

	return l
}

// ReviewFromDocument converts a store document into a Review
func ReviewFromDocument(doc map[string]any) Review {
	return Review{
		ID:        asInt64(doc["id"]),
		ListingID: asInt64(doc["listing_id"]),
		Author:    asString(doc["author"]),
		Rating:    int(asInt64(doc["rating"])),
		Comment:   asString(doc["comment"]),
		CreatedAt: asTime(doc["created_at"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05"}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
