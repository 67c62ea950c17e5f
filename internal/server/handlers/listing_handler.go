package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fabienpiette/wanderlust/internal/models"
	"github.com/fabienpiette/wanderlust/internal/query"
	"github.com/fabienpiette/wanderlust/internal/services"
	"github.com/fabienpiette/wanderlust/internal/store"
)

const (
	defaultTopRated  = 5
	maxTopRated      = 50
	defaultMinRating = 4.5
)

// ListingHandler serves listings through the query optimizer
type ListingHandler struct {
	container *services.Container
}

// NewListingHandler creates a new listing handler
func NewListingHandler(container *services.Container) *ListingHandler {
	return &ListingHandler{
		container: container,
	}
}

// ListListings browses listings with optional filters, sorting and paging
func (h *ListingHandler) ListListings(c *gin.Context) {
	var filter models.ListingFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindError(c, err)
		return
	}
	if err := filter.Validate(); err != nil {
		respondError(c, h.container.GetLogger(), err)
		return
	}

	opts := query.Options{
		SkipCache: c.Query("no_cache") == "true",
		Limit:     filter.Limit,
		Skip:      filter.Offset,
	}
	if filter.SortBy != "" {
		opts.Sort = []query.SortKey{{Field: filter.SortBy, Direction: filter.SortDirection()}}
	}

	docs, err := h.container.GetQueryOptimizer().ExecuteQuery(
		c.Request.Context(),
		h.container.GetStore().MustCollection(store.Listings),
		query.Request{Filter: filter.Conditions()},
		opts,
	)
	if err != nil {
		respondError(c, h.container.GetLogger(), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": toListings(docs),
		"count":    len(docs),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// TopRated returns the best rated listings, optionally within a category
func (h *ListingHandler) TopRated(c *gin.Context) {
	limit := defaultTopRated
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxTopRated {
			respondError(c, h.container.GetLogger(), fmt.Errorf("%w: limit must be between 1 and %d", models.ErrInvalidInput, maxTopRated))
			return
		}
		limit = parsed
	}

	minRating := defaultMinRating
	if r := c.Query("min_rating"); r != "" {
		parsed, err := strconv.ParseFloat(r, 64)
		if err != nil || parsed < 0 || parsed > 5 {
			respondError(c, h.container.GetLogger(), fmt.Errorf("%w: min_rating must be between 0 and 5", models.ErrInvalidInput))
			return
		}
		minRating = parsed
	}

	conditions := map[string]any{"rating": map[string]any{"$gte": minRating}}
	if category := c.Query("category"); category != "" {
		conditions["category"] = strings.ToLower(category)
	}

	pipeline := query.Pipeline{
		query.Sort{Keys: []query.SortKey{
			{Field: "rating", Direction: -1},
			{Field: "review_count", Direction: -1},
		}},
		query.Match{Conditions: conditions},
		query.Limit{N: limit},
	}

	docs, err := h.container.GetQueryOptimizer().ExecuteQuery(
		c.Request.Context(),
		h.container.GetStore().MustCollection(store.Listings),
		query.Request{Pipeline: pipeline},
		query.Options{SkipCache: c.Query("no_cache") == "true"},
	)
	if err != nil {
		respondError(c, h.container.GetLogger(), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": toListings(docs),
		"count":    len(docs),
	})
}

// Reviews returns a listing joined with its reviews
func (h *ListingHandler) Reviews(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, h.container.GetLogger(), fmt.Errorf("%w: invalid listing id", models.ErrInvalidInput))
		return
	}

	pipeline := query.Pipeline{
		query.Match{Conditions: map[string]any{"id": id}},
		query.Lookup{
			From:         store.Reviews,
			LocalField:   "id",
			ForeignField: "listing_id",
			As:           "reviews",
		},
		query.Limit{N: 1},
	}

	docs, err := h.container.GetQueryOptimizer().ExecuteQuery(
		c.Request.Context(),
		h.container.GetStore().MustCollection(store.Listings),
		query.Request{Pipeline: pipeline},
		query.Options{SkipCache: c.Query("no_cache") == "true"},
	)
	if err != nil {
		respondError(c, h.container.GetLogger(), err)
		return
	}
	if len(docs) == 0 {
		respondError(c, h.container.GetLogger(), fmt.Errorf("%w: %d", models.ErrListingNotFound, id))
		return
	}

	listing := models.ListingFromDocument(docs[0])

	c.JSON(http.StatusOK, gin.H{
		"listing": listing,
		"count":   len(listing.Reviews),
	})
}

func toListings(docs []query.Document) []models.Listing {
	listings := make([]models.Listing, 0, len(docs))
	for _, doc := range docs {
		listings = append(listings, models.ListingFromDocument(doc))
	}
	return listings
}
