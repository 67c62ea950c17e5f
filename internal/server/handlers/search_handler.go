package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fabienpiette/wanderlust/internal/models"
	"github.com/fabienpiette/wanderlust/internal/search"
	"github.com/fabienpiette/wanderlust/internal/services"
)

// SessionHeader identifies a browsing session for search analytics
const SessionHeader = "X-Session-ID"

// filterParams are the query parameters forwarded to the backend as filters
var filterParams = []string{"country", "min_price", "max_price", "min_rating"}

var sortOrders = map[string]bool{
	"":                   true,
	search.SortRelevance: true,
	search.SortRating:    true,
	search.SortPriceAsc:  true,
	search.SortPriceDesc: true,
}

// SearchHandler handles search-related endpoints
type SearchHandler struct {
	container *services.Container
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(container *services.Container) *SearchHandler {
	return &SearchHandler{
		container: container,
	}
}

// Search runs a listing search through the search optimizer
func (h *SearchHandler) Search(c *gin.Context) {
	opts := search.Options{
		Category:  c.Query("category"),
		Sort:      c.Query("sort"),
		SessionID: c.GetHeader(SessionHeader),
		SkipCache: c.Query("no_cache") == "true",
	}
	if opts.SessionID == "" {
		opts.SessionID = c.Query("session_id")
	}

	if !sortOrders[opts.Sort] {
		respondError(c, h.container.GetLogger(), fmt.Errorf("%w: unknown sort %q", models.ErrInvalidInput, opts.Sort))
		return
	}

	if s := c.Query("suggestions"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(c, h.container.GetLogger(), fmt.Errorf("%w: suggestions must be a non-negative integer", models.ErrInvalidInput))
			return
		}
		opts.MaxSuggestions = n
	}

	for _, param := range filterParams {
		if v := c.Query(param); v != "" {
			if opts.Filters == nil {
				opts.Filters = map[string]string{}
			}
			opts.Filters[param] = v
		}
	}

	resp, err := h.container.GetSearchOptimizer().ExecuteSearch(c.Request.Context(), c.Query("q"), opts)
	if err != nil {
		respondError(c, h.container.GetLogger(), err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetSuggestions returns suggestions for a partial query
func (h *SearchHandler) GetSuggestions(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > search.MaxSuggestions {
			respondError(c, h.container.GetLogger(), fmt.Errorf("%w: limit must be between 1 and %d", models.ErrInvalidInput, search.MaxSuggestions))
			return
		}
		limit = parsed
	}

	suggestions := h.container.GetSearchOptimizer().Suggest(c.Query("q"), limit)
	if suggestions == nil {
		suggestions = []search.Suggestion{}
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions": suggestions,
	})
}

// GetPopular returns the most searched queries
func (h *SearchHandler) GetPopular(c *gin.Context) {
	limit := 10
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed >= 1 && parsed <= 100 {
			limit = parsed
		}
	}

	queries := h.container.GetSearchOptimizer().PopularQueries(limit)
	if queries == nil {
		queries = []search.QueryCount{}
	}

	c.JSON(http.StatusOK, gin.H{
		"queries": queries,
	})
}

// TrackClick records a click on a search result
func (h *SearchHandler) TrackClick(c *gin.Context) {
	var ev search.ClickEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		respondBindError(c, err)
		return
	}
	if ev.SessionID == "" {
		ev.SessionID = c.GetHeader(SessionHeader)
	}

	h.container.GetSearchOptimizer().TrackClick(ev)

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "recorded",
		"result_id": ev.ResultID,
	})
}
