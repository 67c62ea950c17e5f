package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabienpiette/wanderlust/internal/config"
	"github.com/fabienpiette/wanderlust/internal/middleware"
	"github.com/fabienpiette/wanderlust/internal/models"
	"github.com/fabienpiette/wanderlust/internal/search"
	"github.com/fabienpiette/wanderlust/internal/services"
	"github.com/fabienpiette/wanderlust/internal/testutil"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*testutil.HTTPTestContext, *services.Container) {
	t.Helper()

	cfg := testutil.GetTestConfig(t)
	for _, m := range mutate {
		m(cfg)
	}
	container := services.NewContainer(testutil.SetupTestDB(t), nil, cfg, testutil.QuietLogger())
	srv := NewHTTPServer(cfg, container)

	return testutil.NewHTTPTestContext(t, srv.Router()), container
}

type listingsResponse struct {
	Listings []models.Listing `json:"listings"`
	Count    int              `json:"count"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func titles(listings []models.Listing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.Title)
	}
	return out
}

func TestHealth(t *testing.T) {
	ctx, _ := newTestServer(t)

	resp := ctx.Get("/health")

	ctx.AssertJSONResponse(resp, http.StatusOK, nil)
	assert.Equal(t, "healthy", ctx.GetJSONField(resp, "status"), resp.GetResponseString())
	assert.NotEmpty(t, resp.Headers.Get(middleware.RequestIDHeader))
}

func TestNotFoundRoute(t *testing.T) {
	ctx, _ := newTestServer(t)
	ctx.AssertErrorResponse(ctx.Get("/api/v1/nope"), http.StatusNotFound, "resource not found")
}

func TestListListings(t *testing.T) {
	ctx, _ := newTestServer(t)

	tests := []struct {
		name      string
		path      string
		wantCount int
		check     func(t *testing.T, body listingsResponse)
	}{
		{
			name:      "default page",
			path:      "/api/v1/listings",
			wantCount: 12,
			check: func(t *testing.T, body listingsResponse) {
				assert.Equal(t, 20, body.Limit)
				assert.Equal(t, int64(1), body.Listings[0].ID)
			},
		},
		{
			name:      "country filter",
			path:      "/api/v1/listings?country=Japan",
			wantCount: 2,
			check: func(t *testing.T, body listingsResponse) {
				for _, l := range body.Listings {
					assert.Equal(t, "Japan", l.Country)
				}
			},
		},
		{
			name:      "price range sorted ascending",
			path:      "/api/v1/listings?min_price=100&max_price=200&sort_by=price&sort_order=asc",
			wantCount: 5,
			check: func(t *testing.T, body listingsResponse) {
				for i := 1; i < len(body.Listings); i++ {
					assert.LessOrEqual(t, body.Listings[i-1].Price, body.Listings[i].Price)
				}
			},
		},
		{
			name:      "category is case insensitive",
			path:      "/api/v1/listings?category=Beach",
			wantCount: 3,
		},
		{
			name:      "paging",
			path:      "/api/v1/listings?limit=5&offset=10",
			wantCount: 2,
			check: func(t *testing.T, body listingsResponse) {
				assert.Equal(t, 10, body.Offset)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body listingsResponse
			ctx.AssertJSONResponse(ctx.Get(tt.path), http.StatusOK, &body)
			assert.Equal(t, tt.wantCount, body.Count, titles(body.Listings))
			assert.Len(t, body.Listings, tt.wantCount)
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestListListings_Invalid(t *testing.T) {
	ctx, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
		msg  string
	}{
		{"limit too large", "/api/v1/listings?limit=500", "validation"},
		{"unknown sort field", "/api/v1/listings?sort_by=owner", "validation"},
		{"non numeric price", "/api/v1/listings?min_price=cheap", ""},
		{"inverted price range", "/api/v1/listings?min_price=300&max_price=100", "min_price exceeds max_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx.AssertErrorResponse(ctx.Get(tt.path), http.StatusBadRequest, tt.msg)
		})
	}
}

func TestListListings_Cached(t *testing.T) {
	ctx, container := newTestServer(t)

	ctx.Get("/api/v1/listings?country=Italy")
	ctx.Get("/api/v1/listings?country=Italy")

	stats := container.GetQueryOptimizer().Stats()
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Cached)

	ctx.Get("/api/v1/listings?country=Italy&no_cache=true")
	assert.Equal(t, int64(1), container.GetQueryOptimizer().Stats().Cached)
}

func TestTopRated(t *testing.T) {
	ctx, _ := newTestServer(t)

	var body listingsResponse
	ctx.AssertJSONResponse(ctx.Get("/api/v1/listings/top-rated?limit=3"), http.StatusOK, &body)
	require.Len(t, body.Listings, 3)
	for i := 1; i < len(body.Listings); i++ {
		assert.GreaterOrEqual(t, body.Listings[i-1].Rating, body.Listings[i].Rating)
	}
	assert.Equal(t, 4.9, body.Listings[0].Rating)

	ctx.AssertJSONResponse(ctx.Get("/api/v1/listings/top-rated?category=city&min_rating=4"), http.StatusOK, &body)
	assert.Equal(t, []string{"Montmartre Artist Loft", "Lisbon Tram 28 Apartment", "Paris Riverside Studio", "Shibuya Capsule Stay"}, titles(body.Listings))

	ctx.AssertErrorResponse(ctx.Get("/api/v1/listings/top-rated?limit=0"), http.StatusBadRequest, "limit")
	ctx.AssertErrorResponse(ctx.Get("/api/v1/listings/top-rated?min_rating=9"), http.StatusBadRequest, "min_rating")
}

func TestReviews(t *testing.T) {
	ctx, _ := newTestServer(t)

	var body struct {
		Listing models.Listing `json:"listing"`
		Count   int            `json:"count"`
	}
	ctx.AssertJSONResponse(ctx.Get("/api/v1/listings/1/reviews"), http.StatusOK, &body)
	assert.Equal(t, "Montmartre Artist Loft", body.Listing.Title)
	assert.Equal(t, 3, body.Count)
	for _, r := range body.Listing.Reviews {
		assert.Equal(t, int64(1), r.ListingID)
	}

	var empty struct {
		Listing models.Listing `json:"listing"`
		Count   int            `json:"count"`
	}
	ctx.AssertJSONResponse(ctx.Get("/api/v1/listings/12/reviews"), http.StatusOK, &empty)
	assert.Equal(t, "Banff Lakeside Cabin", empty.Listing.Title)
	assert.Zero(t, empty.Count)
	assert.Empty(t, empty.Listing.Reviews)

	ctx.AssertErrorResponse(ctx.Get("/api/v1/listings/999/reviews"), http.StatusNotFound, "listing not found")
	ctx.AssertErrorResponse(ctx.Get("/api/v1/listings/abc/reviews"), http.StatusBadRequest, "invalid listing id")
}

func TestSearch(t *testing.T) {
	ctx, container := newTestServer(t)

	var resp search.Response
	ctx.AssertJSONResponse(ctx.MakeRequest(testutil.HTTPTestRequest{
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		QueryParams: map[string]string{"q": "Beach!", "min_rating": "4.5"},
		Headers:     map[string]string{"X-Session-ID": "s1"},
	}), http.StatusOK, &resp)

	assert.Equal(t, "beach", resp.Query)
	assert.False(t, resp.Cached)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Rating, 4.5)
		assert.Equal(t, "beach", r.Tracking.Query)
	}

	ctx.AssertJSONResponse(ctx.Get("/api/v1/search?q=beach&min_rating=4.5"), http.StatusOK, &resp)
	assert.True(t, resp.Cached)

	assert.Equal(t, int64(2), container.GetSearchOptimizer().Stats().Total)
}

func TestSearch_SoftAndHardFailures(t *testing.T) {
	ctx, _ := newTestServer(t)

	var resp search.Response
	ctx.AssertJSONResponse(ctx.Get("/api/v1/search?q=a"), http.StatusOK, &resp)
	assert.Empty(t, resp.Results, "too short queries fail soft")

	ctx.AssertErrorResponse(ctx.Get("/api/v1/search?q=paris&sort=newest"), http.StatusBadRequest, "unknown sort")
	ctx.AssertErrorResponse(ctx.Get("/api/v1/search?q=paris&min_price=free"), http.StatusBadRequest, "invalid search filter")
}

func TestSuggestionsAndPopular(t *testing.T) {
	ctx, _ := newTestServer(t)

	var body struct {
		Suggestions []search.Suggestion `json:"suggestions"`
	}
	ctx.AssertJSONResponse(ctx.Get("/api/v1/search/suggestions?q=pari&limit=3"), http.StatusOK, &body)
	assert.NotEmpty(t, body.Suggestions)
	assert.LessOrEqual(t, len(body.Suggestions), 3)

	ctx.AssertErrorResponse(ctx.Get("/api/v1/search/suggestions?q=pari&limit=50"), http.StatusBadRequest, "limit")

	ctx.Get("/api/v1/search?q=tokyo")
	ctx.Get("/api/v1/search?q=tokyo")

	var popular struct {
		Queries []search.QueryCount `json:"queries"`
	}
	ctx.AssertJSONResponse(ctx.Get("/api/v1/search/popular"), http.StatusOK, &popular)
	require.NotEmpty(t, popular.Queries)
	assert.Equal(t, search.QueryCount{Query: "tokyo", Count: 2}, popular.Queries[0])
}

func TestTrackClick(t *testing.T) {
	ctx, container := newTestServer(t)

	resp := ctx.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/search/click",
		Body:   search.ClickEvent{Query: "paris", ResultID: 2, Rank: 1, SessionID: "s1"},
	})
	ctx.AssertJSONResponse(resp, http.StatusAccepted, nil)
	assert.Equal(t, int64(1), container.GetSearchOptimizer().Stats().Analytics.Clicks)

	resp = ctx.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/search/click",
		Body:   map[string]string{"query": "paris"},
	})
	ctx.AssertErrorResponse(resp, http.StatusBadRequest, "validation")

	var apiErr models.APIError
	ctx.AssertJSONResponse(resp, http.StatusBadRequest, &apiErr)
	require.Len(t, apiErr.Errors, 1)
	assert.Equal(t, "ResultID", apiErr.Errors[0].Field)
}

func TestPerformanceEndpoints(t *testing.T) {
	ctx, container := newTestServer(t)

	ctx.Get("/api/v1/listings?country=France&sort_by=price")
	ctx.Get("/api/v1/search?q=paris")

	var stats struct {
		Query  map[string]interface{} `json:"query"`
		Search map[string]interface{} `json:"search"`
	}
	ctx.AssertJSONResponse(ctx.Get("/api/v1/performance/stats"), http.StatusOK, &stats)
	assert.EqualValues(t, 1, stats.Query["total"])
	assert.EqualValues(t, 1, stats.Search["total"])

	var suggestions struct {
		Count int `json:"count"`
	}
	ctx.AssertJSONResponse(ctx.Get("/api/v1/performance/index-suggestions"), http.StatusOK, &suggestions)
	assert.Positive(t, suggestions.Count)

	var report services.PerformanceReport
	ctx.AssertJSONResponse(ctx.Get("/api/v1/performance/report"), http.StatusOK, &report)
	assert.Equal(t, int64(1), report.Query.Stats.Total)
	assert.Nil(t, report.Monitor)

	container.GetMonitor().Collect()

	var history struct {
		Count int `json:"count"`
	}
	ctx.AssertJSONResponse(ctx.Get("/api/v1/performance/history?window=1h"), http.StatusOK, &history)
	assert.Equal(t, 1, history.Count)

	ctx.AssertErrorResponse(ctx.Get("/api/v1/performance/history?window=soon"), http.StatusBadRequest, "window")
	ctx.AssertErrorResponse(ctx.Get("/api/v1/performance/history?archived=true"), http.StatusServiceUnavailable, "redis")
}

func TestClearCaches(t *testing.T) {
	ctx, container := newTestServer(t)

	ctx.Get("/api/v1/listings")
	ctx.Get("/api/v1/search?q=rome")
	require.Equal(t, 1, container.GetQueryOptimizer().Stats().Cache.Size)
	require.Equal(t, 1, container.GetSearchOptimizer().Stats().ResultCache.Size)

	ctx.AssertJSONResponse(ctx.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodDelete, Path: "/api/v1/performance/cache/query"}), http.StatusOK, nil)
	assert.Zero(t, container.GetQueryOptimizer().Stats().Cache.Size)

	ctx.AssertJSONResponse(ctx.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodDelete, Path: "/api/v1/performance/cache/search"}), http.StatusOK, nil)
	assert.Zero(t, container.GetSearchOptimizer().Stats().ResultCache.Size)
}

func TestRateLimit(t *testing.T) {
	ctx, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 2}
	})

	req := testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/health", RemoteAddr: "203.0.113.7:5000"}
	assert.Equal(t, http.StatusOK, ctx.MakeRequest(req).StatusCode)
	assert.Equal(t, http.StatusOK, ctx.MakeRequest(req).StatusCode)
	ctx.AssertErrorResponse(ctx.MakeRequest(req), http.StatusTooManyRequests, "rate limit exceeded")
}
