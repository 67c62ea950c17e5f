package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabienpiette/wanderlust/internal/testutil"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return New(testutil.SetupTestRedis(t), testutil.QuietLogger())
}

func TestClient_JSONRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		Query string `json:"query"`
		Hits  int    `json:"hits"`
	}

	require.NoError(t, c.SetJSON(ctx, "test:json", payload{Query: "paris", Hits: 3}, time.Minute))

	var got payload
	require.NoError(t, c.GetJSON(ctx, "test:json", &got))
	assert.Equal(t, payload{Query: "paris", Hits: 3}, got)

	require.NoError(t, c.DeleteKeys(ctx, "test:json"))
	assert.ErrorIs(t, c.GetJSON(ctx, "test:json", &got), ErrCacheMiss)
	assert.NoError(t, c.DeleteKeys(ctx))
}

func TestClient_GetJSONDecodeError(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "test:raw", "not json", time.Minute).Err())

	var dest map[string]any
	err := c.GetJSON(ctx, "test:raw", &dest)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestClient_Popularity(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.StorePopularity(ctx, nil))
	require.NoError(t, c.StorePopularity(ctx, map[string]int{"paris": 12, "rome": 4, "kyoto": 8}))

	top, err := c.LoadPopularity(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"paris": 12, "kyoto": 8}, top)

	all, err := c.LoadPopularity(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestClient_ReportArchive(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		report := map[string]int{"sequence": i}
		require.NoError(t, c.ArchiveReport(ctx, "query", report, base.Add(time.Duration(i)*time.Minute), time.Hour))
	}

	reports, err := c.RecentReports(ctx, "query", 2)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	var newest map[string]int
	require.NoError(t, json.Unmarshal(reports[0], &newest))
	assert.Equal(t, 2, newest["sequence"])

	removed, err := c.PruneReports(ctx, "query", base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	reports, err = c.RecentReports(ctx, "query", 10)
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	empty, err := c.RecentReports(ctx, "query", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t)

	assert.NoError(t, c.Health(context.Background()))
	require.NoError(t, c.Close())
	assert.Error(t, c.Health(context.Background()))
}
