package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fabienpiette/wanderlust/internal/models"
	"github.com/fabienpiette/wanderlust/internal/monitoring"
	"github.com/fabienpiette/wanderlust/internal/query"
	"github.com/fabienpiette/wanderlust/internal/services"
)

// PerformanceHandler exposes optimizer statistics and cache controls
type PerformanceHandler struct {
	container *services.Container
}

// NewPerformanceHandler creates a new performance handler
func NewPerformanceHandler(container *services.Container) *PerformanceHandler {
	return &PerformanceHandler{
		container: container,
	}
}

// GetStats returns the current stats of both optimizers
func (h *PerformanceHandler) GetStats(c *gin.Context) {
	body := gin.H{
		"query":  h.container.GetQueryOptimizer().Stats(),
		"search": h.container.GetSearchOptimizer().Stats(),
	}
	if snapshot, ok := h.container.GetMonitor().Current(); ok {
		body["runtime"] = snapshot.Runtime
		body["database"] = snapshot.Database
		body["alerts"] = snapshot.Alerts
	}

	c.JSON(http.StatusOK, body)
}

// GetIndexSuggestions returns the index suggestions gathered so far
func (h *PerformanceHandler) GetIndexSuggestions(c *gin.Context) {
	suggestions := h.container.GetQueryOptimizer().IndexSuggestions()
	if suggestions == nil {
		suggestions = []query.IndexSuggestion{}
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// GetReport returns the combined performance report
func (h *PerformanceHandler) GetReport(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Report())
}

// GetHistory returns monitor snapshots from memory, or from the Redis
// archive when archived=true
func (h *PerformanceHandler) GetHistory(c *gin.Context) {
	if c.Query("archived") == "true" {
		h.archivedHistory(c)
		return
	}

	var window time.Duration
	if w := c.Query("window"); w != "" {
		parsed, err := time.ParseDuration(w)
		if err != nil || parsed < 0 {
			respondError(c, h.container.GetLogger(), fmt.Errorf("%w: window must be a duration such as 15m", models.ErrInvalidInput))
			return
		}
		window = parsed
	}

	snapshots := h.container.GetMonitor().History(window)
	if snapshots == nil {
		snapshots = []monitoring.Snapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

func (h *PerformanceHandler) archivedHistory(c *gin.Context) {
	if !h.container.RedisEnabled() {
		respondError(c, h.container.GetLogger(), fmt.Errorf("%w: report archive requires redis", models.ErrServiceUnavailable))
		return
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			respondError(c, h.container.GetLogger(), fmt.Errorf("%w: limit must be a positive integer", models.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	snapshots, err := h.container.ArchivedSnapshots(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.container.GetLogger(), err)
		return
	}
	if snapshots == nil {
		snapshots = []json.RawMessage{}
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// ClearQueryCache drops all cached query results
func (h *PerformanceHandler) ClearQueryCache(c *gin.Context) {
	h.container.GetQueryOptimizer().ClearCache()
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "cache": "query"})
}

// ClearSearchCache drops cached search results and suggestions
func (h *PerformanceHandler) ClearSearchCache(c *gin.Context) {
	h.container.GetSearchOptimizer().ClearCaches()
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "cache": "search"})
}
