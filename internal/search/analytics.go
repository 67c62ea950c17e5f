package search

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultRefinementWindow is how soon a different query from the same
	// session counts as a refinement
	DefaultRefinementWindow = 60 * time.Second
	// DefaultAbandonmentWindow is how long a search may go unclicked
	DefaultAbandonmentWindow = 30 * time.Second

	// DefaultMaxTracked bounds the distinct queries and results counted
	DefaultMaxTracked = 10000

	sessionRetention = 30 * time.Minute
	topEntries       = 10
)

// ClickEvent is a click on a ranked result
type ClickEvent struct {
	Query     string `json:"query" binding:"required"`
	ResultID  int64  `json:"result_id" binding:"required"`
	Rank      int    `json:"rank"`
	SessionID string `json:"session_id"`
}

// QueryCount is a query with how often it was searched
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// ResultClicks is a result with how often it was clicked
type ResultClicks struct {
	ResultID int64 `json:"result_id"`
	Clicks   int   `json:"clicks"`
}

// AnalyticsSummary reports user behavior around search
type AnalyticsSummary struct {
	Searches        int64          `json:"searches"`
	Clicks          int64          `json:"clicks"`
	ClickThrough    float64        `json:"click_through_rate"`
	Refinements     int64          `json:"refinements"`
	Abandonments    int64          `json:"abandonments"`
	AbandonmentRate float64        `json:"abandonment_rate"`
	ActiveSessions  int            `json:"active_sessions"`
	TopQueries      []QueryCount   `json:"top_queries"`
	TopResults      []ResultClicks `json:"top_results"`
}

type session struct {
	query     string
	at        time.Time
	clicked   bool
	abandoned bool
}

// Analytics tracks query popularity, clicks, refinements and abandonments
type Analytics struct {
	refinementWindow  time.Duration
	abandonmentWindow time.Duration

	mu           sync.RWMutex
	queryCounts  map[string]int
	resultClicks map[int64]int
	sessions     map[string]*session
	searches     int64
	clicks       int64
	refinements  int64
	abandonments int64
}

// NewAnalytics creates an empty analytics store
func NewAnalytics(refinementWindow, abandonmentWindow time.Duration) *Analytics {
	if refinementWindow <= 0 {
		refinementWindow = DefaultRefinementWindow
	}
	if abandonmentWindow <= 0 {
		abandonmentWindow = DefaultAbandonmentWindow
	}
	return &Analytics{
		refinementWindow:  refinementWindow,
		abandonmentWindow: abandonmentWindow,
		queryCounts:       make(map[string]int),
		resultClicks:      make(map[int64]int),
		sessions:          make(map[string]*session),
	}
}

// RecordSearch counts a search and reports whether it refined the session's
// previous one
func (a *Analytics) RecordSearch(sessionID, query string, at time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.searches++
	a.queryCounts[query]++

	if sessionID == "" {
		return false
	}

	refined := false
	if prev, ok := a.sessions[sessionID]; ok {
		if prev.query != query && at.Sub(prev.at) <= a.refinementWindow {
			a.refinements++
			refined = true
		}
	}
	a.sessions[sessionID] = &session{query: query, at: at}

	return refined
}

// TrackClick records a click on a result
func (a *Analytics) TrackClick(ev ClickEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clicks++
	a.resultClicks[ev.ResultID]++

	if s, ok := a.sessions[ev.SessionID]; ok && ev.SessionID != "" {
		s.clicked = true
	}
}

// Clicks returns the click count of a result
func (a *Analytics) Clicks(resultID int64) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.resultClicks[resultID]
}

// DetectAbandonments counts sessions whose latest search went unclicked for
// the abandonment window. Each search is counted at most once. Stale
// sessions are dropped.
func (a *Analytics) DetectAbandonments(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	found := 0
	for id, s := range a.sessions {
		age := now.Sub(s.at)
		if !s.clicked && !s.abandoned && age >= a.abandonmentWindow {
			s.abandoned = true
			found++
		}
		if age >= sessionRetention {
			delete(a.sessions, id)
		}
	}
	a.abandonments += int64(found)

	return found
}

// Popularity returns a copy of the per-query search counts
func (a *Analytics) Popularity() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]int, len(a.queryCounts))
	for q, n := range a.queryCounts {
		out[q] = n
	}
	return out
}

// LoadPopularity merges externally persisted counts, keeping the larger
// count per query
func (a *Analytics) LoadPopularity(counts map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for q, n := range counts {
		if n > a.queryCounts[q] {
			a.queryCounts[q] = n
		}
	}
}

// PopularQueries returns up to n queries searched at least minCount times,
// most popular first
func (a *Analytics) PopularQueries(minCount, n int) []QueryCount {
	a.mu.RLock()
	out := make([]QueryCount, 0, len(a.queryCounts))
	for q, c := range a.queryCounts {
		if c >= minCount {
			out = append(out, QueryCount{Query: q, Count: c})
		}
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Trim keeps the maxQueries most searched queries and the maxResults most
// clicked results, dropping the rest. Ties are broken by query text and result
// ID. A limit <= 0 leaves that counter untouched. Returns how many entries
// were dropped.
func (a *Analytics) Trim(maxQueries, maxResults int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	dropped := 0
	if maxQueries > 0 && len(a.queryCounts) > maxQueries {
		ranked := make([]QueryCount, 0, len(a.queryCounts))
		for q, c := range a.queryCounts {
			ranked = append(ranked, QueryCount{Query: q, Count: c})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Count != ranked[j].Count {
				return ranked[i].Count > ranked[j].Count
			}
			return ranked[i].Query < ranked[j].Query
		})
		for _, qc := range ranked[maxQueries:] {
			delete(a.queryCounts, qc.Query)
		}
		dropped += len(ranked) - maxQueries
	}

	if maxResults > 0 && len(a.resultClicks) > maxResults {
		ranked := make([]ResultClicks, 0, len(a.resultClicks))
		for id, n := range a.resultClicks {
			ranked = append(ranked, ResultClicks{ResultID: id, Clicks: n})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Clicks != ranked[j].Clicks {
				return ranked[i].Clicks > ranked[j].Clicks
			}
			return ranked[i].ResultID < ranked[j].ResultID
		})
		for _, rc := range ranked[maxResults:] {
			delete(a.resultClicks, rc.ResultID)
		}
		dropped += len(ranked) - maxResults
	}

	return dropped
}

// Summary returns the analytics snapshot
func (a *Analytics) Summary() AnalyticsSummary {
	top := a.PopularQueries(1, topEntries)

	a.mu.RLock()
	defer a.mu.RUnlock()

	summary := AnalyticsSummary{
		Searches:       a.searches,
		Clicks:         a.clicks,
		Refinements:    a.refinements,
		Abandonments:   a.abandonments,
		ActiveSessions: len(a.sessions),
		TopQueries:     top,
		TopResults:     make([]ResultClicks, 0, len(a.resultClicks)),
	}
	if a.searches > 0 {
		summary.ClickThrough = float64(a.clicks) / float64(a.searches)
		summary.AbandonmentRate = float64(a.abandonments) / float64(a.searches)
	}

	for id, n := range a.resultClicks {
		summary.TopResults = append(summary.TopResults, ResultClicks{ResultID: id, Clicks: n})
	}
	sort.Slice(summary.TopResults, func(i, j int) bool {
		if summary.TopResults[i].Clicks != summary.TopResults[j].Clicks {
			return summary.TopResults[i].Clicks > summary.TopResults[j].Clicks
		}
		return summary.TopResults[i].ResultID < summary.TopResults[j].ResultID
	})
	if len(summary.TopResults) > topEntries {
		summary.TopResults = summary.TopResults[:topEntries]
	}

	return summary
}

// Reset clears all analytics
func (a *Analytics) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.queryCounts = make(map[string]int)
	a.resultClicks = make(map[int64]int)
	a.sessions = make(map[string]*session)
	a.searches, a.clicks, a.refinements, a.abandonments = 0, 0, 0, 0
}
