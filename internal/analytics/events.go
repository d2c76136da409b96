// Package analytics collects search and rebuild events, ships them to Kafka
// (or straight to an in-process aggregator), and aggregates them into
// service-level statistics.
package analytics

import "time"

type EventType string

const (
	EventSearch  EventType = "search"
	EventRebuild EventType = "rebuild"
)

// Event is the envelope published to Kafka. Exactly one payload is set,
// matching Type.
type Event struct {
	Type    EventType     `json:"type"`
	Search  *SearchEvent  `json:"search,omitempty"`
	Rebuild *RebuildEvent `json:"rebuild,omitempty"`
}

// SearchEvent records one executed query.
type SearchEvent struct {
	Query      string    `json:"query"`
	Terms      int       `json:"terms"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Generation uint64    `json:"generation"`
	Origin     string    `json:"origin"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RebuildEvent records one index rebuild attempt.
type RebuildEvent struct {
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewSearchEvent(e SearchEvent) Event {
	return Event{Type: EventSearch, Search: &e}
}

func NewRebuildEvent(e RebuildEvent) Event {
	return Event{Type: EventRebuild, Rebuild: &e}
}
