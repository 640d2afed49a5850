package analytics

import "time"

type EventType string

const (
	EventQuery      EventType = "query"
	EventZeroResult EventType = "zero_result"
	EventFailed     EventType = "failed"
)

// QueryEvent describes one finished Search call.
type QueryEvent struct {
	Type        EventType `json:"type"`
	Query       string    `json:"query"`
	Rewritten   string    `json:"rewritten"`
	Index       string    `json:"index"`
	Parts       int       `json:"parts"`
	TotalRows   int       `json:"total_rows"`
	Returned    int       `json:"returned"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheStatus string    `json:"cache_status"`
	Resumed     bool      `json:"resumed,omitempty"`
	Distributed bool      `json:"distributed,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
}

// Tracker receives query events. Implementations must not block.
type Tracker interface {
	Track(e QueryEvent)
}

type multi []Tracker

func (m multi) Track(e QueryEvent) {
	for _, t := range m {
		t.Track(e)
	}
}

// Multi fans events out to every non-nil tracker.
func Multi(trackers ...Tracker) Tracker {
	out := make(multi, 0, len(trackers))
	for _, t := range trackers {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
