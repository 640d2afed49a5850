// Package models holds the typed records shared by every stage of the query
// pipeline: compiled word structs, presentation parts, candidate documents,
// summaries and save points.
package models

import (
	"fmt"
	"strconv"
)

// Key is the fixed-width hash of a stemmed term, a phrase, or a materialized
// meta term. Two keys are the same term exactly when their hashes are equal.
type Key uint64

func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}

// MarshalText renders keys as hex so they survive JSON map keys and peers
// written in any language.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 16, 64)
	if err != nil {
		return fmt.Errorf("parsing key %q: %w", string(b), err)
	}
	*k = Key(v)
	return nil
}

// Direction is the order in which an index is walked.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SpanKind says how strictly the members of a quoted span must line up.
type SpanKind int

const (
	// SpanExact requires every member at consecutive positions.
	SpanExact SpanKind = iota
	// SpanWildcard allows an arbitrary gap after each member listed in Gaps.
	SpanWildcard
)

// QuoteSpan records a quoted run of keys starting at a position in
// WordStruct.Keys.
type QuoteSpan struct {
	Kind SpanKind `json:"kind"`
	Len  int      `json:"len"`
	Gaps []int    `json:"gaps,omitempty"`
}

// WordStruct is the compiled conjunctive term set for one disjunct.
// DisallowSpans marks runs of DisallowKeys excluded together as one phrase,
// keyed by the run's first position.
type WordStruct struct {
	Keys           []Key             `json:"keys"`
	QuotePositions map[int]QuoteSpan `json:"quote_positions,omitempty"`
	DisallowKeys   []Key             `json:"disallow_keys,omitempty"`
	DisallowSpans  map[int]QuoteSpan `json:"disallow_spans,omitempty"`
	Weight         float64           `json:"weight"`
	IndexName      string            `json:"index_name"`
	Direction      Direction         `json:"direction"`
}

// PresentationPart is a query segment that contributes up to Bound rows
// starting at global row Start.
type PresentationPart struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	Bound int    `json:"bound"`
}

// End is the first global row index past this part.
func (p PresentationPart) End() int {
	return p.Start + p.Bound
}

// Window returns the part-local row range that overlaps the global window
// [limit, limit+num). ok is false when the part contributes nothing.
func (p PresentationPart) Window(limit, num int) (lo, hi int, ok bool) {
	from := max(limit, p.Start)
	to := min(limit+num, p.End())
	if from >= to {
		return 0, 0, false
	}
	return from - p.Start, to - p.Start, true
}

// Session carries the per-user defaults the rewriter appends to queries.
type Session struct {
	SafeSearch    *bool  `json:"safe_search,omitempty"`
	TimePeriod    string `json:"time_period,omitempty"`
	Locale        string `json:"locale,omitempty"`
	VideoDuration string `json:"video_duration,omitempty"`
	ImageSize     string `json:"image_size,omitempty"`
}
