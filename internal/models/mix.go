package models

// Mix is a named crawl mix: an ordered list of fragments, each contributing
// up to ResultBound rows composed from weighted index components.
type Mix struct {
	Name      string        `json:"name"`
	Fragments []MixFragment `json:"fragments"`
}

type MixFragment struct {
	ResultBound int            `json:"result_bound"`
	Components  []MixComponent `json:"components"`
}

// MixComponent queries Index with Weight, optionally adding Keywords to
// every disjunct.
type MixComponent struct {
	Index     string    `json:"index"`
	Weight    float64   `json:"weight"`
	Direction Direction `json:"direction"`
	Keywords  string    `json:"keywords,omitempty"`
}
