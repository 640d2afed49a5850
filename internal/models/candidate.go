package models

// CandidateDoc is a document produced by posting iteration. Rank fusion only
// writes OutScore; summary assembly attaches its summary separately.
type CandidateDoc struct {
	Key           Key                `json:"key"`
	MachineID     int                `json:"machine_id"`
	Index         string             `json:"index"`
	CrawlTime     int64              `json:"crawl_time"`
	Generation    int                `json:"generation"`
	SummaryOffset int64              `json:"summary_offset"`
	DocRank       float64            `json:"doc_rank"`
	Relevance     float64            `json:"relevance"`
	Proximity     float64            `json:"proximity"`
	UserRanks     map[string]float64 `json:"user_ranks,omitempty"`
	OutScore      float64            `json:"out_score"`
}

// Offset is an opaque position of a leaf posting iterator.
type Offset int64

// OffsetDone marks a leaf that had nothing left when its save point was taken.
const OffsetDone Offset = -1

// SavePoint is the ordered list of leaf offsets of one iterator tree.
type SavePoint []Offset

// Summary is the projection of a document record returned by the document
// store. Header, Body, Links and Scores are only filled on request.
type Summary struct {
	URL         string             `json:"url"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Hash        string             `json:"hash"`
	IsDoc       bool               `json:"is_doc"`
	Location    string             `json:"location,omitempty"`
	RobotMetas  []string           `json:"robot_metas,omitempty"`
	HTTPCode    int                `json:"http_code,omitempty"`
	Answers     []string           `json:"answers,omitempty"`
	Header      string             `json:"header,omitempty"`
	Body        string             `json:"body,omitempty"`
	Links       []string           `json:"links,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
}

// IsRedirect reports whether the record is an HTTP redirect placeholder.
func (s Summary) IsRedirect() bool {
	return len(s.Location) > 0
}

// Result is one row of a result page.
type Result struct {
	Doc     CandidateDoc `json:"doc"`
	Summary Summary      `json:"summary"`
	Snippet string       `json:"snippet"`
	Pinned  bool         `json:"pinned,omitempty"`
}

// URLRef addresses a document record by URL, preferring the capture closest
// to CrawlTime.
type URLRef struct {
	URL       string `json:"url"`
	CrawlTime int64  `json:"crawl_time"`
}

// Projection selects the optional summary fields a store returns.
type Projection struct {
	// Full adds Header, Body, Links and Scores.
	Full bool `json:"full,omitempty"`
	// QA adds Answers.
	QA bool `json:"qa,omitempty"`
}
