// Package proto defines the messages exchanged between searcher machines
// over the JSON-over-TCP RPC layer in pkg/grpc.
//
// Method names follow the "Service.Method" convention:
//
//	Search.Query         engine.Request -> engine.SearchResult
//	Query.Execute        QueryRequest   -> QueryResponse
//	Summary.Resolve      SummaryRequest -> SummaryResponse
//	Summary.ResolveURLs  URLRequest     -> SummaryResponse
//	Health.Check         HealthCheckRequest -> HealthCheckResponse
package proto

import "github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"

const (
	MethodSearch      = "Search.Query"
	MethodQuery       = "Query.Execute"
	MethodSummary     = "Summary.Resolve"
	MethodSummaryURLs = "Summary.ResolveURLs"
	MethodHealth      = "Health.Check"
)

// ---------- Query ----------

// QueryRequest asks a peer to run one presentation part against its own
// slice of the index.
type QueryRequest struct {
	RequestID string              `json:"request_id,omitempty"`
	Structs   []models.WordStruct `json:"structs"`
	Raw       bool                `json:"raw"`
	// Count is the number of candidates wanted, counted from the first
	// candidate the peer produces.
	Count int `json:"count"`
}

// QueryResponse carries a peer's candidates, ranked unless the request was
// raw.
type QueryResponse struct {
	MachineID int                   `json:"machine_id"`
	Docs      []models.CandidateDoc `json:"docs"`
	Exhausted bool                  `json:"exhausted"`
	LatencyMs int64                 `json:"latency_ms"`
}

// ---------- Summary ----------

// SummaryRequest asks the machine owning Docs for their summaries.
type SummaryRequest struct {
	Docs       []models.CandidateDoc `json:"docs"`
	Projection models.Projection     `json:"projection"`
}

// SummaryResponse holds one summary per requested item, in request order.
// Missing records come back as zero summaries.
type SummaryResponse struct {
	Summaries []models.Summary `json:"summaries"`
}

// URLRequest asks for the summaries of records by URL.
type URLRequest struct {
	Refs       []models.URLRef   `json:"refs"`
	Projection models.Projection `json:"projection"`
}

// ---------- Health ----------

type HealthCheckRequest struct{}

// HealthCheckResponse mirrors the gRPC health check statuses.
type HealthCheckResponse struct {
	Status    string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
	MachineID int    `json:"machine_id"`
	Docs      int    `json:"docs"`
}
