package docstore

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// Local is the store of this machine.
type Local interface {
	Resolve(ctx context.Context, docs []models.CandidateDoc, p models.Projection) ([]models.Summary, error)
	ResolveURLs(ctx context.Context, refs []models.URLRef, p models.Projection) ([]models.Summary, error)
}

// Router sends each candidate to the machine that indexed it. URL lookups
// try this machine first, then every peer in machine order until each URL
// is found.
type Router struct {
	machineID int
	local     Local
	remote    *Remote
	peers     []int
}

// NewRouter routes between local and the peers listed in peers. A nil
// remote keeps every lookup local.
func NewRouter(machineID int, local Local, remote *Remote, peers []int) *Router {
	return &Router{machineID: machineID, local: local, remote: remote, peers: peers}
}

func (r *Router) Resolve(ctx context.Context, docs []models.CandidateDoc, p models.Projection) ([]models.Summary, error) {
	byMachine := make(map[int][]int)
	var order []int
	for i, d := range docs {
		m := d.MachineID
		if r.remote == nil {
			m = r.machineID
		}
		if _, ok := byMachine[m]; !ok {
			order = append(order, m)
		}
		byMachine[m] = append(byMachine[m], i)
	}

	out := make([]models.Summary, len(docs))
	for _, m := range order {
		idx := byMachine[m]
		batch := make([]models.CandidateDoc, len(idx))
		for j, i := range idx {
			batch[j] = docs[i]
		}
		var (
			sums []models.Summary
			err  error
		)
		if m == r.machineID {
			sums, err = r.local.Resolve(ctx, batch, p)
		} else {
			sums, err = r.remote.Resolve(ctx, m, batch, p)
		}
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			out[i] = sums[j]
		}
	}
	return out, nil
}

func (r *Router) ResolveURLs(ctx context.Context, refs []models.URLRef, p models.Projection) ([]models.Summary, error) {
	out, err := r.local.ResolveURLs(ctx, refs, p)
	if err != nil {
		return nil, err
	}
	if r.remote == nil {
		return out, nil
	}
	for _, m := range r.peers {
		if m == r.machineID {
			continue
		}
		var (
			idx     []int
			missing []models.URLRef
		)
		for i, s := range out {
			if s.URL == "" {
				idx = append(idx, i)
				missing = append(missing, refs[i])
			}
		}
		if len(missing) == 0 {
			break
		}
		sums, err := r.remote.ResolveURLs(ctx, m, missing, p)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			out[i] = sums[j]
		}
	}
	return out, nil
}
