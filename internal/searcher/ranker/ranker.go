// Package ranker fuses the subscores of candidate documents with Reciprocal
// Rank Fusion. Each active field contributes alpha/(59+rank) by the rank of
// the candidate's value in that field, so fields never need comparable
// scales.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

const (
	fusionBudget = 600.0
	rankOffset   = 59.0
)

type Options struct {
	// UseProximity adds proximity as a field. It only carries information
	// when more than one term or disjunct contributed.
	UseProximity bool
}

type field struct {
	name  string
	value func(*models.CandidateDoc) float64
}

// Fuse sets OutScore on every candidate and returns them ordered by it,
// highest first. Candidates with equal scores keep their input order.
func Fuse(cands []models.CandidateDoc, opts Options) []models.CandidateDoc {
	out := make([]models.CandidateDoc, len(cands))
	copy(out, cands)
	if len(out) == 0 {
		return out
	}

	fields := activeFields(out, opts)
	alpha := fusionBudget / float64(len(fields))
	for i := range out {
		out[i].OutScore = 0
		if !opts.UseProximity {
			out[i].Proximity = 1
		}
	}

	order := make([]int, len(out))
	for _, f := range fields {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return f.value(&out[order[a]]) > f.value(&out[order[b]])
		})
		tieRank := 1
		for pos, idx := range order {
			if pos > 0 && f.value(&out[idx]) != f.value(&out[order[pos-1]]) {
				tieRank++
			}
			out[idx].OutScore += alpha / (rankOffset + float64(tieRank))
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].OutScore > out[b].OutScore
	})
	return out
}

// Fields names the fields Fuse would use for cands, in application order.
func Fields(cands []models.CandidateDoc, opts Options) []string {
	fs := activeFields(cands, opts)
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.name
	}
	return names
}

func activeFields(cands []models.CandidateDoc, opts Options) []field {
	fields := []field{
		{"doc_rank", func(c *models.CandidateDoc) float64 { return c.DocRank }},
		{"relevance", func(c *models.CandidateDoc) float64 { return c.Relevance }},
	}
	if opts.UseProximity {
		fields = append(fields, field{"proximity", func(c *models.CandidateDoc) float64 { return c.Proximity }})
	}
	dims := make(map[string]struct{})
	for i := range cands {
		for name := range cands[i].UserRanks {
			dims[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, field{"user:" + name, func(c *models.CandidateDoc) float64 {
			return c.UserRanks[name]
		}})
	}
	return fields
}
