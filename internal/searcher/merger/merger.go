// Package merger combines ranked candidate lists from several machines into
// one list ordered by fused score.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// Merge k-way merges lists, each already ordered by descending OutScore,
// keeping at most limit candidates. Equal scores keep machine order, so
// lists[0] wins ties over lists[1]; a raw run whose scores are all zero
// comes out as the concatenation of the lists. A limit <= 0 keeps all.
func Merge(lists [][]models.CandidateDoc, limit int) []models.CandidateDoc {
	total := 0
	h := make(headHeap, 0, len(lists))
	for i, l := range lists {
		total += len(l)
		if len(l) > 0 {
			h = append(h, head{list: i, docs: l})
		}
	}
	if limit <= 0 || limit > total {
		limit = total
	}
	heap.Init(&h)
	out := make([]models.CandidateDoc, 0, limit)
	for len(out) < limit && h.Len() > 0 {
		top := &h[0]
		out = append(out, top.docs[top.pos])
		top.pos++
		if top.pos == len(top.docs) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}

type head struct {
	list int
	docs []models.CandidateDoc
	pos  int
}

type headHeap []head

func (h headHeap) Len() int { return len(h) }

func (h headHeap) Less(i, j int) bool {
	a, b := h[i].docs[h[i].pos], h[j].docs[h[j].pos]
	if a.OutScore != b.OutScore {
		return a.OutScore > b.OutScore
	}
	if h[i].list != h[j].list {
		return h[i].list < h[j].list
	}
	return a.Key < b.Key
}

func (h headHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *headHeap) Push(x interface{}) {
	*h = append(*h, x.(head))
}

func (h *headHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
