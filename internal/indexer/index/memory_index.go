// Package index is the in-memory posting source of a searcher machine.
// Documents get a machine-wide ordinal; every term, meta term and index
// listing is a roaring bitmap of ordinals.
package index

import (
	"context"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/iterator"
)

// Document is one crawled page as the indexer sees it.
type Document struct {
	Key           models.Key
	Text          string
	Meta          tokenizer.DocMeta
	DocRank       float64
	Generation    int
	SummaryOffset int64
	UserRanks     map[string]float64
}

type entry struct {
	doc       Document
	index     string
	length    int
	positions map[models.Key][]int
}

type named struct {
	all      *roaring.Bitmap
	postings map[models.Key]*roaring.Bitmap
	totalLen int64
}

type MemoryIndex struct {
	mu        sync.RWMutex
	machineID int
	entries   []entry
	indexes   map[string]*named
	size      int64
}

var _ iterator.Source = (*MemoryIndex)(nil)

func NewMemoryIndex(machineID int) *MemoryIndex {
	return &MemoryIndex{
		machineID: machineID,
		indexes:   make(map[string]*named),
	}
}

// AddDocument indexes doc under indexName and returns its ordinal.
func (m *MemoryIndex) AddDocument(indexName string, doc Document) uint32 {
	tokens := tokenizer.Tokenize(doc.Text)
	positions := make(map[models.Key][]int)
	for _, tok := range tokens {
		k := tokenizer.HashWord(tok.Term)
		positions[k] = append(positions[k], tok.Position)
	}
	metas := tokenizer.MetaTerms(doc.Meta)

	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.indexes[indexName]
	if !ok {
		n = &named{
			all:      roaring.New(),
			postings: make(map[models.Key]*roaring.Bitmap),
		}
		m.indexes[indexName] = n
	}
	ord := uint32(len(m.entries))
	m.entries = append(m.entries, entry{
		doc:       doc,
		index:     indexName,
		length:    len(tokens),
		positions: positions,
	})
	n.all.Add(ord)
	n.totalLen += int64(len(tokens))
	add := func(k models.Key) {
		bm, ok := n.postings[k]
		if !ok {
			bm = roaring.New()
			n.postings[k] = bm
		}
		bm.Add(ord)
	}
	for k := range positions {
		add(k)
	}
	for _, meta := range metas {
		add(tokenizer.HashWord(meta))
	}
	m.size += int64(len(doc.Text) + len(positions)*16 + len(metas)*8 + 64)
	return ord
}

// Word returns a leaf over the documents of indexName holding key. Unknown
// indexes and keys yield an empty leaf.
func (m *MemoryIndex) Word(_ context.Context, indexName string, key models.Key, dir models.Direction) (iterator.Leaf, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	leaf := &postingLeaf{
		name:      indexName + ":" + key.String(),
		key:       key,
		word:      true,
		dir:       dir,
		entries:   m.entries,
		machineID: m.machineID,
	}
	n, ok := m.indexes[indexName]
	if !ok {
		return leaf, nil
	}
	bm, ok := n.postings[key]
	if !ok {
		return leaf, nil
	}
	leaf.ords = ordered(bm, dir)
	total := n.all.GetCardinality()
	leaf.idf = computeIDF(int64(total), int64(bm.GetCardinality()))
	if total > 0 {
		leaf.avgLen = float64(n.totalLen) / float64(total)
	}
	return leaf, nil
}

// Listing returns a leaf over every document of indexName.
func (m *MemoryIndex) Listing(_ context.Context, indexName string, dir models.Direction) (iterator.Leaf, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	leaf := &postingLeaf{
		name:      indexName + ":listing",
		dir:       dir,
		entries:   m.entries,
		machineID: m.machineID,
	}
	if n, ok := m.indexes[indexName]; ok {
		leaf.ords = ordered(n.all, dir)
	}
	return leaf, nil
}

func ordered(bm *roaring.Bitmap, dir models.Direction) []uint32 {
	ords := bm.ToArray()
	if dir == models.Descending {
		for i, j := 0, len(ords)-1; i < j; i, j = i+1, j-1 {
			ords[i], ords[j] = ords[j], ords[i]
		}
	}
	return ords
}

// Indexes lists the index names with at least one document.
func (m *MemoryIndex) Indexes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.indexes))
	for name := range m.indexes {
		out = append(out, name)
	}
	return out
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.indexes = make(map[string]*named)
	m.size = 0
}

const (
	k1 = 1.2
	b  = 0.75
)

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
