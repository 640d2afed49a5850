// Package compiler turns rewritten query text into presentation parts and,
// per part, into the word structs the planner executes.
package compiler

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/parser"
)

// Parts splits query on #N# markers. Text before a marker contributes up to
// N rows; parts follow each other in the global row range. The last part is
// extended so that the parts cover [0, limit+num).
func Parts(query string, limit, num int) []models.PresentationPart {
	want := limit + num
	var (
		parts []models.PresentationPart
		cur   parser.Tokens
		start int
	)
	for _, t := range parser.Lex(query) {
		if t.Kind != parser.PartMarker {
			cur = append(cur, t)
			continue
		}
		if len(cur) > 0 {
			parts = append(parts, models.PresentationPart{Text: cur.String(), Start: start, Bound: t.N})
			start += t.N
		}
		cur = nil
	}
	if len(cur) > 0 || len(parts) == 0 {
		parts = append(parts, models.PresentationPart{
			Text:  strings.TrimSpace(cur.String()),
			Start: start,
			Bound: max(want-start, 0),
		})
		return parts
	}
	last := &parts[len(parts)-1]
	if last.End() < want {
		last.Bound = want - last.Start
	}
	return parts
}
