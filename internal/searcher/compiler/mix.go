package compiler

import (
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/parser"
)

// RewriteForMix expands query over the components of mix. Each fragment
// becomes one presentation part whose disjuncts are the query's disjuncts
// crossed with the fragment's components.
func RewriteForMix(query string, mix models.Mix) string {
	disjuncts := parser.Lex(query).Disjuncts()
	var b strings.Builder
	for _, frag := range mix.Fragments {
		var alts []string
		for _, d := range disjuncts {
			base, qw := stripMixControls(d)
			for _, c := range frag.Components {
				alts = append(alts, componentQuery(base, qw, c))
			}
		}
		if len(alts) == 0 {
			continue
		}
		b.WriteString(strings.Join(alts, " | "))
		b.WriteString(" #")
		b.WriteString(strconv.Itoa(frag.ResultBound))
		b.WriteString("# ")
	}
	return strings.TrimSpace(b.String())
}

// stripMixControls removes the tokens a component overrides and returns the
// disjunct's own weight.
func stripMixControls(d parser.Tokens) (parser.Tokens, float64) {
	weight := 1.0
	out := make(parser.Tokens, 0, len(d))
	for _, t := range d {
		switch {
		case t.Kind == parser.Weight:
			if t.Valid {
				weight = t.Weight
			}
		case t.Kind == parser.Index, t.Kind == parser.PartMarker:
		case t.Kind == parser.Meta && t.Prefix == "mix":
		default:
			out = append(out, t)
		}
	}
	return out, weight
}

func componentQuery(base parser.Tokens, qw float64, c models.MixComponent) string {
	parts := make([]string, 0, 4)
	if s := base.String(); s != "" {
		parts = append(parts, s)
	}
	if kw := strings.TrimSpace(c.Keywords); kw != "" {
		parts = append(parts, kw)
	}
	cw := c.Weight
	if cw == 0 {
		cw = 1
	}
	parts = append(parts, "w:"+strconv.FormatFloat(cw*qw, 'g', -1, 64))
	if c.Index != "" {
		if c.Direction == models.Descending {
			parts = append(parts, "-i:"+c.Index)
		} else {
			parts = append(parts, "i:"+c.Index)
		}
	}
	return strings.Join(parts, " ")
}
