package compiler

import "strings"

// FormatWords returns the distinct highlight words, dropping any word that is
// a substring of a longer word in the list. Order of first appearance is kept.
func FormatWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	uniq := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		uniq = append(uniq, w)
	}
	out := make([]string, 0, len(uniq))
	for _, w := range uniq {
		shadowed := false
		for _, other := range uniq {
			if len(other) > len(w) && strings.Contains(other, w) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, w)
		}
	}
	return out
}
