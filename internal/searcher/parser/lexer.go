// Package parser lexes query text into typed tokens and applies the semantic
// rewrite rules that run before compilation.
package parser

import (
	"strconv"
	"strings"
	"unicode"
)

type TokenKind int

const (
	Word TokenKind = iota
	Quoted
	Meta
	Index
	Weight
	Disallow
	If
	Or
	PartMarker
)

// MetaPrefixes are the operators passed through as materialized terms.
var MetaPrefixes = map[string]struct{}{
	"site": {}, "info": {}, "safe": {}, "date": {}, "lang": {}, "media": {},
	"duration": {}, "filetype": {}, "host": {}, "path": {}, "server": {},
	"location": {}, "mix": {}, "link": {}, "modified": {}, "size": {},
	"version": {},
}

// Token is one lexeme of a query. Which fields are set depends on Kind;
// Phrase marks a Disallow token written as -"...".
type Token struct {
	Kind    TokenKind
	Prefix  string
	Value   string
	Negated bool
	Phrase  bool
	Weight  float64
	// Valid is false for a weight that did not parse.
	Valid bool
	N     int
}

type Tokens []Token

// Lex scans query text into tokens. A "|" inside quotes is literal and an
// unterminated quote runs to the end of the text.
func Lex(text string) Tokens {
	rs := []rune(text)
	var out Tokens
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"':
			value, end := quotedAt(rs, i)
			out = append(out, Token{Kind: Quoted, Value: value})
			i = end
		case r == '-' && i+1 < len(rs) && rs[i+1] == '"':
			value, end := quotedAt(rs, i+1)
			out = append(out, Token{Kind: Disallow, Value: value, Phrase: true})
			i = end
		case r == '|':
			out = append(out, Token{Kind: Or})
			i++
		default:
			if n, end, ok := partMarkerAt(rs, i); ok {
				out = append(out, Token{Kind: PartMarker, N: n})
				i = end
				continue
			}
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && rs[j] != '|' && rs[j] != '"' {
				if _, _, ok := partMarkerAt(rs, j); ok && j > i {
					break
				}
				j++
			}
			out = append(out, classify(string(rs[i:j])))
			i = j
		}
	}
	return out
}

// quotedAt reads the quoted text opening at rs[i] and returns it with the
// index just past the closing quote.
func quotedAt(rs []rune, i int) (string, int) {
	j := i + 1
	for j < len(rs) && rs[j] != '"' {
		j++
	}
	return string(rs[i+1 : j]), j + 1
}

func partMarkerAt(rs []rune, i int) (n, end int, ok bool) {
	if rs[i] != '#' {
		return 0, 0, false
	}
	j := i + 1
	for j < len(rs) && rs[j] >= '0' && rs[j] <= '9' {
		j++
	}
	if j == i+1 || j >= len(rs) || rs[j] != '#' {
		return 0, 0, false
	}
	n, err := strconv.Atoi(string(rs[i+1 : j]))
	if err != nil {
		return 0, 0, false
	}
	return n, j + 1, true
}

func classify(word string) Token {
	lower := strings.ToLower(word)
	switch {
	case strings.HasPrefix(lower, "if:"):
		return Token{Kind: If, Value: word[3:]}
	case strings.HasPrefix(lower, "-i:"), strings.HasPrefix(lower, "-index:"):
		return Token{Kind: Index, Value: word[strings.IndexByte(word, ':')+1:], Negated: true}
	case strings.HasPrefix(lower, "i:"), strings.HasPrefix(lower, "index:"):
		v := word[strings.IndexByte(word, ':')+1:]
		if strings.HasPrefix(v, "-") {
			return Token{Kind: Index, Value: v[1:], Negated: true}
		}
		return Token{Kind: Index, Value: v}
	case strings.HasPrefix(lower, "w:"), strings.HasPrefix(lower, "weight:"):
		v := word[strings.IndexByte(word, ':')+1:]
		w, err := strconv.ParseFloat(v, 64)
		return Token{Kind: Weight, Value: v, Weight: w, Valid: err == nil}
	case len(word) > 1 && word[0] == '-':
		return Token{Kind: Disallow, Value: word[1:]}
	}
	if i := strings.IndexByte(word, ':'); i > 0 {
		prefix := strings.ToLower(word[:i])
		if _, ok := MetaPrefixes[prefix]; ok {
			return Token{Kind: Meta, Prefix: prefix, Value: word[i+1:]}
		}
	}
	return Token{Kind: Word, Value: word}
}

// String serializes a single token back to query syntax.
func (t Token) String() string {
	switch t.Kind {
	case Quoted:
		return `"` + t.Value + `"`
	case Meta:
		return t.Prefix + ":" + t.Value
	case Index:
		if t.Negated {
			return "-i:" + t.Value
		}
		return "i:" + t.Value
	case Weight:
		return "w:" + t.Value
	case Disallow:
		if t.Phrase {
			return `-"` + t.Value + `"`
		}
		return "-" + t.Value
	case If:
		return "if:" + t.Value
	case Or:
		return "|"
	case PartMarker:
		return "#" + strconv.Itoa(t.N) + "#"
	}
	return t.Value
}

// String re-serializes the tokens, space separated.
func (ts Tokens) String() string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// Disjuncts splits tokens on Or.
func (ts Tokens) Disjuncts() []Tokens {
	var out []Tokens
	start := 0
	for i, t := range ts {
		if t.Kind == Or {
			out = append(out, ts[start:i])
			start = i + 1
		}
	}
	return append(out, ts[start:])
}

// Has reports whether a meta operator with prefix is present.
func (ts Tokens) Has(prefix string) bool {
	for _, t := range ts {
		if t.Kind == Meta && t.Prefix == prefix {
			return true
		}
	}
	return false
}

// HasMeta reports whether prefix:value is present.
func (ts Tokens) HasMeta(prefix, value string) bool {
	for _, t := range ts {
		if t.Kind == Meta && t.Prefix == prefix && strings.EqualFold(t.Value, value) {
			return true
		}
	}
	return false
}

// MetaValue returns the value of the first prefix: token.
func (ts Tokens) MetaValue(prefix string) (string, bool) {
	for _, t := range ts {
		if t.Kind == Meta && t.Prefix == prefix {
			return t.Value, true
		}
	}
	return "", false
}
