package parser

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// domainSuffixes turn a bare token like "example.com" into site:example.com.
var domainSuffixes = []string{
	".com", ".net", ".org", ".edu", ".gov", ".mil", ".int", ".info", ".biz",
	".io", ".co", ".us", ".uk", ".de", ".fr", ".jp", ".ca", ".au",
}

// Extractor is the part of the tokenizer the rewriter consults.
type Extractor interface {
	GuessLocale(text, def string) string
	Question(text, locale string) (concise, raw string, ok bool)
}

type Rewriter struct {
	extractor     Extractor
	defaultLocale string
	now           func() time.Time
	logger        *slog.Logger
}

type Option func(*Rewriter)

// WithClock fixes the time used to expand date periods.
func WithClock(now func() time.Time) Option {
	return func(r *Rewriter) { r.now = now }
}

func NewRewriter(extractor Extractor, defaultLocale string, opts ...Option) *Rewriter {
	r := &Rewriter{
		extractor:     extractor,
		defaultLocale: defaultLocale,
		now:           time.Now,
		logger:        slog.Default().With("component", "query-rewriter"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rewrite expands operator heuristics and appends the session defaults
// missing from each disjunct.
func (r *Rewriter) Rewrite(query string, session models.Session) string {
	tokens := r.expandIfs(Lex(query))

	for i, t := range tokens {
		if t.Kind != Word {
			continue
		}
		tokens[i] = rewriteSite(t)
	}
	for i, t := range tokens {
		if t.Kind == Meta && t.Prefix == "info" && len(t.String()) > 16 &&
			!strings.Contains(t.Value, "/") && !strings.Contains(t.Value, "http") {
			tokens[i].Value = "http://" + t.Value
		}
	}

	def := session.Locale
	if def == "" {
		def = r.defaultLocale
	}
	locale := r.extractor.GuessLocale(freeText(tokens), def)

	if c, ok := singleChar(tokens); ok {
		if gloss, ok := tokenizer.LetterGloss(locale); ok {
			tokens = Tokens{{Kind: Quoted, Value: gloss + " " + c}, {Kind: Or}, {Kind: Word, Value: c}}
		}
	} else if onlyFreeText(tokens) {
		if concise, raw, ok := r.extractor.Question(tokens.String(), locale); ok {
			q := concise
			if strings.TrimSpace(q) == "" {
				q = raw
			}
			tokens = Lex(q)
		}
	}

	return r.appendDefaults(tokens, session, locale).String()
}

// expandIfs evaluates every if: token against the query without its if:
// tokens and appends the chosen branch. Malformed expressions are dropped.
func (r *Rewriter) expandIfs(tokens Tokens) Tokens {
	residual := make(Tokens, 0, len(tokens))
	var conds []Token
	for _, t := range tokens {
		if t.Kind == If {
			conds = append(conds, t)
			continue
		}
		residual = append(residual, t)
	}
	if len(conds) == 0 {
		return tokens
	}
	text := residual.String()
	out := residual
	for _, c := range conds {
		parts := strings.Split(c.Value, "!")
		if len(parts) < 2 || parts[0] == "" {
			r.logger.Debug("dropping malformed if expression", "expr", c.Value)
			continue
		}
		needle := strings.ReplaceAll(parts[0], "+", " ")
		branch := ""
		if strings.Contains(text, needle) {
			branch = parts[1]
		} else if len(parts) > 2 {
			branch = parts[2]
		}
		if branch = strings.ReplaceAll(branch, "+", " "); branch != "" {
			out = append(out, Lex(branch)...)
		}
	}
	return out
}

func rewriteSite(t Token) Token {
	v := t.Value
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "www.") || strings.HasPrefix(lower, "http:") || strings.HasPrefix(lower, "https:") {
		return Token{Kind: Meta, Prefix: "site", Value: v}
	}
	if strings.ContainsAny(v, ":@") {
		return t
	}
	for _, s := range domainSuffixes {
		if strings.HasSuffix(lower, s) {
			return Token{Kind: Meta, Prefix: "site", Value: lower}
		}
	}
	return t
}

func freeText(tokens Tokens) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.Kind == Word || t.Kind == Quoted {
			b.WriteString(t.Value)
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func onlyFreeText(tokens Tokens) bool {
	for _, t := range tokens {
		if t.Kind != Word {
			return false
		}
	}
	return len(tokens) > 0
}

func singleChar(tokens Tokens) (string, bool) {
	if len(tokens) != 1 || tokens[0].Kind != Word {
		return "", false
	}
	v := tokens[0].Value
	if utf8.RuneCountInString(v) != 1 {
		return "", false
	}
	return v, true
}

// appendDefaults adds safe:, date:, lang:, duration: and image size
// operators to every disjunct of every part that lacks them.
func (r *Rewriter) appendDefaults(tokens Tokens, session models.Session, locale string) Tokens {
	out := make(Tokens, 0, len(tokens)+8)
	start := 0
	flush := func(end int) {
		seg := tokens[start:end]
		out = append(out, seg...)
		out = append(out, r.defaults(seg, session, locale)...)
	}
	for i, t := range tokens {
		if t.Kind == Or || t.Kind == PartMarker {
			flush(i)
			out = append(out, t)
			start = i + 1
		}
	}
	flush(len(tokens))
	return out
}

func (r *Rewriter) defaults(seg Tokens, session models.Session, locale string) Tokens {
	if len(seg) == 0 {
		return nil
	}
	var add Tokens
	meta := func(prefix, value string) {
		add = append(add, Token{Kind: Meta, Prefix: prefix, Value: value})
	}
	if !seg.Has("safe") {
		safe := true
		if session.SafeSearch != nil {
			safe = *session.SafeSearch
		}
		if safe {
			meta("safe", "true")
		} else {
			meta("safe", "false")
		}
	}
	if !seg.Has("date") && session.TimePeriod != "" {
		if d := tokenizer.DatePartition(session.TimePeriod, r.now()); d != "" {
			meta("date", d)
		}
	}
	image := seg.HasMeta("media", "image")
	if !seg.Has("lang") && !image && locale != "" {
		meta("lang", tokenizer.PrimarySubtag(locale))
	}
	if seg.HasMeta("media", "video") && !seg.Has("duration") && session.VideoDuration != "" {
		meta("duration", session.VideoDuration)
	}
	if image && session.ImageSize != "" && !seg.HasMeta("media", session.ImageSize) {
		meta("media", session.ImageSize)
	}
	return add
}
