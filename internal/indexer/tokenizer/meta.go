package tokenizer

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DocMeta is what the indexer knows about a document beyond its text.
type DocMeta struct {
	URL       string
	Lang      string
	Safe      bool
	CrawlTime int64
	Media     string
}

// DatePartition renders t in the granularity a date: term is indexed at.
// Unknown periods yield "".
func DatePartition(period string, t time.Time) string {
	switch period {
	case "day":
		return t.Format("20060102")
	case "week":
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04dw%02d", y, w)
	case "month":
		return t.Format("200601")
	case "year":
		return t.Format("2006")
	}
	return ""
}

// MetaTerms lists the materialized meta terms a document is indexed under,
// matching what the query compiler emits for site:, lang:, safe:, date: and
// media: operators.
func MetaTerms(m DocMeta) []string {
	var terms []string
	if u, err := url.Parse(m.URL); err == nil && u.Host != "" {
		host := strings.ToLower(u.Hostname())
		bare := strings.TrimPrefix(host, "www.")
		terms = append(terms,
			"info:"+strings.ToLower(m.URL),
			"site:"+host,
			"site:"+u.Scheme+":",
			"site:"+u.Scheme+"://"+host,
		)
		if bare != host {
			terms = append(terms, "site:"+bare)
		}
		labels := strings.Split(bare, ".")
		if n := len(labels); n >= 2 {
			terms = append(terms, "site:"+labels[n-2]+"."+labels[n-1])
		}
		if i := strings.LastIndexByte(bare, '.'); i >= 0 {
			terms = append(terms, "site:"+bare[i:])
		}
	}
	if m.Lang != "" {
		lang := strings.ToLower(m.Lang)
		terms = append(terms, "lang:"+PrimarySubtag(lang))
		if p := PrimarySubtag(lang); p != lang {
			terms = append(terms, "lang:"+lang)
		}
	}
	if m.Safe {
		terms = append(terms, "safe:true")
	}
	if m.CrawlTime > 0 {
		t := time.Unix(m.CrawlTime, 0).UTC()
		for _, p := range []string{"day", "week", "month", "year"} {
			terms = append(terms, "date:"+DatePartition(p, t))
		}
	}
	media := m.Media
	if media == "" {
		media = "text"
	}
	terms = append(terms, "media:"+media)
	return dedupe(terms)
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
