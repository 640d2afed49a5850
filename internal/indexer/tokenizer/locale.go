package tokenizer

import (
	"strings"
	"unicode"
)

var scriptLocales = []struct {
	table  *unicode.RangeTable
	locale string
}{
	{unicode.Hiragana, "ja"},
	{unicode.Katakana, "ja"},
	{unicode.Hangul, "ko"},
	{unicode.Han, "zh-CN"},
	{unicode.Cyrillic, "ru"},
	{unicode.Arabic, "ar"},
	{unicode.Greek, "el"},
	{unicode.Hebrew, "he"},
	{unicode.Thai, "th"},
	{unicode.Devanagari, "hi"},
}

// GuessLocale returns the locale of the dominant non-Latin script in text,
// or def when the text is Latin, numeric or empty. Kana wins over Han so
// that mixed Japanese text is not taken for Chinese.
func GuessLocale(text, def string) string {
	counts := make(map[string]int)
	for _, r := range text {
		for _, sl := range scriptLocales {
			if unicode.Is(sl.table, r) {
				counts[sl.locale]++
				break
			}
		}
	}
	if counts["ja"] > 0 {
		return "ja"
	}
	best, bestCount := def, 0
	for _, sl := range scriptLocales {
		if c := counts[sl.locale]; c > bestCount {
			best, bestCount = sl.locale, c
		}
	}
	return best
}

// PrimarySubtag returns the language part of a locale tag ("en-US" -> "en").
func PrimarySubtag(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return strings.ToLower(locale[:i])
	}
	return strings.ToLower(locale)
}

var letterGloss = map[string]string{
	"en": "letter",
	"fr": "lettre",
	"de": "buchstabe",
	"es": "letra",
	"pt": "letra",
	"it": "lettera",
	"nl": "letter",
	"ru": "буква",
	"el": "γράμμα",
	"pl": "litera",
	"tr": "harf",
	"vi": "chữ",
}

// LetterGloss returns the word used to disambiguate a single-character query
// in the given locale.
func LetterGloss(locale string) (string, bool) {
	g, ok := letterGloss[PrimarySubtag(locale)]
	return g, ok
}

var (
	questionWords = map[string]struct{}{
		"who": {}, "what": {}, "where": {}, "when": {}, "why": {},
		"how": {}, "which": {}, "whom": {}, "whose": {},
	}
	auxiliaryWords = map[string]struct{}{
		"is": {}, "are": {}, "was": {}, "were": {}, "does": {}, "do": {},
		"did": {}, "can": {}, "could": {}, "should": {}, "would": {},
		"will": {}, "the": {}, "a": {}, "an": {}, "of": {},
	}
)

// DetectQuestion recognises English questions. raw is the lower-cased
// question without its question mark; concise drops the question word and
// auxiliaries.
func DetectQuestion(text, locale string) (concise, raw string, ok bool) {
	if PrimarySubtag(locale) != "en" {
		return "", "", false
	}
	trimmed := strings.TrimSpace(text)
	fields := strings.Fields(strings.ToLower(strings.TrimRight(trimmed, "?")))
	if len(fields) < 2 {
		return "", "", false
	}
	if _, wh := questionWords[fields[0]]; !wh {
		if _, aux := auxiliaryWords[fields[0]]; !aux || !strings.HasSuffix(trimmed, "?") {
			return "", "", false
		}
	}
	for _, f := range fields {
		if strings.Contains(f, ":") {
			return "", "", false
		}
	}
	raw = strings.Join(fields, " ")
	kept := make([]string, 0, len(fields))
	for _, f := range fields[1:] {
		if _, aux := auxiliaryWords[f]; aux {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " "), raw, true
}
