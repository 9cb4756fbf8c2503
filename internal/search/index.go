// Package search provides a simple, deterministic, concurrency-safe ranked
// index over a user's saved memory items. It backs the memory_search tool:
// items are tokenized once at build time and queried with Jaccard similarity
// between the query token set and each item's token set.
//
// Design notes:
//   - No logging in the library (callers decide how/what to log)
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//   - score = |Q ∩ I| / |Q ∪ I|
package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entry is one indexable item: an opaque ref (the item id) plus the text the
// match runs over (title, content, genres joined by the caller).
type Entry struct {
	Ref  string
	Text string
}

// Result is a ranked entry with its similarity score.
type Result struct {
	Ref     string
	Snippet string
	Score   float64
}

// Index is the minimal interface consumed by the memory_search tool.
type Index interface {
	TopK(query string, k int) []Result
}

// Option customizes index construction.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{stopwords: defaultStopwords, maxDocs: 0}
}

// WithStopwords replaces the default Portuguese stop-word set.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = foldAccents(strings.ToLower(strings.TrimSpace(w)))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps how many entries are indexed.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// defaultStopwords drops the Portuguese filler that would otherwise dominate
// short item titles.
var defaultStopwords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {}, "de": {}, "do": {},
	"da": {}, "dos": {}, "das": {}, "em": {}, "no": {}, "na": {}, "que": {},
	"e": {}, "ou": {}, "para": {}, "pra": {}, "com": {}, "por": {}, "meu": {},
	"minha": {}, "the": {}, "of": {}, "and": {},
}

type doc struct {
	ref    string
	text   string
	tokens map[string]struct{}
	tLen   int
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an immutable index from the given entries.
func NewIndex(entries []Entry, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(entries))
	for _, e := range entries {
		t := strings.TrimSpace(e.Text)
		if t == "" {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{ref: e.Ref, text: t, tokens: toks, tLen: len(toks)})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k best-matching entries by Jaccard similarity.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 5
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		ref      string
		snippet  string
		score    float64
		lenRunes int
	}

	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + d.tLen - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, scored{
			ref:      d.ref,
			snippet:  d.text,
			score:    float64(over) / union,
			lenRunes: utf8.RuneCountInString(d.text),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].snippet < buf[b].snippet
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for idx := 0; idx < k; idx++ {
		out[idx] = Result{Ref: buf[idx].ref, Snippet: buf[idx].snippet, Score: buf[idx].score}
	}
	return out
}

// foldAccents strips combining marks so "ficção" and "ficcao" produce the
// same token. Queries typed without accents are the norm on mobile keyboards.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// tokenize lowercases, folds accents, splits on non-letter/digit boundaries,
// and drops stop-words.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := foldAccents(strings.ToLower(b.String()))
		b.Reset()
		if _, skip := stop[tok]; skip {
			return
		}
		out[tok] = struct{}{}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

func overlap(q, d map[string]struct{}) int {
	// Iterate the smaller set.
	if len(d) < len(q) {
		q, d = d, q
	}
	n := 0
	for tok := range q {
		if _, ok := d[tok]; ok {
			n++
		}
	}
	return n
}
