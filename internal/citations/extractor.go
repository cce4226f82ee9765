// Package citations extracts and normalizes URL references from raw answer
// text.
package citations

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\(\s*(https?://[^)\s]+)\s*\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
)

// Extractor parses answer text into ordered, deduplicated citations and
// assigns each a domain-authority weight.
type Extractor struct {
	authority *AuthorityTable
}

// NewExtractor creates an extractor backed by the given authority table.
// A nil table falls back to the built-in defaults.
func NewExtractor(authority *AuthorityTable) *Extractor {
	if authority == nil {
		authority = DefaultAuthorityTable()
	}
	return &Extractor{authority: authority}
}

// Extract scans text for URL-shaped tokens (bare URLs and markdown links) in
// first-to-last appearance order, normalizes them, and deduplicates on the
// normalized host+path keeping the first position. It never fails:
// unparseable tokens are skipped and an answer with zero citations is valid.
func (e *Extractor) Extract(answerID, text string) []model.Citation {
	return e.assemble(answerID, scan(text))
}

// Combine builds the citation list for an answer that carries provider-native
// citations in addition to its text. Native URLs keep their reported order
// and rank ahead of anything only found in the text.
func (e *Extractor) Combine(answerID string, nativeURLs []string, text string) []model.Citation {
	raws := make([]string, 0, len(nativeURLs)+4)
	raws = append(raws, nativeURLs...)
	raws = append(raws, scan(text)...)
	return e.assemble(answerID, raws)
}

// scan returns raw URL tokens in first-seen textual order.
func scan(text string) []string {
	type hit struct {
		offset int
		raw    string
	}
	var hits []hit

	for _, m := range markdownLinkRe.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{offset: m[2], raw: text[m[2]:m[3]]})
	}
	for _, m := range bareURLRe.FindAllStringIndex(text, -1) {
		hits = append(hits, hit{offset: m[0], raw: text[m[0]:m[1]]})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.raw
	}
	return out
}

func (e *Extractor) assemble(answerID string, raws []string) []model.Citation {
	var out []model.Citation
	seen := make(map[string]struct{})
	for _, raw := range raws {
		raw = strings.TrimRight(raw, `.,;:!?)"'`)
		norm, ok := Normalize(raw)
		if !ok {
			continue
		}
		// Dedupe on host+path: the same page cited with and without
		// tracking params counts once.
		key := norm
		if i := strings.IndexByte(key, '?'); i >= 0 {
			key = key[:i]
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		domain := Domain(norm)
		out = append(out, model.Citation{
			AnswerID:   answerID,
			URL:        raw,
			Normalized: norm,
			Domain:     domain,
			Position:   len(out),
			Authority:  e.authority.Weight(domain),
		})
	}
	return out
}

// Normalize canonicalizes a URL: the host is lower-cased with any leading
// "www." removed, the scheme and trailing slash are stripped, and path and
// query are preserved. Normalizing an already-normalized value yields the
// same value.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", false
	}

	norm := host + u.Path
	if u.RawQuery != "" {
		norm += "?" + u.RawQuery
	}
	norm = strings.TrimSuffix(norm, "/")
	return norm, true
}

// Domain returns the host-only part of a normalized URL, used for
// domain-level aggregation.
func Domain(normalized string) string {
	if i := strings.IndexAny(normalized, "/?"); i >= 0 {
		return normalized[:i]
	}
	return normalized
}
