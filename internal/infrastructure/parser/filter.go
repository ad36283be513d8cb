package parser

import (
	"strings"
	"sync"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/unicode/norm"

	"ReviewAnalyzer/internal/domain"
)

// FilterRules are the invariants every review candidate must satisfy.
type FilterRules struct {
	MinChars    int
	MaxChars    int
	MinWords    int
	Boilerplate []string
}

// boilerplateMatcher wraps the Aho-Corasick automaton; Match mutates internal counters,
// so calls are serialized.
type boilerplateMatcher struct {
	mu      sync.Mutex
	matcher *ahocorasick.Matcher
}

func newBoilerplateMatcher(phrases []string) *boilerplateMatcher {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(NormalizeText(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	if len(normalized) == 0 {
		return &boilerplateMatcher{}
	}
	return &boilerplateMatcher{matcher: ahocorasick.NewStringMatcher(normalized)}
}

func (b *boilerplateMatcher) contains(lowered string) bool {
	if b == nil || b.matcher == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.matcher.Match([]byte(lowered))) > 0
}

// candidateFilter applies FilterRules and exact-text dedup within one extraction run.
type candidateFilter struct {
	rules       FilterRules
	boilerplate *boilerplateMatcher
	seen        map[string]struct{}
}

func newCandidateFilter(rules FilterRules, boilerplate *boilerplateMatcher) *candidateFilter {
	return &candidateFilter{
		rules:       rules,
		boilerplate: boilerplate,
		seen:        map[string]struct{}{},
	}
}

// accept normalizes raw and reports whether it qualifies as a review candidate.
func (f *candidateFilter) accept(raw, strategy string) (domain.ReviewCandidate, bool) {
	text := NormalizeText(raw)
	if text == "" {
		return domain.ReviewCandidate{}, false
	}

	length := utf8.RuneCountInString(text)
	if length < f.rules.MinChars {
		return domain.ReviewCandidate{}, false
	}
	if f.rules.MaxChars > 0 && length > f.rules.MaxChars {
		return domain.ReviewCandidate{}, false
	}
	if len(strings.Fields(text)) < f.rules.MinWords {
		return domain.ReviewCandidate{}, false
	}
	if f.boilerplate.contains(strings.ToLower(text)) {
		return domain.ReviewCandidate{}, false
	}

	if _, dup := f.seen[text]; dup {
		return domain.ReviewCandidate{}, false
	}
	f.seen[text] = struct{}{}

	return domain.ReviewCandidate{Text: text, Strategy: strategy}, true
}

// NormalizeText collapses whitespace and applies Unicode NFC normalization.
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}
