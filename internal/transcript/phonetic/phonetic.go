// Package phonetic implements [transcript.PhoneticMatcher] using Double
// Metaphone encoding combined with Jaro-Winkler similarity for ranked
// candidate selection.
//
// Matching proceeds in two stages:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for each token
//     of the input and of each vocabulary term. A term whose code set
//     overlaps the input's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest Jaro-Winkler score (case-insensitive, on the original
//     strings) wins, provided it clears the phonetic threshold. When no
//     phonetic candidate exists, a fallback pass accepts pure string
//     similarity above a stricter fuzzy threshold.
//
// Multi-word terms ("General Grievous", "boss room two") are supported: the
// matcher encodes every token and takes the best pairwise score across
// token pairs when ranking.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher implements [transcript.PhoneticMatcher]. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// preparedTerm is a vocabulary term with precomputed phonetic data.
type preparedTerm struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Vocab holds a vocabulary list with Double Metaphone codes precomputed per
// term, so that the per-window cost of matching a whole utterance is one
// encoding of the window instead of one per (window, term) pair.
//
// A Vocab is read-only after construction and safe for concurrent use.
type Vocab struct {
	terms    []preparedTerm
	maxWords int
}

// Prepare precomputes phonetic data for the given terms. Blank terms are
// dropped.
func Prepare(terms []string) *Vocab {
	v := &Vocab{}
	for _, term := range terms {
		lower := strings.ToLower(strings.TrimSpace(term))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		if n := len(tokens); n > v.maxWords {
			v.maxWords = n
		}
		v.terms = append(v.terms, preparedTerm{
			canonical: term,
			lower:     lower,
			tokens:    tokens,
			codes:     codesForTokens(tokens),
		})
	}
	return v
}

// Len returns the number of usable terms.
func (v *Vocab) Len() int { return len(v.terms) }

// MaxWords returns the token count of the longest term, or 0 when the
// vocabulary is empty.
func (v *Vocab) MaxWords() int { return v.maxWords }

// Match attempts to find the vocabulary term most phonetically similar to
// phrase. phrase may be a single word or a space-separated n-gram.
//
// Return values follow the [transcript.PhoneticMatcher] contract: when
// matched is false, corrected equals phrase unchanged and confidence is 0.
func (m *Matcher) Match(phrase string, vocab []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(phrase, Prepare(vocab))
}

// MatchPrepared is like [Matcher.Match] but reuses a precomputed [Vocab].
// This is the fast path for callers that slide an n-gram window over a whole
// utterance.
func (m *Matcher) MatchPrepared(phrase string, vocab *Vocab) (corrected string, confidence float64, matched bool) {
	if vocab.Len() == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	phraseLower := strings.ToLower(strings.TrimSpace(phrase))
	phraseTokens := strings.Fields(phraseLower)
	phraseCodes := codesForTokens(phraseTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}

	var best candidate

	for i := range vocab.terms {
		term := &vocab.terms[i]

		phoneticMatch := codesOverlap(phraseCodes, term.codes)
		jwScore := bestJWScore(phraseTokens, term.tokens, phraseLower, term.lower)

		if phoneticMatch {
			if jwScore >= m.phoneticThreshold {
				if !best.phonetic || jwScore > best.score {
					best = candidate{term: term.canonical, score: jwScore, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if jwScore >= m.fuzzyThreshold && jwScore > best.score {
				best = candidate{term: term.canonical, score: jwScore, phonetic: false}
			}
		}
	}

	if best.term != "" {
		return best.term, best.score, true
	}
	return phrase, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// input and the term using three strategies:
//
//  1. Full-string comparison ("general grevis" vs "general grievous").
//  2. Space-stripped comparison ("boss rum" vs "bossroom").
//  3. Best pairwise token comparison, for the case where one spoken word
//     lines up with one term word.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(it, tt, false); s > score {
				score = s
			}
		}
	}

	return score
}
