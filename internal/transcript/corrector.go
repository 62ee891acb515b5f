package transcript

import (
	"context"
	"strings"

	"github.com/voxscribe/voxscribe/internal/transcript/llmcorrect"
	"github.com/voxscribe/voxscribe/internal/transcript/phonetic"
)

// PipelineOption is a functional option for configuring a [CorrectionPipeline].
type PipelineOption func(*CorrectionPipeline)

// WithPhoneticMatcher attaches a [PhoneticMatcher] as the first correction
// stage. When nil (the default), the phonetic stage is skipped.
func WithPhoneticMatcher(m PhoneticMatcher) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.phonetic = m
	}
}

// WithLLMCorrector attaches an [llmcorrect.Corrector] as the second
// correction stage. When nil (the default), the LLM stage is skipped.
func WithLLMCorrector(c *llmcorrect.Corrector) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmCorrector = c
	}
}

// CorrectionPipeline is the two-stage [Pipeline] implementation. Both
// stages are optional and applied in order:
//
//  1. [PhoneticMatcher]: fast in-process vocabulary alignment.
//  2. [llmcorrect.Corrector]: LLM review of the phonetic-corrected text.
//
// Batch transcription yields plain text without per-word confidence, so
// when the LLM stage is configured it reviews every utterance rather than
// only flagged spans.
//
// CorrectionPipeline is safe for concurrent use.
type CorrectionPipeline struct {
	phonetic     PhoneticMatcher
	llmCorrector *llmcorrect.Corrector
}

// Compile-time interface assertion.
var _ Pipeline = (*CorrectionPipeline)(nil)

// NewPipeline constructs a [CorrectionPipeline]. By default both stages are
// disabled; use [WithPhoneticMatcher] and [WithLLMCorrector] to activate
// them.
func NewPipeline(opts ...PipelineOption) *CorrectionPipeline {
	p := &CorrectionPipeline{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct implements [Pipeline].
//
// Flow:
//  1. The text is tokenised into whitespace-separated tokens.
//  2. With a phonetic matcher configured, n-gram windows (up to the longest
//     vocabulary term's word count) are tested at each position, longest
//     window first, so multi-word terms take precedence over partial
//     single-word matches.
//  3. With an LLM corrector configured, the phonetic-corrected text is
//     submitted for review.
//
// Context cancellation during the LLM stage is returned as an error.
func (p *CorrectionPipeline) Correct(ctx context.Context, text string, vocab []string) (*Corrected, error) {
	result := &Corrected{
		Original:    text,
		Corrections: []Correction{},
	}

	workingText := text

	if p.phonetic != nil && len(vocab) > 0 {
		correctedText, corrections := p.applyPhonetic(text, vocab)
		workingText = correctedText
		result.Corrections = append(result.Corrections, corrections...)
	}

	if p.llmCorrector != nil && len(vocab) > 0 {
		correctedText, llmCorrections, err := p.llmCorrector.Correct(ctx, workingText, vocab)
		if err != nil {
			return nil, err
		}
		workingText = correctedText
		for _, lc := range llmCorrections {
			result.Corrections = append(result.Corrections, Correction{
				Original:   lc.Original,
				Corrected:  lc.Corrected,
				Confidence: lc.Confidence,
				Method:     "llm",
			})
		}
	}

	result.Text = workingText
	return result, nil
}

// applyPhonetic slides an n-gram window over the text and replaces windows
// that match a vocabulary term. It returns the corrected text and the
// corrections applied, in text order.
func (p *CorrectionPipeline) applyPhonetic(text string, vocab []string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	// When the matcher supports precomputation, prepare the vocabulary once
	// and use the fast path for every window.
	var matchFn func(string) (string, float64, bool)
	var maxTermWords int

	if pm, ok := p.phonetic.(*phonetic.Matcher); ok {
		pv := phonetic.Prepare(vocab)
		maxTermWords = pv.MaxWords()
		matchFn = func(window string) (string, float64, bool) {
			return pm.MatchPrepared(window, pv)
		}
	} else {
		maxTermWords = maxWordCount(vocab)
		matchFn = func(window string) (string, float64, bool) {
			return p.phonetic.Match(window, vocab)
		}
	}

	if maxTermWords == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := matchFn(window)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(term)...)
			if term != window {
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  term,
					Confidence: conf,
					Method:     "phonetic",
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any term, with a floor of 1 so single-word matching still runs on an
// all-blank vocabulary.
func maxWordCount(terms []string) int {
	max := 1
	for _, t := range terms {
		if n := len(strings.Fields(t)); n > max {
			max = n
		}
	}
	return max
}
