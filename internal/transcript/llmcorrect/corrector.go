// Package llmcorrect implements a language-model review stage that fixes
// vocabulary misspellings the phonetic matcher could not resolve.
//
// The [Corrector] sends the utterance text to an [llm.Provider] together
// with the known vocabulary. A conservative system prompt instructs the
// model to fix only words that look like misheard vocabulary terms and to
// return structured JSON naming every substitution. The returned text is
// then cross-checked token-by-token against the declared substitutions; any
// change the model made but did not declare is reverted.
//
// This stage runs after segmentation and transcription, never on the audio
// path, so model latency does not affect utterance boundaries. When the LLM
// response cannot be parsed, the corrector returns the input unchanged
// rather than failing the pipeline.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxscribe/voxscribe/pkg/llm"
)

const defaultTemperature = 0.1

// systemPromptTemplate is the base system prompt. The vocabulary list is
// appended at call time.
const systemPromptTemplate = `You are a transcript correction assistant for a voice chat transcription service.

Your task: fix misheard vocabulary terms in the provided utterance text.

Rules:
- ONLY correct words that appear to be misheard versions of the known terms listed below.
- Do NOT change ordinary words, grammar, punctuation, or sentence structure.
- Be conservative: if you are not confident a word is a misheard term, leave it unchanged.
- Preserve the capitalisation style of the surrounding text where possible.
- Corrected terms must match the canonical spelling from the list exactly.

Known terms:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected utterance>",
  "corrections": [
    {"original": "<original word>", "corrected": "<corrected word>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// Correction is a single substitution declared by the model. The pipeline
// maps these to transcript-level corrections with Method "llm".
type Correction struct {
	// Original is the phrase as it appeared in the input.
	Original string

	// Corrected is the canonical term the model substituted.
	Corrected string

	// Confidence is the model's reported confidence (0.0-1.0).
	Confidence float64
}

// llmResponse is the JSON structure the model is asked to return.
type llmResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the sampling temperature. Lower values give more
// deterministic corrections. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector reviews utterance text with an [llm.Provider]. It is safe for
// concurrent use.
type Corrector struct {
	provider    llm.Provider
	temperature float64
}

// New returns a [Corrector] backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		provider:    provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct asks the model to fix misheard vocabulary terms in text.
//
// The model's output is verified against its declared corrections: token
// spans that changed without a matching declaration are reverted, and only
// confirmed corrections are returned.
//
// An unparseable model response degrades gracefully: Correct returns text
// unchanged with a nil corrections slice and a nil error. Context
// cancellation and transport failures are returned as errors.
func (c *Corrector) Correct(ctx context.Context, text string, vocab []string) (string, []Correction, error) {
	if len(vocab) == 0 || strings.TrimSpace(text) == "" {
		return text, nil, nil
	}

	resp, err := c.provider.Complete(ctx, llm.Request{
		SystemPrompt: buildSystemPrompt(vocab),
		UserMessage:  text,
		Temperature:  c.temperature,
	})
	if err != nil {
		return text, nil, fmt.Errorf("llmcorrect: complete: %w", err)
	}

	corrected, corrections, parseErr := parseResponse(resp, text)
	if parseErr != nil {
		// Unparseable response: return the input unchanged, no error.
		return text, nil, nil //nolint:nilerr // intentional graceful fallback
	}

	verifiedText, verified := verifyCorrectedText(text, corrected, corrections)
	return verifiedText, verified, nil
}

// buildSystemPrompt formats the system prompt with the vocabulary list.
func buildSystemPrompt(vocab []string) string {
	var sb strings.Builder
	for _, term := range vocab {
		sb.WriteString("- ")
		sb.WriteString(term)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse unmarshals the model output, stripping markdown code fences
// first.
func parseResponse(content, originalText string) (string, []Correction, error) {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return "", nil, fmt.Errorf("llmcorrect: parse response: %w", err)
	}

	if r.CorrectedText == "" {
		return originalText, nil, nil
	}

	corrections := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == c.Corrected || c.Original == "" {
			continue
		}
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}

	return r.CorrectedText, corrections, nil
}

// stripMarkdown removes optional ```json fences some models wrap around
// JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
