package llmcorrect_test

import (
	"context"
	"strings"
	"testing"

	"github.com/voxscribe/voxscribe/internal/transcript/llmcorrect"
	llmmock "github.com/voxscribe/voxscribe/pkg/llm/mock"
)

func TestCorrector_CallsLLMWithVocab(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: `{"corrected_text": "the raid on Crimson Hollow starts", "corrections": []}`,
	}
	c := llmcorrect.New(provider)

	vocab := []string{"Malakar", "Crimson Hollow"}
	_, _, err := c.Correct(context.Background(), "the raid on crimsen hollow starts", vocab)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	if provider.CallCount() != 1 {
		t.Fatalf("expected 1 Complete call, got %d", provider.CallCount())
	}

	req := provider.Calls[0].Req
	// System prompt must list every vocabulary term.
	for _, term := range vocab {
		if !strings.Contains(req.SystemPrompt, term) {
			t.Errorf("system prompt missing term %q\nprompt:\n%s", term, req.SystemPrompt)
		}
	}
	// User message carries the utterance text.
	if !strings.Contains(req.UserMessage, "crimsen hollow") {
		t.Errorf("user message missing utterance text, got: %s", req.UserMessage)
	}
}

func TestCorrector_ParsesJSONCorrections(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: `{"corrected_text": "Malakar arrived.", "corrections": [{"original": "malakkar", "corrected": "Malakar", "confidence": 0.9}]}`,
	}
	c := llmcorrect.New(provider)

	correctedText, corrections, err := c.Correct(
		context.Background(),
		"malakkar arrived.",
		[]string{"Malakar"},
	)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	if correctedText != "Malakar arrived." {
		t.Errorf("correctedText=%q, want %q", correctedText, "Malakar arrived.")
	}
	if len(corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(corrections))
	}
	if corrections[0].Original != "malakkar" {
		t.Errorf("Original=%q, want %q", corrections[0].Original, "malakkar")
	}
	if corrections[0].Corrected != "Malakar" {
		t.Errorf("Corrected=%q, want %q", corrections[0].Corrected, "Malakar")
	}
	if corrections[0].Confidence != 0.9 {
		t.Errorf("Confidence=%f, want 0.9", corrections[0].Confidence)
	}
}

func TestCorrector_RevertsUndeclaredChanges(t *testing.T) {
	t.Parallel()

	// The model rewrote a word it did not declare — the change must be
	// reverted.
	provider := &llmmock.Provider{
		Response: `{"corrected_text": "the dog sits quietly", "corrections": []}`,
	}
	c := llmcorrect.New(provider)

	correctedText, corrections, err := c.Correct(
		context.Background(),
		"the cat sits quietly",
		[]string{"Malakar"},
	)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if correctedText != "the cat sits quietly" {
		t.Errorf("correctedText=%q, want undeclared change reverted", correctedText)
	}
	if len(corrections) != 0 {
		t.Errorf("got %d corrections, want 0", len(corrections))
	}
}

func TestCorrector_FallbackOnUnparseable(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: "I cannot correct this utterance because it is ambiguous.",
	}
	c := llmcorrect.New(provider)

	originalText := "malakkar waits in crimsen hollow"
	correctedText, corrections, err := c.Correct(
		context.Background(),
		originalText,
		[]string{"Malakar", "Crimson Hollow"},
	)
	if err != nil {
		t.Fatalf("Correct returned error on unparseable response: %v", err)
	}
	if correctedText != originalText {
		t.Errorf("correctedText=%q, want original %q", correctedText, originalText)
	}
	if corrections != nil {
		t.Errorf("corrections=%v, want nil on fallback", corrections)
	}
}

func TestCorrector_MarkdownStripping(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: "```json\n" +
			`{"corrected_text": "Malakar waits.", "corrections": [{"original": "malakkar", "corrected": "Malakar", "confidence": 0.9}]}` +
			"\n```",
	}
	c := llmcorrect.New(provider)

	correctedText, _, err := c.Correct(
		context.Background(),
		"malakkar waits.",
		[]string{"Malakar"},
	)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if correctedText != "Malakar waits." {
		t.Errorf("correctedText=%q, want %q", correctedText, "Malakar waits.")
	}
}

func TestCorrector_EmptyVocab(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{}
	c := llmcorrect.New(provider)

	text := "some text"
	correctedText, corrections, err := c.Correct(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if correctedText != text {
		t.Errorf("correctedText=%q, want original %q when vocab is empty", correctedText, text)
	}
	if len(corrections) != 0 {
		t.Errorf("expected no corrections with empty vocab, got %d", len(corrections))
	}
	if provider.CallCount() != 0 {
		t.Errorf("expected 0 LLM calls for empty vocab, got %d", provider.CallCount())
	}
}

func TestCorrector_LLMError(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Err: context.DeadlineExceeded}
	c := llmcorrect.New(provider)

	_, _, err := c.Correct(context.Background(), "some utterance", []string{"Malakar"})
	if err == nil {
		t.Fatal("expected error from LLM failure, got nil")
	}
}

func TestCorrector_WithTemperature(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: `{"corrected_text": "hello", "corrections": []}`,
	}
	c := llmcorrect.New(provider, llmcorrect.WithTemperature(0.5))

	_, _, err := c.Correct(context.Background(), "hello", []string{"Malakar"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	if provider.CallCount() == 0 {
		t.Fatal("no Complete calls recorded")
	}
	if temp := provider.Calls[0].Req.Temperature; temp != 0.5 {
		t.Errorf("Temperature=%f, want 0.5", temp)
	}
}
