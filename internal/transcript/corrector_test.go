package transcript_test

import (
	"context"
	"testing"

	"github.com/voxscribe/voxscribe/internal/transcript"
	"github.com/voxscribe/voxscribe/internal/transcript/llmcorrect"
	"github.com/voxscribe/voxscribe/internal/transcript/phonetic"
	llmmock "github.com/voxscribe/voxscribe/pkg/llm/mock"
)

func TestCorrectionPipeline_BothStages(t *testing.T) {
	t.Parallel()

	mockLLM := &llmmock.Provider{
		Response: `{"corrected_text": "Malakar is waiting", "corrections": []}`,
	}
	pipeline := transcript.NewPipeline(
		transcript.WithPhoneticMatcher(phonetic.New()),
		transcript.WithLLMCorrector(llmcorrect.New(mockLLM)),
	)

	result, err := pipeline.Correct(context.Background(), "malakar is waiting", []string{"Malakar"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	if result.Original != "malakar is waiting" {
		t.Errorf("Original=%q, want input text", result.Original)
	}
	if result.Text != "Malakar is waiting" {
		t.Errorf("Text=%q, want %q", result.Text, "Malakar is waiting")
	}
	if len(result.Corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(result.Corrections))
	}
	if c := result.Corrections[0]; c.Method != "phonetic" || c.Corrected != "Malakar" {
		t.Errorf("correction = %+v, want phonetic malakar -> Malakar", c)
	}
	if mockLLM.CallCount() != 1 {
		t.Errorf("LLM called %d times, want 1", mockLLM.CallCount())
	}
}

func TestCorrectionPipeline_PhoneticOnly(t *testing.T) {
	t.Parallel()

	pipeline := transcript.NewPipeline(
		transcript.WithPhoneticMatcher(phonetic.New()),
	)

	result, err := pipeline.Correct(context.Background(), "crimsen hollow was empty", []string{"Crimson Hollow"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	if result.Text != "Crimson Hollow was empty" {
		t.Errorf("Text=%q, want %q", result.Text, "Crimson Hollow was empty")
	}
	if len(result.Corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(result.Corrections))
	}
	c := result.Corrections[0]
	if c.Method != "phonetic" {
		t.Errorf("Method=%q, want phonetic", c.Method)
	}
	if c.Original != "crimsen hollow" || c.Corrected != "Crimson Hollow" {
		t.Errorf("correction = %+v, want crimsen hollow -> Crimson Hollow", c)
	}
}

func TestCorrectionPipeline_LLMOnly(t *testing.T) {
	t.Parallel()

	mockLLM := &llmmock.Provider{
		Response: `{"corrected_text": "Malakar arrived", "corrections": [{"original": "malakkar", "corrected": "Malakar", "confidence": 0.88}]}`,
	}
	pipeline := transcript.NewPipeline(
		transcript.WithLLMCorrector(llmcorrect.New(mockLLM)),
	)

	result, err := pipeline.Correct(context.Background(), "malakkar arrived", []string{"Malakar"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	if mockLLM.CallCount() != 1 {
		t.Fatalf("LLM called %d times, want 1", mockLLM.CallCount())
	}
	if result.Text != "Malakar arrived" {
		t.Errorf("Text=%q, want %q", result.Text, "Malakar arrived")
	}
	if len(result.Corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(result.Corrections))
	}
	c := result.Corrections[0]
	if c.Method != "llm" {
		t.Errorf("Method=%q, want llm", c.Method)
	}
	if c.Confidence != 0.88 {
		t.Errorf("Confidence=%f, want 0.88", c.Confidence)
	}
}

func TestCorrectionPipeline_LLMErrorPropagates(t *testing.T) {
	t.Parallel()

	mockLLM := &llmmock.Provider{Err: context.DeadlineExceeded}
	pipeline := transcript.NewPipeline(
		transcript.WithLLMCorrector(llmcorrect.New(mockLLM)),
	)

	if _, err := pipeline.Correct(context.Background(), "some text", []string{"Malakar"}); err == nil {
		t.Fatal("expected error from LLM failure, got nil")
	}
}

func TestCorrectionPipeline_NoStages(t *testing.T) {
	t.Parallel()

	pipeline := transcript.NewPipeline()
	result, err := pipeline.Correct(context.Background(), "malakkar speaks", []string{"Malakar"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if result.Text != "malakkar speaks" {
		t.Errorf("Text=%q, want original when no stages configured", result.Text)
	}
	if result.Corrections == nil {
		t.Error("Corrections is nil, want non-nil empty slice")
	}
	if len(result.Corrections) != 0 {
		t.Errorf("expected 0 corrections with no stages, got %d", len(result.Corrections))
	}
}

func TestCorrectionPipeline_EmptyVocabSkipsStages(t *testing.T) {
	t.Parallel()

	mockLLM := &llmmock.Provider{
		Response: `{"corrected_text": "changed", "corrections": []}`,
	}
	pipeline := transcript.NewPipeline(
		transcript.WithPhoneticMatcher(phonetic.New()),
		transcript.WithLLMCorrector(llmcorrect.New(mockLLM)),
	)

	result, err := pipeline.Correct(context.Background(), "nothing to fix here", nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if result.Text != "nothing to fix here" {
		t.Errorf("Text=%q, want original with empty vocab", result.Text)
	}
	if mockLLM.CallCount() != 0 {
		t.Errorf("LLM called %d times with empty vocab, want 0", mockLLM.CallCount())
	}
}

func TestCorrectionPipeline_CanonicalTextUnchanged(t *testing.T) {
	t.Parallel()

	pipeline := transcript.NewPipeline(
		transcript.WithPhoneticMatcher(phonetic.New()),
	)

	// Already-canonical vocabulary must not generate self-corrections.
	result, err := pipeline.Correct(context.Background(), "Malakar is waiting", []string{"Malakar"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if result.Text != "Malakar is waiting" {
		t.Errorf("Text=%q, want unchanged", result.Text)
	}
	if len(result.Corrections) != 0 {
		t.Errorf("got %d corrections for canonical text, want 0: %+v", len(result.Corrections), result.Corrections)
	}
}
