// Package llm defines the minimal language-model interface used by the
// transcript correction stage. Voxscribe only needs single-shot completions
// with a system prompt, so the interface is deliberately small; provider
// wiring lives in the [anyllm] subpackage.
package llm

import "context"

// Request describes a single completion call.
type Request struct {
	// SystemPrompt is prepended as a system-role message. Optional.
	SystemPrompt string

	// UserMessage is the user-role message body.
	UserMessage string

	// Temperature is the sampling temperature. Zero means provider default.
	Temperature float64

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
}

// Provider produces completions from a language model.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Complete runs a single completion and returns the model's text output.
	Complete(ctx context.Context, req Request) (string, error)
}
