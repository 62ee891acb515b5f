package resilience

import (
	"context"

	"github.com/voxscribe/voxscribe/pkg/transcribe"
)

// Transcriber implements [transcribe.Transcriber] with automatic failover
// across multiple transcription backends. Each backend has its own circuit
// breaker, so a dead whisper server is skipped instantly instead of eating
// a timeout per segment.
type Transcriber struct {
	chain *FallbackChain[transcribe.Transcriber]
}

// Compile-time interface assertion.
var _ transcribe.Transcriber = (*Transcriber)(nil)

// NewTranscriber creates a failover [Transcriber] with primary as the
// preferred backend.
func NewTranscriber(primary transcribe.Transcriber, breakerCfg BreakerConfig) *Transcriber {
	return &Transcriber{
		chain: NewFallbackChain(primary, primary.Name(), breakerCfg),
	}
}

// AddFallback registers an additional backend, tried after all earlier ones.
func (t *Transcriber) AddFallback(backend transcribe.Transcriber) {
	t.chain.Add(backend.Name(), backend)
}

// Name identifies the composite in logs and metrics.
func (t *Transcriber) Name() string { return "fallback" }

// Transcribe runs the segment through the first healthy backend.
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte) (transcribe.Result, error) {
	res, _, err := RunWithResult(t.chain, func(b transcribe.Transcriber) (transcribe.Result, error) {
		return b.Transcribe(ctx, wav)
	})
	return res, err
}

// TranscribeNamed is like Transcribe but also reports which backend served
// the call, for per-backend metrics.
func (t *Transcriber) TranscribeNamed(ctx context.Context, wav []byte) (transcribe.Result, string, error) {
	return RunWithResult(t.chain, func(b transcribe.Transcriber) (transcribe.Result, error) {
		return b.Transcribe(ctx, wav)
	})
}
