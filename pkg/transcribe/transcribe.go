// Package transcribe defines the Transcriber interface for batch
// speech-to-text backends.
//
// voxscribe segments audio upstream, so a backend never sees a live stream:
// it receives one complete, normalized WAV payload per utterance and
// returns the recognized text. This keeps the backend surface small enough
// that local whisper.cpp (HTTP or CGO) and hosted APIs are interchangeable.
//
// Implementations must be safe for concurrent use — segments from different
// speakers are transcribed in parallel.
package transcribe

import "context"

// Result is the outcome of transcribing one utterance.
type Result struct {
	// Text is the transcribed speech content, whitespace-trimmed. May be
	// empty when the backend heard nothing intelligible.
	Text string

	// Language is the language the backend detected or was configured
	// with, as a BCP-47 tag. Empty if the backend does not report it.
	Language string
}

// Transcriber converts one finished utterance into text.
type Transcriber interface {
	// Name identifies the backend in logs and metrics (e.g. "whisper",
	// "whisper-native", "openai").
	Name() string

	// Transcribe recognizes the speech in a complete WAV payload. The
	// audio is mono 16-bit PCM at the rate the backend was configured for.
	Transcribe(ctx context.Context, wav []byte) (Result, error)
}
