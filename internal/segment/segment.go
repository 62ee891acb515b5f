// Package segment turns per-speaker streams of short audio frames into
// discrete, complete utterance segments ready for transcription.
//
// The platform layer only delivers frames while a speaker is actively
// talking, so the package never inspects audio energy itself: a segment is
// considered finished when its wall-clock length crosses a duration
// threshold, when the safety-net bound is hit, when the frame stream goes
// quiet for the silence timeout, or when the speaker disconnects.
//
// Three cooperating pieces implement this:
//
//   - [Store] — one isolated accumulation session per speaker.
//   - [Scheduler] — the silence-timer lifecycle, at most one live timer
//     per speaker.
//   - [Assembler] — the orchestrator: routes frames to per-speaker workers,
//     applies the finalize rules, normalizes finished audio, and emits
//     [Segment] values to a [Sink].
//
// All cross-goroutine races between a firing timer and an arriving frame
// are resolved by construction: every mutation of a speaker's session
// happens on that speaker's single worker goroutine, and timer fires are
// delivered to the same worker as messages.
package segment

import (
	"context"
	"time"
)

// Reason records which rule finalized a segment.
type Reason string

const (
	// ReasonDuration: the buffered audio crossed the normal-length
	// finalize threshold while the speaker was still talking.
	ReasonDuration Reason = "duration-threshold"

	// ReasonSafetyNet: the hard upper bound fired. This exists purely to
	// bound worst-case memory and latency and fires even if the normal
	// duration logic is skipped.
	ReasonSafetyNet Reason = "safety-net"

	// ReasonSilence: no frame arrived for the silence timeout — the only
	// end-of-speech signal the platform ever gives us.
	ReasonSilence Reason = "silence-timeout"

	// ReasonDisconnect: the speaker left with substantial audio buffered.
	ReasonDisconnect Reason = "disconnect"
)

// Segment is one finalized utterance, normalized and ready for
// transcription. Produced exactly once per finalize event; immutable after
// creation. Ownership passes to the [Sink].
type Segment struct {
	// SpeakerID is the platform identifier of the speaker.
	SpeakerID string

	// Audio is the normalized payload (mono 16-bit WAV at the
	// transcription target rate).
	Audio []byte

	// Duration is the playback length of the raw audio that went into the
	// segment, including any trailing carryover from the previous segment.
	Duration time.Duration

	// Start is when the first byte of the segment was buffered.
	Start time.Time

	// Reason records which rule finalized the segment.
	Reason Reason
}

// Sink receives finalized segments. Submit must not be assumed fast — the
// Assembler calls it from a dedicated dispatch goroutine and never blocks
// frame ingestion on it. Errors are logged, not retried; retry policy
// belongs to the collaborator behind the sink.
type Sink interface {
	Submit(ctx context.Context, seg Segment) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, seg Segment) error

// Submit calls f(ctx, seg).
func (f SinkFunc) Submit(ctx context.Context, seg Segment) error {
	return f(ctx, seg)
}
