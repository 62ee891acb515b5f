// Package mock provides a test double for the transcribe.Transcriber
// interface.
//
// Pre-populate Results (consumed in order) or set Result for a fixed
// response, then inspect Calls to verify which payloads were submitted.
package mock

import (
	"context"
	"sync"

	"github.com/voxscribe/voxscribe/pkg/transcribe"
)

// Compile-time assertion that Transcriber implements transcribe.Transcriber.
var _ transcribe.Transcriber = (*Transcriber)(nil)

// Call records a single invocation of Transcribe.
type Call struct {
	// WAV is a copy of the audio payload passed to Transcribe.
	WAV []byte
}

// Transcriber is a mock implementation of transcribe.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// Result is returned by every Transcribe call when Results is empty.
	Result transcribe.Result

	// Results, when non-empty, is consumed one element per Transcribe call
	// before falling back to Result.
	Results []transcribe.Result

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Name returns NameValue, or "mock" when unset.
func (t *Transcriber) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.NameValue == "" {
		return "mock"
	}
	return t.NameValue
}

// Transcribe records the call and returns the next scripted result.
func (t *Transcriber) Transcribe(_ context.Context, wav []byte) (transcribe.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make([]byte, len(wav))
	copy(cp, wav)
	t.Calls = append(t.Calls, Call{WAV: cp})

	if t.Err != nil {
		return transcribe.Result{}, t.Err
	}
	if len(t.Results) > 0 {
		r := t.Results[0]
		t.Results = t.Results[1:]
		return r, nil
	}
	return t.Result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
}
