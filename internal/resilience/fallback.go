package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackChain] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all backends failed")

// chainEntry pairs a backend value with its dedicated circuit breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackChain wraps a primary and zero or more fallback instances of the
// same backend type. When the primary fails (or its circuit breaker is
// open), the next healthy fallback is tried in registration order.
//
// The chain must be fully assembled before first use; Add is not safe to
// call concurrently with Run.
type FallbackChain[T any] struct {
	entries    []chainEntry[T]
	breakerCfg BreakerConfig
}

// NewFallbackChain creates a [FallbackChain] with primary as the first
// entry. breakerCfg is the template for every entry's circuit breaker; its
// Name field is overwritten per entry.
func NewFallbackChain[T any](primary T, primaryName string, breakerCfg BreakerConfig) *FallbackChain[T] {
	fc := &FallbackChain[T]{breakerCfg: breakerCfg}
	fc.Add(primaryName, primary)
	return fc
}

// Add appends a fallback backend. Fallbacks are tried in the order they are
// added, after the primary.
func (fc *FallbackChain[T]) Add(name string, backend T) {
	cfg := fc.breakerCfg
	cfg.Name = name
	fc.entries = append(fc.entries, chainEntry[T]{
		name:    name,
		value:   backend,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Len returns the number of backends in the chain.
func (fc *FallbackChain[T]) Len() int { return len(fc.entries) }

// Run tries fn against each entry in order until one succeeds, returning
// the name of the backend that served the call. Circuit-breaker-open
// entries are skipped. Returns [ErrAllFailed] wrapped with the last error
// if every entry fails.
func (fc *FallbackChain[T]) Run(fn func(T) error) (served string, err error) {
	var lastErr error
	for i := range fc.entries {
		entry := &fc.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return entry.name, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend (circuit open)", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// RunWithResult tries fn against each entry in the chain until one
// succeeds, returning the result value and the name of the backend that
// produced it. A package-level function because Go does not support
// method-level type parameters.
func RunWithResult[T any, R any](fc *FallbackChain[T], fn func(T) (R, error)) (result R, served string, err error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fc.entries {
		entry := &fc.entries[i]
		var r R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			r, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return r, entry.name, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend (circuit open)", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
