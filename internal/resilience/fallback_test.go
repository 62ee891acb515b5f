package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackChain_PrimaryServes(t *testing.T) {
	t.Parallel()

	fc := NewFallbackChain("primary", "primary", BreakerConfig{MaxFailures: 3})
	fc.Add("secondary", "secondary")

	served, err := fc.Run(func(v string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != "primary" {
		t.Fatalf("served = %q, want primary", served)
	}
}

func TestFallbackChain_FailoverToSecondary(t *testing.T) {
	t.Parallel()

	fc := NewFallbackChain("primary", "primary", BreakerConfig{MaxFailures: 3})
	fc.Add("secondary", "secondary")

	served, err := fc.Run(func(v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != "secondary" {
		t.Fatalf("served = %q, want secondary", served)
	}
}

func TestFallbackChain_AllFail(t *testing.T) {
	t.Parallel()

	fc := NewFallbackChain("primary", "primary", BreakerConfig{MaxFailures: 3})
	fc.Add("secondary", "secondary")

	_, err := fc.Run(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackChain_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	fc := NewFallbackChain("primary", "primary", BreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	fc.Add("secondary", "secondary")

	// Fail the primary enough to open its breaker.
	for range 2 {
		_, _ = fc.Run(func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	// With the primary's breaker open, the call must not reach it at all.
	var sawPrimary bool
	served, err := fc.Run(func(v string) error {
		if v == "primary" {
			sawPrimary = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawPrimary {
		t.Fatal("primary was called while its breaker was open")
	}
	if served != "secondary" {
		t.Fatalf("served = %q, want secondary", served)
	}
}

func TestRunWithResult(t *testing.T) {
	t.Parallel()

	fc := NewFallbackChain(10, "ten", BreakerConfig{MaxFailures: 3})
	fc.Add("twenty", 20)

	t.Run("primary result", func(t *testing.T) {
		result, served, err := RunWithResult(fc, func(v int) (string, error) {
			if v == 10 {
				return "from-ten", nil
			}
			return "from-twenty", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "from-ten" || served != "ten" {
			t.Fatalf("result = %q served %q, want from-ten served by ten", result, served)
		}
	})

	t.Run("failover result", func(t *testing.T) {
		result, served, err := RunWithResult(fc, func(v int) (string, error) {
			if v == 10 {
				return "", errTest
			}
			return "from-twenty", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "from-twenty" || served != "twenty" {
			t.Fatalf("result = %q served %q, want from-twenty served by twenty", result, served)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		single := NewFallbackChain(10, "ten", BreakerConfig{MaxFailures: 100})
		_, _, err := RunWithResult(single, func(int) (string, error) {
			return "", errTest
		})
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
	})
}
