package segment_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxscribe/voxscribe/internal/segment"
)

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduler_FiresOnce(t *testing.T) {
	t.Parallel()

	s := segment.NewScheduler()
	var fires atomic.Int64
	s.OnActivity("alice", 20*time.Millisecond, func(id string) {
		if id != "alice" {
			t.Errorf("onFire speaker = %q, want alice", id)
		}
		fires.Add(1)
	})

	if !s.IsArmed("alice") {
		t.Fatal("timer not armed after OnActivity")
	}

	waitFor(t, time.Second, func() bool { return fires.Load() == 1 })
	time.Sleep(50 * time.Millisecond)

	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d, want 1", got)
	}
	if s.IsArmed("alice") {
		t.Fatal("timer still armed after fire")
	}

	stats := s.Stats()
	if stats.Armed != 1 || stats.Fired != 1 || stats.Cancelled != 0 || stats.Live != 0 {
		t.Fatalf("stats = %+v, want armed 1 fired 1 cancelled 0 live 0", stats)
	}
}

func TestScheduler_RearmRetiresPrevious(t *testing.T) {
	t.Parallel()

	s := segment.NewScheduler()
	var fires atomic.Int64
	for range 5 {
		s.OnActivity("alice", 30*time.Millisecond, func(string) { fires.Add(1) })
	}

	waitFor(t, time.Second, func() bool { return fires.Load() == 1 })
	time.Sleep(60 * time.Millisecond)

	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d, want exactly 1 (only the last arm may fire)", got)
	}

	stats := s.Stats()
	if stats.Armed != 5 || stats.Cancelled != 4 || stats.Fired != 1 || stats.Live != 0 {
		t.Fatalf("stats = %+v, want armed 5 cancelled 4 fired 1 live 0", stats)
	}
}

func TestScheduler_CancelPreventsFire(t *testing.T) {
	t.Parallel()

	s := segment.NewScheduler()
	var fires atomic.Int64
	s.OnActivity("alice", 30*time.Millisecond, func(string) { fires.Add(1) })

	if !s.Cancel("alice") {
		t.Fatal("Cancel returned false for an armed timer")
	}
	if s.Cancel("alice") {
		t.Fatal("second Cancel returned true")
	}
	if s.IsArmed("alice") {
		t.Fatal("timer still armed after cancel")
	}

	time.Sleep(80 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires = %d after cancel, want 0", got)
	}
}

func TestScheduler_CancelUnknownSpeaker(t *testing.T) {
	t.Parallel()

	s := segment.NewScheduler()
	if s.Cancel("nobody") {
		t.Fatal("Cancel of unknown speaker returned true")
	}
}

func TestScheduler_SpeakersAreIndependent(t *testing.T) {
	t.Parallel()

	s := segment.NewScheduler()
	var aliceFires, bobFires atomic.Int64
	s.OnActivity("alice", 20*time.Millisecond, func(string) { aliceFires.Add(1) })
	s.OnActivity("bob", 20*time.Millisecond, func(string) { bobFires.Add(1) })

	s.Cancel("alice")

	waitFor(t, time.Second, func() bool { return bobFires.Load() == 1 })
	if got := aliceFires.Load(); got != 0 {
		t.Fatalf("alice fires = %d, want 0 (cancelled)", got)
	}
}

// Hammer one speaker with concurrent arms and cancels and check the
// lifecycle accounting afterwards: every armed timer must end up either
// cancelled or fired, never both, never neither.
func TestScheduler_ConcurrentArmCancelAccounting(t *testing.T) {
	t.Parallel()

	s := segment.NewScheduler()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				s.OnActivity("alice", time.Microsecond, func(string) {})
				s.Cancel("alice")
			}
		}()
	}
	wg.Wait()

	// Let any in-flight microsecond timers resolve.
	waitFor(t, 2*time.Second, func() bool {
		st := s.Stats()
		return st.Live == 0 && st.Armed == st.Cancelled+st.Fired
	})

	stats := s.Stats()
	if stats.Armed != 8*200 {
		t.Fatalf("armed = %d, want %d", stats.Armed, 8*200)
	}
	if stats.Armed != stats.Cancelled+stats.Fired {
		t.Fatalf("accounting mismatch: %+v", stats)
	}
}
