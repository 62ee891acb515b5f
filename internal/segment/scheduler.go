package segment

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimerHandle is one armed silence timer bound to a single speaker. The
// claimed flag is the single authority over the timer's fate: whichever of
// fire, cancel, or re-arm claims it first wins, and every later claim
// attempt is a no-op. A handle that has fired can therefore never be
// cancelled, and a cancelled handle can never fire.
type TimerHandle struct {
	speakerID string
	timer     *time.Timer
	claimed   atomic.Bool
}

// retire claims the handle and stops its timer. Reports whether this call
// won the claim (false when the timer already fired or was already retired).
func (h *TimerHandle) retire() bool {
	if !h.claimed.CompareAndSwap(false, true) {
		return false
	}
	h.timer.Stop()
	return true
}

// SchedulerStats is a snapshot of timer lifecycle counters, used to verify
// the one-live-timer-per-speaker invariant from the outside: for a quiesced
// scheduler, Armed == Cancelled + Fired and Live == 0.
type SchedulerStats struct {
	Armed     int64
	Cancelled int64
	Fired     int64
	Live      int
}

// Scheduler owns the silence-timer lifecycle for all speakers. Each
// speaker's timer moves through idle → armed → (retriggered | fired) →
// idle; arming always retires any previous timer for the same speaker
// first, so two timers can never coexist for one speaker.
//
// The fire callback runs on the timer's own goroutine. Callers that need
// single-threaded processing per speaker (the [Assembler] does) must route
// the callback back onto the speaker's worker.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*TimerHandle

	armed     atomic.Int64
	cancelled atomic.Int64
	fired     atomic.Int64
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*TimerHandle)}
}

// OnActivity notes that a frame arrived for the speaker: any armed timer is
// retired and a fresh one is armed for the full timeout. When the timer
// fires, onFire(speakerID) is invoked exactly once and the speaker's slot
// returns to idle.
func (s *Scheduler) OnActivity(speakerID string, timeout time.Duration, onFire func(speakerID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[speakerID]; ok {
		if prev.retire() {
			s.cancelled.Add(1)
		}
		delete(s.timers, speakerID)
	}

	h := &TimerHandle{speakerID: speakerID}
	h.timer = time.AfterFunc(timeout, func() {
		if !h.claimed.CompareAndSwap(false, true) {
			// Retired between the timer firing and us running.
			return
		}
		s.fired.Add(1)

		s.mu.Lock()
		if s.timers[speakerID] == h {
			delete(s.timers, speakerID)
		}
		s.mu.Unlock()

		onFire(speakerID)
	})
	s.timers[speakerID] = h
	s.armed.Add(1)
}

// Cancel retires any armed timer for the speaker and reports whether a
// timer was actually cancelled. Safe to call when no timer is armed (no-op)
// and safe against an in-flight fire: if the fire already claimed the
// handle, Cancel does nothing and the fire wins.
func (s *Scheduler) Cancel(speakerID string) bool {
	s.mu.Lock()
	h, ok := s.timers[speakerID]
	if ok {
		delete(s.timers, speakerID)
	}
	s.mu.Unlock()

	if ok && h.retire() {
		s.cancelled.Add(1)
		return true
	}
	return false
}

// IsArmed reports whether the speaker currently has a live timer.
func (s *Scheduler) IsArmed(speakerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[speakerID]
	return ok
}

// Stats returns a snapshot of the lifecycle counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	live := len(s.timers)
	s.mu.Unlock()
	return SchedulerStats{
		Armed:     s.armed.Load(),
		Cancelled: s.cancelled.Load(),
		Fired:     s.fired.Load(),
		Live:      live,
	}
}
