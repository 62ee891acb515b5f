package segment

import (
	"sync"
	"time"

	"github.com/voxscribe/voxscribe/pkg/audio"
)

// Session is the accumulation state for one speaker between finalizes. All
// mutation goes through [Store] methods; the struct itself carries no locks
// because each session is only ever touched by its speaker's worker.
type Session struct {
	// SpeakerID identifies the speaker this session belongs to.
	SpeakerID string

	// buf is the ordered raw PCM buffer, append-only until finalize.
	buf []byte

	// BufferStart is when the first byte of the current buffer arrived.
	// For a buffer seeded with carryover it is backdated by the carryover's
	// playback length so duration accounting includes it from the start.
	BufferStart time.Time

	// LastActivity is when the most recent frame was appended.
	LastActivity time.Time

	// carried is how many leading bytes of buf are carryover from the
	// previous segment rather than freshly received audio.
	carried int
}

// Store holds one [Session] per speaker with pending audio. It knows the
// platform PCM format so it can convert byte counts to playback durations.
//
// Methods are safe for concurrent use across speakers. Mutation of a single
// speaker's session must come from that speaker's worker only — the Store
// serialises map access, not higher-level read-modify-write sequences.
type Store struct {
	sampleRate int
	channels   int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty Store for PCM at the given platform format.
func NewStore(sampleRate, channels int) *Store {
	return &Store{
		sampleRate: sampleRate,
		channels:   channels,
		sessions:   make(map[string]*Session),
	}
}

// GetOrCreate returns the speaker's session, creating an empty one if none
// exists. Never returns nil: an unknown speaker is the first-frame case,
// not an error.
func (s *Store) GetOrCreate(speakerID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(speakerID)
}

func (s *Store) getOrCreateLocked(speakerID string) *Session {
	sess, ok := s.sessions[speakerID]
	if !ok {
		sess = &Session{SpeakerID: speakerID}
		s.sessions[speakerID] = sess
	}
	return sess
}

// Append adds raw PCM bytes to the speaker's buffer and updates the
// activity timestamps. The session is created if it does not exist.
func (s *Store) Append(speakerID string, data []byte, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(speakerID)
	switch {
	case len(sess.buf) == 0:
		sess.BufferStart = ts
	case len(sess.buf) == sess.carried:
		// The buffer holds only the carryover tail, whose start was
		// anchored to the previous finalize instant. Re-anchor it to this
		// first fresh frame, otherwise an idle gap between utterances
		// would count toward the elapsed span and trip the length rules
		// the moment the speaker resumes.
		sess.BufferStart = ts.Add(-audio.PCMDuration(sess.carried, s.sampleRate, s.channels))
	}
	sess.buf = append(sess.buf, data...)
	sess.LastActivity = ts
}

// BufferedAudio returns the playback length of the speaker's buffered PCM.
// Returns 0 for an unknown speaker.
func (s *Store) BufferedAudio(speakerID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[speakerID]
	if !ok {
		return 0
	}
	return audio.PCMDuration(len(sess.buf), s.sampleRate, s.channels)
}

// BufferStart returns the start timestamp of the speaker's current buffer
// and whether any bytes are buffered.
func (s *Store) BufferStart(speakerID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[speakerID]
	if !ok || len(sess.buf) == 0 {
		return time.Time{}, false
	}
	return sess.BufferStart, true
}

// DrainAndClear atomically returns the full accumulated buffer together
// with its start timestamp and playback length, and resets the session to
// empty. The session entry itself survives so the caller can immediately
// deposit a trailing carryover. Draining an unknown or empty session
// returns nil — double-finalize is a no-op by construction.
func (s *Store) DrainAndClear(speakerID string) (buf []byte, start time.Time, audioLen time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[speakerID]
	if !ok || len(sess.buf) == 0 {
		return nil, time.Time{}, 0
	}

	buf = sess.buf
	start = sess.BufferStart
	audioLen = audio.PCMDuration(len(buf), s.sampleRate, s.channels)

	sess.buf = nil
	sess.BufferStart = time.Time{}
	sess.LastActivity = time.Time{}
	sess.carried = 0
	return buf, start, audioLen
}

// HasFreshAudio reports whether the speaker's buffer holds any audio that
// arrived after the last finalize — a buffer consisting purely of carryover
// has already been emitted once and must not be emitted again.
func (s *Store) HasFreshAudio(speakerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[speakerID]
	return ok && len(sess.buf) > sess.carried
}

// DepositCarryover seeds the speaker's (just-drained) buffer with a short
// audio tail retained from the previous segment. BufferStart is backdated
// by the tail's playback length so the next segment's duration accounting
// includes the carryover from the start. The tail is copied; the caller
// keeps ownership of its slice.
func (s *Store) DepositCarryover(speakerID string, tail []byte, now time.Time) {
	if len(tail) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(speakerID)
	sess.buf = append(sess.buf[:0], tail...)
	sess.BufferStart = now.Add(-audio.PCMDuration(len(tail), s.sampleRate, s.channels))
	sess.LastActivity = now
	sess.carried = len(tail)
}

// Remove deletes the speaker's session entirely. Used on disconnect.
// Removing an unknown speaker is a no-op.
func (s *Store) Remove(speakerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, speakerID)
}

// Len returns the number of sessions currently held. Intended for
// instrumentation and tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
