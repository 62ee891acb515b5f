package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxscribe/voxscribe/internal/observe"
	"github.com/voxscribe/voxscribe/pkg/audio"
)

// Config tunes the finalize rules of an [Assembler]. Zero values fall back
// to defaults chosen for conversational speech over a 48kHz stereo platform.
type Config struct {
	// SampleRate and Channels describe the raw PCM format frames arrive in.
	// Defaults: 48000 Hz, 2 channels.
	SampleRate int
	Channels   int

	// DurationThreshold finalizes a segment once its wall-clock span while
	// the speaker keeps talking reaches this length. Default 5s.
	DurationThreshold time.Duration

	// SafetyNetThreshold is the hard upper bound on a segment's wall-clock
	// span. It bounds memory and transcription latency even if the normal
	// duration rule is somehow skipped. Must exceed DurationThreshold.
	// Default 8s.
	SafetyNetThreshold time.Duration

	// SilenceTimeout finalizes a segment when no frame arrives for this
	// long. Frame absence is the only end-of-speech signal the platform
	// gives us. Default 2s.
	SilenceTimeout time.Duration

	// MinSpeechDuration discards finalized audio shorter than this instead
	// of emitting it — sub-word blips transcribe to artifacts. Default 300ms.
	MinSpeechDuration time.Duration

	// Carryover, when positive, retains this much trailing audio from every
	// threshold- or silence-finalized segment and seeds the speaker's next
	// buffer with it, so a word cut mid-syllable appears intact in the next
	// segment. Disabled by default.
	Carryover time.Duration

	// QueueSize is the per-speaker inbound frame queue depth. When the
	// queue is full new frames are dropped, never blocked on. Default 64.
	QueueSize int

	// EmitQueueSize is the finalized-segment dispatch queue depth.
	// Default 16.
	EmitQueueSize int
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 2
	}
	if c.DurationThreshold == 0 {
		c.DurationThreshold = 5 * time.Second
	}
	if c.SafetyNetThreshold == 0 {
		c.SafetyNetThreshold = 8 * time.Second
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = 2 * time.Second
	}
	if c.MinSpeechDuration == 0 {
		c.MinSpeechDuration = 300 * time.Millisecond
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.EmitQueueSize == 0 {
		c.EmitQueueSize = 16
	}
}

func (c Config) validate() error {
	if c.SafetyNetThreshold <= c.DurationThreshold {
		return fmt.Errorf("segment: safety net %v must exceed duration threshold %v",
			c.SafetyNetThreshold, c.DurationThreshold)
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("segment: silence timeout %v must be positive", c.SilenceTimeout)
	}
	if c.Carryover < 0 {
		return fmt.Errorf("segment: carryover %v must not be negative", c.Carryover)
	}
	return nil
}

type msgKind int

const (
	msgFrame msgKind = iota
	msgTimeout
	msgLeave
)

// message is the unit of work delivered to a speaker's worker goroutine.
// Frames, silence-timer fires and leave notices all travel through the same
// queue, which is what serialises them: a timer fire can never race a frame
// for the same speaker because both are processed on one goroutine.
type message struct {
	kind  msgKind
	frame audio.Frame
}

// worker is the single goroutine context for one speaker.
type worker struct {
	speakerID string
	in        chan message
	dropWarn  sync.Once
}

// Assembler routes inbound audio frames to per-speaker workers, applies the
// finalize rules from [Config], normalizes finished audio and emits
// [Segment] values to a [Sink] from a dedicated dispatch goroutine.
//
// Exactly one segment is produced per finalize event. Every path that might
// finalize (threshold crossing, timer fire, disconnect) funnels through a
// single drain of the speaker's buffer, and a drain of an empty buffer is a
// no-op, so concurrent or repeated finalize triggers cannot duplicate a
// segment.
//
// OnFrame never blocks: a speaker whose queue is full loses frames (counted
// in metrics) rather than stalling the caller's receive loop.
type Assembler struct {
	cfg     Config
	store   *Store
	sched   *Scheduler
	norm    *audio.Normalizer
	sink    Sink
	metrics *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool

	workerWG sync.WaitGroup

	emit     chan Segment
	emitDone chan struct{}
}

// NewAssembler creates an Assembler and starts its dispatch goroutine. The
// metrics argument may be nil, in which case [observe.DefaultMetrics] is
// used. Close must be called to release the dispatch goroutine.
func NewAssembler(cfg Config, norm *audio.Normalizer, sink Sink, metrics *observe.Metrics) (*Assembler, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if norm == nil {
		return nil, errors.New("segment: normalizer must not be nil")
	}
	if sink == nil {
		return nil, errors.New("segment: sink must not be nil")
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Assembler{
		cfg:      cfg,
		store:    NewStore(cfg.SampleRate, cfg.Channels),
		sched:    NewScheduler(),
		norm:     norm,
		sink:     sink,
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
		workers:  make(map[string]*worker),
		emit:     make(chan Segment, cfg.EmitQueueSize),
		emitDone: make(chan struct{}),
	}
	go a.dispatch()
	return a, nil
}

// Store exposes the session store, for instrumentation and tests.
func (a *Assembler) Store() *Store { return a.store }

// Scheduler exposes the timer scheduler, for instrumentation and tests.
func (a *Assembler) Scheduler() *Scheduler { return a.sched }

// OnFrame hands one inbound frame to the speaker's worker, creating the
// worker on first contact. Never blocks: if the speaker's queue is full the
// frame is dropped and counted. Frames arriving after Close are discarded.
func (a *Assembler) OnFrame(speakerID string, frame audio.Frame) {
	w := a.ensureWorker(speakerID)
	if w == nil {
		return
	}
	select {
	case w.in <- message{kind: msgFrame, frame: frame}:
	default:
		a.metrics.FramesDropped.Add(a.ctx, 1)
		w.dropWarn.Do(func() {
			slog.Warn("speaker queue full, dropping frames",
				"speaker_id", speakerID, "queue_size", a.cfg.QueueSize)
		})
	}
}

// OnSpeakerJoin pre-creates the speaker's worker so the first frame pays no
// setup cost. Optional — OnFrame creates workers on demand.
func (a *Assembler) OnSpeakerJoin(speakerID string) {
	a.ensureWorker(speakerID)
}

// OnSpeakerLeave retires the speaker: any buffered audio of at least the
// minimum speech duration is finalized with [ReasonDisconnect], shorter
// remainders are discarded, and the session and worker are removed. The
// leave notice queues behind frames already accepted for the speaker, so
// nothing accepted before the leave is lost.
func (a *Assembler) OnSpeakerLeave(speakerID string) {
	a.mu.Lock()
	w, ok := a.workers[speakerID]
	if ok {
		delete(a.workers, speakerID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	// Blocking send: the worker is guaranteed alive until it reads the
	// leave notice, and removal from the map above means no other sender
	// can race us on this channel.
	w.in <- message{kind: msgLeave}
}

// Close finalizes all speakers as disconnected, stops their workers, drains
// the dispatch queue and releases the dispatch goroutine. Returns the
// context's error if it expires before the workers drain.
func (a *Assembler) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	ws := make([]*worker, 0, len(a.workers))
	for _, w := range a.workers {
		ws = append(ws, w)
	}
	clear(a.workers)
	a.mu.Unlock()

	for _, w := range ws {
		w.in <- message{kind: msgLeave}
	}

	done := make(chan struct{})
	go func() {
		a.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(a.emit)
	<-a.emitDone
	a.cancel()
	return nil
}

// ensureWorker returns the speaker's worker, starting one if needed.
// Returns nil after Close.
func (a *Assembler) ensureWorker(speakerID string) *worker {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	w, ok := a.workers[speakerID]
	if !ok {
		w = &worker{speakerID: speakerID, in: make(chan message, a.cfg.QueueSize)}
		a.workers[speakerID] = w
		a.workerWG.Add(1)
		a.metrics.ActiveSpeakers.Add(a.ctx, 1)
		go a.run(w)
	}
	return w
}

// run is the worker goroutine: the only place a speaker's session state is
// ever read or written.
func (a *Assembler) run(w *worker) {
	defer a.workerWG.Done()
	defer a.metrics.ActiveSpeakers.Add(a.ctx, -1)

	for msg := range w.in {
		switch msg.kind {
		case msgFrame:
			a.handleFrame(w.speakerID, msg.frame)
		case msgTimeout:
			a.handleTimeout(w.speakerID)
		case msgLeave:
			a.handleLeave(w.speakerID)
			return
		}
	}
}

// handleFrame appends the frame and applies the length rules. The elapsed
// span is measured against the frame's own arrival timestamp, not the
// processing clock, so a backlogged queue cannot skew segment boundaries.
func (a *Assembler) handleFrame(speakerID string, f audio.Frame) {
	a.store.Append(speakerID, f.Data, f.Arrival)

	start, ok := a.store.BufferStart(speakerID)
	if !ok {
		return
	}
	elapsed := f.Arrival.Sub(start)

	switch {
	case elapsed >= a.cfg.SafetyNetThreshold:
		a.finalize(speakerID, ReasonSafetyNet)
	case elapsed >= a.cfg.DurationThreshold:
		a.finalize(speakerID, ReasonDuration)
	default:
		a.sched.OnActivity(speakerID, a.cfg.SilenceTimeout, a.onTimerFire)
		a.metrics.RecordTimerEvent(a.ctx, "armed")
	}
}

// onTimerFire runs on the timer goroutine. It does not touch session state;
// it posts a timeout notice onto the speaker's worker queue. A full queue
// means frames are waiting — the silence premise is already refuted, so the
// notice is dropped rather than blocked on.
func (a *Assembler) onTimerFire(speakerID string) {
	a.metrics.RecordTimerEvent(a.ctx, "fired")

	a.mu.Lock()
	w := a.workers[speakerID]
	a.mu.Unlock()
	if w == nil {
		return
	}
	select {
	case w.in <- message{kind: msgTimeout}:
	default:
	}
}

// handleTimeout processes a silence-timer fire on the worker goroutine. If
// frames slipped in between the fire and this point the drain inside
// finalize picks them up too — they belong to the same utterance.
func (a *Assembler) handleTimeout(speakerID string) {
	a.finalize(speakerID, ReasonSilence)
}

// handleLeave finalizes any substantial remainder as a disconnect segment
// and removes the session.
func (a *Assembler) handleLeave(speakerID string) {
	if a.sched.Cancel(speakerID) {
		a.metrics.RecordTimerEvent(a.ctx, "cancelled")
	}
	switch {
	case !a.store.HasFreshAudio(speakerID):
		// Nothing, or pure carryover — audio that was already emitted once.
	case a.store.BufferedAudio(speakerID) >= a.cfg.MinSpeechDuration:
		a.finalize(speakerID, ReasonDisconnect)
	default:
		a.metrics.RecordSegmentDropped(a.ctx, "too_short")
	}
	a.store.Remove(speakerID)
}

// finalize is the single funnel through which every segment is produced.
// The drain below is atomic and idempotent: whichever trigger drains first
// gets the audio, every other trigger finds an empty buffer and returns.
func (a *Assembler) finalize(speakerID string, reason Reason) {
	if a.sched.Cancel(speakerID) {
		a.metrics.RecordTimerEvent(a.ctx, "cancelled")
	}

	raw, start, audioLen := a.store.DrainAndClear(speakerID)
	if len(raw) == 0 {
		return
	}

	if audioLen < a.cfg.MinSpeechDuration {
		slog.Debug("segment below minimum speech duration, discarding",
			"speaker_id", speakerID, "audio_len", audioLen, "reason", string(reason))
		a.metrics.RecordSegmentDropped(a.ctx, "too_short")
		return
	}

	// Seed the next buffer with the tail of this one, so a word cut at the
	// boundary is heard whole in the following segment. Never on
	// disconnect — there is no following segment — and never for a
	// discarded blip: audio that was never emitted must not resurface.
	if a.cfg.Carryover > 0 && reason != ReasonDisconnect {
		if tail := a.carryoverTail(raw); tail != nil {
			a.store.DepositCarryover(speakerID, tail, time.Now())
		}
	}

	wav, err := a.norm.Normalize(raw)
	if err != nil {
		if errors.Is(err, audio.ErrTooShort) {
			a.metrics.RecordSegmentDropped(a.ctx, "too_short")
			return
		}
		slog.Error("segment normalization failed",
			"speaker_id", speakerID, "audio_len", audioLen, "err", err)
		a.metrics.RecordSegmentDropped(a.ctx, "normalize_error")
		return
	}

	seg := Segment{
		SpeakerID: speakerID,
		Audio:     wav,
		Duration:  audioLen,
		Start:     start,
		Reason:    reason,
	}
	a.metrics.RecordSegment(a.ctx, string(reason), audioLen)

	select {
	case a.emit <- seg:
	default:
		slog.Warn("segment dispatch queue full, dropping segment",
			"speaker_id", speakerID, "audio_len", audioLen, "reason", string(reason))
		a.metrics.RecordSegmentDropped(a.ctx, "queue_full")
	}
}

// carryoverTail returns the trailing slice of raw covering the configured
// carryover span, aligned to whole sample frames. Returns nil when the
// carryover would cover the entire buffer — re-buffering a whole segment
// would echo it.
func (a *Assembler) carryoverTail(raw []byte) []byte {
	frameBytes := 2 * a.cfg.Channels
	n := int(a.cfg.Carryover*time.Duration(a.cfg.SampleRate)/time.Second) * frameBytes
	if n <= 0 || n >= len(raw) {
		return nil
	}
	return raw[len(raw)-n:]
}

// dispatch is the single goroutine that hands finalized segments to the
// sink, keeping sink latency off the worker goroutines entirely.
func (a *Assembler) dispatch() {
	defer close(a.emitDone)
	for seg := range a.emit {
		if err := a.sink.Submit(a.ctx, seg); err != nil {
			slog.Error("segment submission failed",
				"speaker_id", seg.SpeakerID, "reason", string(seg.Reason), "err", err)
			a.metrics.RecordSegmentDropped(a.ctx, "downstream")
		}
	}
}
