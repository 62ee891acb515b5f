// Package app wires the segmentation core to the transcription,
// correction, and delivery collaborators, and manages the lifetime of a
// voice-channel session.
//
// The two central pieces are:
//
//   - [Pipeline] — the per-segment processing path: transcribe, correct,
//     then fan out to the text channel, the live feed, and the archive.
//   - [SessionManager] — connects to a voice channel, pumps per-speaker
//     frame streams into a [segment.Assembler], and tears everything down
//     in order on leave.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxscribe/voxscribe/internal/archive"
	"github.com/voxscribe/voxscribe/internal/feed"
	"github.com/voxscribe/voxscribe/internal/observe"
	"github.com/voxscribe/voxscribe/internal/segment"
	"github.com/voxscribe/voxscribe/internal/transcript"
	"github.com/voxscribe/voxscribe/pkg/transcribe"
)

// NamedTranscriber converts audio to text and reports which backend served
// the request. Satisfied by [resilience.Transcriber].
type NamedTranscriber interface {
	TranscribeNamed(ctx context.Context, wav []byte) (transcribe.Result, string, error)
}

// Archiver persists finished transcripts. Satisfied by [archive.Store].
type Archiver interface {
	WriteEntry(ctx context.Context, e archive.Entry) (int64, error)
}

// Broadcaster pushes live transcript events to feed subscribers.
// Satisfied by [feed.Server].
type Broadcaster interface {
	Broadcast(ev feed.Event)
}

// TranscriptPoster writes finished transcripts to a text channel.
// Satisfied by [discord.Poster].
type TranscriptPoster interface {
	Post(speakerName, text string)
}

// PipelineOption configures optional [Pipeline] collaborators.
type PipelineOption func(*Pipeline)

// WithCorrector enables the vocabulary-correction stage.
func WithCorrector(c transcript.Pipeline) PipelineOption {
	return func(p *Pipeline) { p.corrector = c }
}

// WithArchiver enables transcript persistence.
func WithArchiver(a Archiver) PipelineOption {
	return func(p *Pipeline) { p.archiver = a }
}

// WithBroadcaster enables the live transcript feed.
func WithBroadcaster(b Broadcaster) PipelineOption {
	return func(p *Pipeline) { p.feed = b }
}

// WithPoster enables posting transcripts to a text channel.
func WithPoster(tp TranscriptPoster) PipelineOption {
	return func(p *Pipeline) { p.poster = tp }
}

// WithVocabulary seeds the correction vocabulary.
func WithVocabulary(terms []string) PipelineOption {
	return func(p *Pipeline) { p.vocab = slices.Clone(terms) }
}

// WithGuildID stamps archived entries and feed events with the guild.
func WithGuildID(id string) PipelineOption {
	return func(p *Pipeline) { p.guildID = id }
}

// Pipeline is the per-segment processing path. It implements the assembler
// sink contract via [Pipeline.Process]: every finalized utterance is
// transcribed, corrected against the configured vocabulary, and fanned out
// to the optional delivery collaborators.
//
// Transcription failures propagate to the caller; delivery failures are
// logged and never stall the audio path.
//
// Safe for concurrent use: the assembler dispatches segments from a single
// goroutine, but vocabulary and session updates arrive from others.
type Pipeline struct {
	tx      NamedTranscriber
	metrics *observe.Metrics

	corrector transcript.Pipeline
	archiver  Archiver
	feed      Broadcaster
	poster    TranscriptPoster

	guildID string

	mu        sync.Mutex
	vocab     []string
	channelID string
	names     func(speakerID string) string

	transcribed atomic.Int64
}

var _ segment.Sink = (*Pipeline)(nil)

// NewPipeline builds a Pipeline around the given transcriber. A nil metrics
// falls back to no-op instruments.
func NewPipeline(tx NamedTranscriber, metrics *observe.Metrics, opts ...PipelineOption) *Pipeline {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	p := &Pipeline{tx: tx, metrics: metrics}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetVocabulary replaces the correction vocabulary. Called on config
// reload; takes effect for the next segment.
func (p *Pipeline) SetVocabulary(terms []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vocab = slices.Clone(terms)
}

// SetChannel records the voice channel of the active session. Archived
// entries and feed events are stamped with it.
func (p *Pipeline) SetChannel(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channelID = channelID
}

// SetNameResolver installs the speaker-ID-to-display-name lookup.
func (p *Pipeline) SetNameResolver(fn func(speakerID string) string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = fn
}

// Transcribed returns the number of utterances processed end to end since
// the pipeline was created.
func (p *Pipeline) Transcribed() int64 {
	return p.transcribed.Load()
}

// Submit implements [segment.Sink].
func (p *Pipeline) Submit(ctx context.Context, seg segment.Segment) error {
	return p.Process(ctx, seg)
}

// Process runs one finalized segment through the full path.
func (p *Pipeline) Process(ctx context.Context, seg segment.Segment) error {
	start := time.Now()
	res, backend, err := p.tx.TranscribeNamed(ctx, seg.Audio)
	p.metrics.RecordTranscribe(ctx, backend, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("app: transcribe segment for speaker %s: %w", seg.SpeakerID, err)
	}

	raw := strings.TrimSpace(res.Text)
	if raw == "" {
		slog.Debug("discarding empty transcript",
			"speaker", seg.SpeakerID, "reason", string(seg.Reason))
		return nil
	}

	p.mu.Lock()
	vocab := p.vocab
	channelID := p.channelID
	names := p.names
	p.mu.Unlock()

	text := raw
	corrected := false
	if p.corrector != nil {
		out, err := p.corrector.Correct(ctx, raw, vocab)
		if err != nil {
			// The raw transcript is still useful; keep it.
			slog.Warn("vocabulary correction failed, keeping raw transcript",
				"speaker", seg.SpeakerID, "error", err)
		} else {
			text = out.Text
			corrected = true
		}
	}

	speakerName := seg.SpeakerID
	if names != nil {
		speakerName = names(seg.SpeakerID)
	}

	p.transcribed.Add(1)

	if p.poster != nil {
		p.poster.Post(speakerName, text)
	}
	if p.feed != nil {
		p.feed.Broadcast(feed.Event{
			GuildID:     p.guildID,
			ChannelID:   channelID,
			SpeakerID:   seg.SpeakerID,
			SpeakerName: speakerName,
			Text:        text,
			Reason:      string(seg.Reason),
			Backend:     backend,
			StartedAt:   seg.Start,
			Duration:    seg.Duration,
		})
	}
	if p.archiver != nil {
		entry := archive.Entry{
			GuildID:     p.guildID,
			ChannelID:   channelID,
			SpeakerID:   seg.SpeakerID,
			SpeakerName: speakerName,
			Text:        text,
			Reason:      string(seg.Reason),
			Backend:     backend,
			StartedAt:   seg.Start,
			Duration:    seg.Duration,
		}
		if corrected && text != raw {
			entry.RawText = raw
		}
		if _, err := p.archiver.WriteEntry(ctx, entry); err != nil {
			// A lost row must not fail the session; the transcript was
			// already delivered to the feed and the text channel.
			slog.Error("archiving transcript failed",
				"speaker", seg.SpeakerID, "error", err)
		}
	}

	return nil
}
