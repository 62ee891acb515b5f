// Package archive persists finished transcripts to PostgreSQL and serves
// history queries over them.
//
// Every finalized, transcribed utterance becomes one row in the utterances
// table, carrying the corrected text, the raw transcriber output, the
// finalize reason and the backend that produced the text. Full-text search
// runs over a GIN tsvector index. When an [embeddings.Provider] is
// configured, rows additionally get a pgvector embedding column and
// [Store.SearchSemantic] answers nearest-neighbour queries over it.
//
// Embedding failures never lose transcripts: the row is written without a
// vector and [Store.Backfill] fills the gap later.
package archive

import (
	"time"
)

// Entry is one archived utterance.
type Entry struct {
	// ID is the database row ID. Zero until the entry is written.
	ID int64

	// GuildID is the Discord guild the utterance was captured in.
	GuildID string

	// ChannelID is the voice channel the utterance was captured in.
	ChannelID string

	// SpeakerID identifies the speaker (Discord user ID, or a decimal
	// SSRC before the user mapping is known).
	SpeakerID string

	// SpeakerName is the speaker's display name at capture time.
	SpeakerName string

	// Text is the corrected transcript text.
	Text string

	// RawText is the transcriber output before correction. Empty when no
	// correction stage ran.
	RawText string

	// Reason is the finalize reason of the underlying segment
	// (duration, safety_net, silence, disconnect).
	Reason string

	// Backend names the transcription backend that served the segment.
	Backend string

	// StartedAt is when the speaker started the utterance.
	StartedAt time.Time

	// Duration is the audio length of the utterance.
	Duration time.Duration
}

// Result pairs an [Entry] with its cosine distance to a semantic query.
// Smaller distance means more similar.
type Result struct {
	Entry    Entry
	Distance float64
}

// SearchOpts narrows archive queries. Zero values mean no filtering.
type SearchOpts struct {
	// GuildID restricts results to one guild.
	GuildID string

	// SpeakerID restricts results to one speaker.
	SpeakerID string

	// After excludes entries at or before this time.
	After time.Time

	// Before excludes entries at or after this time.
	Before time.Time

	// Limit caps the number of results. Zero means no limit.
	Limit int
}
