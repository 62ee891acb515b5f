// Package audio defines the types and interfaces for voice-platform
// connectivity and the normalization applied to finished speech segments.
//
// The two connectivity abstractions are:
//
//   - [Platform] — connects to a voice channel and returns a [Connection].
//   - [Connection] — an active session on that channel, exposing
//     per-speaker input streams and speaker lifecycle events.
//
// Implementations are provided by platform-specific adapter packages
// (e.g., audio/discord). The interfaces are intentionally narrow: the
// segmentation core never sees platform details, only [Frame] values and
// join/leave events.
//
// This package lives under pkg/ because external platform adapters are
// expected to implement [Platform] and [Connection].
package audio

import "context"

// EventType classifies speaker lifecycle events emitted by a [Connection].
type EventType int

const (
	// EventJoin is emitted when a speaker enters the voice channel.
	EventJoin EventType = iota

	// EventLeave is emitted when a speaker leaves the voice channel.
	EventLeave
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoin:
		return "JOIN"
	case EventLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Event describes a speaker lifecycle change on a voice channel.
// Callbacks registered via [Connection.OnSpeakerChange] receive values of
// this type.
type Event struct {
	// Type indicates whether the speaker joined or left.
	Type EventType

	// SpeakerID is the platform-specific unique identifier for the speaker.
	SpeakerID string

	// Username is the human-readable display name, when known.
	Username string
}

// Connection represents an active receive session on a voice channel.
//
// A Connection is obtained from [Platform.Connect] and remains valid until
// [Connection.Disconnect] is called. All channels returned by Connection
// methods are closed automatically when the connection terminates.
//
// The platform only delivers frames while a speaker is actively talking
// (the platform performs its own voice-activity gating); absence of frames
// is therefore the only end-of-speech signal consumers will ever see.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// InputStreams returns a snapshot of the current per-speaker audio
	// channels. The map key is the platform speaker ID; the value delivers
	// [Frame] values as they arrive from that speaker. A new entry appears
	// for each speaker heard for the first time and is removed (channel
	// closed) when that speaker leaves.
	//
	// Callers should call InputStreams again after receiving an [EventJoin]
	// event to pick up newly added channels.
	InputStreams() map[string]<-chan Frame

	// OnSpeakerChange registers cb as the callback to invoke whenever a
	// speaker joins or leaves the channel. Only one callback may be
	// registered at a time; subsequent calls replace the previous
	// registration. The callback is invoked on an internal goroutine —
	// callers must not block.
	OnSpeakerChange(cb func(Event))

	// Disconnect cleanly tears down the connection and closes all input
	// channels. It is safe to call Disconnect more than once; subsequent
	// calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
// Implementations wrap provider-specific SDKs and expose a uniform
// [Connection] abstraction.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by channelID and returns an
	// active [Connection]. The supplied ctx governs the lifetime of the
	// connection attempt only; once connected, the Connection remains alive
	// until [Connection.Disconnect] is called.
	Connect(ctx context.Context, channelID string) (Connection, error)
}
