// Package mock provides test doubles for the audio.Platform and
// audio.Connection interfaces.
//
// A [Connection] starts with no speakers; tests add them with
// [Connection.AddSpeaker], write frames into the returned channel, and
// remove them with [Connection.RemoveSpeaker]. Speaker lifecycle callbacks
// fire synchronously on the calling goroutine.
package mock

import (
	"context"
	"sync"

	"github.com/voxscribe/voxscribe/pkg/audio"
)

// Compile-time assertions against the audio interfaces.
var (
	_ audio.Platform   = (*Platform)(nil)
	_ audio.Connection = (*Connection)(nil)
)

// Platform is a mock implementation of audio.Platform.
type Platform struct {
	mu sync.Mutex

	// Conn is returned by every Connect call. When nil, a fresh
	// [Connection] is created on first use.
	Conn *Connection

	// Err, if non-nil, is returned by every Connect call.
	Err error

	// Connects records the channel IDs passed to Connect, in order.
	Connects []string
}

// Connect records the call and returns the scripted connection.
func (p *Platform) Connect(_ context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Connects = append(p.Connects, channelID)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Conn == nil {
		p.Conn = NewConnection()
	}
	return p.Conn, nil
}

// Connection is a mock implementation of audio.Connection.
type Connection struct {
	mu           sync.Mutex
	streams      map[string]chan audio.Frame
	cb           func(audio.Event)
	disconnected bool

	// Disconnects counts Disconnect calls.
	Disconnects int
}

// NewConnection returns an empty mock connection.
func NewConnection() *Connection {
	return &Connection{streams: make(map[string]chan audio.Frame)}
}

// InputStreams returns the current per-speaker channels.
func (c *Connection) InputStreams() map[string]<-chan audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]<-chan audio.Frame, len(c.streams))
	for id, ch := range c.streams {
		out[id] = ch
	}
	return out
}

// OnSpeakerChange registers the lifecycle callback.
func (c *Connection) OnSpeakerChange(cb func(audio.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

// Disconnect closes all input channels. Safe to call more than once.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Disconnects++
	if c.disconnected {
		return nil
	}
	c.disconnected = true
	for id, ch := range c.streams {
		close(ch)
		delete(c.streams, id)
	}
	return nil
}

// AddSpeaker creates an input stream for the speaker, fires an EventJoin
// with the given username, and returns the write side of the stream.
func (c *Connection) AddSpeaker(id, username string) chan<- audio.Frame {
	c.mu.Lock()
	ch := make(chan audio.Frame, 64)
	c.streams[id] = ch
	cb := c.cb
	c.mu.Unlock()

	if cb != nil {
		cb(audio.Event{Type: audio.EventJoin, SpeakerID: id, Username: username})
	}
	return ch
}

// RemoveSpeaker fires an EventLeave for the speaker and closes its stream.
func (c *Connection) RemoveSpeaker(id string) {
	c.mu.Lock()
	ch, ok := c.streams[id]
	if ok {
		delete(c.streams, id)
	}
	cb := c.cb
	c.mu.Unlock()

	if cb != nil {
		cb(audio.Event{Type: audio.EventLeave, SpeakerID: id})
	}
	if ok {
		close(ch)
	}
}
