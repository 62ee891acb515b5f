package discord

import (
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/voxscribe/voxscribe/pkg/audio"
)

// newTestConnection creates a Connection suitable for unit testing without
// a real Discord voice connection, wired to a fake OpusRecv channel.
func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	vc := &discordgo.VoiceConnection{
		OpusRecv: make(chan *discordgo.Packet, 16),
	}
	c := &Connection{
		vc:           vc,
		session:      &discordgo.Session{},
		guildID:      "guild-test",
		inputs:       make(map[string]chan audio.Frame),
		ssrcUser:     make(map[uint32]string),
		ssrcKey:      make(map[uint32]string),
		done:         make(chan struct{}),
		disconnectVC: func() error { return nil },
	}
	// Start the receive loop like the real constructor, but without
	// registering session handlers (the fake session has no websocket).
	go c.recvLoop()
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestNewPlatform(t *testing.T) {
	t.Parallel()

	s := &discordgo.Session{}
	p := New(s, "guild-123")
	if p == nil {
		t.Fatal("New returned nil")
	}
	if p.session != s {
		t.Error("session not stored correctly")
	}
	if p.guildID != "guild-123" {
		t.Errorf("guildID = %q, want %q", p.guildID, "guild-123")
	}
}

func TestConnection_DisconnectIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	for i := range 3 {
		if err := c.Disconnect(); i > 0 && err != nil {
			t.Fatalf("Disconnect[%d]: unexpected error: %v", i, err)
		}
	}
}

func TestConnection_InputStreamsEmpty(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	streams := c.InputStreams()
	if streams == nil {
		t.Fatal("InputStreams returned nil")
	}
	if len(streams) != 0 {
		t.Errorf("InputStreams: want 0 entries, got %d", len(streams))
	}
}

func TestConnection_OnSpeakerChangeRegisters(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)

	called := make(chan audio.Event, 4)
	c.OnSpeakerChange(func(ev audio.Event) {
		called <- ev
	})

	c.emitEvent(audio.Event{Type: audio.EventJoin, SpeakerID: "user-1", Username: "Alice"})

	select {
	case ev := <-called:
		if ev.Type != audio.EventJoin {
			t.Errorf("event type = %v, want EventJoin", ev.Type)
		}
		if ev.SpeakerID != "user-1" {
			t.Errorf("event SpeakerID = %q, want %q", ev.SpeakerID, "user-1")
		}
		if ev.Username != "Alice" {
			t.Errorf("event Username = %q, want %q", ev.Username, "Alice")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for speaker change event")
	}

	// Replace the callback; the original must stop receiving events.
	called2 := make(chan audio.Event, 4)
	c.OnSpeakerChange(func(ev audio.Event) {
		called2 <- ev
	})
	c.emitEvent(audio.Event{Type: audio.EventLeave, SpeakerID: "user-1"})

	select {
	case ev := <-called2:
		if ev.Type != audio.EventLeave {
			t.Errorf("replaced callback: event type = %v, want EventLeave", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event on replaced callback")
	}
	select {
	case ev := <-called:
		t.Errorf("original callback received event after replacement: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnection_RecvDemux(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)

	// SSRC 100 was announced via a speaking update before its audio; SSRC
	// 200 never was and must fall back to the decimal SSRC key.
	c.handleSpeakingUpdate(nil, &discordgo.VoiceSpeakingUpdate{UserID: "user-alice", SSRC: 100})

	// Opus silence frame: 0xF8 0xFF 0xFE.
	silenceOpus := []byte{0xF8, 0xFF, 0xFE}
	c.vc.OpusRecv <- &discordgo.Packet{SSRC: 100, Opus: silenceOpus}
	c.vc.OpusRecv <- &discordgo.Packet{SSRC: 200, Opus: silenceOpus}

	time.Sleep(100 * time.Millisecond)

	streams := c.InputStreams()
	if len(streams) != 2 {
		t.Fatalf("InputStreams: want 2 entries, got %d", len(streams))
	}
	if _, ok := streams["user-alice"]; !ok {
		t.Error("InputStreams: missing mapped speaker user-alice")
	}
	if _, ok := streams["200"]; !ok {
		t.Error("InputStreams: missing fallback key 200")
	}

	for id, ch := range streams {
		select {
		case frame := <-ch:
			if frame.SampleRate != opusSampleRate {
				t.Errorf("%s: SampleRate = %d, want %d", id, frame.SampleRate, opusSampleRate)
			}
			if frame.Channels != opusChannels {
				t.Errorf("%s: Channels = %d, want %d", id, frame.Channels, opusChannels)
			}
			if len(frame.Data) == 0 {
				t.Errorf("%s: frame data is empty", id)
			}
			if frame.Arrival.IsZero() {
				t.Errorf("%s: frame arrival timestamp not set", id)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for frame", id)
		}
	}
}

func TestConnection_SpeakerForSSRC(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	c.handleSpeakingUpdate(nil, &discordgo.VoiceSpeakingUpdate{UserID: "user-bob", SSRC: 42})

	if got := c.SpeakerForSSRC(42); got != "user-bob" {
		t.Errorf("SpeakerForSSRC(42) = %q, want user-bob", got)
	}
	if got := c.SpeakerForSSRC(99); got != "99" {
		t.Errorf("SpeakerForSSRC(99) = %q, want fallback \"99\"", got)
	}
}

func TestConnection_ConcurrentDisconnect(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_ = c.Disconnect()
		})
	}
	wg.Wait()
}

func TestConnection_RemoveStreamOnLeave(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)

	c.inputsMu.Lock()
	c.ssrcUser[100] = "user-1"
	c.inputsMu.Unlock()

	ch, speakerID, created := c.streamFor(100)
	if !created || speakerID != "user-1" {
		t.Fatalf("streamFor: created=%v speakerID=%q", created, speakerID)
	}

	c.removeStream("user-1")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received a frame from a removed stream")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after removeStream")
	}
	if got := len(c.InputStreams()); got != 0 {
		t.Errorf("InputStreams has %d entries after leave, want 0", got)
	}

	// The SSRC mapping was cleared, so a rejoin starts a fresh stream.
	ch2, _, created := c.streamFor(100)
	if !created {
		t.Error("streamFor did not create a fresh stream after leave")
	}
	if ch2 == ch {
		t.Error("streamFor returned the closed stream after leave")
	}

	// Removing an unknown speaker is a no-op.
	c.removeStream("user-unknown")
}
