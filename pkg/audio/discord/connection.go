package discord

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/voxscribe/voxscribe/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

// inputChannelBuffer is the per-speaker frame queue depth. At 20ms per
// frame this buffers a bit over a second of audio before frames are dropped.
const inputChannelBuffer = 64

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// receive-only [audio.Connection] interface. Incoming Opus packets are
// demuxed by SSRC, decoded to PCM and delivered on per-speaker input
// streams.
//
// Discord identifies audio packets by SSRC, not by user. The mapping from
// SSRC to user ID arrives out of band via VoiceSpeakingUpdate events, which
// in practice precede the first audio packet of a speaker. A stream whose
// SSRC was never announced is keyed by the decimal SSRC instead; the key is
// fixed at stream creation and never changes afterwards.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string

	inputsMu sync.RWMutex
	inputs   map[string]chan audio.Frame // keyed by speaker ID
	ssrcUser map[uint32]string           // SSRC -> user ID, from speaking updates
	ssrcKey  map[uint32]string           // SSRC -> stream key actually in use

	changeMu sync.Mutex
	changeCb func(audio.Event)

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC tears down the voice connection during Disconnect.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice
// channel and starts the receive goroutine.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID string) (*Connection, error) {
	c := &Connection{
		vc:           vc,
		session:      session,
		guildID:      guildID,
		inputs:       make(map[string]chan audio.Frame),
		ssrcUser:     make(map[uint32]string),
		ssrcKey:      make(map[uint32]string),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	// Speaker join/leave tracking at the channel level.
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)

	// SSRC -> user identity mapping.
	vc.AddHandler(c.handleSpeakingUpdate)

	go c.recvLoop()

	return c, nil
}

// InputStreams returns a snapshot of the current per-speaker audio streams,
// keyed by speaker ID.
func (c *Connection) InputStreams() map[string]<-chan audio.Frame {
	c.inputsMu.RLock()
	defer c.inputsMu.RUnlock()
	snap := make(map[string]<-chan audio.Frame, len(c.inputs))
	for id, ch := range c.inputs {
		snap[id] = ch
	}
	return snap
}

// OnSpeakerChange registers cb as the callback for speaker join/leave
// events. Only one callback may be registered; subsequent calls replace the
// previous one.
func (c *Connection) OnSpeakerChange(cb func(audio.Event)) {
	c.changeMu.Lock()
	defer c.changeMu.Unlock()
	c.changeCb = cb
}

// Disconnect tears down the voice connection and stops the receive
// goroutine. Safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}

		// Close all input streams so downstream consumers see EOF.
		c.inputsMu.Lock()
		for id, ch := range c.inputs {
			close(ch)
			delete(c.inputs, id)
		}
		c.inputsMu.Unlock()
	})
	return err
}

// recvLoop reads Opus packets from the voice connection, demuxes them by
// SSRC, decodes to PCM and delivers [audio.Frame] values on per-speaker
// streams. Each SSRC gets its own decoder to keep decoder state coherent
// across consecutive frames.
func (c *Connection) recvLoop() {
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: failed to create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			ch, speakerID, created := c.streamFor(pkt.SSRC)
			if created {
				c.emitEvent(audio.Event{
					Type:      audio.EventJoin,
					SpeakerID: speakerID,
				})
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			frame := audio.Frame{
				Data:       pcm,
				SampleRate: opusSampleRate,
				Channels:   opusChannels,
				Arrival:    time.Now(),
			}

			// The stream may have been closed by a leave or Disconnect
			// between streamFor and here; sending is only safe while the
			// channel is still registered.
			c.inputsMu.RLock()
			if c.inputs[speakerID] == ch {
				select {
				case ch <- frame:
				default:
					// Stream full — drop the frame rather than stall the demux.
				}
			}
			c.inputsMu.RUnlock()
		}
	}
}

// removeStream closes and forgets the speaker's input stream, if any, so
// downstream consumers see EOF when the speaker leaves. The SSRC key
// mapping is cleared too; a rejoin starts a fresh stream.
func (c *Connection) removeStream(speakerID string) {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()

	ch, ok := c.inputs[speakerID]
	if !ok {
		return
	}
	delete(c.inputs, speakerID)
	for ssrc, key := range c.ssrcKey {
		if key == speakerID {
			delete(c.ssrcKey, ssrc)
		}
	}
	close(ch)
}

// streamFor returns the input stream for the SSRC, creating it on first
// sight. The stream key is the user ID when the speaking-update mapping is
// already known, the decimal SSRC otherwise, and stays fixed either way.
func (c *Connection) streamFor(ssrc uint32) (ch chan audio.Frame, speakerID string, created bool) {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()

	if key, ok := c.ssrcKey[ssrc]; ok {
		return c.inputs[key], key, false
	}

	key, ok := c.ssrcUser[ssrc]
	if !ok {
		key = strconv.FormatUint(uint64(ssrc), 10)
	}
	ch = make(chan audio.Frame, inputChannelBuffer)
	c.inputs[key] = ch
	c.ssrcKey[ssrc] = key
	return ch, key, true
}

// handleSpeakingUpdate records the SSRC -> user mapping Discord announces
// before a user's audio starts flowing.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs == nil || vs.UserID == "" {
		return
	}
	c.inputsMu.Lock()
	c.ssrcUser[uint32(vs.SSRC)] = vs.UserID
	c.inputsMu.Unlock()
}

// handleVoiceStateUpdate processes Discord VoiceStateUpdate events to
// detect speaker joins and leaves for the channel this connection is on.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}

	channelID := c.vc.ChannelID

	// Speaker left our channel.
	if vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == channelID && vsu.ChannelID != channelID {
		c.removeStream(vsu.UserID)
		c.emitEvent(audio.Event{
			Type:      audio.EventLeave,
			SpeakerID: vsu.UserID,
			Username:  memberUsername(vsu.Member),
		})
		return
	}

	// Speaker joined our channel.
	if vsu.ChannelID == channelID && (vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID != channelID) {
		c.emitEvent(audio.Event{
			Type:      audio.EventJoin,
			SpeakerID: vsu.UserID,
			Username:  memberUsername(vsu.Member),
		})
	}
}

func memberUsername(m *discordgo.Member) string {
	if m == nil || m.User == nil {
		return ""
	}
	return m.User.Username
}

// emitEvent invokes the registered speaker change callback, if any.
func (c *Connection) emitEvent(ev audio.Event) {
	c.changeMu.Lock()
	cb := c.changeCb
	c.changeMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}

// SpeakerForSSRC returns the user ID associated with the given SSRC, or the
// decimal SSRC if the mapping never arrived.
func (c *Connection) SpeakerForSSRC(ssrc uint32) string {
	c.inputsMu.RLock()
	defer c.inputsMu.RUnlock()
	if userID, ok := c.ssrcUser[ssrc]; ok {
		return userID
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}
