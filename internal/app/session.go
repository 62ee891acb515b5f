package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxscribe/voxscribe/internal/discord/commands"
	"github.com/voxscribe/voxscribe/internal/segment"
	"github.com/voxscribe/voxscribe/pkg/audio"
)

// ErrSessionActive is returned by Join while a session is already running.
var ErrSessionActive = errors.New("app: a voice session is already active")

// ErrNoSession is returned by Leave when no session is running.
var ErrNoSession = errors.New("app: no active voice session")

// SessionManager owns the lifetime of one voice-channel session at a time.
// Join connects the platform, builds a fresh [segment.Assembler] feeding
// the [Pipeline], and pumps every per-speaker input stream into it. Leave
// tears the session down in order: disconnect, drain the pumps, flush the
// assembler.
//
// It implements [commands.Controller].
type SessionManager struct {
	platform audio.Platform
	pipeline *Pipeline
	norm     *audio.Normalizer
	segCfg   segment.Config

	mu        sync.Mutex
	conn      audio.Connection
	asm       *segment.Assembler
	channelID string
	startedAt time.Time
	baseCount int64
	pumps     sync.WaitGroup

	// streamMu guards speaker state touched by the platform callback, which
	// runs on a platform goroutine and may fire while mu is held by Join.
	streamMu sync.Mutex
	names    map[string]string
	pumped   map[string]bool
}

var _ commands.Controller = (*SessionManager)(nil)

// NewSessionManager builds a SessionManager and installs itself as the
// pipeline's speaker-name resolver.
func NewSessionManager(platform audio.Platform, pipeline *Pipeline, norm *audio.Normalizer, segCfg segment.Config) *SessionManager {
	m := &SessionManager{
		platform: platform,
		pipeline: pipeline,
		norm:     norm,
		segCfg:   segCfg,
		names:    make(map[string]string),
		pumped:   make(map[string]bool),
	}
	pipeline.SetNameResolver(m.SpeakerName)
	return m
}

// Join connects to the voice channel and starts transcribing. Only one
// session may be active at a time.
func (m *SessionManager) Join(ctx context.Context, channelID, requestedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return ErrSessionActive
	}

	conn, err := m.platform.Connect(ctx, channelID)
	if err != nil {
		return fmt.Errorf("app: connect to voice channel %s: %w", channelID, err)
	}

	asm, err := segment.NewAssembler(m.segCfg, m.norm, m.pipeline, m.pipeline.metrics)
	if err != nil {
		_ = conn.Disconnect()
		return fmt.Errorf("app: start assembler: %w", err)
	}

	m.streamMu.Lock()
	m.names = make(map[string]string)
	m.pumped = make(map[string]bool)
	m.streamMu.Unlock()

	conn.OnSpeakerChange(func(ev audio.Event) {
		m.onSpeakerChange(conn, asm, ev)
	})
	for id, ch := range conn.InputStreams() {
		m.startPump(asm, id, ch)
	}

	m.conn = conn
	m.asm = asm
	m.channelID = channelID
	m.startedAt = time.Now()
	m.baseCount = m.pipeline.Transcribed()
	m.pipeline.SetChannel(channelID)

	slog.Info("voice session started",
		"channel", channelID, "requested_by", requestedBy)
	return nil
}

// Leave disconnects and flushes all pending utterances. Every buffered
// segment still above the minimum speech length is finalized and
// transcribed before Leave returns.
func (m *SessionManager) Leave(ctx context.Context) error {
	m.mu.Lock()
	conn, asm := m.conn, m.asm
	channelID := m.channelID
	m.conn = nil
	m.asm = nil
	m.channelID = ""
	m.startedAt = time.Time{}
	m.mu.Unlock()

	if conn == nil {
		return ErrNoSession
	}

	// Disconnect closes the input channels, which ends the pumps.
	err := conn.Disconnect()

	done := make(chan struct{})
	go func() {
		m.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("app: waiting for frame pumps: %w", ctx.Err())
	}

	if closeErr := asm.Close(ctx); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("app: flush assembler: %w", closeErr))
	}

	slog.Info("voice session stopped", "channel", channelID)
	return err
}

// Status reports the current session state.
func (m *SessionManager) Status() commands.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return commands.Status{}
	}
	return commands.Status{
		Active:      true,
		ChannelID:   m.channelID,
		StartedAt:   m.startedAt,
		Speakers:    m.asm.Store().Len(),
		Transcribed: m.pipeline.Transcribed() - m.baseCount,
	}
}

// SpeakerName returns the display name recorded for the speaker, or the
// raw ID when the speaker has never announced a name.
func (m *SessionManager) SpeakerName(speakerID string) string {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()

	if name, ok := m.names[speakerID]; ok && name != "" {
		return name
	}
	return speakerID
}

// onSpeakerChange handles platform lifecycle events. It runs on a platform
// goroutine and must not block.
func (m *SessionManager) onSpeakerChange(conn audio.Connection, asm *segment.Assembler, ev audio.Event) {
	switch ev.Type {
	case audio.EventJoin:
		m.streamMu.Lock()
		if ev.Username != "" {
			m.names[ev.SpeakerID] = ev.Username
		}
		m.streamMu.Unlock()

		asm.OnSpeakerJoin(ev.SpeakerID)
		if ch, ok := conn.InputStreams()[ev.SpeakerID]; ok {
			m.startPump(asm, ev.SpeakerID, ch)
		}
	case audio.EventLeave:
		asm.OnSpeakerLeave(ev.SpeakerID)
	}
}

// startPump forwards one speaker's frames into the assembler until the
// platform closes the stream. Idempotent per speaker per session.
func (m *SessionManager) startPump(asm *segment.Assembler, speakerID string, ch <-chan audio.Frame) {
	m.streamMu.Lock()
	if m.pumped[speakerID] {
		m.streamMu.Unlock()
		return
	}
	m.pumped[speakerID] = true
	m.streamMu.Unlock()

	m.pumps.Add(1)
	go func() {
		defer m.pumps.Done()
		for frame := range ch {
			asm.OnFrame(speakerID, frame)
		}
		m.streamMu.Lock()
		delete(m.pumped, speakerID)
		m.streamMu.Unlock()
	}()
}
