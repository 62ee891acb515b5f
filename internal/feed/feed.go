// Package feed broadcasts finished transcripts to WebSocket subscribers.
//
// A viewer connects, receives a replay of the most recent events, then
// gets every new transcript as a JSON text frame the moment it is
// published. Slow subscribers are disconnected rather than allowed to
// stall the broadcast path.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultHistorySize = 50
	defaultQueueSize   = 32
	writeTimeout       = 5 * time.Second
)

// Event is one transcript published to the feed.
type Event struct {
	GuildID     string        `json:"guild_id"`
	ChannelID   string        `json:"channel_id,omitempty"`
	SpeakerID   string        `json:"speaker_id"`
	SpeakerName string        `json:"speaker_name,omitempty"`
	Text        string        `json:"text"`
	Reason      string        `json:"reason,omitempty"`
	Backend     string        `json:"backend,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// Option is a functional option for [NewServer].
type Option func(*Server)

// WithHistory sets how many recent events are replayed to a new
/// subscriber. Zero disables replay. Default: 50.
func WithHistory(n int) Option {
	return func(s *Server) {
		s.historySize = n
	}
}

// WithQueueSize sets the per-subscriber outbound queue length. A
// subscriber whose queue overflows is disconnected. Default: 32.
func WithQueueSize(n int) Option {
	return func(s *Server) {
		s.queueSize = n
	}
}

// subscriber is one connected viewer. Its queue is closed exactly once,
// either by the broadcaster (overflow, shutdown) or never — the serving
// goroutine only reads from it.
type subscriber struct {
	queue     chan Event
	closeOnce sync.Once
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() { close(sub.queue) })
}

// Server is the WebSocket transcript feed. It implements [http.Handler];
// mount it on the route viewers connect to.
//
// All methods are safe for concurrent use.
type Server struct {
	historySize int
	queueSize   int

	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	history []Event
	closed  bool
}

// Compile-time interface assertion.
var _ http.Handler = (*Server)(nil)

// NewServer creates a feed server with the supplied options.
func NewServer(opts ...Option) *Server {
	s := &Server{
		historySize: defaultHistorySize,
		queueSize:   defaultQueueSize,
		subs:        make(map[*subscriber]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubscriberCount returns the number of connected viewers.
func (s *Server) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Broadcast publishes ev to every subscriber and appends it to the replay
// history. Subscribers that cannot keep up are dropped.
func (s *Server) Broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.historySize > 0 {
		s.history = append(s.history, ev)
		if len(s.history) > s.historySize {
			s.history = s.history[len(s.history)-s.historySize:]
		}
	}

	for sub := range s.subs {
		select {
		case sub.queue <- ev:
		default:
			// Queue full: the viewer is too slow, cut it loose.
			delete(s.subs, sub)
			sub.close()
			slog.Warn("feed: dropping slow subscriber")
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket, replays history and
// streams events until the client disconnects or the server closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("feed: websocket accept failed", "error", err)
		return
	}

	sub := &subscriber{queue: make(chan Event, s.queueSize)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "feed shutting down")
		return
	}
	replay := make([]Event, len(s.history))
	copy(replay, s.history)
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			sub.close()
		}
		s.mu.Unlock()
	}()

	ctx := r.Context()

	// Discard inbound frames; reads only surface client disconnects.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for _, ev := range replay {
		if err := writeEvent(ctx, conn, ev); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}

	for {
		select {
		case ev, ok := <-sub.queue:
			if !ok {
				// Dropped by the broadcaster or the server is closing.
				conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		case <-readDone:
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}

// Close disconnects all subscribers and rejects future ones. Broadcast
// becomes a no-op.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		delete(s.subs, sub)
		sub.close()
	}
}

// writeEvent marshals ev and sends it as one text frame with a bounded
// write deadline.
func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: marshal event: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
