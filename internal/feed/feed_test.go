package feed_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxscribe/voxscribe/internal/feed"
)

// wsURL converts an httptest server URL to its WebSocket equivalent.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dial connects a test client to the feed and registers cleanup.
func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

// readEvent reads one JSON frame from conn and decodes it.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) feed.Event {
	t.Helper()
	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	typ, data, err := conn.Read(rctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}
	var ev feed.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return ev
}

// waitForSubscribers polls until the server sees n subscribers.
func waitForSubscribers(t *testing.T, s *feed.Server, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.SubscriberCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count = %d, want %d", s.SubscriberCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testEvent(speaker, text string) feed.Event {
	return feed.Event{
		GuildID:     "g1",
		ChannelID:   "voice-1",
		SpeakerID:   speaker,
		SpeakerName: "Speaker " + speaker,
		Text:        text,
		Reason:      "silence",
		Backend:     "whisper",
		StartedAt:   time.Now().UTC().Truncate(time.Millisecond),
		Duration:    2 * time.Second,
	}
}

func TestServer_BroadcastReachesAllSubscribers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := feed.NewServer()
	defer s.Close()
	srv := httptest.NewServer(s)
	defer srv.Close()

	c1 := dial(t, ctx, srv)
	c2 := dial(t, ctx, srv)
	waitForSubscribers(t, s, 2)

	want := testEvent("alice", "hello everyone")
	s.Broadcast(want)

	for _, conn := range []*websocket.Conn{c1, c2} {
		got := readEvent(t, ctx, conn)
		if got.Text != want.Text || got.SpeakerID != want.SpeakerID {
			t.Errorf("got %+v, want text %q from %q", got, want.Text, want.SpeakerID)
		}
		if got.Reason != "silence" || got.Backend != "whisper" {
			t.Errorf("metadata lost: %+v", got)
		}
	}
}

func TestServer_HistoryReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := feed.NewServer()
	defer s.Close()
	srv := httptest.NewServer(s)
	defer srv.Close()

	// Published before anyone is connected.
	s.Broadcast(testEvent("alice", "first"))
	s.Broadcast(testEvent("bob", "second"))

	conn := dial(t, ctx, srv)
	if got := readEvent(t, ctx, conn); got.Text != "first" {
		t.Errorf("replayed %q, want %q", got.Text, "first")
	}
	if got := readEvent(t, ctx, conn); got.Text != "second" {
		t.Errorf("replayed %q, want %q", got.Text, "second")
	}
}

func TestServer_HistoryCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := feed.NewServer(feed.WithHistory(1))
	defer s.Close()
	srv := httptest.NewServer(s)
	defer srv.Close()

	s.Broadcast(testEvent("alice", "evicted"))
	s.Broadcast(testEvent("bob", "kept"))

	conn := dial(t, ctx, srv)
	waitForSubscribers(t, s, 1)

	// Replay holds only the latest event; the live marker follows it
	// directly, proving the older one was evicted.
	if got := readEvent(t, ctx, conn); got.Text != "kept" {
		t.Errorf("replayed %q, want %q", got.Text, "kept")
	}
	s.Broadcast(testEvent("carol", "marker"))
	if got := readEvent(t, ctx, conn); got.Text != "marker" {
		t.Errorf("got %q after replay, want %q", got.Text, "marker")
	}
}

func TestServer_NoReplayWhenDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := feed.NewServer(feed.WithHistory(0))
	defer s.Close()
	srv := httptest.NewServer(s)
	defer srv.Close()

	s.Broadcast(testEvent("alice", "before connect"))

	conn := dial(t, ctx, srv)
	waitForSubscribers(t, s, 1)

	s.Broadcast(testEvent("bob", "after connect"))
	if got := readEvent(t, ctx, conn); got.Text != "after connect" {
		t.Errorf("got %q, want only the live event", got.Text)
	}
}

func TestServer_CloseDisconnectsSubscribers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := feed.NewServer()
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dial(t, ctx, srv)
	waitForSubscribers(t, s, 1)

	s.Close()

	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, _, err := conn.Read(rctx); err == nil {
		t.Error("read succeeded after Close, want connection closed")
	}
	if n := s.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount = %d after Close, want 0", n)
	}

	// Broadcast after Close is a no-op, not a panic.
	s.Broadcast(testEvent("alice", "dropped"))
}

func TestServer_CloseRejectsNewConnections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := feed.NewServer()
	srv := httptest.NewServer(s)
	defer srv.Close()

	s.Close()

	// The handshake still completes, but the server hangs up immediately.
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		return // rejected outright is fine too
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, _, err := conn.Read(rctx); err == nil {
		t.Error("read succeeded on a connection accepted after Close")
	}
}
