package discord_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/voxscribe/voxscribe/internal/discord"
	"github.com/voxscribe/voxscribe/internal/discord/mock"
)

func TestPoster_Post(t *testing.T) {
	t.Parallel()

	sender := &mock.MessageSender{}
	p := discord.NewPoster(sender, "chan-1")

	p.Post("Alice", "hello everyone")

	if sender.Count() != 1 {
		t.Fatalf("sent %d messages, want 1", sender.Count())
	}
	msg := sender.Last()
	if msg.ChannelID != "chan-1" {
		t.Errorf("channel = %q, want %q", msg.ChannelID, "chan-1")
	}
	if msg.Content != "**Alice**: hello everyone" {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestPoster_DisabledWithoutChannel(t *testing.T) {
	t.Parallel()

	sender := &mock.MessageSender{}
	p := discord.NewPoster(sender, "")

	if p.Enabled() {
		t.Error("Enabled = true for empty channel ID")
	}
	p.Post("Alice", "hello")
	if sender.Count() != 0 {
		t.Errorf("sent %d messages, want 0", sender.Count())
	}
}

func TestPoster_SkipsEmptyText(t *testing.T) {
	t.Parallel()

	sender := &mock.MessageSender{}
	p := discord.NewPoster(sender, "chan-1")

	p.Post("Alice", "")
	if sender.Count() != 0 {
		t.Errorf("sent %d messages, want 0", sender.Count())
	}
}

func TestPoster_UnknownSpeaker(t *testing.T) {
	t.Parallel()

	sender := &mock.MessageSender{}
	p := discord.NewPoster(sender, "chan-1")

	p.Post("", "hello")
	if got := sender.Last().Content; got != "**unknown speaker**: hello" {
		t.Errorf("content = %q", got)
	}
}

func TestPoster_TruncatesLongMessages(t *testing.T) {
	t.Parallel()

	sender := &mock.MessageSender{}
	p := discord.NewPoster(sender, "chan-1")

	p.Post("Alice", strings.Repeat("a", 3000))

	content := []rune(sender.Last().Content)
	if len(content) != 2000 {
		t.Errorf("content length = %d runes, want 2000", len(content))
	}
	if content[len(content)-1] != '…' {
		t.Errorf("content does not end with ellipsis: %q", string(content[len(content)-10:]))
	}
}

func TestPoster_SendErrorDoesNotPropagate(t *testing.T) {
	t.Parallel()

	sender := &mock.MessageSender{Err: errors.New("rate limited")}
	p := discord.NewPoster(sender, "chan-1")

	// Must not panic or block; the error is only logged.
	p.Post("Alice", "hello")
}
