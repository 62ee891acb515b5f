package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// maxMessageLen is Discord's content length limit.
const maxMessageLen = 2000

// MessageSender is the slice of the discordgo session the poster needs.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Poster publishes finished transcripts to a text channel as
// "**speaker**: text" messages. A zero channel ID disables posting.
type Poster struct {
	sender    MessageSender
	channelID string
}

// NewPoster creates a Poster writing to channelID through sender.
func NewPoster(sender MessageSender, channelID string) *Poster {
	return &Poster{sender: sender, channelID: channelID}
}

// Enabled reports whether a target channel is configured.
func (p *Poster) Enabled() bool {
	return p.channelID != ""
}

// Post sends one transcript line. Overlong content is truncated to the
// Discord message limit. Errors are logged, not returned — a failed post
// must not stall the transcription pipeline.
func (p *Poster) Post(speakerName, text string) {
	if !p.Enabled() || text == "" {
		return
	}
	if speakerName == "" {
		speakerName = "unknown speaker"
	}

	content := fmt.Sprintf("**%s**: %s", speakerName, text)
	// The limit counts characters, not bytes.
	if runes := []rune(content); len(runes) > maxMessageLen {
		content = string(runes[:maxMessageLen-1]) + "…"
	}

	if _, err := p.sender.ChannelMessageSend(p.channelID, content); err != nil {
		slog.Warn("discord: failed to post transcript",
			"channel_id", p.channelID, "speaker", speakerName, "err", err)
	}
}
