package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Every interaction response the bot sends is ephemeral: command feedback
// is for the invoking user only, while transcripts reach the channel
// through the [Poster].

// RespondEphemeral answers an interaction immediately with a plain text
// message visible only to the invoker.
func RespondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	ack(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// DeferReply acknowledges an interaction whose handler needs longer than
// Discord's three-second response window, such as joining a voice channel
// or querying the archive. The result goes out later via [FollowUp] or
// [FollowUpEmbed].
func DeferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ack(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// FollowUp completes a deferred interaction with a text message.
func FollowUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	followUp(s, i, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

// FollowUpEmbed completes a deferred interaction with an embed. Used for
// transcript search results.
func FollowUpEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	followUp(s, i, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
}

func ack(s *discordgo.Session, i *discordgo.InteractionCreate, resp *discordgo.InteractionResponse) {
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		slog.Warn("discord: interaction response failed", "err", err)
	}
}

func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, params *discordgo.WebhookParams) {
	if _, err := s.FollowupMessageCreate(i.Interaction, true, params); err != nil {
		slog.Warn("discord: follow-up failed", "err", err)
	}
}
