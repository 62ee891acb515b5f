// Package commands implements the voxscribe slash command handlers.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/voxscribe/voxscribe/internal/discord"
)

// Status describes the current transcription session for /voxscribe status.
type Status struct {
	// Active reports whether the bot is connected to a voice channel.
	Active bool

	// ChannelID is the connected voice channel when active.
	ChannelID string

	// StartedAt is when the session began.
	StartedAt time.Time

	// Speakers is the number of speakers currently tracked.
	Speakers int

	// Transcribed counts utterances transcribed this session.
	Transcribed int64
}

// Controller starts and stops transcription sessions. Implemented by the
// application layer.
type Controller interface {
	// Join connects to the voice channel and starts transcribing.
	Join(ctx context.Context, channelID, requestedBy string) error

	// Leave disconnects and flushes all pending utterances.
	Leave(ctx context.Context) error

	// Status reports the current session state.
	Status() Status
}

// VoiceCommands holds the dependencies for the /voxscribe command group.
type VoiceCommands struct {
	ctl   Controller
	perms *discord.PermissionChecker
	bot   *discord.Bot
}

// NewVoiceCommands creates a VoiceCommands and registers its handlers with
// the bot's router.
func NewVoiceCommands(bot *discord.Bot, ctl Controller) *VoiceCommands {
	vc := &VoiceCommands{
		ctl:   ctl,
		perms: bot.Permissions(),
		bot:   bot,
	}
	vc.Register(bot.Router())
	return vc
}

// Register registers the /voxscribe command group with the router.
func (vc *VoiceCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("voxscribe", vc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/voxscribe join`, `/voxscribe leave` or `/voxscribe status`.")
	})
	router.RegisterHandler("voxscribe/join", vc.handleJoin)
	router.RegisterHandler("voxscribe/leave", vc.handleLeave)
	router.RegisterHandler("voxscribe/status", vc.handleStatus)
}

// Definition returns the ApplicationCommand definition for Discord.
func (vc *VoiceCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "voxscribe",
		Description: "Control voice transcription",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Join your current voice channel and start transcribing",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leave",
				Description: "Leave the voice channel and flush pending transcripts",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the current transcription session",
			},
		},
	}
}

// handleJoin handles /voxscribe join.
func (vc *VoiceCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !vc.perms.CanControl(i) {
		discord.RespondEphemeral(s, i, "You do not have permission to control transcription.")
		return
	}

	userID := interactionUserID(i)
	vs, err := s.State.VoiceState(vc.bot.GuildID(), userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		discord.RespondEphemeral(s, i, "You must be in a voice channel to start transcription.")
		return
	}

	if st := vc.ctl.Status(); st.Active {
		discord.RespondEphemeral(s, i, fmt.Sprintf("Already transcribing in <#%s>.", st.ChannelID))
		return
	}

	// Joining voice can take a moment.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := vc.ctl.Join(ctx, vs.ChannelID, userID); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return
	}
	discord.FollowUp(s, i, fmt.Sprintf("Transcribing <#%s>.", vs.ChannelID))
}

// handleLeave handles /voxscribe leave.
func (vc *VoiceCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !vc.perms.CanControl(i) {
		discord.RespondEphemeral(s, i, "You do not have permission to control transcription.")
		return
	}

	st := vc.ctl.Status()
	if !st.Active {
		discord.RespondEphemeral(s, i, "Not currently in a voice channel.")
		return
	}

	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := vc.ctl.Leave(ctx); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to leave: %v", err))
		return
	}

	duration := time.Since(st.StartedAt).Truncate(time.Second)
	discord.FollowUp(s, i, fmt.Sprintf(
		"Left <#%s>.\n**Duration:** %s\n**Utterances:** %d",
		st.ChannelID, duration, st.Transcribed,
	))
}

// handleStatus handles /voxscribe status.
func (vc *VoiceCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	st := vc.ctl.Status()
	if !st.Active {
		discord.RespondEphemeral(s, i, "Idle — not connected to a voice channel.")
		return
	}

	discord.RespondEphemeral(s, i, fmt.Sprintf(
		"Transcribing <#%s>.\n**Since:** %s\n**Speakers:** %d\n**Utterances:** %d",
		st.ChannelID,
		st.StartedAt.Format(time.RFC3339),
		st.Speakers,
		st.Transcribed,
	))
}

// interactionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
