package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/voxscribe/voxscribe/internal/archive"
	"github.com/voxscribe/voxscribe/internal/discord"
)

// searchLimit caps the number of results shown in one embed.
const searchLimit = 10

// Searcher is the slice of the archive store the /search command uses.
type Searcher interface {
	SearchText(ctx context.Context, query string, opts archive.SearchOpts) ([]archive.Entry, error)
	SearchSemantic(ctx context.Context, query string, topK int, opts archive.SearchOpts) ([]archive.Result, error)
}

// SearchCommands holds the dependencies for the /search slash command.
type SearchCommands struct {
	store Searcher
}

// NewSearchCommands creates a SearchCommands and registers its handler
// with the bot's router.
func NewSearchCommands(bot *discord.Bot, store Searcher) *SearchCommands {
	sc := &SearchCommands{store: store}
	sc.Register(bot.Router())
	return sc
}

// Register registers the /search command with the router.
func (sc *SearchCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("search", sc.Definition(), sc.handleSearch)
}

// Definition returns the ApplicationCommand definition for Discord.
func (sc *SearchCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "search",
		Description: "Search archived transcripts",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Words to search for",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "speaker",
				Description: "Only show utterances from this member",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "semantic",
				Description: "Search by meaning instead of exact words",
			},
		},
	}
}

// handleSearch handles /search.
func (sc *SearchCommands) handleSearch(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query, speakerID, semantic := parseSearchOptions(i.ApplicationCommandData())
	if strings.TrimSpace(query) == "" {
		discord.RespondEphemeral(s, i, "Please provide a search query.")
		return
	}

	opts := archive.SearchOpts{
		GuildID:   i.GuildID,
		SpeakerID: speakerID,
		Limit:     searchLimit,
	}

	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	entries, err := sc.search(ctx, query, semantic, opts)
	if err != nil {
		if errors.Is(err, archive.ErrNoEmbedder) {
			discord.FollowUp(s, i, "Semantic search is not enabled on this deployment.")
			return
		}
		discord.FollowUp(s, i, fmt.Sprintf("Search failed: %v", err))
		return
	}
	if len(entries) == 0 {
		discord.FollowUp(s, i, fmt.Sprintf("No transcripts matching %q.", query))
		return
	}

	discord.FollowUpEmbed(s, i, searchEmbed(query, entries))
}

// search runs the text or semantic query and returns plain entries.
func (sc *SearchCommands) search(ctx context.Context, query string, semantic bool, opts archive.SearchOpts) ([]archive.Entry, error) {
	if !semantic {
		return sc.store.SearchText(ctx, query, opts)
	}

	results, err := sc.store.SearchSemantic(ctx, query, searchLimit, opts)
	if err != nil {
		return nil, err
	}
	entries := make([]archive.Entry, len(results))
	for n, r := range results {
		entries[n] = r.Entry
	}
	return entries, nil
}

// parseSearchOptions extracts the command options.
func parseSearchOptions(data discordgo.ApplicationCommandInteractionData) (query, speakerID string, semantic bool) {
	for _, opt := range data.Options {
		switch opt.Name {
		case "query":
			query = opt.StringValue()
		case "speaker":
			speakerID = opt.UserValue(nil).ID
		case "semantic":
			semantic = opt.BoolValue()
		}
	}
	return query, speakerID, semantic
}

// searchEmbed renders matched entries as one embed.
func searchEmbed(query string, entries []archive.Entry) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(entries))
	for _, e := range entries {
		name := e.SpeakerName
		if name == "" {
			name = e.SpeakerID
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s — %s", name, e.StartedAt.Format("2006-01-02 15:04")),
			Value: truncateField(e.Text),
		})
	}
	return &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("Transcripts matching %q", query),
		Fields: fields,
	}
}

// truncateField keeps an embed field under Discord's 1024-char limit.
func truncateField(text string) string {
	const limit = 1024
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
