package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/voxscribe/voxscribe/internal/archive"
)

// fakeSearcher scripts archive search results.
type fakeSearcher struct {
	textEntries     []archive.Entry
	semanticResults []archive.Result
	err             error

	textQueries     []string
	semanticQueries []string
}

func (f *fakeSearcher) SearchText(_ context.Context, query string, _ archive.SearchOpts) ([]archive.Entry, error) {
	f.textQueries = append(f.textQueries, query)
	return f.textEntries, f.err
}

func (f *fakeSearcher) SearchSemantic(_ context.Context, query string, _ int, _ archive.SearchOpts) ([]archive.Result, error) {
	f.semanticQueries = append(f.semanticQueries, query)
	return f.semanticResults, f.err
}

func TestSearchCommands_Definition(t *testing.T) {
	t.Parallel()

	sc := &SearchCommands{store: &fakeSearcher{}}
	def := sc.Definition()

	if def.Name != "search" {
		t.Errorf("name = %q, want %q", def.Name, "search")
	}
	if len(def.Options) != 3 {
		t.Fatalf("got %d options, want 3", len(def.Options))
	}
	if def.Options[0].Name != "query" || !def.Options[0].Required {
		t.Errorf("first option = %+v, want required query", def.Options[0])
	}
}

func TestSearch_TextPath(t *testing.T) {
	t.Parallel()

	store := &fakeSearcher{textEntries: []archive.Entry{{Text: "the dungeon run"}}}
	sc := &SearchCommands{store: store}

	entries, err := sc.search(context.Background(), "dungeon", false, archive.SearchOpts{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "the dungeon run" {
		t.Errorf("entries = %+v", entries)
	}
	if len(store.textQueries) != 1 || len(store.semanticQueries) != 0 {
		t.Errorf("queries routed wrong: text=%v semantic=%v", store.textQueries, store.semanticQueries)
	}
}

func TestSearch_SemanticPath(t *testing.T) {
	t.Parallel()

	store := &fakeSearcher{semanticResults: []archive.Result{
		{Entry: archive.Entry{Text: "boss wipe"}, Distance: 0.1},
		{Entry: archive.Entry{Text: "ranked games"}, Distance: 0.4},
	}}
	sc := &SearchCommands{store: store}

	entries, err := sc.search(context.Background(), "raid failure", true, archive.SearchOpts{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(entries) != 2 || entries[0].Text != "boss wipe" {
		t.Errorf("entries = %+v", entries)
	}
	if len(store.semanticQueries) != 1 || len(store.textQueries) != 0 {
		t.Errorf("queries routed wrong: text=%v semantic=%v", store.textQueries, store.semanticQueries)
	}
}

func TestParseSearchOptions(t *testing.T) {
	t.Parallel()

	data := discordgo.ApplicationCommandInteractionData{
		Name: "search",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "dungeon boss"},
			{Name: "speaker", Type: discordgo.ApplicationCommandOptionUser, Value: "user-1"},
			{Name: "semantic", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
		},
	}

	query, speakerID, semantic := parseSearchOptions(data)
	if query != "dungeon boss" {
		t.Errorf("query = %q", query)
	}
	if speakerID != "user-1" {
		t.Errorf("speakerID = %q", speakerID)
	}
	if !semantic {
		t.Error("semantic = false, want true")
	}
}

func TestSearchEmbed(t *testing.T) {
	t.Parallel()

	entries := []archive.Entry{
		{SpeakerName: "Alice", Text: "we wiped again", StartedAt: time.Date(2026, 8, 1, 20, 30, 0, 0, time.UTC)},
		{SpeakerID: "user-2", Text: "anonymous entry", StartedAt: time.Date(2026, 8, 2, 21, 0, 0, 0, time.UTC)},
	}

	embed := searchEmbed("wipe", entries)
	if len(embed.Fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(embed.Fields))
	}
	if !strings.HasPrefix(embed.Fields[0].Name, "Alice — ") {
		t.Errorf("field name = %q", embed.Fields[0].Name)
	}
	// Falls back to the speaker ID when the display name is unknown.
	if !strings.HasPrefix(embed.Fields[1].Name, "user-2 — ") {
		t.Errorf("field name = %q", embed.Fields[1].Name)
	}
}

func TestTruncateField(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 2000)
	got := truncateField(long)
	if runes := []rune(got); len(runes) != 1024 {
		t.Errorf("length = %d runes, want 1024", len(runes))
	}
	if short := truncateField("short"); short != "short" {
		t.Errorf("short text modified: %q", short)
	}
}
