// Package config provides the configuration schema, loader, backend
// registry and file watcher for the voxscribe transcription bot.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a [time.Duration] that unmarshals from YAML strings like
// "5s" or "300ms".
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a [time.Duration].
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration for voxscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Discord     DiscordConfig     `yaml:"discord"`
	Segmenter   SegmenterConfig   `yaml:"segmenter"`
	Audio       AudioConfig       `yaml:"audio"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Corrector   CorrectorConfig   `yaml:"corrector"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Feed        FeedConfig        `yaml:"feed"`
}

// ServerConfig holds logging and observability settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ObserveAddr is the TCP address for the metrics/health HTTP server
	// (e.g. ":9090").
	ObserveAddr string `yaml:"observe_addr"`
}

// DiscordConfig identifies the bot account and where it operates.
type DiscordConfig struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// GuildID restricts slash-command registration to one guild. Empty
	// registers the commands globally.
	GuildID string `yaml:"guild_id"`

	// TextChannelID is the channel transcripts are posted to. Empty
	// disables posting.
	TextChannelID string `yaml:"text_channel_id"`

	// ControlRoleID restricts /voxscribe join and leave to members with
	// this role. Empty allows everyone.
	ControlRoleID string `yaml:"control_role_id"`
}

// SegmenterConfig holds the utterance segmentation thresholds.
type SegmenterConfig struct {
	// DurationThreshold finalizes an utterance once this much audio has
	// accumulated.
	DurationThreshold Duration `yaml:"duration_threshold"`

	// SafetyNetThreshold is the hard cap on wall-clock utterance age. It
	// must exceed DurationThreshold.
	SafetyNetThreshold Duration `yaml:"safety_net_threshold"`

	// SilenceTimeout finalizes an utterance after this long without a
	// frame from the speaker.
	SilenceTimeout Duration `yaml:"silence_timeout"`

	// MinSpeechDuration drops utterances shorter than this.
	MinSpeechDuration Duration `yaml:"min_speech_duration"`

	// Carryover keeps this much trailing audio as the seed of the next
	// utterance after a duration finalize. Zero disables carryover.
	Carryover Duration `yaml:"carryover"`

	// QueueSize bounds the per-speaker frame queue.
	QueueSize int `yaml:"queue_size"`
}

// AudioConfig controls normalization of finalized utterance audio.
type AudioConfig struct {
	// TrimSilence removes leading and trailing silence before transcription.
	TrimSilence bool `yaml:"trim_silence"`

	// TrimThreshold is the amplitude fraction of peak below which samples
	// count as silence, in [0, 1).
	TrimThreshold float64 `yaml:"trim_threshold"`
}

// BackendEntry configures one transcription backend.
type BackendEntry struct {
	// Backend selects the implementation ("whisper", "whisper-native",
	// "openai").
	Backend string `yaml:"backend"`

	// BaseURL is the server endpoint for HTTP backends.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted backends.
	APIKey string `yaml:"api_key"`

	// Model selects the model. For whisper-native this is the ggml model
	// file path.
	Model string `yaml:"model"`

	// Language forces a transcription language (BCP-47). Empty lets the
	// backend detect it.
	Language string `yaml:"language"`
}

// TranscriberConfig is the primary backend plus its ordered fallbacks.
type TranscriberConfig struct {
	BackendEntry `yaml:",inline"`

	// Fallbacks are tried in order when the primary backend fails.
	Fallbacks []BackendEntry `yaml:"fallbacks"`
}

// CorrectorConfig controls post-transcription vocabulary correction.
type CorrectorConfig struct {
	// Vocabulary lists proper nouns the phonetic corrector aligns
	// transcripts against (member names, game terms, channel names).
	Vocabulary []string `yaml:"vocabulary"`

	// LLM enables the review stage. Nil disables it.
	LLM *LLMConfig `yaml:"llm"`
}

// LLMConfig selects the chat-completion backend for transcript review.
type LLMConfig struct {
	// Provider names the backend ("openai", "anthropic", "ollama", ...).
	Provider string `yaml:"provider"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider if required.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`
}

// ArchiveConfig controls transcript persistence.
type ArchiveConfig struct {
	// PostgresDSN is the archive database connection string. Empty
	// disables the archive.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Embeddings enables semantic search over archived transcripts.
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// EmbeddingsConfig selects the embedding model for semantic search.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// Dimensions is the vector dimension baked into the archive schema.
	// Must match the model.
	Dimensions int `yaml:"dimensions"`
}

// FeedConfig controls the live transcript WebSocket feed.
type FeedConfig struct {
	Enabled bool `yaml:"enabled"`

	// Addr is the TCP address the feed listens on (e.g. ":8081").
	Addr string `yaml:"addr"`
}
