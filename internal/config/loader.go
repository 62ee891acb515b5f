package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Segmentation defaults matching the thresholds the pipeline was tuned
// with: finalize at 5 s of audio, hard cap at 8 s of age, flush after
// 2 s of silence, drop anything under 300 ms.
const (
	DefaultDurationThreshold  = 5 * time.Second
	DefaultSafetyNetThreshold = 8 * time.Second
	DefaultSilenceTimeout     = 2 * time.Second
	DefaultMinSpeechDuration  = 300 * time.Millisecond
	DefaultQueueSize          = 64
	DefaultTrimThreshold      = 0.02
	DefaultObserveAddr        = ":9090"
	DefaultFeedAddr           = ":8081"
)

// ValidBackendNames lists known backend names per kind. [Validate] warns
// about unrecognised names without rejecting them, so third-party
// registrations keep working.
var ValidBackendNames = map[string][]string{
	"transcriber": {"whisper", "whisper-native", "openai"},
	"llm":         {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings":  {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown YAML fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields that have sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ObserveAddr == "" {
		cfg.Server.ObserveAddr = DefaultObserveAddr
	}
	if cfg.Segmenter.DurationThreshold == 0 {
		cfg.Segmenter.DurationThreshold = Duration(DefaultDurationThreshold)
	}
	if cfg.Segmenter.SafetyNetThreshold == 0 {
		cfg.Segmenter.SafetyNetThreshold = Duration(DefaultSafetyNetThreshold)
	}
	if cfg.Segmenter.SilenceTimeout == 0 {
		cfg.Segmenter.SilenceTimeout = Duration(DefaultSilenceTimeout)
	}
	if cfg.Segmenter.MinSpeechDuration == 0 {
		cfg.Segmenter.MinSpeechDuration = Duration(DefaultMinSpeechDuration)
	}
	if cfg.Segmenter.QueueSize == 0 {
		cfg.Segmenter.QueueSize = DefaultQueueSize
	}
	if cfg.Audio.TrimSilence && cfg.Audio.TrimThreshold == 0 {
		cfg.Audio.TrimThreshold = DefaultTrimThreshold
	}
	if cfg.Feed.Enabled && cfg.Feed.Addr == "" {
		cfg.Feed.Addr = DefaultFeedAddr
	}
	if cfg.Archive.Embeddings.Enabled && cfg.Archive.Embeddings.Dimensions == 0 {
		cfg.Archive.Embeddings.Dimensions = 1536
	}
}

// Validate checks that cfg contains a coherent set of values. It returns
// a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}

	// Segmenter threshold ordering. The safety net exists to catch
	// utterances the duration check missed, so it must sit strictly above.
	seg := cfg.Segmenter
	if seg.DurationThreshold <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.duration_threshold %v must be positive", seg.DurationThreshold.Std()))
	}
	if seg.SafetyNetThreshold <= seg.DurationThreshold {
		errs = append(errs, fmt.Errorf("segmenter.safety_net_threshold %v must exceed duration_threshold %v",
			seg.SafetyNetThreshold.Std(), seg.DurationThreshold.Std()))
	}
	if seg.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_timeout %v must be positive", seg.SilenceTimeout.Std()))
	}
	if seg.MinSpeechDuration < 0 {
		errs = append(errs, fmt.Errorf("segmenter.min_speech_duration %v must not be negative", seg.MinSpeechDuration.Std()))
	}
	if seg.Carryover < 0 {
		errs = append(errs, fmt.Errorf("segmenter.carryover %v must not be negative", seg.Carryover.Std()))
	}
	if seg.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.queue_size %d must be positive", seg.QueueSize))
	}

	if t := cfg.Audio.TrimThreshold; t < 0 || t >= 1 {
		errs = append(errs, fmt.Errorf("audio.trim_threshold %.3f is out of range [0, 1)", t))
	}

	if cfg.Transcriber.Backend == "" {
		errs = append(errs, errors.New("transcriber.backend is required"))
	}
	warnUnknownBackend("transcriber", cfg.Transcriber.Backend)
	for i, fb := range cfg.Transcriber.Fallbacks {
		if fb.Backend == "" {
			errs = append(errs, fmt.Errorf("transcriber.fallbacks[%d].backend is required", i))
		}
		warnUnknownBackend("transcriber", fb.Backend)
	}

	if llmCfg := cfg.Corrector.LLM; llmCfg != nil {
		if llmCfg.Provider == "" {
			errs = append(errs, errors.New("corrector.llm.provider is required when the llm block is set"))
		}
		if llmCfg.Model == "" {
			errs = append(errs, errors.New("corrector.llm.model is required when the llm block is set"))
		}
		warnUnknownBackend("llm", llmCfg.Provider)
	}
	if len(cfg.Corrector.Vocabulary) == 0 && cfg.Corrector.LLM != nil {
		slog.Warn("corrector.llm is configured but corrector.vocabulary is empty; the review stage will be skipped")
	}

	emb := cfg.Archive.Embeddings
	if emb.Enabled {
		if cfg.Archive.PostgresDSN == "" {
			errs = append(errs, errors.New("archive.embeddings.enabled requires archive.postgres_dsn"))
		}
		if emb.Dimensions <= 0 {
			errs = append(errs, fmt.Errorf("archive.embeddings.dimensions %d must be positive", emb.Dimensions))
		}
		warnUnknownBackend("embeddings", "openai")
	}

	return errors.Join(errs...)
}

// warnUnknownBackend logs a warning if name is non-empty and not found in
// the [ValidBackendNames] list for the given kind.
func warnUnknownBackend(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidBackendNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name — may be a typo or third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
