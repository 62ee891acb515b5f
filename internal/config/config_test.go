package config

import (
	"strings"
	"testing"
	"time"
)

// minimalYAML is the smallest config that validates.
const minimalYAML = `
discord:
  token: "bot-token"
transcriber:
  backend: whisper
  base_url: "http://localhost:8080"
`

func TestLoadFromReader_Minimal(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Discord.Token != "bot-token" {
		t.Errorf("token = %q, want %q", cfg.Discord.Token, "bot-token")
	}
	if cfg.Transcriber.Backend != "whisper" {
		t.Errorf("backend = %q, want %q", cfg.Transcriber.Backend, "whisper")
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log level = %q, want %q", cfg.Server.LogLevel, LogInfo)
	}
	if cfg.Server.ObserveAddr != DefaultObserveAddr {
		t.Errorf("observe addr = %q, want %q", cfg.Server.ObserveAddr, DefaultObserveAddr)
	}
	if got := cfg.Segmenter.DurationThreshold.Std(); got != DefaultDurationThreshold {
		t.Errorf("duration_threshold = %v, want %v", got, DefaultDurationThreshold)
	}
	if got := cfg.Segmenter.SafetyNetThreshold.Std(); got != DefaultSafetyNetThreshold {
		t.Errorf("safety_net_threshold = %v, want %v", got, DefaultSafetyNetThreshold)
	}
	if got := cfg.Segmenter.SilenceTimeout.Std(); got != DefaultSilenceTimeout {
		t.Errorf("silence_timeout = %v, want %v", got, DefaultSilenceTimeout)
	}
	if got := cfg.Segmenter.MinSpeechDuration.Std(); got != DefaultMinSpeechDuration {
		t.Errorf("min_speech_duration = %v, want %v", got, DefaultMinSpeechDuration)
	}
	if cfg.Segmenter.QueueSize != DefaultQueueSize {
		t.Errorf("queue_size = %d, want %d", cfg.Segmenter.QueueSize, DefaultQueueSize)
	}
	if cfg.Segmenter.Carryover != 0 {
		t.Errorf("carryover = %v, want 0 (disabled by default)", cfg.Segmenter.Carryover.Std())
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	yaml := `
server:
  log_level: debug
  observe_addr: ":9999"
discord:
  token: "bot-token"
  guild_id: "123"
  text_channel_id: "456"
segmenter:
  duration_threshold: 4s
  safety_net_threshold: 10s
  silence_timeout: 1500ms
  min_speech_duration: 250ms
  carryover: 500ms
  queue_size: 32
audio:
  trim_silence: true
  trim_threshold: 0.05
transcriber:
  backend: whisper
  base_url: "http://localhost:8080"
  language: en
  fallbacks:
    - backend: openai
      api_key: "sk-test"
      model: whisper-1
corrector:
  vocabulary: ["Malakar", "Grimtooth"]
  llm:
    provider: ollama
    model: llama3
archive:
  postgres_dsn: "postgres://localhost/voxscribe"
  embeddings:
    enabled: true
    api_key: "sk-test"
    model: text-embedding-3-small
    dimensions: 1536
feed:
  enabled: true
  addr: ":8081"
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if got := cfg.Segmenter.DurationThreshold.Std(); got != 4*time.Second {
		t.Errorf("duration_threshold = %v, want 4s", got)
	}
	if got := cfg.Segmenter.SilenceTimeout.Std(); got != 1500*time.Millisecond {
		t.Errorf("silence_timeout = %v, want 1.5s", got)
	}
	if got := cfg.Segmenter.Carryover.Std(); got != 500*time.Millisecond {
		t.Errorf("carryover = %v, want 500ms", got)
	}
	if len(cfg.Transcriber.Fallbacks) != 1 || cfg.Transcriber.Fallbacks[0].Backend != "openai" {
		t.Errorf("fallbacks = %+v, want one openai entry", cfg.Transcriber.Fallbacks)
	}
	if cfg.Corrector.LLM == nil || cfg.Corrector.LLM.Provider != "ollama" {
		t.Errorf("corrector.llm = %+v, want ollama", cfg.Corrector.LLM)
	}
	if !cfg.Archive.Embeddings.Enabled || cfg.Archive.Embeddings.Dimensions != 1536 {
		t.Errorf("embeddings = %+v", cfg.Archive.Embeddings)
	}
	if !cfg.Feed.Enabled || cfg.Feed.Addr != ":8081" {
		t.Errorf("feed = %+v", cfg.Feed)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	yaml := minimalYAML + `
segmentor:
  silence_timeout: 2s
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("unknown top-level field accepted, want error")
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	yaml := `
discord:
  token: "bot-token"
transcriber:
  backend: whisper
segmenter:
  silence_timeout: "two seconds"
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("invalid duration accepted, want error")
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Discord.Token = "bot-token"
		cfg.Transcriber.Backend = "whisper"
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Discord.Token = "" }},
		{"missing backend", func(c *Config) { c.Transcriber.Backend = "" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
		{"safety net below duration", func(c *Config) {
			c.Segmenter.SafetyNetThreshold = Duration(3 * time.Second)
		}},
		{"safety net equals duration", func(c *Config) {
			c.Segmenter.SafetyNetThreshold = c.Segmenter.DurationThreshold
		}},
		{"zero silence timeout", func(c *Config) { c.Segmenter.SilenceTimeout = 0 }},
		{"negative min speech", func(c *Config) {
			c.Segmenter.MinSpeechDuration = Duration(-time.Second)
		}},
		{"negative carryover", func(c *Config) { c.Segmenter.Carryover = Duration(-time.Second) }},
		{"zero queue size", func(c *Config) { c.Segmenter.QueueSize = 0 }},
		{"trim threshold out of range", func(c *Config) { c.Audio.TrimThreshold = 1.5 }},
		{"fallback missing backend", func(c *Config) {
			c.Transcriber.Fallbacks = []BackendEntry{{Model: "whisper-1"}}
		}},
		{"llm block without provider", func(c *Config) {
			c.Corrector.LLM = &LLMConfig{Model: "llama3"}
		}},
		{"llm block without model", func(c *Config) {
			c.Corrector.LLM = &LLMConfig{Provider: "ollama"}
		}},
		{"embeddings without dsn", func(c *Config) {
			c.Archive.Embeddings = EmbeddingsConfig{Enabled: true, Dimensions: 1536}
		}},
		{"embeddings without dimensions", func(c *Config) {
			c.Archive.PostgresDSN = "postgres://localhost/voxscribe"
			c.Archive.Embeddings = EmbeddingsConfig{Enabled: true}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Validate passed, want error")
			}
		})
	}
}

func TestValidate_MinimalPasses(t *testing.T) {
	cfg := &Config{}
	cfg.Discord.Token = "bot-token"
	cfg.Transcriber.Backend = "whisper"
	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDuration_Marshal(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	v, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML: %v", err)
	}
	if v != "1.5s" {
		t.Errorf("marshaled = %v, want %q", v, "1.5s")
	}
}
