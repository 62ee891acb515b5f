package config

import (
	"slices"
	"testing"
	"time"
)

func diffBase() *Config {
	cfg := &Config{}
	cfg.Discord.Token = "bot-token"
	cfg.Transcriber.Backend = "whisper"
	cfg.Corrector.Vocabulary = []string{"Malakar", "Grimtooth"}
	applyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	old, new := diffBase(), diffBase()

	d := Diff(old, new)
	if d.Changed() {
		t.Errorf("diff of identical configs reports changes: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	old, new := diffBase(), diffBase()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change flagged as restart-required: %v", d.RestartRequired)
	}
}

func TestDiff_Vocabulary(t *testing.T) {
	old, new := diffBase(), diffBase()
	new.Corrector.Vocabulary = []string{"Malakar", "Grimtooth", "Crimson Hollow"}

	d := Diff(old, new)
	if !d.VocabularyChanged {
		t.Fatalf("diff = %+v, want vocabulary change", d)
	}
	if !slices.Equal(d.NewVocabulary, new.Corrector.Vocabulary) {
		t.Errorf("NewVocabulary = %v", d.NewVocabulary)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("vocabulary change flagged as restart-required: %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		section string
	}{
		{"discord token", func(c *Config) { c.Discord.Token = "other" }, "discord"},
		{"segmenter threshold", func(c *Config) {
			c.Segmenter.DurationThreshold = Duration(6 * time.Second)
		}, "segmenter"},
		{"audio trim", func(c *Config) { c.Audio.TrimSilence = true }, "audio"},
		{"transcriber backend", func(c *Config) { c.Transcriber.Backend = "openai" }, "transcriber"},
		{"transcriber fallbacks", func(c *Config) {
			c.Transcriber.Fallbacks = []BackendEntry{{Backend: "openai"}}
		}, "transcriber"},
		{"llm added", func(c *Config) {
			c.Corrector.LLM = &LLMConfig{Provider: "ollama", Model: "llama3"}
		}, "corrector.llm"},
		{"archive dsn", func(c *Config) { c.Archive.PostgresDSN = "postgres://x" }, "archive"},
		{"feed enabled", func(c *Config) { c.Feed.Enabled = true }, "feed"},
		{"observe addr", func(c *Config) { c.Server.ObserveAddr = ":7070" }, "server.observe_addr"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			old, new := diffBase(), diffBase()
			tc.mutate(new)

			d := Diff(old, new)
			if !slices.Contains(d.RestartRequired, tc.section) {
				t.Errorf("RestartRequired = %v, want %q listed", d.RestartRequired, tc.section)
			}
		})
	}
}

func TestDiff_LLMBothNil(t *testing.T) {
	old, new := diffBase(), diffBase()
	old.Corrector.LLM = nil
	new.Corrector.LLM = nil

	if d := Diff(old, new); slices.Contains(d.RestartRequired, "corrector.llm") {
		t.Errorf("nil llm blocks reported as changed: %v", d.RestartRequired)
	}
}
