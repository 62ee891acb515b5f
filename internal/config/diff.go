package config

import "slices"

// ConfigDiff describes what changed between two configs. Log level and
// corrector vocabulary can be applied to a running bot; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VocabularyChanged bool
	NewVocabulary     []string

	// RestartRequired lists config sections whose changes cannot be
	// hot-applied. Empty when everything that changed was reloadable.
	RestartRequired []string
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VocabularyChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Corrector.Vocabulary, new.Corrector.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Corrector.Vocabulary)
	}

	if old.Server.ObserveAddr != new.Server.ObserveAddr {
		d.RestartRequired = append(d.RestartRequired, "server.observe_addr")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.Segmenter != new.Segmenter {
		d.RestartRequired = append(d.RestartRequired, "segmenter")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !transcriberEqual(old.Transcriber, new.Transcriber) {
		d.RestartRequired = append(d.RestartRequired, "transcriber")
	}
	if !llmEqual(old.Corrector.LLM, new.Corrector.LLM) {
		d.RestartRequired = append(d.RestartRequired, "corrector.llm")
	}
	if old.Archive != new.Archive {
		d.RestartRequired = append(d.RestartRequired, "archive")
	}
	if old.Feed != new.Feed {
		d.RestartRequired = append(d.RestartRequired, "feed")
	}

	return d
}

func transcriberEqual(a, b TranscriberConfig) bool {
	return a.BackendEntry == b.BackendEntry && slices.Equal(a.Fallbacks, b.Fallbacks)
}

func llmEqual(a, b *LLMConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
