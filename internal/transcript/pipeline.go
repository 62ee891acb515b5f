// Package transcript defines the correction pipeline that fixes
// speech-to-text errors in server-specific vocabulary.
//
// Whisper-style models are strong on ordinary English but routinely mangle
// the proper nouns that matter most in a voice channel: member nicknames,
// channel names, game terms and in-jokes. The [Pipeline] applies a two-stage
// correction strategy:
//
//  1. Phonetic matching ([PhoneticMatcher]): fast, in-process alignment of
//     misheard words against the known vocabulary based on pronunciation
//     similarity. No network calls.
//
//  2. LLM review ([llmcorrect.Corrector]): a language model double-checks the
//     utterance against the vocabulary list and fixes misspellings the
//     phonetic stage could not resolve. Runs off the audio path, so its
//     latency does not delay segmentation.
//
// Each [Correction] records which stage produced it and its confidence, so
// callers can display or audit individual substitutions.
//
// Implementations of both interfaces must be safe for concurrent use.
package transcript

import "context"

// Correction is a single word-level substitution made by the pipeline.
type Correction struct {
	// Original is the word (or phrase) as produced by the transcriber.
	Original string

	// Corrected is the canonical vocabulary term that replaced it.
	Corrected string

	// Confidence is the pipeline's confidence in this substitution (0.0-1.0).
	Confidence float64

	// Method names the stage that produced the substitution:
	// "phonetic" or "llm".
	Method string
}

// Corrected is the output of a [Pipeline.Correct] call. It pairs the raw
// transcriber output with the corrected text and an itemised record of every
// substitution applied.
type Corrected struct {
	// Original is the text exactly as the transcriber produced it.
	Original string

	// Text is the corrected utterance text.
	Text string

	// Corrections lists the substitutions applied, in text order. An empty
	// (non-nil) slice means the text needed no changes.
	Corrections []Correction
}

// Pipeline corrects server-specific vocabulary in transcribed utterances.
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct processes text against the given vocabulary and returns the
	// corrected utterance with an itemised substitution record.
	//
	// vocab is the list of canonical terms the pipeline should recognise:
	// member display names, channel names, and any configured custom terms.
	//
	// When no corrections are needed, Text equals text and Corrections is an
	// empty (non-nil) slice.
	Correct(ctx context.Context, text string, vocab []string) (*Corrected, error)
}

// PhoneticMatcher resolves a word or short phrase to a known vocabulary term
// based on pronunciation similarity. It is the first correction stage and
// must be cheap enough to run on every utterance.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the vocabulary term most phonetically similar
	// to phrase.
	//
	// Return values:
	//   corrected  — the best-matching term from vocab.
	//   confidence — similarity score in [0.0, 1.0].
	//   matched    — true when a sufficiently similar term was found.
	//
	// When matched is false, corrected equals phrase unchanged and
	// confidence is 0. Implementations define their own notion of
	// "sufficiently similar".
	Match(phrase string, vocab []string) (corrected string, confidence float64, matched bool)
}
