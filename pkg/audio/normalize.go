package audio

import (
	"errors"
	"fmt"
)

// ErrTooShort is returned by [Normalizer.Normalize] when the input carries
// fewer samples than the minimum viable segment. Callers should skip
// emission rather than hand a degenerate container downstream.
var ErrTooShort = errors.New("audio: segment too short to normalize")

const (
	// minViableMs is the minimum mono duration, after resampling, that
	// Normalize will wrap in a container. Anything shorter cannot carry a
	// word and only produces transcription artifacts.
	minViableMs = 20

	// trimWindowMs is the analysis window used by the silence trimmer.
	trimWindowMs = 10

	// minKeepFraction bounds how much the trimmer may remove: at least this
	// fraction of the samples always survives, otherwise trimming is
	// skipped entirely.
	minKeepFraction = 0.25
)

// NormalizerConfig describes the source format delivered by the platform and
// the target format required by the transcription backend.
type NormalizerConfig struct {
	// SourceRate is the platform sample rate in Hz. Default 48000.
	SourceRate int

	// SourceChannels is the platform channel count. Default 2.
	SourceChannels int

	// TargetRate is the output sample rate in Hz. Default 16000.
	TargetRate int

	// TrimSilence enables trimming of leading/trailing near-silence before
	// the container is written.
	TrimSilence bool

	// TrimThreshold is the energy floor for the trimmer, expressed as a
	// fraction of the segment's peak amplitude. Default 0.02.
	TrimThreshold float64
}

// Normalizer converts the raw multi-channel PCM of a finished speech segment
// into the mono, fixed-rate WAV payload consumed by transcription backends.
//
// Normalize is a pure function of its input: no state is carried between
// calls and identical input bytes always yield byte-identical output.
// A single Normalizer is safe for concurrent use.
type Normalizer struct {
	cfg NormalizerConfig
}

// NewNormalizer creates a Normalizer, applying defaults for any zero-valued
// config field. Returns an error for nonsensical rates or channel counts.
func NewNormalizer(cfg NormalizerConfig) (*Normalizer, error) {
	if cfg.SourceRate == 0 {
		cfg.SourceRate = 48000
	}
	if cfg.SourceChannels == 0 {
		cfg.SourceChannels = 2
	}
	if cfg.TargetRate == 0 {
		cfg.TargetRate = 16000
	}
	if cfg.TrimThreshold == 0 {
		cfg.TrimThreshold = 0.02
	}
	if cfg.SourceRate < 0 || cfg.TargetRate < 0 || cfg.SourceChannels < 0 {
		return nil, fmt.Errorf("audio: invalid normalizer config: rate %d→%d, %d channels",
			cfg.SourceRate, cfg.TargetRate, cfg.SourceChannels)
	}
	if cfg.TrimThreshold < 0 || cfg.TrimThreshold >= 1 {
		return nil, fmt.Errorf("audio: trim threshold %v outside [0, 1)", cfg.TrimThreshold)
	}
	return &Normalizer{cfg: cfg}, nil
}

// TargetRate returns the configured output sample rate.
func (n *Normalizer) TargetRate() int { return n.cfg.TargetRate }

// Normalize converts raw source-format PCM into a mono 16-bit WAV payload at
// the target rate:
//
//  1. Downmix all source channels to mono by per-frame averaging.
//  2. Resample to the target rate with linear interpolation.
//  3. Optionally trim leading/trailing near-silence (bounded; never
//     removes more than 1-minKeepFraction of the samples, never yields an
//     empty result — trimming is skipped when it would).
//  4. Wrap the samples in a RIFF/WAV container.
//
// Returns [ErrTooShort] if the converted audio is below the minimum viable
// duration.
func (n *Normalizer) Normalize(raw []byte) ([]byte, error) {
	mono := DownmixMono16(raw, n.cfg.SourceChannels)
	pcm := ResampleMono16(mono, n.cfg.SourceRate, n.cfg.TargetRate)

	minSamples := n.cfg.TargetRate * minViableMs / 1000
	if len(pcm)/2 < minSamples {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrTooShort, len(pcm)/2, minSamples)
	}

	if n.cfg.TrimSilence {
		pcm = trimSilence(pcm, n.cfg.TargetRate, n.cfg.TrimThreshold)
	}

	return EncodeWAV(pcm, n.cfg.TargetRate, 1), nil
}

// trimSilence removes leading and trailing near-silent audio from 16-bit
// mono PCM. The energy floor is threshold × peak amplitude, evaluated over
// fixed windows; one window of padding is kept before the first speech
// window and two after the last so word onsets and decays survive. The
// original slice is returned unchanged when the whole segment is below the
// floor, when trimming would remove more than 1-minKeepFraction of the
// samples, or when the result would be shorter than one window.
func trimSilence(pcm []byte, rate int, threshold float64) []byte {
	samples := len(pcm) / 2
	window := rate * trimWindowMs / 1000
	if window <= 0 || samples < 2*window {
		return pcm
	}

	var peak int32
	for i := range samples {
		v := int32(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	floor := float64(peak) * threshold
	if floor <= 0 {
		return pcm
	}

	meanAbs := func(start int) float64 {
		var sum int64
		for i := start; i < start+window; i++ {
			v := int64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
			if v < 0 {
				v = -v
			}
			sum += v
		}
		return float64(sum) / float64(window)
	}

	start := 0
	for i := 0; i+window <= samples; i += window {
		if meanAbs(i) > floor {
			start = max(0, i-window)
			break
		}
	}

	end := samples
	for i := samples - window; i >= 0; i -= window {
		if meanAbs(i) > floor {
			end = min(samples, i+2*window)
			break
		}
	}

	if end-start < window {
		return pcm
	}
	if float64(end-start) < float64(samples)*minKeepFraction {
		return pcm
	}
	return pcm[start*2 : end*2]
}
