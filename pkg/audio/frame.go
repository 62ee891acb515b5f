package audio

import "time"

// Frame is a single slice of raw PCM audio for one speaker. Frames are the
// atomic unit of transport between the platform layer and the segmentation
// core: the platform decodes one voice packet into one Frame and hands it
// over; ownership of Data transfers with the Frame.
type Frame struct {
	// Data is interleaved little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz (48000 for Discord Opus decode output).
	SampleRate int

	// Channels is the interleaved channel count (2 for Discord).
	Channels int

	// Arrival is the wall-clock time the frame was received from the platform.
	Arrival time.Time
}

// Duration returns the playback length of the frame's PCM data.
func (f Frame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate, f.Channels)
}

// PCMDuration returns the playback length of n bytes of interleaved 16-bit
// PCM at the given sample rate and channel count. Returns 0 for invalid
// parameters.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
