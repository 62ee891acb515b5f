package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/voxscribe/voxscribe/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestDownmixMono16_Stereo(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	mono := audio.DownmixMono16(stereo, 2)
	got := bytesToSamples(mono)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownmixMono16_MonoPassthrough(t *testing.T) {
	mono := samplesToBytes([]int16{1, 2, 3})
	out := audio.DownmixMono16(mono, 1)
	if len(out) != len(mono) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(mono))
	}
}

func TestDownmixMono16_FourChannels(t *testing.T) {
	// One quad frame: average of 100, 200, 300, 400 = 250.
	quad := samplesToBytes([]int16{100, 200, 300, 400})
	mono := audio.DownmixMono16(quad, 4)
	got := bytesToSamples(mono)
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != 250 {
		t.Errorf("got %d, want 250", got[0])
	}
}

func TestDownmixMono16_Clamping(t *testing.T) {
	// Two max-positive samples must clamp to 32767, not overflow.
	stereo := samplesToBytes([]int16{32767, 32767})
	mono := audio.DownmixMono16(stereo, 2)
	got := bytesToSamples(mono)
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != 32767 {
		t.Errorf("got %d, want 32767", got[0])
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3).
	pcm := samplesToBytes([]int16{300, 300, 300, 600, 600, 600})
	out := audio.ResampleMono16(pcm, 48000, 16000)
	got := bytesToSamples(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0] != 300 {
		t.Errorf("first sample: got %d, want 300", got[0])
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x).
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Deterministic(t *testing.T) {
	pcm := samplesToBytes([]int16{7, -13, 2500, -30000, 12, 0, 44, 91})
	a := audio.ResampleMono16(pcm, 48000, 16000)
	b := audio.ResampleMono16(pcm, 48000, 16000)
	if len(a) != len(b) {
		t.Fatalf("length mismatch between runs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("byte %d differs between runs", i)
		}
	}
}

func TestPCMDuration(t *testing.T) {
	// 1 second of 48kHz stereo = 48000 * 2 channels * 2 bytes.
	d := audio.PCMDuration(48000*2*2, 48000, 2)
	if d.Seconds() != 1.0 {
		t.Errorf("got %v, want 1s", d)
	}
	if audio.PCMDuration(100, 0, 2) != 0 {
		t.Error("expected 0 for invalid sample rate")
	}
}
