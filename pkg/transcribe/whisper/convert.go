package whisper

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavToFloat32 extracts the PCM payload of a 16-bit mono RIFF/WAV file and
// converts it to float32 samples normalised to [-1.0, 1.0], the input
// format the whisper.cpp bindings expect.
func wavToFloat32(wav []byte) ([]float32, error) {
	pcm, err := wavData(wav)
	if err != nil {
		return nil, err
	}
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples, nil
}

// wavData locates the data chunk of a RIFF/WAV container and returns the
// raw PCM bytes. Only 16-bit PCM is accepted.
func wavData(wav []byte) ([]byte, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("whisper: not a RIFF/WAV payload")
	}

	// Walk the chunk list: fmt must declare PCM/16-bit, data carries samples.
	pos := 12
	var sawFmt bool
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(wav) {
			size = len(wav) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errors.New("whisper: truncated fmt chunk")
			}
			format := binary.LittleEndian.Uint16(wav[body : body+2])
			bits := binary.LittleEndian.Uint16(wav[body+14 : body+16])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("whisper: unsupported WAV encoding (format %d, %d bits)", format, bits)
			}
			sawFmt = true
		case "data":
			if !sawFmt {
				return nil, errors.New("whisper: data chunk before fmt chunk")
			}
			return wav[body : body+size], nil
		}

		// Chunks are word-aligned.
		pos = body + size + size%2
	}
	return nil, errors.New("whisper: no data chunk found")
}
