// Package wav encodes and decodes 16-bit mono PCM WAV files. Tracker
// samples come out at their native 8363 Hz C-4 rate; pitch shifting is
// the sampler's job, not the file's.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultRate is the Amiga/FastTracker C-4 sample rate.
const DefaultRate = 8363

var ErrNotWAV = errors.New("not a RIFF/WAVE file")

const headerSize = 44

// Encode renders frames as a canonical 44-byte-header WAV file,
// 16-bit signed little-endian mono.
func Encode(frames []int16, rate int) []byte {
	dataSize := len(frames) * 2
	out := make([]byte, headerSize+dataSize)

	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")

	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], 1) // mono
	binary.LittleEndian.PutUint32(out[24:], uint32(rate))
	binary.LittleEndian.PutUint32(out[28:], uint32(rate*2)) // byte rate
	binary.LittleEndian.PutUint16(out[32:], 2)              // block align
	binary.LittleEndian.PutUint16(out[34:], 16)             // bits per sample

	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, f := range frames {
		binary.LittleEndian.PutUint16(out[headerSize+i*2:], uint16(f))
	}
	return out
}

// Decode reads back a file produced by Encode. It accepts any PCM WAV
// with a canonical layout and returns the frames and sample rate.
func Decode(data []byte) ([]int16, int, error) {
	if len(data) < headerSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}
	if string(data[12:16]) != "fmt " {
		return nil, 0, fmt.Errorf("unexpected chunk %q, want fmt", data[12:16])
	}
	format := binary.LittleEndian.Uint16(data[20:])
	channels := binary.LittleEndian.Uint16(data[22:])
	rate := binary.LittleEndian.Uint32(data[24:])
	bits := binary.LittleEndian.Uint16(data[34:])
	if format != 1 || channels != 1 || bits != 16 {
		return nil, 0, fmt.Errorf("unsupported format: pcm=%d channels=%d bits=%d", format, channels, bits)
	}
	if string(data[36:40]) != "data" {
		return nil, 0, fmt.Errorf("unexpected chunk %q, want data", data[36:40])
	}
	dataSize := int(binary.LittleEndian.Uint32(data[40:]))
	if dataSize > len(data)-headerSize {
		dataSize = len(data) - headerSize
	}
	frames := make([]int16, dataSize/2)
	for i := range frames {
		frames[i] = int16(binary.LittleEndian.Uint16(data[headerSize+i*2:]))
	}
	return frames, int(rate), nil
}
