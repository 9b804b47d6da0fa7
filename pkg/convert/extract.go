package convert

import (
	"fmt"
	"strings"

	"github.com/xm2live/xm2live/pkg/module"
	"github.com/xm2live/xm2live/pkg/wav"
)

// SampleFile is one extracted sample rendered as a complete WAV byte
// buffer, plus the playback metadata the project builder needs. The
// core never touches the filesystem; persisting these is the caller's
// job.
type SampleFile struct {
	Instrument int // 1-based instrument id
	Index      int // 1-based sample index within the instrument
	Name       string
	FileName   string // deterministic, unique within the conversion
	Data       []byte // full WAV file contents
	Frames     int

	Volume       int
	Panning      int
	Finetune     int
	RelativeNote int
	LoopType     module.LoopType
	LoopStart    int
	LoopLength   int
}

// CRC is the additive checksum Live stores for referenced files.
func (s *SampleFile) CRC() int {
	sum := 0
	for _, b := range s.Data {
		sum += int(b)
	}
	return sum % 65536
}

// DecodeFrames reconstructs the sample's 16-bit PCM frames from its raw
// payload. XM payloads are delta coded and accumulate with the same
// wrapping FastTracker uses; MOD payloads are plain 8-bit signed.
func DecodeFrames(s *module.Sample) []int16 {
	switch s.Encoding {
	case module.Enc16Delta:
		frames := make([]int16, len(s.Data)/2)
		var acc uint16
		for i := range frames {
			acc += uint16(s.Data[i*2]) | uint16(s.Data[i*2+1])<<8
			frames[i] = int16(acc)
		}
		return frames
	case module.Enc8Delta:
		frames := make([]int16, len(s.Data))
		var acc uint8
		for i, d := range s.Data {
			acc += d
			frames[i] = int16(int8(acc)) * 256
		}
		return frames
	default:
		frames := make([]int16, len(s.Data))
		for i, b := range s.Data {
			frames[i] = int16(int8(b)) * 256
		}
		return frames
	}
}

// ExtractSamples decodes every non-empty sample in the module into a
// WAV buffer. File names derive from the sample name, sanitized, with
// numeric suffixes on collisions, so repeated runs name files
// identically.
func ExtractSamples(m *module.Module) []SampleFile {
	var out []SampleFile
	used := map[string]bool{}

	for ii := range m.Instruments {
		ins := &m.Instruments[ii]
		for si := range ins.Samples {
			s := &ins.Samples[si]
			if len(s.Data) == 0 {
				continue
			}
			frames := DecodeFrames(s)

			name := safeName(s.Name)
			if name == "" {
				name = fmt.Sprintf("Instrument_%02X_Sample_%d", ins.ID, si+1)
			}
			base := name
			for n := 1; used[name]; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
			}
			used[name] = true

			out = append(out, SampleFile{
				Instrument:   ins.ID,
				Index:        si + 1,
				Name:         name,
				FileName:     name + ".wav",
				Data:         wav.Encode(frames, wav.DefaultRate),
				Frames:       len(frames),
				Volume:       s.Volume,
				Panning:      s.Panning,
				Finetune:     s.Finetune,
				RelativeNote: s.RelativeNote,
				LoopType:     s.LoopType,
				LoopStart:    s.LoopStart,
				LoopLength:   s.LoopLength,
			})
		}
	}
	return out
}

// safeName keeps only filesystem-friendly characters from a sample name.
func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == ',':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
