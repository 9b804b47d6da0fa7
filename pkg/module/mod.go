package module

import "strings"

const (
	modSignatureOffset = 1080
	modSampleCount     = 31
	modPatternRows     = 64
)

// modChannels maps known ProTracker signatures to their channel count.
var modChannels = map[string]int{
	"M.K.": 4,
	"M!K!": 4,
	"FLT4": 4,
	"4CHN": 4,
	"6CHN": 6,
	"FLT8": 8,
	"8CHN": 8,
}

// MOD carries no tempo commands in its header; players assume these
// until an Fxx effect overrides them.
const (
	modDefaultSpeed = 6
	modDefaultBPM   = 125
)

// DetectMOD reports whether the buffer carries a known 31-sample
// ProTracker signature. The signature-less 15-sample variant is not
// recognized: too many unrelated files pass its (nonexistent) check.
func DetectMOD(data []byte) bool {
	if len(data) < modSignatureOffset+4 {
		return false
	}
	sig := string(data[modSignatureOffset : modSignatureOffset+4])
	_, ok := modChannels[sig]
	return ok
}

// ParseMOD decodes a ProTracker MOD file.
func ParseMOD(data []byte) (*Module, error) {
	if !DetectMOD(data) {
		return nil, ErrUnsupportedFormat
	}
	sig := string(data[modSignatureOffset : modSignatureOffset+4])
	channels := modChannels[sig]

	r := NewReader(data)
	title, err := r.ReadFixedString(20)
	if err != nil {
		return nil, corrupt("title", r.Pos(), err)
	}

	type modSampleHeader struct {
		name       string
		length     int // bytes
		finetune   int
		volume     int
		loopStart  int // bytes
		loopLength int // bytes
	}
	headers := make([]modSampleHeader, modSampleCount)
	for i := range headers {
		name, err := r.ReadFixedString(22)
		if err != nil {
			return nil, corrupt("sample name", r.Pos(), err)
		}
		length, err := r.ReadUint16BE()
		if err != nil {
			return nil, corrupt("sample length", r.Pos(), err)
		}
		finetune, err := r.ReadUint8()
		if err != nil {
			return nil, corrupt("sample finetune", r.Pos(), err)
		}
		volume, err := r.ReadUint8()
		if err != nil {
			return nil, corrupt("sample volume", r.Pos(), err)
		}
		loopStart, err := r.ReadUint16BE()
		if err != nil {
			return nil, corrupt("sample loop start", r.Pos(), err)
		}
		loopLength, err := r.ReadUint16BE()
		if err != nil {
			return nil, corrupt("sample loop length", r.Pos(), err)
		}
		// Finetune is a signed nibble.
		ft := int(finetune & 0x0F)
		if ft > 7 {
			ft -= 16
		}
		headers[i] = modSampleHeader{
			name:       strings.TrimSpace(name),
			length:     int(length) * 2, // stored in words
			finetune:   ft,
			volume:     int(volume),
			loopStart:  int(loopStart) * 2,
			loopLength: int(loopLength) * 2,
		}
	}

	songLength, err := r.ReadUint8()
	if err != nil {
		return nil, corrupt("song length", r.Pos(), err)
	}
	restartPos, err := r.ReadUint8()
	if err != nil {
		return nil, corrupt("restart position", r.Pos(), err)
	}
	orderTable, err := r.ReadBytes(128)
	if err != nil {
		return nil, corrupt("order table", r.Pos(), err)
	}
	if int(songLength) > len(orderTable) {
		songLength = uint8(len(orderTable))
	}
	order := make([]int, songLength)
	numPatterns := 0
	for i := range order {
		order[i] = int(orderTable[i])
		if order[i] >= numPatterns {
			numPatterns = order[i] + 1
		}
	}
	if err := r.Skip(4); err != nil { // signature, already checked
		return nil, corrupt("signature", r.Pos(), err)
	}

	m := &Module{
		Format:     FormatMOD,
		Title:      title,
		Channels:   channels,
		Speed:      modDefaultSpeed,
		BPM:        modDefaultBPM,
		RestartPos: int(restartPos),
		Order:      order,
	}

	m.Patterns = make([]Pattern, numPatterns)
	for pi := 0; pi < numPatterns; pi++ {
		p := Pattern{Rows: modPatternRows, Events: make([][]Event, modPatternRows)}
		for ri := 0; ri < modPatternRows; ri++ {
			p.Events[ri] = make([]Event, channels)
			for ci := 0; ci < channels; ci++ {
				cell, err := r.ReadBytes(4)
				if err != nil {
					return nil, corrupt("pattern data", r.Pos(), err)
				}
				p.Events[ri][ci] = decodeMODCell(cell)
			}
		}
		m.Patterns[pi] = p
	}

	// Effect Fxx changes the meaning of row timing; take the first ones
	// encountered in play order as the module's initial tempo.
	m.applyMODTempo()

	m.Instruments = make([]Instrument, modSampleCount)
	for i := range headers {
		h := headers[i]
		ins := Instrument{ID: i + 1, Name: h.name}
		if h.length > 0 {
			payload, err := r.ReadBytes(h.length)
			if err != nil {
				// Tolerate a truncated final sample the way players do.
				payload = r.Rest()
			}
			s := Sample{
				Name:     h.name,
				Data:     payload,
				Encoding: Enc8Signed,
				Volume:   h.volume,
				Panning:  128,
				Finetune: h.finetune,
			}
			if h.loopLength > 2 {
				s.LoopType = LoopForward
				s.LoopStart = h.loopStart
				s.LoopLength = h.loopLength
			}
			clampLoop(&s)
			ins.Samples = []Sample{s}
		}
		m.Instruments[i] = ins
	}
	return m, nil
}

// decodeMODCell unpacks one 4-byte pattern cell. The sample number is
// split across the high nibbles of bytes 0 and 2; the 12-bit period
// spans the low nibble of byte 0 and all of byte 1.
func decodeMODCell(b []byte) Event {
	ev := Event{Volume: -1}
	ev.Period = uint16(b[0]&0x0F)<<8 | uint16(b[1])
	ev.Instrument = b[0]&0xF0 | b[2]>>4
	ev.Effect = b[2] & 0x0F
	ev.EffectParam = b[3]
	ev.HasEffect = ev.Effect != 0 || ev.EffectParam != 0
	return ev
}

// applyMODTempo scans the first 10 played patterns for Fxx commands.
// Params <= 0x1F set the speed (ticks per row), larger ones the BPM.
func (m *Module) applyMODTempo() {
	speedSet, bpmSet := false, false
	scan := m.Order
	if len(scan) > 10 {
		scan = scan[:10]
	}
	for _, pi := range scan {
		if pi >= len(m.Patterns) {
			continue
		}
		for _, row := range m.Patterns[pi].Events {
			for _, ev := range row {
				if ev.Effect != 0x0F || ev.EffectParam == 0 {
					continue
				}
				if ev.EffectParam <= 0x1F && !speedSet {
					m.Speed = int(ev.EffectParam)
					speedSet = true
				} else if ev.EffectParam > 0x1F && !bpmSet {
					m.BPM = int(ev.EffectParam)
					bpmSet = true
				}
				if speedSet && bpmSet {
					return
				}
			}
		}
	}
}
