// Package module decodes FastTracker 2 XM and ProTracker MOD files into a
// unified in-memory Module model. The model is read-only after parsing:
// the conversion stages downstream only ever consume it.
package module

import "fmt"

// Format identifies the source tracker format.
type Format int

const (
	FormatUnknown Format = iota
	FormatXM
	FormatMOD
)

func (f Format) String() string {
	switch f {
	case FormatXM:
		return "xm"
	case FormatMOD:
		return "mod"
	default:
		return "unknown"
	}
}

// LoopType describes how a sample repeats.
type LoopType int

const (
	LoopNone LoopType = iota
	LoopForward
	LoopPingPong
)

// Encoding describes how a sample payload is stored on disk.
type Encoding int

const (
	// Enc8Signed is plain 8-bit signed PCM (MOD).
	Enc8Signed Encoding = iota
	// Enc8Delta is 8-bit delta-coded PCM (XM).
	Enc8Delta
	// Enc16Delta is 16-bit little-endian delta-coded PCM (XM).
	Enc16Delta
)

// Event is one cell of a pattern grid. Zero values mean "column absent":
// Note 0, Instrument 0 and Period 0 are all "nothing here". Volume uses -1
// as the unset sentinel because 0 is a meaningful value (volume cut).
type Event struct {
	Note        uint8  // XM note index 1..96, 0 = none
	Period      uint16 // MOD Amiga period, 0 = none
	Instrument  uint8  // 1-based instrument reference, 0 = none
	Volume      int8   // decoded 0..64, -1 = not set
	Effect      uint8
	EffectParam uint8
	HasEffect   bool
}

// Pattern is a fixed grid of rows x channels.
type Pattern struct {
	Rows   int
	Events [][]Event // [row][channel]
}

// EnvelopePoint is one (tick, value) breakpoint of an XM volume envelope.
type EnvelopePoint struct {
	Tick  int
	Value int // 0..64
}

// Envelope is the XM per-instrument volume envelope.
type Envelope struct {
	Points       []EnvelopePoint
	SustainIndex int
	SustainOn    bool
	LoopOn       bool
}

// Sample holds one raw sample payload plus its playback metadata. Loop
// start/length are in frames and already clamped to the payload.
type Sample struct {
	Name         string
	Data         []byte // raw payload as stored in the file
	Encoding     Encoding
	LoopType     LoopType
	LoopStart    int // frames
	LoopLength   int // frames
	Volume       int // 0..64
	Panning      int // 0..255, 128 = center
	Finetune     int // -128..127 (XM: 1/128 semitone units; MOD: signed nibble)
	RelativeNote int // XM semitone offset, 0 for MOD
}

// Frames returns the payload length in sample frames.
func (s *Sample) Frames() int {
	if s.Encoding == Enc16Delta {
		return len(s.Data) / 2
	}
	return len(s.Data)
}

// Instrument groups one or more samples. MOD instruments always hold
// exactly one sample; XM instruments may hold several plus an envelope.
type Instrument struct {
	ID             int // 1-based, as referenced by events
	Name           string
	Samples        []Sample
	VolumeEnvelope *Envelope
}

// Module is the unified parse result for both formats.
type Module struct {
	Format      Format
	Title       string
	Channels    int
	Speed       int // initial ticks per row
	BPM         int
	RestartPos  int
	Order       []int // pattern play sequence
	Patterns    []Pattern
	Instruments []Instrument
}

// InstrumentByID returns the instrument events reference as id, or nil.
func (m *Module) InstrumentByID(id int) *Instrument {
	if id < 1 || id > len(m.Instruments) {
		return nil
	}
	return &m.Instruments[id-1]
}

// parser is the per-format capability set: a cheap signature probe and
// the full decoder.
type parser struct {
	name   string
	detect func(data []byte) bool
	parse  func(data []byte) (*Module, error)
}

var parsers = []parser{
	{"xm", DetectXM, ParseXM},
	{"mod", DetectMOD, ParseMOD},
}

// Detect reports which format the buffer carries, FormatUnknown if none.
func Detect(data []byte) Format {
	switch {
	case DetectXM(data):
		return FormatXM
	case DetectMOD(data):
		return FormatMOD
	default:
		return FormatUnknown
	}
}

// Parse dispatches on the buffer's signature and decodes it. Parsing is a
// pure function of the bytes: the same input always yields the same Module.
func Parse(data []byte) (*Module, error) {
	for _, p := range parsers {
		if p.detect(data) {
			return p.parse(data)
		}
	}
	return nil, ErrUnsupportedFormat
}

// Validate checks the cross-references the conversion stages rely on:
// event instrument indices must exist, loops must fit their payload and
// the initial speed must be usable as a divisor.
func (m *Module) Validate() error {
	if m.Channels < 1 {
		return fmt.Errorf("module has %d channels", m.Channels)
	}
	if m.Speed < 1 {
		return fmt.Errorf("initial speed %d, must be >= 1", m.Speed)
	}
	for pi := range m.Patterns {
		for ri := range m.Patterns[pi].Events {
			for ci := range m.Patterns[pi].Events[ri] {
				ev := &m.Patterns[pi].Events[ri][ci]
				if ev.Instrument != 0 && m.InstrumentByID(int(ev.Instrument)) == nil {
					return fmt.Errorf("pattern %d row %d ch %d references missing instrument %d",
						pi, ri, ci, ev.Instrument)
				}
			}
		}
	}
	for ii := range m.Instruments {
		for si := range m.Instruments[ii].Samples {
			s := &m.Instruments[ii].Samples[si]
			if s.LoopStart+s.LoopLength > s.Frames() {
				return fmt.Errorf("instrument %d sample %d loop %d+%d exceeds %d frames",
					ii+1, si, s.LoopStart, s.LoopLength, s.Frames())
			}
		}
	}
	return nil
}
