// Package live models an Ableton Live project and serializes it to the
// gzip-compressed XML .als document format.
package live

import "errors"

// ErrEmptyProject is returned when serialization is asked to emit a
// project with no tracks; Live refuses such documents.
var ErrEmptyProject = errors.New("project has no tracks")

// DeviceKind selects the playback device on a track.
type DeviceKind int

const (
	// DeviceSampler is the default multi-sample device. Supports
	// ping-pong loops but its sample start cannot be automated.
	DeviceSampler DeviceKind = iota
	// DeviceSimpler supports sample-start automation; loops are
	// forward only.
	DeviceSimpler
)

// LoopMode values used by the device's SustainLoop.
const (
	LoopModeOff      = 0
	LoopModeForward  = 1
	LoopModePingPong = 2
)

// SampleRef describes the sample file a track's device plays, with the
// device parameters already mapped to Live's ranges.
type SampleRef struct {
	Name     string // display name, without extension
	FileName string // file under Samples/
	Frames   int
	ByteSize int // WAV file size on disk
	CRC      int // additive checksum, sum of bytes mod 65536

	RootKey  int     // 60 = C3
	Detune   float64 // cents, -50..50
	Volume   float64 // 0..1 linear
	Panorama float64 // -1..1

	LoopMode  int
	LoopStart int
	LoopEnd   int
}

// ADSR is the device volume envelope, times in milliseconds and levels 0..1.
type ADSR struct {
	AttackTime   float64
	AttackLevel  float64
	AttackSlope  float64
	DecayTime    float64
	DecayLevel   float64
	DecaySlope   float64
	SustainLevel float64
	ReleaseTime  float64
	ReleaseLevel float64
	ReleaseSlope float64
}

// Note is one MIDI note event, times in beats.
type Note struct {
	Key      int
	Velocity int
	Start    float64
	Duration float64
}

// Clip is a MIDI clip starting at beat 0.
type Clip struct {
	Length float64
	Notes  []Note
}

// BreakPoint is one automation point, time in beats.
type BreakPoint struct {
	Time  float64
	Value float64
}

// Track is one MIDI track with a single clip and a sample device.
type Track struct {
	Name       string
	Color      int
	Instrument int // owning tracker instrument id
	Channel    int // source channel, -1 for merged tracks

	Device   DeviceKind
	Sample   SampleRef
	Envelope *ADSR

	Clip Clip

	// Automation breakpoints, empty when the corresponding effect was
	// absent or disabled. Pan targets the mixer, sample start targets
	// the Simpler device.
	PanAutomation         []BreakPoint
	SampleStartAutomation []BreakPoint
}

// Project is the fully-built conversion output, write-once before
// serialization.
type Project struct {
	Title  string
	Tempo  float64
	Tracks []*Track
}

// NoteCount sums notes over all tracks.
func (p *Project) NoteCount() int {
	n := 0
	for _, t := range p.Tracks {
		n += len(t.Clip.Notes)
	}
	return n
}
