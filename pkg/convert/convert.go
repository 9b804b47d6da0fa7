// Package convert turns parsed tracker modules into Ableton Live
// projects: it extracts samples, reads notes off the pattern grid and
// maps tracker effects onto Live device parameters and automation.
package convert

import (
	"fmt"

	"github.com/xm2live/xm2live/pkg/live"
	"github.com/xm2live/xm2live/pkg/module"
)

// Convert parses raw module bytes and builds the Live project plus the
// sample files it references. The project is fully assembled in memory;
// writing it to disk is write.Project's job.
func Convert(data []byte, cfg Config) (*live.Project, []SampleFile, error) {
	m, err := module.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid module: %w", err)
	}
	return Build(m, cfg)
}

// Build assembles the project from an already parsed module.
func Build(m *module.Module, cfg Config) (*live.Project, []SampleFile, error) {
	samples := ExtractSamples(m)

	sampleFor := map[int]*SampleFile{}
	for i := range samples {
		if _, ok := sampleFor[samples[i].Instrument]; !ok {
			sampleFor[samples[i].Instrument] = &samples[i]
		}
	}

	var offsetInsts map[int]bool
	if cfg.SampleOffset {
		offsetInsts = offsetInstruments(m)
	}

	tracks := Organize(m, samples, cfg.MergeTracks)

	project := &live.Project{
		Title: m.Title,
		Tempo: RealBPM(m.BPM, m.Speed),
	}

	for _, td := range tracks {
		sf := sampleFor[td.Instrument]
		if sf == nil || len(td.Notes) == 0 {
			continue
		}

		device := live.DeviceSampler
		if offsetInsts[td.Instrument] {
			device = live.DeviceSimpler
		}

		t := &live.Track{
			Name:       td.Name,
			Color:      td.Color,
			Instrument: td.Instrument,
			Channel:    td.Channel,
			Device:     device,
			Sample:     sampleRef(sf, device),
		}

		if cfg.EnvelopeConversion {
			if ins := m.InstrumentByID(td.Instrument); ins != nil {
				t.Envelope = ApproximateADSR(ins.VolumeEnvelope, m.BPM)
			}
		}

		t.Clip = buildClip(td.Notes)
		if cfg.PanAutomation {
			t.PanAutomation = panAutomation(td.Notes, sf.Panning)
		}
		if device == live.DeviceSimpler {
			t.SampleStartAutomation = offsetAutomation(td.Notes, sf.Frames)
		}

		project.Tracks = append(project.Tracks, t)
	}

	return project, samples, nil
}

// offsetInstruments finds instruments that trigger a note with a 9xx
// sample-offset effect anywhere in the play sequence; those tracks get
// a Simpler so the start point can be automated.
func offsetInstruments(m *module.Module) map[int]bool {
	out := map[int]bool{}
	for _, pi := range m.Order {
		if pi >= len(m.Patterns) {
			continue
		}
		p := &m.Patterns[pi]
		for row := range p.Events {
			for ch := range p.Events[row] {
				ev := &p.Events[row][ch]
				if ev.Instrument > 0 && ev.HasEffect && ev.Effect == 0x09 {
					out[int(ev.Instrument)] = true
				}
			}
		}
	}
	return out
}

// sampleRef maps the extracted sample's tracker metadata onto the Live
// device parameter ranges.
func sampleRef(sf *SampleFile, device live.DeviceKind) live.SampleRef {
	ref := live.SampleRef{
		Name:     sf.Name,
		FileName: sf.FileName,
		Frames:   sf.Frames,
		ByteSize: len(sf.Data),
		CRC:      sf.CRC(),
		RootKey:  60 - sf.RelativeNote,
		Detune:   Detune(sf.Finetune),
		Volume:   SampleVolume(sf.Volume),
		Panorama: Pan(sf.Panning),
	}
	switch sf.LoopType {
	case module.LoopForward:
		ref.LoopMode = live.LoopModeForward
	case module.LoopPingPong:
		ref.LoopMode = live.LoopModePingPong
		// Simpler has no ping-pong mode.
		if device == live.DeviceSimpler {
			ref.LoopMode = live.LoopModeForward
		}
	default:
		ref.LoopMode = live.LoopModeOff
	}
	if ref.LoopMode != live.LoopModeOff {
		ref.LoopStart = sf.LoopStart
		ref.LoopEnd = sf.LoopStart + sf.LoopLength
	}
	return ref
}

// buildClip converts the track's notes and sizes the clip one bar past
// the last note start.
func buildClip(notes []NoteData) live.Clip {
	clip := live.Clip{}
	for _, n := range notes {
		clip.Notes = append(clip.Notes, live.Note{
			Key:      n.Key,
			Velocity: n.Velocity,
			Start:    n.Time,
			Duration: n.Duration,
		})
		if end := n.Time + maxNoteBeats; end > clip.Length {
			clip.Length = end
		}
	}
	return clip
}

// panAutomation builds mixer pan breakpoints from 8xx effects. Each
// panned note holds its value for the note's duration; the first note
// without a pan effect afterwards returns the envelope to the sample's
// own default panning. Nil when no note carries a pan, or every pan
// already equals the default.
func panAutomation(notes []NoteData, samplePan int) []live.BreakPoint {
	interesting := false
	for _, n := range notes {
		if n.Pan != nil && *n.Pan != samplePan {
			interesting = true
			break
		}
	}
	if !interesting {
		return nil
	}

	var out []live.BreakPoint
	rest := Pan(samplePan)
	atRest := true
	for _, n := range notes {
		if n.Pan != nil {
			v := Pan(*n.Pan)
			if len(out) == 0 && n.Time > 0 {
				out = append(out, live.BreakPoint{Time: 0, Value: rest})
			}
			out = append(out,
				live.BreakPoint{Time: n.Time, Value: v},
				live.BreakPoint{Time: n.Time + n.Duration, Value: v})
			atRest = v == rest
			continue
		}
		if !atRest {
			out = append(out, live.BreakPoint{Time: n.Time, Value: rest})
			atRest = true
		}
	}
	return out
}

// offsetAutomation builds Simpler sample-start breakpoints: every note
// holds its 9xx offset (zero when absent) as a plateau so retriggers
// land on the right position.
func offsetAutomation(notes []NoteData, frames int) []live.BreakPoint {
	out := []live.BreakPoint{{Time: 0, Value: 0}}
	for _, n := range notes {
		v := 0.0
		if n.Offset != nil {
			v = OffsetFraction(*n.Offset, frames)
		}
		out = append(out,
			live.BreakPoint{Time: n.Time, Value: v},
			live.BreakPoint{Time: n.Time + n.Duration, Value: v})
	}
	return out
}
