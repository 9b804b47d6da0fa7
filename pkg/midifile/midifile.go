// Package midifile renders a converted project as a standard MIDI file
// so the note data can be used outside Live.
package midifile

import (
	"bytes"
	"errors"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/xm2live/xm2live/pkg/live"
)

const ticksPerQuarter = 480

// ErrNoNotes is returned when the project has nothing to export.
var ErrNoNotes = errors.New("project has no notes")

// Export renders the project as a type-1 SMF: a tempo track followed by
// one track per project track, notes at their clip beat positions.
func Export(p *live.Project) ([]byte, error) {
	if p == nil || p.NoteCount() == 0 {
		return nil, ErrNoNotes
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	tempo := p.Tempo
	if tempo <= 0 {
		tempo = 120.0
	}
	microsecondsPerBeat := uint32(60000000.0 / tempo)

	var meta smf.Track
	meta.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	}))
	// 4/4 time signature.
	meta.Add(0, smf.Message([]byte{0xFF, 0x58, 0x04, 0x04, 0x02, 0x18, 0x08}))
	meta.Close(0)
	if err := s.Add(meta); err != nil {
		return nil, err
	}

	for i, t := range p.Tracks {
		if len(t.Clip.Notes) == 0 {
			continue
		}
		channel := uint8(i % 16)
		if err := s.Add(noteTrack(t, channel)); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func noteTrack(t *live.Track, channel uint8) smf.Track {
	type event struct {
		tick uint32
		on   bool
		key  uint8
		vel  uint8
	}
	var events []event
	for _, n := range t.Clip.Notes {
		if n.Key < 0 || n.Key > 127 {
			continue
		}
		on := beatTicks(n.Start)
		off := beatTicks(n.Start + n.Duration)
		if off <= on {
			off = on + 1
		}
		events = append(events,
			event{tick: on, on: true, key: uint8(n.Key), vel: uint8(n.Velocity)},
			event{tick: off, on: false, key: uint8(n.Key)})
	}
	// Offs before ons at the same tick, so retriggers don't cancel.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})

	var track smf.Track
	nameBytes := []byte(t.Name)
	if len(nameBytes) > 0 && len(nameBytes) < 128 {
		// Track name meta event.
		msg := append([]byte{0xFF, 0x03, byte(len(nameBytes))}, nameBytes...)
		track.Add(0, smf.Message(msg))
	}

	var currentTick uint32
	for _, ev := range events {
		delta := ev.tick - currentTick
		currentTick = ev.tick
		if ev.on {
			track.Add(delta, midi.NoteOn(channel, ev.key, ev.vel))
		} else {
			track.Add(delta, midi.NoteOff(channel, ev.key))
		}
	}
	track.Close(0)
	return track
}

func beatTicks(beats float64) uint32 {
	if beats < 0 {
		return 0
	}
	return uint32(beats*ticksPerQuarter + 0.5)
}
