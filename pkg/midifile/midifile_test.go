package midifile

import (
	"bytes"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/xm2live/xm2live/pkg/live"
)

func testProject() *live.Project {
	return &live.Project{
		Title: "export test",
		Tempo: 150,
		Tracks: []*live.Track{
			{
				Name: "Ch1 - bass",
				Clip: live.Clip{
					Length: 8,
					Notes: []live.Note{
						{Key: 48, Velocity: 127, Start: 0, Duration: 1},
						{Key: 60, Velocity: 90, Start: 2, Duration: 0.5},
					},
				},
			},
			{
				Name: "Ch2 - lead",
				Clip: live.Clip{
					Length: 8,
					Notes:  []live.Note{{Key: 72, Velocity: 64, Start: 1, Duration: 2}},
				},
			},
		},
	}
}

func TestExport(t *testing.T) {
	data, err := Export(testProject())
	if err != nil {
		t.Fatal(err)
	}

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	// Tempo track plus one per project track.
	if len(s.Tracks) != 3 {
		t.Fatalf("tracks = %d, want 3", len(s.Tracks))
	}

	var noteOns, noteOffs int
	for _, track := range s.Tracks {
		for _, ev := range track {
			msg := ev.Message
			if len(msg) >= 3 {
				switch {
				case msg[0] >= 0x90 && msg[0] <= 0x9F && msg[2] > 0:
					noteOns++
				case msg[0] >= 0x80 && msg[0] <= 0x8F,
					msg[0] >= 0x90 && msg[0] <= 0x9F && msg[2] == 0:
					noteOffs++
				}
			}
		}
	}
	if noteOns != 3 || noteOffs != 3 {
		t.Errorf("note ons = %d, offs = %d, want 3 each", noteOns, noteOffs)
	}
}

func TestExportTempo(t *testing.T) {
	data, err := Export(testProject())
	if err != nil {
		t.Fatal(err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, ev := range s.Tracks[0] {
		msg := ev.Message
		if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 {
			usPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
			bpm := 60000000.0 / float64(usPerBeat)
			if bpm < 149.9 || bpm > 150.1 {
				t.Errorf("tempo = %v, want 150", bpm)
			}
			found = true
		}
	}
	if !found {
		t.Error("no tempo meta event in the first track")
	}
}

func TestExportSkipsOutOfRangeKeys(t *testing.T) {
	p := testProject()
	// A detuned period run through the pitch formula can land past the
	// MIDI range; such notes are dropped, not wrapped.
	p.Tracks[0].Clip.Notes = append(p.Tracks[0].Clip.Notes,
		live.Note{Key: 209, Velocity: 100, Start: 4, Duration: 1})

	data, err := Export(p)
	if err != nil {
		t.Fatal(err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	noteOns := 0
	for _, track := range s.Tracks {
		for _, ev := range track {
			msg := ev.Message
			if len(msg) >= 3 && msg[0] >= 0x90 && msg[0] <= 0x9F && msg[2] > 0 {
				noteOns++
				if msg[1] > 127 {
					t.Errorf("note on with key %d", msg[1])
				}
			}
		}
	}
	if noteOns != 3 {
		t.Errorf("note ons = %d, want 3 with the out-of-range note dropped", noteOns)
	}
}

func TestExportEmpty(t *testing.T) {
	if _, err := Export(&live.Project{}); err != ErrNoNotes {
		t.Errorf("err = %v, want ErrNoNotes", err)
	}
}
