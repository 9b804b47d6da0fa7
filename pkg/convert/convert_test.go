package convert

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/xm2live/xm2live/pkg/live"
	"github.com/xm2live/xm2live/pkg/module"
)

// buildMinimalMOD assembles an M.K. file with a single note: C-2 with
// sample 1 at row 0 of pattern 0, nothing else.
func buildMinimalMOD() []byte {
	var buf bytes.Buffer
	fixed := func(s string, n int) {
		raw := make([]byte, n)
		copy(raw, s)
		buf.Write(raw)
	}
	u16be := func(v uint16) { binary.Write(&buf, binary.BigEndian, v) }

	fixed("one note", 20)
	// Sample 1: "pluck", 8 words of payload, full volume, no loop.
	fixed("pluck", 22)
	u16be(8)
	buf.WriteByte(0) // finetune
	buf.WriteByte(64)
	u16be(0)
	u16be(1)
	for i := 1; i < 31; i++ {
		fixed("", 22)
		u16be(0)
		buf.WriteByte(0)
		buf.WriteByte(0)
		u16be(0)
		u16be(1)
	}
	buf.WriteByte(1) // song length
	buf.WriteByte(0)
	buf.Write(make([]byte, 128))
	fixed("M.K.", 4)

	pattern := make([]byte, 64*4*4)
	// period 428 = C-2, sample 1, no effect.
	copy(pattern[0:], []byte{0x01, 0xAC, 0x10, 0x00})
	buf.Write(pattern)

	buf.Write([]byte{0x00, 0x40, 0x7F, 0x40, 0x00, 0xC0, 0x81, 0xC0}) // 16 bytes = 8 words
	buf.Write([]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x7F})
	return buf.Bytes()
}

func TestConvertMinimalMOD(t *testing.T) {
	project, samples, err := Convert(buildMinimalMOD(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	if project.Title != "one note" {
		t.Errorf("Title = %q", project.Title)
	}
	if project.Tempo != 125 {
		t.Errorf("Tempo = %v, want 125", project.Tempo)
	}

	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if samples[0].Name != "pluck" || samples[0].Frames != 16 {
		t.Errorf("sample = %+v", samples[0])
	}

	if len(project.Tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(project.Tracks))
	}
	tr := project.Tracks[0]
	if tr.Name != "Ch1 - pluck" {
		t.Errorf("track name = %q", tr.Name)
	}
	if tr.Device != live.DeviceSampler {
		t.Errorf("device = %v, want Sampler without 9xx", tr.Device)
	}

	if len(tr.Clip.Notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(tr.Clip.Notes))
	}
	n := tr.Clip.Notes[0]
	if n.Start != 0 || n.Key != 60 || n.Velocity != 127 || n.Duration != maxNoteBeats {
		t.Errorf("note = %+v", n)
	}
	if tr.Clip.Length != maxNoteBeats {
		t.Errorf("clip length = %v", tr.Clip.Length)
	}

	if tr.Sample.RootKey != 60 || tr.Sample.LoopMode != live.LoopModeOff {
		t.Errorf("sample ref = %+v", tr.Sample)
	}
	if tr.Sample.CRC != samples[0].CRC() || tr.Sample.ByteSize != len(samples[0].Data) {
		t.Errorf("sample ref checksum fields = %+v", tr.Sample)
	}

	if tr.PanAutomation != nil || tr.SampleStartAutomation != nil {
		t.Error("automation emitted for a module without effects")
	}
}

func TestConvertDeterministic(t *testing.T) {
	data := buildMinimalMOD()
	p1, s1, err := Convert(data, Config{})
	if err != nil {
		t.Fatal(err)
	}
	p2, s2, err := Convert(data, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p1, p2) || !reflect.DeepEqual(s1, s2) {
		t.Error("same input converted to different projects")
	}
}

func TestConvertRejectsGarbage(t *testing.T) {
	if _, _, err := Convert([]byte("not a module at all, nowhere near one"), Config{}); err == nil {
		t.Fatal("expected an error")
	}
}

// effectXM builds an in-memory XM module exercising pan and offset
// effects on instrument 1.
func effectXM() *module.Module {
	pattern := module.Pattern{Rows: 8, Events: make([][]module.Event, 8)}
	for r := range pattern.Events {
		pattern.Events[r] = make([]module.Event, 1)
		pattern.Events[r][0].Volume = -1
	}
	pattern.Events[0][0] = module.Event{Note: 49, Instrument: 1, Volume: -1, Effect: 0x08, EffectParam: 0x00, HasEffect: true}
	pattern.Events[2][0] = module.Event{Note: 49, Instrument: 1, Volume: -1}
	pattern.Events[4][0] = module.Event{Note: 49, Instrument: 1, Volume: -1, Effect: 0x09, EffectParam: 0x02, HasEffect: true}

	return &module.Module{
		Format:   module.FormatXM,
		Title:    "effects",
		Channels: 1,
		Speed:    6,
		BPM:      150,
		Order:    []int{0},
		Patterns: []module.Pattern{pattern},
		Instruments: []module.Instrument{
			{ID: 1, Name: "saw", Samples: []module.Sample{{
				Name:    "saw",
				Data:    make([]byte, 2048),
				Volume:  64,
				Panning: 128,
			}}},
		},
	}
}

func TestBuildAutomation(t *testing.T) {
	m := effectXM()
	cfg := Config{PanAutomation: true, SampleOffset: true}
	project, _, err := Build(m, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(project.Tracks) != 1 {
		t.Fatalf("tracks = %d", len(project.Tracks))
	}
	tr := project.Tracks[0]

	// The 9xx anywhere on the instrument flips the device to Simpler.
	if tr.Device != live.DeviceSimpler {
		t.Errorf("device = %v, want Simpler", tr.Device)
	}

	// Pan: initial plateau hard left, then back to center at the row-2
	// note. First note starts at 0 so no leading center point.
	pan := tr.PanAutomation
	if len(pan) != 3 {
		t.Fatalf("pan breakpoints = %v", pan)
	}
	if pan[0].Time != 0 || pan[0].Value != -1 || pan[1].Time != 0.5 || pan[1].Value != -1 {
		t.Errorf("pan plateau = %v", pan[:2])
	}
	if pan[2].Time != 0.5 || pan[2].Value != 0 {
		t.Errorf("pan return = %v", pan[2])
	}

	// Sample start: initial zero, a zero plateau per plain note, and
	// the 9xx plateau at its fraction of the sample.
	ss := tr.SampleStartAutomation
	if len(ss) != 7 {
		t.Fatalf("sample-start breakpoints = %v", ss)
	}
	if ss[0].Time != 0 || ss[0].Value != 0 {
		t.Errorf("initial point = %v", ss[0])
	}
	wantFraction := float64(2*256) / 2.0 / 2048.0
	if got := ss[5].Value; math.Abs(got-wantFraction) > 1e-9 {
		t.Errorf("offset fraction = %v, want %v", got, wantFraction)
	}
}

func TestBuildPingPongLoopOnSimpler(t *testing.T) {
	m := effectXM()
	s := &m.Instruments[0].Samples[0]
	s.Data = make([]byte, 100)
	s.LoopType = module.LoopPingPong
	s.LoopStart = 10
	s.LoopLength = 80

	// The 9xx note routes the instrument to Simpler, which has no
	// ping-pong mode: the loop degrades to a single forward loop.
	project, _, err := Build(m, Config{SampleOffset: true})
	if err != nil {
		t.Fatal(err)
	}
	ref := project.Tracks[0].Sample
	if project.Tracks[0].Device != live.DeviceSimpler {
		t.Fatalf("device = %v", project.Tracks[0].Device)
	}
	if ref.LoopMode != live.LoopModeForward {
		t.Errorf("LoopMode = %d, want forward", ref.LoopMode)
	}
	if ref.LoopStart != 10 || ref.LoopEnd != 90 {
		t.Errorf("loop = %d..%d, want 10..90", ref.LoopStart, ref.LoopEnd)
	}
	if ref.LoopEnd > ref.Frames {
		t.Errorf("loop end %d past payload of %d frames", ref.LoopEnd, ref.Frames)
	}

	// On a Sampler the ping-pong mode survives.
	project, _, err = Build(m, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ref = project.Tracks[0].Sample
	if project.Tracks[0].Device != live.DeviceSampler || ref.LoopMode != live.LoopModePingPong {
		t.Errorf("sampler loop mode = %d, want ping-pong", ref.LoopMode)
	}
}

func TestBuildPanReturnsToSampleDefault(t *testing.T) {
	m := effectXM()
	m.Instruments[0].Samples[0].Panning = 192

	project, _, err := Build(m, Config{PanAutomation: true})
	if err != nil {
		t.Fatal(err)
	}
	pan := project.Tracks[0].PanAutomation
	if len(pan) != 3 {
		t.Fatalf("pan breakpoints = %v", pan)
	}
	// After the 8xx plateau the envelope settles back on the sample's
	// own panning, not center.
	if pan[2].Value != Pan(192) {
		t.Errorf("return value = %v, want %v", pan[2].Value, Pan(192))
	}
}

func TestBuildEnvelopeConversion(t *testing.T) {
	m := effectXM()
	m.Instruments[0].VolumeEnvelope = &module.Envelope{
		Points: []module.EnvelopePoint{{Tick: 0, Value: 64}, {Tick: 40, Value: 16}},
	}

	project, _, err := Build(m, Config{EnvelopeConversion: true})
	if err != nil {
		t.Fatal(err)
	}
	env := project.Tracks[0].Envelope
	if env == nil {
		t.Fatal("no envelope on the track")
	}
	if env.SustainLevel != 0.25 {
		t.Errorf("SustainLevel = %v, want 0.25", env.SustainLevel)
	}

	project, _, err = Build(m, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if project.Tracks[0].Envelope != nil {
		t.Error("envelope emitted with conversion disabled")
	}
}
