package convert

import (
	"math"
	"testing"
)

func TestRealBPM(t *testing.T) {
	tests := []struct {
		bpm, speed int
		want       float64
	}{
		{125, 6, 125},
		{125, 3, 250},
		{125, 12, 62.5},
		{150, 6, 150},
		{125, 0, 750}, // speed clamps to 1
	}
	for _, tt := range tests {
		if got := RealBPM(tt.bpm, tt.speed); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RealBPM(%d, %d) = %v, want %v", tt.bpm, tt.speed, got, tt.want)
		}
	}
}

func TestPeriodToMIDI(t *testing.T) {
	tests := []struct {
		period int
		want   int
	}{
		{856, 48}, // C-1
		{428, 60}, // C-2
		{214, 72}, // C-3
		{425, 60}, // slightly detuned, snaps
		{113, 83},
	}
	for _, tt := range tests {
		got, ok := PeriodToMIDI(tt.period)
		if !ok || got != tt.want {
			t.Errorf("PeriodToMIDI(%d) = %d, %v, want %d", tt.period, got, ok, tt.want)
		}
	}

	if _, ok := PeriodToMIDI(0); ok {
		t.Error("PeriodToMIDI(0) should report no note")
	}

	// Periods far from every table entry go through the PAL clock
	// formula instead of snapping.
	got, ok := PeriodToMIDI(1712)
	if !ok || got != 120 {
		t.Errorf("PeriodToMIDI(1712) = %d, %v, want 120", got, ok)
	}
}

func TestXMNoteToMIDI(t *testing.T) {
	if got := XMNoteToMIDI(49); got != 60 {
		t.Errorf("note 49 = %d, want 60", got)
	}
	if got := XMNoteToMIDI(1); got != 12 {
		t.Errorf("note 1 = %d, want 12", got)
	}
}

func TestVelocities(t *testing.T) {
	if got := XMVelocity(64); got != 127 {
		t.Errorf("XMVelocity(64) = %d", got)
	}
	if got := XMVelocity(32); got != 64 {
		t.Errorf("XMVelocity(32) = %d", got)
	}
	if got := XMVelocity(0); got != 0 {
		t.Errorf("XMVelocity(0) = %d", got)
	}
	if got := MODVelocity(64); got != 127 {
		t.Errorf("MODVelocity(64) = %d", got)
	}
}

func TestPan(t *testing.T) {
	if got := Pan(128); got != 0 {
		t.Errorf("Pan(128) = %v", got)
	}
	if got := Pan(0); got != -1 {
		t.Errorf("Pan(0) = %v", got)
	}
	if got := Pan(255); math.Abs(got-0.9921875) > 1e-9 {
		t.Errorf("Pan(255) = %v", got)
	}
}

func TestDetune(t *testing.T) {
	if got := Detune(0); got != 0 {
		t.Errorf("Detune(0) = %v", got)
	}
	if got := Detune(-128); got != -50 {
		t.Errorf("Detune(-128) = %v, want clamp to -50", got)
	}
	if got := Detune(64); math.Abs(got-25) > 1e-9 {
		t.Errorf("Detune(64) = %v, want 25", got)
	}
}

func TestOffsetFraction(t *testing.T) {
	// 9xx counts 256-byte pages of 16-bit frames: param 2 = 256 frames.
	if got := OffsetFraction(2, 1024); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("OffsetFraction(2, 1024) = %v, want 0.25", got)
	}
	if got := OffsetFraction(0xFF, 100); got != 1 {
		t.Errorf("OffsetFraction past the end = %v, want clamp to 1", got)
	}
	if got := OffsetFraction(1, 0); got != 0 {
		t.Errorf("OffsetFraction with no frames = %v", got)
	}
}
