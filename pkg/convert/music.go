package convert

import "math"

// rowsPerBeat fixes the row grid: four tracker rows make one beat.
const rowsPerBeat = 4.0

// RealBPM computes the effective project tempo. Tracker BPM values are
// calibrated for speed 6; other speeds scale the row rate accordingly.
func RealBPM(bpm, speed int) float64 {
	if speed < 1 {
		speed = 1
	}
	return float64(bpm) * 6.0 / float64(speed)
}

// amigaPeriods maps standard PAL ProTracker periods to MIDI notes,
// already shifted +24 semitones so ProTracker C-1 lands on MIDI 48.
var amigaPeriods = map[int]int{
	856: 48, 808: 49, 762: 50, 720: 51, 678: 52, 640: 53,
	604: 54, 570: 55, 538: 56, 508: 57, 480: 58, 453: 59,
	428: 60, 404: 61, 381: 62, 360: 63, 339: 64, 320: 65,
	302: 66, 285: 67, 269: 68, 254: 69, 240: 70, 226: 71,
	214: 72, 202: 73, 190: 74, 180: 75, 170: 76, 160: 77,
	151: 78, 143: 79, 135: 80, 127: 81, 120: 82, 113: 83,
	107: 84, 101: 85, 95: 86, 90: 87, 85: 88, 80: 89,
	76: 90, 71: 91, 67: 92, 64: 93, 60: 94, 57: 95,
}

// PeriodToMIDI converts an Amiga period to a MIDI note. Periods close
// to a table entry snap to it; detuned values outside the table fall
// back to the PAL clock frequency formula. Returns false for period 0.
func PeriodToMIDI(period int) (int, bool) {
	if period == 0 {
		return 0, false
	}
	closest, dist := 0, math.MaxInt
	for p := range amigaPeriods {
		d := p - period
		if d < 0 {
			d = -d
		}
		if d < dist {
			closest, dist = p, d
		}
	}
	if dist <= 10 {
		return amigaPeriods[closest], true
	}
	freq := 7093789.2 / (float64(period) * 2)
	note := 12*math.Log2(freq/440.0) + 69 + 24
	return int(math.Round(note)), true
}

// XMNoteToMIDI maps the XM note index (1..96, 1 = C-0) onto MIDI so
// that note 49 is middle C.
func XMNoteToMIDI(note int) int {
	return note - 1 + 12
}

// XMVelocity scales the 0..64 volume column to MIDI velocity.
func XMVelocity(volume int) int {
	v := volume * 2
	if v > 127 {
		v = 127
	}
	return v
}

// MODVelocity scales the 0..64 sample volume to MIDI velocity.
func MODVelocity(volume int) int {
	return int(float64(volume) / 64.0 * 127.0)
}

// RowTime converts a row index inside a pattern to its beat offset.
func RowTime(row int) float64 {
	return float64(row) / rowsPerBeat
}

// Pan converts tracker panning (0..255, 128 center) to Live's -1..1.
func Pan(pan int) float64 {
	v := float64(pan-128) / 128.0
	return clamp(v, -1, 1)
}

// Detune converts XM finetune (-128..127, 1/128 semitone steps) to
// Live's cents range.
func Detune(finetune int) float64 {
	return clamp(float64(finetune)/2.56, -50, 50)
}

// SampleVolume maps the 0..64 sample volume to the device volume with
// -12 dB of headroom for velocity scaling.
func SampleVolume(volume int) float64 {
	return float64(volume) / 64.0 * 0.25
}

// OffsetFraction converts an effect 9xx parameter to a fraction of the
// sample, for 16-bit frames. The parameter counts 256-byte pages.
func OffsetFraction(param int, frames int) float64 {
	if frames <= 0 {
		return 0
	}
	offsetFrames := float64(param*256) / 2.0
	return clamp(offsetFrames/float64(frames), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
