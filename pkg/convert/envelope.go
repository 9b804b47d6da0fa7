package convert

import (
	"github.com/xm2live/xm2live/pkg/live"
	"github.com/xm2live/xm2live/pkg/module"
)

// ApproximateADSR folds an XM multi-point volume envelope into the
// device's four-stage envelope. Three strategies depending on shape:
// two-point envelopes map directly, sustain-flagged envelopes anchor
// the sustain stage on the flagged point, and complex envelopes without
// sustain pick a midpoint. Lossy on purpose.
func ApproximateADSR(env *module.Envelope, bpm int) *live.ADSR {
	if env == nil || len(env.Points) == 0 {
		return nil
	}
	if bpm < 1 {
		bpm = 125
	}
	// One envelope tick is one tracker tick at speed 6.
	tickToMs := 2500.0 / float64(bpm)

	pts := env.Points
	n := len(pts)

	peakIdx := 0
	for i, p := range pts {
		if p.Value > pts[peakIdx].Value {
			peakIdx = i
		}
	}

	adsr := &live.ADSR{}
	switch {
	case n == 2:
		adsr.AttackTime = 0.1
		adsr.DecayTime = maxf(1, float64(pts[1].Tick)*tickToMs)
		adsr.DecayLevel = float64(pts[0].Value) / 64.0
		adsr.DecaySlope = 1
		adsr.SustainLevel = float64(pts[1].Value) / 64.0
		adsr.ReleaseTime = 50

	case env.SustainOn && env.SustainIndex < n:
		peak := pts[peakIdx]
		sus := pts[env.SustainIndex]
		last := pts[n-1]
		adsr.AttackTime = maxf(0.1, float64(peak.Tick)*tickToMs)
		adsr.DecayTime = maxf(1, float64(sus.Tick-peak.Tick)*tickToMs)
		adsr.DecayLevel = float64(peak.Value) / 64.0
		adsr.DecaySlope = 0.5
		adsr.SustainLevel = float64(sus.Value) / 64.0
		adsr.ReleaseTime = maxf(1, float64(last.Tick-sus.Tick)*tickToMs)

	default:
		peak := pts[peakIdx]
		last := pts[n-1]
		mid := pts[(peakIdx+n-1)/2]
		adsr.AttackTime = maxf(0.1, float64(peak.Tick)*tickToMs)
		adsr.DecayTime = maxf(1, float64(mid.Tick-peak.Tick)*tickToMs)
		adsr.DecayLevel = float64(peak.Value) / 64.0
		adsr.DecaySlope = 0.5
		adsr.SustainLevel = float64(mid.Value) / 64.0
		adsr.ReleaseTime = maxf(1, float64(last.Tick-mid.Tick)*tickToMs)
	}
	return adsr
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
