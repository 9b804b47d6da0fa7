// Package convert turns a parsed tracker module into an Ableton Live
// project plus its extracted sample files. The pipeline is pure: the
// same input bytes and configuration always produce the same project.
package convert

// Config selects the optional conversion behaviors. The zero value is
// the default conversion: per-channel tracks, no effect automation.
type Config struct {
	// PanAutomation converts effect 8xx into mixer pan automation.
	PanAutomation bool
	// SampleOffset converts effect 9xx into sample-start automation
	// and moves the affected instruments onto the Simpler device.
	SampleOffset bool
	// EnvelopeConversion approximates XM volume envelopes as device
	// ADSR settings. Lossy by design.
	EnvelopeConversion bool
	// MergeTracks folds all channels of an instrument into one track,
	// keeping overlapping notes as polyphony.
	MergeTracks bool
	// TemplatePath optionally seeds serialization with an existing
	// .als document instead of generating the skeleton.
	TemplatePath string
}
