package live

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// idGen hands out the sequential element ids a Live document requires to
// be unique across automation targets, envelopes and events.
type idGen struct{ next int }

func (g *idGen) id() string {
	v := g.next
	g.next++
	return strconv.Itoa(v)
}

func f64(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Serialize renders the project as a gzip-compressed Live set document.
func Serialize(p *Project) ([]byte, error) {
	doc, err := BuildDocument(p)
	if err != nil {
		return nil, err
	}
	return compress(doc)
}

// SerializeWithTemplate augments a user-provided .als seed instead of
// generating the document skeleton: the seed's MIDI tracks are replaced
// by the project's tracks and its 120 BPM default tempo is restamped.
func SerializeWithTemplate(p *Project, template []byte) ([]byte, error) {
	if len(p.Tracks) == 0 {
		return nil, ErrEmptyProject
	}
	doc, err := ParseDocument(template)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	tracksElem := doc.Find("Tracks")
	if tracksElem == nil {
		return nil, fmt.Errorf("template: no Tracks element")
	}

	// Drop the seed's MIDI tracks, remember where they sat so the new
	// ones land before any return tracks.
	insertAt := len(tracksElem.Children)
	for i := len(tracksElem.Children) - 1; i >= 0; i-- {
		if tracksElem.Children[i].Tag() == "MidiTrack" {
			insertAt = i
			tracksElem.Children = append(tracksElem.Children[:i], tracksElem.Children[i+1:]...)
		}
	}

	ids := &idGen{next: nextFreeID(doc)}
	trackElems := buildTrackList(p, ids)
	for i, te := range trackElems {
		tracksElem.InsertAt(insertAt+i, te)
	}

	// The seed documents carry their default tempo as literal 120s.
	bpm := f64(p.Tempo)
	doc.Walk(func(e *Element) {
		if (e.Tag() == "Manual" || e.Tag() == "FloatEvent") && e.Attr("Value") == "120" {
			e.SetAttr("Value", bpm)
		}
	})

	if np := doc.Find("NextPointeeId"); np != nil {
		np.SetAttr("Value", strconv.Itoa(ids.next))
	}
	return compress(doc)
}

// ParseDocument decodes a gzip-compressed .als file into an element tree.
func ParseDocument(data []byte) (*Element, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	var root Element
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	return &root, nil
}

func compress(doc *Element) ([]byte, error) {
	raw, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var buf bytes.Buffer
	zw, _ := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if _, err := zw.Write([]byte(xmlHeader)); err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// nextFreeID scans every numeric Id attribute and returns one past the max.
func nextFreeID(doc *Element) int {
	max := 9999
	doc.Walk(func(e *Element) {
		if v, err := strconv.Atoi(e.Attr("Id")); err == nil && v > max {
			max = v
		}
	})
	return max + 1
}

// BuildDocument assembles the full Live set element tree for the project.
func BuildDocument(p *Project) (*Element, error) {
	if len(p.Tracks) == 0 {
		return nil, ErrEmptyProject
	}
	ids := &idGen{next: 10000}

	tracks := El("Tracks").Add(buildTrackList(p, ids)...)

	liveSet := El("LiveSet").Add(
		ValueEl("OverwriteProtectionNumber", "2816"),
		ValueEl("LomId", "0"),
		ValueEl("LomIdView", "0"),
		tracks,
		buildMasterTrack(p.Tempo, ids),
		El("Transport").Add(
			ValueEl("PhaseNudgeTempo", "10"),
			ValueEl("LoopOn", "false"),
			ValueEl("CurrentTime", "0"),
			ValueEl("PunchIn", "false"),
			ValueEl("PunchOut", "false"),
			ValueEl("MetronomeTickDuration", "0"),
			ValueEl("DrawMode", "false"),
		),
		El("SendsPre"),
		El("Scenes"),
		El("TimeSelection").Add(
			ValueEl("AnchorTime", "0"),
			ValueEl("OtherTime", "0"),
		),
		ValueEl("GlobalQuantisation", "4"),
		ValueEl("AutoQuantisation", "0"),
		ValueEl("Annotation", ""),
	)

	doc := El("Ableton",
		"MajorVersion", "5",
		"MinorVersion", "11.0_11300",
		"SchemaChangeCount", "3",
		"Creator", "Ableton Live 11.3",
		"Revision", "",
	).Add(liveSet)

	// Allocate the pointee counter last, after every id was handed out.
	liveSet.Add(ValueEl("NextPointeeId", strconv.Itoa(ids.next)))
	return doc, nil
}

// buildTrackList renders all MIDI tracks plus a group track in front of
// every instrument that spans two or more channel tracks.
func buildTrackList(p *Project, ids *idGen) []*Element {
	type trackPair struct {
		track *Track
		elem  *Element
	}
	byInstrument := map[int][]trackPair{}
	var out []*Element
	var order []int

	for _, t := range p.Tracks {
		te := buildMidiTrack(t, ids)
		out = append(out, te)
		if _, seen := byInstrument[t.Instrument]; !seen {
			order = append(order, t.Instrument)
		}
		byInstrument[t.Instrument] = append(byInstrument[t.Instrument], trackPair{t, te})
	}

	// Insert group tracks. Walk instruments in first-seen order so the
	// group lands directly before its first member.
	for _, inst := range order {
		members := byInstrument[inst]
		if len(members) < 2 {
			continue
		}
		group := buildGroupTrack(members[0].track, ids)
		groupID := group.Attr("Id")
		for _, m := range members {
			if tg := m.elem.Find("TrackGroupId"); tg != nil {
				tg.SetAttr("Value", groupID)
			}
			if routing := m.elem.Find("AudioOutputRouting"); routing != nil {
				routing.Child("Target").SetAttr("Value", "AudioOut/GroupTrack")
				routing.Child("UpperDisplayString").SetAttr("Value", m.track.Sample.Name)
				routing.Child("LowerDisplayString").SetAttr("Value", "")
			}
		}
		for i, e := range out {
			if e == members[0].elem {
				rest := append([]*Element{group}, out[i:]...)
				out = append(out[:i:i], rest...)
				break
			}
		}
	}
	return out
}

func buildMidiTrack(t *Track, ids *idGen) *Element {
	trackID := ids.id()

	mixer, panTargetID := buildMixer(ids)
	device, sampleStartTargetID := buildDevice(t, ids)

	envelopes := El("Envelopes")
	if len(t.PanAutomation) > 0 {
		envelopes.Add(buildAutomationEnvelope(panTargetID, t.PanAutomation, ids))
	}
	if t.Device == DeviceSimpler && len(t.SampleStartAutomation) > 0 {
		envelopes.Add(buildAutomationEnvelope(sampleStartTargetID, t.SampleStartAutomation, ids))
	}

	deviceChain := El("DeviceChain").Add(
		El("AudioOutputRouting").Add(
			ValueEl("Target", "AudioOut/Main"),
			ValueEl("UpperDisplayString", "Main"),
			ValueEl("LowerDisplayString", ""),
		),
		buildMainSequencer(&t.Clip, ids),
		mixer,
		El("DeviceChain").Add(
			El("Devices").Add(device),
			El("SignalModulations"),
		),
	)

	return El("MidiTrack", "Id", trackID).Add(
		ValueEl("LomId", "0"),
		ValueEl("LomIdView", "0"),
		ValueEl("IsContentSelectedInDocument", "false"),
		ValueEl("PreferredContentViewMode", "0"),
		El("Name").Add(
			ValueEl("EffectiveName", t.Name),
			ValueEl("UserName", t.Name),
			ValueEl("Annotation", ""),
			ValueEl("MemorizedFirstClipName", ""),
		),
		ValueEl("Color", strconv.Itoa(t.Color)),
		El("AutomationEnvelopes").Add(envelopes),
		ValueEl("TrackGroupId", "-1"),
		ValueEl("TrackUnfolded", "false"),
		El("DevicesListWrapper", "LomId", "0"),
		El("ClipSlotsListWrapper", "LomId", "0"),
		ValueEl("ViewData", "{}"),
		El("TakeLanes").Add(
			El("TakeLanes"),
			ValueEl("AreTakeLanesFolded", "true"),
		),
		ValueEl("LinkedTrackGroupId", "-1"),
		El("Recorder").Add(
			ValueEl("IsArmed", "false"),
			ValueEl("TakeCounter", "1"),
		),
		deviceChain,
	)
}

func buildGroupTrack(first *Track, ids *idGen) *Element {
	name := first.Sample.Name

	mixer := El("Mixer").Add(
		ValueEl("LomId", "0"),
		ValueEl("LomIdView", "0"),
		El("Speaker").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "true"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		ValueEl("SoloSink", "false"),
		El("Volume").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "1"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
	)

	return El("GroupTrack", "Id", ids.id()).Add(
		ValueEl("LomId", "0"),
		ValueEl("LomIdView", "0"),
		ValueEl("IsContentSelectedInDocument", "false"),
		ValueEl("PreferredContentViewMode", "0"),
		El("TrackDelay").Add(
			ValueEl("Value", "0"),
			ValueEl("IsValueSampleBased", "false"),
		),
		El("Name").Add(
			ValueEl("EffectiveName", name),
			ValueEl("UserName", name),
			ValueEl("Annotation", ""),
			ValueEl("MemorizedFirstClipName", ""),
		),
		ValueEl("Color", strconv.Itoa(first.Color)),
		El("AutomationEnvelopes").Add(El("Envelopes")),
		ValueEl("TrackGroupId", "-1"),
		ValueEl("TrackUnfolded", "false"),
		El("DevicesListWrapper", "LomId", "0"),
		El("ClipSlotsListWrapper", "LomId", "0"),
		El("ArrangementClipsListWrapper", "LomId", "0"),
		El("TakeLanesListWrapper", "LomId", "0"),
		ValueEl("ViewData", "{}"),
		El("TakeLanes").Add(
			El("TakeLanes"),
			ValueEl("AreTakeLanesFolded", "true"),
		),
		ValueEl("LinkedTrackGroupId", "-1"),
		El("Slots"),
		ValueEl("Freeze", "false"),
		ValueEl("NeedArrangerRefreeze", "true"),
		El("DeviceChain").Add(
			El("AudioOutputRouting").Add(
				ValueEl("Target", "AudioOut/Main"),
				ValueEl("UpperDisplayString", "Main"),
				ValueEl("LowerDisplayString", ""),
			),
			mixer,
			El("DeviceChain").Add(
				El("Devices"),
				El("SignalModulations"),
			),
		),
	)
}

func buildMixer(ids *idGen) (*Element, string) {
	panTargetID := ids.id()
	mixer := El("Mixer").Add(
		ValueEl("LomId", "0"),
		ValueEl("LomIdView", "0"),
		El("Pan").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "0"),
			El("AutomationTarget", "Id", panTargetID).Add(ValueEl("LockEnvelope", "0")),
		),
		El("Volume").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "1"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		El("Speaker").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "true"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		ValueEl("SoloSink", "false"),
	)
	return mixer, panTargetID
}

func buildMainSequencer(clip *Clip, ids *idGen) *Element {
	end := f64(clip.Length)
	midiClip := El("MidiClip", "Id", ids.id(), "Time", "0").Add(
		ValueEl("LomId", "0"),
		ValueEl("CurrentStart", "0"),
		ValueEl("CurrentEnd", end),
		El("Loop").Add(
			ValueEl("LoopStart", "0"),
			ValueEl("LoopEnd", end),
			ValueEl("StartRelative", "0"),
			ValueEl("LoopOn", "true"),
			ValueEl("OutMarker", end),
			ValueEl("HiddenLoopStart", "0"),
			ValueEl("HiddenLoopEnd", end),
		),
		El("Name").Add(ValueEl("EffectiveName", "")),
		ValueEl("Disabled", "false"),
		El("Notes").Add(buildKeyTracks(clip.Notes)),
	)

	return El("MainSequencer").Add(
		El("ClipSlotList"),
		El("ClipTimeable").Add(
			El("ArrangerAutomation").Add(
				El("Events").Add(midiClip),
			),
		),
		El("MidiControllers"),
	)
}

// buildKeyTracks groups notes by MIDI key, ascending, the layout Live
// stores clip notes in.
func buildKeyTracks(notes []Note) *Element {
	byKey := map[int][]Note{}
	for _, n := range notes {
		if n.Key < 0 || n.Key > 127 {
			continue
		}
		byKey[n.Key] = append(byKey[n.Key], n)
	}
	keys := make([]int, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	keyTracks := El("KeyTracks")
	for _, key := range keys {
		notesElem := El("Notes")
		for _, n := range byKey[key] {
			notesElem.Add(El("MidiNoteEvent",
				"Time", f64(n.Start),
				"Duration", f64(n.Duration),
				"Velocity", strconv.Itoa(n.Velocity),
				"OffVelocity", "64",
				"NoteId", "0",
			))
		}
		keyTracks.Add(El("KeyTrack", "Id", strconv.Itoa(key)).Add(
			notesElem,
			ValueEl("MidiKey", strconv.Itoa(key)),
		))
	}
	return keyTracks
}

// buildDevice renders the track's sample device. The second return is
// the Simpler's SampleStart automation target id ("" for Sampler).
func buildDevice(t *Track, ids *idGen) (*Element, string) {
	if t.Device == DeviceSimpler {
		return buildSimpler(t, ids)
	}
	return buildSampler(t, ids), ""
}

func buildSampler(t *Track, ids *idGen) *Element {
	return El("MultiSampler", "Id", ids.id()).Add(
		ValueEl("LomId", "0"),
		ValueEl("LomIdView", "0"),
		El("On").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "true"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		El("Player").Add(buildMultiSampleMap(&t.Sample, ids)),
		buildVolumeAndPan(t.Envelope, ids),
		ValueEl("NumVoices", "0"),
	)
}

func buildSimpler(t *Track, ids *idGen) (*Element, string) {
	sampleStartTargetID := ids.id()

	loopOn := "false"
	if t.Sample.LoopMode != LoopModeOff {
		loopOn = "true"
	}
	// Snap stays on so sample-start jumps land on zero crossings.
	loopModulators := El("LoopModulators").Add(
		ValueEl("IsModulated", "true"),
		El("LoopOn").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", loopOn),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		El("SampleStart").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "0"),
			El("AutomationTarget", "Id", sampleStartTargetID).Add(ValueEl("LockEnvelope", "0")),
		),
		El("Snap").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "true"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
	)

	simpler := El("OriginalSimpler", "Id", ids.id()).Add(
		ValueEl("LomId", "0"),
		ValueEl("LomIdView", "0"),
		El("On").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "true"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		El("Player").Add(buildMultiSampleMap(&t.Sample, ids)),
		loopModulators,
		buildVolumeAndPan(t.Envelope, ids),
		ValueEl("NumVoices", "0"),
	)
	return simpler, sampleStartTargetID
}

func buildMultiSampleMap(s *SampleRef, ids *idGen) *Element {
	sampleEnd := s.Frames - 1
	if sampleEnd < 0 {
		sampleEnd = 0
	}

	sustainLoop := El("SustainLoop").Add(
		ValueEl("Start", strconv.Itoa(s.LoopStart)),
		ValueEl("End", strconv.Itoa(loopEndOr(s, sampleEnd))),
		ValueEl("Mode", strconv.Itoa(s.LoopMode)),
		ValueEl("Crossfade", "0"),
		ValueEl("Detune", "0"),
		ValueEl("LoopOn", boolValue(s.LoopMode != LoopModeOff)),
	)
	releaseLoop := El("ReleaseLoop").Add(
		ValueEl("Start", "0"),
		ValueEl("End", strconv.Itoa(sampleEnd)),
		ValueEl("Mode", "3"),
		ValueEl("Crossfade", "0"),
		ValueEl("Detune", "0"),
	)

	fileRef := El("FileRef").Add(
		ValueEl("RelativePathType", "1"),
		ValueEl("RelativePath", "Samples/"+s.FileName),
		ValueEl("Path", ""),
		ValueEl("Type", "1"),
		ValueEl("LivePackName", ""),
		ValueEl("LivePackId", ""),
		ValueEl("OriginalFileSize", strconv.Itoa(s.ByteSize)),
		ValueEl("OriginalCrc", strconv.Itoa(s.CRC)),
	)
	sampleRef := El("SampleRef").Add(
		fileRef,
		ValueEl("LastModDate", "0"),
		El("SourceContext"),
		ValueEl("SampleUsageHint", "0"),
		ValueEl("DefaultDuration", strconv.Itoa(s.Frames)),
		ValueEl("DefaultSampleRate", "8363"),
	)

	part := El("MultiSamplePart", "Id", ids.id()).Add(
		ValueEl("LomId", "0"),
		ValueEl("Name", s.Name),
		ValueEl("Selection", "true"),
		ValueEl("IsActive", "true"),
		ValueEl("Solo", "false"),
		El("KeyRange").Add(
			ValueEl("Min", "0"),
			ValueEl("Max", "127"),
			ValueEl("CrossfadeMin", "0"),
			ValueEl("CrossfadeMax", "127"),
		),
		El("VelocityRange").Add(
			ValueEl("Min", "1"),
			ValueEl("Max", "127"),
			ValueEl("CrossfadeMin", "1"),
			ValueEl("CrossfadeMax", "127"),
		),
		ValueEl("RootKey", strconv.Itoa(s.RootKey)),
		ValueEl("Detune", f64(s.Detune)),
		ValueEl("TuneScale", "100"),
		ValueEl("Panorama", f64(s.Panorama)),
		ValueEl("Volume", f64(s.Volume)),
		ValueEl("Link", "false"),
		ValueEl("SampleStart", "0"),
		ValueEl("SampleEnd", strconv.Itoa(sampleEnd)),
		sustainLoop,
		releaseLoop,
		sampleRef,
	)

	return El("MultiSampleMap").Add(El("SampleParts").Add(part))
}

func loopEndOr(s *SampleRef, sampleEnd int) int {
	if s.LoopMode == LoopModeOff {
		return sampleEnd
	}
	return s.LoopEnd
}

func buildVolumeAndPan(env *ADSR, ids *idGen) *Element {
	adsr := env
	if adsr == nil {
		// Device defaults: instant attack, full sustain.
		adsr = &ADSR{AttackTime: 0.1, DecayTime: 600, DecayLevel: 1, SustainLevel: 1, ReleaseTime: 50}
	}
	param := func(tag string, v float64) *Element {
		return El(tag).Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", f64(v)),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		)
	}
	envelope := El("Envelope").Add(
		param("AttackTime", adsr.AttackTime),
		param("AttackLevel", adsr.AttackLevel),
		param("AttackSlope", adsr.AttackSlope),
		param("DecayTime", adsr.DecayTime),
		param("DecayLevel", adsr.DecayLevel),
		param("DecaySlope", adsr.DecaySlope),
		param("SustainLevel", adsr.SustainLevel),
		param("ReleaseTime", adsr.ReleaseTime),
		param("ReleaseLevel", adsr.ReleaseLevel),
		param("ReleaseSlope", adsr.ReleaseSlope),
	)
	return El("VolumeAndPan").Add(
		El("Volume").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "-12"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		El("VolumeVelScale").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "0.35"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		El("Panorama").Add(
			ValueEl("LomId", "0"),
			ValueEl("Manual", "0"),
			El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
		),
		envelope,
	)
}

func buildAutomationEnvelope(targetID string, points []BreakPoint, ids *idGen) *Element {
	events := El("Events")
	for _, bp := range points {
		events.Add(El("FloatEvent",
			"Id", ids.id(),
			"Time", f64(bp.Time),
			"Value", f64(bp.Value),
		))
	}
	return El("AutomationEnvelope", "Id", ids.id()).Add(
		El("EnvelopeTarget").Add(ValueEl("PointeeId", targetID)),
		El("Automation").Add(
			events,
			El("AutomationTransformViewState").Add(
				ValueEl("IsTransformPending", "false"),
				El("TimeAndValueTransforms"),
			),
		),
	)
}

func buildMasterTrack(tempo float64, ids *idGen) *Element {
	return El("MasterTrack").Add(
		ValueEl("LomId", "0"),
		El("Name").Add(
			ValueEl("EffectiveName", "Master"),
			ValueEl("UserName", ""),
			ValueEl("Annotation", ""),
		),
		ValueEl("Color", "-1"),
		ValueEl("TrackGroupId", "-1"),
		El("DeviceChain").Add(
			El("Mixer").Add(
				ValueEl("LomId", "0"),
				El("Tempo").Add(
					ValueEl("LomId", "0"),
					ValueEl("Manual", f64(tempo)),
					El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
				),
				El("Volume").Add(
					ValueEl("LomId", "0"),
					ValueEl("Manual", "1"),
					El("AutomationTarget", "Id", ids.id()).Add(ValueEl("LockEnvelope", "0")),
				),
			),
		),
	)
}

func boolValue(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
