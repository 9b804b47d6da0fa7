package convert

import (
	"fmt"
	"sort"

	"github.com/xm2live/xm2live/pkg/module"
)

// NoteData is one converted note with its beat timing and any effect
// parameters observed on the source event. Pan and Offset are nil when
// the effect column carried nothing relevant.
type NoteData struct {
	Time     float64
	Duration float64
	Key      int
	Velocity int
	Pan      *int // effect 8xx parameter, 0..255
	Offset   *int // effect 9xx parameter, 0..255
}

// TrackData is one logical output track before device assignment.
type TrackData struct {
	Instrument int
	Channel    int // source channel, -1 for merged tracks
	Name       string
	Color      int
	Notes      []NoteData
}

// channelEvent is the per-channel timeline entry used to compute note
// durations: either a note or a cut marker.
type channelEvent struct {
	note NoteData
	inst int
	stop bool
	time float64
}

// channelPair identifies a (channel, instrument) combination.
type channelPair struct {
	channel int
	inst    int
}

// Durations run to the next event on the channel, capped at four beats;
// a trailing note rings out for four beats.
const maxNoteBeats = 4.0

// Organize converts the module's pattern grid into output tracks.
//
// Per-channel mode creates one track per (channel, instrument) pair in
// the order the pairs first appear while playing through the pattern
// sequence. Merge mode creates one track per instrument, deduplicating
// notes that coincide in time and pitch; overlaps stay as polyphony.
// Instruments without any extracted sample produce no tracks.
func Organize(m *module.Module, samples []SampleFile, merge bool) []TrackData {
	events := collectEvents(m)
	applyDurations(events)

	sampleFor := map[int]*SampleFile{}
	for i := range samples {
		if _, ok := sampleFor[samples[i].Instrument]; !ok {
			sampleFor[samples[i].Instrument] = &samples[i]
		}
	}

	notesByPair, pairOrder := groupByPair(events, sampleFor)
	colors := instrumentColors(pairOrder)

	if merge {
		return mergeTracks(pairOrder, notesByPair, sampleFor, colors)
	}

	var out []TrackData
	for _, p := range pairOrder {
		out = append(out, TrackData{
			Instrument: p.inst,
			Channel:    p.channel,
			Name:       fmt.Sprintf("Ch%d - %s", p.channel+1, sampleFor[p.inst].Name),
			Color:      colors[p.inst],
			Notes:      notesByPair[p],
		})
	}
	return out
}

// groupByPair buckets notes by (channel, instrument) and records the
// order pairs first appear when replaying all channels in time order.
func groupByPair(events map[int][]channelEvent, sampleFor map[int]*SampleFile) (map[channelPair][]NoteData, []channelPair) {
	channels := make([]int, 0, len(events))
	for ch := range events {
		channels = append(channels, ch)
	}
	sort.Ints(channels)

	type flatEvent struct {
		ch int
		ev *channelEvent
	}
	var flat []flatEvent
	for _, ch := range channels {
		timeline := events[ch]
		for i := range timeline {
			if !timeline[i].stop {
				flat = append(flat, flatEvent{ch, &timeline[i]})
			}
		}
	}
	// Stable: simultaneous events keep ascending channel order.
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].ev.time < flat[j].ev.time })

	notesByPair := map[channelPair][]NoteData{}
	var pairOrder []channelPair
	for _, fe := range flat {
		if sampleFor[fe.ev.inst] == nil {
			continue
		}
		p := channelPair{fe.ch, fe.ev.inst}
		if _, seen := notesByPair[p]; !seen {
			pairOrder = append(pairOrder, p)
		}
		notesByPair[p] = append(notesByPair[p], fe.ev.note)
	}
	return notesByPair, pairOrder
}

// instrumentColors assigns palette indices 1..69 round-robin over the
// distinct instruments in ascending id order, so the same instrument
// gets the same color on every run.
func instrumentColors(pairs []channelPair) map[int]int {
	uniq := map[int]bool{}
	for _, p := range pairs {
		uniq[p.inst] = true
	}
	ids := make([]int, 0, len(uniq))
	for id := range uniq {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	colors := map[int]int{}
	for i, id := range ids {
		colors[id] = i%69 + 1
	}
	return colors
}

func mergeTracks(pairOrder []channelPair, notesByPair map[channelPair][]NoteData, sampleFor map[int]*SampleFile, colors map[int]int) []TrackData {
	var instOrder []int
	seen := map[int]bool{}
	for _, p := range pairOrder {
		if !seen[p.inst] {
			seen[p.inst] = true
			instOrder = append(instOrder, p.inst)
		}
	}
	sort.Ints(instOrder)

	var out []TrackData
	for _, inst := range instOrder {
		var all []NoteData
		for _, p := range pairOrder {
			if p.inst == inst {
				all = append(all, notesByPair[p]...)
			}
		}
		sort.SliceStable(all, func(i, j int) bool { return all[i].Time < all[j].Time })
		out = append(out, TrackData{
			Instrument: inst,
			Channel:    -1,
			Name:       fmt.Sprintf("All notes - %s", sampleFor[inst].Name),
			Color:      colors[inst],
			Notes:      dedupeNotes(all),
		})
	}
	return out
}

// dedupeNotes drops notes that duplicate an earlier one at the same
// time (rounded to 4 decimals) and pitch. Input must be time-sorted.
func dedupeNotes(notes []NoteData) []NoteData {
	type key struct {
		time int64
		note int
	}
	seen := map[key]bool{}
	out := notes[:0:0]
	for _, n := range notes {
		k := key{int64(n.Time*10000 + 0.5), n.Key}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}

// collectEvents walks the pattern sequence and emits each channel's
// timeline of notes and cut markers at their absolute beat offsets.
func collectEvents(m *module.Module) map[int][]channelEvent {
	events := map[int][]channelEvent{}
	currentTime := 0.0

	for _, pi := range m.Order {
		if pi >= len(m.Patterns) {
			continue
		}
		p := &m.Patterns[pi]
		for row := range p.Events {
			t := currentTime + RowTime(row)
			for ch := range p.Events[row] {
				ev := &p.Events[row][ch]
				switch m.Format {
				case module.FormatXM:
					collectXMEvent(events, ch, t, ev)
				case module.FormatMOD:
					collectMODEvent(events, ch, t, ev)
				}
			}
		}
		currentTime += float64(p.Rows) / rowsPerBeat
	}
	return events
}

func collectXMEvent(events map[int][]channelEvent, ch int, t float64, ev *module.Event) {
	if ev.Note >= 1 && ev.Note <= 96 && ev.Instrument > 0 {
		volume := 64
		if ev.Volume >= 0 {
			volume = int(ev.Volume)
		}
		n := NoteData{
			Time:     t,
			Key:      XMNoteToMIDI(int(ev.Note)),
			Velocity: XMVelocity(volume),
		}
		if ev.HasEffect {
			switch ev.Effect {
			case 0x08:
				pan := int(ev.EffectParam)
				n.Pan = &pan
			case 0x09:
				off := int(ev.EffectParam)
				n.Offset = &off
			}
		}
		events[ch] = append(events[ch], channelEvent{note: n, inst: int(ev.Instrument), time: t})
		return
	}
	// A bare volume-column zero cuts whatever is ringing.
	if ev.Note == 0 && ev.Volume == 0 {
		events[ch] = append(events[ch], channelEvent{stop: true, time: t})
	}
}

func collectMODEvent(events map[int][]channelEvent, ch int, t float64, ev *module.Event) {
	if ev.Period > 0 && ev.Instrument > 0 {
		key, ok := PeriodToMIDI(int(ev.Period))
		if !ok {
			return
		}
		n := NoteData{
			Time:     t,
			Key:      key,
			Velocity: MODVelocity(64),
		}
		if ev.HasEffect && ev.Effect == 0x09 {
			off := int(ev.EffectParam)
			n.Offset = &off
		}
		events[ch] = append(events[ch], channelEvent{note: n, inst: int(ev.Instrument), time: t})
		return
	}
	// Effect C00 without a note is an explicit cut.
	if ev.HasEffect && ev.Effect == 0x0C && ev.EffectParam == 0 {
		events[ch] = append(events[ch], channelEvent{stop: true, time: t})
	}
}

// applyDurations fills in each note's duration as the gap to the next
// note or cut on its channel, capped at maxNoteBeats.
func applyDurations(events map[int][]channelEvent) {
	for ch := range events {
		timeline := events[ch]
		sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].time < timeline[j].time })
		for i := range timeline {
			if timeline[i].stop {
				continue
			}
			d := maxNoteBeats
			if i+1 < len(timeline) {
				if gap := timeline[i+1].time - timeline[i].time; gap < d {
					d = gap
				}
			}
			timeline[i].note.Duration = d
		}
		events[ch] = timeline
	}
}
