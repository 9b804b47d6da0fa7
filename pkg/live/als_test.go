package live

import (
	"errors"
	"strconv"
	"testing"
)

func testProject() *Project {
	sample := SampleRef{
		Name:     "kick",
		FileName: "kick.wav",
		Frames:   100,
		ByteSize: 244,
		CRC:      1234,
		RootKey:  60,
		Volume:   0.25,
		LoopMode: LoopModeForward,
		LoopEnd:  99,
	}
	return &Project{
		Title: "demo",
		Tempo: 125,
		Tracks: []*Track{
			{
				Name: "Ch1 - kick", Color: 1, Instrument: 1, Channel: 0,
				Device: DeviceSampler, Sample: sample,
				Clip: Clip{Length: 8, Notes: []Note{
					{Key: 60, Velocity: 127, Start: 0, Duration: 1},
					{Key: 60, Velocity: 100, Start: 2, Duration: 1},
					{Key: 72, Velocity: 90, Start: 1, Duration: 0.5},
				}},
			},
			{
				Name: "Ch2 - kick", Color: 1, Instrument: 1, Channel: 1,
				Device: DeviceSimpler, Sample: sample,
				Clip: Clip{Length: 8, Notes: []Note{{Key: 48, Velocity: 64, Start: 0, Duration: 4}}},
				SampleStartAutomation: []BreakPoint{
					{Time: 0, Value: 0},
					{Time: 0, Value: 0.5},
					{Time: 4, Value: 0.5},
				},
			},
		},
	}
}

func TestSerializeEmptyProject(t *testing.T) {
	if _, err := Serialize(&Project{Tempo: 120}); !errors.Is(err, ErrEmptyProject) {
		t.Errorf("err = %v, want ErrEmptyProject", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	data, err := Serialize(testProject())
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Tag() != "Ableton" {
		t.Fatalf("root = %s", doc.Tag())
	}

	tracks := doc.Find("Tracks")
	if tracks == nil {
		t.Fatal("no Tracks element")
	}
	var tags []string
	for _, c := range tracks.Children {
		tags = append(tags, c.Tag())
	}
	// Two tracks of the same instrument get a group in front of them.
	want := []string{"GroupTrack", "MidiTrack", "MidiTrack"}
	if len(tags) != len(want) {
		t.Fatalf("track tags = %v", tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("track tags = %v, want %v", tags, want)
		}
	}

	// Group membership is recorded on the member tracks.
	groupID := tracks.Children[0].Attr("Id")
	for _, mt := range tracks.Children[1:] {
		if got := mt.Find("TrackGroupId").Attr("Value"); got != groupID {
			t.Errorf("TrackGroupId = %s, want %s", got, groupID)
		}
		if got := mt.Find("AudioOutputRouting").Child("Target").Attr("Value"); got != "AudioOut/GroupTrack" {
			t.Errorf("routing target = %s", got)
		}
	}

	// Tempo lands in the master track's mixer.
	tempo := doc.Find("MasterTrack").Find("Tempo")
	if got := tempo.Child("Manual").Attr("Value"); got != "125" {
		t.Errorf("tempo = %s", got)
	}
}

func TestSerializeNotesGroupedByKey(t *testing.T) {
	data, err := Serialize(testProject())
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}

	first := doc.Find("MidiTrack")
	keyTracks := first.Find("KeyTracks")
	if keyTracks == nil || len(keyTracks.Children) != 2 {
		t.Fatalf("key tracks = %+v", keyTracks)
	}
	// Ascending key order: 60 before 72.
	if got := keyTracks.Children[0].Child("MidiKey").Attr("Value"); got != "60" {
		t.Errorf("first key = %s", got)
	}
	if got := keyTracks.Children[1].Child("MidiKey").Attr("Value"); got != "72" {
		t.Errorf("second key = %s", got)
	}
	if n := len(keyTracks.Children[0].Child("Notes").Children); n != 2 {
		t.Errorf("key 60 has %d notes, want 2", n)
	}

	clip := first.Find("MidiClip")
	if got := clip.Find("CurrentEnd").Attr("Value"); got != "8" {
		t.Errorf("CurrentEnd = %s", got)
	}
}

func TestSerializeSimplerAutomation(t *testing.T) {
	data, err := Serialize(testProject())
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}

	var simplerTrack *Element
	doc.Walk(func(e *Element) {
		if e.Tag() == "MidiTrack" && e.Find("OriginalSimpler") != nil {
			simplerTrack = e
		}
	})
	if simplerTrack == nil {
		t.Fatal("no track with OriginalSimpler")
	}

	targetID := simplerTrack.Find("LoopModulators").Child("SampleStart").Find("AutomationTarget").Attr("Id")
	env := simplerTrack.Find("AutomationEnvelope")
	if env == nil {
		t.Fatal("no automation envelope")
	}
	if got := env.Find("PointeeId").Attr("Value"); got != targetID {
		t.Errorf("PointeeId = %s, want %s", got, targetID)
	}
	if n := len(env.Find("Events").Children); n != 3 {
		t.Errorf("automation events = %d, want 3", n)
	}
	if got := simplerTrack.Find("LoopModulators").Child("IsModulated").Attr("Value"); got != "true" {
		t.Errorf("IsModulated = %s", got)
	}
}

func TestSerializeUniqueIDs(t *testing.T) {
	data, err := Serialize(testProject())
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	max := 0
	doc.Walk(func(e *Element) {
		// KeyTrack ids are MIDI keys, scoped to their clip.
		if e.Tag() == "KeyTrack" {
			return
		}
		id := e.Attr("Id")
		if id == "" {
			return
		}
		if seen[id] {
			t.Errorf("duplicate id %s on %s", id, e.Tag())
		}
		seen[id] = true
		if v, err := strconv.Atoi(id); err == nil && v > max {
			max = v
		}
	})

	np := doc.Find("NextPointeeId")
	if np == nil {
		t.Fatal("no NextPointeeId")
	}
	if v, _ := strconv.Atoi(np.Attr("Value")); v <= max {
		t.Errorf("NextPointeeId %d not past max id %d", v, max)
	}
}

func TestSerializeWithTemplate(t *testing.T) {
	// Build a seed with the default 120 BPM tempo and one placeholder
	// MIDI track, as an exported Live template would carry.
	seedTracks := El("Tracks").Add(
		El("MidiTrack", "Id", "8").Add(ValueEl("TrackGroupId", "-1")),
		El("ReturnTrack", "Id", "9"),
	)
	seed := El("Ableton").Add(El("LiveSet").Add(
		seedTracks,
		El("MasterTrack").Add(El("DeviceChain").Add(El("Mixer").Add(
			El("Tempo").Add(ValueEl("Manual", "120")),
		))),
		ValueEl("NextPointeeId", "100"),
	))
	seedBytes, err := compress(seed)
	if err != nil {
		t.Fatal(err)
	}

	data, err := SerializeWithTemplate(testProject(), seedBytes)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}

	tracks := doc.Find("Tracks")
	var midi, ret int
	retLast := false
	for _, c := range tracks.Children {
		switch c.Tag() {
		case "MidiTrack":
			midi++
			retLast = false
		case "ReturnTrack":
			ret++
			retLast = true
		}
	}
	if midi != 2 || ret != 1 || !retLast {
		t.Errorf("tracks = midi %d, return %d, return last %v", midi, ret, retLast)
	}

	// The seed's 120 default was restamped to the module tempo.
	if got := doc.Find("Tempo").Child("Manual").Attr("Value"); got != "125" {
		t.Errorf("tempo = %s", got)
	}
	if doc.Find("NextPointeeId").Attr("Value") == "100" {
		t.Error("NextPointeeId was not advanced")
	}
}
