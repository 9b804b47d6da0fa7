package module

import "strings"

const (
	xmMagic   = "Extended Module: "
	xmVersion = 0x0104
)

// Packed pattern flag bits.
const (
	xmPackBit   = 0x80
	xmHasNote   = 0x01
	xmHasInst   = 0x02
	xmHasVolume = 0x04
	xmHasEffect = 0x08
	xmHasParam  = 0x10
)

// DetectXM reports whether the buffer starts with the FastTracker 2 magic.
func DetectXM(data []byte) bool {
	return len(data) >= len(xmMagic) && string(data[:len(xmMagic)]) == xmMagic
}

// ParseXM decodes an XM file. Only version 0x0104 (FastTracker 2.04+) is
// accepted; earlier revisions store patterns differently.
func ParseXM(data []byte) (*Module, error) {
	if !DetectXM(data) {
		return nil, ErrUnsupportedFormat
	}
	r := NewReader(data)
	if err := r.Skip(17); err != nil {
		return nil, corrupt("magic", 0, err)
	}
	title, err := r.ReadFixedString(20)
	if err != nil {
		return nil, corrupt("title", r.Pos(), err)
	}
	if err := r.Skip(1 + 20); err != nil { // 0x1A byte + tracker name
		return nil, corrupt("tracker name", r.Pos(), err)
	}
	version, err := r.ReadUint16()
	if err != nil {
		return nil, corrupt("version", r.Pos(), err)
	}
	if version != xmVersion {
		return nil, ErrUnsupportedFormat
	}

	headerStart := r.Pos()
	headerSize, err := r.ReadUint32()
	if err != nil {
		return nil, corrupt("header size", r.Pos(), err)
	}
	songLength, err := r.ReadUint16()
	if err != nil {
		return nil, corrupt("song length", r.Pos(), err)
	}
	restartPos, err := r.ReadUint16()
	if err != nil {
		return nil, corrupt("restart position", r.Pos(), err)
	}
	channels, err := r.ReadUint16()
	if err != nil {
		return nil, corrupt("channel count", r.Pos(), err)
	}
	numPatterns, err := r.ReadUint16()
	if err != nil {
		return nil, corrupt("pattern count", r.Pos(), err)
	}
	numInstruments, err := r.ReadUint16()
	if err != nil {
		return nil, corrupt("instrument count", r.Pos(), err)
	}
	if _, err := r.ReadUint16(); err != nil { // flags
		return nil, corrupt("flags", r.Pos(), err)
	}
	speed, err := r.ReadUint16()
	if err != nil {
		return nil, corrupt("speed", r.Pos(), err)
	}
	bpm, err := r.ReadUint16()
	if err != nil {
		return nil, corrupt("bpm", r.Pos(), err)
	}
	orderTable, err := r.ReadBytes(256)
	if err != nil {
		return nil, corrupt("order table", r.Pos(), err)
	}
	if int(songLength) > len(orderTable) {
		songLength = uint16(len(orderTable))
	}
	order := make([]int, songLength)
	for i := range order {
		order[i] = int(orderTable[i])
	}
	if err := r.Seek(headerStart + int(headerSize)); err != nil {
		return nil, corrupt("header size", headerStart, err)
	}

	m := &Module{
		Format:     FormatXM,
		Title:      title,
		Channels:   int(channels),
		Speed:      int(speed),
		BPM:        int(bpm),
		RestartPos: int(restartPos),
		Order:      order,
	}
	if m.Speed < 1 {
		m.Speed = 1
	}

	m.Patterns = make([]Pattern, numPatterns)
	for pi := 0; pi < int(numPatterns); pi++ {
		p, err := parseXMPattern(r, int(channels))
		if err != nil {
			return nil, err
		}
		m.Patterns[pi] = p
	}

	m.Instruments = make([]Instrument, numInstruments)
	for ii := 0; ii < int(numInstruments); ii++ {
		ins, err := parseXMInstrument(r, ii+1)
		if err != nil {
			return nil, err
		}
		m.Instruments[ii] = ins
	}
	return m, nil
}

func parseXMPattern(r *Reader, channels int) (Pattern, error) {
	patStart := r.Pos()
	headerLen, err := r.ReadUint32()
	if err != nil {
		return Pattern{}, corrupt("pattern header length", r.Pos(), err)
	}
	if err := r.Skip(1); err != nil { // packing type
		return Pattern{}, corrupt("pattern packing type", r.Pos(), err)
	}
	rows, err := r.ReadUint16()
	if err != nil {
		return Pattern{}, corrupt("pattern rows", r.Pos(), err)
	}
	dataSize, err := r.ReadUint16()
	if err != nil {
		return Pattern{}, corrupt("pattern data size", r.Pos(), err)
	}
	if err := r.Seek(patStart + int(headerLen)); err != nil {
		return Pattern{}, corrupt("pattern header length", patStart, err)
	}

	p := Pattern{Rows: int(rows), Events: make([][]Event, rows)}
	for ri := range p.Events {
		p.Events[ri] = make([]Event, channels)
	}
	if dataSize == 0 {
		// Empty pattern, all rows silent.
		return p, nil
	}

	dataEnd := r.Pos() + int(dataSize)
	for ri := 0; ri < int(rows); ri++ {
		for ci := 0; ci < channels; ci++ {
			if r.Pos() >= dataEnd {
				return p, nil
			}
			ev, err := parseXMEvent(r)
			if err != nil {
				return Pattern{}, err
			}
			p.Events[ri][ci] = ev
		}
	}
	if err := r.Seek(dataEnd); err != nil {
		return Pattern{}, corrupt("pattern data", r.Pos(), err)
	}
	return p, nil
}

func parseXMEvent(r *Reader) (Event, error) {
	ev := Event{Volume: -1}
	b, err := r.ReadUint8()
	if err != nil {
		return ev, corrupt("pattern event", r.Pos(), err)
	}
	flags := uint8(xmHasNote | xmHasInst | xmHasVolume | xmHasEffect | xmHasParam)
	if b&xmPackBit != 0 {
		flags = b
	} else {
		ev.Note = b
	}
	read := func(field string) (uint8, error) {
		v, err := r.ReadUint8()
		if err != nil {
			return 0, corrupt(field, r.Pos(), err)
		}
		return v, nil
	}
	if b&xmPackBit != 0 && flags&xmHasNote != 0 {
		if ev.Note, err = read("event note"); err != nil {
			return ev, err
		}
	}
	if flags&xmHasInst != 0 {
		if ev.Instrument, err = read("event instrument"); err != nil {
			return ev, err
		}
	}
	if flags&xmHasVolume != 0 {
		var v uint8
		if v, err = read("event volume"); err != nil {
			return ev, err
		}
		if v >= 0x10 && v <= 0x50 {
			ev.Volume = int8(v - 0x10)
		}
	}
	if flags&xmHasEffect != 0 {
		if ev.Effect, err = read("event effect"); err != nil {
			return ev, err
		}
		ev.HasEffect = true
	}
	if flags&xmHasParam != 0 {
		if ev.EffectParam, err = read("event effect parameter"); err != nil {
			return ev, err
		}
		ev.HasEffect = true
	}
	// Key-off notes behave like silence for sampling purposes.
	if ev.Note > 96 {
		ev.Note = 0
	}
	return ev, nil
}

func parseXMInstrument(r *Reader, id int) (Instrument, error) {
	insStart := r.Pos()
	insSize, err := r.ReadUint32()
	if err != nil {
		return Instrument{}, corrupt("instrument size", r.Pos(), err)
	}
	name, err := r.ReadFixedString(22)
	if err != nil {
		return Instrument{}, corrupt("instrument name", r.Pos(), err)
	}
	if err := r.Skip(1); err != nil { // instrument type, unreliable by spec
		return Instrument{}, corrupt("instrument type", r.Pos(), err)
	}
	numSamples, err := r.ReadUint16()
	if err != nil {
		return Instrument{}, corrupt("instrument sample count", r.Pos(), err)
	}

	ins := Instrument{ID: id, Name: strings.TrimSpace(name)}
	if numSamples == 0 {
		if err := r.Seek(insStart + int(insSize)); err != nil {
			return Instrument{}, corrupt("instrument size", insStart, err)
		}
		return ins, nil
	}

	sampleHeaderSize, err := r.ReadUint32()
	if err != nil {
		return Instrument{}, corrupt("sample header size", r.Pos(), err)
	}
	if err := r.Skip(96); err != nil { // sample keymap
		return Instrument{}, corrupt("sample keymap", r.Pos(), err)
	}

	envPoints := make([]EnvelopePoint, 12)
	for i := range envPoints {
		tick, err := r.ReadUint16()
		if err != nil {
			return Instrument{}, corrupt("envelope point", r.Pos(), err)
		}
		val, err := r.ReadUint16()
		if err != nil {
			return Instrument{}, corrupt("envelope point", r.Pos(), err)
		}
		envPoints[i] = EnvelopePoint{Tick: int(tick), Value: int(val)}
	}
	if err := r.Skip(48); err != nil { // panning envelope points
		return Instrument{}, corrupt("panning envelope", r.Pos(), err)
	}
	numVolPoints, err := r.ReadUint8()
	if err != nil {
		return Instrument{}, corrupt("envelope point count", r.Pos(), err)
	}
	if err := r.Skip(1); err != nil { // panning point count
		return Instrument{}, corrupt("panning point count", r.Pos(), err)
	}
	volSustain, err := r.ReadUint8()
	if err != nil {
		return Instrument{}, corrupt("envelope sustain", r.Pos(), err)
	}
	if err := r.Skip(5); err != nil { // vol/pan loop bounds, pan sustain
		return Instrument{}, corrupt("envelope loop bounds", r.Pos(), err)
	}
	volType, err := r.ReadUint8()
	if err != nil {
		return Instrument{}, corrupt("envelope type", r.Pos(), err)
	}

	if volType&0x01 != 0 && numVolPoints > 0 {
		n := int(numVolPoints)
		if n > len(envPoints) {
			n = len(envPoints)
		}
		env := &Envelope{
			Points:       envPoints[:n],
			SustainIndex: int(volSustain),
			SustainOn:    volType&0x02 != 0,
			LoopOn:       volType&0x04 != 0,
		}
		if env.SustainIndex >= n {
			env.SustainOn = false
		}
		ins.VolumeEnvelope = env
	}

	if err := r.Seek(insStart + int(insSize)); err != nil {
		return Instrument{}, corrupt("instrument size", insStart, err)
	}

	// Sample headers first, then all payloads back to back.
	type xmSampleHeader struct {
		length     int
		loopStart  int
		loopLength int
	}
	headers := make([]xmSampleHeader, numSamples)
	ins.Samples = make([]Sample, numSamples)
	for si := 0; si < int(numSamples); si++ {
		hdrStart := r.Pos()
		length, err := r.ReadUint32()
		if err != nil {
			return Instrument{}, corrupt("sample length", r.Pos(), err)
		}
		loopStart, err := r.ReadUint32()
		if err != nil {
			return Instrument{}, corrupt("sample loop start", r.Pos(), err)
		}
		loopLength, err := r.ReadUint32()
		if err != nil {
			return Instrument{}, corrupt("sample loop length", r.Pos(), err)
		}
		volume, err := r.ReadUint8()
		if err != nil {
			return Instrument{}, corrupt("sample volume", r.Pos(), err)
		}
		finetune, err := r.ReadInt8()
		if err != nil {
			return Instrument{}, corrupt("sample finetune", r.Pos(), err)
		}
		sampleType, err := r.ReadUint8()
		if err != nil {
			return Instrument{}, corrupt("sample type", r.Pos(), err)
		}
		panning, err := r.ReadUint8()
		if err != nil {
			return Instrument{}, corrupt("sample panning", r.Pos(), err)
		}
		relNote, err := r.ReadInt8()
		if err != nil {
			return Instrument{}, corrupt("sample relative note", r.Pos(), err)
		}
		if err := r.Skip(1); err != nil { // reserved
			return Instrument{}, corrupt("sample reserved byte", r.Pos(), err)
		}
		sampleName, err := r.ReadFixedString(22)
		if err != nil {
			return Instrument{}, corrupt("sample name", r.Pos(), err)
		}
		if err := r.Seek(hdrStart + int(sampleHeaderSize)); err != nil {
			return Instrument{}, corrupt("sample header size", hdrStart, err)
		}

		s := Sample{
			Name:         strings.TrimSpace(sampleName),
			Volume:       int(volume),
			Panning:      int(panning),
			Finetune:     int(finetune),
			RelativeNote: int(relNote),
			Encoding:     Enc8Delta,
		}
		if sampleType&0x10 != 0 {
			s.Encoding = Enc16Delta
		}
		switch sampleType & 0x03 {
		case 1:
			s.LoopType = LoopForward
		case 2:
			s.LoopType = LoopPingPong
		}
		headers[si] = xmSampleHeader{
			length:     int(length),
			loopStart:  int(loopStart),
			loopLength: int(loopLength),
		}
		ins.Samples[si] = s
	}

	for si := range ins.Samples {
		s := &ins.Samples[si]
		data, err := r.ReadBytes(headers[si].length)
		if err != nil {
			return Instrument{}, corrupt("sample data", r.Pos(), err)
		}
		s.Data = data

		// Header loop bounds are in bytes, normalize to frames.
		div := 1
		if s.Encoding == Enc16Delta {
			div = 2
		}
		s.LoopStart = headers[si].loopStart / div
		s.LoopLength = headers[si].loopLength / div
		clampLoop(s)
	}
	return ins, nil
}

// clampLoop forces the loop window inside the payload and drops
// degenerate loops entirely.
func clampLoop(s *Sample) {
	frames := s.Frames()
	if s.LoopStart > frames {
		s.LoopStart = frames
	}
	if s.LoopStart+s.LoopLength > frames {
		s.LoopLength = frames - s.LoopStart
	}
	if s.LoopLength <= 0 {
		s.LoopType = LoopNone
		s.LoopStart = 0
		s.LoopLength = 0
	}
	if s.LoopType == LoopNone {
		s.LoopStart = 0
		s.LoopLength = 0
	}
}
