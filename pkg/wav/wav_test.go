package wav

import (
	"errors"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := []int16{0, 32767, -32768, 1234, -1}
	data := Encode(frames, DefaultRate)
	if len(data) != 44+len(frames)*2 {
		t.Fatalf("encoded size = %d", len(data))
	}
	got, rate, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if rate != DefaultRate {
		t.Errorf("rate = %d, want %d", rate, DefaultRate)
	}
	if !reflect.DeepEqual(got, frames) {
		t.Errorf("frames = %v, want %v", got, frames)
	}
}

func TestEncodeEmpty(t *testing.T) {
	data := Encode(nil, DefaultRate)
	got, _, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("frames = %v, want none", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("definitely not audio")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}
