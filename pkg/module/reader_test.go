package module

import (
	"errors"
	"testing"
)

func TestReaderTypedReads(t *testing.T) {
	r := NewReader([]byte{0x01, 0xFF, 0x34, 0x12, 0x12, 0x34, 0x78, 0x56, 0x34, 0x12})

	if v, err := r.ReadUint8(); err != nil || v != 0x01 {
		t.Fatalf("ReadUint8 = %d, %v", v, err)
	}
	if v, err := r.ReadInt8(); err != nil || v != -1 {
		t.Fatalf("ReadInt8 = %d, %v", v, err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x1234 {
		t.Fatalf("ReadUint16 = %#x, %v", v, err)
	}
	if v, err := r.ReadUint16BE(); err != nil || v != 0x1234 {
		t.Fatalf("ReadUint16BE = %#x, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0x12345678 {
		t.Fatalf("ReadUint32 = %#x, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("Remaining = %d, want 0", r.Remaining())
	}
}

func TestReaderOutOfBounds(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadUint16(); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("ReadUint16 on short buffer: err = %v, want ErrOutOfBounds", err)
	}
	// Cursor does not advance on a failed read.
	if v, err := r.ReadUint8(); err != nil || v != 0x01 {
		t.Fatalf("ReadUint8 after failed read = %d, %v", v, err)
	}
	if err := r.Seek(2); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("Seek past end: err = %v, want ErrOutOfBounds", err)
	}
	if err := r.Skip(5); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("Skip past end: err = %v, want ErrOutOfBounds", err)
	}
}

func TestReadFixedString(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"nul padded", []byte{'a', 'b', 'c', 0, 0, 0}, "abc"},
		{"space padded", []byte{'a', 'b', ' ', ' ', ' ', ' '}, "ab"},
		{"control bytes", []byte{'a', 0x01, 'b', 0, 0, 0}, "a b"},
		{"empty", []byte{0, 0, 0, 0, 0, 0}, ""},
		{"nul terminator mid-field", []byte{'h', 'i', 0, 'x', 'x', 'x'}, "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.in)
			got, err := r.ReadFixedString(len(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ReadFixedString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReaderRest(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	if _, err := r.ReadUint16(); err != nil {
		t.Fatal(err)
	}
	rest := r.Rest()
	if len(rest) != 2 || rest[0] != 3 || rest[1] != 4 {
		t.Fatalf("Rest = %v, want [3 4]", rest)
	}
	if r.Remaining() != 0 {
		t.Fatalf("Remaining after Rest = %d", r.Remaining())
	}
}
