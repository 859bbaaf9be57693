package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Plain, false},
		{"plain", Plain, false},
		{"normal", Plain, false},
		{"parity", Parity, false},
		{"PARITY", Parity, false},
		{"hamming", Hamming, false},
		{" hamming ", Hamming, false},
		{"crc", Plain, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownMode) {
				t.Errorf("ParseMode(%q) error = %v, want ErrUnknownMode", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCapacity(t *testing.T) {
	tests := []struct {
		mode Mode
		max  int
		want int
	}{
		{Plain, 1400, 1400},
		{Parity, 1400, 1399},
		{Hamming, 1400, 700},
		{Hamming, 1401, 700},
		{Parity, 4, 3},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			if got := MustNew(tt.mode).Capacity(tt.max); got != tt.want {
				t.Errorf("Capacity(%d) = %d, want %d", tt.max, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hello"),
		[]byte("new_file.txt"),
		bytes.Repeat([]byte{0xFF, 0x00, 0xA5}, 100),
	}

	for _, mode := range []Mode{Plain, Parity, Hamming} {
		c := MustNew(mode)
		t.Run(mode.String(), func(t *testing.T) {
			for _, p := range payloads {
				f, err := c.Encode(p, 1400)
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				if !c.Valid(f) {
					t.Errorf("Valid() = false for freshly encoded frame")
				}
				got, corrected, err := c.Decode(f)
				if err != nil {
					t.Fatalf("Decode() error = %v", err)
				}
				if corrected != 0 {
					t.Errorf("Decode() corrected = %d, want 0", corrected)
				}
				if !bytes.Equal(got, p) {
					t.Errorf("Decode() = % X, want % X", got, p)
				}
			}
		})
	}
}

func TestEncodeFullCapacity(t *testing.T) {
	for _, mode := range []Mode{Plain, Parity, Hamming} {
		c := MustNew(mode)
		t.Run(mode.String(), func(t *testing.T) {
			capacity := c.Capacity(64)
			f, err := c.Encode(make([]byte, capacity), 64)
			if err != nil {
				t.Fatalf("Encode() at capacity error = %v", err)
			}
			if f.Len() > 64 {
				t.Errorf("frame length %d exceeds maximum", f.Len())
			}
			if _, err := c.Encode(make([]byte, capacity+1), 64); err == nil {
				t.Errorf("Encode() beyond capacity should fail")
			}
		})
	}
}

func TestNewUnknownMode(t *testing.T) {
	if _, err := New(Mode(42)); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("New(42) error = %v, want ErrUnknownMode", err)
	}
}
