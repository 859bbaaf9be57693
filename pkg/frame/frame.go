package frame

import (
	"fmt"
)

// Frame is one bounded, length-tagged unit exchanged by a single transport call
type Frame struct {
	data []byte
	max  int
}

// New creates an empty frame that can hold at most max bytes
func New(max int) *Frame {
	return &Frame{
		data: make([]byte, 0, max),
		max:  max,
	}
}

// FromBytes creates a frame holding a copy of b
func FromBytes(max int, b []byte) (*Frame, error) {
	f := New(max)
	if err := f.Append(b...); err != nil {
		return nil, err
	}
	return f, nil
}

// Sentinel builds a raw acknowledgment frame for word using the given framing
func Sentinel(max int, word string, framing Framing) (*Frame, error) {
	f := New(max)
	if err := f.Append([]byte(word)...); err != nil {
		return nil, err
	}
	if framing == Terminated {
		if err := f.Append(0); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Append writes b at the end of the frame
func (f *Frame) Append(b ...byte) error {
	if len(f.data)+len(b) > f.max {
		return fmt.Errorf("%w: %d bytes exceed maximum of %d", ErrFrameTooLong, len(f.data)+len(b), f.max)
	}
	f.data = append(f.data, b...)
	return nil
}

// Len returns the current frame length
func (f *Frame) Len() int {
	return len(f.data)
}

// Cap returns the maximum frame length
func (f *Frame) Cap() int {
	return f.max
}

// Bytes returns the frame content. The slice aliases the frame.
func (f *Frame) Bytes() []byte {
	return f.data
}

// Clone creates a deep copy of the frame
func (f *Frame) Clone() *Frame {
	data := make([]byte, len(f.data), f.max)
	copy(data, f.data)
	return &Frame{data: data, max: f.max}
}

// String returns a string representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Len=%d, Cap=%d}", len(f.data), f.max)
}

// ValidateMaxSize checks a configured maximum frame size
func ValidateMaxSize(max int) error {
	if max < MinMaxSize || max > MaxMaxSize {
		return fmt.Errorf("%w: %d (must be %d..%d)", ErrInvalidMaxSize, max, MinMaxSize, MaxMaxSize)
	}
	return nil
}
