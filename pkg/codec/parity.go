package codec

import (
	"math/bits"

	"avaneesh/rcopy-go/pkg/frame"
)

// ParityCodec prefixes the payload with a control byte whose bit 0 carries
// the parity of the payload
type ParityCodec struct{}

// ParityOf computes the two-level parity of payload: the XOR of every byte's
// own population-count parity
func ParityOf(payload []byte) byte {
	var p byte
	for _, b := range payload {
		p ^= byte(bits.OnesCount8(b) & 1)
	}
	return p
}

// Mode implements Codec
func (ParityCodec) Mode() Mode { return Parity }

// Capacity implements Codec
func (ParityCodec) Capacity(maxFrame int) int { return maxFrame - 1 }

// Encode implements Codec
func (ParityCodec) Encode(payload []byte, maxFrame int) (*frame.Frame, error) {
	f := frame.New(maxFrame)
	// All control bits other than bit 0 stay cleared
	if err := f.Append(ParityOf(payload)); err != nil {
		return nil, err
	}
	if err := f.Append(payload...); err != nil {
		return nil, err
	}
	return f, nil
}

// Valid implements Codec
func (ParityCodec) Valid(f *frame.Frame) bool {
	if f.Len() < 1 {
		return false
	}
	b := f.Bytes()
	return ParityOf(b[1:]) == b[0]&1
}

// Decode implements Codec. The payload is returned unchanged; parity never corrects.
func (ParityCodec) Decode(f *frame.Frame) ([]byte, int, error) {
	if f.Len() < 1 {
		return nil, 0, ErrShortFrame
	}
	out := make([]byte, f.Len()-1)
	copy(out, f.Bytes()[1:])
	return out, 0, nil
}
