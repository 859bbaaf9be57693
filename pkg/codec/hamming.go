package codec

import (
	"avaneesh/rcopy-go/pkg/frame"
)

// Each logical byte becomes a coded unit of two bytes, A then B.
//
//	A: bit0=c2 bit1=d7 bit2=c1 bit3=c0, bits 4-7 unused (zero)
//	B: bit0=d0 bit1=d1 bit2=d2 bit3=d3 bit4=c3 bit5=d4 bit6=d5 bit7=d6
//
// Reading the 12 meaningful positions as A.3 A.2 A.1 A.0 B.7 ... B.0 numbers
// them 1..12, which is why a syndrome s points at A bit 4-s or B bit 12-s.

// UnitSize is the number of coded bytes per logical byte
const UnitSize = 2

// bitPos addresses one bit of a coded unit
type bitPos struct {
	unit uint8 // 0 = A, 1 = B
	bit  uint8
}

// dataPos[i] is where logical bit i is stored
var dataPos = [8]bitPos{
	{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 5}, {1, 6}, {1, 7}, {0, 1},
}

// controlPos[i] is where control bit i is stored
var controlPos = [4]bitPos{
	{0, 3}, {0, 2}, {0, 0}, {1, 4},
}

// controlSets[i] lists the positions checked by control bit i, its own
// storage position first
var controlSets = [4][]bitPos{
	{{0, 3}, {0, 1}, {1, 7}, {1, 5}, {1, 3}, {1, 1}},
	{{0, 2}, {0, 1}, {1, 6}, {1, 5}, {1, 2}, {1, 1}},
	{{0, 0}, {1, 7}, {1, 6}, {1, 5}, {1, 0}},
	{{1, 4}, {1, 3}, {1, 2}, {1, 1}, {1, 0}},
}

var encodeTable [256][UnitSize]byte

func init() {
	for i := 0; i < 256; i++ {
		encodeTable[i] = encodeUnit(byte(i))
	}
}

func getBit(u [UnitSize]byte, p bitPos) byte {
	return (u[p.unit] >> p.bit) & 1
}

func setBit(u *[UnitSize]byte, p bitPos, v byte) {
	if v&1 != 0 {
		u[p.unit] |= 1 << p.bit
	} else {
		u[p.unit] &^= 1 << p.bit
	}
}

// controlSums recomputes every control sum over the unit as it currently is
func controlSums(u [UnitSize]byte) [4]byte {
	var sums [4]byte
	for i, set := range controlSets {
		for _, p := range set {
			sums[i] ^= getBit(u, p)
		}
	}
	return sums
}

// encodeUnit places the data bits, computes the control bits with their own
// positions still zero, then stores them
func encodeUnit(b byte) [UnitSize]byte {
	var u [UnitSize]byte
	for i, p := range dataPos {
		setBit(&u, p, (b>>uint(i))&1)
	}

	controls := controlSums(u)
	for i, p := range controlPos {
		setBit(&u, p, controls[i])
	}
	return u
}

// EncodeByte returns the coded unit for one logical byte
func EncodeByte(b byte) (byte, byte) {
	u := encodeTable[b]
	return u[0], u[1]
}

// Syndrome returns the error syndrome of a received unit, 0 when every
// control sum checks
func Syndrome(a, b byte) int {
	sums := controlSums([UnitSize]byte{a, b})
	s := 0
	for i, v := range sums {
		if v != 0 {
			s += 1 << uint(i)
		}
	}
	return s
}

// CorrectUnit flips the bit named by the unit's syndrome. Syndromes outside
// 1..12 do not name a meaningful position and leave the unit untouched.
func CorrectUnit(a, b byte) (byte, byte, int) {
	s := Syndrome(a, b)
	switch {
	case s >= 1 && s <= 4:
		a ^= 1 << uint(4-s)
	case s >= 5 && s <= 12:
		b ^= 1 << uint(12-s)
	}
	return a, b, s
}

// DecodeUnit extracts the logical byte from a unit without correcting it
func DecodeUnit(a, b byte) byte {
	u := [UnitSize]byte{a, b}
	var out byte
	for i, p := range dataPos {
		out |= getBit(u, p) << uint(i)
	}
	return out
}

// HammingCodec expands every logical byte into a two-byte single-error-correcting unit
type HammingCodec struct{}

// Mode implements Codec
func (HammingCodec) Mode() Mode { return Hamming }

// Capacity implements Codec
func (HammingCodec) Capacity(maxFrame int) int { return maxFrame / UnitSize }

// Encode implements Codec
func (HammingCodec) Encode(payload []byte, maxFrame int) (*frame.Frame, error) {
	f := frame.New(maxFrame)
	for _, b := range payload {
		a, bb := EncodeByte(b)
		if err := f.Append(a, bb); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Valid implements Codec. Errors are corrected on decode, never rejected.
func (HammingCodec) Valid(*frame.Frame) bool { return true }

// Decode implements Codec. Each unit is corrected before extraction; the
// count of units whose syndrome triggered a correction is returned.
func (HammingCodec) Decode(f *frame.Frame) ([]byte, int, error) {
	if f.Len()%UnitSize != 0 {
		return nil, 0, ErrOddLength
	}
	in := f.Bytes()
	out := make([]byte, f.Len()/UnitSize)
	corrected := 0
	for i := range out {
		a, b, s := CorrectUnit(in[UnitSize*i], in[UnitSize*i+1])
		if s >= 1 && s <= 12 {
			corrected++
		}
		out[i] = DecodeUnit(a, b)
	}
	return out, corrected, nil
}
