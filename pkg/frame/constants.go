package frame

import "errors"

// Frame sizes
const (
	DefaultMaxSize = 1400 // Default maximum frame size, one datagram on the link
	MinMaxSize     = 4    // Smallest usable maximum (room for a Hamming-coded byte pair and a parity byte)
	MaxMaxSize     = 65535
)

// Control sentinels
const (
	WordAck  = "ACK"  // Positive acknowledgment
	WordNack = "NACK" // Negative acknowledgment
)

// NackLen is the wire length of the negative acknowledgment frame.
// The resend loop compares reply lengths against it and never looks at content.
const NackLen = len(WordNack) + 1

// Framing selects how a sentinel word is laid out on the wire
type Framing int

const (
	Terminated Framing = iota // Word followed by a NUL byte
	Bare                      // Word only
)

// String returns string representation of Framing
func (f Framing) String() string {
	switch f {
	case Terminated:
		return "Terminated"
	case Bare:
		return "Bare"
	default:
		return "Unknown"
	}
}

// Errors
var (
	ErrFrameTooLong   = errors.New("frame too long")
	ErrInvalidMaxSize = errors.New("invalid maximum frame size")
)
