package channel

import (
	"context"
	"errors"
)

// PhysicalChannel moves whole frames between the two endpoints of a session.
// Every Write delivers exactly one frame and every Read returns exactly one;
// implementations never merge or split frames.
type PhysicalChannel interface {
	// Read blocks until the next frame arrives or ctx is cancelled
	Read(ctx context.Context) ([]byte, error)

	// Write sends data as a single frame
	Write(ctx context.Context, data []byte) error

	// Close releases the medium and unblocks pending calls
	Close() error

	// Statistics returns transport-level counters
	Statistics() TransportStats
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent     uint64 // Total bytes sent
	BytesReceived uint64 // Total bytes received
	FramesSent    uint64 // Frames written
	FramesRecv    uint64 // Frames read
	WriteErrors   uint64 // Number of write errors
	ReadErrors    uint64 // Number of read errors
	Connects      uint64 // Number of connections (for connection-oriented transports)
	Disconnects   uint64 // Number of disconnections
	BitsFlipped   uint64 // Bits corrupted on purpose (noisy channels only)
}

// ChannelState represents the state of a channel
type ChannelState int

const (
	ChannelStateOpen ChannelState = iota
	ChannelStateClosed
)

// String returns string representation of ChannelState
func (s ChannelState) String() string {
	switch s {
	case ChannelStateOpen:
		return "Open"
	case ChannelStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Errors
var (
	ErrClosed       = errors.New("channel closed")
	ErrNoConnection = errors.New("no connection")
	ErrNoPeer       = errors.New("no peer address available (no data received yet)")
	ErrOversize     = errors.New("frame exceeds transport limit")
	ErrNoAddress    = errors.New("address is required")
)
