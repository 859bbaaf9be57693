package link

import (
	"fmt"
	"sync/atomic"
)

// Statistics tracks link metrics
type Statistics struct {
	framesSent     uint64
	framesReceived uint64
	acksSent       uint64
	nacksSent      uint64
	resends        uint64
	parityFailures uint64
	correctedUnits uint64
}

// Stats is a point-in-time copy of Statistics
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	AcksSent       uint64
	NacksSent      uint64
	Resends        uint64 // Frames sent again after a negative acknowledgment
	ParityFailures uint64 // Received frames rejected by the parity check
	CorrectedUnits uint64 // Coded units repaired by the Hamming decoder
}

// String returns string representation of Stats
func (s Stats) String() string {
	return fmt.Sprintf("tx=%d rx=%d acks=%d nacks=%d resends=%d parity_failures=%d corrected=%d",
		s.FramesSent, s.FramesReceived, s.AcksSent, s.NacksSent, s.Resends, s.ParityFailures, s.CorrectedUnits)
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// IncrementFramesSent increments transmitted frame count
func (s *Statistics) IncrementFramesSent() {
	atomic.AddUint64(&s.framesSent, 1)
}

// IncrementFramesReceived increments received frame count
func (s *Statistics) IncrementFramesReceived() {
	atomic.AddUint64(&s.framesReceived, 1)
}

// IncrementAcksSent increments positive acknowledgment count
func (s *Statistics) IncrementAcksSent() {
	atomic.AddUint64(&s.acksSent, 1)
}

// IncrementNacksSent increments negative acknowledgment count
func (s *Statistics) IncrementNacksSent() {
	atomic.AddUint64(&s.nacksSent, 1)
}

// IncrementResends increments resend count
func (s *Statistics) IncrementResends() {
	atomic.AddUint64(&s.resends, 1)
}

// IncrementParityFailures increments parity failure count
func (s *Statistics) IncrementParityFailures() {
	atomic.AddUint64(&s.parityFailures, 1)
}

// AddCorrectedUnits adds n corrected coded units
func (s *Statistics) AddCorrectedUnits(n int) {
	if n > 0 {
		atomic.AddUint64(&s.correctedUnits, uint64(n))
	}
}

// Snapshot returns the current counters
func (s *Statistics) Snapshot() Stats {
	return Stats{
		FramesSent:     atomic.LoadUint64(&s.framesSent),
		FramesReceived: atomic.LoadUint64(&s.framesReceived),
		AcksSent:       atomic.LoadUint64(&s.acksSent),
		NacksSent:      atomic.LoadUint64(&s.nacksSent),
		Resends:        atomic.LoadUint64(&s.resends),
		ParityFailures: atomic.LoadUint64(&s.parityFailures),
		CorrectedUnits: atomic.LoadUint64(&s.correctedUnits),
	}
}
