package channel

import "sync/atomic"

// counters is the atomic bookkeeping shared by every channel implementation
type counters struct {
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	framesSent    atomic.Uint64
	framesRecv    atomic.Uint64
	writeErrors   atomic.Uint64
	readErrors    atomic.Uint64
	connects      atomic.Uint64
	disconnects   atomic.Uint64
	bitsFlipped   atomic.Uint64
}

// sent records one successfully written frame
func (c *counters) sent(n int) {
	c.bytesSent.Add(uint64(n))
	c.framesSent.Add(1)
}

// received records one successfully read frame
func (c *counters) received(n int) {
	c.bytesReceived.Add(uint64(n))
	c.framesRecv.Add(1)
}

// snapshot returns the current values
func (c *counters) snapshot() TransportStats {
	return TransportStats{
		BytesSent:     c.bytesSent.Load(),
		BytesReceived: c.bytesReceived.Load(),
		FramesSent:    c.framesSent.Load(),
		FramesRecv:    c.framesRecv.Load(),
		WriteErrors:   c.writeErrors.Load(),
		ReadErrors:    c.readErrors.Load(),
		Connects:      c.connects.Load(),
		Disconnects:   c.disconnects.Load(),
		BitsFlipped:   c.bitsFlipped.Load(),
	}
}

// reset zeroes every counter
func (c *counters) reset() {
	c.bytesSent.Store(0)
	c.bytesReceived.Store(0)
	c.framesSent.Store(0)
	c.framesRecv.Store(0)
	c.writeErrors.Store(0)
	c.readErrors.Store(0)
	c.connects.Store(0)
	c.disconnects.Store(0)
	c.bitsFlipped.Store(0)
}
