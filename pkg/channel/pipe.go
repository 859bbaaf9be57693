package channel

import (
	"context"
	"sync"
)

// PipeChannel is one end of an in-memory frame pipe
type PipeChannel struct {
	in  <-chan []byte
	out chan<- []byte

	stats counters

	done      chan struct{}
	closeOnce *sync.Once
}

// Pipe returns two connected in-memory channels. Frames written to one end are
// read from the other in order. Closing either end closes both.
func Pipe() (*PipeChannel, *PipeChannel) {
	aToB := make(chan []byte, 16)
	bToA := make(chan []byte, 16)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &PipeChannel{in: bToA, out: aToB, done: done, closeOnce: once}
	b := &PipeChannel{in: aToB, out: bToA, done: done, closeOnce: once}
	a.stats.connects.Add(1)
	b.stats.connects.Add(1)
	return a, b
}

// Read implements PhysicalChannel.Read
func (p *PipeChannel) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	case frame := <-p.in:
		p.stats.received(len(frame))
		return frame, nil
	}
}

// Write implements PhysicalChannel.Write
func (p *PipeChannel) Write(ctx context.Context, data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		p.stats.writeErrors.Add(1)
		return ErrClosed
	case p.out <- frame:
		p.stats.sent(len(frame))
		return nil
	}
}

// Close implements PhysicalChannel.Close
func (p *PipeChannel) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.stats.disconnects.Add(1)
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (p *PipeChannel) Statistics() TransportStats {
	return p.stats.snapshot()
}

// ResetStatistics zeroes the counters of this end
func (p *PipeChannel) ResetStatistics() {
	p.stats.reset()
}
