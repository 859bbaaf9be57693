package channel

import (
	"context"
	"math/rand/v2"
	"sync"
)

// NoisyConfig configures the corruption applied by a NoisyChannel
type NoisyConfig struct {
	Probability float64 // Chance that a written frame is corrupted, 0..1
	MaxFlips    int     // Upper bound of bits flipped in one corrupted frame (default 1)
	Seed        uint64  // Seed for the pseudo-random source
}

// NoisyChannel wraps a PhysicalChannel and flips bits in outgoing frames.
// Only content is touched; frame boundaries and lengths are preserved.
type NoisyChannel struct {
	inner  PhysicalChannel
	config NoisyConfig

	rngLock sync.Mutex
	rng     *rand.Rand

	stats counters
}

// NewNoisyChannel wraps inner
func NewNoisyChannel(inner PhysicalChannel, config NoisyConfig) *NoisyChannel {
	if config.MaxFlips <= 0 {
		config.MaxFlips = 1
	}
	return &NoisyChannel{
		inner:  inner,
		config: config,
		rng:    rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15)),
	}
}

// Read implements PhysicalChannel.Read
func (n *NoisyChannel) Read(ctx context.Context) ([]byte, error) {
	return n.inner.Read(ctx)
}

// Write implements PhysicalChannel.Write
func (n *NoisyChannel) Write(ctx context.Context, data []byte) error {
	return n.inner.Write(ctx, n.corrupt(data))
}

// corrupt returns data, or a damaged copy of it
func (n *NoisyChannel) corrupt(data []byte) []byte {
	if len(data) == 0 {
		return data
	}

	n.rngLock.Lock()
	defer n.rngLock.Unlock()

	if n.rng.Float64() >= n.config.Probability {
		return data
	}

	out := make([]byte, len(data))
	copy(out, data)

	flips := 1 + n.rng.IntN(n.config.MaxFlips)
	for i := 0; i < flips; i++ {
		pos := n.rng.IntN(len(out) * 8)
		out[pos/8] ^= 1 << uint(pos%8)
	}
	n.stats.bitsFlipped.Add(uint64(flips))
	return out
}

// Close implements PhysicalChannel.Close
func (n *NoisyChannel) Close() error {
	return n.inner.Close()
}

// Statistics implements PhysicalChannel.Statistics. BitsFlipped counts the
// corruption added by this wrapper.
func (n *NoisyChannel) Statistics() TransportStats {
	stats := n.inner.Statistics()
	stats.BitsFlipped += n.stats.bitsFlipped.Load()
	return stats
}
