// Package chunk plans how a transfer of N logical bytes is cut into frames
// under a codec's per-frame overhead.
package chunk

import (
	"errors"
	"fmt"

	"avaneesh/rcopy-go/pkg/codec"
)

// Errors
var (
	ErrNoCapacity    = errors.New("codec leaves no payload capacity in frame")
	ErrNegativeTotal = errors.New("negative transfer length")
)

// Capacity returns the number of logical bytes one frame carries in mode
func Capacity(mode codec.Mode, maxFrame int) int {
	c, err := codec.New(mode)
	if err != nil {
		return 0
	}
	return c.Capacity(maxFrame)
}

// Count returns ceil(n / capacity), the number of frames needed for n bytes
func Count(n, capacity int) int {
	if n <= 0 || capacity <= 0 {
		return 0
	}
	count := n / capacity
	if n%capacity != 0 {
		count++
	}
	return count
}

// Plan describes a transfer before any frame is exchanged
type Plan struct {
	Total    int // Logical bytes to move
	Capacity int // Logical bytes per frame
	Count    int // Frames to exchange
}

// NewPlan computes the plan for total bytes in mode
func NewPlan(total int, mode codec.Mode, maxFrame int) (Plan, error) {
	if total < 0 {
		return Plan{}, fmt.Errorf("%w: %d", ErrNegativeTotal, total)
	}
	capacity := Capacity(mode, maxFrame)
	if capacity <= 0 {
		return Plan{}, fmt.Errorf("%w: mode %s, max frame %d", ErrNoCapacity, mode, maxFrame)
	}
	return Plan{
		Total:    total,
		Capacity: capacity,
		Count:    Count(total, capacity),
	}, nil
}

// Size returns the logical length of chunk i, 0 when i is outside the plan
func (p Plan) Size(i int) int {
	if i < 0 || i >= p.Count {
		return 0
	}
	if i < p.Count-1 {
		return p.Capacity
	}
	return p.Total - p.Capacity*(p.Count-1)
}

// String returns string representation of Plan
func (p Plan) String() string {
	return fmt.Sprintf("Plan{Total=%d, Capacity=%d, Count=%d}", p.Total, p.Capacity, p.Count)
}
