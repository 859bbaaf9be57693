package channel

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Stream transports carry each frame behind a 2-byte big-endian length
const (
	lengthPrefixSize = 2
	MaxStreamFrame   = 1<<16 - 1
)

// deadliner is the subset of net.Conn and quic.Stream used to interrupt blocking reads
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// writeFrame writes data as one length-prefixed frame
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > MaxStreamFrame {
		return fmt.Errorf("%w: %d bytes", ErrOversize, len(data))
	}
	buf := make([]byte, lengthPrefixSize+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[lengthPrefixSize:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame reads one length-prefixed frame
func readFrame(r io.Reader) ([]byte, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	frame := make([]byte, binary.BigEndian.Uint16(header[:]))
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// readFrameContext reads one frame, unblocking the read when ctx is cancelled.
// A zero timeout waits indefinitely.
func readFrameContext(ctx context.Context, r io.Reader, d deadliner, timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	d.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		d.SetReadDeadline(time.Now())
	})
	defer stop()

	frame, err := readFrame(r)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return frame, err
}
