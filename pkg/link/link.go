// Package link binds a physical channel to a codec and implements the two
// acknowledgment loops every exchange is built from.
package link

import (
	"context"
	"fmt"

	"avaneesh/rcopy-go/pkg/channel"
	"avaneesh/rcopy-go/pkg/codec"
	"avaneesh/rcopy-go/pkg/frame"
	"avaneesh/rcopy-go/pkg/internal/logger"
)

// Link is one codec-aware endpoint of a session. It is not safe for
// concurrent use; the protocol strictly alternates send and receive.
type Link struct {
	ch         channel.PhysicalChannel
	codec      codec.Codec
	maxFrame   int
	maxRetries int
	logger     logger.Logger
	stats      *Statistics
}

// New creates a link over ch using c
func New(ch channel.PhysicalChannel, c codec.Codec, config Config) (*Link, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	if c == nil {
		return nil, ErrNilCodec
	}
	if config.MaxFrame == 0 {
		config.MaxFrame = frame.DefaultMaxSize
	}
	if err := frame.ValidateMaxSize(config.MaxFrame); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = logger.GetDefault()
	}

	return &Link{
		ch:         ch,
		codec:      c,
		maxFrame:   config.MaxFrame,
		maxRetries: config.MaxRetries,
		logger:     config.Logger,
		stats:      NewStatistics(),
	}, nil
}

// Mode returns the codec mode of the link
func (l *Link) Mode() codec.Mode {
	return l.codec.Mode()
}

// Codec returns the codec of the link
func (l *Link) Codec() codec.Codec {
	return l.codec
}

// MaxFrame returns the frame size bound
func (l *Link) MaxFrame() int {
	return l.maxFrame
}

// Capacity returns the logical bytes one frame carries
func (l *Link) Capacity() int {
	return l.codec.Capacity(l.maxFrame)
}

// Statistics returns a snapshot of the link counters
func (l *Link) Statistics() Stats {
	return l.stats.Snapshot()
}

// Channel returns the underlying physical channel
func (l *Link) Channel() channel.PhysicalChannel {
	return l.ch
}

// Encode builds a frame carrying payload under the link's codec
func (l *Link) Encode(payload []byte) (*frame.Frame, error) {
	return l.codec.Encode(payload, l.maxFrame)
}

// Raw builds an uncoded frame
func (l *Link) Raw(b []byte) (*frame.Frame, error) {
	return frame.FromBytes(l.maxFrame, b)
}

// Send writes one frame
func (l *Link) Send(ctx context.Context, f *frame.Frame) error {
	if err := l.ch.Write(ctx, f.Bytes()); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	l.stats.IncrementFramesSent()
	return nil
}

// Receive reads one frame. A frame longer than the link's bound is rejected.
func (l *Link) Receive(ctx context.Context) (*frame.Frame, error) {
	data, err := l.ch.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	f, err := frame.FromBytes(l.maxFrame, data)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	l.stats.IncrementFramesReceived()
	return f, nil
}

// SendAck sends the raw positive acknowledgment with the given framing
func (l *Link) SendAck(ctx context.Context, framing frame.Framing) error {
	f, err := frame.Sentinel(l.maxFrame, frame.WordAck, framing)
	if err != nil {
		return err
	}
	if err := l.Send(ctx, f); err != nil {
		return err
	}
	l.stats.IncrementAcksSent()
	return nil
}

// SendNack sends the raw negative acknowledgment. It is always NUL-terminated,
// which gives it the length the resend loop keys on.
func (l *Link) SendNack(ctx context.Context) error {
	f, err := frame.Sentinel(l.maxFrame, frame.WordNack, frame.Terminated)
	if err != nil {
		return err
	}
	if err := l.Send(ctx, f); err != nil {
		return err
	}
	l.stats.IncrementNacksSent()
	return nil
}

// IsNack reports whether reply is a negative acknowledgment. Only the length
// is compared; the content is never inspected.
func IsNack(reply *frame.Frame) bool {
	return reply.Len() == frame.NackLen
}

// SendConfirmed sends f and returns the peer's reply. See AwaitReply.
func (l *Link) SendConfirmed(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	if err := l.Send(ctx, f); err != nil {
		return nil, err
	}
	return l.AwaitReply(ctx, f)
}

// AwaitReply receives the reply to a frame already sent. In Parity mode it
// resends sent for as long as the reply has the negative acknowledgment's
// length. Other modes accept the first reply without looking at it.
func (l *Link) AwaitReply(ctx context.Context, sent *frame.Frame) (*frame.Frame, error) {
	reply, err := l.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if l.codec.Mode() != codec.Parity {
		return reply, nil
	}

	for attempt := 1; IsNack(reply); attempt++ {
		if l.maxRetries > 0 && attempt > l.maxRetries {
			return nil, fmt.Errorf("%w: %d resends", ErrRetryLimit, l.maxRetries)
		}
		l.logger.Debug("link: negative acknowledgment, resending %d bytes (attempt %d)", sent.Len(), attempt)
		l.stats.IncrementResends()
		if err := l.Send(ctx, sent); err != nil {
			return nil, err
		}
		if reply, err = l.Receive(ctx); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

// ReceiveValid receives frames until one passes the codec's check, answering
// every rejected frame with a negative acknowledgment. Codecs without a check
// accept the first frame.
func (l *Link) ReceiveValid(ctx context.Context) (*frame.Frame, error) {
	f, err := l.Receive(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 1; !l.codec.Valid(f); attempt++ {
		l.stats.IncrementParityFailures()
		if l.maxRetries > 0 && attempt > l.maxRetries {
			return nil, fmt.Errorf("%w: %d rejected frames", ErrRetryLimit, l.maxRetries)
		}
		l.logger.Debug("link: %d-byte frame failed %s check, requesting it again", f.Len(), l.codec.Mode())
		if err := l.SendNack(ctx); err != nil {
			return nil, err
		}
		if f, err = l.Receive(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ReceivePayload receives a valid frame and decodes it
func (l *Link) ReceivePayload(ctx context.Context) ([]byte, error) {
	f, err := l.ReceiveValid(ctx)
	if err != nil {
		return nil, err
	}
	payload, corrected, err := l.codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if corrected > 0 {
		l.logger.Debug("link: corrected %d coded units", corrected)
		l.stats.AddCorrectedUnits(corrected)
	}
	return payload, nil
}

// SendPayload encodes payload, sends it and returns the peer's reply
func (l *Link) SendPayload(ctx context.Context, payload []byte) (*frame.Frame, error) {
	f, err := l.Encode(payload)
	if err != nil {
		return nil, err
	}
	return l.SendConfirmed(ctx, f)
}
