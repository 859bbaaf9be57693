package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"avaneesh/rcopy-go/pkg/channel"
	"avaneesh/rcopy-go/pkg/codec"
	"avaneesh/rcopy-go/pkg/frame"
	"avaneesh/rcopy-go/pkg/internal/logger"
)

func newTestLink(t *testing.T, mode codec.Mode, maxRetries int) (*Link, *channel.PipeChannel) {
	t.Helper()
	local, peer := channel.Pipe()
	t.Cleanup(func() { local.Close() })

	l, err := New(local, codec.MustNew(mode), Config{
		MaxFrame:   64,
		MaxRetries: maxRetries,
		Logger:     logger.NewNoOpLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, peer
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var (
	nack = []byte("NACK\x00")
	ack  = []byte("ACK\x00")
)

func TestNew_Validation(t *testing.T) {
	a, _ := channel.Pipe()
	defer a.Close()

	if _, err := New(nil, codec.PlainCodec{}, DefaultConfig()); !errors.Is(err, ErrNilChannel) {
		t.Errorf("New(nil channel) error = %v", err)
	}
	if _, err := New(a, nil, DefaultConfig()); !errors.Is(err, ErrNilCodec) {
		t.Errorf("New(nil codec) error = %v", err)
	}
	if _, err := New(a, codec.PlainCodec{}, Config{MaxFrame: 2}); !errors.Is(err, frame.ErrInvalidMaxSize) {
		t.Errorf("New(max 2) error = %v", err)
	}

	l, err := New(a, codec.HammingCodec{}, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if l.MaxFrame() != frame.DefaultMaxSize || l.Capacity() != 700 {
		t.Errorf("MaxFrame() = %d, Capacity() = %d", l.MaxFrame(), l.Capacity())
	}
}

func TestSendAck_Framing(t *testing.T) {
	tests := []struct {
		framing frame.Framing
		want    string
	}{
		{frame.Terminated, "ACK\x00"},
		{frame.Bare, "ACK"},
	}

	for _, tt := range tests {
		t.Run(tt.framing.String(), func(t *testing.T) {
			l, peer := newTestLink(t, codec.Plain, 0)
			ctx := testContext(t)
			if err := l.SendAck(ctx, tt.framing); err != nil {
				t.Fatalf("SendAck() error = %v", err)
			}
			got, err := peer.Read(ctx)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("SendAck() wrote %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSendNack_Length(t *testing.T) {
	l, peer := newTestLink(t, codec.Hamming, 0)
	ctx := testContext(t)
	if err := l.SendNack(ctx); err != nil {
		t.Fatalf("SendNack() error = %v", err)
	}
	got, _ := peer.Read(ctx)
	if len(got) != frame.NackLen || string(got) != "NACK\x00" {
		t.Errorf("SendNack() wrote %q", got)
	}
	if l.Statistics().NacksSent != 1 {
		t.Errorf("NacksSent = %d, want 1", l.Statistics().NacksSent)
	}
}

func TestSendConfirmed_ParityResendsOnNack(t *testing.T) {
	l, peer := newTestLink(t, codec.Parity, 0)
	ctx := testContext(t)

	f, err := l.Encode([]byte("chunk"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 3; i++ {
			got, err := peer.Read(ctx)
			if err != nil {
				done <- err
				return
			}
			if string(got) != string(f.Bytes()) {
				done <- errors.New("resent frame differs from original")
				return
			}
			reply := nack
			if i == 2 {
				reply = ack
			}
			if err := peer.Write(ctx, reply); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	reply, err := l.SendConfirmed(ctx, f)
	if err != nil {
		t.Fatalf("SendConfirmed() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("peer: %v", err)
	}
	if string(reply.Bytes()) != string(ack) {
		t.Errorf("reply = %q, want ACK", reply.Bytes())
	}
	stats := l.Statistics()
	if stats.Resends != 2 || stats.FramesSent != 3 {
		t.Errorf("stats = %v", stats)
	}
}

func TestSendConfirmed_PlainIgnoresReplyContent(t *testing.T) {
	l, peer := newTestLink(t, codec.Plain, 0)
	ctx := testContext(t)

	f, _ := l.Encode([]byte("data"))
	go func() {
		peer.Read(ctx)
		peer.Write(ctx, nack)
	}()

	reply, err := l.SendConfirmed(ctx, f)
	if err != nil {
		t.Fatalf("SendConfirmed() error = %v", err)
	}
	if reply.Len() != frame.NackLen {
		t.Errorf("reply length = %d", reply.Len())
	}
	if l.Statistics().Resends != 0 {
		t.Errorf("Plain mode resent after a NACK-length reply")
	}
}

func TestSendConfirmed_RetryLimit(t *testing.T) {
	l, peer := newTestLink(t, codec.Parity, 2)
	ctx := testContext(t)

	go func() {
		for {
			if _, err := peer.Read(ctx); err != nil {
				return
			}
			if err := peer.Write(ctx, nack); err != nil {
				return
			}
		}
	}()

	f, _ := l.Encode([]byte("x"))
	_, err := l.SendConfirmed(ctx, f)
	if !errors.Is(err, ErrRetryLimit) {
		t.Fatalf("SendConfirmed() error = %v, want ErrRetryLimit", err)
	}
	if l.Statistics().Resends != 2 {
		t.Errorf("Resends = %d, want 2", l.Statistics().Resends)
	}
}

func TestReceiveValid_NacksBadParity(t *testing.T) {
	l, peer := newTestLink(t, codec.Parity, 0)
	ctx := testContext(t)

	good, _ := codec.ParityCodec{}.Encode([]byte("ls ."), 64)
	bad := good.Clone()
	bad.Bytes()[2] ^= 0x04

	go func() {
		peer.Write(ctx, bad.Bytes())
		got, _ := peer.Read(ctx)
		if string(got) != string(nack) {
			return
		}
		peer.Write(ctx, good.Bytes())
	}()

	payload, err := l.ReceivePayload(ctx)
	if err != nil {
		t.Fatalf("ReceivePayload() error = %v", err)
	}
	if string(payload) != "ls ." {
		t.Errorf("ReceivePayload() = %q", payload)
	}
	stats := l.Statistics()
	if stats.ParityFailures != 1 || stats.NacksSent != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestReceiveValid_RetryLimit(t *testing.T) {
	l, peer := newTestLink(t, codec.Parity, 1)
	ctx := testContext(t)

	good, _ := codec.ParityCodec{}.Encode([]byte("a"), 64)
	bad := good.Clone()
	bad.Bytes()[1] ^= 0x01

	go func() {
		for i := 0; i < 2; i++ {
			if err := peer.Write(ctx, bad.Bytes()); err != nil {
				return
			}
			if _, err := peer.Read(ctx); err != nil {
				return
			}
		}
	}()

	if _, err := l.ReceiveValid(ctx); !errors.Is(err, ErrRetryLimit) {
		t.Errorf("ReceiveValid() error = %v, want ErrRetryLimit", err)
	}
}

func TestReceivePayload_HammingCorrects(t *testing.T) {
	l, peer := newTestLink(t, codec.Hamming, 0)
	ctx := testContext(t)

	f, _ := codec.HammingCodec{}.Encode([]byte("cd /tmp"), 64)
	f.Bytes()[3] ^= 0x80
	go peer.Write(ctx, f.Bytes())

	payload, err := l.ReceivePayload(ctx)
	if err != nil {
		t.Fatalf("ReceivePayload() error = %v", err)
	}
	if string(payload) != "cd /tmp" {
		t.Errorf("ReceivePayload() = %q", payload)
	}
	if l.Statistics().CorrectedUnits != 1 {
		t.Errorf("CorrectedUnits = %d, want 1", l.Statistics().CorrectedUnits)
	}
	if l.Statistics().NacksSent != 0 {
		t.Errorf("Hamming mode sent a NACK")
	}
}

func TestReceivePayload_HammingOddLength(t *testing.T) {
	l, peer := newTestLink(t, codec.Hamming, 0)
	ctx := testContext(t)

	go peer.Write(ctx, []byte{0x08, 0x91, 0x08})
	if _, err := l.ReceivePayload(ctx); !errors.Is(err, codec.ErrOddLength) {
		t.Errorf("ReceivePayload() error = %v, want ErrOddLength", err)
	}
}

func TestReceive_Oversize(t *testing.T) {
	l, peer := newTestLink(t, codec.Plain, 0)
	ctx := testContext(t)

	go peer.Write(ctx, make([]byte, 65))
	if _, err := l.Receive(ctx); !errors.Is(err, frame.ErrFrameTooLong) {
		t.Errorf("Receive() error = %v, want ErrFrameTooLong", err)
	}
}

func TestReceive_ChannelClosed(t *testing.T) {
	l, peer := newTestLink(t, codec.Plain, 0)
	peer.Close()
	if _, err := l.Receive(context.Background()); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("Receive() error = %v, want ErrClosed", err)
	}
}
