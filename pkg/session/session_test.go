package session_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"avaneesh/rcopy-go/pkg/channel"
	"avaneesh/rcopy-go/pkg/chunk"
	"avaneesh/rcopy-go/pkg/client"
	"avaneesh/rcopy-go/pkg/codec"
	"avaneesh/rcopy-go/pkg/internal/logger"
	"avaneesh/rcopy-go/pkg/journal"
	"avaneesh/rcopy-go/pkg/link"
	"avaneesh/rcopy-go/pkg/session"
	"avaneesh/rcopy-go/pkg/workspace"
)

const testMaxFrame = 64

var modes = []codec.Mode{codec.Plain, codec.Parity, codec.Hamming}

type transition struct {
	from, to session.State
	cmd      session.Command
}

type harness struct {
	session     *session.Session
	dir         string
	transitions []transition
	done        chan error
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newLink(t *testing.T, ch channel.PhysicalChannel, mode codec.Mode) *link.Link {
	t.Helper()
	l, err := link.New(ch, codec.MustNew(mode), link.Config{
		MaxFrame: testMaxFrame,
		Logger:   logger.NewNoOpLogger(),
	})
	if err != nil {
		t.Fatalf("link.New() error = %v", err)
	}
	return l
}

// startSession runs a server session on ch in a temporary workspace
func startSession(t *testing.T, ctx context.Context, ch channel.PhysicalChannel, mode codec.Mode, rec session.Recorder) *harness {
	t.Helper()
	dir := t.TempDir()
	ws, err := workspace.NewOS(dir, "")
	if err != nil {
		t.Fatalf("workspace.NewOS() error = %v", err)
	}

	h := &harness{dir: dir, done: make(chan error, 1)}
	h.session, err = session.New(newLink(t, ch, mode), ws, session.Config{
		Logger:   logger.NewNoOpLogger(),
		Recorder: rec,
		OnTransition: func(from, to session.State, cmd session.Command) {
			h.transitions = append(h.transitions, transition{from, to, cmd})
		},
	})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	go func() { h.done <- h.session.Run(ctx) }()
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

func newClient(t *testing.T, ch channel.PhysicalChannel, mode codec.Mode) *client.Client {
	t.Helper()
	c, err := client.New(newLink(t, ch, mode), client.Config{
		Logger: logger.NewNoOpLogger(),
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/256)
	}
	return b
}

func sendRaw(t *testing.T, ctx context.Context, ch channel.PhysicalChannel, b []byte) {
	t.Helper()
	if err := ch.Write(ctx, b); err != nil {
		t.Fatalf("Write(%q) error = %v", b, err)
	}
}

func readRaw(t *testing.T, ctx context.Context, ch channel.PhysicalChannel) []byte {
	t.Helper()
	b, err := ch.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return b
}

func encode(t *testing.T, mode codec.Mode, payload []byte) []byte {
	t.Helper()
	f, err := codec.MustNew(mode).Encode(payload, testMaxFrame)
	if err != nil {
		t.Fatalf("Encode(%q) error = %v", payload, err)
	}
	return f.Bytes()
}

func expectSilence(t *testing.T, ch channel.PhysicalChannel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if b, err := ch.Read(ctx); err == nil {
		t.Errorf("unexpected frame %q", b)
	}
}

func TestSession_ChangeDirectoryThenExit(t *testing.T) {
	ctx := testContext(t)
	server, peer := channel.Pipe()
	defer peer.Close()
	h := startSession(t, ctx, server, codec.Plain, nil)
	target := os.TempDir()

	sendRaw(t, ctx, peer, session.Text(session.ChangeDirectory, target))
	if got := readRaw(t, ctx, peer); string(got) != "ACK\x00" {
		t.Errorf("cd reply = %q, want %q", got, "ACK\x00")
	}
	expectSilence(t, peer)

	sendRaw(t, ctx, peer, session.Text(session.Terminate, "x"))
	if got := readRaw(t, ctx, peer); string(got) != "ACK" {
		t.Errorf("exit reply = %q, want %q", got, "ACK")
	}

	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	expectSilence(t, peer)

	want := []transition{
		{session.AwaitCommand, session.Dispatch, session.ChangeDirectory},
		{session.Dispatch, session.AwaitCommand, session.Unknown},
		{session.AwaitCommand, session.Dispatch, session.Terminate},
		{session.Dispatch, session.Terminated, session.Unknown},
	}
	if len(h.transitions) != len(want) {
		t.Fatalf("transitions = %+v, want %+v", h.transitions, want)
	}
	for i := range want {
		if h.transitions[i] != want[i] {
			t.Errorf("transition %d = %+v, want %+v", i, h.transitions[i], want[i])
		}
	}
	if h.session.State() != session.Terminated {
		t.Errorf("State() = %s, want Terminated", h.session.State())
	}
	if got := h.session.Workspace().Dir(); got != filepath.Clean(target) {
		t.Errorf("Dir() = %q, want %q", got, target)
	}
	if err := h.session.Run(ctx); !errors.Is(err, session.ErrFinished) {
		t.Errorf("Run() after exit error = %v, want ErrFinished", err)
	}
}

func TestSession_ExitFraming(t *testing.T) {
	tests := []struct {
		mode codec.Mode
		want string
	}{
		{codec.Plain, "ACK"},
		{codec.Parity, "ACK\x00"},
		{codec.Hamming, "ACK"},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			ctx := testContext(t)
			server, peer := channel.Pipe()
			defer peer.Close()
			h := startSession(t, ctx, server, tt.mode, nil)

			sendRaw(t, ctx, peer, encode(t, tt.mode, session.Text(session.Terminate, "x")))
			if got := readRaw(t, ctx, peer); string(got) != tt.want {
				t.Errorf("exit reply = %q, want %q", got, tt.want)
			}
			if err := h.wait(t); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		})
	}
}

func TestSession_ListWireFormat(t *testing.T) {
	tests := []struct {
		mode  codec.Mode
		ack   string
		count func(t *testing.T) []byte
	}{
		{codec.Plain, "ACK\x00", func(t *testing.T) []byte { return []byte("3\x00") }},
		{codec.Parity, "ACK\x00", func(t *testing.T) []byte { return encode(t, codec.Parity, []byte("3")) }},
		{codec.Hamming, "ACK", func(t *testing.T) []byte { return encode(t, codec.Hamming, []byte("3")) }},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			ctx := testContext(t)
			server, peer := channel.Pipe()
			defer peer.Close()
			h := startSession(t, ctx, server, tt.mode, nil)
			writeFile(t, filepath.Join(h.dir, "a.txt"), []byte("a"))

			sendRaw(t, ctx, peer, encode(t, tt.mode, session.Text(session.List, ".")))
			if got := readRaw(t, ctx, peer); string(got) != tt.ack {
				t.Errorf("ls reply = %q, want %q", got, tt.ack)
			}
			if got, want := readRaw(t, ctx, peer), tt.count(t); !bytes.Equal(got, want) {
				t.Errorf("count frame = % x, want % x", got, want)
			}
			sendRaw(t, ctx, peer, []byte("ACK\x00"))

			for _, name := range []string{".", "..", "a.txt"} {
				if got, want := readRaw(t, ctx, peer), encode(t, tt.mode, []byte(name)); !bytes.Equal(got, want) {
					t.Errorf("name frame = % x, want % x", got, want)
				}
				sendRaw(t, ctx, peer, []byte("ACK\x00"))
			}

			sendRaw(t, ctx, peer, encode(t, tt.mode, session.Text(session.Terminate, "x")))
			readRaw(t, ctx, peer)
			if err := h.wait(t); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		})
	}
}

func TestSession_EndToEnd(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := testContext(t)
			server, peer := channel.Pipe()
			defer peer.Close()
			h := startSession(t, ctx, server, mode, nil)
			c := newClient(t, peer, mode)

			source := pattern(2000)
			writeFile(t, filepath.Join(h.dir, "data.bin"), source)
			writeFile(t, filepath.Join(h.dir, "empty"), nil)
			exact := pattern(3 * chunk.Capacity(mode, testMaxFrame))
			writeFile(t, filepath.Join(h.dir, "exact.bin"), exact)
			if err := os.Mkdir(filepath.Join(h.dir, "sub"), 0o755); err != nil {
				t.Fatal(err)
			}

			names, err := c.List(ctx, ".")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			want := []string{".", "..", "data.bin", "empty", "exact.bin", "sub"}
			if len(names) != len(want) {
				t.Fatalf("List() = %q, want %q", names, want)
			}
			for i := range want {
				if names[i] != want[i] {
					t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
				}
			}

			var pulled bytes.Buffer
			n, err := c.Pull(ctx, "data.bin", &pulled)
			if err != nil {
				t.Fatalf("Pull() error = %v", err)
			}
			if n != int64(len(source)) || !bytes.Equal(pulled.Bytes(), source) {
				t.Errorf("Pull() = %d bytes, content equal %v", n, bytes.Equal(pulled.Bytes(), source))
			}

			pulled.Reset()
			if n, err := c.Pull(ctx, "empty", &pulled); err != nil || n != 0 {
				t.Errorf("Pull(empty) = %d, %v", n, err)
			}

			pulled.Reset()
			if n, err := c.Pull(ctx, "exact.bin", &pulled); err != nil || !bytes.Equal(pulled.Bytes(), exact) {
				t.Errorf("Pull(exact.bin) = %d, %v, want %d bytes", n, err, len(exact))
			}

			if err := c.Chdir(ctx, "sub"); err != nil {
				t.Fatalf("Chdir() error = %v", err)
			}
			upload := pattern(777)
			if err := c.Push(ctx, "up.bin", bytes.NewReader(upload), int64(len(upload))); err != nil {
				t.Fatalf("Push() error = %v", err)
			}
			if err := c.Push(ctx, "exact.bin", bytes.NewReader(exact), int64(len(exact))); err != nil {
				t.Fatalf("Push(exact.bin) error = %v", err)
			}

			if err := c.Exit(ctx); err != nil {
				t.Fatalf("Exit() error = %v", err)
			}
			if err := h.wait(t); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			got, err := os.ReadFile(filepath.Join(h.dir, "sub", "new_up.bin"))
			if err != nil {
				t.Fatalf("pushed file: %v", err)
			}
			if !bytes.Equal(got, upload) {
				t.Errorf("pushed content differs, %d bytes, want %d", len(got), len(upload))
			}
			got, err = os.ReadFile(filepath.Join(h.dir, "sub", "new_exact.bin"))
			if err != nil || !bytes.Equal(got, exact) {
				t.Errorf("pushed exact.bin = %d bytes, %v, want %d", len(got), err, len(exact))
			}
		})
	}
}

func TestSession_FailureAfterAckAborts(t *testing.T) {
	tests := []struct {
		name string
		mode codec.Mode
		cmd  session.Command
		arg  string
		ack  string
	}{
		{"cd missing directory", codec.Plain, session.ChangeDirectory, "/definitely/missing", "ACK\x00"},
		{"cd onto file", codec.Parity, session.ChangeDirectory, "file.txt", "ACK\x00"},
		{"cp missing file", codec.Plain, session.Pull, "missing.bin", "ACK\x00"},
		{"cp directory", codec.Hamming, session.Pull, "sub", "ACK\x00"},
		{"ls missing directory", codec.Plain, session.List, "missing-dir", "ACK\x00"},
		{"ls missing directory hamming", codec.Hamming, session.List, "missing-dir", "ACK"},
		{"sn nested name", codec.Plain, session.Push, "a/b", "ACK\x00"},
		{"sn nested name parity", codec.Parity, session.Push, "a/b", "ACK\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			server, peer := channel.Pipe()
			defer peer.Close()

			j, err := journal.Open(":memory:")
			if err != nil {
				t.Fatalf("journal.Open() error = %v", err)
			}
			defer j.Close()

			h := startSession(t, ctx, server, tt.mode, j)
			writeFile(t, filepath.Join(h.dir, "file.txt"), []byte("x"))
			if err := os.Mkdir(filepath.Join(h.dir, "sub"), 0o755); err != nil {
				t.Fatal(err)
			}

			sendRaw(t, ctx, peer, encode(t, tt.mode, session.Text(tt.cmd, tt.arg)))
			if got := readRaw(t, ctx, peer); string(got) != tt.ack {
				t.Errorf("%s reply = %q, want %q", tt.cmd.Keyword(), got, tt.ack)
			}

			err = h.wait(t)
			var cmdErr *session.CommandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("Run() error = %v, want *CommandError", err)
			}
			if cmdErr.Command != tt.cmd || cmdErr.Argument != tt.arg {
				t.Errorf("CommandError = %s %q, want %s %q", cmdErr.Command, cmdErr.Argument, tt.cmd, tt.arg)
			}
			if h.session.State() != session.Aborted {
				t.Errorf("State() = %s, want Aborted", h.session.State())
			}
			expectSilence(t, peer)

			last := h.transitions[len(h.transitions)-1]
			if last != (transition{session.Dispatch, session.Aborted, tt.cmd}) {
				t.Errorf("last transition = %+v", last)
			}

			entries, err := j.BySession(ctx, h.session.ID())
			if err != nil {
				t.Fatalf("BySession() error = %v", err)
			}
			if len(entries) != 1 {
				t.Fatalf("journal has %d entries, want 1", len(entries))
			}
			if entries[0].Command != tt.cmd.Keyword() || entries[0].Outcome != journal.OutcomeFailed || entries[0].Error == "" {
				t.Errorf("entry = %+v", entries[0])
			}
		})
	}
}

func TestSession_UnknownCommandAborts(t *testing.T) {
	ctx := testContext(t)
	server, peer := channel.Pipe()
	defer peer.Close()
	h := startSession(t, ctx, server, codec.Plain, nil)

	sendRaw(t, ctx, peer, []byte("rm -rf\x00"))
	if err := h.wait(t); !errors.Is(err, session.ErrUnknownCommand) {
		t.Errorf("Run() error = %v, want ErrUnknownCommand", err)
	}
	if h.session.State() != session.Aborted {
		t.Errorf("State() = %s, want Aborted", h.session.State())
	}
	expectSilence(t, peer)
}

func TestSession_MalformedLengthAborts(t *testing.T) {
	ctx := testContext(t)
	server, peer := channel.Pipe()
	defer peer.Close()
	h := startSession(t, ctx, server, codec.Plain, nil)

	sendRaw(t, ctx, peer, session.Text(session.Push, "f"))
	if got := readRaw(t, ctx, peer); string(got) != "ACK\x00" {
		t.Errorf("sn reply = %q", got)
	}
	sendRaw(t, ctx, peer, []byte("12a\x00"))
	if err := h.wait(t); !errors.Is(err, session.ErrMalformedLength) {
		t.Errorf("Run() error = %v, want ErrMalformedLength", err)
	}
}

func TestSession_HammingOddLengthAborts(t *testing.T) {
	ctx := testContext(t)
	server, peer := channel.Pipe()
	defer peer.Close()
	h := startSession(t, ctx, server, codec.Hamming, nil)

	sendRaw(t, ctx, peer, []byte{0x08, 0x91, 0x08})
	if err := h.wait(t); !errors.Is(err, codec.ErrOddLength) {
		t.Errorf("Run() error = %v, want ErrOddLength", err)
	}
}

func TestSession_TransportFailureAborts(t *testing.T) {
	ctx := testContext(t)
	server, peer := channel.Pipe()
	h := startSession(t, ctx, server, codec.Parity, nil)

	peer.Close()
	if err := h.wait(t); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("Run() error = %v, want ErrClosed", err)
	}
	if h.session.State() != session.Aborted {
		t.Errorf("State() = %s, want Aborted", h.session.State())
	}
}

func TestSession_NoisyParityConverges(t *testing.T) {
	ctx := testContext(t)
	server, peer := channel.Pipe()
	defer peer.Close()
	noisyServer := channel.NewNoisyChannel(server, channel.NoisyConfig{Probability: 0.3, MaxFlips: 1, Seed: 7})
	noisyPeer := channel.NewNoisyChannel(peer, channel.NoisyConfig{Probability: 0.3, MaxFlips: 1, Seed: 11})

	h := startSession(t, ctx, noisyServer, codec.Parity, nil)
	c := newClient(t, noisyPeer, codec.Parity)

	source := pattern(3000)
	writeFile(t, filepath.Join(h.dir, "noisy.bin"), source)

	var pulled bytes.Buffer
	if _, err := c.Pull(ctx, "noisy.bin", &pulled); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if !bytes.Equal(pulled.Bytes(), source) {
		t.Errorf("pulled content differs")
	}
	if err := c.Push(ctx, "back.bin", bytes.NewReader(source), int64(len(source))); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := c.Exit(ctx); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(h.dir, "new_back.bin"))
	if err != nil || !bytes.Equal(got, source) {
		t.Errorf("pushed content differs, err = %v", err)
	}

	serverStats := h.session.Link().Statistics()
	clientStats := c.Link().Statistics()
	if serverStats.Resends+clientStats.Resends == 0 {
		t.Errorf("no resends under noise: server %s, client %s", serverStats, clientStats)
	}
}

func TestSession_NoisyHammingCorrects(t *testing.T) {
	ctx := testContext(t)
	server, peer := channel.Pipe()
	defer peer.Close()
	noisyServer := channel.NewNoisyChannel(server, channel.NoisyConfig{Probability: 0.5, MaxFlips: 1, Seed: 3})
	noisyPeer := channel.NewNoisyChannel(peer, channel.NoisyConfig{Probability: 0.5, MaxFlips: 1, Seed: 5})

	h := startSession(t, ctx, noisyServer, codec.Hamming, nil)
	c := newClient(t, noisyPeer, codec.Hamming)

	source := pattern(1500)
	writeFile(t, filepath.Join(h.dir, "noisy.bin"), source)

	var pulled bytes.Buffer
	if _, err := c.Pull(ctx, "noisy.bin", &pulled); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if !bytes.Equal(pulled.Bytes(), source) {
		t.Errorf("pulled content differs")
	}
	if err := c.Push(ctx, "back.bin", bytes.NewReader(source), int64(len(source))); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := c.Exit(ctx); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(h.dir, "new_back.bin"))
	if err != nil || !bytes.Equal(got, source) {
		t.Errorf("pushed content differs, err = %v", err)
	}
	if c.Link().Statistics().CorrectedUnits == 0 || h.session.Link().Statistics().CorrectedUnits == 0 {
		t.Errorf("expected corrections on both ends")
	}
}
