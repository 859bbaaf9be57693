package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"avaneesh/rcopy-go/pkg/chunk"
	"avaneesh/rcopy-go/pkg/codec"
	"avaneesh/rcopy-go/pkg/frame"
	"avaneesh/rcopy-go/pkg/workspace"
)

// list sends the entry count and then every entry name of dir
func (s *Session) list(ctx context.Context, dir string) (result, error) {
	if dir == "" {
		dir = "."
	}
	framing := frame.Terminated
	if s.link.Mode() == codec.Hamming {
		framing = frame.Bare
	}
	if err := s.link.SendAck(ctx, framing); err != nil {
		return result{}, err
	}

	names, err := s.ws.List(dir)
	if err != nil {
		return result{}, &CommandError{Command: List, Argument: dir, Err: err}
	}

	count := strconv.Itoa(len(names))
	var f *frame.Frame
	if s.link.Mode() == codec.Plain {
		f, err = s.link.Raw(append([]byte(count), 0))
	} else {
		f, err = s.link.Encode([]byte(count))
	}
	if err != nil {
		return result{}, err
	}
	if _, err := s.link.SendConfirmed(ctx, f); err != nil {
		return result{}, err
	}

	res := result{frames: 1}
	for _, name := range names {
		if _, err := s.link.SendPayload(ctx, []byte(name)); err != nil {
			return res, fmt.Errorf("entry %q: %w", name, err)
		}
		res.frames++
	}
	s.logger.Debug("session %s: listed %d entries of %s", s.id, len(names), dir)
	return res, nil
}

// changeDirectory acknowledges the command and then changes directory
func (s *Session) changeDirectory(ctx context.Context, path string) (result, error) {
	if err := s.link.SendAck(ctx, frame.Terminated); err != nil {
		return result{}, err
	}
	if err := s.ws.Chdir(path); err != nil {
		return result{}, &CommandError{Command: ChangeDirectory, Argument: path, Err: err}
	}
	s.logger.Debug("session %s: working directory %s", s.id, s.ws.Dir())
	return result{}, nil
}

// pull sends the size of path and then its content
func (s *Session) pull(ctx context.Context, path string) (result, error) {
	if err := s.link.SendAck(ctx, frame.Terminated); err != nil {
		return result{}, err
	}

	file, size, err := s.ws.Open(path)
	if err != nil {
		return result{}, &CommandError{Command: Pull, Argument: path, Err: err}
	}
	defer file.Close()

	plan, err := chunk.NewPlan(int(size), s.link.Mode(), s.link.MaxFrame())
	if err != nil {
		return result{}, err
	}
	if _, err := s.link.SendPayload(ctx, []byte(strconv.FormatInt(size, 10))); err != nil {
		return result{}, fmt.Errorf("size: %w", err)
	}

	res := result{frames: 1}
	buf := make([]byte, plan.Capacity)
	for i := 0; i < plan.Count; i++ {
		data := buf[:plan.Size(i)]
		if _, err := io.ReadFull(file, data); err != nil {
			return res, &CommandError{Command: Pull, Argument: path, Err: fmt.Errorf("read chunk %d: %w", i, err)}
		}
		if _, err := s.link.SendPayload(ctx, data); err != nil {
			return res, fmt.Errorf("chunk %d/%d: %w", i+1, plan.Count, err)
		}
		res.bytes += int64(len(data))
		res.frames++
	}
	s.logger.Debug("session %s: sent %s, %s", s.id, path, plan)
	return res, nil
}

// push receives a length and then that many bytes into "new_" + name
func (s *Session) push(ctx context.Context, name string) (result, error) {
	if err := s.link.SendAck(ctx, frame.Terminated); err != nil {
		return result{}, err
	}

	target := workspace.PushName(name)
	file, err := s.ws.Create(target)
	if err != nil {
		return result{}, &CommandError{Command: Push, Argument: name, Err: err}
	}
	defer file.Close()

	payload, err := s.link.ReceivePayload(ctx)
	if err != nil {
		return result{}, fmt.Errorf("length: %w", err)
	}
	size, err := parseLength(payload)
	if err != nil {
		return result{}, err
	}
	plan, err := chunk.NewPlan(int(size), s.link.Mode(), s.link.MaxFrame())
	if err != nil {
		return result{}, err
	}
	if err := s.link.SendAck(ctx, frame.Terminated); err != nil {
		return result{}, err
	}

	framing := frame.Bare
	if s.link.Mode() == codec.Parity {
		framing = frame.Terminated
	}

	res := result{frames: 1}
	for i := 0; i < plan.Count; i++ {
		data, err := s.link.ReceivePayload(ctx)
		if err != nil {
			return res, fmt.Errorf("chunk %d/%d: %w", i+1, plan.Count, err)
		}
		if _, err := file.Write(data); err != nil {
			return res, &CommandError{Command: Push, Argument: name, Err: err}
		}
		if err := s.link.SendAck(ctx, framing); err != nil {
			return res, err
		}
		res.bytes += int64(len(data))
		res.frames++
	}
	if err := file.Close(); err != nil {
		return res, &CommandError{Command: Push, Argument: name, Err: err}
	}
	s.logger.Debug("session %s: received %s, %s", s.id, target, plan)
	return res, nil
}

// terminate acknowledges exit
func (s *Session) terminate(ctx context.Context) (result, error) {
	var framing frame.Framing
	switch s.link.Mode() {
	case codec.Parity:
		framing = frame.Terminated
	case codec.Plain:
		framing = frame.Bare
	case codec.Hamming:
		framing = frame.Bare
	}
	return result{}, s.link.SendAck(ctx, framing)
}

// parseLength decodes the decimal length field of a push. One trailing NUL
// is accepted.
func parseLength(payload []byte) (int64, error) {
	text := bytes.TrimSuffix(payload, []byte{0})
	if len(text) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrMalformedLength)
	}
	n, err := strconv.ParseInt(string(text), 10, 64)
	if err != nil || n < 0 || text[0] == '+' {
		return 0, fmt.Errorf("%w: %q", ErrMalformedLength, payload)
	}
	return n, nil
}
