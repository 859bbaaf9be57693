// Package client is the peer side of a session: it sends commands and drives
// the frame exchanges the server expects for each of them.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"avaneesh/rcopy-go/pkg/chunk"
	"avaneesh/rcopy-go/pkg/frame"
	"avaneesh/rcopy-go/pkg/internal/logger"
	"avaneesh/rcopy-go/pkg/link"
	"avaneesh/rcopy-go/pkg/session"
)

// Errors
var (
	ErrBadCount    = errors.New("malformed count field")
	ErrShortSource = errors.New("source shorter than announced size")
)

// Config contains client configuration
type Config struct {
	Logger logger.Logger
}

// Client drives one session from the peer side. Not safe for concurrent use.
type Client struct {
	link   *link.Link
	logger logger.Logger
}

// New creates a client over l
func New(l *link.Link, config Config) (*Client, error) {
	if l == nil {
		return nil, errors.New("client requires a link")
	}
	if config.Logger == nil {
		config.Logger = logger.GetDefault()
	}
	return &Client{
		link:   l,
		logger: config.Logger,
	}, nil
}

// Link returns the client's link
func (c *Client) Link() *link.Link {
	return c.link
}

// command sends the command text and waits for its acknowledgment
func (c *Client) command(ctx context.Context, cmd session.Command, arg string) error {
	f, err := c.link.Encode(session.Text(cmd, arg))
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Keyword(), err)
	}
	if err := c.link.Send(ctx, f); err != nil {
		return fmt.Errorf("%s: %w", cmd.Keyword(), err)
	}

	if _, err := c.link.AwaitReply(ctx, f); err != nil {
		return fmt.Errorf("%s: %w", cmd.Keyword(), err)
	}
	c.logger.Debug("client: %s %q acknowledged", cmd.Keyword(), arg)
	return nil
}

// receive reads one data frame and acknowledges it
func (c *Client) receive(ctx context.Context) ([]byte, error) {
	payload, err := c.link.ReceivePayload(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.link.SendAck(ctx, frame.Terminated); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) receiveNumber(ctx context.Context) (int64, error) {
	payload, err := c.receive(ctx)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(bytes.TrimRight(payload, "\x00")), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadCount, payload)
	}
	return n, nil
}

// List returns the entries of dir on the server, "." and ".." included
func (c *Client) List(ctx context.Context, dir string) ([]string, error) {
	if err := c.command(ctx, session.List, dir); err != nil {
		return nil, err
	}
	count, err := c.receiveNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("ls count: %w", err)
	}

	names := make([]string, 0, count)
	for i := int64(0); i < count; i++ {
		name, err := c.receive(ctx)
		if err != nil {
			return names, fmt.Errorf("ls entry %d: %w", i, err)
		}
		names = append(names, string(name))
	}
	return names, nil
}

// Chdir changes the server's working directory
func (c *Client) Chdir(ctx context.Context, path string) error {
	return c.command(ctx, session.ChangeDirectory, path)
}

// Pull copies the server file at path into w and returns the bytes written
func (c *Client) Pull(ctx context.Context, path string, w io.Writer) (int64, error) {
	if err := c.command(ctx, session.Pull, path); err != nil {
		return 0, err
	}
	size, err := c.receiveNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("cp size: %w", err)
	}
	plan, err := chunk.NewPlan(int(size), c.link.Mode(), c.link.MaxFrame())
	if err != nil {
		return 0, err
	}

	var written int64
	for i := 0; i < plan.Count; i++ {
		data, err := c.receive(ctx)
		if err != nil {
			return written, fmt.Errorf("cp chunk %d/%d: %w", i+1, plan.Count, err)
		}
		n, err := w.Write(data)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	c.logger.Debug("client: pulled %s, %s", path, plan)
	return written, nil
}

// Push sends size bytes of r to the server, which stores them as "new_" + name
func (c *Client) Push(ctx context.Context, name string, r io.Reader, size int64) error {
	plan, err := chunk.NewPlan(int(size), c.link.Mode(), c.link.MaxFrame())
	if err != nil {
		return err
	}
	if err := c.command(ctx, session.Push, name); err != nil {
		return err
	}
	length := append([]byte(strconv.FormatInt(size, 10)), 0)
	if _, err := c.link.SendPayload(ctx, length); err != nil {
		return fmt.Errorf("sn length: %w", err)
	}

	buf := make([]byte, plan.Capacity)
	for i := 0; i < plan.Count; i++ {
		data := buf[:plan.Size(i)]
		if _, err := io.ReadFull(r, data); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrShortSource
			}
			return fmt.Errorf("sn chunk %d/%d: %w", i+1, plan.Count, err)
		}
		if _, err := c.link.SendPayload(ctx, data); err != nil {
			return fmt.Errorf("sn chunk %d/%d: %w", i+1, plan.Count, err)
		}
	}
	c.logger.Debug("client: pushed %s, %s", name, plan)
	return nil
}

// Exit ends the session
func (c *Client) Exit(ctx context.Context) error {
	return c.command(ctx, session.Terminate, "x")
}
