package rcopy

import (
	"fmt"

	"avaneesh/rcopy-go/pkg/channel"
	"avaneesh/rcopy-go/pkg/client"
	"avaneesh/rcopy-go/pkg/codec"
	"avaneesh/rcopy-go/pkg/config"
	"avaneesh/rcopy-go/pkg/internal/logger"
	"avaneesh/rcopy-go/pkg/link"
)

// Conn is a client bound to the physical channel it owns
type Conn struct {
	*client.Client
	ch channel.PhysicalChannel
}

// Dial opens the configured transport towards cfg.Remote
func Dial(cfg config.Config) (*Conn, error) {
	ch, err := OpenChannel(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("open %s channel: %w", cfg.Transport, err)
	}
	conn, err := NewConn(ch, cfg)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return conn, nil
}

// NewConn creates a client on an existing channel
func NewConn(ch channel.PhysicalChannel, cfg config.Config) (*Conn, error) {
	mode, err := cfg.CodecMode()
	if err != nil {
		return nil, err
	}
	l, err := link.New(ch, codec.MustNew(mode), link.Config{
		MaxFrame:   cfg.MaxFrame,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger.GetDefault(),
	})
	if err != nil {
		return nil, err
	}
	c, err := client.New(l, client.Config{Logger: logger.GetDefault()})
	if err != nil {
		return nil, err
	}
	return &Conn{Client: c, ch: ch}, nil
}

// Close closes the channel
func (c *Conn) Close() error {
	return c.ch.Close()
}
