// Package rcopy wires configuration, transports, sessions and clients
// into ready-to-run servers and connections.
package rcopy

import (
	"context"
	"fmt"
	"net"

	"avaneesh/rcopy-go/pkg/channel"
	"avaneesh/rcopy-go/pkg/codec"
	"avaneesh/rcopy-go/pkg/config"
	"avaneesh/rcopy-go/pkg/internal/logger"
	"avaneesh/rcopy-go/pkg/journal"
	"avaneesh/rcopy-go/pkg/link"
	"avaneesh/rcopy-go/pkg/session"
	"avaneesh/rcopy-go/pkg/workspace"
)

// Server owns the resources of one server session: the physical channel,
// the workspace and the optional journal
type Server struct {
	cfg     config.Config
	ch      channel.PhysicalChannel
	session *session.Session
	journal *journal.Journal
	logger  logger.Logger
}

// NewServer binds the configured transport and prepares a session on it
func NewServer(cfg config.Config) (*Server, error) {
	ch, err := OpenChannel(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("open %s channel: %w", cfg.Transport, err)
	}
	return NewServerOn(ch, cfg)
}

// NewServerOn prepares a session on an existing channel. The server takes
// ownership of ch.
func NewServerOn(ch channel.PhysicalChannel, cfg config.Config) (*Server, error) {
	log := logger.GetDefault()
	s := &Server{cfg: cfg, ch: ch, logger: log}

	mode, err := cfg.CodecMode()
	if err != nil {
		s.Close()
		return nil, err
	}
	c, err := codec.New(mode)
	if err != nil {
		s.Close()
		return nil, err
	}
	l, err := link.New(ch, c, link.Config{
		MaxFrame:   cfg.MaxFrame,
		MaxRetries: cfg.MaxRetries,
		Logger:     log,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	ws, err := workspace.NewOS(cfg.Root, cfg.Root)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("workspace: %w", err)
	}

	sessionConfig := session.Config{Logger: log}
	if cfg.Journal != "" {
		if s.journal, err = journal.Open(cfg.Journal); err != nil {
			s.Close()
			return nil, err
		}
		sessionConfig.Recorder = s.journal
	}

	if s.session, err = session.New(l, ws, sessionConfig); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Addr returns the bound address when the transport exposes one
func (s *Server) Addr() net.Addr {
	if a, ok := s.ch.(addresser); ok {
		return a.Addr()
	}
	return nil
}

// Session returns the server session
func (s *Server) Session() *session.Session {
	return s.session
}

// Serve runs the session until the peer exits or the session aborts
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("rcopyd: serving %s over %s on %s, root %q", s.cfg.Mode, s.cfg.Transport, s.cfg.Listen, s.session.Workspace().Dir())
	return s.session.Run(ctx)
}

// Close releases the channel and the journal
func (s *Server) Close() error {
	var firstErr error
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			firstErr = err
		}
	}
	if s.ch != nil {
		if err := s.ch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
