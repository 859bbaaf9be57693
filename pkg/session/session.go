// Package session runs the server side of the protocol: it receives command
// frames, dispatches them and drives each command's frame exchange.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"avaneesh/rcopy-go/pkg/internal/logger"
	"avaneesh/rcopy-go/pkg/journal"
	"avaneesh/rcopy-go/pkg/link"
	"avaneesh/rcopy-go/pkg/workspace"
)

// Recorder persists one entry per executed command
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Config contains optional session collaborators
type Config struct {
	ID           string         // Session identifier, generated when empty
	Logger       logger.Logger  // Defaults to the package default logger
	Recorder     Recorder       // Optional command journal
	OnTransition TransitionFunc // Optional state observer
}

// Session is one server-side session. It owns its working directory through
// the workspace and holds no process-wide state.
type Session struct {
	id           string
	link         *link.Link
	ws           workspace.Workspace
	logger       logger.Logger
	recorder     Recorder
	onTransition TransitionFunc

	state    State
	current  Command
	abortErr error
}

// result describes a completed handler
type result struct {
	bytes  int64
	frames int
}

// New creates a session over l working in ws
func New(l *link.Link, ws workspace.Workspace, config Config) (*Session, error) {
	if l == nil {
		return nil, errors.New("session requires a link")
	}
	if ws == nil {
		return nil, errors.New("session requires a workspace")
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.GetDefault()
	}

	return &Session{
		id:           config.ID,
		link:         l,
		ws:           ws,
		logger:       config.Logger,
		recorder:     config.Recorder,
		onTransition: config.OnTransition,
		state:        AwaitCommand,
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	return s.state
}

// Workspace returns the session's workspace
func (s *Session) Workspace() workspace.Workspace {
	return s.ws
}

// Link returns the session's link
func (s *Session) Link() *link.Link {
	return s.link
}

func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	if s.onTransition != nil {
		s.onTransition(from, to, s.current)
	}
}

// Run processes commands until the peer terminates the session, which
// returns nil, or the session aborts, which returns the cause
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("session %s: started in %s mode", s.id, s.link.Mode())
	defer func() {
		s.logger.Info("session %s: %s, link %s", s.id, s.state, s.link.Statistics())
	}()

	for {
		if err := s.Step(ctx); err != nil {
			return err
		}
		if s.state == Terminated {
			return nil
		}
	}
}

// Step receives and executes exactly one command
func (s *Session) Step(ctx context.Context) error {
	if s.state.Final() {
		return ErrFinished
	}

	payload, err := s.link.ReceivePayload(ctx)
	if err != nil {
		s.abort(fmt.Errorf("awaiting command: %w", err))
		return s.abortErr
	}

	req := ParseRequest(payload)
	s.current = req.Command
	s.transition(Dispatch)
	s.logger.Debug("session %s: %s %q", s.id, req.Token, req.Argument)

	started := time.Now()
	res, err := s.dispatch(ctx, req)
	entry := journal.Entry{
		SessionID: s.id,
		Command:   req.Token,
		Argument:  req.Argument,
		Mode:      s.link.Mode().String(),
		Outcome:   journal.OutcomeOK,
		Bytes:     res.bytes,
		Frames:    res.frames,
		StartedAt: started,
		Duration:  time.Since(started),
	}

	var cmdErr *CommandError
	switch {
	case err == nil && req.Command == Terminate:
		s.record(ctx, entry)
		s.current = Unknown
		s.transition(Terminated)
		return nil

	case err == nil:
		s.record(ctx, entry)
		s.current = Unknown
		s.transition(AwaitCommand)
		return nil

	case errors.As(err, &cmdErr):
		entry.Outcome = journal.OutcomeFailed
		entry.Error = err.Error()
		s.record(ctx, entry)
		s.abort(err)
		return err

	default:
		err = fmt.Errorf("%s %q: %w", req.Token, req.Argument, err)
		entry.Outcome = journal.OutcomeAborted
		entry.Error = err.Error()
		s.record(ctx, entry)
		s.abort(err)
		return err
	}
}

func (s *Session) abort(err error) {
	s.abortErr = err
	s.logger.Error("session %s: aborted: %v", s.id, err)
	s.transition(Aborted)
}

// record writes entry to the journal. Journal failures are logged only.
func (s *Session) record(ctx context.Context, e journal.Entry) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("session %s: journal: %v", s.id, err)
	}
}

func (s *Session) dispatch(ctx context.Context, req Request) (result, error) {
	switch req.Command {
	case List:
		return s.list(ctx, req.Argument)
	case ChangeDirectory:
		return s.changeDirectory(ctx, req.Argument)
	case Pull:
		return s.pull(ctx, req.Argument)
	case Push:
		return s.push(ctx, req.Argument)
	case Terminate:
		return s.terminate(ctx)
	default:
		return result{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Token)
	}
}
