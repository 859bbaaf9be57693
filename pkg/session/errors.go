package session

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMalformedLength = errors.New("malformed length field")
	ErrFinished        = errors.New("session already finished")
)

// CommandError reports a filesystem failure after the command was
// acknowledged. The session aborts.
type CommandError struct {
	Command  Command
	Argument string
	Err      error
}

// Error implements error
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Command.Keyword(), e.Argument, e.Err)
}

// Unwrap returns the collaborator error
func (e *CommandError) Unwrap() error {
	return e.Err
}
