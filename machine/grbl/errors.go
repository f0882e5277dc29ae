package grbl

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by SendAndAwait once the session has stopped without
// a fatal error.
var ErrClosed = errors.New("grbl: session closed")

// AlarmError is returned when the controller reports an alarm.
type AlarmError struct {
	Line string
}

func (e *AlarmError) Error() string { return "grbl: controller alarm: " + e.Line }

// TransportError wraps an unrecoverable read or write failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("grbl: transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// CommandError is returned when the controller rejects a command with "error:".
type CommandError struct {
	Command string
	Line    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("grbl: command %q rejected: %s", e.Command, e.Line)
}
