package hydrate

import (
	"errors"
	"fmt"

	"github.com/clydemeng/hydrator/tracing"
)

var (
	ErrStreamOverrun   = errors.New("command stream overrun")
	ErrUnknownCommand  = errors.New("unknown hydrate command")
	ErrCallIndex       = errors.New("call index out of range")
	ErrPatchBounds     = errors.New("patch out of bounds")
	ErrPatchOverflow   = errors.New("patch offset overflow")
	ErrStateUnreadable = errors.New("state read failed")
)

// StreamError locates a failure inside a command stream.
type StreamError struct {
	Pos  int // cursor position of the command's flag byte
	Flag byte
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("hydrate command 0x%02x at %d: %v", e.Flag, e.Pos, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Reason implements tracing.Reasoner.
func (e *StreamError) Reason() tracing.Reason {
	switch {
	case errors.Is(e.Err, ErrStreamOverrun):
		return tracing.ReasonMalformedStream
	case errors.Is(e.Err, ErrUnknownCommand):
		return tracing.ReasonUnknownCommand
	case errors.Is(e.Err, ErrCallIndex):
		return tracing.ReasonCallIndex
	case errors.Is(e.Err, ErrPatchBounds), errors.Is(e.Err, ErrPatchOverflow):
		return tracing.ReasonPatchBounds
	case errors.Is(e.Err, ErrStateUnreadable):
		return tracing.ReasonStateRead
	}
	return tracing.ReasonUnspecified
}
