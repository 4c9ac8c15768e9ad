package tracing

import "errors"

// Reason is a description of why a hydrate-and-execute invocation failed.
// Off-chain tooling uses it to tell parsing errors from dispatch errors from
// sweep errors without matching on message text.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnspecified
	ReasonDecode          // packed batch or extension data could not be decoded
	ReasonMalformedStream // command stream ended in the middle of a command
	ReasonUnknownCommand
	ReasonCallIndex // command referenced a call that is not in the batch
	ReasonPatchBounds
	ReasonStateRead // balance query failed during hydration
	ReasonCallReverted
	ReasonNotEnoughGas
	ReasonSweepNative
	ReasonSweepToken
)

// String returns a human-readable string for the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnspecified:
		return "unspecified"
	case ReasonDecode:
		return "decode"
	case ReasonMalformedStream:
		return "malformed_stream"
	case ReasonUnknownCommand:
		return "unknown_command"
	case ReasonCallIndex:
		return "call_index"
	case ReasonPatchBounds:
		return "patch_bounds"
	case ReasonStateRead:
		return "state_read"
	case ReasonCallReverted:
		return "call_reverted"
	case ReasonNotEnoughGas:
		return "not_enough_gas"
	case ReasonSweepNative:
		return "sweep_native"
	case ReasonSweepToken:
		return "sweep_token"
	}
	return "unknown"
}

// Reasoner is implemented by errors that carry a failure reason.
type Reasoner interface {
	Reason() Reason
}

// ReasonOf walks the error chain and returns the first reason found. A nil
// error yields ReasonNone, an error without a reason ReasonUnspecified.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var r Reasoner
	if errors.As(err, &r) {
		return r.Reason()
	}
	return ReasonUnspecified
}
