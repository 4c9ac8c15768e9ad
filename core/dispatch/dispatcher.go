// Package dispatch runs a hydrated batch call by call and sweeps what is
// left afterwards.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/clydemeng/hydrator/core/calls"
	"github.com/clydemeng/hydrator/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

var ErrNotEnoughGas = errors.New("not enough gas for call")

// Host performs individual calls. A failed call must leave no effects of its
// own behind; the dispatcher decides what the failure means for the batch.
type Host interface {
	// Invoke runs c on behalf of self, whose own caller is sender. Targets
	// may call back into anything, including the host itself.
	Invoke(self, sender common.Address, c *calls.Call) ([]byte, error)
	GasLeft() uint64
}

// Scope identifies the executing account and the account that invoked it.
type Scope struct {
	Self   common.Address
	Sender common.Address
}

// Status is the fate of one call of a batch.
type Status uint8

const (
	StatusNotReached Status = iota
	StatusSucceeded
	StatusFailed  // failed under IgnoreError
	StatusSkipped // fallback-only call whose predecessor did not fail
	StatusAborted // failed under AbortOnError, later calls not reached
)

func (s Status) String() string {
	switch s {
	case StatusNotReached:
		return "not_reached"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

// Outcome records what happened to one call.
type Outcome struct {
	Status Status
	Output []byte
	Err    error
}

// Result is the per-call record of a dispatched batch. Calls holds the calls
// as they were dispatched, after hydration; Outcomes[i] belongs to Calls[i].
type Result struct {
	BatchID  common.Hash
	Calls    []*calls.Call
	Outcomes []Outcome
}

// Aborted reports whether an AbortOnError failure stopped the batch early.
func (r *Result) Aborted() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusAborted {
			return true
		}
	}
	return false
}

// CallError is a call failure that takes the whole invocation down.
type CallError struct {
	Index int
	Err   error
}

func (e *CallError) Error() string { return fmt.Sprintf("call %d: %v", e.Index, e.Err) }
func (e *CallError) Unwrap() error { return e.Err }

// Reason implements tracing.Reasoner.
func (e *CallError) Reason() tracing.Reason {
	if errors.Is(e.Err, ErrNotEnoughGas) {
		return tracing.ReasonNotEnoughGas
	}
	return tracing.ReasonCallReverted
}

// Dispatcher executes batches against a Host.
type Dispatcher struct {
	host Host
	log  log.Logger
}

// New returns a dispatcher issuing calls through host.
func New(host Host) *Dispatcher {
	return &Dispatcher{host: host, log: log.New("module", "dispatch")}
}

// Execute runs the calls of batch in order, applying each call's error
// policy. A non-nil error means the invocation must be rolled back as a
// whole; the caller owns that rollback. Result is returned in both cases.
func (d *Dispatcher) Execute(batch *calls.Batch, scope Scope) (*Result, error) {
	res := &Result{
		BatchID:  batch.ID,
		Calls:    batch.Calls,
		Outcomes: make([]Outcome, len(batch.Calls)),
	}
	prevFailed := false
	for i, c := range batch.Calls {
		if c.OnlyFallback && !prevFailed {
			res.Outcomes[i].Status = StatusSkipped
			callSkippedCounter.Inc(1)
			d.log.Debug("Call skipped", "batch", batch.ID, "index", i)
			continue
		}
		prevFailed = false

		if c.GasLimit != 0 && d.host.GasLeft() < c.GasLimit {
			batchRevertedCounter.Inc(1)
			err := fmt.Errorf("%w: limit %d, left %d", ErrNotEnoughGas, c.GasLimit, d.host.GasLeft())
			return res, &CallError{Index: i, Err: err}
		}

		out, err := d.host.Invoke(scope.Self, scope.Sender, c)
		if err == nil {
			res.Outcomes[i] = Outcome{Status: StatusSucceeded, Output: out}
			callSucceededCounter.Inc(1)
			d.log.Debug("Call succeeded", "batch", batch.ID, "index", i, "target", c.Target)
			continue
		}

		switch c.OnError {
		case calls.IgnoreError:
			res.Outcomes[i] = Outcome{Status: StatusFailed, Err: err}
			prevFailed = true
			callFailedCounter.Inc(1)
			d.log.Debug("Call failed", "batch", batch.ID, "index", i, "target", c.Target, "err", err)

		case calls.AbortOnError:
			res.Outcomes[i] = Outcome{Status: StatusAborted, Err: err}
			callAbortedCounter.Inc(1)
			d.log.Debug("Call aborted batch", "batch", batch.ID, "index", i, "target", c.Target, "err", err)
			return res, nil

		default:
			res.Outcomes[i] = Outcome{Status: StatusFailed, Err: err}
			batchRevertedCounter.Inc(1)
			d.log.Debug("Call reverted batch", "batch", batch.ID, "index", i, "target", c.Target, "err", err)
			return res, &CallError{Index: i, Err: err}
		}
	}
	return res, nil
}
