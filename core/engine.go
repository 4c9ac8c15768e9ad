// Package core ties hydration, dispatch and sweeping together into the
// single entry points an executing account exposes.
package core

import (
	"github.com/clydemeng/hydrator/core/calls"
	"github.com/clydemeng/hydrator/core/dispatch"
	"github.com/clydemeng/hydrator/core/hydrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	invocationCounter = metrics.NewRegisteredCounter("engine/invocations", nil)
	rollbackCounter   = metrics.NewRegisteredCounter("engine/rollbacks", nil)
)

// Backend is everything the engine needs from the world it runs in: live
// balances for hydration, call execution for dispatch, transfers for the
// sweep, and snapshots to undo all of it.
type Backend interface {
	hydrate.StateReader
	dispatch.Host
	dispatch.Treasury

	Snapshot() int
	RevertToSnapshot(id int)
}

// Env is the runtime identity of one invocation.
type Env struct {
	Self   common.Address // executing account, the one holding funds
	Caller common.Address // immediate invoker
	Origin common.Address // transaction originator
}

// Engine runs packed batches against a Backend.
type Engine struct {
	codec   calls.Codec
	backend Backend
	log     log.Logger
}

// New returns an engine decoding batches with codec. A nil codec selects
// calls.ABICodec.
func New(backend Backend, codec calls.Codec) *Engine {
	if codec == nil {
		codec = calls.ABICodec{}
	}
	return &Engine{
		codec:   codec,
		backend: backend,
		log:     log.New("module", "engine"),
	}
}

// HydrateAndExecute decodes packed, rewrites it with commands and dispatches
// the result as env.Self. Any error leaves the backend exactly as it was.
func (e *Engine) HydrateAndExecute(env Env, packed, commands []byte) (*dispatch.Result, error) {
	return e.run(env, packed, commands, nil)
}

// HydrateAndExecuteSweep is HydrateAndExecute followed by a sweep of every
// token in tokens and then the native balance of env.Self to recipient. A
// zero recipient sweeps to env.Caller. A failed sweep undoes the calls too.
func (e *Engine) HydrateAndExecuteSweep(env Env, packed, commands []byte, recipient common.Address, tokens []common.Address) (*dispatch.Result, error) {
	if recipient == (common.Address{}) {
		recipient = env.Caller
	}
	return e.run(env, packed, commands, func() error {
		return dispatch.Sweep(e.backend, env.Self, recipient, tokens)
	})
}

func (e *Engine) run(env Env, packed, commands []byte, after func() error) (*dispatch.Result, error) {
	invocationCounter.Inc(1)

	batch, err := e.codec.Decode(packed)
	if err != nil {
		e.log.Debug("Rejected batch", "err", err)
		return nil, err
	}
	hctx := &hydrate.Context{
		Self:   env.Self,
		Caller: env.Caller,
		Origin: env.Origin,
		State:  e.backend,
	}
	if err := hydrate.Hydrate(hctx, batch.Calls, commands); err != nil {
		e.log.Debug("Hydration failed", "batch", batch.ID, "err", err)
		return nil, err
	}

	snap := e.backend.Snapshot()
	res, err := dispatch.New(e.backend).Execute(batch, dispatch.Scope{Self: env.Self, Sender: env.Caller})
	if err == nil && after != nil {
		err = after()
	}
	if err != nil {
		e.backend.RevertToSnapshot(snap)
		rollbackCounter.Inc(1)
		e.log.Debug("Invocation rolled back", "batch", batch.ID, "err", err)
		return res, err
	}
	e.log.Debug("Invocation complete", "batch", batch.ID, "calls", len(batch.Calls), "aborted", res.Aborted())
	return res, nil
}
