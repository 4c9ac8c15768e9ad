// Package hydrate rewrites pre-built call batches with facts that are only
// known at execution time.
//
// A command stream is a flat sequence of fixed-size commands with no framing.
// The first byte of every command selects its kind and with it the number of
// bytes that follow, so the stream is consumed by a single forward cursor. Any
// command that does not fit in the remaining bytes, names an unknown kind,
// points at a missing call or writes outside a payload aborts the whole pass.
package hydrate

import (
	"fmt"

	"github.com/clydemeng/hydrator/core/calls"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/holiman/uint256"
)

var (
	commandCounter = metrics.NewRegisteredCounter("hydrate/commands", nil)
	failureCounter = metrics.NewRegisteredCounter("hydrate/failures", nil)
)

// Hydrate applies every command of stream to list, in order.
//
// Balances are read from ctx.State at the moment each command runs. If an
// error is returned the calls may already be partly rewritten; the caller
// owns the batch and must discard it.
func Hydrate(ctx *Context, list []*calls.Call, stream []byte) error {
	r := reader{buf: stream}
	for !r.done() {
		start := r.pos
		cmd, err := r.command()
		if err != nil {
			failureCounter.Inc(1)
			return err
		}
		if err := apply(ctx, list, cmd); err != nil {
			failureCounter.Inc(1)
			return &StreamError{Pos: start, Flag: byte(cmd.Op), Err: err}
		}
		commandCounter.Inc(1)
		log.Trace("Applied hydrate command", "pos", start, "cmd", cmd)
	}
	return nil
}

func apply(ctx *Context, list []*calls.Call, cmd Command) error {
	if int(cmd.Index) >= len(list) {
		return fmt.Errorf("%w: %d, batch has %d calls", ErrCallIndex, cmd.Index, len(list))
	}
	call := list[cmd.Index]
	offset := uint64(cmd.Offset)

	switch cmd.Op {
	case OpSelfAddress, OpCallerAddress, OpOriginAddress:
		return PatchAddress(call.Data, offset, ctx.subject(cmd.Op))

	case OpSelfBalance, OpCallerBalance, OpOriginBalance:
		return PatchWord(call.Data, offset, ctx.balance(ctx.subject(cmd.Op)))

	case OpAccountBalance:
		return PatchWord(call.Data, offset, ctx.balance(cmd.Account))

	case OpSelfTokenBalance, OpCallerTokenBalance, OpOriginTokenBalance, OpAccountTokenBalance:
		holder := cmd.Account
		if cmd.Op != OpAccountTokenBalance {
			holder = ctx.subject(cmd.Op)
		}
		bal, err := ctx.State.TokenBalance(cmd.Token, holder)
		if err != nil {
			return fmt.Errorf("%w: balance of %v in token %v: %w", ErrStateUnreadable, holder, cmd.Token, err)
		}
		if bal == nil {
			bal = new(uint256.Int)
		}
		return PatchWord(call.Data, offset, bal)

	case OpTargetCaller, OpTargetOrigin:
		// The inline operand is consumed but never compared.
		call.Target = ctx.subject(cmd.Op)
		return nil

	case OpValueSelfBalance:
		call.Value = ctx.balance(ctx.Self)
		return nil
	}
	return ErrUnknownCommand
}

// subject resolves which of the context identities an op refers to.
func (ctx *Context) subject(op Op) common.Address {
	switch op {
	case OpSelfAddress, OpSelfBalance, OpSelfTokenBalance:
		return ctx.Self
	case OpCallerAddress, OpCallerBalance, OpCallerTokenBalance, OpTargetCaller:
		return ctx.Caller
	case OpOriginAddress, OpOriginBalance, OpOriginTokenBalance, OpTargetOrigin:
		return ctx.Origin
	}
	panic(fmt.Sprintf("hydrate: op %v has no context subject", op))
}

// balance returns a private copy of the native balance of addr.
func (ctx *Context) balance(addr common.Address) *uint256.Int {
	bal := ctx.State.Balance(addr)
	if bal == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(bal)
}
