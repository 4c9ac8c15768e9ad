package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/clydemeng/hydrator/core/calls"
	"github.com/clydemeng/hydrator/core/dispatch"
	"github.com/clydemeng/hydrator/tracing"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var ErrExtensionData = errors.New("malformed extension data")

// extensionArgs is the layout of DelegateCall.Data: (bytes batch, bytes commands).
var extensionArgs abi.Arguments

func init() {
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(fmt.Sprintf("extension abi: %v", err))
	}
	extensionArgs = abi.Arguments{
		{Name: "batch", Type: bytesTy},
		{Name: "commands", Type: bytesTy},
	}
}

// DelegateCall is the argument set a wallet hands to a delegated extension
// while it is itself executing a batch. Only Data is interpreted; the rest
// describes the outer execution and is recorded for diagnostics.
type DelegateCall struct {
	OpHash      common.Hash
	StartingGas *big.Int
	Index       *big.Int // position of the delegating call in the outer batch
	NumCalls    *big.Int
	Space       *big.Int // nonce space of the outer batch
	Data        []byte
}

type extensionError struct{ err error }

func (e *extensionError) Error() string          { return e.err.Error() }
func (e *extensionError) Unwrap() error          { return e.err }
func (e *extensionError) Reason() tracing.Reason { return tracing.ReasonDecode }

// EncodeExtensionData packs a batch and its command stream into the single
// buffer HandleDelegateCall expects.
func EncodeExtensionData(packed, commands []byte) ([]byte, error) {
	if packed == nil {
		packed = []byte{}
	}
	if commands == nil {
		commands = []byte{}
	}
	return extensionArgs.Pack(packed, commands)
}

// HandleDelegateCall unpacks dc.Data and runs it through HydrateAndExecute.
func (e *Engine) HandleDelegateCall(env Env, dc DelegateCall) (*dispatch.Result, error) {
	out, err := extensionArgs.Unpack(dc.Data)
	if err != nil {
		return nil, &extensionError{fmt.Errorf("%w: %v", ErrExtensionData, err)}
	}
	packed, commands := out[0].([]byte), out[1].([]byte)
	e.log.Debug("Delegated invocation", "op", dc.OpHash, "index", dc.Index, "calls", dc.NumCalls, "space", dc.Space, "gas", dc.StartingGas)
	return e.HydrateAndExecute(env, packed, commands)
}

// Codec returns the batch codec the engine decodes with.
func (e *Engine) Codec() calls.Codec { return e.codec }
