package calls

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/clydemeng/hydrator/tracing"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidPolicy    = errors.New("invalid error policy")
	ErrGasLimitOverflow = errors.New("gas limit exceeds 64 bits")
)

// DecodeError reports a packed batch that could not be turned into calls.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string          { return "batch decode: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error          { return e.Err }
func (e *DecodeError) Reason() tracing.Reason { return tracing.ReasonDecode }

// Codec converts between the packed wire form of a batch and its calls.
type Codec interface {
	Decode(packed []byte) (*Batch, error)
	Encode(calls []*Call) ([]byte, error)
}

// batchArgs is the ABI layout of a packed batch:
//
//	(address target, uint256 value, bytes data, uint256 gasLimit,
//	 bool delegateCall, bool onlyFallback, uint8 behaviorOnError)[]
var batchArgs abi.Arguments

func init() {
	callsTy, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "delegateCall", Type: "bool"},
		{Name: "onlyFallback", Type: "bool"},
		{Name: "behaviorOnError", Type: "uint8"},
	})
	if err != nil {
		panic(fmt.Sprintf("batch abi: %v", err))
	}
	batchArgs = abi.Arguments{{Name: "calls", Type: callsTy}}
}

// wireCall mirrors the tuple field order of batchArgs.
type wireCall struct {
	Target          common.Address
	Value           *big.Int
	Data            []byte
	GasLimit        *big.Int
	DelegateCall    bool
	OnlyFallback    bool
	BehaviorOnError uint8
}

// ABICodec packs batches with the Solidity ABI. The batch identifier is the
// keccak256 hash of the packed bytes.
type ABICodec struct{}

// Decode implements Codec.
func (ABICodec) Decode(packed []byte) (*Batch, error) {
	out, err := batchArgs.Unpack(packed)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	wire := *abi.ConvertType(out[0], new([]wireCall)).(*[]wireCall)

	batch := &Batch{
		ID:    crypto.Keccak256Hash(packed),
		Calls: make([]*Call, len(wire)),
	}
	for i, w := range wire {
		policy := ErrorPolicy(w.BehaviorOnError)
		if !policy.Valid() {
			return nil, &DecodeError{Err: fmt.Errorf("call %d: %w %d", i, ErrInvalidPolicy, w.BehaviorOnError)}
		}
		if !w.GasLimit.IsUint64() {
			return nil, &DecodeError{Err: fmt.Errorf("call %d: %w", i, ErrGasLimitOverflow)}
		}
		value, _ := uint256.FromBig(w.Value) // uint256 on the wire, cannot overflow
		// Unpacked bytes alias packed; hydration must not write through to it.
		data := make([]byte, len(w.Data))
		copy(data, w.Data)
		batch.Calls[i] = &Call{
			Target:       w.Target,
			Value:        value,
			Data:         data,
			GasLimit:     w.GasLimit.Uint64(),
			DelegateCall: w.DelegateCall,
			OnlyFallback: w.OnlyFallback,
			OnError:      policy,
		}
	}
	return batch, nil
}

// Encode implements Codec.
func (ABICodec) Encode(calls []*Call) ([]byte, error) {
	wire := make([]wireCall, len(calls))
	for i, c := range calls {
		if !c.OnError.Valid() {
			return nil, fmt.Errorf("call %d: %w %d", i, ErrInvalidPolicy, c.OnError)
		}
		value := new(big.Int)
		if c.Value != nil {
			value = c.Value.ToBig()
		}
		data := c.Data
		if data == nil {
			data = []byte{}
		}
		wire[i] = wireCall{
			Target:          c.Target,
			Value:           value,
			Data:            data,
			GasLimit:        new(big.Int).SetUint64(c.GasLimit),
			DelegateCall:    c.DelegateCall,
			OnlyFallback:    c.OnlyFallback,
			BehaviorOnError: uint8(c.OnError),
		}
	}
	return batchArgs.Pack(wire)
}
