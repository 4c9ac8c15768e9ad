// Package ledger is an in-process world for the hydrator: native balances and
// contract storage live in a go-ethereum StateDB, contract code is Go.
//
// It is the concrete backend behind the engine's collaborators. It answers
// the balance queries hydration makes, performs the calls the dispatcher
// issues and the transfers a sweep needs, and rolls everything back through
// StateDB snapshots.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/clydemeng/hydrator/core/calls"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrOutOfGas            = errors.New("out of gas")
	ErrDepth               = errors.New("max call depth exceeded")
	ErrNoCode              = errors.New("account has no code")
)

// Frame is the environment a contract runs in.
type Frame struct {
	Ledger *Ledger
	Self   common.Address // account whose balance and storage the code acts on
	Caller common.Address // msg.sender
	Code   common.Address // account the running code was loaded from
	Value  *uint256.Int
	Input  []byte
}

// Load reads a storage slot of the executing account.
func (f *Frame) Load(key common.Hash) common.Hash {
	return f.Ledger.db.GetState(f.Self, key)
}

// Store writes a storage slot of the executing account.
func (f *Frame) Store(key, value common.Hash) {
	f.Ledger.db.SetState(f.Self, key, value)
}

// Call issues a nested call from the executing account.
func (f *Frame) Call(to common.Address, value *uint256.Int, input []byte) ([]byte, error) {
	return f.Ledger.Call(f.Self, to, value, input)
}

// Contract is Go code deployed at an address. Returning an error reverts
// every state change the call made, nested calls included.
type Contract func(f *Frame) ([]byte, error)

// Ledger wraps a StateDB. It is not safe for concurrent calls, the StateDB
// underneath is not thread-safe; contract registration is.
type Ledger struct {
	db        *state.StateDB
	contracts sync.Map // map[common.Address]Contract
	gas       uint64
	depth     int
}

// New wraps db with the given gas budget. A zero budget means unlimited.
func New(db *state.StateDB, gas uint64) *Ledger {
	if gas == 0 {
		gas = math.MaxUint64
	}
	return &Ledger{db: db, gas: gas}
}

// NewMemory returns a ledger over a fresh in-memory StateDB.
func NewMemory(gas uint64) (*Ledger, error) {
	db, err := state.New(common.Hash{}, state.NewDatabase(rawdb.NewMemoryDatabase()), nil)
	if err != nil {
		return nil, fmt.Errorf("statedb: %w", err)
	}
	return New(db, gas), nil
}

// StateDB exposes the underlying state.
func (l *Ledger) StateDB() *state.StateDB { return l.db }

// Deploy installs code at addr, replacing any previous code.
func (l *Ledger) Deploy(addr common.Address, code Contract) {
	if !l.db.Exist(addr) {
		l.db.CreateAccount(addr)
	}
	l.contracts.Store(addr, code)
}

// HasCode reports whether a contract is deployed at addr.
func (l *Ledger) HasCode(addr common.Address) bool {
	_, ok := l.lookup(addr)
	return ok
}

func (l *Ledger) lookup(addr common.Address) (Contract, bool) {
	if v, ok := l.contracts.Load(addr); ok {
		return v.(Contract), true
	}
	return nil, false
}

// Balance returns a copy of the native balance of addr.
func (l *Ledger) Balance(addr common.Address) *uint256.Int {
	return l.db.GetBalance(addr).Clone()
}

// Fund credits addr out of thin air.
func (l *Ledger) Fund(addr common.Address, amount *uint256.Int) {
	l.db.AddBalance(addr, amount, tracing.BalanceChangeUnspecified)
}

// Snapshot marks the current state for RevertToSnapshot.
func (l *Ledger) Snapshot() int { return l.db.Snapshot() }

// RevertToSnapshot undoes every change made since the snapshot was taken.
func (l *Ledger) RevertToSnapshot(id int) { l.db.RevertToSnapshot(id) }

// GasLeft returns the remaining gas budget.
func (l *Ledger) GasLeft() uint64 { return l.gas }

func (l *Ledger) useGas(value *uint256.Int) error {
	cost := params.CallGasEIP150
	if value != nil && !value.IsZero() {
		cost += params.CallValueTransferGas
	}
	if l.gas < cost {
		return fmt.Errorf("%w: need %d, have %d", ErrOutOfGas, cost, l.gas)
	}
	l.gas -= cost
	return nil
}

// Invoke performs one batch call on behalf of self, whose own caller is
// sender. Delegate calls run the target's code against self's state with
// sender as msg.sender and move no value.
func (l *Ledger) Invoke(self, sender common.Address, c *calls.Call) ([]byte, error) {
	if c.DelegateCall {
		return l.DelegateCall(self, sender, c.Target, c.Data)
	}
	return l.Call(self, c.Target, c.Value, c.Data)
}

// Call transfers value from caller to to and runs to's code, if any.
func (l *Ledger) Call(caller, to common.Address, value *uint256.Int, input []byte) ([]byte, error) {
	if err := l.useGas(value); err != nil {
		return nil, err
	}
	return l.run(caller, to, to, value, input)
}

// DelegateCall runs the code deployed at code in the context of self.
func (l *Ledger) DelegateCall(self, sender, code common.Address, input []byte) ([]byte, error) {
	if err := l.useGas(nil); err != nil {
		return nil, err
	}
	contract, ok := l.lookup(code)
	if !ok {
		return nil, nil
	}
	return l.exec(contract, &Frame{Ledger: l, Self: self, Caller: sender, Code: code, Value: new(uint256.Int), Input: input}, l.db.Snapshot())
}

// Transfer moves native currency, running the recipient's code with empty
// input when it is a contract.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	_, err := l.Call(from, to, amount, nil)
	return err
}

func (l *Ledger) run(caller, self, code common.Address, value *uint256.Int, input []byte) ([]byte, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	snap := l.db.Snapshot()
	if !value.IsZero() {
		if l.db.GetBalance(caller).Lt(value) {
			return nil, fmt.Errorf("%w: %v has %v, needs %v", ErrInsufficientBalance, caller, l.db.GetBalance(caller), value)
		}
		l.db.SubBalance(caller, value, tracing.BalanceChangeTransfer)
		l.db.AddBalance(self, value, tracing.BalanceChangeTransfer)
	}
	contract, ok := l.lookup(code)
	if !ok {
		return nil, nil
	}
	return l.exec(contract, &Frame{Ledger: l, Self: self, Caller: caller, Code: code, Value: value.Clone(), Input: input}, snap)
}

func (l *Ledger) exec(contract Contract, f *Frame, snap int) ([]byte, error) {
	if l.depth >= int(params.CallCreateDepth) {
		l.db.RevertToSnapshot(snap)
		return nil, ErrDepth
	}
	l.depth++
	out, err := contract(f)
	l.depth--
	if err != nil {
		l.db.RevertToSnapshot(snap)
		log.Debug("Contract call reverted", "code", f.Code, "self", f.Self, "caller", f.Caller, "err", err)
		return nil, err
	}
	return out, nil
}

// staticCall runs a call and discards every state change it made.
func (l *Ledger) staticCall(caller, to common.Address, input []byte) ([]byte, error) {
	if !l.HasCode(to) {
		return nil, fmt.Errorf("%w: %v", ErrNoCode, to)
	}
	snap := l.db.Snapshot()
	defer l.db.RevertToSnapshot(snap)
	return l.run(caller, to, to, nil, input)
}
