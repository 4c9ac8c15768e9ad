package hydrate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StateReader exposes the live balances hydration reads. Implementations
// must return the value current at the time of the call; the interpreter
// never caches a result across commands.
type StateReader interface {
	Balance(addr common.Address) *uint256.Int
	TokenBalance(token, account common.Address) (*uint256.Int, error)
}

// Context is the set of runtime facts available to one hydration pass.
type Context struct {
	Self   common.Address // the executing account
	Caller common.Address // the account that invoked the engine
	Origin common.Address // the account that originated the transaction
	State  StateReader
}
