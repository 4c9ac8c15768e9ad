package dispatch

import (
	"fmt"

	"github.com/clydemeng/hydrator/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// Treasury moves and reports the balances a sweep drains.
type Treasury interface {
	Balance(addr common.Address) *uint256.Int
	TokenBalance(token, account common.Address) (*uint256.Int, error)
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferToken(token, from, to common.Address, amount *uint256.Int) error
}

// SweepError is a failed sweep leg.
type SweepError struct {
	Native bool
	Token  common.Address // set for token legs
	Err    error
}

func (e *SweepError) Error() string {
	if e.Native {
		return fmt.Sprintf("native sweep: %v", e.Err)
	}
	return fmt.Sprintf("token sweep %v: %v", e.Token, e.Err)
}

func (e *SweepError) Unwrap() error { return e.Err }

// Reason implements tracing.Reasoner.
func (e *SweepError) Reason() tracing.Reason {
	if e.Native {
		return tracing.ReasonSweepNative
	}
	return tracing.ReasonSweepToken
}

// Sweep transfers the whole balance self holds of every token, then all of
// its native currency, to recipient. Balances are read at the moment each
// leg runs. Empty balances are skipped. The first failing leg stops the
// sweep; undoing earlier legs is up to the caller.
func Sweep(t Treasury, self, recipient common.Address, tokens []common.Address) error {
	for _, token := range tokens {
		bal, err := t.TokenBalance(token, self)
		if err != nil {
			sweepFailedCounter.Inc(1)
			return &SweepError{Token: token, Err: err}
		}
		if bal == nil || bal.IsZero() {
			continue
		}
		if err := t.TransferToken(token, self, recipient, bal); err != nil {
			sweepFailedCounter.Inc(1)
			return &SweepError{Token: token, Err: err}
		}
		sweepTokenCounter.Inc(1)
		log.Debug("Swept token", "token", token, "from", self, "to", recipient, "amount", bal)
	}

	bal := t.Balance(self)
	if bal == nil || bal.IsZero() {
		return nil
	}
	if err := t.Transfer(self, recipient, bal); err != nil {
		sweepFailedCounter.Inc(1)
		return &SweepError{Native: true, Err: err}
	}
	sweepNativeCounter.Inc(1)
	log.Debug("Swept native balance", "from", self, "to", recipient, "amount", bal)
	return nil
}
