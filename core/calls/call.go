// Package calls defines the call records a hydrated batch is made of and the
// codec that turns a packed batch into them.
package calls

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrorPolicy selects what happens to the rest of the batch when a call fails.
type ErrorPolicy uint8

const (
	// IgnoreError swallows the failure and continues with the next call. A
	// following OnlyFallback call becomes eligible to run.
	IgnoreError ErrorPolicy = iota
	// RevertOnError aborts the whole invocation and rolls back every effect.
	RevertOnError
	// AbortOnError stops processing further calls but keeps the effects of
	// the calls that already ran.
	AbortOnError
)

// Valid reports whether p is one of the known policies.
func (p ErrorPolicy) Valid() bool {
	return p <= AbortOnError
}

func (p ErrorPolicy) String() string {
	switch p {
	case IgnoreError:
		return "ignore"
	case RevertOnError:
		return "revert"
	case AbortOnError:
		return "abort"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParseErrorPolicy is the inverse of ErrorPolicy.String.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "ignore", "":
		return IgnoreError, nil
	case "revert":
		return RevertOnError, nil
	case "abort":
		return AbortOnError, nil
	}
	return 0, fmt.Errorf("unknown error policy %q", s)
}

// Call is one entry of a batch. Data is owned by the batch and is patched in
// place during hydration.
type Call struct {
	Target       common.Address
	Value        *uint256.Int
	Data         []byte
	GasLimit     uint64 // 0 means forward whatever is left
	DelegateCall bool   // run the target's code in the context of the executing account
	OnlyFallback bool   // run only when the previous call failed under IgnoreError
	OnError      ErrorPolicy
}

// Batch is the decoded, ordered list of calls for one execution along with
// the identifier of the packed form it was decoded from.
type Batch struct {
	ID    common.Hash
	Calls []*Call
}
