package dispatch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/clydemeng/hydrator/core/ledger"
	"github.com/clydemeng/hydrator/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	recipient = common.HexToAddress("0x4ec1000000000000000000000000000000004ec1")
	tokenX    = common.HexToAddress("0x7000000000000000000000000000000000000001")
	tokenY    = common.HexToAddress("0x7000000000000000000000000000000000000002")
)

func sweepLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.NewMemory(0)
	require.NoError(t, err)
	l.DeployToken(tokenX)
	l.DeployToken(tokenY)
	return l
}

func TestSweepCompleteness(t *testing.T) {
	l := sweepLedger(t)
	l.Fund(self, uint256.NewInt(700))
	l.Fund(recipient, uint256.NewInt(1))
	require.NoError(t, l.MintToken(tokenX, self, uint256.NewInt(30)))
	require.NoError(t, l.MintToken(tokenY, self, uint256.NewInt(40)))
	require.NoError(t, l.MintToken(tokenY, recipient, uint256.NewInt(2)))

	require.NoError(t, Sweep(l, self, recipient, []common.Address{tokenX, tokenY}))

	require.True(t, l.Balance(self).IsZero())
	require.Equal(t, uint64(701), l.Balance(recipient).Uint64())
	for token, want := range map[common.Address]uint64{tokenX: 30, tokenY: 42} {
		selfBal, err := l.TokenBalance(token, self)
		require.NoError(t, err)
		require.True(t, selfBal.IsZero())
		recBal, err := l.TokenBalance(token, recipient)
		require.NoError(t, err)
		require.Equal(t, want, recBal.Uint64())
	}
}

func TestSweepSkipsEmptyBalances(t *testing.T) {
	l := sweepLedger(t)
	require.NoError(t, Sweep(l, self, recipient, []common.Address{tokenX}))
	require.True(t, l.Balance(recipient).IsZero())
}

func TestSweepTokenFailurePropagates(t *testing.T) {
	l := sweepLedger(t)
	l.Fund(self, uint256.NewInt(5))
	require.NoError(t, l.MintToken(tokenX, self, uint256.NewInt(1)))

	// The token's own transfer rejects the zero address.
	err := Sweep(l, self, common.Address{}, []common.Address{tokenX})
	var serr *SweepError
	require.True(t, errors.As(err, &serr))
	require.False(t, serr.Native)
	require.Equal(t, tokenX, serr.Token)
	require.ErrorIs(t, err, ledger.ErrTransferToZero)
	require.Equal(t, tracing.ReasonSweepToken, tracing.ReasonOf(err))
	require.Equal(t, uint64(5), l.Balance(self).Uint64(), "native leg must not run")
}

func TestSweepTokenWithoutCode(t *testing.T) {
	l := sweepLedger(t)
	err := Sweep(l, self, recipient, []common.Address{recipient})
	require.ErrorIs(t, err, ledger.ErrNoCode)
	require.Equal(t, tracing.ReasonSweepToken, tracing.ReasonOf(err))
}

func TestSweepNativeFailureIsFatal(t *testing.T) {
	l := sweepLedger(t)
	l.Fund(self, uint256.NewInt(5))

	// Tokens refuse native currency.
	err := Sweep(l, self, tokenY, nil)
	var serr *SweepError
	require.True(t, errors.As(err, &serr))
	require.True(t, serr.Native)
	require.Equal(t, tracing.ReasonSweepNative, tracing.ReasonOf(err))
	require.Equal(t, uint64(5), l.Balance(self).Uint64())
}

// The native leg must see the balance as it is when it runs, not as it was
// when the sweep started.
func TestSweepReadsBalanceAtUse(t *testing.T) {
	l := sweepLedger(t)
	donor := common.HexToAddress("0xd000000000000000000000000000000000000d00")
	l.Fund(donor, uint256.NewInt(50))
	l.Fund(self, uint256.NewInt(10))
	require.NoError(t, l.MintToken(tokenX, self, uint256.NewInt(1)))

	// tokenX is wrapped so a transfer out of self also refills self.
	l.Deploy(tokenX, func(f *ledger.Frame) ([]byte, error) {
		out, err := ledger.Token(f)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(f.Input[:4], ledger.TokenABI.Methods["transfer"].ID) {
			if err := f.Ledger.Transfer(donor, self, uint256.NewInt(50)); err != nil {
				return nil, err
			}
		}
		return out, nil
	})

	require.NoError(t, Sweep(l, self, recipient, []common.Address{tokenX}))
	require.True(t, l.Balance(self).IsZero())
	require.Equal(t, uint64(60), l.Balance(recipient).Uint64())
}
