package dispatch

import (
	"errors"
	"testing"

	"github.com/clydemeng/hydrator/core/calls"
	"github.com/clydemeng/hydrator/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	self   = common.HexToAddress("0x5e1f000000000000000000000000000000005e1f")
	sender = common.HexToAddress("0x5e0d000000000000000000000000000000005e0d")
	okAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
	badAdr = common.HexToAddress("0x0000000000000000000000000000000000000bad")
)

var errBad = errors.New("bad target")

// scriptedHost fails every call to badAdr and records the order of calls.
type scriptedHost struct {
	gas     uint64
	invoked []int
}

func (h *scriptedHost) Invoke(s, snd common.Address, c *calls.Call) ([]byte, error) {
	if s != self || snd != sender {
		return nil, errors.New("wrong scope")
	}
	h.invoked = append(h.invoked, int(c.Data[0]))
	if c.Target == badAdr {
		return nil, errBad
	}
	return []byte{c.Data[0]}, nil
}

func (h *scriptedHost) GasLeft() uint64 { return h.gas }

func call(i int, target common.Address, policy calls.ErrorPolicy) *calls.Call {
	return &calls.Call{Target: target, Data: []byte{byte(i)}, OnError: policy}
}

func run(t *testing.T, host *scriptedHost, list ...*calls.Call) (*Result, error) {
	t.Helper()
	batch := &calls.Batch{ID: common.Hash{0x42}, Calls: list}
	return New(host).Execute(batch, Scope{Self: self, Sender: sender})
}

func statuses(res *Result) []Status {
	out := make([]Status, len(res.Outcomes))
	for i, o := range res.Outcomes {
		out[i] = o.Status
	}
	return out
}

func TestExecuteAllSucceed(t *testing.T) {
	host := &scriptedHost{gas: 1}
	res, err := run(t, host,
		call(0, okAddr, calls.RevertOnError),
		call(1, okAddr, calls.AbortOnError),
	)
	require.NoError(t, err)
	require.Equal(t, common.Hash{0x42}, res.BatchID)
	require.Len(t, res.Calls, 2)
	require.Equal(t, []byte{1}, res.Calls[1].Data)
	require.Equal(t, []Status{StatusSucceeded, StatusSucceeded}, statuses(res))
	require.Equal(t, []byte{1}, res.Outcomes[1].Output)
	require.False(t, res.Aborted())
}

func TestExecuteIgnoreContinues(t *testing.T) {
	host := &scriptedHost{}
	res, err := run(t, host,
		call(0, badAdr, calls.IgnoreError),
		call(1, okAddr, calls.RevertOnError),
	)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, host.invoked)
	require.Equal(t, []Status{StatusFailed, StatusSucceeded}, statuses(res))
	require.ErrorIs(t, res.Outcomes[0].Err, errBad)
}

func TestExecuteAbortStops(t *testing.T) {
	host := &scriptedHost{}
	res, err := run(t, host,
		call(0, okAddr, calls.RevertOnError),
		call(1, badAdr, calls.AbortOnError),
		call(2, okAddr, calls.RevertOnError),
	)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, host.invoked)
	require.Equal(t, []Status{StatusSucceeded, StatusAborted, StatusNotReached}, statuses(res))
	require.True(t, res.Aborted())
}

func TestExecuteRevertFails(t *testing.T) {
	host := &scriptedHost{}
	res, err := run(t, host,
		call(0, okAddr, calls.IgnoreError),
		call(1, badAdr, calls.RevertOnError),
		call(2, okAddr, calls.IgnoreError),
	)
	var cerr *CallError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, 1, cerr.Index)
	require.ErrorIs(t, err, errBad)
	require.Equal(t, tracing.ReasonCallReverted, tracing.ReasonOf(err))
	require.Equal(t, []int{0, 1}, host.invoked)
	require.Equal(t, StatusNotReached, res.Outcomes[2].Status)
}

func TestExecuteFallbackOnly(t *testing.T) {
	fallback := func(i int) *calls.Call {
		c := call(i, okAddr, calls.RevertOnError)
		c.OnlyFallback = true
		return c
	}
	host := &scriptedHost{}
	res, err := run(t, host,
		fallback(0),                        // nothing failed yet: skipped
		call(1, badAdr, calls.IgnoreError), // fails
		fallback(2),                        // runs
		fallback(3),                        // previous succeeded: skipped
		call(4, okAddr, calls.IgnoreError),
		fallback(5), // skipped
	)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 4}, host.invoked)
	require.Equal(t, []Status{
		StatusSkipped, StatusFailed, StatusSucceeded, StatusSkipped, StatusSucceeded, StatusSkipped,
	}, statuses(res))
}

func TestExecuteFallbackRunsOnce(t *testing.T) {
	host := &scriptedHost{}
	res, err := run(t, host,
		call(0, badAdr, calls.IgnoreError),
		&calls.Call{Target: okAddr, Data: []byte{1}, OnlyFallback: true},
		&calls.Call{Target: okAddr, Data: []byte{2}, OnlyFallback: true},
	)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, host.invoked)
	require.Equal(t, []Status{StatusFailed, StatusSucceeded, StatusSkipped}, statuses(res))
}

func TestExecuteNotEnoughGas(t *testing.T) {
	host := &scriptedHost{gas: 100}
	c := call(0, okAddr, calls.IgnoreError)
	c.GasLimit = 101

	_, err := run(t, host, call(1, okAddr, calls.IgnoreError), c)
	require.ErrorIs(t, err, ErrNotEnoughGas)
	require.Equal(t, tracing.ReasonNotEnoughGas, tracing.ReasonOf(err))
	require.Equal(t, []int{1}, host.invoked)
}

func TestExecuteEmptyBatch(t *testing.T) {
	res, err := run(t, &scriptedHost{})
	require.NoError(t, err)
	require.Empty(t, res.Outcomes)
}

func TestStatusString(t *testing.T) {
	for s := StatusNotReached; s <= StatusAborted; s++ {
		require.NotEqual(t, "unknown", s.String())
	}
}
