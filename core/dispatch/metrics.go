package dispatch

import "github.com/ethereum/go-ethereum/metrics"

var (
	callSucceededCounter = metrics.NewRegisteredCounter("dispatch/calls/succeeded", nil)
	callFailedCounter    = metrics.NewRegisteredCounter("dispatch/calls/failed", nil)
	callSkippedCounter   = metrics.NewRegisteredCounter("dispatch/calls/skipped", nil)
	callAbortedCounter   = metrics.NewRegisteredCounter("dispatch/calls/aborted", nil)
	batchRevertedCounter = metrics.NewRegisteredCounter("dispatch/batches/reverted", nil)

	sweepTokenCounter  = metrics.NewRegisteredCounter("dispatch/sweep/tokens", nil)
	sweepNativeCounter = metrics.NewRegisteredCounter("dispatch/sweep/native", nil)
	sweepFailedCounter = metrics.NewRegisteredCounter("dispatch/sweep/failed", nil)
)
