package rpc

import (
	"context"
	"strconv"
	"time"

	"github.com/entropycollective/quiverdb/internal/condmap"
)

// Reserved RPC input parameter names for the signal wait/send facility.
const (
	ParamWait        = "WAIT"
	ParamWaitTime    = "WAITTIME"
	ParamSignal      = "SIGNAL"
	ParamSignalBroad = "SIGNALBROAD"
)

// applySignalParams resolves WAIT/WAITTIME before calling proc and
// SIGNAL/SIGNALBROAD after, against the shared condition map. Handlers
// that queue work on an ordered key-space (a blocking-get style queue)
// rely on this to block until another worker signals progress.
func applySignalParams(ctx context.Context, conds *condmap.Map, inputs map[string]string, call func() (map[string]string, ReturnValue)) (map[string]string, ReturnValue) {
	if name, ok := inputs[ParamWait]; ok && name != "" {
		timeout := time.Duration(0)
		if wt, ok := inputs[ParamWaitTime]; ok {
			if secs, err := strconv.ParseFloat(wt, 64); err == nil {
				timeout = time.Duration(secs * float64(time.Second))
			}
		}
		conds.Wait(ctx, name, timeout)
	}

	outputs, rv := call()

	if name, ok := inputs[ParamSignalBroad]; ok && name != "" {
		conds.Broadcast(name)
	} else if name, ok := inputs[ParamSignal]; ok && name != "" {
		conds.Signal(name)
	}
	return outputs, rv
}
