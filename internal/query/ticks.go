package query

import "sync/atomic"

var tick atomic.Uint64

// NextTick returns the next value of the process-wide monotonic
// counter. Engine ids come from here: allocation order makes them
// ordinal within one build, and process-wide uniqueness keeps registry
// keys from colliding across concurrent queries.
func NextTick() uint64 {
	return tick.Add(1)
}
