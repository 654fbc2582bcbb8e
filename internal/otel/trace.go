package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled is set once at package init. Atomic for safe concurrent access
// (production reads in pipeline goroutines, test writes via setTraceEnabled).
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("CHECKMATE_TRACE") != "")
}

// TraceEnabled reports whether CHECKMATE_TRACE is set.
// Inlineable by the Go compiler (simple atomic load).
// Zero cost: single atomic boolean check when false.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// setTraceEnabled overrides the traceEnabled flag for testing.
// Not exported: test-only helper.
func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
