// Package otel provides structured observability for checkmate.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer provides live in-memory inspection for the debug
// endpoint.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Verification lifecycle events
	KindVerifyStart    EventKind = "verify.start"
	KindVerifyComplete EventKind = "verify.complete"
	KindVerifyError    EventKind = "verify.error"

	// Pipeline stage events
	KindStageStart    EventKind = "stage.start"
	KindStageComplete EventKind = "stage.complete"
	KindStageDegraded EventKind = "stage.degraded"
	KindStageSkipped  EventKind = "stage.skipped"

	// Resilience events
	KindBreakerState    EventKind = "breaker.state"
	KindRateLimitReject EventKind = "ratelimit.reject"

	// Vendor call events
	KindProviderCall  EventKind = "provider.call"
	KindProviderError EventKind = "provider.error"
	KindVendorCall    EventKind = "vendor.call"
	KindVendorError   EventKind = "vendor.error"

	// Store events
	KindReputationRecord EventKind = "reputation.record"
	KindStoreError       EventKind = "store.error"

	// Background maintenance events
	KindJanitorPurge EventKind = "janitor.purge"
	KindEventPublish EventKind = "event.publish"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "pipeline", "server", "factcheck", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire process run
	RequestID string         `json:"rid,omitempty"`        // verification correlation ID
	Platform  string         `json:"platform,omitempty"`   // tiktok, twitter, web
	Stage     string         `json:"stage,omitempty"`      // extract, transcribe, factcheck, score
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Verdict   string         `json:"verdict,omitempty"`
	Score     float64        `json:"score,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`   // free text
	Extra     map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
