// Package sink delivers verification decisions to downstream persistence for
// audit and dashboard aggregation. Sinks are fan-out targets: the verify
// endpoint emits one Record per decision to every enabled sink.
package sink

import (
	"context"
	"time"
)

// Record is the audit form of a decision: the outcome plus the exact feature
// vector it was derived from.
type Record struct {
	VerificationID  string    `json:"verification_id"`
	SessionID       string    `json:"session_id,omitempty"`
	Origin          string    `json:"origin,omitempty"`
	IsHuman         bool      `json:"is_human"`
	Confidence      float64   `json:"confidence"`
	InferenceTimeMs float64   `json:"inference_time_ms"`
	Fallback        bool      `json:"fallback,omitempty"`
	Features        []float64 `json:"features"`
	TS              time.Time `json:"ts"`
}

// Sink is a decision delivery target.
type Sink interface {
	Start(ctx context.Context) error
	Enqueue(r Record) error
	Close() error
	Name() string // sink name for metrics and logging
}
