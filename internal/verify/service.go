// Package verify orchestrates the request-time pipeline: extract → scale →
// classify → decide. The service owns the model artifact behind an atomic
// pointer so retraining swaps a fully-formed replacement while in-flight
// requests keep the artifact they started with.
package verify

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/passivecaptcha/server/internal/feature"
	"github.com/passivecaptcha/server/internal/ml"
	"github.com/passivecaptcha/server/internal/signal"
)

// DefaultThreshold is the confidence cutoff applied when none is configured.
const DefaultThreshold = 0.6

// Decision is the outcome of one verification attempt. Confidence is the
// classifier's human-probability; Fallback marks the safe-default path.
type Decision struct {
	VerificationID  string
	IsHuman         bool
	Confidence      float64
	InferenceTimeMs float64
	Features        feature.Vector
	Fallback        bool
}

// Service classifies verification attempts. Safe for concurrent use: the
// artifact is read-only once published and the threshold is fixed at
// construction (threshold is runtime policy, not model state).
type Service struct {
	artifact  atomic.Pointer[ml.Artifact]
	threshold float64
}

// NewService creates a Service with the given confidence threshold.
// Out-of-range thresholds fall back to DefaultThreshold.
func NewService(threshold float64) *Service {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Service{threshold: threshold}
}

// Threshold returns the configured confidence cutoff.
func (s *Service) Threshold() float64 { return s.threshold }

// Ready reports whether a model artifact is loaded.
func (s *Service) Ready() bool { return s.artifact.Load() != nil }

// SetArtifact validates and atomically publishes a new artifact. A rejected
// artifact leaves the previous one serving; a failed training run must never
// replace a working model.
func (s *Service) SetArtifact(a *ml.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.artifact.Store(a)
	return nil
}

// Metadata returns the loaded artifact's training metadata, or a zero value
// when running on the safe-default path.
func (s *Service) Metadata() ml.Metadata {
	if a := s.artifact.Load(); a != nil {
		return a.Meta
	}
	return ml.Metadata{}
}

// VerifyRaw extracts features from a raw bundle and classifies them.
func (s *Service) VerifyRaw(b signal.Bundle) Decision {
	return s.decide(feature.Extract(b))
}

// VerifyFeatures classifies a pre-extracted feature vector (the "features
// computed client/edge-side" inbound shape).
func (s *Service) VerifyFeatures(v feature.Vector) Decision {
	return s.decide(v)
}

// decide runs scale → classify → threshold. Any stage failure yields the
// safe default (isHuman=true, confidence=0.5): a spurious hard failure is
// more disruptive to real users than letting a bot through a soft signal.
func (s *Service) decide(v feature.Vector) Decision {
	start := time.Now()
	d := Decision{
		VerificationID: uuid.New().String(),
		Features:       v,
	}

	a := s.artifact.Load()
	if a == nil {
		return s.fallback(d, start)
	}

	p, err := a.Score(v)
	if err != nil {
		log.Printf("verify: scoring failed, serving safe default: %v", err)
		return s.fallback(d, start)
	}

	d.Confidence = p
	d.IsHuman = p >= s.threshold
	d.InferenceTimeMs = msSince(start)
	return d
}

func (s *Service) fallback(d Decision, start time.Time) Decision {
	d.IsHuman = true
	d.Confidence = 0.5
	d.Fallback = true
	d.InferenceTimeMs = msSince(start)
	return d
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
