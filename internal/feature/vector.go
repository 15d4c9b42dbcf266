package feature

import "fmt"

// Len is the dimensionality of the canonical feature vector. The scaler and
// classifier are fit against this exact ordering; permuting it requires a
// full retrain.
const Len = 11

// Canonical feature indices.
const (
	MouseMovementCount = iota
	AvgMouseVelocity
	MouseAccelVariance
	KeystrokeCount
	AvgKeystrokeInterval
	SessionDurationNorm
	ScrollPatternScore
	WebGLSupportScore
	CanvasFingerprintScore
	HardwareLegitimacyScore
	BrowserConsistencyScore
)

// Names lists feature names in canonical order. Pre-extracted feature maps
// submitted by callers are resolved against these keys.
var Names = [Len]string{
	"mouse_movement_count",
	"avg_mouse_velocity",
	"mouse_acceleration_variance",
	"keystroke_count",
	"avg_keystroke_interval",
	"session_duration_normalized",
	"scroll_pattern_score",
	"webgl_support_score",
	"canvas_fingerprint_score",
	"hardware_legitimacy_score",
	"browser_consistency_score",
}

// Vector is a fixed-order behavioral feature vector.
type Vector [Len]float64

// Slice returns the vector as a []float64 for consumers that operate on
// generic rows (scaler, classifiers).
func (v Vector) Slice() []float64 {
	out := make([]float64, Len)
	copy(out, v[:])
	return out
}

// Neutral is the fallback vector: zero counts and timings, neutral scores.
// It is what the pipeline classifies when extraction input is unusable.
func Neutral() Vector {
	var v Vector
	v[ScrollPatternScore] = 0.5
	v[WebGLSupportScore] = 0.5
	v[CanvasFingerprintScore] = 0.5
	v[HardwareLegitimacyScore] = 0.5
	v[BrowserConsistencyScore] = 0.5
	return v
}

// FromMap builds a Vector from a name→value map (the "features pre-computed"
// inbound shape). Missing keys take the neutral default for that position.
func FromMap(m map[string]float64) Vector {
	v := Neutral()
	for i, name := range Names {
		if val, ok := m[name]; ok {
			v[i] = val
		}
	}
	return v
}

// FromSlice converts a raw row back into a Vector, rejecting wrong sizes.
func FromSlice(s []float64) (Vector, error) {
	var v Vector
	if len(s) != Len {
		return v, fmt.Errorf("feature: expected %d values, got %d", Len, len(s))
	}
	copy(v[:], s)
	return v, nil
}
