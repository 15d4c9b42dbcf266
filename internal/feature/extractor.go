// Package feature turns a raw signal bundle into the canonical fixed-order
// numeric vector consumed by the classifier. Extraction is pure arithmetic
// over small slices: deterministic, allocation-light, and total — malformed
// or empty input produces documented per-field defaults, never an error.
package feature

import (
	"math"
	"strings"

	"github.com/passivecaptcha/server/internal/signal"
)

// Extract maps a raw bundle to the 11-dimensional feature vector.
func Extract(b signal.Bundle) Vector {
	var v Vector

	velocities := stepVelocities(b.MouseMovements)

	v[MouseMovementCount] = float64(len(b.MouseMovements))
	v[AvgMouseVelocity] = mean(velocities)
	v[MouseAccelVariance] = popVariance(velocities)
	v[KeystrokeCount] = float64(len(b.Keystrokes))
	v[AvgKeystrokeInterval] = avgKeystrokeInterval(b.Keystrokes)
	v[SessionDurationNorm] = normalizeDuration(b.SessionDurationMs)
	v[ScrollPatternScore] = scrollPatternScore(b.ScrollEvents)
	v[WebGLSupportScore] = webglSupportScore(b.Fingerprint.WebGLVendor)
	v[CanvasFingerprintScore] = canvasFingerprintScore(b.Fingerprint.CanvasFingerprint)
	v[HardwareLegitimacyScore] = hardwareLegitimacyScore(b.Fingerprint)
	v[BrowserConsistencyScore] = browserConsistencyScore(b.Fingerprint)

	// Guard against NaN/Inf sneaking in from degenerate timestamps.
	for i := range v {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			v[i] = Neutral()[i]
		}
	}
	return v
}

// stepVelocities returns per-step speeds (px/ms) over consecutive movement
// pairs. Steps with non-positive time deltas are skipped.
func stepVelocities(pts []signal.MousePoint) []float64 {
	if len(pts) < 2 {
		return nil
	}
	out := make([]float64, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		dt := pts[i].Timestamp - pts[i-1].Timestamp
		if dt <= 0 {
			continue
		}
		dx := pts[i].X - pts[i-1].X
		dy := pts[i].Y - pts[i-1].Y
		out = append(out, math.Hypot(dx, dy)/dt)
	}
	return out
}

func avgKeystrokeInterval(keys []signal.KeyEvent) float64 {
	if len(keys) < 2 {
		return 0
	}
	var sum float64
	var n int
	for i := 1; i < len(keys); i++ {
		delta := keys[i].Timestamp - keys[i-1].Timestamp
		if delta <= 0 {
			continue
		}
		sum += delta
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// normalizeDuration clamps the session to a 5-minute window and maps it to
// [0,1]. Negative durations read as 0.
func normalizeDuration(ms float64) float64 {
	if ms < 0 {
		ms = 0
	}
	sec := math.Min(ms/1000, 300)
	return sec / 300
}

// scrollPatternScore is a naturalness heuristic from the spread of scroll
// positions: human scrolling wanders, automation either never scrolls or
// jumps between fixed offsets. 0.5 is the no-signal neutral.
func scrollPatternScore(events []signal.ScrollEvent) float64 {
	if len(events) == 0 {
		return 0.5
	}
	ys := make([]float64, len(events))
	for i, e := range events {
		ys[i] = e.ScrollY
	}
	spread := math.Sqrt(popVariance(ys))
	return clamp(spread/150.0, 0.1, 1.0)
}

var legitGPUVendors = []string{"nvidia", "amd", "ati", "intel", "apple", "google"}

func webglSupportScore(vendor string) float64 {
	if vendor == "" {
		return 0.1
	}
	lower := strings.ToLower(vendor)
	for _, known := range legitGPUVendors {
		if strings.Contains(lower, known) {
			return 0.9
		}
	}
	return 0.6
}

func canvasFingerprintScore(fp string) float64 {
	switch n := len(fp); {
	case n == 0:
		return 0.2
	case n < 20:
		return 0.3
	case n < 50:
		return 0.6
	default:
		return 0.8
	}
}

func hardwareLegitimacyScore(fp signal.Fingerprint) float64 {
	score := 0.5
	if fp.HardwareConcurrency >= 1 && fp.HardwareConcurrency <= 32 {
		score += 0.2
	}
	if plausibleScreen(fp.ScreenWidth, fp.ScreenHeight) {
		score += 0.2
	}
	if len(fp.UserAgent) >= 40 {
		score += 0.1
	}
	return math.Min(score, 1.0)
}

// plausibleScreen accepts the desktop and mobile resolution ranges actually
// seen in the wild; headless defaults like 0x0 or 1x1 fall outside.
func plausibleScreen(w, h int) bool {
	return w >= 320 && w <= 7680 && h >= 320 && h <= 4320
}

// browserConsistencyScore checks that the user-agent's browser token agrees
// with the capabilities the collector observed. A Chrome UA with no WebGL
// vendor is the classic headless tell.
func browserConsistencyScore(fp signal.Fingerprint) float64 {
	score := 0.5
	ua := strings.ToLower(fp.UserAgent)

	switch {
	case strings.Contains(ua, "chrome"), strings.Contains(ua, "firefox"):
		if fp.WebGLVendor != "" {
			score += 0.3
		}
	case strings.Contains(ua, "safari"):
		if fp.CanvasFingerprint != "" {
			score += 0.3
		}
	default:
		// Unknown or absent UA token: mild credit when any device signal
		// is present at all.
		if fp.WebGLVendor != "" || fp.CanvasFingerprint != "" {
			score += 0.2
		}
	}
	return math.Min(score, 1.0)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// popVariance is the population variance (divide by n, not n-1).
func popVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
