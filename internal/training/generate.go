// Package training produces labeled behavioral samples, fits the scaler and
// classifier ensemble, evaluates them, and builds the persisted model
// artifact. Real labeled traffic is unavailable at build time, so samples
// are synthesized from parametrized distributions covering one human tier
// and three bot sophistication tiers.
package training

import (
	"math/rand"

	"github.com/passivecaptcha/server/internal/feature"
)

// Labels. The classifier predicts P(human).
const (
	LabelBot   = 0
	LabelHuman = 1
)

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// humanSample models organic browsing: plenty of movement with natural
// speed variation, variable typing rhythm, healthy device signals.
func humanSample(rng *rand.Rand) feature.Vector {
	var v feature.Vector
	v[feature.MouseMovementCount] = float64(30 + rng.Intn(221)) // 30..250
	v[feature.AvgMouseVelocity] = uniform(rng, 0.3, 1.5)
	v[feature.MouseAccelVariance] = uniform(rng, 0.05, 0.6)
	v[feature.KeystrokeCount] = float64(5 + rng.Intn(56)) // 5..60
	v[feature.AvgKeystrokeInterval] = uniform(rng, 80, 350)
	v[feature.SessionDurationNorm] = uniform(rng, 10, 300) / 300
	v[feature.ScrollPatternScore] = uniform(rng, 0.4, 1.0)
	if rng.Float64() < 0.85 {
		v[feature.WebGLSupportScore] = 0.9
	} else {
		v[feature.WebGLSupportScore] = 0.6
	}
	if rng.Float64() < 0.7 {
		v[feature.CanvasFingerprintScore] = 0.8
	} else {
		v[feature.CanvasFingerprintScore] = 0.6
	}
	v[feature.HardwareLegitimacyScore] = uniform(rng, 0.6, 1.0)
	v[feature.BrowserConsistencyScore] = uniform(rng, 0.6, 1.0)
	return v
}

// simpleBotSample models naive scripts: near-zero interaction, mechanical
// or absent timing, degraded fingerprint.
func simpleBotSample(rng *rand.Rand) feature.Vector {
	var v feature.Vector
	v[feature.MouseMovementCount] = float64(rng.Intn(6)) // 0..5
	v[feature.AvgMouseVelocity] = uniform(rng, 0, 0.05)
	v[feature.MouseAccelVariance] = uniform(rng, 0, 0.005)
	keys := rng.Intn(4) // 0..3
	v[feature.KeystrokeCount] = float64(keys)
	if keys >= 2 {
		// Scripted typing lands on suspiciously exact intervals.
		v[feature.AvgKeystrokeInterval] = float64(50 + 10*rng.Intn(6))
	}
	v[feature.SessionDurationNorm] = uniform(rng, 0, 5) / 300
	if rng.Float64() < 0.7 {
		v[feature.ScrollPatternScore] = 0.5 // never scrolled
	} else {
		v[feature.ScrollPatternScore] = 0.1
	}
	if rng.Float64() < 0.8 {
		v[feature.WebGLSupportScore] = 0.1
	} else {
		v[feature.WebGLSupportScore] = 0.6
	}
	v[feature.CanvasFingerprintScore] = uniform(rng, 0.2, 0.3)
	v[feature.HardwareLegitimacyScore] = uniform(rng, 0.5, 0.7)
	v[feature.BrowserConsistencyScore] = 0.5
	return v
}

// advancedBotSample models partial mimicry: moderate interaction counts but
// measurably too-consistent timing and mid-range device legitimacy.
func advancedBotSample(rng *rand.Rand) feature.Vector {
	var v feature.Vector
	v[feature.MouseMovementCount] = float64(20 + rng.Intn(61)) // 20..80
	v[feature.AvgMouseVelocity] = uniform(rng, 0.2, 0.6)
	v[feature.MouseAccelVariance] = uniform(rng, 0, 0.02) // replayed paths are too smooth
	v[feature.KeystrokeCount] = float64(5 + rng.Intn(16)) // 5..20
	v[feature.AvgKeystrokeInterval] = uniform(rng, 100, 150)
	v[feature.SessionDurationNorm] = uniform(rng, 5, 60) / 300
	v[feature.ScrollPatternScore] = uniform(rng, 0.1, 0.6)
	if rng.Float64() < 0.6 {
		v[feature.WebGLSupportScore] = 0.6
	} else {
		v[feature.WebGLSupportScore] = 0.9
	}
	v[feature.CanvasFingerprintScore] = uniform(rng, 0.3, 0.6)
	v[feature.HardwareLegitimacyScore] = uniform(rng, 0.5, 0.9)
	v[feature.BrowserConsistencyScore] = uniform(rng, 0.5, 0.7)
	return v
}

// headlessBotSample models headless browsers: controlled session durations,
// spoofed-but-incomplete fingerprints, capability/UA disagreement.
func headlessBotSample(rng *rand.Rand) feature.Vector {
	var v feature.Vector
	v[feature.MouseMovementCount] = float64(rng.Intn(31)) // 0..30
	v[feature.AvgMouseVelocity] = uniform(rng, 0, 0.3)
	v[feature.MouseAccelVariance] = uniform(rng, 0, 0.03)
	keys := rng.Intn(11) // 0..10
	v[feature.KeystrokeCount] = float64(keys)
	if keys >= 2 {
		v[feature.AvgKeystrokeInterval] = uniform(rng, 30, 80)
	}
	// Scripted runs wait fixed timeouts: 5, 10 or 15 seconds.
	v[feature.SessionDurationNorm] = float64(5*(1+rng.Intn(3))) / 300
	v[feature.ScrollPatternScore] = 0.5
	if rng.Float64() < 0.5 {
		v[feature.WebGLSupportScore] = 0.1
	} else {
		v[feature.WebGLSupportScore] = 0.6 // software renderer strings
	}
	v[feature.CanvasFingerprintScore] = uniform(rng, 0.2, 0.6)
	v[feature.HardwareLegitimacyScore] = uniform(rng, 0.5, 0.9)
	v[feature.BrowserConsistencyScore] = 0.5 // browser UA, missing capabilities
	return v
}

// Dataset generates nHuman human samples and nBot bot samples (split evenly
// across the three bot tiers) in interleaved order, returning generic rows
// ready for scaling.
func Dataset(nHuman, nBot int, rng *rand.Rand) ([][]float64, []int) {
	total := nHuman + nBot
	data := make([][]float64, 0, total)
	labels := make([]int, 0, total)

	for i := 0; i < nHuman; i++ {
		data = append(data, humanSample(rng).Slice())
		labels = append(labels, LabelHuman)
	}
	for i := 0; i < nBot; i++ {
		var v feature.Vector
		switch i % 3 {
		case 0:
			v = simpleBotSample(rng)
		case 1:
			v = advancedBotSample(rng)
		default:
			v = headlessBotSample(rng)
		}
		data = append(data, v.Slice())
		labels = append(labels, LabelBot)
	}

	shuffle(data, labels, rng)
	return data, labels
}

func shuffle(data [][]float64, labels []int, rng *rand.Rand) {
	rng.Shuffle(len(data), func(i, j int) {
		data[i], data[j] = data[j], data[i]
		labels[i], labels[j] = labels[j], labels[i]
	})
}
