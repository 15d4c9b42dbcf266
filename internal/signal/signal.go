// Package signal defines the wire contract for raw behavioral telemetry
// collected client-side during a page session. A Bundle is consumed exactly
// once by the feature extractor; it is never persisted verbatim.
package signal

// MousePoint is a single sampled pointer position. Timestamp is milliseconds
// since collection start (or epoch; only deltas matter).
type MousePoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp float64 `json:"timestamp"`
}

// KeyEvent is a single keydown. The collector caps the sequence at ~50.
type KeyEvent struct {
	Key       string  `json:"key,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// ScrollEvent is a sampled vertical scroll offset.
type ScrollEvent struct {
	ScrollY   float64 `json:"scrollY"`
	Timestamp float64 `json:"timestamp"`
}

// Fingerprint carries device/browser attributes reported by the collector.
// Every field is optional; absence is itself a signal.
type Fingerprint struct {
	UserAgent           string   `json:"userAgent,omitempty"`
	ScreenWidth         int      `json:"screenWidth,omitempty"`
	ScreenHeight        int      `json:"screenHeight,omitempty"`
	WebGLVendor         string   `json:"webglVendor,omitempty"`
	CanvasFingerprint   string   `json:"canvasFingerprint,omitempty"`
	HardwareConcurrency int      `json:"hardwareConcurrency,omitempty"`
	Plugins             []string `json:"plugins,omitempty"`
	Timezone            string   `json:"timezone,omitempty"`
	Language            string   `json:"language,omitempty"`
}

// Bundle is one verification attempt's worth of raw signals.
type Bundle struct {
	MouseMovements    []MousePoint  `json:"mouseMovements,omitempty"`
	Keystrokes        []KeyEvent    `json:"keystrokes,omitempty"`
	ScrollEvents      []ScrollEvent `json:"scrollEvents,omitempty"`
	SessionDurationMs float64       `json:"sessionDuration,omitempty"`
	Fingerprint       Fingerprint   `json:"fingerprint,omitempty"`
}
