package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/passivecaptcha/server/internal/ml"
	"github.com/passivecaptcha/server/internal/sink"
	"github.com/passivecaptcha/server/internal/training"
	"github.com/passivecaptcha/server/internal/verify"
	"github.com/passivecaptcha/server/pkg/config"
)

var (
	trainOnce    sync.Once
	testArtifact *ml.Artifact
	trainErr     error
)

func artifact(t *testing.T) *ml.Artifact {
	t.Helper()
	trainOnce.Do(func() {
		testArtifact, _, trainErr = training.Train(training.Config{
			HumanSamples: 150,
			BotSamples:   150,
			TestFraction: 0.2,
			MinAccuracy:  0.85,
			Seed:         42,
			ForestTrees:  15,
			BoostRounds:  25,
		})
	})
	if trainErr != nil {
		t.Fatalf("training: %v", trainErr)
	}
	return testArtifact
}

func testEnv(t *testing.T, withModel bool) (*Env, *[]sink.Record) {
	t.Helper()
	svc := verify.NewService(0.6)
	if withModel {
		if err := svc.SetArtifact(artifact(t)); err != nil {
			t.Fatalf("set artifact: %v", err)
		}
	}
	var emitted []sink.Record
	env := &Env{
		Cfg:     config.Config{MaxBodyBytes: 1 << 20, ConfidenceThreshold: 0.6},
		Service: svc,
		Emit:    func(r sink.Record) { emitted = append(emitted, r) },
	}
	return env, &emitted
}

func humanPayload() map[string]any {
	moves := make([]map[string]any, 0, 150)
	x := 0.0
	for i := 0; i < 150; i++ {
		step := 5.0
		if i%2 == 0 {
			step = 11.0
		}
		x += step
		moves = append(moves, map[string]any{"x": x, "y": float64(i % 7), "timestamp": float64(i) * 10})
	}
	keys := make([]map[string]any, 0, 40)
	for i := 0; i < 40; i++ {
		keys = append(keys, map[string]any{"key": "a", "timestamp": float64(i) * 180})
	}
	return map[string]any{
		"sessionId":       "sess-42",
		"origin":          "https://shop.example.com",
		"mouseMovements":  moves,
		"keystrokes":      keys,
		"sessionDuration": 45000,
		"fingerprint": map[string]any{
			"userAgent":           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0",
			"screenWidth":         1920,
			"screenHeight":        1080,
			"webglVendor":         "NVIDIA Corporation",
			"canvasFingerprint":   "f0e1d2c3f0e1d2c3f0e1d2c3f0e1d2c3f0e1d2c3f0e1d2c3f0e1d2c3",
			"hardwareConcurrency": 8,
		},
	}
}

func postVerify(t *testing.T, env *Env, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.Verify(w, req)
	return w
}

func TestVerifyRawPayload(t *testing.T) {
	env, emitted := testEnv(t, true)

	w := postVerify(t, env, humanPayload())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp verifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.IsHuman {
		t.Errorf("expected human decision, confidence %v", resp.Confidence)
	}
	if resp.Confidence <= 0.7 {
		t.Errorf("confidence = %v, want > 0.7", resp.Confidence)
	}
	if resp.VerificationID == "" {
		t.Error("missing verificationId")
	}

	if len(*emitted) != 1 {
		t.Fatalf("emitted %d records, want 1", len(*emitted))
	}
	rec := (*emitted)[0]
	if rec.SessionID != "sess-42" || rec.Origin != "https://shop.example.com" {
		t.Errorf("record identity = %q %q", rec.SessionID, rec.Origin)
	}
	if len(rec.Features) != 11 {
		t.Errorf("record features = %d values, want 11", len(rec.Features))
	}
}

func TestVerifyBotPayload(t *testing.T) {
	env, _ := testEnv(t, true)

	payload := map[string]any{
		"sessionId": "sess-bot",
		"mouseMovements": []map[string]any{
			{"x": 0, "y": 0, "timestamp": 0},
			{"x": 1, "y": 0, "timestamp": 500},
			{"x": 2, "y": 0, "timestamp": 1000},
		},
		"sessionDuration": 1500,
		"fingerprint":     map[string]any{},
	}

	w := postVerify(t, env, payload)
	var resp verifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IsHuman {
		t.Errorf("expected bot decision, confidence %v", resp.Confidence)
	}
	if resp.Confidence >= 0.3 {
		t.Errorf("confidence = %v, want < 0.3", resp.Confidence)
	}
}

func TestVerifyPreExtractedFeatures(t *testing.T) {
	env, _ := testEnv(t, true)

	payload := map[string]any{
		"sessionId": "sess-edge",
		"features": map[string]float64{
			"mouse_movement_count":        150,
			"avg_mouse_velocity":          0.8,
			"mouse_acceleration_variance": 0.09,
			"keystroke_count":             40,
			"avg_keystroke_interval":      180,
			"session_duration_normalized": 0.15,
			"scroll_pattern_score":        0.5,
			"webgl_support_score":         0.9,
			"canvas_fingerprint_score":    0.8,
			"hardware_legitimacy_score":   1.0,
			"browser_consistency_score":   0.8,
		},
	}

	w := postVerify(t, env, payload)
	var resp verifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsHuman {
		t.Errorf("expected human decision, confidence %v", resp.Confidence)
	}
}

func TestVerifySafeDefaultWithoutModel(t *testing.T) {
	env, emitted := testEnv(t, false)

	w := postVerify(t, env, map[string]any{"sessionId": "s"})
	var resp verifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsHuman || resp.Confidence != 0.5 {
		t.Errorf("safe default = (%v, %v), want (true, 0.5)", resp.IsHuman, resp.Confidence)
	}
	if len(*emitted) != 1 || !(*emitted)[0].Fallback {
		t.Error("fallback decision should still be audited, marked as fallback")
	}
}

func TestVerifyRejections(t *testing.T) {
	env, _ := testEnv(t, false)

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/verify", nil)
		w := httptest.NewRecorder()
		env.Verify(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte("x")))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		env.Verify(w, req)
		if w.Code != http.StatusUnsupportedMediaType {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte("{nope")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		env.Verify(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestHealthAndReady(t *testing.T) {
	env, _ := testEnv(t, false)

	w := httptest.NewRecorder()
	env.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	env.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("readyz status = %d", w.Code)
	}
	var ready struct {
		Ready       bool `json:"ready"`
		ModelLoaded bool `json:"model_loaded"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ready); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ready.Ready || ready.ModelLoaded {
		t.Errorf("readyz = %+v, want ready without model", ready)
	}
}

func TestModelReload(t *testing.T) {
	t.Run("reloads a valid artifact", func(t *testing.T) {
		dir := t.TempDir()
		if err := artifact(t).Save(dir); err != nil {
			t.Fatalf("save artifact: %v", err)
		}

		env, _ := testEnv(t, false)
		env.Cfg.ModelDir = dir

		req := httptest.NewRequest(http.MethodPost, "/model/reload", nil)
		w := httptest.NewRecorder()
		env.ModelReload(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		if !env.Service.Ready() {
			t.Error("service should have a model after reload")
		}
	})

	t.Run("missing artifact keeps serving", func(t *testing.T) {
		env, _ := testEnv(t, false)
		env.Cfg.ModelDir = t.TempDir()

		req := httptest.NewRequest(http.MethodPost, "/model/reload", nil)
		w := httptest.NewRecorder()
		env.ModelReload(w, req)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d", w.Code)
		}
		if env.Service.Ready() {
			t.Error("failed reload must not publish a model")
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		env, _ := testEnv(t, false)
		req := httptest.NewRequest(http.MethodGet, "/model/reload", nil)
		w := httptest.NewRecorder()
		env.ModelReload(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	env, _ := testEnv(t, false)
	h := NewMux(*env)

	req := httptest.NewRequest(http.MethodOptions, "/verify", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}
