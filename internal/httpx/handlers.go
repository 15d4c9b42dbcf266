package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/passivecaptcha/server/internal/feature"
	"github.com/passivecaptcha/server/internal/ml"
	"github.com/passivecaptcha/server/internal/signal"
	"github.com/passivecaptcha/server/internal/sink"
	"github.com/passivecaptcha/server/internal/verify"
)

// verifyRequest is the inbound contract: session identity plus either the
// raw behavioral payload (embedded Bundle fields) or a pre-extracted
// feature map. When both are present the feature map wins.
type verifyRequest struct {
	SessionID string `json:"sessionId"`
	Origin    string `json:"origin"`
	signal.Bundle
	Features map[string]float64 `json:"features,omitempty"`
}

type verifyResponse struct {
	VerificationID  string  `json:"verificationId"`
	IsHuman         bool    `json:"isHuman"`
	Confidence      float64 `json:"confidence"`
	InferenceTimeMs float64 `json:"inferenceTimeMs"`
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	// The service stays up without a model (safe-default mode), so readiness
	// always passes but reports which mode is serving.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ready":        true,
		"model_loaded": e.Service.Ready(),
	})
}

// POST /verify — classifies one session's behavioral signals.
func (e Env) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.Cfg.MaxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var req verifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	d := e.decide(req)

	if e.Emit != nil {
		e.Emit(sink.Record{
			VerificationID:  d.VerificationID,
			SessionID:       req.SessionID,
			Origin:          req.Origin,
			IsHuman:         d.IsHuman,
			Confidence:      d.Confidence,
			InferenceTimeMs: d.InferenceTimeMs,
			Fallback:        d.Fallback,
			Features:        d.Features.Slice(),
			TS:              time.Now().UTC(),
		})
	}
	e.Metrics.ObserveDecision(d.IsHuman, d.Fallback, d.InferenceTimeMs)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(verifyResponse{
		VerificationID:  d.VerificationID,
		IsHuman:         d.IsHuman,
		Confidence:      d.Confidence,
		InferenceTimeMs: d.InferenceTimeMs,
	})
}

func (e Env) decide(req verifyRequest) verify.Decision {
	if req.Features != nil {
		return e.Service.VerifyFeatures(feature.FromMap(req.Features))
	}
	return e.Service.VerifyRaw(req.Bundle)
}

// POST /model/reload — loads the artifact from disk and swaps it in. On any
// failure the previously loaded artifact keeps serving.
func (e Env) ModelReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	artifact, err := ml.Load(e.Cfg.ModelDir)
	if err == nil {
		err = e.Service.SetArtifact(artifact)
	}

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"reloaded": false, "error": err.Error()})
		return
	}

	if e.Metrics != nil {
		e.Metrics.ModelAccuracy.Set(artifact.Meta.Accuracy)
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"reloaded":     true,
		"algorithm":    artifact.Meta.Algorithm,
		"accuracy":     artifact.Meta.Accuracy,
		"last_trained": artifact.Meta.LastTrained,
	})
}
