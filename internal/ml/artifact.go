package ml

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/passivecaptcha/server/internal/feature"
	"github.com/passivecaptcha/server/internal/ml/forest"
	"github.com/passivecaptcha/server/internal/ml/gbdt"
	"github.com/passivecaptcha/server/internal/ml/scaler"
)

// Artifact file names inside the model directory. The classifier and scaler
// are deliberately separate blobs so the scaler can be audited and reused
// independently of the model.
const (
	ClassifierFile = "classifier.gob"
	ScalerFile     = "scaler.gob"
	MetadataFile   = "metadata.json"
)

// ErrArtifactMismatch marks dimensionality/ordering disagreement between the
// stored scaler and classifier. Callers must reject the artifact rather than
// serve silently wrong predictions.
var ErrArtifactMismatch = errors.New("ml: scaler/classifier dimensionality mismatch")

// Metadata is the JSON sidecar persisted next to the model blobs.
type Metadata struct {
	Algorithm   string    `json:"algorithm"`
	Accuracy    float64   `json:"accuracy"`
	Precision   float64   `json:"precision"`
	Recall      float64   `json:"recall"`
	F1Score     float64   `json:"f1_score"`
	LastTrained time.Time `json:"last_trained"`
}

// Artifact is an immutable trained model: fitted ensemble, fitted scaler,
// and training metadata. It is built whole by the training pipeline and
// replaced whole on retrain, never mutated field-by-field.
type Artifact struct {
	Classifier *Ensemble
	Scaler     *scaler.Robust
	Meta       Metadata
}

// Score scales a raw feature vector and returns the ensemble's P(human).
func (a *Artifact) Score(v feature.Vector) (float64, error) {
	scaled, err := a.Scaler.Transform(v.Slice())
	if err != nil {
		return 0, err
	}
	return a.Classifier.PredictProba(scaled)
}

// Validate checks internal consistency against the canonical vector width.
func (a *Artifact) Validate() error {
	if a.Classifier == nil || a.Scaler == nil {
		return errors.New("ml: incomplete artifact")
	}
	if a.Scaler.Dim() != feature.Len || a.Classifier.Dim() != feature.Len {
		return fmt.Errorf("%w: scaler=%d classifier=%d want=%d",
			ErrArtifactMismatch, a.Scaler.Dim(), a.Classifier.Dim(), feature.Len)
	}
	return nil
}

// classifierBlob is the on-disk form of the ensemble: each sub-model keeps
// its own serialization.
type classifierBlob struct {
	Forest []byte
	Boost  []byte
}

// Save writes the three artifact files into dir, creating it if needed.
func (a *Artifact) Save(dir string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ml: create model dir: %w", err)
	}

	forestBlob, err := a.Classifier.Forest.Save()
	if err != nil {
		return err
	}
	boostBlob, err := a.Classifier.Boost.Save()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(classifierBlob{Forest: forestBlob, Boost: boostBlob}); err != nil {
		return fmt.Errorf("ml: encode classifier: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ClassifierFile), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("ml: write classifier: %w", err)
	}

	scalerBlob, err := a.Scaler.Save()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ScalerFile), scalerBlob, 0o644); err != nil {
		return fmt.Errorf("ml: write scaler: %w", err)
	}

	meta, err := json.MarshalIndent(a.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("ml: encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), meta, 0o644); err != nil {
		return fmt.Errorf("ml: write metadata: %w", err)
	}
	return nil
}

// Load reads and validates an artifact from dir. A dimensionality mismatch
// is reported as ErrArtifactMismatch so the caller can keep serving on the
// safe-default path.
func Load(dir string) (*Artifact, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ClassifierFile))
	if err != nil {
		return nil, fmt.Errorf("ml: read classifier: %w", err)
	}
	var blob classifierBlob
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&blob); err != nil {
		return nil, fmt.Errorf("ml: decode classifier: %w", err)
	}

	f := forest.New()
	if err := f.Load(blob.Forest); err != nil {
		return nil, err
	}
	b := gbdt.New()
	if err := b.Load(blob.Boost); err != nil {
		return nil, err
	}

	scalerRaw, err := os.ReadFile(filepath.Join(dir, ScalerFile))
	if err != nil {
		return nil, fmt.Errorf("ml: read scaler: %w", err)
	}
	var s scaler.Robust
	if err := s.Load(scalerRaw); err != nil {
		return nil, err
	}

	a := &Artifact{
		Classifier: &Ensemble{Forest: f, Boost: b},
		Scaler:     &s,
	}

	// Metadata sidecar is informational; a missing one is tolerated.
	if metaRaw, err := os.ReadFile(filepath.Join(dir, MetadataFile)); err == nil {
		if err := json.Unmarshal(metaRaw, &a.Meta); err != nil {
			return nil, fmt.Errorf("ml: decode metadata: %w", err)
		}
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
