// Package fusion merges two independent classifier results into a single
// clinical verdict. Fusion is a pure function: no I/O, no shared state,
// safe to call from any number of goroutines without synchronization.
package fusion

import (
	"fmt"
	"math"

	"github.com/medtrace/diagledger/pkg/core"
)

// DiseaseLabels names the positive-class label set for each modality of
// one disease. The sets are configured, never inferred: the diabetes image
// model reports "Retinopathy", not "Positive".
type DiseaseLabels struct {
	TabularPositive []string
	TabularNegative []string
	ImagePositive   []string
	ImageNegative   []string
}

// Config maps disease types to their label vocabularies.
type Config struct {
	Diseases map[string]DiseaseLabels
}

// DefaultConfig covers the diseases the reference deployment serves.
func DefaultConfig() Config {
	return Config{
		Diseases: map[string]DiseaseLabels{
			"Diabetes": {
				TabularPositive: []string{"Positive"},
				TabularNegative: []string{"Negative"},
				ImagePositive:   []string{"Retinopathy"},
				ImageNegative:   []string{"No Retinopathy"},
			},
			"Heart Disease": {
				TabularPositive: []string{"Disease"},
				TabularNegative: []string{"No Disease"},
				ImagePositive:   []string{"Disease"},
				ImageNegative:   []string{"No Disease"},
			},
		},
	}
}

// Engine fuses classifier results according to a configured vocabulary.
type Engine struct {
	cfg Config
}

// NewEngine returns a fusion engine for the given vocabulary.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Fuse combines a tabular and an image classifier result into one verdict:
//
//   - final label is Positive iff either modality's label is in its
//     positive set, regardless of the other modality's confidence;
//   - confidence is the exact arithmetic mean of the two confidences;
//   - risk tier is High for confidence >= 80, Medium for >= 50, else Low.
//
// Malformed inputs (confidence outside [0,100], a label outside the
// disease's vocabulary, an unknown disease) fail with core.ErrInvalidResult
// rather than being clamped.
func (e *Engine) Fuse(diseaseType string, tabular, image core.ClassifierResult) (core.FusedVerdict, error) {
	labels, ok := e.cfg.Diseases[diseaseType]
	if !ok {
		return core.FusedVerdict{}, fmt.Errorf("%w: unknown disease type %q", core.ErrInvalidResult, diseaseType)
	}

	if err := validateConfidence("tabular", tabular.Confidence); err != nil {
		return core.FusedVerdict{}, err
	}
	if err := validateConfidence("image", image.Confidence); err != nil {
		return core.FusedVerdict{}, err
	}

	tabularPositive, err := classify("tabular", tabular.Label, labels.TabularPositive, labels.TabularNegative)
	if err != nil {
		return core.FusedVerdict{}, err
	}
	imagePositive, err := classify("image", image.Label, labels.ImagePositive, labels.ImageNegative)
	if err != nil {
		return core.FusedVerdict{}, err
	}

	label := core.LabelNegative
	if tabularPositive || imagePositive {
		label = core.LabelPositive
	}

	confidence := (tabular.Confidence + image.Confidence) / 2

	return core.FusedVerdict{
		FinalLabel: label,
		Confidence: confidence,
		RiskTier:   tierFor(confidence),
	}, nil
}

func tierFor(confidence float64) core.RiskTier {
	switch {
	case confidence >= 80:
		return core.RiskHigh
	case confidence >= 50:
		return core.RiskMedium
	default:
		return core.RiskLow
	}
}

func validateConfidence(modality string, c float64) error {
	if math.IsNaN(c) || c < 0 || c > 100 {
		return fmt.Errorf("%w: %s confidence %v outside [0,100]", core.ErrInvalidResult, modality, c)
	}
	return nil
}

func classify(modality, label string, positive, negative []string) (bool, error) {
	if contains(positive, label) {
		return true, nil
	}
	if contains(negative, label) {
		return false, nil
	}
	return false, fmt.Errorf("%w: unrecognized %s label %q", core.ErrInvalidResult, modality, label)
}

func contains(set []string, label string) bool {
	for _, s := range set {
		if s == label {
			return true
		}
	}
	return false
}
