// Package inference defines the contract with the external model-serving
// collaborator. The models themselves are out of scope; this package only
// fixes the request/response shapes the audit pipeline depends on.
package inference

import (
	"context"
	"fmt"

	"github.com/medtrace/diagledger/pkg/core"
)

// Modality distinguishes the two independent classifiers per disease.
type Modality uint8

const (
	ModalityTabular Modality = iota + 1
	ModalityImage
)

func (m Modality) String() string {
	switch m {
	case ModalityTabular:
		return "tabular"
	case ModalityImage:
		return "image"
	default:
		return "unknown"
	}
}

// ModelKind selects a concrete model: one disease, one modality.
type ModelKind struct {
	DiseaseType string
	Modality    Modality
}

// Input carries the raw evidence for one inference call. Exactly one of
// Features or ImageBytes is consulted, depending on the model's modality.
type Input struct {
	Features   []float64
	ImageBytes []byte
}

// Service is the inference collaborator. Synchronous; each modality may
// fail independently with core.ErrModelUnavailable or core.ErrInvalidInput.
type Service interface {
	Infer(ctx context.Context, kind ModelKind, in Input) (core.ClassifierResult, error)
}

// Scripted is a deterministic local Service keyed by model kind, used in
// examples and tests where no model host is reachable.
type Scripted struct {
	results map[ModelKind]core.ClassifierResult
}

// NewScripted returns a Service that replays the given results.
func NewScripted(results map[ModelKind]core.ClassifierResult) *Scripted {
	cp := make(map[ModelKind]core.ClassifierResult, len(results))
	for k, v := range results {
		cp[k] = v
	}
	return &Scripted{results: cp}
}

func (s *Scripted) Infer(ctx context.Context, kind ModelKind, in Input) (core.ClassifierResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ClassifierResult{}, err
	}

	switch kind.Modality {
	case ModalityTabular:
		if len(in.Features) == 0 {
			return core.ClassifierResult{}, fmt.Errorf("%w: tabular model requires a feature vector", core.ErrInvalidInput)
		}
	case ModalityImage:
		if len(in.ImageBytes) == 0 {
			return core.ClassifierResult{}, fmt.Errorf("%w: image model requires image bytes", core.ErrInvalidInput)
		}
	default:
		return core.ClassifierResult{}, fmt.Errorf("%w: unknown modality", core.ErrInvalidInput)
	}

	res, ok := s.results[kind]
	if !ok {
		return core.ClassifierResult{}, fmt.Errorf("%w: no model for %s/%s", core.ErrModelUnavailable, kind.DiseaseType, kind.Modality)
	}
	return res, nil
}
