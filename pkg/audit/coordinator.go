// Package audit orchestrates a single diagnosis request: inference on both
// modalities, fusion, evidence commitment, and the ledger append, producing
// one atomic-from-the-caller's-perspective result.
package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/digest"
	"github.com/medtrace/diagledger/pkg/evidence"
	"github.com/medtrace/diagledger/pkg/fusion"
	"github.com/medtrace/diagledger/pkg/inference"
	"github.com/medtrace/diagledger/pkg/ledger"
)

// Appender is the slice of the ledger client the coordinator drives.
type Appender interface {
	Append(ctx context.Context, rec ledger.Record) (ledger.Confirmation, error)
}

// Prm groups the collaborators of an audit coordinator.
type Prm struct {
	Logger    *zap.Logger
	Inference inference.Service
	Fusion    *fusion.Engine
	Evidence  evidence.Store
	Ledger    Appender
}

// Coordinator runs the diagnosis pipeline. Safe for concurrent use: the
// fusion engine is pure, evidence puts are idempotent, and the ledger
// client sequences its own account state.
type Coordinator struct {
	log       *zap.Logger
	inference inference.Service
	fusion    *fusion.Engine
	evidence  evidence.Store
	ledger    Appender
}

// New validates prm and returns a ready coordinator.
func New(prm Prm) (*Coordinator, error) {
	if prm.Inference == nil || prm.Fusion == nil || prm.Evidence == nil || prm.Ledger == nil {
		return nil, fmt.Errorf("%w: coordinator requires inference, fusion, evidence and ledger collaborators", core.ErrInvalidInput)
	}
	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}
	return &Coordinator{
		log:       prm.Logger,
		inference: prm.Inference,
		fusion:    prm.Fusion,
		evidence:  prm.Evidence,
		ledger:    prm.Ledger,
	}, nil
}

// Request carries one diagnosis request's raw inputs.
type Request struct {
	PatientID   string
	DiseaseType string
	Features    []float64
	ImageBytes  []byte
}

// Outcome is the result of a fully recorded diagnosis.
type Outcome struct {
	Verdict       core.FusedVerdict
	TabularResult core.ClassifierResult
	ImageResult   core.ClassifierResult
	DataDigest    digest.Digest
	ImageDigest   digest.Digest
	Confirmation  ledger.Confirmation
}

// DiagnosisError is a terminal pipeline failure. It carries whatever
// evidence digests were committed before the failure so the caller can
// retry the whole diagnosis later without losing evidence provenance.
type DiagnosisError struct {
	Stage       string
	DataDigest  digest.Digest
	ImageDigest digest.Digest
	Err         error
}

func (e *DiagnosisError) Error() string {
	return fmt.Sprintf("diagledger: diagnosis failed at %s stage: %v", e.Stage, e.Err)
}

func (e *DiagnosisError) Unwrap() error { return e.Err }

// RecordDiagnosis runs one diagnosis end to end and returns the fused
// verdict, both evidence digests, and the ledger confirmation.
//
// Atomicity: if evidence commitment fails, no ledger append is attempted;
// a verdict must never be recorded without retrievable evidence backing
// it. If the append fails irrecoverably after evidence was committed, the
// evidence stays stored (orphaned but harmless) and the error carries the
// digests; the pipeline is not retried here, only the ledger client
// retries the append internally.
func (c *Coordinator) RecordDiagnosis(ctx context.Context, req Request) (Outcome, error) {
	if req.PatientID == "" || req.DiseaseType == "" {
		return Outcome{}, fmt.Errorf("%w: patient id and disease type are required", core.ErrInvalidInput)
	}

	tabular, err := c.inference.Infer(ctx, inference.ModelKind{
		DiseaseType: req.DiseaseType,
		Modality:    inference.ModalityTabular,
	}, inference.Input{Features: req.Features})
	if err != nil {
		return Outcome{}, &DiagnosisError{Stage: "inference", Err: fmt.Errorf("tabular model: %w", err)}
	}

	image, err := c.inference.Infer(ctx, inference.ModelKind{
		DiseaseType: req.DiseaseType,
		Modality:    inference.ModalityImage,
	}, inference.Input{ImageBytes: req.ImageBytes})
	if err != nil {
		return Outcome{}, &DiagnosisError{Stage: "inference", Err: fmt.Errorf("image model: %w", err)}
	}

	verdict, err := c.fusion.Fuse(req.DiseaseType, tabular, image)
	if err != nil {
		return Outcome{}, &DiagnosisError{Stage: "fusion", Err: err}
	}

	c.log.Debug("classifier results fused",
		zap.String("patient", req.PatientID),
		zap.String("disease", req.DiseaseType),
		zap.String("label", string(verdict.FinalLabel)),
		zap.Float64("confidence", verdict.Confidence))

	canonical, err := digest.CanonicalFeatures(req.Features)
	if err != nil {
		return Outcome{}, &DiagnosisError{Stage: "evidence", Err: err}
	}

	dataDigest, err := c.evidence.Put(ctx, canonical, evidence.KindFeatureVector)
	if err != nil {
		return Outcome{}, &DiagnosisError{Stage: "evidence", Err: fmt.Errorf("commit feature vector: %w", err)}
	}

	imageDigest, err := c.evidence.Put(ctx, req.ImageBytes, evidence.KindImage)
	if err != nil {
		return Outcome{}, &DiagnosisError{
			Stage:      "evidence",
			DataDigest: dataDigest,
			Err:        fmt.Errorf("commit image: %w", err),
		}
	}

	conf, err := c.ledger.Append(ctx, ledger.Record{
		PatientID:   req.PatientID,
		DiseaseType: req.DiseaseType,
		Prediction:  string(verdict.FinalLabel),
		DataDigest:  dataDigest.String(),
		ImageDigest: imageDigest.String(),
	})
	if err != nil {
		return Outcome{}, &DiagnosisError{
			Stage:       "ledger",
			DataDigest:  dataDigest,
			ImageDigest: imageDigest,
			Err:         err,
		}
	}

	c.log.Info("diagnosis recorded",
		zap.String("patient", req.PatientID),
		zap.String("disease", req.DiseaseType),
		zap.String("record", string(conf.RecordID)),
		zap.Uint64("sequence", conf.Sequence))

	return Outcome{
		Verdict:       verdict,
		TabularResult: tabular,
		ImageResult:   image,
		DataDigest:    dataDigest,
		ImageDigest:   imageDigest,
		Confirmation:  conf,
	}, nil
}
