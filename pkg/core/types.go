package core

// ClassifierResult is the output of one model for one modality.
// Immutable once returned by the inference service.
type ClassifierResult struct {
	Label      string
	Confidence float64 // percent in [0,100]
}

// FinalLabel is the fused clinical decision.
type FinalLabel string

const (
	LabelPositive FinalLabel = "Positive"
	LabelNegative FinalLabel = "Negative"
)

// RiskTier buckets the fused confidence. Boundaries are inclusive on the
// lower bound of each tier.
type RiskTier string

const (
	RiskLow    RiskTier = "Low"
	RiskMedium RiskTier = "Medium"
	RiskHigh   RiskTier = "High"
)

// FusedVerdict is the single decision derived from two classifier results.
// Never mutated after creation.
type FusedVerdict struct {
	FinalLabel FinalLabel
	Confidence float64
	RiskTier   RiskTier
}
