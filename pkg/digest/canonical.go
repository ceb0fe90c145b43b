package digest

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/medtrace/diagledger/pkg/core"
)

// featuresEncMode uses canonical CBOR (Core Deterministic Encoding
// Requirements) so that the same feature vector encodes to the same bytes
// on every platform. Element order is the caller's field order; floats use
// the deterministic shortest IEEE-754 form. This convention is fixed: a
// verdict's data digest is only reproducible against bytes produced here.
var featuresEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("canonical cbor enc mode: %v", err))
	}
	featuresEncMode = em
}

// CanonicalFeatures serializes a tabular feature vector into its canonical
// byte form for digesting and storage. NaN and infinities are rejected:
// they have no stable clinical meaning and would poison digest stability.
func CanonicalFeatures(features []float64) ([]byte, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: empty feature vector", core.ErrInvalidInput)
	}
	for i, f := range features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: feature %d is not finite", core.ErrInvalidInput, i)
		}
	}
	return featuresEncMode.Marshal(features)
}

// DecodeFeatures reverses CanonicalFeatures.
func DecodeFeatures(b []byte) ([]float64, error) {
	var features []float64
	if err := cbor.Unmarshal(b, &features); err != nil {
		return nil, fmt.Errorf("%w: decode feature vector: %v", core.ErrCorrupt, err)
	}
	return features, nil
}
