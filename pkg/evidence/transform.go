package evidence

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/medtrace/diagledger/pkg/core"
)

const (
	transformMagic   = "EVID"
	transformVersion = 1
)

const (
	flagCompressed = 1 << 0
)

const (
	algZstd = 1
)

// transform encodes and decodes stored block payloads.
type transform interface {
	Name() string
	Encode(plain []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

type noneTransform struct{}

func newNoneTransform() transform { return &noneTransform{} }

func (t *noneTransform) Name() string                         { return "none" }
func (t *noneTransform) Encode(plain []byte) ([]byte, error)  { return plain, nil }
func (t *noneTransform) Decode(stored []byte) ([]byte, error) { return stored, nil }

// zstdTransform wraps blocks in a small envelope and compresses them.
// Radiology images and serialized feature vectors both compress well.
type zstdTransform struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdTransform(level int) transform {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(level)))
	if err != nil {
		panic(fmt.Sprintf("create zstd writer: %v", err))
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("create zstd reader: %v", err))
	}
	return &zstdTransform{encoder: enc, decoder: dec}
}

func (t *zstdTransform) Name() string { return "zstd" }

func (t *zstdTransform) Encode(plain []byte) ([]byte, error) {
	compressed := t.encoder.EncodeAll(plain, nil)

	envelope := make([]byte, 0, 7+len(compressed))
	envelope = append(envelope, transformMagic...)
	envelope = append(envelope, transformVersion, flagCompressed, algZstd)
	envelope = append(envelope, compressed...)

	return envelope, nil
}

func (t *zstdTransform) Decode(stored []byte) ([]byte, error) {
	if len(stored) < 7 {
		return nil, fmt.Errorf("%w: block too small for envelope", core.ErrCorrupt)
	}
	if string(stored[:4]) != transformMagic {
		return nil, fmt.Errorf("%w: invalid magic", core.ErrCorrupt)
	}
	if stored[4] != transformVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", core.ErrCorrupt, stored[4])
	}

	flags := stored[5]
	alg := stored[6]
	payload := stored[7:]

	if flags&flagCompressed != 0 {
		if alg != algZstd {
			return nil, fmt.Errorf("%w: unsupported compression algorithm %d", core.ErrCorrupt, alg)
		}
		return t.decoder.DecodeAll(payload, nil)
	}
	return payload, nil
}
