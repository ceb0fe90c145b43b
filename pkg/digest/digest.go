// Package digest computes content-addressing keys for evidence payloads.
//
// A Digest is a constant two-character store tag followed by the fixed-width
// hex encoding of a SHA2-256 multihash digest. The tag leaves room for
// alternate content-addressing schemes without changing the key shape.
package digest

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/medtrace/diagledger/pkg/core"
)

const (
	// Tag prefixes every encoded digest.
	Tag = "Qm"

	// hexLen is the hex width of a SHA2-256 digest.
	hexLen = 64

	// EncodedLen is the total length of an encoded digest string.
	EncodedLen = len(Tag) + hexLen
)

// Digest is a content-addressing key for a byte sequence.
type Digest string

func (d Digest) String() string { return string(d) }

// Hex returns the digest without the store tag.
func (d Digest) Hex() string { return strings.TrimPrefix(string(d), Tag) }

// Sum computes the digest of payload. Identical bytes always produce the
// same digest.
func Sum(payload []byte) (Digest, error) {
	mh, err := multihash.Sum(payload, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("compute multihash: %w", err)
	}

	dec, err := multihash.Decode(mh)
	if err != nil {
		return "", fmt.Errorf("decode multihash: %w", err)
	}

	return Digest(Tag + hex.EncodeToString(dec.Digest)), nil
}

// Parse validates an encoded digest string.
func Parse(s string) (Digest, error) {
	if len(s) != EncodedLen {
		return "", fmt.Errorf("%w: digest must be %d characters, got %d", core.ErrInvalidInput, EncodedLen, len(s))
	}
	if !strings.HasPrefix(s, Tag) {
		return "", fmt.Errorf("%w: digest missing %q tag", core.ErrInvalidInput, Tag)
	}
	if _, err := hex.DecodeString(s[len(Tag):]); err != nil {
		return "", fmt.Errorf("%w: digest is not hex: %v", core.ErrInvalidInput, err)
	}
	return Digest(s), nil
}

// Verify recomputes the digest of payload and compares it to d.
func Verify(d Digest, payload []byte) error {
	got, err := Sum(payload)
	if err != nil {
		return err
	}
	if got != d {
		return fmt.Errorf("%w: digest mismatch", core.ErrCorrupt)
	}
	return nil
}

// ChunkCID builds a raw-codec CIDv1 for a chunk of a stored payload.
func ChunkCID(plain []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(plain, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("compute multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}
