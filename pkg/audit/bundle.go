package audit

import (
	"context"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-car/v2/blockstore"

	"github.com/medtrace/diagledger/pkg/digest"
	"github.com/medtrace/diagledger/pkg/evidence"
)

// ExportBundle writes the evidence payloads behind a verdict into a CAR
// archive at path, one raw block per payload, rooted at the payload CIDs.
// The bundle is self-verifying: a reader recomputes each block's CID and
// the evidence digests without access to the store.
func ExportBundle(ctx context.Context, path string, store evidence.Store, digests ...digest.Digest) error {
	if len(digests) == 0 {
		return fmt.Errorf("export bundle: no digests given")
	}

	type bundleBlock struct {
		cid     cid.Cid
		payload []byte
	}

	// Fetch everything first so a missing digest fails before the archive
	// file is created.
	var (
		roots []cid.Cid
		blks  []bundleBlock
	)
	for _, d := range digests {
		payload, _, err := store.Get(ctx, d)
		if err != nil {
			return fmt.Errorf("load evidence %s: %w", d, err)
		}
		c, err := digest.ChunkCID(payload)
		if err != nil {
			return err
		}
		roots = append(roots, c)
		blks = append(blks, bundleBlock{cid: c, payload: payload})
	}

	bs, err := blockstore.OpenReadWrite(path, roots)
	if err != nil {
		return fmt.Errorf("create bundle %s: %w", path, err)
	}

	for _, b := range blks {
		blk, err := blocks.NewBlockWithCid(b.payload, b.cid)
		if err != nil {
			return fmt.Errorf("build bundle block: %w", err)
		}
		if err := bs.Put(ctx, blk); err != nil {
			return fmt.Errorf("write bundle block: %w", err)
		}
	}

	if err := bs.Finalize(); err != nil {
		return fmt.Errorf("finalize bundle: %w", err)
	}
	return nil
}

// VerifyBundle opens a CAR archive and checks every root block against the
// given digests, returning the payloads keyed by digest.
func VerifyBundle(ctx context.Context, path string, digests ...digest.Digest) (map[digest.Digest][]byte, error) {
	bs, err := blockstore.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle %s: %w", path, err)
	}
	defer bs.Close()

	out := make(map[digest.Digest][]byte, len(digests))
	roots, err := bs.Roots()
	if err != nil {
		return nil, fmt.Errorf("read bundle roots: %w", err)
	}

	for _, root := range roots {
		blk, err := bs.Get(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("read bundle block %s: %w", root, err)
		}
		d, err := digest.Sum(blk.RawData())
		if err != nil {
			return nil, err
		}
		out[d] = blk.RawData()
	}

	for _, d := range digests {
		if _, ok := out[d]; !ok {
			return nil, fmt.Errorf("bundle is missing evidence %s", d)
		}
	}
	return out, nil
}
