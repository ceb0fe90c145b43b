package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	fastcdc "github.com/jotfs/fastcdc-go"

	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/digest"
)

var (
	prefixManifest = []byte("m:")
	prefixChunk    = []byte("c:")
)

// chunkRef references a chunk of a stored payload by CID.
type chunkRef struct {
	CID []byte `cbor:"cid"`
	Len uint32 `cbor:"len"`
}

// blobManifest is the on-disk record for one evidence blob.
type blobManifest struct {
	Version uint16     `cbor:"version"`
	Kind    uint8      `cbor:"kind"`
	Length  uint64     `cbor:"length"`
	Chunks  []chunkRef `cbor:"chunks"`
}

// pebbleStore persists evidence blobs in an embedded KV store. Payloads
// are split with content-defined chunking so near-identical uploads
// (repeat scans of the same patient) deduplicate at the chunk level.
type pebbleStore struct {
	cfg       core.StoreConfig
	db        *pebble.DB
	transform transform
	encMode   cbor.EncMode

	putMu sync.Mutex // single-writer invariant for the chunk/manifest batch
}

// Open opens a persistent evidence store rooted at cfg.Dir.
func Open(cfg core.StoreConfig) (Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: store directory not specified", core.ErrInvalidInput)
	}
	if cfg.Chunking.Min == 0 {
		cfg.Chunking = core.ChunkingConfig{Min: 4096, Avg: 16384, Max: 65536}
	}

	db, err := pebble.Open(filepath.Join(cfg.Dir, "catalog"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: open catalog: %v", core.ErrIOFailure, err)
	}

	var tr transform
	switch cfg.Transform.Name {
	case "zstd":
		tr = newZstdTransform(cfg.Transform.ZstdLevel)
	case "none", "":
		tr = newNoneTransform()
	default:
		db.Close()
		return nil, fmt.Errorf("%w: unsupported transform %q", core.ErrInvalidInput, cfg.Transform.Name)
	}

	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("canonical cbor enc mode: %w", err)
	}

	return &pebbleStore{cfg: cfg, db: db, transform: tr, encMode: em}, nil
}

func (s *pebbleStore) Put(ctx context.Context, payload []byte, kind Kind) (digest.Digest, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", core.ErrInvalidInput)
	}
	if s.cfg.MaxPayloadBytes > 0 && uint64(len(payload)) > s.cfg.MaxPayloadBytes {
		return "", fmt.Errorf("%w: payload exceeds %d bytes", core.ErrInvalidInput, s.cfg.MaxPayloadBytes)
	}

	d, err := digest.Sum(payload)
	if err != nil {
		return "", err
	}

	s.putMu.Lock()
	defer s.putMu.Unlock()

	// Idempotence: an existing manifest means the exact bytes are already
	// retrievable under this digest.
	ok, err := s.hasManifest(d)
	if err != nil {
		return "", err
	}
	if ok {
		return d, nil
	}

	chunks, err := s.splitPayload(payload)
	if err != nil {
		return "", err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	var refs []chunkRef
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		c, err := digest.ChunkCID(chunk)
		if err != nil {
			return "", err
		}

		key := chunkKey(c)
		if _, closer, err := s.db.Get(key); err == nil {
			closer.Close() // dedupe hit
		} else if err == pebble.ErrNotFound {
			stored, err := s.transform.Encode(chunk)
			if err != nil {
				return "", err
			}
			if err := batch.Set(key, stored, nil); err != nil {
				return "", fmt.Errorf("%w: stage chunk: %v", core.ErrIOFailure, err)
			}
		} else {
			return "", fmt.Errorf("%w: read chunk row: %v", core.ErrIOFailure, err)
		}

		refs = append(refs, chunkRef{CID: c.Bytes(), Len: uint32(len(chunk))})
	}

	m := blobManifest{
		Version: 1,
		Kind:    uint8(kind),
		Length:  uint64(len(payload)),
		Chunks:  refs,
	}
	mBytes, err := s.encMode.Marshal(&m)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := batch.Set(manifestKey(d), mBytes, nil); err != nil {
		return "", fmt.Errorf("%w: stage manifest: %v", core.ErrIOFailure, err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return "", fmt.Errorf("%w: commit: %v", core.ErrIOFailure, err)
	}
	return d, nil
}

func (s *pebbleStore) Get(ctx context.Context, d digest.Digest) ([]byte, Info, error) {
	mBytes, closer, err := s.db.Get(manifestKey(d))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, Info{}, core.ErrNotFound
		}
		return nil, Info{}, fmt.Errorf("%w: read manifest: %v", core.ErrIOFailure, err)
	}

	var m blobManifest
	err = cbor.Unmarshal(mBytes, &m)
	closer.Close()
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: decode manifest: %v", core.ErrCorrupt, err)
	}
	if m.Version != 1 {
		return nil, Info{}, fmt.Errorf("%w: unsupported manifest version %d", core.ErrCorrupt, m.Version)
	}

	payload := make([]byte, 0, m.Length)
	for _, ref := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, Info{}, err
		}

		c, err := cid.Cast(ref.CID)
		if err != nil {
			return nil, Info{}, fmt.Errorf("%w: invalid chunk CID: %v", core.ErrCorrupt, err)
		}

		val, closer, err := s.db.Get(chunkKey(c))
		if err != nil {
			if err == pebble.ErrNotFound {
				return nil, Info{}, fmt.Errorf("%w: chunk missing", core.ErrCorrupt)
			}
			return nil, Info{}, fmt.Errorf("%w: read chunk: %v", core.ErrIOFailure, err)
		}

		// Copy before closing: pebble reclaims val's memory on Close and
		// the "none" transform would otherwise alias it.
		stored := make([]byte, len(val))
		copy(stored, val)
		closer.Close()

		plain, err := s.transform.Decode(stored)
		if err != nil {
			return nil, Info{}, err
		}
		if uint32(len(plain)) != ref.Len {
			return nil, Info{}, fmt.Errorf("%w: chunk length mismatch", core.ErrCorrupt)
		}
		payload = append(payload, plain...)
	}

	// The whole-payload digest is the source of truth.
	if err := digest.Verify(d, payload); err != nil {
		return nil, Info{}, err
	}
	return payload, Info{Length: m.Length, Kind: Kind(m.Kind)}, nil
}

func (s *pebbleStore) Has(ctx context.Context, d digest.Digest) (bool, error) {
	return s.hasManifest(d)
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}

func (s *pebbleStore) hasManifest(d digest.Digest) (bool, error) {
	_, closer, err := s.db.Get(manifestKey(d))
	if err == nil {
		closer.Close()
		return true, nil
	}
	if err == pebble.ErrNotFound {
		return false, nil
	}
	return false, fmt.Errorf("%w: read manifest: %v", core.ErrIOFailure, err)
}

// splitPayload applies content-defined chunking. Payloads smaller than the
// minimum chunk size come back as a single chunk.
func (s *pebbleStore) splitPayload(payload []byte) ([][]byte, error) {
	cdc, err := fastcdc.NewChunker(bytes.NewReader(payload), fastcdc.Options{
		MinSize:     s.cfg.Chunking.Min,
		AverageSize: s.cfg.Chunking.Avg,
		MaxSize:     s.cfg.Chunking.Max,
	})
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	var chunks [][]byte
	for {
		chunk, err := cdc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunk payload: %w", err)
		}
		cp := make([]byte, len(chunk.Data))
		copy(cp, chunk.Data)
		chunks = append(chunks, cp)
	}
	return chunks, nil
}

func manifestKey(d digest.Digest) []byte {
	return append(append([]byte{}, prefixManifest...), d.String()...)
}

func chunkKey(c cid.Cid) []byte {
	return append(append([]byte{}, prefixChunk...), c.Bytes()...)
}
