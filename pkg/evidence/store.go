// Package evidence implements the content-addressed evidence store. A
// verdict recorded on the ledger must always be traceable to the exact
// bytes it was produced from; the store keys every payload by its digest
// so writing the same bytes twice is idempotent.
package evidence

import (
	"context"
	"fmt"
	"sync"

	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/digest"
)

// Kind is the content kind of an evidence blob.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindFeatureVector
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindFeatureVector:
		return "feature-vector"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Info describes a stored evidence blob.
type Info struct {
	Length uint64
	Kind   Kind
}

// Store is the evidence store contract. All implementations are safe for
// unrestricted concurrent use: puts are idempotent and keyed by content
// digest, so concurrent puts of identical content race harmlessly to the
// same result.
type Store interface {
	// Put stores payload under its content digest and returns the digest.
	// Calling twice with identical bytes yields the same digest and does
	// not duplicate storage. A medium failure surfaces core.ErrIOFailure.
	Put(ctx context.Context, payload []byte, kind Kind) (digest.Digest, error)

	// Get retrieves a payload by digest. A digest that was never stored
	// (or was evicted, in a bounded variant) yields core.ErrNotFound.
	Get(ctx context.Context, d digest.Digest) ([]byte, Info, error)

	// Has reports whether a digest is currently retrievable.
	Has(ctx context.Context, d digest.Digest) (bool, error)

	Close() error
}

type memoryEntry struct {
	payload []byte
	kind    Kind
}

// memoryStore retains every blob for the lifetime of the process. This is
// the reference contract; callers needing bounded memory swap in
// NewBounded or the persistent store behind the same interface.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[digest.Digest]memoryEntry
	closed  bool
}

// NewMemory returns an unbounded in-memory store.
func NewMemory() Store {
	return &memoryStore{entries: make(map[digest.Digest]memoryEntry)}
}

func (s *memoryStore) Put(ctx context.Context, payload []byte, kind Kind) (digest.Digest, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", core.ErrInvalidInput)
	}

	d, err := digest.Sum(payload)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", core.ErrClosed
	}

	if _, ok := s.entries[d]; !ok {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		s.entries[d] = memoryEntry{payload: cp, kind: kind}
	}
	return d, nil
}

func (s *memoryStore) Get(ctx context.Context, d digest.Digest) ([]byte, Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, Info{}, core.ErrClosed
	}

	e, ok := s.entries[d]
	if !ok {
		return nil, Info{}, core.ErrNotFound
	}

	cp := make([]byte, len(e.payload))
	copy(cp, e.payload)
	return cp, Info{Length: uint64(len(e.payload)), Kind: e.kind}, nil
}

func (s *memoryStore) Has(ctx context.Context, d digest.Digest) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, core.ErrClosed
	}
	_, ok := s.entries[d]
	return ok, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
