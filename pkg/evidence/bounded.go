package evidence

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/digest"
)

// boundedStore is an eviction-aware variant of the in-memory store for
// callers that cannot afford unbounded retention. It honors the same
// Put/Get contract; an evicted digest reads back as core.ErrNotFound,
// which the contract permits for bounded variants.
type boundedStore struct {
	mu     sync.Mutex
	cache  *lru.Cache[digest.Digest, memoryEntry]
	closed bool
}

// NewBounded returns a store that retains at most capacity blobs,
// evicting least-recently-used entries.
func NewBounded(capacity int) (Store, error) {
	cache, err := lru.New[digest.Digest, memoryEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	return &boundedStore{cache: cache}, nil
}

func (s *boundedStore) Put(ctx context.Context, payload []byte, kind Kind) (digest.Digest, error) {
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

	if _, ok := s.cache.Get(d); !ok {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		s.cache.Add(d, memoryEntry{payload: cp, kind: kind})
	}
	return d, nil
}

func (s *boundedStore) Get(ctx context.Context, d digest.Digest) ([]byte, Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, Info{}, core.ErrClosed
	}

	e, ok := s.cache.Get(d)
	if !ok {
		return nil, Info{}, core.ErrNotFound
	}

	cp := make([]byte, len(e.payload))
	copy(cp, e.payload)
	return cp, Info{Length: uint64(len(e.payload)), Kind: e.kind}, nil
}

func (s *boundedStore) Has(ctx context.Context, d digest.Digest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, core.ErrClosed
	}
	return s.cache.Contains(d), nil
}

func (s *boundedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cache.Purge()
	return nil
}
