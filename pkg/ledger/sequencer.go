package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Sequencer owns one account's sequence state. Acquisition, signing and
// submission run under the account lock so that no two in-flight
// transactions are ever signed with the same sequence number and
// submission order matches acquisition order. The lock is released before
// any confirmation wait: the network enforces per-account ordering, so a
// second transaction may be built and sent before the first confirms.
type Sequencer struct {
	mu      sync.Mutex
	net     Network
	account string
}

// NewSequencer returns the single-owner guard for the account's sequence
// state on the given network.
func NewSequencer(net Network, account string) *Sequencer {
	return &Sequencer{net: net, account: account}
}

// Submit fetches the account's next sequence number, builds a transaction
// for it via build, and submits it, all while holding the account lock.
// The returned transaction is in flight; the caller waits for its
// confirmation outside the lock.
func (s *Sequencer) Submit(ctx context.Context, build func(seq uint64) (SignedTransaction, error)) (SignedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.net.SequenceNumber(ctx, s.account)
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("fetch sequence number: %w", err)
	}

	tx, err := build(seq)
	if err != nil {
		return SignedTransaction{}, err
	}

	if err := s.net.Submit(ctx, tx); err != nil {
		return tx, err
	}
	return tx, nil
}
