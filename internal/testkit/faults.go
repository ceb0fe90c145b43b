package testkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/digest"
	"github.com/medtrace/diagledger/pkg/evidence"
	"github.com/medtrace/diagledger/pkg/ledger"
)

var ErrInjectedFault = errors.New("injected fault")

// FlakyNetwork wraps a ledger.Network and injects failures into the first
// N calls of each kind. Counters are atomic so it can sit under concurrent
// append tests.
type FlakyNetwork struct {
	ledger.Network

	// OnSubmit runs before each Submit is processed, with the 1-based
	// call number. Tests use it to race rival transactions in.
	OnSubmit func(call int32)

	// ConflictSubmits makes the first N Submit calls fail with
	// core.ErrSequenceConflict without reaching the inner network.
	ConflictSubmits int32

	// FailSubmits makes the next N Submit calls fail with ErrInjectedFault.
	FailSubmits int32

	// StallConfirms makes the first N Confirm calls block until the
	// caller's context ends.
	StallConfirms int32

	SubmitCalls  atomic.Int32
	ConfirmCalls atomic.Int32

	conflictsLeft atomic.Int32
	failsLeft     atomic.Int32
	stallsLeft    atomic.Int32
	initOnce      sync.Once
}

func (f *FlakyNetwork) init() {
	f.initOnce.Do(func() {
		f.conflictsLeft.Store(f.ConflictSubmits)
		f.failsLeft.Store(f.FailSubmits)
		f.stallsLeft.Store(f.StallConfirms)
	})
}

func (f *FlakyNetwork) Submit(ctx context.Context, tx ledger.SignedTransaction) error {
	f.init()
	call := f.SubmitCalls.Add(1)
	if f.OnSubmit != nil {
		f.OnSubmit(call)
	}

	if f.conflictsLeft.Add(-1) >= 0 {
		return fmt.Errorf("%w: injected", core.ErrSequenceConflict)
	}
	if f.failsLeft.Add(-1) >= 0 {
		return ErrInjectedFault
	}
	return f.Network.Submit(ctx, tx)
}

func (f *FlakyNetwork) Confirm(ctx context.Context, id ledger.TxID) (ledger.Confirmation, error) {
	f.init()
	f.ConfirmCalls.Add(1)

	if f.stallsLeft.Add(-1) >= 0 {
		<-ctx.Done()
		return ledger.Confirmation{}, ctx.Err()
	}
	return f.Network.Confirm(ctx, id)
}

// FailingStore is an evidence.Store whose writes fail with
// core.ErrIOFailure, for exercising the coordinator's atomicity contract.
// FailAfter puts succeed before the medium "goes away".
type FailingStore struct {
	Inner     evidence.Store
	FailAfter int

	puts atomic.Int32
}

func (s *FailingStore) Put(ctx context.Context, payload []byte, kind evidence.Kind) (digest.Digest, error) {
	if int(s.puts.Add(1)) > s.FailAfter {
		return "", fmt.Errorf("%w: %v", core.ErrIOFailure, ErrInjectedFault)
	}
	return s.Inner.Put(ctx, payload, kind)
}

func (s *FailingStore) Get(ctx context.Context, d digest.Digest) ([]byte, evidence.Info, error) {
	return s.Inner.Get(ctx, d)
}

func (s *FailingStore) Has(ctx context.Context, d digest.Digest) (bool, error) {
	return s.Inner.Has(ctx, d)
}

func (s *FailingStore) Close() error { return s.Inner.Close() }
