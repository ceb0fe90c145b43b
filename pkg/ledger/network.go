package ledger

import (
	"context"
)

// Network groups the operations of the external ledger network the client
// depends on. The network acknowledges submissions immediately and
// confirms inclusion asynchronously; it rejects any transaction whose
// sequence number is not exactly the account's next expected value.
type Network interface {
	// SequenceNumber returns the account's next expected sequence number.
	SequenceNumber(ctx context.Context, account string) (uint64, error)

	// Submit hands a signed transaction to the network. A stale sequence
	// number fails with core.ErrSequenceConflict; success only means the
	// transaction was accepted for ordering, not that it was included.
	Submit(ctx context.Context, tx SignedTransaction) error

	// Confirm blocks until the transaction reaches inclusion or ctx ends.
	// Re-observing a confirmed transaction returns the same Confirmation.
	Confirm(ctx context.Context, id TxID) (Confirmation, error)

	// Record reads a confirmed record back by its identifier; a record
	// that was never confirmed yields core.ErrNotFound.
	Record(ctx context.Context, id RecordID) (Record, error)

	// Balance reports the account's spendable credit.
	Balance(ctx context.Context, account string) (uint64, error)

	// Publish deploys the append/read program under the account and
	// returns its address. A one-time provisioning operation.
	Publish(ctx context.Context, account string, program []byte) (Endpoint, error)
}
