package ledger

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/medtrace/diagledger/pkg/core"
)

// SimConfig tunes the in-process ledger network.
type SimConfig struct {
	// ConfirmLatency delays inclusion after submission. With Jitter > 0
	// confirmations arrive out of submission order, which is exactly what
	// a real network does.
	ConfirmLatency time.Duration
	Jitter         time.Duration

	// PublishFee is deducted from the account on Publish.
	PublishFee uint64

	// Seed makes the jitter deterministic for tests; 0 seeds from time.
	Seed int64
}

type simAccount struct {
	publicKey ed25519.PublicKey
	nextSeq   uint64
	balance   uint64
}

type simTx struct {
	tx   SignedTransaction
	done chan struct{}
	conf Confirmation
}

// SimNetwork is an in-process Network honoring the protocol contract:
// strict per-account sequence enforcement with rejection, immediate
// submission acknowledgement, asynchronous confirmation, and an ordered
// append-only log. It backs the examples and the failure-mode tests the
// way the original deployment's local chain did.
type SimNetwork struct {
	cfg SimConfig

	mu        sync.Mutex
	rng       *rand.Rand
	accounts  map[string]*simAccount
	inflight  map[TxID]*simTx
	confirmed map[TxID]Confirmation
	records   map[RecordID]Record
	log       []RecordID
	endpoint  *Endpoint
}

// NewSimNetwork returns an empty simulated network.
func NewSimNetwork(cfg SimConfig) *SimNetwork {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimNetwork{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		accounts:  make(map[string]*simAccount),
		inflight:  make(map[TxID]*simTx),
		confirmed: make(map[TxID]Confirmation),
		records:   make(map[RecordID]Record),
	}
}

// RegisterAccount funds an account and records its verification key.
func (n *SimNetwork) RegisterAccount(acct Account, balance uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts[acct.Identity] = &simAccount{publicKey: acct.PublicKey, balance: balance}
}

func (n *SimNetwork) SequenceNumber(ctx context.Context, account string) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.accounts[account]
	if !ok {
		return 0, fmt.Errorf("%w: unknown account %s", core.ErrNotFound, account)
	}
	return acct.nextSeq, nil
}

func (n *SimNetwork) Submit(ctx context.Context, tx SignedTransaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.accounts[tx.Account]
	if !ok {
		return fmt.Errorf("%w: unknown account %s", core.ErrNotFound, tx.Account)
	}

	hash := PayloadHash(tx.Payload)
	if !ed25519.Verify(acct.publicKey, hash[:], tx.Signature) {
		return fmt.Errorf("%w: bad transaction signature", core.ErrInvalidInput)
	}

	if tx.Sequence != acct.nextSeq {
		return fmt.Errorf("%w: got %d, expected %d", core.ErrSequenceConflict, tx.Sequence, acct.nextSeq)
	}
	acct.nextSeq++

	st := &simTx{tx: tx, done: make(chan struct{})}
	n.inflight[tx.ID] = st

	go n.include(st)
	return nil
}

// include waits the configured latency, then appends the transaction to
// the ordered log and releases its confirmation.
func (n *SimNetwork) include(st *simTx) {
	n.mu.Lock()
	delay := n.cfg.ConfirmLatency
	if n.cfg.Jitter > 0 {
		delay += time.Duration(n.rng.Int63n(int64(n.cfg.Jitter)))
	}
	n.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var payload txPayload
	if err := cbor.Unmarshal(st.tx.Payload, &payload); err != nil {
		// Submission already verified the signature over these bytes, so
		// an undecodable payload means a client bug; drop the tx and let
		// the confirmation wait time out.
		delete(n.inflight, st.tx.ID)
		return
	}

	id := RecordID(uuid.NewString())
	n.records[id] = Record{
		PatientID:   payload.PatientID,
		DiseaseType: payload.DiseaseType,
		Prediction:  payload.Prediction,
		DataDigest:  payload.DataDigest,
		ImageDigest: payload.ImageDigest,
		Sequence:    payload.Sequence,
		Timestamp:   time.Now().UTC(),
		Submitter:   payload.Account,
	}
	n.log = append(n.log, id)

	st.conf = Confirmation{
		TxID:     st.tx.ID,
		RecordID: id,
		Sequence: payload.Sequence,
		Position: uint64(len(n.log) - 1),
	}
	n.confirmed[st.tx.ID] = st.conf
	delete(n.inflight, st.tx.ID)
	close(st.done)
}

func (n *SimNetwork) Confirm(ctx context.Context, id TxID) (Confirmation, error) {
	n.mu.Lock()
	if conf, ok := n.confirmed[id]; ok {
		n.mu.Unlock()
		return conf, nil
	}
	st, ok := n.inflight[id]
	n.mu.Unlock()

	if !ok {
		return Confirmation{}, fmt.Errorf("%w: transaction %s", core.ErrNotFound, id)
	}

	select {
	case <-st.done:
		return st.conf, nil
	case <-ctx.Done():
		return Confirmation{}, ctx.Err()
	}
}

func (n *SimNetwork) Record(ctx context.Context, id RecordID) (Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: record %s", core.ErrNotFound, id)
	}
	return rec, nil
}

func (n *SimNetwork) Balance(ctx context.Context, account string) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.accounts[account]
	if !ok {
		return 0, fmt.Errorf("%w: unknown account %s", core.ErrNotFound, account)
	}
	return acct.balance, nil
}

func (n *SimNetwork) Publish(ctx context.Context, account string, program []byte) (Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.accounts[account]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: unknown account %s", core.ErrNotFound, account)
	}
	if acct.balance < n.cfg.PublishFee {
		return Endpoint{}, fmt.Errorf("%w: publish fee %d exceeds balance %d", core.ErrInsufficientFunds, n.cfg.PublishFee, acct.balance)
	}
	acct.balance -= n.cfg.PublishFee

	if n.endpoint == nil {
		n.endpoint = &Endpoint{Address: "sim://" + uuid.NewString()}
	}
	return *n.endpoint, nil
}

// Len reports the number of records in the ordered log.
func (n *SimNetwork) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.log)
}

// At returns the record at the given log position.
func (n *SimNetwork) At(position int) (Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if position < 0 || position >= len(n.log) {
		return Record{}, fmt.Errorf("%w: log position %d", core.ErrNotFound, position)
	}
	return n.records[n.log[position]], nil
}
