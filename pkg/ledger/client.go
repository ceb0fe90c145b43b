package ledger

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/medtrace/diagledger/pkg/core"
)

// Prm groups the parameters of a ledger client.
type Prm struct {
	// Writes append progress into the log. Optional.
	Logger *zap.Logger

	// Network is the ledger network the client submits to.
	Network Network

	// Account is the local submitting identity (its private key signs
	// every transaction).
	Account Account

	Config core.LedgerConfig
}

// Client appends diagnosis records to the ledger network and reads them
// back. Safe for concurrent use; all appends from this client share one
// account and are sequenced through its Sequencer.
type Client struct {
	log     *zap.Logger
	net     Network
	acct    Account
	cfg     core.LedgerConfig
	seq     *Sequencer
	encMode cbor.EncMode
}

// New validates prm and returns a ready ledger client.
func New(prm Prm) (*Client, error) {
	if prm.Network == nil {
		return nil, fmt.Errorf("%w: nil network", core.ErrInvalidInput)
	}
	if prm.Account.Identity == "" || len(prm.Account.PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: account must carry an identity and a signing key", core.ErrInvalidInput)
	}
	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}
	if prm.Config.MaxAttempts <= 0 {
		prm.Config.MaxAttempts = 3
	}
	if prm.Config.ConfirmTimeout <= 0 {
		prm.Config.ConfirmTimeout = defaultConfirmTimeout
	}

	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("canonical cbor enc mode: %w", err)
	}

	return &Client{
		log:     prm.Logger,
		net:     prm.Network,
		acct:    prm.Account,
		cfg:     prm.Config,
		seq:     NewSequencer(prm.Network, prm.Account.Identity),
		encMode: em,
	}, nil
}

// AppendError is the terminal failure of an append after retry exhaustion.
// It matches core.ErrAppendFailed under errors.Is and unwraps to the last
// underlying cause for manual reconciliation.
type AppendError struct {
	Attempts int
	LastErr  error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("diagledger: append failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *AppendError) Unwrap() error { return e.LastErr }

func (e *AppendError) Is(target error) bool { return target == core.ErrAppendFailed }

// Append builds, signs and submits a record transaction and blocks until
// the network confirms it. Sequence conflicts and confirmation timeouts
// refresh the sequence number and retry, bounded by Config.MaxAttempts;
// exhaustion surfaces an *AppendError. Insufficient funds is terminal and
// never retried.
//
// Caller cancellation does not cancel an append that has already been
// submitted: the confirmation wait runs detached from the caller's context
// so the transaction reaches a terminal state and the account's sequence
// state stays consistent with the network. Cancellation only prevents
// further retry attempts.
func (c *Client) Append(ctx context.Context, rec Record) (Confirmation, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return Confirmation{}, &AppendError{Attempts: attempt - 1, LastErr: lastErr}
		}

		tx, err := c.seq.Submit(ctx, func(seq uint64) (SignedTransaction, error) {
			return c.sign(rec, seq)
		})
		if err != nil {
			switch {
			case errors.Is(err, core.ErrInsufficientFunds):
				return Confirmation{}, err
			case errors.Is(err, core.ErrSequenceConflict):
				c.log.Debug("sequence conflict on submit, refreshing sequence number",
					zap.Int("attempt", attempt), zap.Uint64("sequence", tx.Sequence))
				lastErr = err
				continue
			case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrInvalidResult):
				return Confirmation{}, err
			default:
				c.log.Warn("transaction submission failed", zap.Int("attempt", attempt), zap.Error(err))
				lastErr = err
				continue
			}
		}

		conf, err := c.awaitConfirmation(ctx, tx)
		if err == nil {
			c.log.Info("append confirmed",
				zap.String("tx", string(tx.ID)),
				zap.Uint64("sequence", conf.Sequence),
				zap.Uint64("position", conf.Position))
			return conf, nil
		}

		switch {
		case errors.Is(err, core.ErrTimedOut):
			c.log.Warn("confirmation timed out, retrying with refreshed sequence number",
				zap.String("tx", string(tx.ID)), zap.Int("attempt", attempt))
		case errors.Is(err, core.ErrSequenceConflict):
			c.log.Debug("transaction rejected for stale sequence", zap.String("tx", string(tx.ID)))
		case errors.Is(err, core.ErrInsufficientFunds):
			return Confirmation{}, err
		default:
			c.log.Warn("confirmation failed", zap.String("tx", string(tx.ID)), zap.Error(err))
		}
		lastErr = err
	}

	return Confirmation{}, &AppendError{Attempts: c.cfg.MaxAttempts, LastErr: lastErr}
}

// awaitConfirmation waits for the submitted transaction to reach a
// terminal state. The wait is bounded by ConfirmTimeout but detached from
// caller cancellation: once submitted, the transaction is in the
// network's hands.
func (c *Client) awaitConfirmation(ctx context.Context, tx SignedTransaction) (Confirmation, error) {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ConfirmTimeout)
	defer cancel()

	conf, err := c.net.Confirm(waitCtx, tx.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Confirmation{}, fmt.Errorf("%w: tx %s", core.ErrTimedOut, tx.ID)
		}
		return Confirmation{}, err
	}
	return conf, nil
}

// Read returns a confirmed record by its identifier.
func (c *Client) Read(ctx context.Context, id RecordID) (Record, error) {
	return c.net.Record(ctx, id)
}

func (c *Client) sign(rec Record, seq uint64) (SignedTransaction, error) {
	payload, err := c.encMode.Marshal(&txPayload{
		Account:     c.acct.Identity,
		Sequence:    seq,
		PatientID:   rec.PatientID,
		DiseaseType: rec.DiseaseType,
		Prediction:  rec.Prediction,
		DataDigest:  rec.DataDigest,
		ImageDigest: rec.ImageDigest,
	})
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("encode transaction payload: %w", err)
	}

	hash := PayloadHash(payload)
	sig := ed25519.Sign(c.acct.PrivateKey, hash[:])

	return SignedTransaction{
		ID:        computeTxID(payload, sig),
		Account:   c.acct.Identity,
		Sequence:  seq,
		Payload:   payload,
		Signature: sig,
	}, nil
}
