package core

import (
	"errors"
)

var (
	// ErrNotFound is returned when a digest or record was never written.
	// It is a normal negative result, not a failure of the store.
	ErrNotFound = errors.New("diagledger: not found")

	// ErrInvalidInput flags malformed caller input (bad digest string,
	// empty payload, unparseable feature vector).
	ErrInvalidInput = errors.New("diagledger: invalid input")

	// ErrInvalidResult flags a malformed classifier result: confidence
	// outside [0,100] or a label absent from the disease vocabulary.
	ErrInvalidResult = errors.New("diagledger: invalid classifier result")

	// ErrIOFailure is returned when the evidence persistence medium is
	// unavailable.
	ErrIOFailure = errors.New("diagledger: storage i/o failure")

	// ErrCorrupt is returned when stored bytes no longer match their digest.
	ErrCorrupt = errors.New("diagledger: corrupt data")

	// ErrSequenceConflict is a transient, network-detected ordering
	// violation: the transaction's sequence number was not the account's
	// next expected value. Retried internally with a refreshed sequence.
	ErrSequenceConflict = errors.New("diagledger: sequence number conflict")

	// ErrTimedOut means confirmation was not observed within the deadline.
	// Retried internally like ErrSequenceConflict.
	ErrTimedOut = errors.New("diagledger: confirmation timed out")

	// ErrInsufficientFunds is terminal and requires operator intervention.
	ErrInsufficientFunds = errors.New("diagledger: insufficient funds")

	// ErrAppendFailed is terminal after retry exhaustion.
	ErrAppendFailed = errors.New("diagledger: ledger append failed")

	// ErrModelUnavailable is returned by the inference service when a
	// model cannot serve the request.
	ErrModelUnavailable = errors.New("diagledger: model unavailable")

	// ErrClosed is returned by operations on a closed store or client.
	ErrClosed = errors.New("diagledger: closed")
)
