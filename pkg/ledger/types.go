// Package ledger translates fused verdicts and their evidence digests into
// durably confirmed records on an external append-only transaction log.
//
// The ledger network orders each account's transactions by a monotonically
// increasing sequence number and rejects any transaction whose number is
// not exactly the next expected value. The client therefore serializes
// sequence-number acquisition per account (see Sequencer) even though the
// rest of the system handles requests concurrently.
package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TxID identifies a submitted transaction.
type TxID string

// RecordID identifies a confirmed ledger record for read-back.
type RecordID string

// Endpoint is the network address of the published append/read program.
type Endpoint struct {
	Address string
}

// Account is the submitting identity with its signing credential.
type Account struct {
	Identity   string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// NewAccount generates a fresh signing account.
func NewAccount(identity string) (Account, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Account{}, fmt.Errorf("generate account key: %w", err)
	}
	return Account{Identity: identity, PublicKey: pub, PrivateKey: priv}, nil
}

// Record is one diagnosis entry on the ledger. The first five fields form
// the append-time wire tuple; Sequence, Timestamp and Submitter are filled
// in by the network and only present on read-back. Records are append-only:
// no update or delete operation exists.
type Record struct {
	PatientID   string
	DiseaseType string
	Prediction  string
	DataDigest  string
	ImageDigest string

	Sequence  uint64
	Timestamp time.Time
	Submitter string
}

// Confirmation proves a submitted transaction was included in the ordered
// log. Re-observing a confirmation yields the same transaction identifier.
type Confirmation struct {
	TxID     TxID
	RecordID RecordID
	Sequence uint64
	Position uint64
}

// txPayload is the signed wire shape: an ordered tuple so the encoding is
// position-stable across versions of the field names.
type txPayload struct {
	_           struct{} `cbor:",toarray"`
	Account     string
	Sequence    uint64
	PatientID   string
	DiseaseType string
	Prediction  string
	DataDigest  string
	ImageDigest string
}

// SignedTransaction is a sequence-stamped, signed append request.
type SignedTransaction struct {
	ID        TxID
	Account   string
	Sequence  uint64
	Payload   []byte
	Signature []byte
}

// PayloadHash returns the digest the signature covers.
func PayloadHash(payload []byte) [sha256.Size]byte {
	return sha256.Sum256(payload)
}

func computeTxID(payload, signature []byte) TxID {
	h := sha256.New()
	h.Write(payload)
	h.Write(signature)
	return TxID(hex.EncodeToString(h.Sum(nil)))
}
