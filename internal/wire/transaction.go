package wire

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"devv.io/node/internal/cryptoprim"
	dvErrors "devv.io/node/pkg/errors"
)

// Operation is the kind of effect a Transaction asserts (spec.md #3).
type Operation uint8

const (
	OpCreate Operation = iota
	OpModify
	OpExchange
	OpDelete
	numOperations
)

// minNonceSize is the minimum byte length of a Transaction's nonce,
// grounded on Tier2Transaction::Fill's nonce_size_ >= minNonceSize() check
// in original_source (src/primitives/Tier2Transaction.cpp).
const minNonceSize = 16

// transactionHeaderSize is the fixed prefix before the variable-length
// transfer list: xfer_size(u64) | nonce_size(u64) | operation(u8).
const transactionHeaderSize = 8 + 8 + 1

// Transaction is the UTX pool's unit of admission (spec.md #3). Its signer
// is not a stored field: it is recovered from Signature over Canonical, so
// a forged signer field can never disagree with the signature that backs
// it.
type Transaction struct {
	canonical []byte
	transfers []Transfer
	nonce     []byte
	operation Operation
	signature cryptoprim.Signature
	signer    cryptoprim.Address
}

// Transfers returns the transaction's line items.
func (t *Transaction) Transfers() []Transfer { return t.transfers }

// Operation returns the asserted operation kind.
func (t *Transaction) Operation() Operation { return t.operation }

// Signature returns the transaction's signature.
func (t *Transaction) Signature() cryptoprim.Signature { return t.signature }

// Signer returns the address recovered from Signature. Valid only once
// Soundness has been checked (recovery happens there).
func (t *Transaction) Signer() cryptoprim.Address { return t.signer }

// Canonical returns the bytes that re-serialize this transaction on the
// wire: the signed body followed by the signature (spec.md #4.1). Used for
// block encoding and the Merkle root; the TxMap is keyed by Signature.
func (t *Transaction) Canonical() []byte { return t.canonical }

// NewTransaction builds and signs a transaction from its parts. Used by
// internal/txgen and by tests; the node itself only ever receives
// transactions off the wire via ParseTransaction.
func NewTransaction(priv *secp256k1.PrivateKey, op Operation, transfers []Transfer, nonce []byte) (*Transaction, error) {
	if len(nonce) < minNonceSize {
		return nil, dvErrors.NewVerificationFailedError("nonce shorter than minimum")
	}
	if op >= numOperations {
		return nil, dvErrors.NewVerificationFailedError("unknown operation")
	}
	body := make([]byte, 0, transactionHeaderSize+len(transfers)*TransferSize+len(nonce))
	body = PutUint64LE(body, uint64(len(transfers)*TransferSize))
	body = PutUint64LE(body, uint64(len(nonce)))
	body = append(body, byte(op))
	for _, tr := range transfers {
		body = tr.Encode(body)
	}
	body = append(body, nonce...)

	sig := cryptoprim.Sign(priv, body)

	canonical := make([]byte, len(body)+cryptoprim.SignatureSize)
	copy(canonical, body)
	copy(canonical[len(body):], sig[:])

	return &Transaction{
		canonical: canonical,
		transfers: transfers,
		nonce:     append([]byte(nil), nonce...),
		operation: op,
		signature: sig,
	}, nil
}

// ParseTransaction decodes one Transaction starting at buf's current
// position, bounds-checking every length read from the wire against the
// remaining buffer before any further allocation or sub-read (spec.md
// #4.1). This mirrors Tier2Transaction::Fill's ordering in original_source,
// adapted for a fixed-width 65-byte signature in place of the original's
// length-prefixed DER signature.
func ParseTransaction(buf *InputBuffer) (*Transaction, error) {
	if buf.Remaining() < transactionHeaderSize {
		return nil, dvErrors.NewDeserializationError("truncated transaction header")
	}
	xferSize, err := buf.GetUint64LE()
	if err != nil {
		return nil, err
	}
	nonceSize, err := buf.GetUint64LE()
	if err != nil {
		return nil, err
	}
	if nonceSize < minNonceSize {
		return nil, dvErrors.NewDeserializationError("nonce_size below minimum")
	}
	opByte, err := buf.GetByte()
	if err != nil {
		return nil, err
	}
	op := Operation(opByte)
	if op >= numOperations {
		return nil, dvErrors.NewDeserializationError("unknown operation byte")
	}

	bodySize := uint64(transactionHeaderSize) + xferSize + nonceSize
	remainingAfterHeader := xferSize + nonceSize + uint64(cryptoprim.SignatureSize)
	if remainingAfterHeader > uint64(buf.Remaining()) {
		return nil, dvErrors.NewDeserializationError("declared transaction size exceeds remaining buffer")
	}

	transfers, err := DecodeTransfers(buf, xferSize)
	if err != nil {
		return nil, err
	}
	nonce, err := buf.Copy(int(nonceSize))
	if err != nil {
		return nil, err
	}
	var sig cryptoprim.Signature
	if err := buf.CopyFixed(sig[:]); err != nil {
		return nil, err
	}

	body := make([]byte, 0, int(bodySize))
	body = PutUint64LE(body, xferSize)
	body = PutUint64LE(body, nonceSize)
	body = append(body, byte(op))
	for _, tr := range transfers {
		body = tr.Encode(body)
	}
	body = append(body, nonce...)
	canonical := append(body, sig[:]...)

	return &Transaction{
		canonical: canonical,
		transfers: transfers,
		nonce:     nonce,
		operation: op,
		signature: sig,
	}, nil
}

// Soundness reports whether t is internally consistent: well-formed (always
// true once parsed), the signature recovers to a signer, and deltas net to
// zero per coin across its transfers (spec.md #3's per-transaction
// soundness check, prerequisite to the per-chainstate validity check).
func (t *Transaction) Soundness() bool {
	if !t.recoverSigner() {
		return false
	}
	for _, sum := range SumDeltasByCoin(t.transfers) {
		if sum != 0 {
			return false
		}
	}
	return true
}

func (t *Transaction) recoverSigner() bool {
	if !t.signer.IsZero() {
		return true
	}
	body := t.canonical[:len(t.canonical)-cryptoprim.SignatureSize]
	addr, ok := cryptoprim.Recover(body, t.signature)
	if !ok {
		return false
	}
	t.signer = addr
	return true
}
