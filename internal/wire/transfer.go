package wire

import (
	"devv.io/node/internal/cryptoprim"
	dvErrors "devv.io/node/pkg/errors"
)

// TransferSize is the fixed wire width of a single Transfer: a 33-byte
// Address, an 8-byte coin_id, an 8-byte signed delta, and an 8-byte
// nonce_index (spec.md #3).
const TransferSize = cryptoprim.AddressSize + 8 + 8 + 8

// Transfer is one (address, coin_id, delta, nonce_index) line item of a
// Transaction (spec.md #3). The sum of deltas across a transaction's
// transfers, per coin, must be zero.
type Transfer struct {
	Address    cryptoprim.Address
	CoinID     uint64
	Delta      int64
	NonceIndex uint64
}

// Encode appends the canonical wire form of t to dst.
func (t Transfer) Encode(dst []byte) []byte {
	dst = append(dst, t.Address[:]...)
	dst = PutUint64LE(dst, t.CoinID)
	dst = PutInt64LE(dst, t.Delta)
	dst = PutUint64LE(dst, t.NonceIndex)
	return dst
}

// DecodeTransfer reads one Transfer from buf.
func DecodeTransfer(buf *InputBuffer) (Transfer, error) {
	var t Transfer
	if buf.Remaining() < TransferSize {
		return t, dvErrors.NewDeserializationError("truncated transfer")
	}
	if err := buf.CopyFixed(t.Address[:]); err != nil {
		return t, err
	}
	coinID, err := buf.GetUint64LE()
	if err != nil {
		return t, err
	}
	delta, err := buf.GetInt64LE()
	if err != nil {
		return t, err
	}
	nonceIdx, err := buf.GetUint64LE()
	if err != nil {
		return t, err
	}
	t.CoinID, t.Delta, t.NonceIndex = coinID, delta, nonceIdx
	return t, nil
}

// DecodeTransfers reads exactly xferSize bytes worth of Transfers. It
// rejects an xferSize that is not a multiple of TransferSize before
// allocating, per spec.md #4.1's "never allocate from untrusted lengths
// without bounds-checking them first".
func DecodeTransfers(buf *InputBuffer, xferSize uint64) ([]Transfer, error) {
	if xferSize%TransferSize != 0 {
		return nil, dvErrors.NewDeserializationError("xfer_size not a multiple of transfer width")
	}
	count := int(xferSize / TransferSize)
	out := make([]Transfer, 0, count)
	for i := 0; i < count; i++ {
		t, err := DecodeTransfer(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// SumDeltasByCoin aggregates transfers' deltas per coin, for the zero-sum
// soundness check (spec.md #3).
func SumDeltasByCoin(transfers []Transfer) map[uint64]int64 {
	out := make(map[uint64]int64, len(transfers))
	for _, t := range transfers {
		out[t.CoinID] += t.Delta
	}
	return out
}
