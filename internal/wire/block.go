package wire

import (
	"devv.io/node/internal/cryptoprim"
	dvErrors "devv.io/node/pkg/errors"
)

// blockWireVersion is the only version this codec accepts (spec.md #6:
// FinalBlock::Create rejects anything but version 0).
const blockWireVersion = 0

// blockHeaderSize is the fixed prefix before the variable-length
// transaction/summary/validation sections: version(1B) | num_bytes(u64) |
// block_time(u64) | prev_hash(32B) | merkle_root(32B) | tx_size(u64) |
// sum_size(u64) | val_count(u32) (spec.md #6).
const blockHeaderSize = 1 + 8 + 8 + cryptoprim.HashSize + cryptoprim.HashSize + 8 + 8 + 4

// FinalBlock is the wire shape spec.md #3 describes for both a
// ProposedBlock and a FinalBlock: transactions, their aggregated Summary,
// and a Validation set. A ProposedBlock is the same structure carrying
// only the proposer's own endorsement (spec.md #3: "Signed by the
// proposer; the signature is stored in validation"); it becomes a
// FinalBlock once Validation reaches threshold (spec.md #4.5). There is no
// separate wire type for the proposal stage — spec.md #6 defines only one
// payload layout, and the original_source flatbuffers sketch that might
// have suggested a distinct one is explicitly non-authoritative (spec.md
// #9).
type FinalBlock struct {
	BlockTime    uint64
	PrevHash     cryptoprim.Hash
	MerkleRoot   cryptoprim.Hash
	Transactions []*Transaction
	Summary      *Summary
	Validation   *Validation
}

// MerkleRoot computes a block's merkle root over its transactions'
// canonical bytes: a binary tree of SHA-256 hashes, the last hash
// duplicated up a level when a level has an odd count. Empty blocks use
// the all-zero root (spec.md #6).
func MerkleRoot(txs []*Transaction) cryptoprim.Hash {
	if len(txs) == 0 {
		return cryptoprim.Hash{}
	}
	level := make([]cryptoprim.Hash, len(txs))
	for i, tx := range txs {
		level[i] = cryptoprim.HashBytes(tx.Canonical())
	}
	for len(level) > 1 {
		next := make([]cryptoprim.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, pairHash(level[i], level[i]))
			} else {
				next = append(next, pairHash(level[i], level[i+1]))
			}
		}
		level = next
	}
	return level[0]
}

func pairHash(a, b cryptoprim.Hash) cryptoprim.Hash {
	buf := make([]byte, 0, 2*cryptoprim.HashSize)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return cryptoprim.HashBytes(buf)
}

func txSectionBytes(txs []*Transaction) int {
	n := 0
	for _, tx := range txs {
		n += len(tx.Canonical())
	}
	return n
}

// SigningBytes returns the bytes a proposer or validator signs: the block
// header and transaction/summary sections with val_count fixed at zero,
// excluding the Validation set itself (spec.md #4.5 "Sign the canonical
// bytes of the proposal"). Every signer of the same proposal computes the
// identical bytes regardless of how many endorsements have been collected
// so far.
func (f *FinalBlock) SigningBytes() []byte {
	sumBuf := f.Summary.Encode(nil)
	txSize := txSectionBytes(f.Transactions)
	sumSize := len(sumBuf)
	numBytes := blockHeaderSize + txSize + sumSize

	dst := make([]byte, 0, numBytes)
	dst = append(dst, blockWireVersion)
	dst = PutUint64LE(dst, uint64(numBytes))
	dst = PutUint64LE(dst, f.BlockTime)
	dst = append(dst, f.PrevHash[:]...)
	dst = append(dst, f.MerkleRoot[:]...)
	dst = PutUint64LE(dst, uint64(txSize))
	dst = PutUint64LE(dst, uint64(sumSize))
	dst = PutUint32LE(dst, 0)
	for _, tx := range f.Transactions {
		dst = append(dst, tx.Canonical()...)
	}
	dst = append(dst, sumBuf...)
	return dst
}

// Encode appends the canonical wire form of the block to dst. num_bytes
// covers the whole encoded payload including this header.
func (f *FinalBlock) Encode(dst []byte) []byte {
	sumBuf := f.Summary.Encode(nil)
	valBuf := f.Validation.Encode(nil)
	txSize := txSectionBytes(f.Transactions)
	sumSize := len(sumBuf)
	valCount := f.Validation.Count()
	numBytes := blockHeaderSize + txSize + sumSize + valCount*validationEntrySize

	dst = append(dst, blockWireVersion)
	dst = PutUint64LE(dst, uint64(numBytes))
	dst = PutUint64LE(dst, f.BlockTime)
	dst = append(dst, f.PrevHash[:]...)
	dst = append(dst, f.MerkleRoot[:]...)
	dst = PutUint64LE(dst, uint64(txSize))
	dst = PutUint64LE(dst, uint64(sumSize))
	dst = PutUint32LE(dst, uint32(valCount))
	for _, tx := range f.Transactions {
		dst = append(dst, tx.Canonical()...)
	}
	dst = append(dst, sumBuf...)
	dst = append(dst, valBuf...)
	return dst
}

type blockHeader struct {
	numBytes  uint64
	blockTime uint64
	prevHash  cryptoprim.Hash
	merkle    cryptoprim.Hash
	txSize    uint64
	sumSize   uint64
	valCount  uint32
}

func decodeBlockHeader(buf *InputBuffer) (blockHeader, error) {
	var h blockHeader
	if buf.Remaining() < blockHeaderSize {
		return h, dvErrors.NewDeserializationError("truncated block header")
	}
	version, err := buf.GetByte()
	if err != nil {
		return h, err
	}
	if version != blockWireVersion {
		return h, dvErrors.NewDeserializationError("unsupported block version")
	}
	if h.numBytes, err = buf.GetUint64LE(); err != nil {
		return h, err
	}
	if h.blockTime, err = buf.GetUint64LE(); err != nil {
		return h, err
	}
	if err := buf.CopyFixed(h.prevHash[:]); err != nil {
		return h, err
	}
	if err := buf.CopyFixed(h.merkle[:]); err != nil {
		return h, err
	}
	if h.txSize, err = buf.GetUint64LE(); err != nil {
		return h, err
	}
	if h.sumSize, err = buf.GetUint64LE(); err != nil {
		return h, err
	}
	valCount, err := buf.GetUint32LE()
	if err != nil {
		return h, err
	}
	h.valCount = valCount

	need := h.txSize + h.sumSize + uint64(h.valCount)*uint64(validationEntrySize)
	if need > uint64(buf.Remaining()) {
		return h, dvErrors.NewDeserializationError("block header declares more data than remains")
	}
	return h, nil
}

func decodeTransactionSection(buf *InputBuffer, txSize uint64) ([]*Transaction, error) {
	if uint64(buf.Remaining()) < txSize {
		return nil, dvErrors.NewDeserializationError("transaction section exceeds remaining buffer")
	}
	limit := buf.Offset() + int(txSize)
	var txs []*Transaction
	for buf.Offset() < limit {
		tx, err := ParseTransaction(buf)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if buf.Offset() != limit {
		return nil, dvErrors.NewDeserializationError("transaction section misaligned")
	}
	return txs, nil
}

// ParseFinalBlock decodes a block per spec.md #6, mirroring
// FinalBlock::Create's field order in original_source. The decoded value
// is interpreted as a ProposedBlock (by the consensus layer) if its
// Validation set is below threshold, or a finalized block otherwise.
func ParseFinalBlock(buf *InputBuffer) (*FinalBlock, error) {
	h, err := decodeBlockHeader(buf)
	if err != nil {
		return nil, err
	}
	txs, err := decodeTransactionSection(buf, h.txSize)
	if err != nil {
		return nil, err
	}
	sum, err := DecodeSummary(buf, h.sumSize)
	if err != nil {
		return nil, err
	}
	val, err := DecodeValidation(buf, h.valCount)
	if err != nil {
		return nil, err
	}
	return &FinalBlock{
		BlockTime:    h.blockTime,
		PrevHash:     h.prevHash,
		MerkleRoot:   h.merkle,
		Transactions: txs,
		Summary:      sum,
		Validation:   val,
	}, nil
}
