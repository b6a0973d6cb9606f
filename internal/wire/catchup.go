package wire

import (
	dvErrors "devv.io/node/pkg/errors"
)

// GetBlocksSince is the payload of a GET_BLOCKS_SINCE message (spec.md
// #4.6): the requester asks for every block after Since, and names the
// global peer index to route the BLOCKS_SINCE reply back to.
type GetBlocksSince struct {
	Since       uint64
	RequesterIx uint32
}

// Encode appends the canonical wire form to dst.
func (g GetBlocksSince) Encode(dst []byte) []byte {
	dst = PutUint64LE(dst, g.Since)
	dst = PutUint32LE(dst, g.RequesterIx)
	return dst
}

// DecodeGetBlocksSince parses a GET_BLOCKS_SINCE payload.
func DecodeGetBlocksSince(b []byte) (GetBlocksSince, error) {
	buf := NewInputBuffer(b)
	since, err := buf.GetUint64LE()
	if err != nil {
		return GetBlocksSince{}, err
	}
	ix, err := buf.GetUint32LE()
	if err != nil {
		return GetBlocksSince{}, err
	}
	return GetBlocksSince{Since: since, RequesterIx: ix}, nil
}

// ParseFinalBlocks decodes zero or more FinalBlocks packed back-to-back, as
// produced by Blockchain.PartialBinaryDump: the payload of a BLOCKS_SINCE
// message (spec.md #4.6). A parse failure partway through rejects the
// whole batch atomically, per spec.md #4.6's "on any parse/validation
// failure the batch is rejected atomically".
func ParseFinalBlocks(b []byte) ([]*FinalBlock, error) {
	buf := NewInputBuffer(b)
	var blocks []*FinalBlock
	for !buf.AtEnd() {
		blk, err := ParseFinalBlock(buf)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	if buf.Offset() != buf.Size() {
		return nil, dvErrors.NewDeserializationError("blocks-since section misaligned")
	}
	return blocks, nil
}
