// Package blockchain implements the append-only chain of FinalBlocks
// spec.md #4.3 describes, grounded on
// _examples/original_source/src/consensus/blockchain.h's Blockchain class:
// push_back, size(), getNumTransactions(), back(), BinaryDump(),
// PartialBinaryDump(start) (which excludes the tip).
package blockchain

import (
	"sync"
	"sync/atomic"

	"devv.io/node/internal/chainstate"
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/wire"
	dvErrors "devv.io/node/pkg/errors"
)

// Chain is the append-only sequence of FinalBlocks this node has finalized
// or caught up on, plus the balance state at its tip.
type Chain struct {
	mu     sync.RWMutex
	blocks []*wire.FinalBlock
	state  *chainstate.State

	size   int64 // atomic, mirrors len(blocks) for lock-free reads
	numTxs int64 // atomic, running count of transactions across all blocks
}

// New returns an empty chain with an empty tip state.
func New() *Chain {
	return &Chain{state: chainstate.New()}
}

// Size returns the number of blocks in the chain, safe to call without
// holding any other lock.
func (c *Chain) Size() int { return int(atomic.LoadInt64(&c.size)) }

// NumTransactions returns the running total of transactions across every
// block in the chain.
func (c *Chain) NumTransactions() int { return int(atomic.LoadInt64(&c.numTxs)) }

// Tip returns the most recently appended block, or nil if the chain is
// empty.
func (c *Chain) Tip() *wire.FinalBlock {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// TipHash returns the hash chained as prev_hash by the next block: the
// genesis sentinel (the zero hash) when the chain is empty, else the hash
// of the tip's encoded bytes.
func (c *Chain) TipHash() cryptoprim.Hash {
	tip := c.Tip()
	if tip == nil {
		return cryptoprim.Hash{}
	}
	return cryptoprim.HashBytes(tip.Encode(nil))
}

// State returns the chain's current tip balance state. Callers must not
// retain it across a PushBack; take Copy() first if independent mutation
// is needed (HandleProposalBlock's trial apply does this).
func (c *Chain) State() *chainstate.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// PushBack appends block to the chain, applying its summary to the tip
// state. It rejects a block whose prev_hash does not chain from the
// current tip (spec.md #4.3's hash-linkage invariant) and a block whose
// summary would overdraw the tip state (spec.md #4.2).
func (c *Chain) PushBack(block *wire.FinalBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wantPrev := cryptoprim.Hash{}
	if len(c.blocks) > 0 {
		wantPrev = cryptoprim.HashBytes(c.blocks[len(c.blocks)-1].Encode(nil))
	}
	if block.PrevHash != wantPrev {
		return dvErrors.NewConsistencyError("block prev_hash does not chain from tip")
	}

	transfers := summaryTransfers(block.Summary)
	if err := c.state.Apply(transfers); err != nil {
		return err
	}

	c.blocks = append(c.blocks, block)
	atomic.StoreInt64(&c.size, int64(len(c.blocks)))
	atomic.AddInt64(&c.numTxs, int64(len(block.Transactions)))
	return nil
}

// BlockAt returns the block at index, or nil if out of range.
func (c *Chain) BlockAt(index int) *wire.FinalBlock {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.blocks) {
		return nil
	}
	return c.blocks[index]
}

// BinaryDump encodes every block in the chain, in order.
func (c *Chain) BinaryDump() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []byte
	for _, b := range c.blocks {
		out = b.Encode(out)
	}
	return out
}

// PartialBinaryDump encodes blocks [start, size()-1), explicitly excluding
// the tip: a catch-up peer must always re-derive the tip itself from the
// latest FINAL_BLOCK broadcast rather than from a snapshot, per
// Blockchain::PartialBinaryDump in original_source.
func (c *Chain) PartialBinaryDump(start int) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []byte
	for i := start; i < len(c.blocks)-1; i++ {
		if i < 0 {
			continue
		}
		out = c.blocks[i].Encode(out)
	}
	return out
}

func summaryTransfers(s *wire.Summary) []wire.Transfer {
	var out []wire.Transfer
	for _, as := range s.Addresses {
		for _, coin := range as.Coins {
			out = append(out, wire.Transfer{
				Address: as.Address,
				CoinID:  coin.CoinID,
				Delta:   coin.Delta,
			})
		}
	}
	return out
}
