// Package internetwork implements the inter-shard catch-up state machine
// spec.md #4.6 describes: REQUEST_BLOCK (a timer-driven self-message),
// GET_BLOCKS_SINCE, and BLOCKS_SINCE.
//
// Grounded on
// _examples/original_source/src/concurrency/InternetworkController.h/.cpp:
// messageCallback's switch on message_type, the T1-vs-T2 GET_BLOCKS_SINCE
// routing rule built from get_uri_from_index, and remote_blocks_ tracked
// under a dedicated mutex separate from consensus.
package internetwork

import (
	"sync"

	"github.com/sirupsen/logrus"

	"devv.io/node/internal/blockchain"
	"devv.io/node/internal/devvcontext"
	"devv.io/node/internal/utxpool"
	"devv.io/node/internal/wire"
)

// Emit sends an outbound message addressed to a specific peer URI.
type Emit func(uri string, msg wire.Message)

// Handlers bundles the three internetwork callbacks plus the remote_blocks
// high-water mark they share, guarded by its own mutex (spec.md #5's
// utx_mutex — named for the pool it ultimately mutates via catch-up).
type Handlers struct {
	log   *logrus.Logger
	ctx   *devvcontext.Context
	chain *blockchain.Chain
	pool  *utxpool.Pool

	mu           sync.Mutex
	remoteBlocks int
}

// New builds the internetwork handler set.
func New(log *logrus.Logger, ctx *devvcontext.Context, chain *blockchain.Chain, pool *utxpool.Pool) *Handlers {
	return &Handlers{log: log, ctx: ctx, chain: chain, pool: pool}
}

// RemoteBlocks returns the high-water mark of remote blocks applied via
// catch-up.
func (h *Handlers) RemoteBlocks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remoteBlocks
}

// HandleRequestBlock processes the timer-driven REQUEST_BLOCK self-message:
// if this node's remote_blocks lags its own chain size, it solicits updates
// from the appropriate peers for its mode (spec.md #4.6).
func (h *Handlers) HandleRequestBlock(emit Emit) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.chain.Size()
	if h.remoteBlocks >= size {
		return nil
	}

	req := wire.GetBlocksSince{Since: uint64(h.remoteBlocks), RequesterIx: uint32(h.ctx.CurrentNode)}
	payload := req.Encode(nil)
	msg := wire.Message{Type: wire.GetBlocksSinceMsg, Payload: payload}

	peerCount := h.ctx.GetPeerCount()
	selfMod := h.ctx.GetCurrentNode() % peerCount

	switch h.ctx.Mode {
	case devvcontext.T1:
		for _, globalIx := range []int{peerCount + selfMod, 2*peerCount + selfMod} {
			uri, err := h.ctx.GetURIFromIndex(globalIx)
			if err != nil {
				h.log.WithError(err).Warn("internetwork: no URI for T2 catch-up target, skipping")
				continue
			}
			emit(uri, msg)
		}
	case devvcontext.T2:
		uri, err := h.ctx.GetURIFromIndex(selfMod)
		if err != nil {
			h.log.WithError(err).Warn("internetwork: no URI for T1 catch-up target, skipping")
			return nil
		}
		emit(uri, msg)
	}
	return nil
}

// HandleGetBlocksSince serves a peer's catch-up request with every block
// since the requested height, excluding the tip (spec.md #4.6).
func (h *Handlers) HandleGetBlocksSince(msg wire.Message, requesterURI string, emit Emit) error {
	req, err := wire.DecodeGetBlocksSince(msg.Payload)
	if err != nil {
		h.log.WithError(err).Warn("internetwork: dropping malformed GET_BLOCKS_SINCE")
		return nil
	}
	dump := h.chain.PartialBinaryDump(int(req.Since))
	emit(requesterURI, wire.Message{Type: wire.BlocksSinceMsg, Payload: dump})
	return nil
}

// HandleBlocksSince applies a batch of remote final blocks, each validated
// against the prior chain state in sequence; the whole batch is rejected
// atomically on any parse or validation failure (spec.md #4.6).
func (h *Handlers) HandleBlocksSince(msg wire.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	blocks, err := wire.ParseFinalBlocks(msg.Payload)
	if err != nil {
		h.log.WithError(err).Warn("internetwork: dropping malformed BLOCKS_SINCE batch")
		return nil
	}

	for _, block := range blocks {
		if block.PrevHash != h.chain.TipHash() {
			h.log.Warn("internetwork: BLOCKS_SINCE batch diverges from local chain, rejecting batch")
			return nil
		}
		if err := h.chain.PushBack(block); err != nil {
			h.log.WithError(err).Warn("internetwork: rejecting BLOCKS_SINCE batch")
			return nil
		}
		h.pool.RemoveTransactions(block.Transactions)
	}

	h.remoteBlocks = h.chain.Size()
	return nil
}
