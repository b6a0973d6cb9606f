// Package consensus implements the intra-shard consensus message state
// machine spec.md #4.5 describes: HandleFinalBlock, HandleProposalBlock,
// and HandleValidationBlock, threaded onto a per-height AWAIT_PROPOSAL ->
// VALIDATED/PROPOSED -> COLLECTING -> FINAL_EMITTED progression.
//
// Grounded on
// _examples/original_source/src/concurrency/ConsensusController.h/.cpp:
// three named handler callbacks dispatched by message_type under a single
// mutex, malformed input recovered and logged, any other exception fatal.
package consensus

import (
	"time"

	"github.com/sirupsen/logrus"

	"devv.io/node/internal/blockchain"
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/devvcontext"
	"devv.io/node/internal/utxpool"
	"devv.io/node/internal/wire"
	dvErrors "devv.io/node/pkg/errors"
)

// Emit sends an outbound message to the shard topic. The controller is the
// single owner of the outgoing seat (spec.md #4.7); handlers never hold a
// reference to the fabric themselves.
type Emit func(msg wire.Message)

// Handlers bundles the three consensus callbacks plus the state they
// share. It holds no lock of its own: the controller calls all three from
// its single dispatch goroutine, which serializes them the way
// ConsensusController's single mutex does.
type Handlers struct {
	log     *logrus.Logger
	ctx     *devvcontext.Context
	keyring cryptoprim.KeyRing
	chain   *blockchain.Chain
	pool    *utxpool.Pool
}

// New builds the consensus handler set.
func New(log *logrus.Logger, ctx *devvcontext.Context, keyring cryptoprim.KeyRing, chain *blockchain.Chain, pool *utxpool.Pool) *Handlers {
	return &Handlers{log: log, ctx: ctx, keyring: keyring, chain: chain, pool: pool}
}

// threshold is the minimum number of distinct valid validations required to
// finalize a block at this shard's peer count (spec.md #3: floor(N/2)+1).
func (h *Handlers) threshold() int {
	return h.ctx.GetPeerCount()/2 + 1
}

// HandleFinalBlock processes an incoming FINAL_BLOCK message: appends the
// block to the chain, removes its transactions from the pool, and either
// proposes the next block (if this node is the next proposer) or triggers
// catch-up (spec.md #4.5).
func (h *Handlers) HandleFinalBlock(msg wire.Message, emit Emit) error {
	buf := wire.NewInputBuffer(msg.Payload)
	block, err := wire.ParseFinalBlock(buf)
	if err != nil {
		h.log.WithError(err).Warn("consensus: dropping malformed FINAL_BLOCK")
		return nil
	}

	wantPrev := h.chain.TipHash()
	if block.PrevHash != wantPrev {
		h.log.Warn("consensus: FINAL_BLOCK prev_hash does not match tip, ignoring (already committed or catch-up needed)")
		return nil
	}
	if countValidSignatures(block) < h.threshold() {
		h.log.Warn("consensus: FINAL_BLOCK does not meet validation threshold, dropping")
		return nil
	}

	if err := h.chain.PushBack(block); err != nil {
		h.log.WithError(err).Warn("consensus: rejecting FINAL_BLOCK")
		return nil
	}
	h.pool.RemoveTransactions(block.Transactions)

	height := uint64(h.chain.Size())
	if h.ctx.IsProposer(height) {
		ok, err := h.pool.ProposeBlock(h.chain.TipHash(), h.chain.State(), h.ctx, h.keyring, time.Now())
		if err != nil {
			return dvErrors.NewFatalError(err)
		}
		if ok {
			emit(wire.Message{Type: wire.ProposalBlockMsg, Payload: h.pool.GetProposal().Encode(nil)})
		}
		return nil
	}

	emit(wire.Message{Type: wire.RequestBlockMsg})
	return nil
}

// HandleProposalBlock processes an incoming PROPOSAL_BLOCK message: a
// validator re-executes the proposal's summary against its own tip state
// and, if it agrees, signs and emits a VALID endorsement (spec.md #4.5).
func (h *Handlers) HandleProposalBlock(msg wire.Message, emit Emit) error {
	buf := wire.NewInputBuffer(msg.Payload)
	proposal, err := wire.ParseFinalBlock(buf)
	if err != nil {
		h.log.WithError(err).Warn("consensus: dropping malformed PROPOSAL_BLOCK")
		return nil
	}

	if proposal.PrevHash != h.chain.TipHash() {
		h.log.Warn("consensus: PROPOSAL_BLOCK prev_hash does not match tip, dropping")
		return nil
	}
	_, proposerAddr, err := h.keyring.NodeKey(h.ctx.ProposerIndex(uint64(h.chain.Size())))
	if err != nil {
		h.log.WithError(err).Warn("consensus: no key for PROPOSAL_BLOCK proposer, dropping")
		return nil
	}
	proposerSig, ok := proposal.Validation.SignatureOf(proposerAddr)
	if !ok || !cryptoprim.Verify(proposerAddr, proposal.SigningBytes(), proposerSig) {
		h.log.Warn("consensus: PROPOSAL_BLOCK proposer signature does not verify, dropping")
		return nil
	}

	trial := h.chain.State().Copy()
	if err := trial.Apply(summaryTransfers(proposal.Summary)); err != nil {
		h.log.WithError(err).Warn("consensus: PROPOSAL_BLOCK would overdraw tip state, withholding vote")
		return nil
	}

	priv, addr, err := h.keyring.NodeKey(h.ctx.SigningNodeIndex())
	if err != nil {
		return dvErrors.NewFatalError(err)
	}
	sig := cryptoprim.Sign(priv, proposal.SigningBytes())
	emit(wire.Message{Type: wire.ValidationMsg, Payload: wire.EncodeVote(sig, addr)})
	return nil
}

// HandleValidationBlock processes an incoming VALID message: merges the
// endorsement into the pool's pending proposal and, once threshold is
// reached, finalizes and appends the block (spec.md #4.5).
func (h *Handlers) HandleValidationBlock(msg wire.Message, emit Emit) error {
	if !h.pool.CheckValidation(msg.Payload) {
		return nil
	}
	if h.pool.ValidationCount() < h.threshold() {
		return nil
	}

	block, err := h.pool.FinalizeLocalBlock()
	if err != nil {
		h.log.WithError(err).Warn("consensus: finalize_local_block failed after reaching threshold")
		return nil
	}
	if err := h.chain.PushBack(block); err != nil {
		return dvErrors.NewFatalError(err)
	}
	emit(wire.Message{Type: wire.FinalBlockMsg, Payload: block.Encode(nil)})
	return nil
}

// countValidSignatures re-verifies every endorsement in block's Validation
// set against its signing bytes and returns how many are cryptographically
// valid (spec.md #8's signature coverage property). A block or proposal
// received whole, off the wire, carries endorsements this node never
// merged itself via CheckValidation, so they must be independently
// re-checked here before being trusted.
func countValidSignatures(block *wire.FinalBlock) int {
	signing := block.SigningBytes()
	n := 0
	for _, addr := range block.Validation.Signers() {
		sig, ok := block.Validation.SignatureOf(addr)
		if ok && cryptoprim.Verify(addr, signing, sig) {
			n++
		}
	}
	return n
}

func summaryTransfers(s *wire.Summary) []wire.Transfer {
	var out []wire.Transfer
	for _, as := range s.Addresses {
		for _, coin := range as.Coins {
			out = append(out, wire.Transfer{Address: as.Address, CoinID: coin.CoinID, Delta: coin.Delta})
		}
	}
	return out
}

