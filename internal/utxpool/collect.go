package utxpool

import (
	"time"

	"devv.io/node/internal/chainstate"
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/devvcontext"
	"devv.io/node/internal/wire"
	dvErrors "devv.io/node/pkg/errors"
)

// removeInvalidTransactions sweeps the pool once, dropping every entry
// unsound or invalid against state in isolation. It returns true once a
// sweep removes nothing (the fixed point spec.md #4.4 step 3 requires
// before a collection restart). Caller must hold txsMu.
func (p *Pool) removeInvalidTransactions(state *chainstate.State) bool {
	removedAny := false
	for sig, e := range p.txs {
		if !isValidAlone(e.tx, state) {
			delete(p.txs, sig)
			removedAny = true
		}
	}
	return !removedAny
}

// collectValidTransactions implements spec.md #4.4's greedy aggregate-
// validity collector, restarting from scratch whenever an invalid
// transaction is found with nothing yet selected.
func (p *Pool) collectValidTransactions(state *chainstate.State, ctx *devvcontext.Context) ([]*wire.Transaction, *chainstate.State) {
	p.txsMu.Lock()
	defer p.txsMu.Unlock()

	if len(p.txs) < ctx.MaxTxPerBlock {
		time.Sleep(ctx.GetMaxWait())
	}

	for {
		postState := state.Copy()
		aggregate := make(map[aggregateKey]int64)
		var selected []*wire.Transaction

		restart := false
		for _, sig := range p.sortedSignatures() {
			e, ok := p.txs[sig]
			if !ok {
				continue // removed by an earlier iteration of this same pass
			}
			if isValidInAggregate(e.tx, state, aggregate) {
				selected = append(selected, e.tx)
				e.refcount++
				applyToAggregate(e.tx, aggregate)
				if err := postState.Apply(e.tx.Transfers()); err != nil {
					// Reached when tx debits one address/coin more than
					// once: isValidInAggregate checks each debit alone,
					// while Apply sums them.
					delete(p.txs, sig)
					restart = true
					break
				}
				if len(selected) == ctx.MaxTxPerBlock {
					break
				}
				continue
			}

			delete(p.txs, sig)
			if len(selected) > 0 {
				break
			}
			for !p.removeInvalidTransactions(state) {
			}
			restart = true
			break
		}

		if restart {
			continue
		}
		return selected, postState
	}
}

// AddAndVerifyTransactions admits an already-decoded batch strictly: any
// unsound or invalid transaction (checked in aggregate against state, with
// membership always checked before use — the addAndVerifyTransactions
// defect in original_source is not reproduced here) causes an immediate
// false return, but transactions admitted earlier in the same call keep
// their effect on the pool (spec.md #4.4).
func (p *Pool) AddAndVerifyTransactions(txs []*wire.Transaction, state *chainstate.State) bool {
	p.txsMu.Lock()
	defer p.txsMu.Unlock()

	aggregate := make(map[aggregateKey]int64)
	for _, e := range p.txs {
		applyToAggregate(e.tx, aggregate)
	}

	for _, tx := range txs {
		if !isValidInAggregate(tx, state, aggregate) {
			return false
		}
		applyToAggregate(tx, aggregate)
		p.admitLocked(tx)
	}
	return true
}

// admitLocked is admit's body without acquiring txsMu; callers must already
// hold it.
func (p *Pool) admitLocked(tx *wire.Transaction) {
	wasEmpty := len(p.txs) == 0
	sig := tx.Signature()
	if e, ok := p.txs[sig]; ok {
		if e.refcount < 255 {
			e.refcount++
		}
		return
	}
	p.txs[sig] = &entry{refcount: 1, tx: tx}
	if wasEmpty {
		p.log.Info("First transaction added")
	}
}

// ProposeBlock builds a new proposal from the pool's greedy collection,
// signs it under this node's signing key, and installs it as the pool's
// single pending proposal (spec.md #4.4). It returns false if no
// transaction in the pool is currently valid (nothing to propose).
func (p *Pool) ProposeBlock(prevHash cryptoprim.Hash, priorState *chainstate.State, ctx *devvcontext.Context, keyring cryptoprim.KeyRing, now time.Time) (bool, error) {
	selected, _ := p.collectValidTransactions(priorState, ctx)
	if len(selected) == 0 {
		return false, nil
	}

	summary := wire.BuildSummary(selected, priorState.TouchCount)
	block := &wire.FinalBlock{
		BlockTime:    uint64(now.Unix()),
		PrevHash:     prevHash,
		Transactions: selected,
		Summary:      summary,
	}
	block.MerkleRoot = wire.MerkleRoot(selected)

	priv, addr, err := keyring.NodeKey(ctx.SigningNodeIndex())
	if err != nil {
		return false, err
	}
	sig := cryptoprim.Sign(priv, block.SigningBytes())
	val := wire.NewValidation()
	val.AddSignature(addr, sig)
	block.Validation = val

	p.proposalMu.Lock()
	defer p.proposalMu.Unlock()
	p.pending = block
	p.hasPending = true
	return true, nil
}

// HasProposal reports whether the pool currently holds a pending proposal.
func (p *Pool) HasProposal() bool {
	p.proposalMu.Lock()
	defer p.proposalMu.Unlock()
	return p.hasPending
}

// GetProposal returns the pending proposal, or nil if there is none.
func (p *Pool) GetProposal() *wire.FinalBlock {
	p.proposalMu.Lock()
	defer p.proposalMu.Unlock()
	if !p.hasPending {
		return nil
	}
	return p.pending
}

// ReverifyProposal re-checks the pending proposal's transactions against a
// new tip state. If they remain jointly valid, the proposal's prev_hash is
// updated in place and true is returned; otherwise the proposal is
// discarded and a fresh one is built via ProposeBlock (spec.md #4.4).
func (p *Pool) ReverifyProposal(newPrevHash cryptoprim.Hash, priorState *chainstate.State, ctx *devvcontext.Context, keyring cryptoprim.KeyRing, now time.Time) (bool, error) {
	// Lock order per spec.md #4.7: txsMu before proposalMu whenever both are
	// needed, since discarding a proposal touches refcounts in TxMap.
	p.txsMu.Lock()
	p.proposalMu.Lock()
	if !p.hasPending {
		p.proposalMu.Unlock()
		p.txsMu.Unlock()
		return false, nil
	}
	current := p.pending
	aggregate := make(map[aggregateKey]int64)
	stillValid := true
	for _, tx := range current.Transactions {
		if !isValidInAggregate(tx, priorState, aggregate) {
			stillValid = false
			break
		}
		applyToAggregate(tx, aggregate)
	}
	if stillValid {
		current.PrevHash = newPrevHash
		p.proposalMu.Unlock()
		p.txsMu.Unlock()
		return true, nil
	}

	// Discard: release every reference this proposal held before rebuilding.
	for _, tx := range current.Transactions {
		if e, ok := p.txs[tx.Signature()]; ok && e.refcount > 0 {
			e.refcount--
		}
	}
	p.pending = nil
	p.hasPending = false
	p.proposalMu.Unlock()
	p.txsMu.Unlock()

	_, err := p.ProposeBlock(newPrevHash, priorState, ctx, keyring, now)
	return false, err
}

// CheckValidation verifies a remote VALID payload (signature || address)
// against the pending proposal's signing bytes, merging it in on success.
// It returns false if there is no pending proposal or the signature is for
// a different proposal (spec.md #4.4, #4.5).
func (p *Pool) CheckValidation(payload []byte) bool {
	sig, addr, err := wire.DecodeVote(payload)
	if err != nil {
		return false
	}
	p.proposalMu.Lock()
	defer p.proposalMu.Unlock()
	if !p.hasPending {
		return false
	}
	if !cryptoprim.Verify(addr, p.pending.SigningBytes(), sig) {
		return false
	}
	p.pending.Validation.AddSignature(addr, sig)
	return true
}

// ValidationCount returns how many distinct endorsements the pending
// proposal currently holds, or 0 if there is no pending proposal.
func (p *Pool) ValidationCount() int {
	p.proposalMu.Lock()
	defer p.proposalMu.Unlock()
	if !p.hasPending {
		return 0
	}
	return p.pending.Validation.Count()
}

// FinalizeLocalBlock turns the pending proposal into a FinalBlock, removes
// its transactions from the pool regardless of refcount, and clears the
// proposal slot. Precondition: HasProposal() == true.
func (p *Pool) FinalizeLocalBlock() (*wire.FinalBlock, error) {
	p.proposalMu.Lock()
	if !p.hasPending {
		p.proposalMu.Unlock()
		return nil, dvErrors.NewVerificationFailedError("finalize_local_block with no pending proposal")
	}
	block := p.pending
	p.pending = nil
	p.hasPending = false
	p.proposalMu.Unlock()

	p.removeTransactions(block.Transactions)
	return block, nil
}

// FinalizeRemoteBlock parses a remote FinalBlock, validates its summary
// against priorState, and removes its transactions from the pool.
func (p *Pool) FinalizeRemoteBlock(data []byte, priorState *chainstate.State) (*wire.FinalBlock, error) {
	buf := wire.NewInputBuffer(data)
	block, err := wire.ParseFinalBlock(buf)
	if err != nil {
		return nil, err
	}
	if !priorState.CanApply(summaryTransfers(block.Summary)) {
		return nil, dvErrors.NewConsistencyError("remote final block summary would overdraw tip state")
	}
	p.removeTransactions(block.Transactions)
	return block, nil
}

// GarbageCollect is a deliberate no-op: pool entries are removed only by
// finalization or the invalid-transaction sweep inside collection, mirroring
// UnrecordedTransactionPool::GarbageCollect in original_source, which is
// itself an empty stub (its TODO names an idle-entry eviction policy that
// was never implemented upstream).
func (p *Pool) GarbageCollect() {}

func summaryTransfers(s *wire.Summary) []wire.Transfer {
	var out []wire.Transfer
	for _, as := range s.Addresses {
		for _, coin := range as.Coins {
			out = append(out, wire.Transfer{Address: as.Address, CoinID: coin.CoinID, Delta: coin.Delta})
		}
	}
	return out
}
