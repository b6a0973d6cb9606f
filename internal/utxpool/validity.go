package utxpool

import (
	"devv.io/node/internal/chainstate"
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/wire"
)

// aggregateKey identifies one (address, coin) pair being tracked across a
// batch of transactions considered together.
type aggregateKey struct {
	addr cryptoprim.Address
	coin uint64
}

// isValidInAggregate reports whether each of tx's debits, taken on its own,
// is covered by state plus the net effect of every sibling transaction
// already accepted into this batch; tx's other transfers are not netted in
// (spec.md #3's Validity:
// "modulo aggregation with sibling transactions in the same proposal").
// Soundness is checked first; an unsound transaction is never valid.
func isValidInAggregate(tx *wire.Transaction, state *chainstate.State, aggregate map[aggregateKey]int64) bool {
	if !tx.Soundness() {
		return false
	}
	for _, tr := range tx.Transfers() {
		if tr.Delta >= 0 {
			continue
		}
		k := aggregateKey{addr: tr.Address, coin: tr.CoinID}
		available := state.Balance(tr.Address, tr.CoinID) + aggregate[k]
		if available+tr.Delta < 0 {
			return false
		}
	}
	return true
}

// applyToAggregate records tx's transfers into aggregate, for every
// subsequent isValidInAggregate call in the same batch.
func applyToAggregate(tx *wire.Transaction, aggregate map[aggregateKey]int64) {
	for _, tr := range tx.Transfers() {
		k := aggregateKey{addr: tr.Address, coin: tr.CoinID}
		aggregate[k] += tr.Delta
	}
}

// isValidAlone reports whether tx is valid against state in isolation,
// ignoring any sibling batch (used by the pool's standalone cleanup sweep,
// where there is no batch to aggregate against).
func isValidAlone(tx *wire.Transaction, state *chainstate.State) bool {
	return isValidInAggregate(tx, state, nil)
}
