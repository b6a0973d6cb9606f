// Package chainstate implements the tip balance state spec.md #4.2
// describes: a map of address to per-coin balance, updated all-or-nothing
// as blocks are applied or unapplied.
//
// Grounded on Blockchain::getHighestChainState's role in
// original_source/src/consensus/blockchain.h (the chain keeps a running
// state at its tip) and on the ledger-as-nested-map shape of
// _examples/orbas1-Synnergy/synnergy-network/core/ledger.go's balance
// bookkeeping.
package chainstate

import (
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/wire"
	dvErrors "devv.io/node/pkg/errors"
)

// State is the tip balance table: address -> coin id -> balance (spec.md
// #4.2). It is not safe for concurrent use; callers serialize access (the
// UTX pool reads it under its txsMu, and the consensus and internetwork
// handlers that read or advance it all run on the controller's single
// dispatch goroutine).
type State struct {
	balances map[cryptoprim.Address]map[uint64]int64
	touches  map[cryptoprim.Address]map[uint64]int64
}

// New returns an empty State.
func New() *State {
	return &State{
		balances: make(map[cryptoprim.Address]map[uint64]int64),
		touches:  make(map[cryptoprim.Address]map[uint64]int64),
	}
}

// Balance returns addr's balance of coin, defaulting to zero.
func (s *State) Balance(addr cryptoprim.Address, coin uint64) int64 {
	coins, ok := s.balances[addr]
	if !ok {
		return 0
	}
	return coins[coin]
}

// Copy returns an independent deep copy of s, used by the pool's greedy
// collector and by HandleProposalBlock's trial apply to compute a
// post-block state without disturbing the live state (spec.md #4.4).
func (s *State) Copy() *State {
	out := New()
	for addr, coins := range s.balances {
		dup := make(map[uint64]int64, len(coins))
		for coin, bal := range coins {
			dup[coin] = bal
		}
		out.balances[addr] = dup
	}
	for addr, coins := range s.touches {
		dup := make(map[uint64]int64, len(coins))
		for coin, n := range coins {
			dup[coin] = n
		}
		out.touches[addr] = dup
	}
	return out
}

// TouchCount returns how many times addr/coin has been credited or debited
// across the state's history, used as a Summary entry's chain_item: each
// admitted transfer occupies the next position in that address's own
// per-coin history (spec.md #6).
func (s *State) TouchCount(addr cryptoprim.Address, coin uint64) int64 {
	coins, ok := s.touches[addr]
	if !ok {
		return 0
	}
	return coins[coin]
}

// CanApply reports whether every debit in transfers would leave its
// address's balance non-negative, without mutating s (spec.md #4.2's
// overdraft check).
func (s *State) CanApply(transfers []wire.Transfer) bool {
	pending := make(map[cryptoprim.Address]map[uint64]int64)
	for _, t := range transfers {
		if t.Delta >= 0 {
			continue
		}
		addrDeltas, ok := pending[t.Address]
		if !ok {
			addrDeltas = make(map[uint64]int64)
			pending[t.Address] = addrDeltas
		}
		addrDeltas[t.CoinID] += t.Delta
	}
	for addr, coins := range pending {
		for coin, delta := range coins {
			if s.Balance(addr, coin)+delta < 0 {
				return false
			}
		}
	}
	return true
}

// Apply debits and credits every transfer in transfers. It is all-or-
// nothing: if any debit would overdraw, no transfer in the batch is
// applied and an OverdraftError is returned (spec.md #4.2).
func (s *State) Apply(transfers []wire.Transfer) error {
	if !s.CanApply(transfers) {
		return dvErrors.NewOverdraftError("apply would overdraw an address")
	}
	for _, t := range transfers {
		s.credit(t.Address, t.CoinID, t.Delta)
	}
	return nil
}

// Unapply reverses a previously applied batch of transfers (spec.md #4.2:
// used when a sibling's conflicting proposal/final block requires
// rewinding state to reverify against a new tip). It never fails: having
// been applied once, reversing it cannot overdraw.
func (s *State) Unapply(transfers []wire.Transfer) {
	for _, t := range transfers {
		s.credit(t.Address, t.CoinID, -t.Delta)
	}
}

func (s *State) credit(addr cryptoprim.Address, coin uint64, delta int64) {
	coins, ok := s.balances[addr]
	if !ok {
		coins = make(map[uint64]int64)
		s.balances[addr] = coins
	}
	coins[coin] += delta
	if coins[coin] == 0 {
		delete(coins, coin)
	}
	if len(coins) == 0 {
		delete(s.balances, addr)
	}

	touches, ok := s.touches[addr]
	if !ok {
		touches = make(map[uint64]int64)
		s.touches[addr] = touches
	}
	touches[coin]++
}
