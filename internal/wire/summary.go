package wire

import (
	"sort"

	"devv.io/node/internal/cryptoprim"
	dvErrors "devv.io/node/pkg/errors"
)

// CoinEntry is one coin's net effect within a Summary, carried per address
// (spec.md #6): the coin's id, the net delta applied, and the chain_item
// index (the position within that address's history this entry occupies).
type CoinEntry struct {
	CoinID    uint64
	Delta     int64
	ChainItem int64
}

// AddressSummary is one address's aggregated coin entries within a Summary.
type AddressSummary struct {
	Address cryptoprim.Address
	Coins   []CoinEntry
}

// Summary is the block-level aggregate of every admitted transaction's
// transfers, grouped by address then by coin (spec.md #6): an ordered map
// of address -> coin_id -> (delta, chain_item). Ordering is deterministic
// (addresses and, within an address, coin ids, sorted ascending) so two
// nodes computing a Summary over the same transaction set produce
// byte-identical wire output.
type Summary struct {
	Addresses []AddressSummary
}

// BuildSummary aggregates transfers across a set of transactions into a
// canonically ordered Summary. touchCount reports how many times an
// address/coin pair has already been touched in the prior chain state, used
// to stamp each entry's chain_item (spec.md #6); wire cannot depend on
// internal/chainstate directly (chainstate depends on wire), so the lookup
// is injected.
func BuildSummary(txs []*Transaction, touchCount func(addr cryptoprim.Address, coin uint64) int64) *Summary {
	type key struct {
		addr   cryptoprim.Address
		coinID uint64
	}
	deltas := make(map[key]int64)
	order := make([]key, 0)
	seen := make(map[key]bool)

	for _, tx := range txs {
		for _, tr := range tx.Transfers() {
			k := key{addr: tr.Address, coinID: tr.CoinID}
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
			deltas[k] += tr.Delta
		}
	}

	byAddr := make(map[cryptoprim.Address][]CoinEntry)
	addrOrder := make([]cryptoprim.Address, 0)
	addrSeen := make(map[cryptoprim.Address]bool)
	for _, k := range order {
		if !addrSeen[k.addr] {
			addrSeen[k.addr] = true
			addrOrder = append(addrOrder, k.addr)
		}
		byAddr[k.addr] = append(byAddr[k.addr], CoinEntry{CoinID: k.coinID, Delta: deltas[k]})
	}

	sort.Slice(addrOrder, func(i, j int) bool {
		return string(addrOrder[i][:]) < string(addrOrder[j][:])
	})

	s := &Summary{Addresses: make([]AddressSummary, 0, len(addrOrder))}
	for _, addr := range addrOrder {
		coins := byAddr[addr]
		sort.Slice(coins, func(i, j int) bool { return coins[i].CoinID < coins[j].CoinID })
		if touchCount != nil {
			for i := range coins {
				coins[i].ChainItem = touchCount(addr, coins[i].CoinID)
			}
		}
		s.Addresses = append(s.Addresses, AddressSummary{Address: addr, Coins: coins})
	}
	return s
}

// Encode appends the canonical wire form of s to dst:
// (33B address | u64 coin_count | (u64 coin_id | i64 delta | i64 chain_item){coin_count}){addr_count}
func (s *Summary) Encode(dst []byte) []byte {
	for _, as := range s.Addresses {
		dst = append(dst, as.Address[:]...)
		dst = PutUint64LE(dst, uint64(len(as.Coins)))
		for _, c := range as.Coins {
			dst = PutUint64LE(dst, c.CoinID)
			dst = PutInt64LE(dst, c.Delta)
			dst = PutInt64LE(dst, c.ChainItem)
		}
	}
	return dst
}

// DecodeSummary reads address entries from buf until sumSize bytes have
// been consumed, mirroring FinalBlock::Create's "read until offset reaches
// the self-declared section length" loop in original_source.
func DecodeSummary(buf *InputBuffer, sumSize uint64) (*Summary, error) {
	if uint64(buf.Remaining()) < sumSize {
		return nil, dvErrors.NewDeserializationError("summary section exceeds remaining buffer")
	}
	limit := buf.Offset() + int(sumSize)
	s := &Summary{}
	for buf.Offset() < limit {
		var as AddressSummary
		if err := buf.CopyFixed(as.Address[:]); err != nil {
			return nil, err
		}
		coinCount, err := buf.GetUint64LE()
		if err != nil {
			return nil, err
		}
		if coinCount > uint64(buf.Remaining())/24 {
			return nil, dvErrors.NewDeserializationError("summary coin_count exceeds remaining buffer")
		}
		as.Coins = make([]CoinEntry, 0, coinCount)
		for j := uint64(0); j < coinCount; j++ {
			coinID, err := buf.GetUint64LE()
			if err != nil {
				return nil, err
			}
			delta, err := buf.GetInt64LE()
			if err != nil {
				return nil, err
			}
			chainItem, err := buf.GetInt64LE()
			if err != nil {
				return nil, err
			}
			as.Coins = append(as.Coins, CoinEntry{CoinID: coinID, Delta: delta, ChainItem: chainItem})
		}
		s.Addresses = append(s.Addresses, as)
	}
	if buf.Offset() != limit {
		return nil, dvErrors.NewDeserializationError("summary section misaligned")
	}
	return s, nil
}

// AddressCount returns the number of addresses summarized. The FinalBlock
// encoder does not call it; it sizes the summary from the encoded bytes.
func (s *Summary) AddressCount() int { return len(s.Addresses) }
