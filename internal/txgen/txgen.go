// Package txgen mints internally-consistent signed transactions for tests
// and the devvnode bench subcommand: spec.md #8's testable properties need
// a steady stream of sound transactions, and nothing in the core itself
// should know how to fabricate one.
//
// Grounded on DevcashController's generateTransactions()/loadTransactions()
// pair (_examples/original_source/src/concurrency/DevcashController.h):
// one path synthesizes transactions in-process, the other replays a fixed
// batch; Generator.Next/Batch cover the in-process path, and a caller that
// wants a fixed replay set simply calls Batch once and reuses the result.
package txgen

import (
	"fmt"
	"math/rand"

	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/wire"
)

// nonceSize matches wire's minNonceSize; kept separate since that constant
// is unexported.
const nonceSize = 16

// Generator mints random two-party transfers among a fixed participant set,
// each signed by its sender and therefore sound by construction (spec.md
// #3: deltas net to zero per coin, signature recovers to the sender).
type Generator struct {
	ring         cryptoprim.KeyRing
	participants []cryptoprim.Address
	coinID       uint64
	maxAmount    int64
	rng          *rand.Rand
}

// New builds a Generator over the first n node indices of ring, all
// transacting in a single coin. seed makes the stream reproducible across
// runs (tests pass a fixed seed; devvnode bench passes the wall clock).
func New(ring cryptoprim.KeyRing, n int, coinID uint64, maxAmount int64, seed int64) (*Generator, error) {
	if n < 2 {
		return nil, fmt.Errorf("txgen: need at least 2 participants, got %d", n)
	}
	addrs := make([]cryptoprim.Address, n)
	for i := 0; i < n; i++ {
		_, addr, err := ring.NodeKey(i)
		if err != nil {
			return nil, fmt.Errorf("txgen: resolving participant %d: %w", i, err)
		}
		addrs[i] = addr
	}
	return &Generator{ring: ring, participants: addrs, coinID: coinID, maxAmount: maxAmount, rng: rand.New(rand.NewSource(seed))}, nil
}

// Next mints one random transfer between two distinct participants, signed
// by the sender.
func (g *Generator) Next() (*wire.Transaction, error) {
	n := len(g.participants)
	from := g.rng.Intn(n)
	to := g.rng.Intn(n - 1)
	if to >= from {
		to++
	}
	amount := int64(1 + g.rng.Int63n(g.maxAmount))

	priv, _, err := g.ring.NodeKey(from)
	if err != nil {
		return nil, fmt.Errorf("txgen: resolving sender %d: %w", from, err)
	}

	nonce := make([]byte, nonceSize)
	g.rng.Read(nonce)

	transfers := []wire.Transfer{
		{Address: g.participants[from], CoinID: g.coinID, Delta: -amount},
		{Address: g.participants[to], CoinID: g.coinID, Delta: amount},
	}
	return wire.NewTransaction(priv, wire.OpExchange, transfers, nonce)
}

// Batch mints count transactions via repeated calls to Next.
func (g *Generator) Batch(count int) ([]*wire.Transaction, error) {
	out := make([]*wire.Transaction, count)
	for i := range out {
		tx, err := g.Next()
		if err != nil {
			return nil, err
		}
		out[i] = tx
	}
	return out, nil
}

// Encode batch-encodes txs back-to-back, the shape
// utxpool.Pool.AddTransactions / wire.ParseTransaction expect.
func Encode(txs []*wire.Transaction) []byte {
	var out []byte
	for _, tx := range txs {
		out = append(out, tx.Canonical()...)
	}
	return out
}
