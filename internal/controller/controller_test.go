package controller_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"devv.io/node/internal/blockchain"
	"devv.io/node/internal/consensus"
	"devv.io/node/internal/controller"
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/devvcontext"
	"devv.io/node/internal/fabric"
	"devv.io/node/internal/internetwork"
	"devv.io/node/internal/utxpool"
	"devv.io/node/internal/wire"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type replica struct {
	chain *blockchain.Chain
	pool  *utxpool.Pool
	ctx   *devvcontext.Context
	ctrl  *controller.Controller
	fab   *fabric.Node
}

// buildShard wires up peerCount replicas sharing one fabric topic, each
// with identical seeded genesis state, the shape spec.md #8's end-to-end
// scenarios describe.
func buildShard(t *testing.T, peerCount, maxTxPerBlock int, ring *cryptoprim.StaticKeyRing, seed func(i int, chain *blockchain.Chain)) ([]*replica, *fabric.Memory) {
	t.Helper()
	const topic = "shard-0"
	mem := fabric.NewMemory()
	uris := map[int]string{}
	for i := 0; i < peerCount; i++ {
		uris[i] = topic
	}

	replicas := make([]*replica, peerCount)
	for i := 0; i < peerCount; i++ {
		log := quietLogger()
		dctx := devvcontext.New(devvcontext.T2, i, peerCount, maxTxPerBlock, 0, uris)
		chain := blockchain.New()
		if seed != nil {
			seed(i, chain)
		}
		pool := utxpool.New(log)
		cons := consensus.New(log, dctx, ring, chain, pool)
		inet := internetwork.New(log, dctx, chain, pool)
		fab := fabric.NewNode(mem, topic)
		ctrl := controller.New(log, fab, chain, pool, cons, inet, topic)
		replicas[i] = &replica{chain: chain, pool: pool, ctx: dctx, ctrl: ctrl, fab: fab}
	}
	return replicas, mem
}

func fundedTransfer(ring *cryptoprim.StaticKeyRing, from, to int, amount int64) *wire.Transaction {
	priv, a, _ := ring.NodeKey(from)
	_, b, _ := ring.NodeKey(to)
	nonce := make([]byte, 16)
	for i := range nonce {
		nonce[i] = byte(i + 9)
	}
	tx, err := wire.NewTransaction(priv, wire.OpExchange, []wire.Transfer{
		{Address: a, CoinID: 1, Delta: -amount},
		{Address: b, CoinID: 1, Delta: amount},
	}, nonce)
	if err != nil {
		panic(err)
	}
	return tx
}

// TestConsensusHappyPathOneBlock covers spec.md #8's first end-to-end
// scenario: a transaction flows through proposal, validation and
// finalization, landing identically on every replica.
func TestConsensusHappyPathOneBlock(t *testing.T) {
	const peerCount = 3
	ring, err := cryptoprim.GenerateKeyRing(peerCount)
	if err != nil {
		t.Fatalf("GenerateKeyRing: %v", err)
	}
	_, addr0, _ := ring.NodeKey(0)

	replicas, _ := buildShard(t, peerCount, 10, ring, func(i int, chain *blockchain.Chain) {
		if err := chain.State().Apply([]wire.Transfer{{Address: addr0, CoinID: 1, Delta: 100}}); err != nil {
			t.Fatalf("seed replica %d: %v", i, err)
		}
	})

	tx := fundedTransfer(ring, 0, 1, 10)
	replicas[0].pool.AddTransactions(tx.Canonical())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range replicas {
		r := r
		g.Go(func() error { return r.ctrl.Start(gctx) })
	}

	ok, perr := replicas[0].pool.ProposeBlock(replicas[0].chain.TipHash(), replicas[0].chain.State(), replicas[0].ctx, ring, time.Now())
	if perr != nil {
		t.Fatalf("ProposeBlock: %v", perr)
	}
	if !ok {
		t.Fatal("ProposeBlock should have produced a proposal")
	}
	proposal := replicas[0].pool.GetProposal()
	if err := publishProposal(replicas[0], proposal); err != nil {
		t.Fatalf("publishing genesis proposal: %v", err)
	}

	deadline := time.After(4 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
waitLoop:
	for {
		select {
		case <-tick.C:
			all := true
			for _, r := range replicas {
				if r.chain.Size() != 1 {
					all = false
					break
				}
			}
			if all {
				break waitLoop
			}
		case <-deadline:
			t.Fatal("timed out waiting for all replicas to finalize the block")
		}
	}
	cancel()
	_ = g.Wait()

	for i, r := range replicas {
		if r.chain.Size() != 1 {
			t.Fatalf("replica %d chain size = %d, want 1", i, r.chain.Size())
		}
		if r.chain.State().Balance(addr0, 1) != 90 {
			t.Fatalf("replica %d balance = %d, want 90", i, r.chain.State().Balance(addr0, 1))
		}
		if r.pool.NumPendingTransactions() != 0 {
			t.Fatalf("replica %d still has %d pending transactions after finalization", i, r.pool.NumPendingTransactions())
		}
	}
}

// publishProposal emits a PROPOSAL_BLOCK directly onto the shard topic,
// exactly what Controller.emitShard does from inside consensus.HandleFinalBlock
// — used here once to kick off height 0, which has no prior FINAL_BLOCK to
// react to.
func publishProposal(r *replica, proposal *wire.FinalBlock) error {
	return r.fab.Publish("shard-0", wire.Message{Type: wire.ProposalBlockMsg, Payload: proposal.Encode(nil)})
}
