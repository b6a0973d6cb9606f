package node

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"devv.io/node/internal/config"
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/fabric"
	"devv.io/node/internal/wire"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig(selfURI string) *config.Config {
	var cfg config.Config
	cfg.Node.Mode = "T2"
	cfg.Node.Index = 0
	cfg.Node.PeerCount = 1
	cfg.Node.MaxTxPerBlock = 10
	cfg.Node.MaxWaitMS = 0
	cfg.Node.SelfURI = selfURI
	cfg.Peers = map[int]string{0: selfURI}
	return &cfg
}

func fundedTransfer(t *testing.T, ring *cryptoprim.StaticKeyRing, from, to int, amount int64) *wire.Transaction {
	t.Helper()
	priv, a, _ := ring.NodeKey(from)
	_, b, _ := ring.NodeKey(to)
	nonce := make([]byte, 16)
	for i := range nonce {
		nonce[i] = byte(i + 5)
	}
	tx, err := wire.NewTransaction(priv, wire.OpExchange, []wire.Transfer{
		{Address: a, CoinID: 1, Delta: -amount},
		{Address: b, CoinID: 1, Delta: amount},
	}, nonce)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	return tx
}

func TestStartProposesGenesisWhenThisNodeIsTheHeightZeroProposer(t *testing.T) {
	ring, err := cryptoprim.GenerateKeyRing(2)
	if err != nil {
		t.Fatalf("GenerateKeyRing: %v", err)
	}
	mem := fabric.NewMemory()
	listener := mem.Subscribe("shard-0")
	fab := fabric.NewNode(mem, "shard-0")

	n, err := New(testLogger(), testConfig("shard-0"), ring, fab)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, addr0, _ := ring.NodeKey(0)
	if err := n.chain.State().Apply([]wire.Transfer{{Address: addr0, CoinID: 1, Delta: 100}}); err != nil {
		t.Fatalf("seeding genesis state: %v", err)
	}
	tx := fundedTransfer(t, ring, 0, 1, 10)
	if !n.pool.AddTransactions(tx.Canonical()) {
		t.Fatal("AddTransactions should have admitted a sound, funded transfer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Start(ctx) }()

	select {
	case in := <-listener:
		if in.Message.Type != wire.ProposalBlockMsg {
			t.Fatalf("first self-published message = %v, want PROPOSAL_BLOCK", in.Message.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the genesis proposal to be published")
	}

	n.StartShutdown()
	n.Shutdown()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after StartShutdown")
	}
}

func TestStartShutdownUnblocksStartPromptly(t *testing.T) {
	ring, err := cryptoprim.GenerateKeyRing(2)
	if err != nil {
		t.Fatalf("GenerateKeyRing: %v", err)
	}
	mem := fabric.NewMemory()
	fab := fabric.NewNode(mem, "shard-1")

	cfg := testConfig("shard-1")
	cfg.Node.PeerCount = 2 // this node is not the height-0 proposer, so Start should idle
	cfg.Node.Index = 1
	n, err := New(testLogger(), cfg, ring, fab)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- n.Start(ctx) }()

	// Give the dispatch loop a moment to actually start before tearing down.
	time.Sleep(20 * time.Millisecond)
	n.StartShutdown()
	n.Shutdown()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned an error after a clean shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return promptly after StartShutdown")
	}
}

func TestChainSizeAndPoolSizeReflectController(t *testing.T) {
	ring, err := cryptoprim.GenerateKeyRing(2)
	if err != nil {
		t.Fatalf("GenerateKeyRing: %v", err)
	}
	mem := fabric.NewMemory()
	fab := fabric.NewNode(mem, "shard-2")
	n, err := New(testLogger(), testConfig("shard-2"), ring, fab)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.ChainSize() != 0 || n.PoolSize() != 0 {
		t.Fatalf("fresh node: ChainSize=%d PoolSize=%d, want 0,0", n.ChainSize(), n.PoolSize())
	}
	tx := fundedTransfer(t, ring, 0, 1, 5)
	n.pool.AddTransactions(tx.Canonical())
	if n.PoolSize() != 1 {
		t.Fatalf("PoolSize = %d, want 1 after admitting one transaction", n.PoolSize())
	}
}
