// Package node wires config, fabric, consensus, internetwork and controller
// together into the one long-lived process spec.md #5/#6 describes: a node
// that runs until told to stop, draining inbound processing before it
// terminates.
//
// Grounded on _examples/original_source/src/devcashnode.h's DevcashNode:
// the process-lifetime object that owns the controller and exposes
// Start/StartShutdown/Shutdown, rendered here as a context.Context the
// caller cancels instead of the original's keep_running bool plus
// condition variable.
package node

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"devv.io/node/internal/blockchain"
	"devv.io/node/internal/config"
	"devv.io/node/internal/consensus"
	"devv.io/node/internal/controller"
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/devvcontext"
	"devv.io/node/internal/internetwork"
	"devv.io/node/internal/utxpool"
	"devv.io/node/internal/wire"
)

// Node is one running shard peer: its chain, pool, handler sets, and the
// controller that dispatches between them and the fabric.
type Node struct {
	log  *logrus.Logger
	ctx  *devvcontext.Context
	ring cryptoprim.KeyRing

	chain *blockchain.Chain
	pool  *utxpool.Pool
	cons  *consensus.Handlers
	inet  *internetwork.Handlers
	ctrl  *controller.Controller

	fabric  controller.Fabric
	selfURI string

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Node from a loaded Config, a key ring to sign under, and the
// fabric it publishes to and reads from.
func New(log *logrus.Logger, cfg *config.Config, ring cryptoprim.KeyRing, fab controller.Fabric) (*Node, error) {
	dctx, err := cfg.ToDevvContext()
	if err != nil {
		return nil, err
	}

	chain := blockchain.New()
	pool := utxpool.New(log)
	cons := consensus.New(log, dctx, ring, chain, pool)
	inet := internetwork.New(log, dctx, chain, pool)
	ctrl := controller.New(log, fab, chain, pool, cons, inet, cfg.Node.SelfURI)

	return &Node{
		log:     log,
		ctx:     dctx,
		ring:    ring,
		chain:   chain,
		pool:    pool,
		cons:    cons,
		inet:    inet,
		ctrl:    ctrl,
		fabric:  fab,
		selfURI: cfg.Node.SelfURI,
	}, nil
}

// ChainSize and PoolSize expose the controller's status accessors for the
// CLI's status output.
func (n *Node) ChainSize() int { return n.ctrl.ChainSize() }
func (n *Node) PoolSize() int  { return n.ctrl.PoolSize() }

// Start runs the node until ctx is canceled or a handler reports a fatal
// error. If this node is height 0's proposer and the chain is still empty,
// it proposes the genesis block itself before entering the dispatch loop —
// nothing else ever triggers the very first proposal (spec.md #4.5's
// proposer-advances-on-FINAL_BLOCK rule has no prior FINAL_BLOCK to react
// to at height 0).
func (n *Node) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	defer close(n.done)

	if n.chain.Size() == 0 && n.ctx.IsProposer(0) {
		if err := n.proposeGenesis(); err != nil {
			return err
		}
	}
	return n.ctrl.Start(runCtx)
}

// StartShutdown signals the running node to stop (spec.md #5: "on
// transition to false, the outbound queue is unblocked and both threads
// exit within one poll interval"), without waiting for it to finish.
func (n *Node) StartShutdown() {
	if n.cancel != nil {
		n.cancel()
	}
}

// Shutdown blocks until the node's dispatch and publish loops have both
// drained and exited, so callers never observe a half-stopped node.
func (n *Node) Shutdown() {
	if n.done != nil {
		<-n.done
	}
}

func (n *Node) proposeGenesis() error {
	ok, err := n.pool.ProposeBlock(n.chain.TipHash(), n.chain.State(), n.ctx, n.ring, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	msg := wire.Message{Type: wire.ProposalBlockMsg, Payload: n.pool.GetProposal().Encode(nil)}
	return n.fabric.Publish(n.selfURI, msg)
}
