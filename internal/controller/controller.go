// Package controller implements the fan-in dispatcher spec.md #4.7
// describes: one inbound message stream classified by message_type and
// routed to the consensus or internetwork handlers, and a single outbound
// emission seat with exclusive send rights to the fabric.
//
// Grounded on
// _examples/original_source/src/concurrency/DevcashController.h's
// push*/​*Callback shape, ConsensusController.cpp's single-mutex
// try/catch-then-fatal dispatch, and the teacher's
// (orbas1-Synnergy/synnergy-network/core/consensus.go) goroutine lifecycle
// pattern: Start(ctx) launching long-lived ctx.Done()-selecting loops via
// an errgroup instead of raw `go` statements with no join point.
package controller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"devv.io/node/internal/blockchain"
	"devv.io/node/internal/consensus"
	"devv.io/node/internal/internetwork"
	"devv.io/node/internal/utxpool"
	"devv.io/node/internal/wire"
	dvErrors "devv.io/node/pkg/errors"
)

// Inbound is one message arriving off the fabric, tagged with the URI it
// arrived on so GET_BLOCKS_SINCE replies can be routed back to the
// requester, the fabric's own monotonically increasing trace index (read by
// nothing here; tracing only), and a uuid for cross-log correlation (spec.md #6: "the
// messaging fabric additionally attaches a URI... and a monotonically
// increasing index used only for tracing").
type Inbound struct {
	SourceURI string
	TraceIx   uint64
	TraceID   uuid.UUID
	Message   wire.Message
}

// Outbound is one message destined for the fabric, addressed to a topic
// URI; the server loop is the only goroutine that ever calls Fabric.Publish
// (spec.md #4.7: "the controller has exclusive send rights to the
// fabric").
type Outbound struct {
	URI     string
	Message wire.Message
}

// Fabric is the transport seam the controller publishes outbound traffic
// through and reads inbound traffic from (spec.md #1: transport is an
// external collaborator specified only by the interfaces the core uses).
type Fabric interface {
	// Publish sends msg to topic uri.
	Publish(uri string, msg wire.Message) error
	// Inbox returns the channel of messages arriving on every topic this
	// node subscribes to.
	Inbox() <-chan Inbound
}

// outboundQueueSize bounds the server loop's pending-publish queue (spec.md
// #5: "blocking queue pop/push in the outbound path (bounded wait with a
// cancel flag)").
const outboundQueueSize = 256

// enqueueWait is how long a handler's emit blocks on a full outbound queue
// before the message is dropped.
const enqueueWait = 100 * time.Millisecond

// Controller owns the pool and chain and is the single point where inbound
// messages are classified and outbound messages are emitted (spec.md #4.7).
type Controller struct {
	log     *logrus.Logger
	fabric  Fabric
	chain   *blockchain.Chain
	pool    *utxpool.Pool
	cons    *consensus.Handlers
	inet    *internetwork.Handlers
	selfURI string

	outbound chan Outbound
}

// New builds a Controller. selfURI is this node's own shard topic, used to
// loop REQUEST_BLOCK self-messages back into the dispatcher.
func New(log *logrus.Logger, fabric Fabric, chain *blockchain.Chain, pool *utxpool.Pool, cons *consensus.Handlers, inet *internetwork.Handlers, selfURI string) *Controller {
	return &Controller{
		log:      log,
		fabric:   fabric,
		chain:    chain,
		pool:     pool,
		cons:     cons,
		inet:     inet,
		selfURI:  selfURI,
		outbound: make(chan Outbound, outboundQueueSize),
	}
}

// ChainSize returns the number of finalized blocks this node currently
// holds, for status reporting by the node/CLI layer.
func (c *Controller) ChainSize() int { return c.chain.Size() }

// PoolSize returns the number of distinct transactions currently held in
// the UTX pool, for status reporting by the node/CLI layer.
func (c *Controller) PoolSize() int { return c.pool.NumPendingTransactions() }

// emitShard is the Emit seat handed to the consensus handlers: it addresses
// the shard's own topic (spec.md #4.5's "emit ... to the shard topic").
func (c *Controller) emitShard(msg wire.Message) {
	c.enqueue(Outbound{URI: c.selfURI, Message: msg})
}

// emitPeer addresses a specific peer URI, used by internetwork handlers
// (spec.md #4.6's GET_BLOCKS_SINCE/BLOCKS_SINCE routing).
func (c *Controller) emitPeer(uri string, msg wire.Message) {
	c.enqueue(Outbound{URI: uri, Message: msg})
}

func (c *Controller) enqueue(out Outbound) {
	select {
	case c.outbound <- out:
	case <-time.After(enqueueWait):
		c.log.Warn("controller: outbound queue full, dropping message")
	}
}

// Start launches the server (outbound publish) and client (inbound
// dispatch) loops, returning once both have exited — either because ctx was
// canceled or because a handler returned a Fatal error (spec.md #5's
// "on transition to false, the outbound queue is unblocked and both threads
// exit within one poll interval").
func (c *Controller) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.serverLoop(gctx) })
	g.Go(func() error { return c.clientLoop(gctx) })
	return g.Wait()
}

func (c *Controller) serverLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out := <-c.outbound:
			if err := c.fabric.Publish(out.URI, out.Message); err != nil {
				c.log.WithError(err).Warn("controller: publish failed")
			}
		}
	}
}

func (c *Controller) clientLoop(ctx context.Context) error {
	inbox := c.fabric.Inbox()
	for {
		select {
		case <-ctx.Done():
			return nil
		case in, ok := <-inbox:
			if !ok {
				return nil
			}
			if err := c.dispatch(in); err != nil {
				return err
			}
		}
	}
}

// dispatch classifies in by message_type and routes it to the consensus or
// internetwork handler set (spec.md #4.7). Any error other than a
// dvErrors.FatalError is already fully handled (logged and dropped) inside
// the handler itself; only a FatalError propagates here, terminating the
// client loop and, via the errgroup, the whole controller.
func (c *Controller) dispatch(in Inbound) error {
	var err error
	switch in.Message.Type {
	case wire.FinalBlockMsg:
		err = c.cons.HandleFinalBlock(in.Message, c.emitShard)
	case wire.ProposalBlockMsg:
		err = c.cons.HandleProposalBlock(in.Message, c.emitShard)
	case wire.ValidationMsg:
		err = c.cons.HandleValidationBlock(in.Message, c.emitShard)
	case wire.TransactionAnnouncementMsg:
		if !c.pool.AddTransactions(in.Message.Payload) {
			c.log.Warn("controller: TRANSACTION_ANNOUNCEMENT contained an unsound transaction")
		}
	case wire.RequestBlockMsg:
		err = c.inet.HandleRequestBlock(c.emitPeer)
	case wire.GetBlocksSinceMsg:
		err = c.inet.HandleGetBlocksSince(in.Message, in.SourceURI, c.emitPeer)
	case wire.BlocksSinceMsg:
		err = c.inet.HandleBlocksSince(in.Message)
	default:
		c.log.WithField("type", in.Message.Type).Warn("controller: unexpected message type, ignoring")
		return nil
	}
	if err == nil {
		return nil
	}
	if _, ok := err.(*dvErrors.FatalError); ok {
		c.log.WithError(err).Error("controller: fatal error in handler, aborting node")
		return err
	}
	c.log.WithError(err).Warn("controller: handler returned an error outside the Fatal path, dropping")
	return nil
}
