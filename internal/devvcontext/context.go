// Package devvcontext carries the per-node shard configuration referenced
// throughout spec.md: which tier this node's shard belongs to, this node's
// index within its shard's peer set, the shard's total peer count, the URI
// each peer index publishes/subscribes on, and the batching wait used by
// the UTX pool's greedy collector.
//
// Grounded on the method surface every original_source consumer file names
// (get_current_node, get_peer_count, get_uri_from_index, get_max_wait) —
// the DevvContext/DevcashContext header itself was not in the kept file
// set, but its contract is pinned down by its callers.
package devvcontext

import (
	"fmt"
	"time"
)

// Mode distinguishes the two shard tiers (spec.md Glossary: T1/T2).
type Mode int

const (
	// T1 is the summary/coordinator tier.
	T1 Mode = iota
	// T2 is the transaction-processing tier.
	T2
)

func (m Mode) String() string {
	switch m {
	case T1:
		return "T1"
	case T2:
		return "T2"
	default:
		return "unknown"
	}
}

// Context is the immutable shard configuration for this node (spec.md #4.6,
// #4.4). It is constructed once at startup and never mutated; peer
// membership is static for the lifetime of the process (spec.md #1
// Non-goals: "dynamic peer membership").
type Context struct {
	Mode          Mode
	CurrentNode   int
	PeerCount     int
	MaxTxPerBlock int
	MaxWait       time.Duration

	// uris maps a global peer index (spec.md #4.6: T1 indices are
	// [0,peer_count), T2 shard k's indices are [(k+1)*peer_count,
	// (k+2)*peer_count)) to the shard topic URI that peer publishes on.
	uris map[int]string
}

// New constructs a Context. uris must map every global peer index this node
// will ever address (its own shard plus, for a T1 node, the corresponding
// index in every T2 shard it catches up from) to a topic URI.
func New(mode Mode, currentNode, peerCount, maxTxPerBlock int, maxWait time.Duration, uris map[int]string) *Context {
	return &Context{
		Mode:          mode,
		CurrentNode:   currentNode,
		PeerCount:     peerCount,
		MaxTxPerBlock: maxTxPerBlock,
		MaxWait:       maxWait,
		uris:          uris,
	}
}

// GetCurrentNode returns this node's index within its shard.
func (c *Context) GetCurrentNode() int { return c.CurrentNode }

// GetPeerCount returns the number of peers in this node's shard.
func (c *Context) GetPeerCount() int { return c.PeerCount }

// GetMaxWait returns the batching wait used by the UTX pool's greedy
// collector when the pool is below the per-block transaction target
// (spec.md #4.4).
func (c *Context) GetMaxWait() time.Duration { return c.MaxWait }

// GetURIFromIndex resolves a global peer index to its shard topic URI.
func (c *Context) GetURIFromIndex(index int) (string, error) {
	uri, ok := c.uris[index]
	if !ok {
		return "", fmt.Errorf("devvcontext: no URI registered for peer index %d", index)
	}
	return uri, nil
}

// ProposerIndex returns the proposer's node index for the given chain
// height (spec.md #4.5: "height mod peer_count").
func (c *Context) ProposerIndex(height uint64) int {
	return int(height % uint64(c.PeerCount))
}

// IsProposer reports whether this node is the proposer at height.
func (c *Context) IsProposer(height uint64) bool {
	return c.ProposerIndex(height) == c.CurrentNode
}

// SigningNodeIndex returns the index this node signs blocks as, per
// spec.md #4.4 ("signs under node_index mod peer_count").
func (c *Context) SigningNodeIndex() int {
	return c.CurrentNode % c.PeerCount
}
