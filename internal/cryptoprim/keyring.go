package cryptoprim

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyRing is the key directory / address book spec.md #1 treats as an
// external collaborator: the core only ever asks it for "the private key
// this node signs with" (by node index) to produce proposals and
// validations. Signature verification needs no directory lookup because
// Address is itself the compressed public key (spec.md #3).
type KeyRing interface {
	// NodeKey returns the private key and address this node signs with at
	// nodeIndex (spec.md #4.4: "signs under node_index mod peer_count").
	NodeKey(nodeIndex int) (*secp256k1.PrivateKey, Address, error)
}

// StaticKeyRing is an in-memory KeyRing loaded once at node startup from the
// key directory (out of core scope per spec.md #1; this is the simplest
// concrete implementation used by cmd/devvnode and by tests).
type StaticKeyRing struct {
	keys []*secp256k1.PrivateKey
}

// NewStaticKeyRing builds a KeyRing from an ordered list of private keys,
// one per node index in the shard.
func NewStaticKeyRing(keys []*secp256k1.PrivateKey) *StaticKeyRing {
	return &StaticKeyRing{keys: keys}
}

// NodeKey implements KeyRing.
func (r *StaticKeyRing) NodeKey(nodeIndex int) (*secp256k1.PrivateKey, Address, error) {
	if nodeIndex < 0 || nodeIndex >= len(r.keys) {
		return nil, Address{}, fmt.Errorf("cryptoprim: node index %d out of range (%d keys)", nodeIndex, len(r.keys))
	}
	key := r.keys[nodeIndex]
	return key, AddressFromPrivateKey(key), nil
}

// GenerateKeyRing creates n fresh keys, useful for tests and for
// `devvnode genkey`.
func GenerateKeyRing(n int) (*StaticKeyRing, error) {
	keys := make([]*secp256k1.PrivateKey, n)
	for i := 0; i < n; i++ {
		k, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return NewStaticKeyRing(keys), nil
}
