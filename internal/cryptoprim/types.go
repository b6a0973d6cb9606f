// Package cryptoprim implements the cryptographic primitives spec.md #1
// treats as an external collaborator, specified only by the interfaces the
// core uses: sign(key, bytes), verify(pub, bytes, sig), hash(bytes).
//
// Grounded on _examples/original_source/src/ossladapter.h (sign/verifySig/
// dcHash), reimplemented over github.com/decred/dcrd/dcrec/secp256k1/v4
// instead of hand-rolled OpenSSL C calls.
package cryptoprim

import "encoding/hex"

// AddressSize is the width of a compressed secp256k1 public key.
const AddressSize = 33

// SignatureSize is the width of a compact, recoverable secp256k1 ECDSA
// signature: 1 recovery byte + 32-byte R + 32-byte S. Using the compact form
// (rather than DER) is what lets Signature be fixed-width, satisfying
// spec.md #3's requirement that a Signature be hashable and usable as a map
// key.
const SignatureSize = 65

// HashSize is the width of a SHA-256 digest.
const HashSize = 32

// Address is a fixed-width compressed EC public key (spec.md #3).
type Address [AddressSize]byte

// String renders the address as hex for logging.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the all-zero address (used for genesis
// previous-hash-style sentinels and as the zero value of an unset field).
func (a Address) IsZero() bool { return a == Address{} }

// Signature is a fixed-width ECDSA signature (spec.md #3). It is comparable
// and hashable so it can be used directly as a map key (the UTX pool's
// TxMap is keyed by Signature).
type Signature [SignatureSize]byte

// String renders the signature as hex for logging.
func (s Signature) String() string { return hex.EncodeToString(s[:]) }

// IsZero reports whether s is the unset signature.
func (s Signature) IsZero() bool { return s == Signature{} }

// Hash is a 32-byte SHA-256 digest (spec.md #3).
type Hash [HashSize]byte

// String renders the hash as hex for logging.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the genesis previous-hash sentinel.
func (h Hash) IsZero() bool { return h == Hash{} }
