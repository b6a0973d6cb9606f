package cryptoprim

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/sha256-simd"
)

// HashBytes computes the SHA-256 digest of b (spec.md #3's hash(bytes)).
func HashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// AddressFromPrivateKey derives the compressed-public-key Address that
// corresponds to priv.
func AddressFromPrivateKey(priv *secp256k1.PrivateKey) Address {
	var a Address
	copy(a[:], priv.PubKey().SerializeCompressed())
	return a
}

// Sign produces a fixed-width, recoverable signature over msg under priv
// (spec.md #1's sign(key, bytes)). The signature is the compact form: 1
// recovery byte + 32-byte R + 32-byte S.
func Sign(priv *secp256k1.PrivateKey, msg []byte) Signature {
	h := HashBytes(msg)
	compact := ecdsa.SignCompact(priv, h[:], true)
	var sig Signature
	copy(sig[:], compact)
	return sig
}

// verifyCache memoizes Verify results: the same endorsement is verified
// when it first arrives (a PROPOSAL_BLOCK or VALID message) and again when
// the FINAL_BLOCK carrying it is checked against threshold, so caching
// avoids redundant EC point recovery. Purely an
// optimization; it never changes Verify's observable result (see
// SPEC_FULL.md #11).
var verifyCache *lru.Cache[verifyCacheKey, bool]

type verifyCacheKey struct {
	addr Address
	msg  Hash
	sig  Signature
}

func init() {
	c, err := lru.New[verifyCacheKey, bool](4096)
	if err != nil {
		panic(err)
	}
	verifyCache = c
}

// Verify reports whether sig is a valid signature over msg recoverable to
// the public key identified by addr (spec.md #1's verify(pub, bytes, sig)).
// Because Address *is* the compressed public key (spec.md #3), verification
// needs no external key directory lookup.
func Verify(addr Address, msg []byte, sig Signature) bool {
	h := HashBytes(msg)
	key := verifyCacheKey{addr: addr, msg: h, sig: sig}
	if v, ok := verifyCache.Get(key); ok {
		return v
	}
	recovered, ok := recoverFromHash(h, sig)
	valid := ok && recovered == addr
	verifyCache.Add(key, valid)
	return valid
}

func recoverFromHash(h Hash, sig Signature) (Address, bool) {
	recovered, _, err := ecdsa.RecoverCompact(sig[:], h[:])
	if err != nil {
		return Address{}, false
	}
	var addr Address
	copy(addr[:], recovered.SerializeCompressed())
	return addr, true
}

// Recover recovers the signer Address from a signature over msg, without
// requiring the verifier to already know which address to check against
// (spec.md #3: Address is the compressed public key, and the signature
// scheme is recoverable).
func Recover(msg []byte, sig Signature) (Address, bool) {
	return recoverFromHash(HashBytes(msg), sig)
}

// ParseAddress validates and wraps a 33-byte compressed public key as an
// Address, rejecting malformed input (spec.md #3: fixed-width, equality
// byte-wise).
func ParseAddress(b []byte) (Address, bool) {
	var a Address
	if len(b) != AddressSize {
		return a, false
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return a, false
	}
	copy(a[:], b)
	return a, true
}
