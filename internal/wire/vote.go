package wire

import (
	"devv.io/node/internal/cryptoprim"
	dvErrors "devv.io/node/pkg/errors"
)

// voteSize is the wire width of a VALID message payload: a signature
// followed by the signer's address (spec.md #4.5: "emit VALID(signature ||
// address)").
const voteSize = cryptoprim.SignatureSize + cryptoprim.AddressSize

// EncodeVote builds a VALID message payload endorsing a proposal.
func EncodeVote(sig cryptoprim.Signature, addr cryptoprim.Address) []byte {
	out := make([]byte, 0, voteSize)
	out = append(out, sig[:]...)
	out = append(out, addr[:]...)
	return out
}

// DecodeVote parses a VALID message payload.
func DecodeVote(b []byte) (cryptoprim.Signature, cryptoprim.Address, error) {
	var sig cryptoprim.Signature
	var addr cryptoprim.Address
	if len(b) != voteSize {
		return sig, addr, dvErrors.NewDeserializationError("malformed vote payload")
	}
	copy(sig[:], b[:cryptoprim.SignatureSize])
	copy(addr[:], b[cryptoprim.SignatureSize:])
	return sig, addr, nil
}
