package wire

import (
	"sort"

	"devv.io/node/internal/cryptoprim"
	dvErrors "devv.io/node/pkg/errors"
)

// validationEntrySize is the fixed wire width of one Validation entry:
// a 33-byte Address and a 65-byte Signature.
const validationEntrySize = cryptoprim.AddressSize + cryptoprim.SignatureSize

// Validation is the set of per-node signatures over a proposed block's
// SigningBytes, gathered during consensus collection (spec.md #7). Keyed by
// signer address; at most one signature per address.
type Validation struct {
	entries map[cryptoprim.Address]cryptoprim.Signature
	order   []cryptoprim.Address
}

// NewValidation constructs an empty Validation set.
func NewValidation() *Validation {
	return &Validation{entries: make(map[cryptoprim.Address]cryptoprim.Signature)}
}

// AddSignature records addr's signature, ignoring a duplicate resubmission
// for an address already recorded (spec.md #7: "a second VALIDATION from an
// already-recorded signer is ignored, not an error").
func (v *Validation) AddSignature(addr cryptoprim.Address, sig cryptoprim.Signature) {
	if _, ok := v.entries[addr]; ok {
		return
	}
	v.entries[addr] = sig
	v.order = append(v.order, addr)
}

// Count returns the number of distinct signers collected.
func (v *Validation) Count() int { return len(v.order) }

// Has reports whether addr has already signed.
func (v *Validation) Has(addr cryptoprim.Address) bool {
	_, ok := v.entries[addr]
	return ok
}

// SignatureOf returns addr's recorded signature, if any.
func (v *Validation) SignatureOf(addr cryptoprim.Address) (cryptoprim.Signature, bool) {
	sig, ok := v.entries[addr]
	return sig, ok
}

// Signers returns the recorded signer addresses in insertion order.
func (v *Validation) Signers() []cryptoprim.Address {
	out := make([]cryptoprim.Address, len(v.order))
	copy(out, v.order)
	return out
}

// Encode appends the canonical wire form of v to dst, addresses sorted
// ascending for determinism: (33B address | 65B signature){val_count}.
func (v *Validation) Encode(dst []byte) []byte {
	addrs := make([]cryptoprim.Address, len(v.order))
	copy(addrs, v.order)
	sort.Slice(addrs, func(i, j int) bool { return string(addrs[i][:]) < string(addrs[j][:]) })
	for _, addr := range addrs {
		sig := v.entries[addr]
		dst = append(dst, addr[:]...)
		dst = append(dst, sig[:]...)
	}
	return dst
}

// DecodeValidation reads valCount (address, signature) entries from buf.
func DecodeValidation(buf *InputBuffer, valCount uint32) (*Validation, error) {
	need := uint64(valCount) * uint64(validationEntrySize)
	if need > uint64(buf.Remaining()) {
		return nil, dvErrors.NewDeserializationError("validation section exceeds remaining buffer")
	}
	v := NewValidation()
	for i := uint32(0); i < valCount; i++ {
		var addr cryptoprim.Address
		if err := buf.CopyFixed(addr[:]); err != nil {
			return nil, err
		}
		var sig cryptoprim.Signature
		if err := buf.CopyFixed(sig[:]); err != nil {
			return nil, err
		}
		v.AddSignature(addr, sig)
	}
	return v, nil
}
