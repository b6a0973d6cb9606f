// Package wire implements the binary codec of spec.md #4.1 and #6: a
// cursor-based InputBuffer with bounds-checked primitive readers, and
// Create-style constructors for Transaction, Summary, Validation,
// ProposedBlock and FinalBlock that never allocate from an untrusted length
// without first checking it against the remaining buffer.
//
// The cursor shape (readByte/readU32LE/readU64LE/readExact over a position
// counter) is grounded on
// _examples/2tbmz9y2xt-lang-rubin-protocol/clients/go/consensus/wire.go;
// the exact field layout is spec.md #6, which is itself authoritative over
// the flatbuffers sketch in original_source (spec.md #9).
package wire

import (
	"encoding/binary"

	dvErrors "devv.io/node/pkg/errors"
)

// InputBuffer is a read cursor over an untrusted byte slice.
type InputBuffer struct {
	b   []byte
	pos int
}

// NewInputBuffer wraps b for bounds-checked sequential reads.
func NewInputBuffer(b []byte) *InputBuffer {
	return &InputBuffer{b: b}
}

// Size returns the total length of the underlying buffer.
func (ib *InputBuffer) Size() int { return len(ib.b) }

// Offset returns the current read position.
func (ib *InputBuffer) Offset() int { return ib.pos }

// Remaining returns the number of unread bytes.
func (ib *InputBuffer) Remaining() int {
	if ib.pos >= len(ib.b) {
		return 0
	}
	return len(ib.b) - ib.pos
}

// AtEnd reports whether the cursor has consumed the whole buffer.
func (ib *InputBuffer) AtEnd() bool { return ib.pos >= len(ib.b) }

// PeekByteAt returns the byte at an absolute offset without advancing the
// cursor, bounds-checked against the buffer length.
func (ib *InputBuffer) PeekByteAt(offset int) (byte, error) {
	if offset < 0 || offset >= len(ib.b) {
		return 0, dvErrors.NewDeserializationError("offset out of range")
	}
	return ib.b[offset], nil
}

// readExact returns the next n bytes and advances the cursor, failing if
// fewer than n bytes remain.
func (ib *InputBuffer) readExact(n int) ([]byte, error) {
	if n < 0 || ib.Remaining() < n {
		return nil, dvErrors.NewDeserializationError("truncated buffer")
	}
	start := ib.pos
	ib.pos += n
	return ib.b[start:ib.pos], nil
}

// GetByte reads a single byte.
func (ib *InputBuffer) GetByte() (byte, error) {
	b, err := ib.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetUint32LE reads a little-endian uint32.
func (ib *InputBuffer) GetUint32LE() (uint32, error) {
	b, err := ib.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// GetUint64LE reads a little-endian uint64.
func (ib *InputBuffer) GetUint64LE() (uint64, error) {
	b, err := ib.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// GetInt64LE reads a little-endian int64 (for signed Transfer deltas and
// Summary chain_item/delta fields).
func (ib *InputBuffer) GetInt64LE() (int64, error) {
	u, err := ib.GetUint64LE()
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}

// Copy reads exactly n bytes into a freshly allocated slice.
func (ib *InputBuffer) Copy(n int) ([]byte, error) {
	src, err := ib.readExact(n)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, n)
	copy(dst, src)
	return dst, nil
}

// CopyFixed reads exactly len(dst) bytes into dst, bounds-checked.
func (ib *InputBuffer) CopyFixed(dst []byte) error {
	src, err := ib.readExact(len(dst))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// LazyTransactionSlice bounds-checks and returns the raw canonical bytes of
// the next Transaction in the buffer without parsing its fields, per
// spec.md #4.1's "lazy-bounded transaction slice" primitive. size must
// already have been computed (and validated not to exceed the remaining
// buffer) by the caller from the transaction's own self-declared header.
func (ib *InputBuffer) LazyTransactionSlice(size int) ([]byte, error) {
	return ib.Copy(size)
}

// PutUint32LE appends v in little-endian form to dst.
func PutUint32LE(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// PutUint64LE appends v in little-endian form to dst.
func PutUint64LE(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// PutInt64LE appends v in little-endian form to dst.
func PutInt64LE(dst []byte, v int64) []byte {
	return PutUint64LE(dst, uint64(v))
}
