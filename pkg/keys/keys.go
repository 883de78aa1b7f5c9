// Package keys implements the three views of a key used across the read
// path: the raw user key, the logical key (its memcomparable encoding), and
// the physical key (keyspace prefix, logical bytes, optional 8-byte
// descending-timestamp suffix). Owned keys are append-friendly buffers;
// slice views borrow from the owning buffer and never copy.
package keys

import (
	"encoding/hex"
)

// tsLen is the length of the timestamp suffix of a versioned physical key.
const tsLen = 8

// defaultLogicalCapacity is a buffer size suitable for typical table-row
// payloads, so that appending the logical body and a timestamp does not
// reallocate.
const defaultLogicalCapacity = 40

// Keyspace fixes the physical prefix shared by every key it allocates. The
// zero value is the basic keyspace with an empty prefix, where physical and
// logical bytes coincide.
type Keyspace struct {
	prefix []byte
}

// Basic is the keyspace with no physical prefix.
var Basic = Keyspace{}

// NewKeyspace returns a keyspace whose physical keys all start with prefix.
func NewKeyspace(prefix []byte) Keyspace {
	return Keyspace{prefix: append([]byte(nil), prefix...)}
}

// Prefix returns the keyspace's physical prefix.
func (ks Keyspace) Prefix() []byte { return ks.prefix }

// PhysicalKey is an owned, mutable physical key. The buffer always starts
// with the keyspace prefix; the bytes after the prefix are the logical key,
// optionally followed by a descending-timestamp suffix.
type PhysicalKey struct {
	prefixLen int
	buf       []byte
}

// AllocWithLogicalCapacity allocates a key with room for a logical body of
// n bytes plus a timestamp suffix, and writes the keyspace prefix.
func (ks Keyspace) AllocWithLogicalCapacity(n int) *PhysicalKey {
	buf := make([]byte, 0, len(ks.prefix)+n+tsLen)
	buf = append(buf, ks.prefix...)
	return &PhysicalKey{prefixLen: len(ks.prefix), buf: buf}
}

// AllocNew allocates a key with the default logical capacity.
func (ks Keyspace) AllocNew() *PhysicalKey {
	return ks.AllocWithLogicalCapacity(defaultLogicalCapacity)
}

// AllocFromLogical allocates a key and appends lk verbatim as the logical
// body.
func (ks Keyspace) AllocFromLogical(lk []byte) *PhysicalKey {
	k := ks.AllocWithLogicalCapacity(len(lk))
	k.buf = append(k.buf, lk...)
	return k
}

// AllocFromUser allocates a key and appends the memcomparable encoding of
// the raw user key uk as the logical body.
func (ks Keyspace) AllocFromUser(uk []byte) *PhysicalKey {
	k := ks.AllocWithLogicalCapacity(EncodedBytesLen(len(uk)))
	k.buf = EncodeBytes(k.buf, uk)
	return k
}

// FromPhysicalBytes takes ownership of pk as a physical key. It panics when
// pk does not start with the keyspace prefix; a physical key that lost its
// prefix is a programmer error, not a runtime condition.
func (ks Keyspace) FromPhysicalBytes(pk []byte) *PhysicalKey {
	if len(pk) < len(ks.prefix) || string(pk[:len(ks.prefix)]) != string(ks.prefix) {
		panic("keys: physical bytes do not carry the keyspace prefix")
	}
	return &PhysicalKey{prefixLen: len(ks.prefix), buf: pk}
}

// AllocFromPhysicalSlice copies a borrowed physical slice into a new owned
// key, reserving room for a timestamp suffix.
func (ks Keyspace) AllocFromPhysicalSlice(pk PhysicalSlice) *PhysicalKey {
	buf := make([]byte, 0, len(pk)+tsLen)
	buf = append(buf, pk...)
	return ks.FromPhysicalBytes(buf)
}

// IntoPhysicalBytes releases the underlying buffer. The key must not be
// used afterwards.
func (k *PhysicalKey) IntoPhysicalBytes() []byte {
	b := k.buf
	k.buf = nil
	return b
}

// PhysicalLen returns the full physical length, prefix included.
func (k *PhysicalKey) PhysicalLen() int { return len(k.buf) }

// LogicalLen returns the length of the bytes after the prefix.
func (k *PhysicalKey) LogicalLen() int { return len(k.buf) - k.prefixLen }

// AsPhysicalSlice borrows the whole buffer. No bytes are copied.
func (k *PhysicalKey) AsPhysicalSlice() PhysicalSlice { return PhysicalSlice(k.buf) }

// AsLogicalSlice borrows the bytes after the prefix.
func (k *PhysicalKey) AsLogicalSlice() LogicalSlice { return LogicalSlice(k.buf[k.prefixLen:]) }

// AsLogicalSliceWithoutTs borrows the logical bytes with the timestamp
// suffix cut off. The key must currently carry a timestamp.
func (k *PhysicalKey) AsLogicalSliceWithoutTs() LogicalSlice {
	return k.AsLogicalSlice().WithoutTs()
}

// AppendTs pushes a descending-timestamp suffix.
func (k *PhysicalKey) AppendTs(ts uint64) {
	k.buf = EncodeU64Desc(k.buf, ts)
}

// ShrinkTs pops the timestamp suffix. Popping from a key whose logical body
// is shorter than the suffix is a programmer error and panics.
func (k *PhysicalKey) ShrinkTs() {
	if k.LogicalLen() < tsLen {
		panic("keys: shrinking timestamp from a key without one")
	}
	k.buf = k.buf[:len(k.buf)-tsLen]
}

// Ts reads the timestamp suffix without removing it.
func (k *PhysicalKey) Ts() uint64 {
	return k.AsLogicalSlice().Ts()
}

// WithTsTemporarily appends ts and returns a guard whose Release truncates
// it again. Release is idempotent, so it is safe to both defer it and call
// it early on a success path.
func (k *PhysicalKey) WithTsTemporarily(ts uint64) *TsGuard {
	k.AppendTs(ts)
	return &TsGuard{key: k}
}

// ResetFromLogical truncates the buffer back to the prefix and appends lk.
func (k *PhysicalKey) ResetFromLogical(lk []byte) {
	k.buf = append(k.buf[:k.prefixLen], lk...)
}

// ResetFromUser truncates back to the prefix and appends the memcomparable
// encoding of the raw user key.
func (k *PhysicalKey) ResetFromUser(uk []byte) {
	k.buf = EncodeBytes(k.buf[:k.prefixLen], uk)
}

// String renders the physical bytes in upper-case hex.
func (k *PhysicalKey) String() string {
	return hexUpper(k.buf)
}

// TsGuard reverts a temporarily appended timestamp suffix.
type TsGuard struct {
	key      *PhysicalKey
	released bool
}

// Key returns the guarded key, timestamp suffix attached.
func (g *TsGuard) Key() *PhysicalKey { return g.key }

// Release truncates the timestamp appended when the guard was created.
// Calling it more than once is a no-op.
func (g *TsGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.key.ShrinkTs()
}

// PhysicalSlice is a borrowed view over the full physical bytes of a key.
// It aliases the owning buffer and must not outlive it.
type PhysicalSlice []byte

// WithoutTs cuts the timestamp suffix off the view.
func (s PhysicalSlice) WithoutTs() PhysicalSlice { return s[:len(s)-tsLen] }

func (s PhysicalSlice) String() string { return hexUpper(s) }

// LogicalSlice is a borrowed view over the logical bytes of a key,
// timestamp suffix included when one is attached.
type LogicalSlice []byte

// WithoutTs cuts the timestamp suffix off the view.
func (s LogicalSlice) WithoutTs() LogicalSlice { return s[:len(s)-tsLen] }

// Ts reads the final eight bytes as a descending timestamp.
func (s LogicalSlice) Ts() uint64 {
	ts, err := DecodeU64Desc([]byte(s[len(s)-tsLen:]))
	if err != nil {
		panic("keys: logical slice shorter than a timestamp suffix")
	}
	return ts
}

// ToUser decodes the memcomparable logical bytes back into the raw user
// key. The slice must not carry a timestamp suffix.
func (s LogicalSlice) ToUser() ([]byte, error) {
	uk, rest, err := DecodeBytes(s)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrPaddingError
	}
	return uk, nil
}

func (s LogicalSlice) String() string { return hexUpper(s) }

func hexUpper(b []byte) string {
	dst := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(dst, b)
	for i, c := range dst {
		if c >= 'a' && c <= 'f' {
			dst[i] = c - 'a' + 'A'
		}
	}
	return string(dst)
}
