package keys

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Memcomparable byte encoding. Input bytes are emitted in fixed groups of
// eight payload bytes followed by a marker byte. A full group carries the
// marker 0xFF; the final group is zero-padded and its marker is 0xFF minus
// the number of padding bytes. The lexicographic order of encoded outputs
// equals the lexicographic order of the inputs, which is what allows raw
// user keys to be compared through their encoded form inside the engine.
const (
	encGroupSize = 8
	encMarker    = byte(0xFF)
	encPad       = byte(0x00)
)

var encPadGroup = [encGroupSize]byte{}

// Decode failures. ErrTruncated means the input ended before a complete
// group; ErrPaddingError means a padding byte was not zero or the marker
// was out of range.
var (
	ErrTruncated    = errors.New("keys: insufficient bytes to decode value")
	ErrPaddingError = errors.New("keys: invalid padding in encoded bytes")
)

// EncodedBytesLen returns the length of the memcomparable encoding of an
// input of length n. The result is always a multiple of nine: even an input
// that ends exactly on a group boundary is followed by one fully padded
// group, so that no encoding is a prefix of another.
func EncodedBytesLen(n int) int {
	return (n/encGroupSize + 1) * (encGroupSize + 1)
}

// EncodeBytes appends the memcomparable encoding of src to dst and returns
// the extended buffer.
func EncodeBytes(dst, src []byte) []byte {
	for idx := 0; idx <= len(src); idx += encGroupSize {
		remain := len(src) - idx
		if remain >= encGroupSize {
			dst = append(dst, src[idx:idx+encGroupSize]...)
			dst = append(dst, encMarker)
			continue
		}
		pad := encGroupSize - remain
		dst = append(dst, src[idx:]...)
		dst = append(dst, encPadGroup[:pad]...)
		dst = append(dst, encMarker-byte(pad))
	}
	return dst
}

// DecodeBytes decodes one memcomparable value from b, returning the decoded
// bytes and whatever follows the encoding.
func DecodeBytes(b []byte) (value []byte, rest []byte, err error) {
	value = make([]byte, 0, len(b)/(encGroupSize+1)*encGroupSize)
	for {
		if len(b) < encGroupSize+1 {
			return nil, nil, ErrTruncated
		}
		group := b[:encGroupSize]
		marker := b[encGroupSize]
		b = b[encGroupSize+1:]

		if marker == encMarker {
			value = append(value, group...)
			continue
		}
		if marker > encMarker || encMarker-marker > encGroupSize {
			return nil, nil, fmt.Errorf("%w: marker %#x", ErrPaddingError, marker)
		}
		pad := int(encMarker - marker)
		value = append(value, group[:encGroupSize-pad]...)
		for _, p := range group[encGroupSize-pad:] {
			if p != encPad {
				return nil, nil, fmt.Errorf("%w: non-zero pad byte %#x", ErrPaddingError, p)
			}
		}
		return value, b, nil
	}
}

// EncodeU64Desc appends ts in descending order: the big-endian bytes of the
// bitwise complement, so that larger timestamps sort first.
func EncodeU64Desc(dst []byte, ts uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ^ts)
	return append(dst, buf[:]...)
}

// DecodeU64Desc reads a descending u64 from the first eight bytes of b.
func DecodeU64Desc(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, ErrTruncated
	}
	return ^binary.BigEndian.Uint64(b), nil
}
