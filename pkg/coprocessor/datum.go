package coprocessor

import (
	"encoding/binary"
	"math"
)

// Datum flags in encoded row values.
const (
	nilFlag     byte = 0x00
	bytesFlag   byte = 0x01
	intFlag     byte = 0x03
	uintFlag    byte = 0x04
	float64Flag byte = 0x05
)

// DatumKind tags a decoded datum.
type DatumKind int

const (
	KindNull DatumKind = iota
	KindInt64
	KindUint64
	KindFloat64
	KindBytes
)

// Datum is one decoded column value.
type Datum struct {
	Kind DatumKind
	I    int64
	U    uint64
	F    float64
	B    []byte
}

// NullDatum is the null sentinel.
func NullDatum() Datum { return Datum{Kind: KindNull} }

// IntDatum builds a signed integer datum.
func IntDatum(v int64) Datum { return Datum{Kind: KindInt64, I: v} }

// UintDatum builds an unsigned integer datum.
func UintDatum(v uint64) Datum { return Datum{Kind: KindUint64, U: v} }

// FloatDatum builds a float datum.
func FloatDatum(v float64) Datum { return Datum{Kind: KindFloat64, F: v} }

// BytesDatum builds a byte-string datum.
func BytesDatum(v []byte) Datum { return Datum{Kind: KindBytes, B: v} }

// IsNull reports whether the datum is the null sentinel.
func (d Datum) IsNull() bool { return d.Kind == KindNull }

// EncodeDatum appends the encoding of d to dst.
func EncodeDatum(dst []byte, d Datum) []byte {
	switch d.Kind {
	case KindNull:
		return append(dst, nilFlag)
	case KindInt64:
		dst = append(dst, intFlag)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(d.I))
		return append(dst, b[:]...)
	case KindUint64:
		dst = append(dst, uintFlag)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], d.U)
		return append(dst, b[:]...)
	case KindFloat64:
		dst = append(dst, float64Flag)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(d.F))
		return append(dst, b[:]...)
	case KindBytes:
		dst = append(dst, bytesFlag)
		dst = binary.AppendUvarint(dst, uint64(len(d.B)))
		return append(dst, d.B...)
	default:
		panic("coprocessor: encoding datum of unknown kind")
	}
}

// DecodeDatum decodes one datum from b, returning it and the remainder.
func DecodeDatum(b []byte) (Datum, []byte, error) {
	if len(b) == 0 {
		return Datum{}, nil, evalErrf("decoding datum from empty input")
	}
	flag := b[0]
	b = b[1:]
	switch flag {
	case nilFlag:
		return NullDatum(), b, nil
	case intFlag:
		if len(b) < 8 {
			return Datum{}, nil, evalErrf("truncated int datum")
		}
		return IntDatum(int64(binary.BigEndian.Uint64(b[:8]))), b[8:], nil
	case uintFlag:
		if len(b) < 8 {
			return Datum{}, nil, evalErrf("truncated uint datum")
		}
		return UintDatum(binary.BigEndian.Uint64(b[:8])), b[8:], nil
	case float64Flag:
		if len(b) < 8 {
			return Datum{}, nil, evalErrf("truncated float datum")
		}
		return FloatDatum(math.Float64frombits(binary.BigEndian.Uint64(b[:8]))), b[8:], nil
	case bytesFlag:
		n, used := binary.Uvarint(b)
		if used <= 0 || uint64(len(b)-used) < n {
			return Datum{}, nil, evalErrf("truncated bytes datum")
		}
		b = b[used:]
		return BytesDatum(append([]byte(nil), b[:n]...)), b[n:], nil
	default:
		return Datum{}, nil, evalErrf("unknown datum flag %#x", flag)
	}
}

// EncodedDatumLen returns the length of the first encoded datum in b, so
// that callers can slice stored column bytes without decoding them.
func EncodedDatumLen(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, evalErrf("measuring datum in empty input")
	}
	switch b[0] {
	case nilFlag:
		return 1, nil
	case intFlag, uintFlag, float64Flag:
		if len(b) < 9 {
			return 0, evalErrf("truncated fixed-size datum")
		}
		return 9, nil
	case bytesFlag:
		n, used := binary.Uvarint(b[1:])
		if used <= 0 || uint64(len(b)-1-used) < n {
			return 0, evalErrf("truncated bytes datum")
		}
		return 1 + used + int(n), nil
	default:
		return 0, evalErrf("unknown datum flag %#x", b[0])
	}
}
