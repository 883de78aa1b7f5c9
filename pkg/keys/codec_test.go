package keys

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytesRoundtrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("a"),
		[]byte("12345678"),
		[]byte("123456789"),
		[]byte("1234567890123456"),
		bytes.Repeat([]byte{0x00}, 20),
		bytes.Repeat([]byte{0xFF}, 20),
	}
	for _, in := range inputs {
		enc := EncodeBytes(nil, in)
		require.Equal(t, EncodedBytesLen(len(in)), len(enc))

		dec, rest, err := DecodeBytes(enc)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, in, dec)
	}
}

func TestEncodeBytesOrderPreserving(t *testing.T) {
	rng := rand.New(rand.NewSource(0x5EED))
	raw := make([][]byte, 200)
	for i := range raw {
		b := make([]byte, rng.Intn(24))
		rng.Read(b)
		raw[i] = b
	}
	encoded := make([][]byte, len(raw))
	for i, b := range raw {
		encoded[i] = EncodeBytes(nil, b)
	}

	rawOrder := make([]int, len(raw))
	encOrder := make([]int, len(raw))
	for i := range rawOrder {
		rawOrder[i], encOrder[i] = i, i
	}
	sort.Slice(rawOrder, func(i, j int) bool {
		return bytes.Compare(raw[rawOrder[i]], raw[rawOrder[j]]) < 0
	})
	sort.Slice(encOrder, func(i, j int) bool {
		return bytes.Compare(encoded[encOrder[i]], encoded[encOrder[j]]) < 0
	})

	for i := range rawOrder {
		assert.Equal(t, raw[rawOrder[i]], raw[encOrder[i]],
			"encoded order diverges from raw order at position %d", i)
	}
}

func TestDecodeBytesTruncated(t *testing.T) {
	enc := EncodeBytes(nil, []byte("hello world"))
	for cut := 1; cut < 9; cut++ {
		_, _, err := DecodeBytes(enc[:len(enc)-cut])
		assert.ErrorIs(t, err, ErrTruncated)
	}
	_, _, err := DecodeBytes(nil)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeBytesBadPadding(t *testing.T) {
	enc := EncodeBytes(nil, []byte("abc"))
	// Corrupt one of the zero pad bytes in the final group.
	enc[len(enc)-2] = 0x01
	_, _, err := DecodeBytes(enc)
	assert.ErrorIs(t, err, ErrPaddingError)

	// A marker claiming more padding bytes than a group holds.
	enc2 := EncodeBytes(nil, []byte("abc"))
	enc2[len(enc2)-1] = 0xF0
	_, _, err = DecodeBytes(enc2)
	assert.ErrorIs(t, err, ErrPaddingError)
}

func TestU64Desc(t *testing.T) {
	cases := []uint64{0, 1, 42, 1 << 32, ^uint64(0)}
	for _, ts := range cases {
		enc := EncodeU64Desc(nil, ts)
		require.Len(t, enc, 8)
		got, err := DecodeU64Desc(enc)
		require.NoError(t, err)
		assert.Equal(t, ts, got)
	}

	// Lexicographic order of encodings must be descending in time.
	older := EncodeU64Desc(nil, 10)
	newer := EncodeU64Desc(nil, 20)
	assert.Negative(t, bytes.Compare(newer, older))

	_, err := DecodeU64Desc([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}
