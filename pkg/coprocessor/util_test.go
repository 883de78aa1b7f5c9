package coprocessor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrefixNext(t *testing.T) {
	assert.Equal(t, []byte{0x00}, PrefixNext(nil))
	assert.Equal(t, []byte{0x00}, PrefixNext([]byte{}))
	assert.Equal(t, []byte("b"), PrefixNext([]byte("a")))
	assert.Equal(t, []byte{0xFF, 0xFF, 0x00}, PrefixNext([]byte{0xFF, 0xFF}))
	assert.Equal(t, []byte{'b', 0x00}, PrefixNext([]byte{'a', 0xFF}))
	// The input is never mutated.
	in := []byte{0x01, 0xFF}
	_ = PrefixNext(in)
	assert.Equal(t, []byte{0x01, 0xFF}, in)
}

func TestIsPoint(t *testing.T) {
	assert.True(t, IsPoint(&KeyRange{Start: []byte("a"), End: []byte("b")}))
	assert.False(t, IsPoint(&KeyRange{Start: []byte("a"), End: []byte("c")}))
	assert.True(t, IsPoint(&KeyRange{Start: []byte{0xFF}, End: []byte{0xFF, 0x00}}))
}

func TestReqContextOutdated(t *testing.T) {
	ctx := &ReqContext{}
	assert.NoError(t, ctx.CheckIfOutdated(), "zero deadline never expires")

	ctx.Deadline = time.Now().Add(-time.Millisecond)
	assert.ErrorIs(t, ctx.CheckIfOutdated(), ErrOutdated)

	ctx.Deadline = time.Now().Add(time.Hour)
	assert.NoError(t, ctx.CheckIfOutdated())
}
