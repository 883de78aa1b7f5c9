package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferVec(t *testing.T) {
	var v BufferVec
	assert.Equal(t, 0, v.Len())

	v.Append([]byte("one"))
	v.Append(nil)
	v.Append([]byte("three"))

	assert.Equal(t, 3, v.Len())
	assert.Equal(t, []byte("one"), v.Get(0))
	assert.Empty(t, v.Get(1))
	assert.Equal(t, []byte("three"), v.Get(2))

	v.Clear()
	assert.Equal(t, 0, v.Len())
	v.Append([]byte("again"))
	assert.Equal(t, []byte("again"), v.Get(0))
}
