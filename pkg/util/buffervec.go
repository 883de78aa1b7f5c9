// Package util holds small shared helpers with no domain knowledge.
package util

// BufferVec is an append-only vector of byte strings backed by a single
// flat data buffer plus offsets, so that appending many short values does
// not allocate per element.
type BufferVec struct {
	data    []byte
	offsets []int
}

// Len returns the number of elements.
func (v *BufferVec) Len() int { return len(v.offsets) }

// Append copies b in as a new element.
func (v *BufferVec) Append(b []byte) {
	v.offsets = append(v.offsets, len(v.data))
	v.data = append(v.data, b...)
}

// Get returns the i-th element as a view into the shared buffer. The view
// is valid until the vector is cleared.
func (v *BufferVec) Get(i int) []byte {
	start := v.offsets[i]
	end := len(v.data)
	if i+1 < len(v.offsets) {
		end = v.offsets[i+1]
	}
	return v.data[start:end]
}

// Clear removes all elements but keeps capacity.
func (v *BufferVec) Clear() {
	v.data = v.data[:0]
	v.offsets = v.offsets[:0]
}
