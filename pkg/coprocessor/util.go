package coprocessor

import (
	"bytes"
	"time"
)

// PrefixNext returns the least byte string strictly greater than key:
// increment the last byte, carrying over 0xFF bytes; when the whole key is
// 0xFF bytes (or empty) a zero byte is appended instead.
func PrefixNext(key []byte) []byte {
	next := append([]byte(nil), key...)
	for i := len(next) - 1; i >= 0; i-- {
		if next[i] != 0xFF {
			next[i]++
			return next
		}
		next[i] = 0x00
	}
	next = append(next[:0], key...)
	return append(next, 0x00)
}

// IsPoint reports whether the range covers exactly one key.
func IsPoint(r *KeyRange) bool {
	return bytes.Equal(r.End, PrefixNext(r.Start))
}

// ReqContext carries per-request control state consulted between chunks.
type ReqContext struct {
	Deadline       time.Time
	IsolationRC    bool
	FillCache      bool
	StreamingReply bool
}

// CheckIfOutdated fails with ErrOutdated once the deadline has passed. A
// zero deadline never expires.
func (c *ReqContext) CheckIfOutdated() error {
	if !c.Deadline.IsZero() && time.Now().After(c.Deadline) {
		return ErrOutdated
	}
	return nil
}
