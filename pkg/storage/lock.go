package storage

import (
	"encoding/binary"
)

// Lock is an uncommitted-write record in the lock column family, keyed by
// the logical (unversioned) key of the locked row.
type Lock struct {
	TS      uint64
	Primary []byte
}

// EncodeLock serializes a lock record.
func EncodeLock(l Lock) []byte {
	buf := make([]byte, 8, 8+len(l.Primary))
	binary.BigEndian.PutUint64(buf, l.TS)
	return append(buf, l.Primary...)
}

// ParseLock deserializes a lock record.
func ParseLock(b []byte) (Lock, error) {
	if len(b) < 8 {
		return Lock{}, corruptedErr("lock record shorter than its timestamp", nil)
	}
	return Lock{
		TS:      binary.BigEndian.Uint64(b[:8]),
		Primary: append([]byte(nil), b[8:]...),
	}, nil
}
