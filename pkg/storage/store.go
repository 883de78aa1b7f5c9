package storage

import (
	"bytes"

	"github.com/breeswish/tikv/pkg/keys"
)

// IsolationLevel selects how a store treats uncommitted locks.
type IsolationLevel int

const (
	// SI surfaces conflicting locks as KeyIsLockedError.
	SI IsolationLevel = iota
	// RC ignores locks and reads the newest committed version.
	RC
)

// SnapshotStore reads through one snapshot pinned at a start timestamp.
// Every read resolves multi-version keys: for a user key it returns the
// newest version whose commit timestamp is not above startTS, after
// checking the lock family for a conflicting uncommitted write.
//
// A store is owned by a single task; its statistics are not thread-safe.
type SnapshotStore struct {
	snapshot  Snapshot
	startTS   uint64
	isolation IsolationLevel
	fillCache bool

	incrementalStats Statistics
}

// NewSnapshotStore pins snap at startTS.
func NewSnapshotStore(snap Snapshot, startTS uint64, isolation IsolationLevel, fillCache bool) *SnapshotStore {
	return &SnapshotStore{
		snapshot:  snap,
		startTS:   startTS,
		isolation: isolation,
		fillCache: fillCache,
	}
}

// StartTS returns the pinned read timestamp.
func (s *SnapshotStore) StartTS() uint64 { return s.startTS }

// Get reads the value visible at the store's timestamp for a raw user key.
func (s *SnapshotStore) Get(userKey []byte, stats *Statistics) ([]byte, bool, error) {
	if err := s.checkLock(userKey, stats); err != nil {
		return nil, false, err
	}
	return s.getValue(userKey, stats)
}

// IncrementalGet behaves like Get but accumulates statistics internally
// across calls; they are drained with IncrementalGetTakeStatistics.
func (s *SnapshotStore) IncrementalGet(userKey []byte) ([]byte, bool, error) {
	return s.Get(userKey, &s.incrementalStats)
}

// IncrementalGetTakeStatistics returns the counters accumulated by
// IncrementalGet since the previous call and resets them.
func (s *SnapshotStore) IncrementalGetTakeStatistics() Statistics {
	out := s.incrementalStats
	s.incrementalStats.Reset()
	return out
}

// Scanner builds a cursor over [lower, upper) of raw user keys. A nil
// bound leaves that side open.
func (s *SnapshotStore) Scanner(backward, keyOnly bool, lower, upper []byte) (*Scanner, error) {
	return newScanner(s, backward, keyOnly, lower, upper), nil
}

// RangeScannerForward builds a forward batched scanner over [lower, upper).
func (s *SnapshotStore) RangeScannerForward(keyOnly bool, lower, upper []byte) (*RangeScanner, error) {
	inner := newScanner(s, false, keyOnly, lower, upper)
	return &RangeScanner{scanner: inner, store: s}, nil
}

// checkLock surfaces an uncommitted lock on userKey that would conflict
// with a read at the store's timestamp.
func (s *SnapshotStore) checkLock(userKey []byte, stats *Statistics) error {
	if s.isolation == RC {
		return nil
	}
	lockKey := keys.EncodeBytes(nil, userKey)
	stats.Lock.Get++
	raw, found, err := s.snapshot.Get(CFLock, lockKey)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	lock, err := ParseLock(raw)
	if err != nil {
		return err
	}
	if lock.TS <= s.startTS {
		return &KeyIsLockedError{
			Key:     append([]byte(nil), userKey...),
			LockTS:  lock.TS,
			Primary: lock.Primary,
		}
	}
	return nil
}

// getValue seeks the newest version of userKey at or below startTS.
func (s *SnapshotStore) getValue(userKey []byte, stats *Statistics) ([]byte, bool, error) {
	encoded := keys.EncodeBytes(nil, userKey)
	seekKey := keys.EncodeU64Desc(append([]byte(nil), encoded...), s.startTS)

	stats.Data.Seek++
	iter := s.snapshot.Iter(CFDefault, seekKey, versionUpperBound(encoded))
	if !iter.Valid() {
		return nil, false, nil
	}
	if !bytes.HasPrefix(iter.Key(), encoded) {
		return nil, false, nil
	}
	stats.Data.ProcessedKeys++
	stats.Data.ReadKeys++
	stats.Data.ReadBytes += len(iter.Value())
	return append([]byte(nil), iter.Value()...), true, nil
}

// versionUpperBound is the exclusive physical bound just past every version
// entry of the encoded user key enc.
func versionUpperBound(enc []byte) []byte {
	bound := make([]byte, 0, len(enc)+9)
	bound = append(bound, enc...)
	bound = keys.EncodeU64Desc(bound, 0)
	return append(bound, 0x00)
}
