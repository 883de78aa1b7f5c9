package storage

import (
	"bytes"

	"github.com/breeswish/tikv/pkg/keys"
	"github.com/breeswish/tikv/pkg/util"
)

// Scanner is a cursor over the user keys of [lower, upper) at the store's
// timestamp. Forward scanners yield keys ascending, backward scanners
// descending; either way each user key is yielded at most once, carrying
// the newest version visible at startTS.
type Scanner struct {
	store    *SnapshotStore
	backward bool
	keyOnly  bool

	iter     Iterator
	stats    Statistics
	encLower []byte
	encUpper []byte

	// noLockChecks suppresses per-key lock checks after an eager pre-scan
	// already covered the whole range.
	noLockChecks bool

	// curUser is the encoded user key of the version group the cursor is
	// inside; emitted records whether that group already produced a row.
	curUser    []byte
	curEmitted bool

	// pending buffers the best candidate of the current group during a
	// backward scan, where versions arrive oldest first.
	pending      []byte
	pendingKey   []byte
	pendingValid bool

	done bool
}

func newScanner(store *SnapshotStore, backward, keyOnly bool, lower, upper []byte) *Scanner {
	var encLower, encUpper []byte
	if lower != nil {
		encLower = keys.EncodeBytes(nil, lower)
	}
	if upper != nil {
		encUpper = keys.EncodeBytes(nil, upper)
	}
	s := &Scanner{
		store:    store,
		backward: backward,
		keyOnly:  keyOnly,
		encLower: encLower,
		encUpper: encUpper,
	}
	s.stats.Data.Seek++
	if backward {
		s.iter = store.snapshot.IterReverse(CFDefault, encLower, encUpper)
	} else {
		s.iter = store.snapshot.Iter(CFDefault, encLower, encUpper)
	}
	return s
}

// Next returns the next (raw user key, value) pair, or (nil, nil, nil) at
// the end of the range. In key-only mode the value is always nil.
func (s *Scanner) Next() ([]byte, []byte, error) {
	if s.done {
		return nil, nil, nil
	}
	if s.backward {
		return s.nextBackward()
	}
	return s.nextForward()
}

func (s *Scanner) nextForward() ([]byte, []byte, error) {
	for s.iter.Valid() {
		entryKey := s.iter.Key()
		if len(entryKey) <= 8 {
			return nil, nil, corruptedErr("versioned key shorter than its timestamp suffix", nil)
		}
		userEnc := entryKey[:len(entryKey)-8]
		ts := keys.LogicalSlice(entryKey).Ts()

		if !bytes.Equal(userEnc, s.curUser) {
			s.curUser = append(s.curUser[:0], userEnc...)
			s.curEmitted = false
			if err := s.checkScanLock(userEnc); err != nil {
				s.done = true
				return nil, nil, err
			}
		}

		if !s.curEmitted && ts <= s.store.startTS {
			s.curEmitted = true
			raw, value, err := s.emit(userEnc, s.iter.Value())
			if err != nil {
				return nil, nil, err
			}
			s.advance()
			return raw, value, nil
		}

		s.skipVersion()
		s.advance()
	}
	s.done = true
	return nil, nil, nil
}

func (s *Scanner) nextBackward() ([]byte, []byte, error) {
	for s.iter.Valid() {
		entryKey := s.iter.Key()
		if len(entryKey) <= 8 {
			return nil, nil, corruptedErr("versioned key shorter than its timestamp suffix", nil)
		}
		userEnc := entryKey[:len(entryKey)-8]
		ts := keys.LogicalSlice(entryKey).Ts()

		if !bytes.Equal(userEnc, s.curUser) {
			rawKey, value, flushed, err := s.flushPending()
			if err != nil {
				return nil, nil, err
			}
			s.curUser = append(s.curUser[:0], userEnc...)
			if lockErr := s.checkScanLock(userEnc); lockErr != nil {
				s.done = true
				return nil, nil, lockErr
			}
			if flushed {
				// Do not advance: the current entry starts the next group
				// and is revisited on the following call.
				return rawKey, value, nil
			}
		}

		if ts <= s.store.startTS {
			// Versions arrive oldest first when walking backwards, so each
			// visible version replaces the previous candidate.
			if s.pendingValid {
				s.skipVersion()
			}
			s.pendingKey = append(s.pendingKey[:0], userEnc...)
			s.pending = append(s.pending[:0], s.iter.Value()...)
			s.pendingValid = true
		} else {
			s.skipVersion()
		}
		s.advance()
	}

	rawKey, value, flushed, err := s.flushPending()
	if err != nil {
		return nil, nil, err
	}
	if flushed {
		return rawKey, value, nil
	}
	s.done = true
	return nil, nil, nil
}

func (s *Scanner) flushPending() ([]byte, []byte, bool, error) {
	if !s.pendingValid {
		return nil, nil, false, nil
	}
	s.pendingValid = false
	raw, value, err := s.emit(s.pendingKey, s.pending)
	if err != nil {
		return nil, nil, false, err
	}
	return raw, value, true, nil
}

func (s *Scanner) emit(userEnc, value []byte) ([]byte, []byte, error) {
	raw, err := keys.LogicalSlice(userEnc).ToUser()
	if err != nil {
		return nil, nil, corruptedErr("undecodable user key in default column family", err)
	}
	s.stats.Data.ProcessedKeys++
	s.stats.Data.ReadKeys++
	if s.keyOnly {
		return raw, nil, nil
	}
	out := append([]byte(nil), value...)
	s.stats.Data.ReadBytes += len(out)
	return raw, out, nil
}

func (s *Scanner) advance() {
	if s.backward {
		s.stats.Data.Prev++
	} else {
		s.stats.Data.Next++
	}
	s.iter.Next()
}

func (s *Scanner) skipVersion() {
	if rec, ok := s.store.snapshot.(internalSkipRecorder); ok {
		rec.recordInternalSkipped(1)
	}
}

func (s *Scanner) checkScanLock(userEnc []byte) error {
	if s.store.isolation == RC || s.noLockChecks {
		return nil
	}
	s.stats.Lock.Get++
	raw, found, err := s.store.snapshot.Get(CFLock, userEnc)
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
	if lock.TS <= s.store.startTS {
		userKey, decErr := keys.LogicalSlice(userEnc).ToUser()
		if decErr != nil {
			userKey = append([]byte(nil), userEnc...)
		}
		return &KeyIsLockedError{Key: userKey, LockTS: lock.TS, Primary: lock.Primary}
	}
	return nil
}

// TakeStatistics returns the counters accumulated since the previous call
// and resets them.
func (s *Scanner) TakeStatistics() Statistics {
	out := s.stats
	s.stats.Reset()
	return out
}

// RangeScanner is a forward batched scanner. Before the first batch the
// caller runs ScanFirstLock so that a conflicting uncommitted write in the
// range surfaces eagerly instead of in the middle of a batch.
type RangeScanner struct {
	scanner *Scanner
	store   *SnapshotStore

	lockChecked bool
}

// ScanFirstLock walks the lock column family across the scanned range once
// and fails with the first lock conflicting at the store's timestamp.
// Later locks inside the range do not re-trigger during batching.
func (r *RangeScanner) ScanFirstLock() error {
	if r.store.isolation == RC {
		r.lockChecked = true
		return nil
	}
	r.scanner.stats.Lock.Seek++
	iter := r.store.snapshot.Iter(CFLock, r.scanner.encLower, r.scanner.encUpper)
	for ; iter.Valid(); iter.Next() {
		r.scanner.stats.Lock.Next++
		lock, err := ParseLock(iter.Value())
		if err != nil {
			return err
		}
		if lock.TS <= r.store.startTS {
			userKey, decErr := keys.LogicalSlice(iter.Key()).ToUser()
			if decErr != nil {
				userKey = append([]byte(nil), iter.Key()...)
			}
			return &KeyIsLockedError{Key: userKey, LockTS: lock.TS, Primary: lock.Primary}
		}
	}
	r.lockChecked = true
	if r.scanner.keyOnly {
		// The pre-scan covered the range; a key-only batch walk does not
		// re-check locks per key.
		r.scanner.noLockChecks = true
	}
	return nil
}

// Next produces up to n entries, appending raw keys and values to the
// output vectors, and returns the number produced. A return below n means
// the range is exhausted.
func (r *RangeScanner) Next(n int, outKeys, outValues *util.BufferVec) (int, error) {
	if !r.lockChecked {
		if err := r.ScanFirstLock(); err != nil {
			return 0, err
		}
	}
	produced := 0
	for produced < n {
		key, value, err := r.scanner.Next()
		if err != nil {
			return produced, err
		}
		if key == nil {
			break
		}
		outKeys.Append(key)
		if !r.scanner.keyOnly {
			outValues.Append(value)
		}
		produced++
	}
	return produced, nil
}

// TakeStatistics drains the underlying scanner's counters.
func (r *RangeScanner) TakeStatistics() Statistics {
	return r.scanner.TakeStatistics()
}
