package coprocessor

import (
	"github.com/breeswish/tikv/pkg/storage"
	"github.com/breeswish/tikv/pkg/util"
)

// IntervalRange is [LowerInclusive, UpperExclusive) over raw user keys.
type IntervalRange struct {
	LowerInclusive []byte
	UpperExclusive []byte
}

// PointRange is a single raw user key.
type PointRange []byte

// ExecStorage is the storage surface executors pull from.
type ExecStorage interface {
	BeginScan(backward, keyOnly bool, r IntervalRange) error
	ScanNext() (key, value []byte, err error)
	BeginRangeScan(keyOnly bool, r IntervalRange) error
	RangeScanNextBatch(n int, outKeys, outValues *util.BufferVec) (int, error)
	Get(keyOnly bool, p PointRange) (value []byte, found bool, err error)
	CollectStatistics(dest *storage.Statistics)
}

// StoreAdapter adapts a SnapshotStore to ExecStorage. Statistics are
// counted exactly once: replacing a scanner folds its delta into a
// backlog, and draining folds the live scanner's delta without destroying
// the scanner.
type StoreAdapter struct {
	store        *storage.SnapshotStore
	scanner      *storage.Scanner
	rangeScanner *storage.RangeScanner
	statsBacklog storage.Statistics
}

// NewStoreAdapter wraps store.
func NewStoreAdapter(store *storage.SnapshotStore) *StoreAdapter {
	return &StoreAdapter{store: store}
}

// BeginScan establishes a cursor over the range on the current snapshot.
func (a *StoreAdapter) BeginScan(backward, keyOnly bool, r IntervalRange) error {
	if a.scanner != nil {
		stats := a.scanner.TakeStatistics()
		a.statsBacklog.Add(&stats)
	}
	scanner, err := a.store.Scanner(backward, keyOnly, r.LowerInclusive, r.UpperExclusive)
	if err != nil {
		return err
	}
	a.scanner = scanner
	return nil
}

// ScanNext pulls the next pair from the current cursor. The key comes back
// in raw user form; a nil key means the range is exhausted.
func (a *StoreAdapter) ScanNext() ([]byte, []byte, error) {
	return a.scanner.Next()
}

// BeginRangeScan establishes a forward batched cursor, eagerly surfacing a
// conflicting lock in the range before the first batch.
func (a *StoreAdapter) BeginRangeScan(keyOnly bool, r IntervalRange) error {
	if a.rangeScanner != nil {
		stats := a.rangeScanner.TakeStatistics()
		a.statsBacklog.Add(&stats)
	}
	rangeScanner, err := a.store.RangeScannerForward(keyOnly, r.LowerInclusive, r.UpperExclusive)
	if err != nil {
		return err
	}
	if err := rangeScanner.ScanFirstLock(); err != nil {
		return err
	}
	a.rangeScanner = rangeScanner
	return nil
}

// RangeScanNextBatch produces up to n entries into the output vectors and
// returns the number produced; fewer than n means end of range.
func (a *StoreAdapter) RangeScanNextBatch(n int, outKeys, outValues *util.BufferVec) (int, error) {
	return a.rangeScanner.Next(n, outKeys, outValues)
}

// Get looks a single key up through the store's incremental path, whose
// statistics accumulate across calls.
func (a *StoreAdapter) Get(keyOnly bool, p PointRange) ([]byte, bool, error) {
	value, found, err := a.store.IncrementalGet(p)
	if err != nil {
		return nil, false, err
	}
	if keyOnly {
		return nil, found, nil
	}
	return value, found, nil
}

// CollectStatistics drains the backlog and every live source into dest and
// resets the adapter's counters.
func (a *StoreAdapter) CollectStatistics(dest *storage.Statistics) {
	inc := a.store.IncrementalGetTakeStatistics()
	a.statsBacklog.Add(&inc)
	if a.scanner != nil {
		stats := a.scanner.TakeStatistics()
		a.statsBacklog.Add(&stats)
	}
	if a.rangeScanner != nil {
		stats := a.rangeScanner.TakeStatistics()
		a.statsBacklog.Add(&stats)
	}
	dest.Add(&a.statsBacklog)
	a.statsBacklog.Reset()
}
