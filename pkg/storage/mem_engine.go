package storage

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/btree"
)

const (
	btreeDegree = 32

	// Sizing for the per-family membership filter. The filter only grows,
	// so a stale snapshot may see false positives for keys written later;
	// the ordered store resolves those to a miss.
	bloomExpectedKeys  = 1 << 20
	bloomFalsePositive = 0.01
)

type kvEntry struct {
	key   []byte
	value []byte
}

// perfCounters are engine-global monotonic counters backing PerfSnapshot.
type perfCounters struct {
	keyComparison      atomic.Uint64
	bloomMemtableHit   atomic.Uint64
	bloomMemtableMiss  atomic.Uint64
	internalKeySkipped atomic.Uint64
	seek               atomic.Uint64
	next               atomic.Uint64
}

// MemEngine is an in-memory engine: one ordered store per column family
// plus a membership filter consulted on exact point lookups. Snapshots are
// copy-on-write clones of the ordered stores, so taking one is cheap and
// writes after the clone are invisible to it.
type MemEngine struct {
	mu     sync.RWMutex
	cfs    map[CF]*btree.BTreeG[kvEntry]
	blooms map[CF]*bloom.BloomFilter
	perf   *perfCounters
}

// NewMemEngine creates an empty engine with the default, lock and write
// column families.
func NewMemEngine() *MemEngine {
	perf := &perfCounters{}
	less := func(a, b kvEntry) bool {
		perf.keyComparison.Add(1)
		return bytes.Compare(a.key, b.key) < 0
	}
	e := &MemEngine{
		cfs:    make(map[CF]*btree.BTreeG[kvEntry]),
		blooms: make(map[CF]*bloom.BloomFilter),
		perf:   perf,
	}
	for _, cf := range []CF{CFDefault, CFLock, CFWrite} {
		e.cfs[cf] = btree.NewG(btreeDegree, less)
		e.blooms[cf] = bloom.NewWithEstimates(bloomExpectedKeys, bloomFalsePositive)
	}
	return e
}

// Write applies the batch under the engine lock.
func (e *MemEngine) Write(batch []Modify) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range batch {
		tree, ok := e.cfs[m.CF]
		if !ok {
			return &StorageError{Code: ErrCodeCorrupted, Message: "write into unknown column family " + string(m.CF)}
		}
		entry := kvEntry{
			key:   append([]byte(nil), m.Key...),
			value: append([]byte(nil), m.Value...),
		}
		tree.ReplaceOrInsert(entry)
		e.blooms[m.CF].Add(entry.key)
	}
	return nil
}

// Delete removes a physical key. The membership filter cannot unlearn the
// key, so later point gets fall through the filter to the store; used by
// fixtures to release lock records.
func (e *MemEngine) Delete(cf CF, key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tree, ok := e.cfs[cf]
	if !ok {
		return &StorageError{Code: ErrCodeCorrupted, Message: "delete from unknown column family " + string(cf)}
	}
	tree.Delete(kvEntry{key: key})
	return nil
}

// Snapshot clones every column family copy-on-write.
func (e *MemEngine) Snapshot() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := &memSnapshot{engine: e, cfs: make(map[CF]*btree.BTreeG[kvEntry], len(e.cfs))}
	for cf, tree := range e.cfs {
		snap.cfs[cf] = tree.Clone()
	}
	return snap, nil
}

// PerfSnapshot captures the engine perf counters.
func (e *MemEngine) PerfSnapshot() PerfStatisticsInstant {
	return PerfStatisticsInstant{
		KeyComparisonCount:      e.perf.keyComparison.Load(),
		BloomMemtableHitCount:   e.perf.bloomMemtableHit.Load(),
		BloomMemtableMissCount:  e.perf.bloomMemtableMiss.Load(),
		InternalKeySkippedCount: e.perf.internalKeySkipped.Load(),
		SeekCount:               e.perf.seek.Load(),
		NextCount:               e.perf.next.Load(),
	}
}

type memSnapshot struct {
	engine *MemEngine
	cfs    map[CF]*btree.BTreeG[kvEntry]
}

func (s *memSnapshot) tree(cf CF) (*btree.BTreeG[kvEntry], error) {
	tree, ok := s.cfs[cf]
	if !ok {
		return nil, &StorageError{Code: ErrCodeInvalidSnapshot, Message: "unknown column family " + string(cf)}
	}
	return tree, nil
}

func (s *memSnapshot) Get(cf CF, key []byte) ([]byte, bool, error) {
	tree, err := s.tree(cf)
	if err != nil {
		return nil, false, err
	}

	s.engine.mu.RLock()
	inFilter := s.engine.blooms[cf].Test(key)
	s.engine.mu.RUnlock()
	if !inFilter {
		s.engine.perf.bloomMemtableMiss.Add(1)
		return nil, false, nil
	}
	s.engine.perf.bloomMemtableHit.Add(1)

	entry, found := tree.Get(kvEntry{key: key})
	if !found {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *memSnapshot) Iter(cf CF, lower, upper []byte) Iterator {
	tree, err := s.tree(cf)
	if err != nil {
		return &memIterator{}
	}
	s.engine.perf.seek.Add(1)
	it := &memIterator{perf: s.engine.perf}
	collect := func(e kvEntry) bool {
		it.entries = append(it.entries, e)
		return true
	}
	if upper == nil {
		tree.AscendGreaterOrEqual(kvEntry{key: lower}, collect)
	} else {
		tree.AscendRange(kvEntry{key: lower}, kvEntry{key: upper}, collect)
	}
	return it
}

func (s *memSnapshot) IterReverse(cf CF, lower, upper []byte) Iterator {
	tree, err := s.tree(cf)
	if err != nil {
		return &memIterator{}
	}
	s.engine.perf.seek.Add(1)
	it := &memIterator{perf: s.engine.perf}
	collect := func(e kvEntry) bool {
		if upper != nil && bytes.Equal(e.key, upper) {
			// The descend pivot is inclusive; the scan bound is not.
			return true
		}
		if lower != nil && bytes.Compare(e.key, lower) < 0 {
			return false
		}
		it.entries = append(it.entries, e)
		return true
	}
	if upper == nil {
		tree.Descend(collect)
	} else {
		tree.DescendLessOrEqual(kvEntry{key: upper}, collect)
	}
	return it
}

// recordInternalSkipped is consumed by the snapshot store when it steps
// over version entries that are newer than its read timestamp.
func (s *memSnapshot) recordInternalSkipped(n uint64) {
	s.engine.perf.internalKeySkipped.Add(n)
}

type internalSkipRecorder interface {
	recordInternalSkipped(n uint64)
}

type memIterator struct {
	perf    *perfCounters
	entries []kvEntry
	pos     int
}

func (it *memIterator) Valid() bool { return it.pos < len(it.entries) }

func (it *memIterator) Key() []byte { return it.entries[it.pos].key }

func (it *memIterator) Value() []byte { return it.entries[it.pos].value }

func (it *memIterator) Next() {
	it.pos++
	if it.perf != nil {
		it.perf.next.Add(1)
	}
}
