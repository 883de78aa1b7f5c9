// Package storage provides the transactional key-value contracts consumed
// by the read path: an engine handle with snapshot support, an in-memory
// MVCC engine implementation, a snapshot-pinned store with point-get and
// range scanners, and the statistics types their callers drain.
package storage

// CF names a column family. The read path touches the default family for
// row data and the lock family for uncommitted-write records; the write
// family is reserved for commit records.
type CF string

const (
	CFDefault CF = "default"
	CFLock    CF = "lock"
	CFWrite   CF = "write"
)

// Modify is a single put into a column family, addressed by physical key.
type Modify struct {
	CF    CF
	Key   []byte
	Value []byte
}

// Engine is a shared handle to the key-value engine. Handles are cheap to
// copy and safe for concurrent use; the worker-thread context factory
// clones one into every pool worker.
type Engine interface {
	// Snapshot pins a consistent view of the whole engine.
	Snapshot() (Snapshot, error)

	// Write applies a batch atomically. The read core only uses this for
	// fixtures and benchmarks; transactional writes are coordinated
	// elsewhere.
	Write(batch []Modify) error

	// PerfSnapshot captures the engine's perf counters at this instant.
	PerfSnapshot() PerfStatisticsInstant
}

// Snapshot is a consistent, immutable view of the engine. A snapshot is
// owned by a single task and is not safe for concurrent use.
type Snapshot interface {
	// Get returns the value stored at the exact physical key, or found=false.
	Get(cf CF, key []byte) (value []byte, found bool, err error)

	// Iter returns a forward iterator over [lower, upper). A nil upper means
	// no upper bound.
	Iter(cf CF, lower, upper []byte) Iterator

	// IterReverse returns a backward iterator over keys strictly below
	// upper, stopping at lower. A nil lower means no lower bound.
	IterReverse(cf CF, lower, upper []byte) Iterator
}

// Iterator walks entries of one column family in physical-key order.
// Key and Value are only valid until the next call to Next.
type Iterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next()
}
