package coprocessor

import (
	"github.com/breeswish/tikv/pkg/storage"
	"github.com/breeswish/tikv/pkg/util"
)

// rangeScanBatchSize is how many entries a table scan pulls per batch.
const rangeScanBatchSize = 64

// Row is one record produced by an executor: its handle, the full encoded
// value buffer, and the per-column encoded datum bytes.
type Row struct {
	Handle int64
	Value  []byte
	Cols   map[int64][]byte
}

// Executor is a pull-based row iterator. Next returns nil at the end of
// the scan. TakeLastKey moves out the raw key of the most recently
// produced row for range accounting; it returns nil when no row was
// produced since the previous take.
type Executor interface {
	Next() (*Row, error)
	TakeLastKey() []byte
	CollectStatisticsInto(dest *storage.Statistics)
}

// TableScanExecutor reads rows from the request's key ranges in order.
type TableScanExecutor struct {
	store   ExecStorage
	ranges  []*KeyRange
	desc    bool
	keyOnly bool

	rangeIdx   int
	scanning   bool
	batchKeys  util.BufferVec
	batchVals  util.BufferVec
	batchPos   int
	batchShort bool

	lastKey []byte
}

// NewTableScanExecutor builds a scan over ranges. A descending scan walks
// the ranges and the keys inside each range in reverse.
func NewTableScanExecutor(store ExecStorage, ranges []*KeyRange, desc, keyOnly bool) *TableScanExecutor {
	ordered := ranges
	if desc {
		ordered = make([]*KeyRange, len(ranges))
		for i, r := range ranges {
			ordered[len(ranges)-1-i] = r
		}
	}
	return &TableScanExecutor{store: store, ranges: ordered, desc: desc, keyOnly: keyOnly}
}

func (e *TableScanExecutor) Next() (*Row, error) {
	key, value, produced, err := e.nextEntry()
	if err != nil {
		return nil, err
	}
	if !produced {
		return nil, nil
	}
	e.lastKey = append([]byte(nil), key...)
	return decodeRow(key, value)
}

// nextEntry pulls one raw entry, advancing through ranges as they drain.
func (e *TableScanExecutor) nextEntry() (key, value []byte, produced bool, err error) {
	for {
		if e.scanning {
			key, value, produced, err = e.pullFromCurrent()
			if err != nil || produced {
				return key, value, produced, err
			}
			e.scanning = false
			e.rangeIdx++
		}
		if e.rangeIdx >= len(e.ranges) {
			return nil, nil, false, nil
		}
		r := e.ranges[e.rangeIdx]
		if IsPoint(r) {
			e.rangeIdx++
			value, found, err := e.store.Get(e.keyOnly, PointRange(r.Start))
			if err != nil {
				return nil, nil, false, err
			}
			if !found {
				continue
			}
			return r.Start, value, true, nil
		}
		interval := IntervalRange{LowerInclusive: r.Start, UpperExclusive: r.End}
		if e.desc {
			if err := e.store.BeginScan(true, e.keyOnly, interval); err != nil {
				return nil, nil, false, err
			}
		} else {
			if err := e.store.BeginRangeScan(e.keyOnly, interval); err != nil {
				return nil, nil, false, err
			}
			e.batchKeys.Clear()
			e.batchVals.Clear()
			e.batchPos = 0
			e.batchShort = false
		}
		e.scanning = true
	}
}

func (e *TableScanExecutor) pullFromCurrent() ([]byte, []byte, bool, error) {
	if e.desc {
		key, value, err := e.store.ScanNext()
		if err != nil {
			return nil, nil, false, err
		}
		return key, value, key != nil, nil
	}
	if e.batchPos >= e.batchKeys.Len() {
		if e.batchShort {
			return nil, nil, false, nil
		}
		e.batchKeys.Clear()
		e.batchVals.Clear()
		e.batchPos = 0
		n, err := e.store.RangeScanNextBatch(rangeScanBatchSize, &e.batchKeys, &e.batchVals)
		if err != nil {
			return nil, nil, false, err
		}
		e.batchShort = n < rangeScanBatchSize
		if n == 0 {
			return nil, nil, false, nil
		}
	}
	key := e.batchKeys.Get(e.batchPos)
	var value []byte
	if !e.keyOnly {
		value = e.batchVals.Get(e.batchPos)
	}
	e.batchPos++
	return key, value, true, nil
}

func (e *TableScanExecutor) TakeLastKey() []byte {
	k := e.lastKey
	e.lastKey = nil
	return k
}

func (e *TableScanExecutor) CollectStatisticsInto(dest *storage.Statistics) {
	e.store.CollectStatistics(dest)
}

// decodeRow splits an entry into a Row, tolerating data that is not
// record-shaped: such entries carry a zero handle and no column dict.
func decodeRow(key, value []byte) (*Row, error) {
	row := &Row{Value: append([]byte(nil), value...)}
	handle, ok := DecodeRecordHandle(key)
	if !ok {
		return row, nil
	}
	row.Handle = handle
	cols, err := DecodeRowValues(value)
	if err != nil {
		// Opaque payload under a record key; leave the dict empty.
		return row, nil
	}
	row.Cols = cols
	return row, nil
}

// SelectionExecutor filters its child's rows by a conjunction of
// conditions; a row passes when every condition evaluates to a non-null,
// non-zero integer.
type SelectionExecutor struct {
	child      Executor
	conditions []*Expr
	evalCtx    *EvalContext
}

// NewSelectionExecutor wraps child.
func NewSelectionExecutor(child Executor, conditions []*Expr, evalCtx *EvalContext) *SelectionExecutor {
	return &SelectionExecutor{child: child, conditions: conditions, evalCtx: evalCtx}
}

func (e *SelectionExecutor) Next() (*Row, error) {
	for {
		row, err := e.child.Next()
		if err != nil || row == nil {
			return nil, err
		}
		pass := true
		for _, cond := range e.conditions {
			d, err := e.evalCtx.Eval(cond, row)
			if err != nil {
				return nil, err
			}
			v, err := boolOrNull(d)
			if err != nil {
				return nil, err
			}
			if v != triTrue {
				pass = false
				break
			}
		}
		if pass {
			return row, nil
		}
	}
}

func (e *SelectionExecutor) TakeLastKey() []byte { return e.child.TakeLastKey() }

func (e *SelectionExecutor) CollectStatisticsInto(dest *storage.Statistics) {
	e.child.CollectStatisticsInto(dest)
}

// LimitExecutor truncates its child's stream.
type LimitExecutor struct {
	child     Executor
	remaining uint64
}

// NewLimitExecutor wraps child.
func NewLimitExecutor(child Executor, limit uint64) *LimitExecutor {
	return &LimitExecutor{child: child, remaining: limit}
}

func (e *LimitExecutor) Next() (*Row, error) {
	if e.remaining == 0 {
		return nil, nil
	}
	row, err := e.child.Next()
	if err != nil || row == nil {
		return nil, err
	}
	e.remaining--
	return row, nil
}

func (e *LimitExecutor) TakeLastKey() []byte { return e.child.TakeLastKey() }

func (e *LimitExecutor) CollectStatisticsInto(dest *storage.Statistics) {
	e.child.CollectStatisticsInto(dest)
}

// CountExecutor implements the argument-free COUNT aggregation: it drains
// the child and produces a single row whose value buffer is the encoded
// count, ready to be appended to a chunk verbatim.
type CountExecutor struct {
	child Executor
	done  bool
}

// NewCountExecutor wraps child.
func NewCountExecutor(child Executor) *CountExecutor {
	return &CountExecutor{child: child}
}

func (e *CountExecutor) Next() (*Row, error) {
	if e.done {
		return nil, nil
	}
	e.done = true
	var count int64
	for {
		row, err := e.child.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		count++
	}
	return &Row{Value: EncodeDatum(nil, IntDatum(count))}, nil
}

func (e *CountExecutor) TakeLastKey() []byte { return e.child.TakeLastKey() }

func (e *CountExecutor) CollectStatisticsInto(dest *storage.Statistics) {
	e.child.CollectStatisticsInto(dest)
}
