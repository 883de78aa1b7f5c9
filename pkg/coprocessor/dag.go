package coprocessor

import (
	"bytes"

	"github.com/breeswish/tikv/pkg/storage"
)

// DAGHandler drives an executor tree over a snapshot pinned at the
// request's start timestamp, assembling result chunks and, in streaming
// mode, splitting the response at chunk thresholds. Each emitted frame
// carries the span of user keys it covers.
type DAGHandler struct {
	columns         []*ColumnInfo
	hasAggr         bool
	reqCtx          *ReqContext
	exec            Executor
	outputOffsets   []uint32
	batchRowLimit   int
	chunksPerStream int

	chunks     []Chunk
	recordCnt  int
	frameStart []byte
	lastRowKey []byte
	exhausted  bool
}

// NewDAGHandler validates the request, builds its executor tree against
// snap, and returns a handler ready to run.
func NewDAGHandler(
	req *DAGRequest,
	ranges []*KeyRange,
	snap storage.Snapshot,
	reqCtx *ReqContext,
	batchRowLimit int,
	chunksPerStream int,
	recursionLimit int,
) (*DAGHandler, error) {
	evalCtx := &EvalContext{TimeZoneOffset: req.TimeZoneOffset, Flags: req.Flags}

	isolation := storage.SI
	if reqCtx.IsolationRC {
		isolation = storage.RC
	}
	store := storage.NewSnapshotStore(snap, req.StartTS, isolation, reqCtx.FillCache)

	exec, columns, hasAggr, err := buildExecutors(req.Executors, NewStoreAdapter(store), ranges, evalCtx, recursionLimit)
	if err != nil {
		return nil, err
	}
	return &DAGHandler{
		columns:         columns,
		hasAggr:         hasAggr,
		reqCtx:          reqCtx,
		exec:            exec,
		outputOffsets:   req.OutputOffsets,
		batchRowLimit:   batchRowLimit,
		chunksPerStream: chunksPerStream,
		chunks:          nil,
	}, nil
}

// HandleRequest runs the executor until the next frame boundary and
// returns the frame plus whether more frames remain. In streaming mode a
// frame is emitted once chunksPerStream full chunks are buffered, always
// with remain=true; the terminal frame is data-free with remain=false.
// Non-streaming requests come back as a single terminal frame. Catch-all
// executor errors are encoded in-band; deadline, lock and storage errors,
// and a NOT NULL column missing at inflation, propagate as task failures.
func (h *DAGHandler) HandleRequest(streaming bool) (*Response, bool, error) {
	for {
		if h.exhausted {
			resp, err := h.flushFrame()
			return resp, false, err
		}

		row, err := h.exec.Next()
		if err != nil {
			if IsOther(err) {
				body := &SelectResponse{Error: &SelectError{Msg: err.Error()}}
				data, mErr := body.Marshal()
				if mErr != nil {
					return nil, false, mErr
				}
				return &Response{Data: data, OtherError: err.Error()}, false, nil
			}
			return nil, false, err
		}
		if row == nil {
			h.exhausted = true
			if streaming && len(h.chunks) > 0 {
				// Flush the tail as a partial frame; the terminator follows
				// on the next call.
				resp, err := h.flushFrame()
				return resp, true, err
			}
			resp, err := h.flushFrame()
			return resp, false, err
		}

		if err := h.reqCtx.CheckIfOutdated(); err != nil {
			return nil, false, err
		}

		rowKey := h.exec.TakeLastKey()
		if len(h.chunks) == 0 || h.recordCnt >= h.batchRowLimit {
			h.chunks = append(h.chunks, Chunk{})
			h.recordCnt = 0
		}
		if h.frameStart == nil {
			h.frameStart = rowKey
		}
		h.lastRowKey = rowKey
		h.recordCnt++
		if err := h.appendRow(row); err != nil {
			return nil, false, err
		}

		if streaming && h.recordCnt >= h.batchRowLimit && len(h.chunks) >= h.chunksPerStream {
			resp, err := h.flushFrame()
			if err != nil {
				return nil, false, err
			}
			return resp, true, nil
		}
	}
}

// flushFrame packages the buffered chunks into one frame and resets the
// frame accounting.
func (h *DAGHandler) flushFrame() (*Response, error) {
	resp, err := h.makeResponse(h.frameStart, h.lastRowKey)
	h.frameStart = nil
	h.lastRowKey = nil
	h.recordCnt = 0
	return resp, err
}

func (h *DAGHandler) appendRow(row *Row) error {
	chunk := &h.chunks[len(h.chunks)-1]
	if h.hasAggr {
		chunk.RowsData = append(chunk.RowsData, row.Value...)
		return nil
	}
	inflated, err := inflateColumns(row, h.columns, h.outputOffsets)
	if err != nil {
		return err
	}
	chunk.RowsData = append(chunk.RowsData, inflated...)
	return nil
}

// makeResponse packages the buffered chunks. The scanned span normalizes
// to [min, PrefixNext(max)]: inverted ends from a reverse scan swap, a
// lone start closes over itself, and a rowless frame omits the span.
func (h *DAGHandler) makeResponse(startKey, endKey []byte) (*Response, error) {
	chunks := h.chunks
	h.chunks = nil
	body := &SelectResponse{Chunks: chunks}
	data, err := body.Marshal()
	if err != nil {
		return nil, err
	}
	resp := &Response{Data: data}

	var start, end []byte
	switch {
	case startKey != nil && endKey != nil:
		if bytes.Compare(startKey, endKey) > 0 {
			start, end = endKey, PrefixNext(startKey)
		} else {
			start, end = startKey, PrefixNext(endKey)
		}
	case startKey != nil:
		start, end = startKey, PrefixNext(startKey)
	default:
		return resp, nil
	}
	resp.Range = &KeyRange{Start: start, End: end}
	return resp, nil
}

// CollectStatisticsInto drains the executor tree's storage statistics.
func (h *DAGHandler) CollectStatisticsInto(dest *storage.Statistics) {
	h.exec.CollectStatisticsInto(dest)
}

// buildExecutors assembles the executor chain bottom-up. The first
// descriptor must be a table scan; the rest wrap their predecessor.
func buildExecutors(
	descriptors []*ExecutorDescriptor,
	store ExecStorage,
	ranges []*KeyRange,
	evalCtx *EvalContext,
	recursionLimit int,
) (Executor, []*ColumnInfo, bool, error) {
	if len(descriptors) == 0 {
		return nil, nil, false, evalErrf("request carries no executors")
	}
	first := descriptors[0]
	if first.Tp != ExecTypeTableScan || first.TableScan == nil {
		return nil, nil, false, evalErrf("first executor must be a table scan")
	}
	columns := first.TableScan.Columns
	exec := Executor(NewTableScanExecutor(store, ranges, first.TableScan.Desc, false))

	hasAggr := false
	for _, d := range descriptors[1:] {
		switch d.Tp {
		case ExecTypeSelection:
			if d.Selection == nil {
				return nil, nil, false, evalErrf("selection executor without payload")
			}
			for _, cond := range d.Selection.Conditions {
				if exprDepth(cond) > recursionLimit {
					return nil, nil, false, evalErrf("expression nesting exceeds the recursion limit %d", recursionLimit)
				}
			}
			exec = NewSelectionExecutor(exec, d.Selection.Conditions, evalCtx)
		case ExecTypeLimit:
			if d.Limit == nil {
				return nil, nil, false, evalErrf("limit executor without payload")
			}
			exec = NewLimitExecutor(exec, d.Limit.Limit)
		case ExecTypeAggregation:
			if d.Aggregation == nil || len(d.Aggregation.AggFuncs) != 1 ||
				d.Aggregation.AggFuncs[0].Sig != SigCount {
				return nil, nil, false, evalErrf("unsupported aggregation")
			}
			exec = NewCountExecutor(exec)
			hasAggr = true
		default:
			return nil, nil, false, evalErrf("unsupported executor type %d", d.Tp)
		}
	}
	return exec, columns, hasAggr, nil
}

// inflateColumns materializes the requested output offsets of one row: the
// stored value when present, a synthesized handle for the primary-key
// column, the declared default, or the null sentinel. A NOT NULL column
// with none of those fails the row.
func inflateColumns(row *Row, columns []*ColumnInfo, outputOffsets []uint32) ([]byte, error) {
	values := make([]byte, 0, len(row.Value))
	for _, offset := range outputOffsets {
		if int(offset) >= len(columns) {
			return nil, evalErrf("output offset %d out of range", offset)
		}
		col := columns[offset]
		stored, ok := row.Cols[col.ColumnID]
		switch {
		case ok:
			values = append(values, stored...)
		case col.PKHandle:
			if col.HasUnsignedFlag() {
				values = EncodeDatum(values, UintDatum(uint64(row.Handle)))
			} else {
				values = EncodeDatum(values, IntDatum(row.Handle))
			}
		case len(col.DefaultVal) > 0:
			values = append(values, col.DefaultVal...)
		case col.HasNotNullFlag():
			return nil, &MissingColumnError{ColumnID: col.ColumnID, Handle: row.Handle}
		default:
			values = EncodeDatum(values, NullDatum())
		}
	}
	return values, nil
}
