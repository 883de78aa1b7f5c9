package worker

import (
	"fmt"

	"github.com/breeswish/tikv/pkg/coprocessor"
)

// CopDAGSubTask is the first hop of a coprocessor request: it pins a
// snapshot, validates the request, and builds the DAG handler. Each
// response frame is then produced by its own continuation hop, so a
// streaming request cannot hold a pool worker across frames.
type CopDAGSubTask struct {
	Req       *coprocessor.DAGRequest
	Ranges    []*coprocessor.KeyRange
	ReqCtx    *coprocessor.ReqContext
	Streaming bool
}

func (t *CopDAGSubTask) AsyncWork(ctx *WorkerContext, on SubTaskSink) {
	snap, err := ctx.Engine.Snapshot()
	if err != nil {
		on(FinishWithErr(err))
		return
	}
	reqCtx := t.ReqCtx
	if reqCtx == nil {
		reqCtx = &coprocessor.ReqContext{FillCache: true}
	}
	handler, err := coprocessor.NewDAGHandler(
		t.Req, t.Ranges, snap, reqCtx,
		ctx.BatchRowLimit, ctx.ChunksPerStream, ctx.RecursionLimit,
	)
	if err != nil {
		on(FinishWithErr(err))
		return
	}
	on(ContinueWith(&copDAGRunSubTask{
		handler:   handler,
		streaming: t.Streaming,
	}))
}

func (t *CopDAGSubTask) String() string {
	return fmt.Sprintf("cop-dag start_ts=%d ranges=%d streaming=%t",
		t.Req.StartTS, len(t.Ranges), t.Streaming)
}

// copDAGRunSubTask produces one frame per hop until the handler reports no
// frames remain.
type copDAGRunSubTask struct {
	handler   *coprocessor.DAGHandler
	streaming bool
	responses []*coprocessor.Response
}

func (t *copDAGRunSubTask) AsyncWork(ctx *WorkerContext, on SubTaskSink) {
	resp, remain, err := t.handler.HandleRequest(t.streaming)
	if err != nil {
		on(FinishWithErr(err))
		return
	}
	t.responses = append(t.responses, resp)
	if remain {
		on(ContinueWith(t))
		return
	}
	on(FinishWith(CoprocessorValue{Responses: t.responses}))
}

func (t *copDAGRunSubTask) String() string {
	return fmt.Sprintf("cop-dag-run frames=%d streaming=%t", len(t.responses), t.streaming)
}
