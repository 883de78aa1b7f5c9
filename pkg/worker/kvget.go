package worker

import (
	"fmt"

	"github.com/breeswish/tikv/pkg/coprocessor"
	"github.com/breeswish/tikv/pkg/storage"
)

// KvGetSubTask is the first hop of a point get: it pins a snapshot and
// continues with the lookup, so the I/O-bound read re-enters admission
// as its own hop.
type KvGetSubTask struct {
	ReqCtx  *coprocessor.ReqContext
	Key     []byte
	StartTS uint64
}

func (t *KvGetSubTask) AsyncWork(ctx *WorkerContext, on SubTaskSink) {
	snap, err := ctx.Engine.Snapshot()
	if err != nil {
		on(FinishWithErr(err))
		return
	}
	on(ContinueWith(&kvGetSnapshotSubTask{
		reqCtx:   t.ReqCtx,
		snapshot: snap,
		key:      t.Key,
		startTS:  t.StartTS,
	}))
}

func (t *KvGetSubTask) String() string {
	return fmt.Sprintf("kvget key=%X start_ts=%d", t.Key, t.StartTS)
}

// kvGetSnapshotSubTask resolves the versioned read on the pinned snapshot.
type kvGetSnapshotSubTask struct {
	reqCtx   *coprocessor.ReqContext
	snapshot storage.Snapshot
	key      []byte
	startTS  uint64
}

func (t *kvGetSnapshotSubTask) AsyncWork(ctx *WorkerContext, on SubTaskSink) {
	if t.reqCtx != nil {
		if err := t.reqCtx.CheckIfOutdated(); err != nil {
			on(FinishWithErr(err))
			return
		}
	}
	isolation := storage.SI
	fillCache := true
	if t.reqCtx != nil {
		if t.reqCtx.IsolationRC {
			isolation = storage.RC
		}
		fillCache = t.reqCtx.FillCache
	}
	store := storage.NewSnapshotStore(t.snapshot, t.startTS, isolation, fillCache)

	var stats storage.Statistics
	value, found, err := store.Get(t.key, &stats)
	if err != nil {
		on(FinishWithErr(err))
		return
	}
	on(FinishWith(StorageValue{Data: value, Found: found}))
}

func (t *kvGetSnapshotSubTask) String() string {
	return fmt.Sprintf("kvget-snapshot key=%X start_ts=%d", t.key, t.startTS)
}
