package worker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breeswish/tikv/pkg/coprocessor"
	"github.com/breeswish/tikv/pkg/keys"
	"github.com/breeswish/tikv/pkg/readpool"
	"github.com/breeswish/tikv/pkg/storage"
)

func testConfig() Config {
	return Config{
		ReadCriticalConcurrency: 2,
		ReadHighConcurrency:     2,
		ReadNormalConcurrency:   2,
		ReadLowConcurrency:      2,
		MaxReadTasks:            32,
		SchedulerQueueSize:      64,
		BatchRowLimit:           10,
		ChunksPerStream:         1,
		RecursionLimit:          16,
	}
}

func startWorker(t *testing.T, config Config, engine storage.Engine) *GrpcRequestWorker {
	t.Helper()
	g := New(config, engine, nil)
	require.NoError(t, g.Start())
	t.Cleanup(g.Shutdown)
	return g
}

func putVersion(t *testing.T, e *storage.MemEngine, userKey, value []byte, commitTS uint64) {
	t.Helper()
	pk := keys.Basic.AllocFromUser(userKey)
	pk.AppendTs(commitTS)
	require.NoError(t, e.Write([]storage.Modify{{
		CF: storage.CFDefault, Key: pk.IntoPhysicalBytes(), Value: value,
	}}))
}

type callbackResult struct {
	value Value
	err   error
}

func collect(done chan callbackResult) Callback {
	return func(v Value, err error) {
		done <- callbackResult{value: v, err: err}
	}
}

func TestPointGetMiss(t *testing.T) {
	e := storage.NewMemEngine()
	g := startWorker(t, testConfig(), e)

	done := make(chan callbackResult, 1)
	g.AsyncExecute(&KvGetSubTask{Key: []byte("x"), StartTS: 100},
		readpool.ReadCritical, collect(done))

	res := <-done
	require.NoError(t, res.err)
	sv, ok := res.value.(StorageValue)
	require.True(t, ok)
	assert.False(t, sv.Found)
	assert.Nil(t, sv.Data)
}

func TestPointGetHit(t *testing.T) {
	e := storage.NewMemEngine()
	putVersion(t, e, []byte("k"), []byte("v"), 50)
	g := startWorker(t, testConfig(), e)

	done := make(chan callbackResult, 1)
	g.AsyncExecute(&KvGetSubTask{Key: []byte("k"), StartTS: 100},
		readpool.ReadCritical, collect(done))

	res := <-done
	require.NoError(t, res.err)
	sv, ok := res.value.(StorageValue)
	require.True(t, ok)
	assert.True(t, sv.Found)
	assert.Equal(t, []byte("v"), sv.Data)
}

func TestPointGetInvisibleVersion(t *testing.T) {
	e := storage.NewMemEngine()
	putVersion(t, e, []byte("k"), []byte("v"), 200)
	g := startWorker(t, testConfig(), e)

	done := make(chan callbackResult, 1)
	g.AsyncExecute(&KvGetSubTask{Key: []byte("k"), StartTS: 100},
		readpool.ReadNormal, collect(done))

	res := <-done
	require.NoError(t, res.err)
	assert.False(t, res.value.(StorageValue).Found)
}

// blockingSubTask parks until released, then finishes.
type blockingSubTask struct {
	started chan struct{}
	release chan struct{}
}

func (t *blockingSubTask) AsyncWork(_ *WorkerContext, on SubTaskSink) {
	close(t.started)
	<-t.release
	on(FinishWith(StorageValue{}))
}

func (t *blockingSubTask) String() string { return "blocking" }

func TestPoolOverflow(t *testing.T) {
	config := testConfig()
	config.MaxReadTasks = 1
	g := startWorker(t, config, storage.NewMemEngine())

	release := make(chan struct{})
	first := &blockingSubTask{started: make(chan struct{}), release: release}
	firstDone := make(chan callbackResult, 1)
	g.AsyncExecute(first, readpool.ReadNormal, collect(firstDone))
	<-first.started

	secondDone := make(chan callbackResult, 1)
	g.AsyncExecute(&blockingSubTask{started: make(chan struct{}), release: release},
		readpool.ReadNormal, collect(secondDone))

	res := <-secondDone
	require.Error(t, res.err)
	assert.True(t, HasCode(res.err, CodePoolBusy))

	// Other pools stay unaffected by the busy one.
	otherDone := make(chan callbackResult, 1)
	g.AsyncExecute(&KvGetSubTask{Key: []byte("x"), StartTS: 1},
		readpool.ReadHigh, collect(otherDone))
	require.NoError(t, (<-otherDone).err)

	close(release)
	require.NoError(t, (<-firstDone).err)
}

// countingSubTask continues through a fixed number of hops, recording the
// hop count, then finishes.
type countingSubTask struct {
	remaining int
	hops      *atomic.Int32
}

func (t *countingSubTask) AsyncWork(_ *WorkerContext, on SubTaskSink) {
	t.hops.Add(1)
	if t.remaining == 0 {
		on(FinishWith(StorageValue{Found: true}))
		return
	}
	on(ContinueWith(&countingSubTask{remaining: t.remaining - 1, hops: t.hops}))
}

func (t *countingSubTask) String() string { return fmt.Sprintf("counting remaining=%d", t.remaining) }

func TestContinuationChain(t *testing.T) {
	g := startWorker(t, testConfig(), storage.NewMemEngine())

	var hops atomic.Int32
	done := make(chan callbackResult, 1)
	g.AsyncExecute(&countingSubTask{remaining: 4, hops: &hops}, readpool.ReadLow, collect(done))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, int32(5), hops.Load(), "each hop re-enters the scheduler")
}

func TestCallbackExactlyOnce(t *testing.T) {
	g := startWorker(t, testConfig(), storage.NewMemEngine())

	const n = 64
	var fired atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		g.AsyncExecute(&KvGetSubTask{Key: []byte{byte(i)}, StartTS: 10},
			readpool.ReadNormal, func(Value, error) {
				fired.Add(1)
				wg.Done()
			})
	}
	wg.Wait()
	assert.Equal(t, int32(n), fired.Load())
}

func TestShutdownFiresPendingCallbacks(t *testing.T) {
	config := testConfig()
	g := New(config, storage.NewMemEngine(), nil)
	require.NoError(t, g.Start())

	const n = 16
	var fired atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		g.AsyncExecute(&KvGetSubTask{Key: []byte{byte(i)}, StartTS: 10},
			readpool.ReadNormal, func(Value, error) {
				fired.Add(1)
				wg.Done()
			})
	}
	g.Shutdown()
	wg.Wait()
	assert.Equal(t, int32(n), fired.Load(), "accepted tasks complete during shutdown")

	// Submissions after shutdown are rejected through the callback.
	done := make(chan callbackResult, 1)
	g.AsyncExecute(&KvGetSubTask{Key: []byte("x"), StartTS: 10},
		readpool.ReadNormal, collect(done))
	res := <-done
	require.Error(t, res.err)
	assert.True(t, HasCode(res.err, CodeSchedulerStopped))
}

func TestSchedulerFull(t *testing.T) {
	config := testConfig()
	config.SchedulerQueueSize = 1
	g := New(config, storage.NewMemEngine(), nil)
	// Not started: the mailbox fills and overflow rejects as busy.
	g.AsyncExecute(&KvGetSubTask{Key: []byte("a"), StartTS: 1}, readpool.ReadNormal, func(Value, error) {})

	done := make(chan callbackResult, 1)
	g.AsyncExecute(&KvGetSubTask{Key: []byte("b"), StartTS: 1}, readpool.ReadNormal, collect(done))
	res := <-done
	require.Error(t, res.err)
	assert.True(t, HasCode(res.err, CodeSchedulerBusy))
}

func TestMapCommandPriority(t *testing.T) {
	assert.Equal(t, readpool.ReadHigh, MapCommandPriority(CommandPriHigh))
	assert.Equal(t, readpool.ReadNormal, MapCommandPriority(CommandPriNormal))
	assert.Equal(t, readpool.ReadLow, MapCommandPriority(CommandPriLow))
}

func TestSetMaxReadTasks(t *testing.T) {
	config := testConfig()
	config.MaxReadTasks = 1
	g := startWorker(t, config, storage.NewMemEngine())

	release := make(chan struct{})
	first := &blockingSubTask{started: make(chan struct{}), release: release}
	firstDone := make(chan callbackResult, 1)
	g.AsyncExecute(first, readpool.ReadNormal, collect(firstDone))
	<-first.started

	// Raising the ceiling admits what would have been rejected.
	g.SetMaxReadTasks(8)
	second := &blockingSubTask{started: make(chan struct{}), release: release}
	secondDone := make(chan callbackResult, 1)
	g.AsyncExecute(second, readpool.ReadNormal, collect(secondDone))
	<-second.started

	close(release)
	require.NoError(t, (<-firstDone).err)
	require.NoError(t, (<-secondDone).err)
}

func TestCopThroughWorker(t *testing.T) {
	e := storage.NewMemEngine()
	for i := 1; i <= 5; i++ {
		key := coprocessor.EncodeRecordKey(1, int64(i))
		putVersion(t, e, key, coprocessor.EncodeRow(
			[]int64{2}, []coprocessor.Datum{coprocessor.IntDatum(int64(i))}), 10)
	}
	g := startWorker(t, testConfig(), e)

	first := coprocessor.EncodeRecordKey(1, 1)
	last := coprocessor.EncodeRecordKey(1, 5)
	req := &coprocessor.DAGRequest{
		StartTS: 100,
		Executors: []*coprocessor.ExecutorDescriptor{{
			Tp: coprocessor.ExecTypeTableScan,
			TableScan: &coprocessor.TableScan{
				Columns: []*coprocessor.ColumnInfo{{ColumnID: 1, PKHandle: true}},
			},
		}},
		OutputOffsets: []uint32{0},
	}

	done := make(chan callbackResult, 1)
	g.AsyncExecute(&CopDAGSubTask{
		Req:    req,
		Ranges: []*coprocessor.KeyRange{{Start: first, End: coprocessor.PrefixNext(last)}},
	}, readpool.ReadHigh, collect(done))

	res := <-done
	require.NoError(t, res.err)
	cv, ok := res.value.(CoprocessorValue)
	require.True(t, ok)
	require.Len(t, cv.Responses, 1)
	require.NotNil(t, cv.Responses[0].Range)
	assert.Equal(t, first, cv.Responses[0].Range.Start)
}

func TestCopStreamingThroughWorker(t *testing.T) {
	e := storage.NewMemEngine()
	for i := 1; i <= 5; i++ {
		putVersion(t, e, []byte(fmt.Sprintf("k%d", i)), coprocessor.EncodeRow(
			[]int64{2}, []coprocessor.Datum{coprocessor.IntDatum(int64(i))}), 10)
	}
	config := testConfig()
	config.BatchRowLimit = 2
	g := startWorker(t, config, e)

	req := &coprocessor.DAGRequest{
		StartTS: 100,
		Executors: []*coprocessor.ExecutorDescriptor{{
			Tp: coprocessor.ExecTypeTableScan,
			TableScan: &coprocessor.TableScan{
				Columns: []*coprocessor.ColumnInfo{{ColumnID: 1, PKHandle: true}},
			},
		}},
		OutputOffsets: []uint32{0},
	}

	done := make(chan callbackResult, 1)
	g.AsyncExecute(&CopDAGSubTask{
		Req:       req,
		Ranges:    []*coprocessor.KeyRange{{Start: []byte("k1"), End: []byte("k6")}},
		Streaming: true,
	}, readpool.ReadNormal, collect(done))

	res := <-done
	require.NoError(t, res.err)
	cv := res.value.(CoprocessorValue)
	require.Len(t, cv.Responses, 4, "three partial frames plus the terminator")
	assert.Nil(t, cv.Responses[3].Range)
}

func TestTaskRespondIsIdempotent(t *testing.T) {
	var fired atomic.Int32
	task := NewTask(&KvGetSubTask{Key: []byte("k")}, readpool.ReadNormal,
		func(Value, error) { fired.Add(1) })
	task.respond(nil, nil)
	task.respond(nil, fmt.Errorf("second verdict"))
	assert.Equal(t, int32(1), fired.Load())
}

func TestSchedulerStoppedRace(t *testing.T) {
	g := New(testConfig(), storage.NewMemEngine(), nil)
	require.NoError(t, g.Start())

	// Submit concurrently with shutdown; every callback must still fire.
	var fired atomic.Int32
	var wg sync.WaitGroup
	const n = 32
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			g.AsyncExecute(&KvGetSubTask{Key: []byte{byte(i)}, StartTS: 1},
				readpool.ReadNormal, func(Value, error) {
					fired.Add(1)
					wg.Done()
				})
		}(i)
	}
	time.Sleep(time.Millisecond)
	g.Shutdown()
	wg.Wait()
	assert.Equal(t, int32(n), fired.Load())
}
