package worker

import (
	"fmt"
	"os"
	"testing"

	"github.com/breeswish/tikv/pkg/keys"
	"github.com/breeswish/tikv/pkg/readpool"
	"github.com/breeswish/tikv/pkg/storage"
)

// useFullPayload reports whether benchmarks should run against full-size
// fixtures instead of the quick ones.
func useFullPayload() bool {
	return os.Getenv("BENCH_FULL_PAYLOAD") == "1"
}

func benchFixtureSize() int {
	if useFullPayload() {
		return 100000
	}
	return 1000
}

func benchEngine(b *testing.B) *storage.MemEngine {
	b.Helper()
	e := storage.NewMemEngine()
	n := benchFixtureSize()
	batch := make([]storage.Modify, 0, 256)
	for i := 0; i < n; i++ {
		pk := keys.Basic.AllocFromUser([]byte(fmt.Sprintf("bench-key-%08d", i)))
		pk.AppendTs(10)
		batch = append(batch, storage.Modify{
			CF:    storage.CFDefault,
			Key:   pk.IntoPhysicalBytes(),
			Value: []byte(fmt.Sprintf("bench-value-%08d", i)),
		})
		if len(batch) == cap(batch) {
			if err := e.Write(batch); err != nil {
				b.Fatal(err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := e.Write(batch); err != nil {
			b.Fatal(err)
		}
	}
	return e
}

func BenchmarkPointGet(b *testing.B) {
	e := benchEngine(b)
	config := Config{
		ReadCriticalConcurrency: 4,
		ReadHighConcurrency:     4,
		ReadNormalConcurrency:   4,
		ReadLowConcurrency:      4,
		MaxReadTasks:            4096,
		SchedulerQueueSize:      8192,
		BatchRowLimit:           64,
		ChunksPerStream:         8,
		RecursionLimit:          64,
	}
	g := New(config, e, nil)
	if err := g.Start(); err != nil {
		b.Fatal(err)
	}
	defer g.Shutdown()

	size := benchFixtureSize()
	b.ResetTimer()
	done := make(chan struct{}, 1)
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("bench-key-%08d", i%size))
		g.AsyncExecute(&KvGetSubTask{Key: key, StartTS: 100},
			readpool.ReadNormal, func(Value, error) { done <- struct{}{} })
		<-done
	}
}
