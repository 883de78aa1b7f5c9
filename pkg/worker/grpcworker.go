package worker

import (
	"sync"
	"sync/atomic"

	"github.com/breeswish/tikv/pkg/logging"
	"github.com/breeswish/tikv/pkg/readpool"
	"github.com/breeswish/tikv/pkg/storage"
)

// Config sizes the request worker.
type Config struct {
	ReadCriticalConcurrency int
	ReadHighConcurrency     int
	ReadNormalConcurrency   int
	ReadLowConcurrency      int
	MaxReadTasks            int
	StackSize               int
	SchedulerQueueSize      int

	BatchRowLimit   int
	ChunksPerStream int
	RecursionLimit  int
}

// GrpcRequestWorker accepts asynchronous read requests and drives each
// through its subtask chain on the priority pools. The handle is safe to
// share: submission is lock-free, and the worker holder behind Start and
// Shutdown sits behind its own mutex.
type GrpcRequestWorker struct {
	config Config
	engine storage.Engine
	logger *logging.Logger

	maxReadTasks atomic.Int64

	// mu protects the worker through Start and Shutdown; the scheduler is
	// extracted up front so submissions never take it.
	mu     sync.Mutex
	worker *Worker

	scheduler *Scheduler
}

// New builds a request worker around a shared engine handle.
func New(config Config, engine storage.Engine, logger *logging.Logger) *GrpcRequestWorker {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	w := NewWorker("grpcwkr-schd", config.SchedulerQueueSize)
	g := &GrpcRequestWorker{
		config:    config,
		engine:    engine,
		logger:    logger.WithComponent("grpcworker"),
		worker:    w,
		scheduler: w.Scheduler(),
	}
	g.maxReadTasks.Store(int64(config.MaxReadTasks))
	return g
}

// AsyncExecute submits a task starting at the given subtask. The callback
// fires exactly once with the terminal result; rejections arrive through
// it as well. The caller matches the subtask with a read priority; the
// behavior with a non-read workload is undefined.
func (g *GrpcRequestWorker) AsyncExecute(begin SubTask, priority readpool.Priority, callback Callback) {
	scheduleTask(g.scheduler, NewTask(begin, priority, callback))
}

// Start builds the four priority pools and spawns the scheduler loop.
func (g *GrpcRequestWorker) Start() error {
	pools := readpool.New(readpool.Config{
		ReadCriticalConcurrency: g.config.ReadCriticalConcurrency,
		ReadHighConcurrency:     g.config.ReadHighConcurrency,
		ReadNormalConcurrency:   g.config.ReadNormalConcurrency,
		ReadLowConcurrency:      g.config.ReadLowConcurrency,
		QueueSize:               g.config.MaxReadTasks,
		StackSize:               g.config.StackSize,
	}, g.contextFactory())
	if err := pools.Start(); err != nil {
		return err
	}

	r := &runner{
		pools:        pools,
		maxReadTasks: &g.maxReadTasks,
		scheduler:    g.scheduler,
		logger:       g.logger,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.worker.Start(r); err != nil {
		r.Shutdown()
		return err
	}
	g.logger.Info("request worker started", map[string]interface{}{
		"read_critical": g.config.ReadCriticalConcurrency,
		"read_high":     g.config.ReadHighConcurrency,
		"read_normal":   g.config.ReadNormalConcurrency,
		"read_low":      g.config.ReadLowConcurrency,
	})
	return nil
}

// contextFactory clones the engine handle into every pool worker along
// with the pool-wide limits.
func (g *GrpcRequestWorker) contextFactory() func() WorkerContext {
	return func() WorkerContext {
		return WorkerContext{
			Engine:          g.engine,
			BatchRowLimit:   g.config.BatchRowLimit,
			ChunksPerStream: g.config.ChunksPerStream,
			RecursionLimit:  g.config.RecursionLimit,
		}
	}
}

// Shutdown stops the scheduler loop and the pools. Accepted tasks drain
// first so their callbacks fire.
func (g *GrpcRequestWorker) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.worker.Stop()
	g.logger.Info("request worker stopped")
}

// SetMaxReadTasks adjusts the per-pool admission ceiling at runtime.
func (g *GrpcRequestWorker) SetMaxReadTasks(n int) {
	g.maxReadTasks.Store(int64(n))
	g.logger.Info("admission ceiling updated", map[string]interface{}{"max_read_tasks": n})
}

// MaxReadTasks returns the current admission ceiling.
func (g *GrpcRequestWorker) MaxReadTasks() int {
	return int(g.maxReadTasks.Load())
}
