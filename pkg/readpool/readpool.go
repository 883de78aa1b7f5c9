package readpool

// Config sizes the four priority pools. All pools share the stack size;
// they differ only in concurrency and label.
type Config struct {
	ReadCriticalConcurrency int
	ReadHighConcurrency     int
	ReadNormalConcurrency   int
	ReadLowConcurrency      int
	QueueSize               int
	StackSize               int
}

// ReadPool is a pool of pools: one isolated worker pool per priority,
// started together by Start. There is no collective stop; callers stop
// each pool returned by All.
type ReadPool[C any] struct {
	critical *Pool[C]
	high     *Pool[C]
	normal   *Pool[C]
	low      *Pool[C]
}

// New builds the four pools from one context factory. The factory runs
// once per worker of every pool.
func New[C any](config Config, factory func() C) *ReadPool[C] {
	build := func(name string, workers int) *Pool[C] {
		return NewPool(PoolConfig{
			Name:      name,
			Workers:   workers,
			QueueSize: config.QueueSize,
			StackSize: config.StackSize,
		}, factory)
	}
	return &ReadPool[C]{
		critical: build(ReadCritical.String(), config.ReadCriticalConcurrency),
		high:     build(ReadHigh.String(), config.ReadHighConcurrency),
		normal:   build(ReadNormal.String(), config.ReadNormalConcurrency),
		low:      build(ReadLow.String(), config.ReadLowConcurrency),
	}
}

// Get returns the pool of a priority. Pool selection is a pure function
// of the priority value.
func (r *ReadPool[C]) Get(priority Priority) *Pool[C] {
	switch priority {
	case ReadCritical:
		return r.critical
	case ReadHigh:
		return r.high
	case ReadLow:
		return r.low
	default:
		return r.normal
	}
}

// All returns the pools in shutdown order.
func (r *ReadPool[C]) All() []*Pool[C] {
	return []*Pool[C]{r.critical, r.high, r.normal, r.low}
}

// Start spawns every pool's workers, stopping the already-started pools
// again when a later one fails.
func (r *ReadPool[C]) Start() error {
	started := make([]*Pool[C], 0, 4)
	for _, p := range r.All() {
		if err := p.Start(); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			return err
		}
		started = append(started, p)
	}
	return nil
}
