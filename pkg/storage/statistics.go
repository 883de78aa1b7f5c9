package storage

// CFStatistics counts accesses against one column family.
type CFStatistics struct {
	Get           int
	Seek          int
	Next          int
	Prev          int
	ProcessedKeys int
	ReadBytes     int
	ReadKeys      int
}

// Add folds other into s.
func (s *CFStatistics) Add(other *CFStatistics) {
	s.Get += other.Get
	s.Seek += other.Seek
	s.Next += other.Next
	s.Prev += other.Prev
	s.ProcessedKeys += other.ProcessedKeys
	s.ReadBytes += other.ReadBytes
	s.ReadKeys += other.ReadKeys
}

// Total returns the number of accesses of any kind.
func (s *CFStatistics) Total() int {
	return s.Get + s.Seek + s.Next + s.Prev
}

// Statistics groups per-family counters for one scanner or store. The
// counters are not thread-safe: each scanner is owned by a single adapter,
// which is owned by a single task.
type Statistics struct {
	Lock  CFStatistics
	Write CFStatistics
	Data  CFStatistics
}

// Add folds other into s.
func (s *Statistics) Add(other *Statistics) {
	s.Lock.Add(&other.Lock)
	s.Write.Add(&other.Write)
	s.Data.Add(&other.Data)
}

// Reset zeroes every counter.
func (s *Statistics) Reset() {
	*s = Statistics{}
}

// PerfStatisticsFields are the engine-level perf counters the in-memory
// engine can observe. The set mirrors the interesting subset of a
// persistent engine's perf context: comparison work, memtable bloom
// effectiveness, and version skipping.
type PerfStatisticsFields struct {
	KeyComparisonCount      uint64
	BloomMemtableHitCount   uint64
	BloomMemtableMissCount  uint64
	InternalKeySkippedCount uint64
	SeekCount               uint64
	NextCount               uint64
}

// PerfStatisticsInstant stores counter values captured at one instant.
type PerfStatisticsInstant PerfStatisticsFields

// PerfStatisticsDelta is the difference between two instants, covering the
// work performed between the two captures.
type PerfStatisticsDelta PerfStatisticsFields

// Delta subtracts an earlier capture from s.
func (s PerfStatisticsInstant) Delta(earlier PerfStatisticsInstant) PerfStatisticsDelta {
	return PerfStatisticsDelta{
		KeyComparisonCount:      s.KeyComparisonCount - earlier.KeyComparisonCount,
		BloomMemtableHitCount:   s.BloomMemtableHitCount - earlier.BloomMemtableHitCount,
		BloomMemtableMissCount:  s.BloomMemtableMissCount - earlier.BloomMemtableMissCount,
		InternalKeySkippedCount: s.InternalKeySkippedCount - earlier.InternalKeySkippedCount,
		SeekCount:               s.SeekCount - earlier.SeekCount,
		NextCount:               s.NextCount - earlier.NextCount,
	}
}

// Add folds other into d.
func (d *PerfStatisticsDelta) Add(other PerfStatisticsDelta) {
	d.KeyComparisonCount += other.KeyComparisonCount
	d.BloomMemtableHitCount += other.BloomMemtableHitCount
	d.BloomMemtableMissCount += other.BloomMemtableMissCount
	d.InternalKeySkippedCount += other.InternalKeySkippedCount
	d.SeekCount += other.SeekCount
	d.NextCount += other.NextCount
}
