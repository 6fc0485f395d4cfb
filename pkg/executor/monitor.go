package executor

import (
	"runtime"
	"sync"
	"time"

	"github.com/reportd/reportd/pkg/job"
)

// Monitor tracks advisory resource usage for running jobs. Numbers are
// observational (wall clock plus heap delta across the run) and are
// never fed back into scheduling decisions.
type Monitor struct {
	mu     sync.Mutex
	active map[string]sample
}

type sample struct {
	start time.Time
	heap  uint64
}

func NewMonitor() *Monitor {
	return &Monitor{active: make(map[string]sample)}
}

// Start begins tracking a job run.
func (m *Monitor) Start(jobID string) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[jobID] = sample{start: time.Now(), heap: ms.HeapAlloc}
}

// Stop finalizes tracking and returns the accounting for the run.
// Stopping an untracked job returns zero values.
func (m *Monitor) Stop(jobID string) job.Resources {
	m.mu.Lock()
	s, ok := m.active[jobID]
	delete(m.active, jobID)
	m.mu.Unlock()

	if !ok {
		return job.Resources{}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	// Heap can shrink across the run after a GC cycle; report zero
	// rather than a negative delta.
	var delta int64
	if ms.HeapAlloc > s.heap {
		delta = int64(ms.HeapAlloc - s.heap)
	}

	return job.Resources{
		Duration:    time.Since(s.start),
		MemoryDelta: delta,
	}
}

// Active returns how many runs are currently tracked.
func (m *Monitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
