// Package queue provides the bounded, FIFO, in-memory job queue. It
// serves double duty: dispatch ordering for the executor's workers and
// an id-keyed lookup table for status queries. Both structures live
// behind one mutex so the capacity check and the insert are atomic.
package queue

import (
	"sync"
	"time"

	"github.com/reportd/reportd/pkg/job"
)

// DefaultMaxSize bounds the queued backlog when no explicit limit is
// configured.
const DefaultMaxSize = 100

// Queue is a strictly bounded FIFO of jobs plus an id lookup table.
//
// The FIFO holds only jobs still waiting for a worker; the lookup
// table holds every job submitted until an explicit Remove, so status
// and download calls can resolve finished jobs by id.
type Queue struct {
	mu      sync.Mutex
	fifo    []*job.Job
	byID    map[string]*job.Job
	maxSize int
	wake    chan struct{}
}

// New creates a queue bounded at maxSize queued jobs. A non-positive
// maxSize selects DefaultMaxSize.
func New(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Queue{
		byID:    make(map[string]*job.Job),
		maxSize: maxSize,
		wake:    make(chan struct{}, 1),
	}
}

// MaxSize returns the configured backlog bound.
func (q *Queue) MaxSize() int {
	return q.maxSize
}

// Enqueue appends a job to the tail and registers it in the lookup
// table. It fails with FullError when the queued backlog is at the
// bound, and with DuplicateError if the id is already registered.
func (q *Queue) Enqueue(j *job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.fifo) >= q.maxSize {
		return &FullError{Limit: q.maxSize}
	}
	if _, exists := q.byID[j.ID]; exists {
		return &DuplicateError{JobID: j.ID}
	}

	q.fifo = append(q.fifo, j)
	q.byID[j.ID] = j

	// Non-blocking wake for one blocked Dequeue. Workers poll with a
	// bounded timeout, so a coalesced signal is only a latency cost.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue blocks up to timeout for the head-of-queue job and claims
// it. The second return is false when the wait expired with nothing to
// dispatch; an empty queue is not an error.
//
// Jobs whose status left queued (cancelled while waiting) are detached
// from the FIFO by UpdateStatus, so a cancelled job never reaches a
// worker and never holds a backlog slot.
func (q *Queue) Dequeue(timeout time.Duration) (*job.Job, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if j, ok := q.popQueued(); ok {
			return j, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
			// One more pop attempt on the way out catches an enqueue
			// that raced the timer.
			if j, ok := q.popQueued(); ok {
				return j, true
			}
			return nil, false
		}
	}
}

// popQueued removes entries from the head until it finds one still in
// status queued. The status check is a safety net; UpdateStatus detaches
// non-queued entries eagerly.
func (q *Queue) popQueued() (*job.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.fifo) > 0 {
		j := q.fifo[0]
		q.fifo = q.fifo[1:]
		if j.Status == job.StatusQueued {
			return j, true
		}
	}
	return nil, false
}

// Get returns a snapshot of the job with the given id, whether it is
// queued, running or finished.
func (q *Queue) Get(id string) (job.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.byID[id]
	if !ok {
		return job.Job{}, false
	}
	return j.Snapshot(), true
}

// UpdateStatus transitions the job identified by id and then applies
// the optional mutator, all under the queue lock. It returns
// NotFoundError for an unknown id and the job's
// InvalidTransitionError for an illegal edge.
//
// A transition out of queued frees the job's FIFO slot immediately, so
// cancelling a waiting job gives its capacity back to Enqueue.
func (q *Queue) UpdateStatus(id string, to job.Status, mutate func(*job.Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.byID[id]
	if !ok {
		return &NotFoundError{JobID: id}
	}
	from := j.Status
	if err := j.Transition(to); err != nil {
		return err
	}
	if from == job.StatusQueued && to != job.StatusQueued {
		q.detachLocked(id)
	}
	if mutate != nil {
		mutate(j)
	}
	return nil
}

// Update applies a mutation to the job under the queue lock without a
// status transition. Used for progress checkpoints and resource
// accounting by the owning worker.
func (q *Queue) Update(id string, mutate func(*job.Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.byID[id]
	if !ok {
		return &NotFoundError{JobID: id}
	}
	mutate(j)
	return nil
}

// Remove detaches a job from both the FIFO (if still queued) and the
// lookup table. This is the explicit reap operation; nothing else ever
// evicts a job record.
func (q *Queue) Remove(id string) (job.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.byID[id]
	if !ok {
		return job.Job{}, false
	}
	delete(q.byID, id)
	q.detachLocked(id)
	return j.Snapshot(), true
}

// detachLocked drops the FIFO entry for id, if present. Callers hold
// the queue lock.
func (q *Queue) detachLocked(id string) {
	for i, queued := range q.fifo {
		if queued.ID == id {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			return
		}
	}
}

// Position returns the 1-based FIFO position of a still-queued job.
// Positions are recomputed on demand, not stored.
func (q *Queue) Position(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pos := 0
	for _, j := range q.fifo {
		if j.Status != job.StatusQueued {
			continue
		}
		pos++
		if j.ID == id {
			return pos, true
		}
	}
	return 0, false
}

// Size returns the number of jobs waiting in the FIFO.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, j := range q.fifo {
		if j.Status == job.StatusQueued {
			n++
		}
	}
	return n
}

// ActiveCount returns the number of registered jobs in non-terminal
// states (queued, running or paused).
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, j := range q.byID {
		if !j.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// Len returns the total number of registered jobs, terminal included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}

// Jobs returns snapshots of every registered job. Ordering is
// unspecified.
func (q *Queue) Jobs() []job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]job.Job, 0, len(q.byID))
	for _, j := range q.byID {
		out = append(out, j.Snapshot())
	}
	return out
}
