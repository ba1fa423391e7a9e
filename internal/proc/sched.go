package proc

import (
	"sync"

	"labkernel/internal/defs"
)

/// Sched_t implements the two-queue priority-quantum round-robin
/// dispatcher. Grounded line-for-line on
/// original_source/lib/sched.c's sched_yield: two FIFO queues, a
/// cursor `pos` selecting which queue is currently being drained,
/// and a `remaining` tick counter that is decremented on every call
/// -- including calls made while still scanning for the next
/// runnable env, which is the §9 Open Question this type preserves
/// rather than "fixes".
type Sched_t struct {
	mu        sync.Mutex
	q         [2][]*Env_t
	pos       int
	remaining int
	cur       *Env_t
}

/// NewSched returns an empty scheduler; the first call to Yield will
/// find no current env and fall straight into the queue scan.
func NewSched() *Sched_t {
	return &Sched_t{}
}

/// Enqueue places e on Q[0], the queue sched_yield always inserts a
/// freshly-runnable env into (env_create's LIST_INSERT_HEAD onto the
/// active list). e must be Runnable.
func (s *Sched_t) Enqueue(e *Env_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.enqueued = true
	s.q[0] = append(s.q[0], e)
}

/// Dequeue removes e from whichever queue holds it, if any -- used
/// when an env blocks in ipc_recv or is destroyed while runnable.
func (s *Sched_t) Dequeue(e *Env_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !e.enqueued {
		return
	}
	for i := range s.q {
		for j, cand := range s.q[i] {
			if cand == e {
				s.q[i] = append(s.q[i][:j], s.q[i][j+1:]...)
				e.enqueued = false
				return
			}
		}
	}
}

/// NumRunnable reports how many envs currently sit in either queue,
/// for metrics reporting -- it does not count the currently-running
/// env separately since Yield always keeps it on one of the queues.
func (s *Sched_t) NumRunnable() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q[0]) + len(s.q[1])
}

/// Current returns the env the scheduler last dispatched, if any.
func (s *Sched_t) Current() *Env_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

/// Yield advances the scheduler by one tick and returns the env that
/// should now run. It mirrors sched_yield's while loop exactly: the
/// quantum counter is decremented at the top of every pass through
/// the loop, including passes spent only flipping queues while
/// scanning for a runnable env, before the loop condition is
/// re-tested.
func (s *Sched_t) Yield() *Env_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		s.remaining--
		if s.remaining > 0 && s.cur != nil && s.cur.Status == defs.EnvRunnable {
			break
		}
		if len(s.q[s.pos]) == 0 {
			s.pos = 1 - s.pos
		}
		if len(s.q[s.pos]) == 0 {
			continue
		}
		e := s.q[s.pos][0]
		s.q[s.pos] = s.q[s.pos][1:]
		e.enqueued = false
		s.q[1-s.pos] = append(s.q[1-s.pos], e)
		e.enqueued = true
		s.remaining = e.Priority
		s.cur = e
		break
	}
	return s.cur
}
