package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"labkernel/internal/defs"
)

// scenario: three envs with priorities 1, 2, 3 enqueued in that
// order; across two full rounds the scheduler must dispatch the
// exact sequence the spec's worked example gives (spec 8 scenario 6).
func TestSchedulerTwelveTickSequence(t *testing.T) {
	s := NewSched()
	e1 := &Env_t{Id: mkTid(1, 0), Priority: 1, Status: defs.EnvRunnable}
	e2 := &Env_t{Id: mkTid(2, 0), Priority: 2, Status: defs.EnvRunnable}
	e3 := &Env_t{Id: mkTid(3, 0), Priority: 3, Status: defs.EnvRunnable}
	s.Enqueue(e1)
	s.Enqueue(e2)
	s.Enqueue(e3)

	want := []int{1, 2, 2, 3, 3, 3, 1, 2, 2, 3, 3, 3}
	got := make([]int, 0, 12)
	for i := 0; i < 12; i++ {
		got = append(got, s.Yield().Priority)
	}
	assert.Equal(t, want, got)
}

func TestSchedulerForcesRescheduleWhenCurrentBlocks(t *testing.T) {
	s := NewSched()
	e1 := &Env_t{Id: mkTid(1, 0), Priority: 5, Status: defs.EnvRunnable}
	e2 := &Env_t{Id: mkTid(2, 0), Priority: 1, Status: defs.EnvRunnable}
	s.Enqueue(e1)
	s.Enqueue(e2)

	cur := s.Yield()
	assert.Equal(t, e1, cur)

	e1.Status = defs.EnvNotRunnable
	cur = s.Yield()
	assert.Equal(t, e2, cur, "a non-runnable current env forces an immediate reschedule")
}

func TestDequeueRemovesFromWhicheverQueue(t *testing.T) {
	s := NewSched()
	e1 := &Env_t{Id: mkTid(1, 0), Priority: 1, Status: defs.EnvRunnable}
	s.Enqueue(e1)
	s.Dequeue(e1)
	assert.False(t, e1.enqueued)
	assert.Empty(t, s.q[0])
}
