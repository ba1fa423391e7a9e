package accnt

import "sync/atomic"

/**
 * Accnt_t accumulates per-process accounting information.
 *
 * Both Userns and Sysns store simulated time in nanoseconds, credited
 * by the scheduler and trap-handling paths rather than sampled off the
 * wall clock -- every event in this simulator is ordered by Sched_t's
 * tick counter, not real time.
 */
type Accnt_t struct {
	/// Nanoseconds of user time consumed, credited the env's Priority
	/// on every Yield that returns it.
	Userns int64
	/// Nanoseconds of system time consumed, credited per trap handled.
	Sysns int64
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}
