// Package limits provides an atomically-decremented resource budget,
// used by mem to bound the physical page arena. Trimmed from the
// teacher's Syslimit_t (which also tracked sockets, futexes, ARP and
// route table entries for biscuit's network stack -- all of which this
// spec has no component for, since networked IPC is an explicit
// Non-goal) down to the one counter this spec's mem package needs.
package limits

import "sync/atomic"

/// Sysatomic_t is a numeric budget that can be atomically given to and
/// taken from.
type Sysatomic_t int64

/// Given increases the budget by n.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64((*int64)(s), int64(n))
}

/// Taken tries to decrement the budget by n, failing (and leaving the
/// budget unchanged) if that would take it negative.
func (s *Sysatomic_t) Taken(n uint) bool {
	if atomic.AddInt64((*int64)(s), -int64(n)) >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(s), int64(n))
	return false
}

/// Take decrements the budget by one.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

/// Give increments the budget by one.
func (s *Sysatomic_t) Give() { s.Given(1) }

/// Remaining returns the current budget.
func (s *Sysatomic_t) Remaining() int64 {
	return atomic.LoadInt64((*int64)(s))
}
