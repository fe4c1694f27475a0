package process

import (
	cheap "container/heap"
	"time"
)

// timeoutItem is one WAITING-with-deadline process tracked in the
// scheduler's timeout index (spec.md §4.4's HAS_TIMEOUT state bit).
type timeoutItem struct {
	p        *Frame
	deadline time.Time
	index    int
}

// timeoutQueue is a container/heap min-heap ordered by deadline. SwitchTo
// itself still discovers a woken process by walking the ring (mirroring
// the original's switch_to_process), but this index lets an embedder's
// outer driver loop ask "how long can I safely block" instead of busy
// polling every WAITING process once per tick.
type timeoutQueue []*timeoutItem

func (q timeoutQueue) Len() int { return len(q) }
func (q timeoutQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q timeoutQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *timeoutQueue) Push(x interface{}) {
	item := x.(*timeoutItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *timeoutQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// TrackTimeout registers p's current Deadline in the timeout index.
// Callers (package mailbox's Receive) call this just before parking p
// WAITING with HasTimeout set.
func (s *Scheduler) TrackTimeout(p *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeoutIdx == nil {
		s.timeoutIdx = make(map[*Frame]*timeoutItem)
	}
	if _, already := s.timeoutIdx[p]; already {
		return
	}
	item := &timeoutItem{p: p, deadline: p.Deadline}
	s.timeoutIdx[p] = item
	cheap.Push(&s.timeouts, item)
}

// UntrackTimeout removes p from the timeout index once it wakes, by
// message arrival or deadline, so stale entries don't accumulate.
func (s *Scheduler) UntrackTimeout(p *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.timeoutIdx[p]
	if !ok {
		return
	}
	if item.index >= 0 && item.index < len(s.timeouts) {
		cheap.Remove(&s.timeouts, item.index)
	}
	delete(s.timeoutIdx, p)
}

// EarliestDeadline reports the soonest pending timeout across every
// WAITING process in the ring, or ok=false if none are tracked.
func (s *Scheduler) EarliestDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timeouts) == 0 {
		return time.Time{}, false
	}
	return s.timeouts[0].deadline, true
}
