package heap

import (
	"expvar"
	"fmt"
	"sync/atomic"
)

// Stats mirrors, at a much smaller scale, the kind of counters the
// teacher's runtime/mstats.go exposes for the real Go heap: size, free
// count, and how many collections/growths have happened.
type Stats struct {
	Size        int
	Free        int
	Collections int64
	Grows       int64
}

// Stats returns a snapshot of the heap's counters.
func (h *Heap) Stats() Stats {
	s := h.stats
	s.Size = len(h.cells)
	s.Free = h.freeCount
	return s
}

var heapInstanceSeq int64

// PublishStats registers an expvar.Map named "<prefix>.heap.<n>" (e.g.
// "sxrt.heap.1" for the first call with prefix "sxrt")
// whose Var entries report this heap's live counters on demand, the way
// the teacher's expvar/expvar.go publishes process-wide counters for
// /debug/vars. Each call publishes under a distinct, process-unique name
// so multiple Env instances in one binary do not collide.
func (h *Heap) PublishStats(prefix string) *expvar.Map {
	id := atomic.AddInt64(&heapInstanceSeq, 1)
	name := fmt.Sprintf("%s.heap.%d", prefix, id)
	m := expvar.NewMap(name)
	m.Set("size", expvar.Func(func() interface{} { return h.Size() }))
	m.Set("free", expvar.Func(func() interface{} { return h.FreeCount() }))
	m.Set("collections", expvar.Func(func() interface{} { return h.stats.Collections }))
	m.Set("grows", expvar.Func(func() interface{} { return h.stats.Grows }))
	return m
}
