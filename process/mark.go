package process

import "github.com/sxrt/sxrt/heap"

// MarkRoots implements heap.RootSet for the process ring: every frame's
// value stack, locals array, binding-stack snapshot values and mailbox
// are GC roots for as long as the frame is reachable from the ring
// (spec.md §4.1's root set, §4.4's per-process state). s.current is
// marked as well, in case it is no longer linked into the ring. A frame
// that has been created but not yet primed is neither in the ring nor
// current, so its cells are not marked.
func (s *Scheduler) MarkRoots(h *heap.Heap) {
	seen := make(map[*Frame]bool)
	mark := func(p *Frame) {
		if p == nil || seen[p] {
			return
		}
		seen[p] = true
		markFrame(h, p)
	}
	s.forEachFrame(mark)
	mark(s.current)
}

func markFrame(h *heap.Heap, p *Frame) {
	p.Values.Each(func(r heap.Ref) { h.Mark(r) })
	p.Locals.Each(func(r heap.Ref) { h.Mark(r) })
	if p.bindings != nil {
		p.bindings.EachValue(func(r heap.Ref) { h.Mark(r) })
	}
	h.Mark(p.Mailbox)
	h.Mark(p.MailboxEnd)
}
