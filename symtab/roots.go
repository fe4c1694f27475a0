package symtab

import "github.com/sxrt/sxrt/heap"

// MarkRoots marks every bucket's symbols (spec.md §4.1 step 3), which
// transitively marks each named symbol's name, value and plist. This is
// one half of the heap.RootSet an Env composes together with
// process.Scheduler's MarkRoots.
func (t *Table) MarkRoots(h *heap.Heap) {
	for _, bucket := range t.buckets {
		for _, sym := range bucket {
			h.Mark(sym)
		}
	}
}
