// Package heap implements the cell arena: a dense, fixed-size-cell store
// with a free-list allocator, a packed mark bitmap, and the mark-sweep
// collector described in spec.md §3–4.1. It is deliberately ignorant of
// symbols and processes — those register themselves as root sources (see
// RootSet) and as the active value-stack target (see ActiveStack) so that
// this package has no import-cycle dependency on symtab or process.
package heap

import (
	"container/list"
	"errors"

	"github.com/sxrt/sxrt/cell"
)

// Ref and Tag are the cell package's addressing types, re-exported here so
// most callers of heap need not also import cell for everyday use.
type Ref = cell.Ref
type Tag = cell.Tag

// NIL is cell.NIL re-exported for convenience.
const NIL = cell.NIL

// ErrAllocDuringSweep is returned by any Mk*/Cons call made from within a
// destructor callback invoked during Sweep. The original implementation
// leaves this undefined behavior (spec.md §9, open question); this port
// makes it a reported error instead of free-list corruption.
var ErrAllocDuringSweep = errors.New("heap: allocation attempted from within a destructor")

// ErrOutOfMemory is returned when growth fails outright — a fatal
// condition for the owning Env (spec.md §7).
var ErrOutOfMemory = errors.New("heap: out of memory")

// ActiveStack is the value stack of whichever process currently holds the
// processor. Cons pushes every newly allocated cell here so it is rooted
// until the caller re-pushes or discards it (spec.md §4.3's evaluator
// contract). Implemented by process.Scheduler.
type ActiveStack interface {
	Push(r Ref)
	Pos() int
	Unwind(pos int)
}

// RootSet supplies the non-arena GC roots: the symbol table and the
// process ring (spec.md §4.1 GC steps 3–4). Implemented by a small adapter
// in package env that composes symtab.Table and process.Scheduler.
type RootSet interface {
	MarkRoots(h *Heap)
}

type cellData struct {
	tag  Tag
	a, b int64
}

// Heap is the cell arena plus everything needed to reclaim it.
type Heap struct {
	cells []cellData
	mark  []byte // 1 bit per cell, packed 8/byte

	freeHead  Ref
	freeCount int

	growThreshold int // percent full (of size) that triggers growth after a GC

	specials  *list.List // of *specialEntry, see alloc.go
	nativeFns map[Ref]*NativeFn
	textBufs  map[Ref]*TextBuffer
	objects   map[Ref]*Object

	active ActiveStack
	roots  RootSet

	stats    Stats
	sweeping bool // true while Sweep is invoking destructors
}

// New allocates a heap of the given initial size (rounded up to a
// multiple of 8, per the original implementation's byte-aligned mark
// bitmap) with the given grow-threshold percentage (spec.md §4.1).
func New(size int, growThresholdPercent int) *Heap {
	if size < 8 {
		size = 8
	}
	size = (size + 7) &^ 7
	if growThresholdPercent <= 0 || growThresholdPercent >= 100 {
		growThresholdPercent = 80
	}

	h := &Heap{
		cells:         make([]cellData, size),
		mark:          make([]byte, size/8),
		growThreshold: growThresholdPercent,
		specials:      list.New(),
		nativeFns:     make(map[Ref]*NativeFn),
		textBufs:      make(map[Ref]*TextBuffer),
		objects:       make(map[Ref]*Object),
	}
	h.initFreeList(1, size) // cell 0 is NIL, permanently allocated
	h.setMark(0, true)      // NIL is always marked
	h.stats.Size = size
	h.stats.Free = size - 1
	return h
}

// SetActiveStack installs the value stack that Cons pushes newly
// allocated cells onto. Called once by env during wiring; the installed
// process.Scheduler forwards every push to whichever process is current,
// so a process switch does not reinstall it.
func (h *Heap) SetActiveStack(s ActiveStack) { h.active = s }

// SetRootSet installs the symbol-table + process-ring root source.
func (h *Heap) SetRootSet(rs RootSet) { h.roots = rs }

// ActivePos and ActiveUnwind expose the stack_pos/stack_unwind protocol
// of spec.md §4.3 to callers outside package heap (e.g. mailbox.Init)
// that need to discard temporary roots once they've served their
// purpose. A nil active stack makes ActivePos a no-op position of 0.
func (h *Heap) ActivePos() int {
	if h.active == nil {
		return 0
	}
	return h.active.Pos()
}

func (h *Heap) ActiveUnwind(pos int) {
	if h.active != nil {
		h.active.Unwind(pos)
	}
}

// Size returns the current arena size in cells.
func (h *Heap) Size() int { return len(h.cells) }

// FreeCount returns the number of cells presently on the free list.
func (h *Heap) FreeCount() int { return h.freeCount }

func (h *Heap) initFreeList(from, to int) {
	for i := from; i < to-1; i++ {
		h.cells[i].b = int64(i + 1)
	}
	if to > from {
		h.cells[to-1].b = int64(NIL)
	}
	if h.freeCount == 0 {
		h.freeHead = Ref(from)
	} else {
		// Splice the new run onto the tail of the existing free list.
		tail := h.freeHead
		for h.cells[tail].b != int64(NIL) {
			tail = Ref(h.cells[tail].b)
		}
		h.cells[tail].b = int64(from)
	}
	h.freeCount += to - from
}

// Tag reports the variant tag of a live cell reference.
func (h *Heap) Tag(r Ref) Tag { return h.cells[cell.Unquote(r)].tag }

// Head returns the head slot of a CONS or LAMBDA (formals) cell, with the
// quick-quote bit resolved away.
func (h *Heap) Head(r Ref) Ref {
	return cell.Unquote(Ref(h.cells[cell.Unquote(r)].a))
}

// Tail returns the tail slot of a CONS or LAMBDA (body) cell.
func (h *Heap) Tail(r Ref) Ref {
	return Ref(h.cells[cell.Unquote(r)].b)
}

// SetHead mutates the head slot in place (set-car!-equivalent).
func (h *Heap) SetHead(r, v Ref) { h.cells[cell.Unquote(r)].a = int64(v) }

// SetTail mutates the tail slot in place (set-cdr!-equivalent).
func (h *Heap) SetTail(r, v Ref) { h.cells[cell.Unquote(r)].b = int64(v) }
