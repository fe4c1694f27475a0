package heap

import (
	"math"
	"math/bits"

	"github.com/sxrt/sxrt/cell"
)

func floatBits(v float64) int64 { return int64(math.Float64bits(v)) }

// FloatValue decodes a FLOAT cell's payload back into a float64.
func (h *Heap) FloatValue(r Ref) float64 {
	return math.Float64frombits(uint64(h.cells[cell.Unquote(r)].a))
}

// IntValue decodes an INT cell's payload.
func (h *Heap) IntValue(r Ref) int64 { return h.cells[cell.Unquote(r)].a }

// setMark/isMarked/clearMark manipulate the packed 1-bit-per-cell bitmap,
// spec.md §3's "packed mark bitmap of N bits".
func (h *Heap) setMark(r Ref, v bool) {
	byteIdx := r / 8
	bit := byte(1) << uint(r%8)
	if v {
		h.mark[byteIdx] |= bit
	} else {
		h.mark[byteIdx] &^= bit
	}
}

func (h *Heap) isMarked(r Ref) bool {
	return h.mark[r/8]&(1<<uint(r%8)) != 0
}

// Mark marks r and, for compound cells, transitively marks every cell it
// references, applying the quick-quote reversal before recursing (spec.md
// §4.1 step 5). It is idempotent: an already-marked cell returns
// immediately, which is what makes cyclic graphs (spec.md §9) safe to
// mark without a visited-set.
func (h *Heap) Mark(r Ref) {
	r = cell.Unquote(r)
	if r == NIL || h.isMarked(r) {
		return
	}
	h.setMark(r, true)
	switch h.cells[r].tag {
	case cell.Cons, cell.Lambda:
		h.Mark(cell.Unquote(Ref(h.cells[r].a)))
		h.Mark(cell.Unquote(Ref(h.cells[r].b)))
	case cell.Symbol:
		h.Mark(Ref(h.cells[r].a)) // value slot
		h.Mark(Ref(h.cells[r].b)) // plist
	case cell.NativeFn:
		if obj, ok := h.objects[r]; ok && obj.Type.Mark != nil {
			obj.Type.Mark(obj.Data, h.Mark)
		}
		// Plain native functions (no functional-object wrapper) close
		// over Go values only; there is nothing heap-side to trace.
	case cell.Int, cell.Float, cell.Text:
		// leaf cells, nothing further to mark
	}
}

// GC runs one full mark-sweep collection. If the post-sweep free fraction
// is below (100 - growThreshold)%, the heap grows; requested (the number
// of cells the caller is about to need) only enters the size of that
// growth. It never changes what gets collected (spec.md §4.1).
func (h *Heap) GC(requested int) error {
	h.stats.Collections++

	for i := range h.mark {
		h.mark[i] = 0
	}
	h.setMark(0, true) // NIL

	if h.roots != nil {
		h.roots.MarkRoots(h)
	}

	h.sweep()

	free := h.freeCount
	size := len(h.cells)
	if free < size*(100-h.growThreshold)/100 {
		return h.grow(h.nextSize(requested))
	}
	return nil
}

// sweep walks the arena a byte (8 cells) at a time, fast-pathing runs
// that are entirely clear (bulk free) or entirely set (skip), per
// spec.md §4.1 step 7. The fast path is the same shape as the
// bit-population scanning in Maemo32-SupraX_Legacy's proto/ooo window
// scheduler, generalized from math/bits.OnesCount8 plus TrailingZeros8 to
// splice free runs without a per-cell branch in the common case.
func (h *Heap) sweep() {
	h.freeHead = NIL
	h.freeCount = 0
	tail := Ref(-1) // sentinel: no tail linked yet

	link := func(r Ref) {
		if h.freeCount == 0 {
			h.freeHead = r
		} else {
			h.cells[tail].b = int64(r)
		}
		tail = r
		h.freeCount++

		// A freed NATIVEFN cell's out-of-band payload (if any) must not
		// survive into the next cell that recycles this index — otherwise
		// NativeFnOf/Object would return a stale payload for an unrelated
		// live cell, and the map itself would grow without bound across
		// collections.
		delete(h.nativeFns, r)
		delete(h.objects, r)
	}

	h.reclaimSpecials()

	nBytes := len(h.mark)
	for byteIdx := 0; byteIdx < nBytes; byteIdx++ {
		b := h.mark[byteIdx]
		base := Ref(byteIdx * 8)
		if base == 0 {
			// Cell 0 (NIL) lives in this byte and must never be freed;
			// handle it cell-by-cell below instead of the bulk paths.
		} else if b == 0 {
			for i := 0; i < 8; i++ {
				link(base + Ref(i))
			}
			continue
		} else if b == 0xFF {
			continue
		}
		// Partial byte: walk only the clear bits via TrailingZeros8 on
		// the complement, instead of testing all 8 positions.
		clear := ^b
		for clear != 0 {
			i := bits.TrailingZeros8(clear)
			clear &^= 1 << uint(i)
			r := base + Ref(i)
			if int(r) >= len(h.cells) || r == 0 {
				continue
			}
			link(r)
		}
	}
	if h.freeCount > 0 {
		h.cells[tail].b = int64(NIL)
	}
	h.stats.Free = h.freeCount
}

// reclaimSpecials runs the unmarked entries of the specials list (spec.md
// §4.1 step 6 / §3's "specials list"), invoking each destructor and
// splicing the entry out; marked entries are left in place. Per
// SPEC_FULL.md §D.2, any allocation attempted from within a destructor is
// rejected rather than left undefined.
func (h *Heap) reclaimSpecials() {
	h.sweeping = true
	defer func() { h.sweeping = false }()

	for e := h.specials.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*specialEntry)
		if !h.isMarked(entry.ref) {
			entry.destroy()
			h.specials.Remove(e)
		}
		e = next
	}
}

func (h *Heap) nextSize(requested int) int {
	need := len(h.cells) - h.freeCount + requested
	target := len(h.cells) * 2
	for target < 2*need {
		target *= 2
	}
	return target
}

// grow reallocates the cell array and mark bitmap to newSize, appending
// the new cells to the free list. References remain valid because this
// is a realloc-style growth: existing indices keep their meaning (spec.md
// §4.1).
func (h *Heap) grow(newSize int) error {
	newSize = (newSize + 7) &^ 7
	if newSize <= len(h.cells) {
		return nil
	}
	oldSize := len(h.cells)
	grown := make([]cellData, newSize)
	copy(grown, h.cells)
	h.cells = grown

	grownMark := make([]byte, newSize/8)
	copy(grownMark, h.mark)
	h.mark = grownMark

	h.initFreeList(oldSize, newSize)
	h.stats.Size = newSize
	h.stats.Free = h.freeCount
	h.stats.Grows++
	return nil
}
