package heap

import (
	"testing"
	"time"

	"github.com/sxrt/sxrt/cell"
)

// fakeStack is a minimal ActiveStack for tests that don't need process.
type fakeStack struct{ data []Ref }

func (s *fakeStack) Push(r Ref)     { s.data = append(s.data, r) }
func (s *fakeStack) Pos() int       { return len(s.data) }
func (s *fakeStack) Unwind(pos int) { s.data = s.data[:pos] }

// MarkRoots lets a fakeStack also serve as the heap's RootSet, so cells
// pushed onto it are GC roots the way a process's value stack is.
func (s *fakeStack) MarkRoots(h *Heap) {
	for _, r := range s.data {
		h.Mark(r)
	}
}

func TestConsAndAccessors(t *testing.T) {
	h := New(64, 80)
	a, err := h.MkInt(1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.MkInt(2)
	if err != nil {
		t.Fatal(err)
	}
	pair, err := h.Cons(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if h.Tag(pair) != cell.Cons {
		t.Errorf("Tag(pair) = %v, want Cons", h.Tag(pair))
	}
	if h.Head(pair) != a || h.Tail(pair) != b {
		t.Errorf("Head/Tail = %v/%v, want %v/%v", h.Head(pair), h.Tail(pair), a, b)
	}
	if got := h.IntValue(a); got != 1 {
		t.Errorf("IntValue(a) = %d, want 1", got)
	}
}

func TestSetHeadSetTailMutateInPlace(t *testing.T) {
	h := New(64, 80)
	a, _ := h.MkInt(1)
	b, _ := h.MkInt(2)
	c, _ := h.MkInt(3)
	pair, _ := h.Cons(a, b)
	h.SetHead(pair, c)
	if h.Head(pair) != c {
		t.Errorf("SetHead did not take effect")
	}
}

func TestGCReclaimsUnreachableCells(t *testing.T) {
	h := New(16, 80)
	before := h.FreeCount()

	// Allocate a cons cell with nothing rooting it (no active stack
	// installed), then force a collection: it must come back free.
	_, err := h.Cons(NIL, NIL)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.GC(0); err != nil {
		t.Fatal(err)
	}
	if h.FreeCount() != before {
		t.Errorf("FreeCount after GC = %d, want %d (unrooted cell reclaimed)", h.FreeCount(), before)
	}
}

func TestGCPreservesRootedCells(t *testing.T) {
	h := New(16, 80)
	active := &fakeStack{}
	h.SetActiveStack(active)
	h.SetRootSet(active)

	r, err := h.Cons(NIL, NIL)
	if err != nil {
		t.Fatal(err)
	}
	// r is already on active's stack via Cons's own push, and active is
	// the root set.
	if err := h.GC(0); err != nil {
		t.Fatal(err)
	}
	if h.Tag(r) != cell.Cons {
		t.Errorf("rooted cell was reclaimed: Tag(r) = %v", h.Tag(r))
	}
	// Only NIL and r are live, so every other cell is back on the free list.
	if h.FreeCount() != h.Size()-2 {
		t.Errorf("FreeCount after GC = %d, want %d (rooted cell kept)", h.FreeCount(), h.Size()-2)
	}
}

func TestHeapGrowsWhenFreeListExhausted(t *testing.T) {
	h := New(8, 80) // cell 0 is NIL, 7 free cells
	active := &fakeStack{}
	h.SetActiveStack(active)
	h.SetRootSet(active) // every allocated cell stays rooted

	sizeBefore := h.Size()
	for i := 0; i < 100; i++ {
		if _, err := h.Cons(NIL, NIL); err != nil {
			t.Fatalf("Cons #%d failed: %v", i, err)
		}
	}
	if h.Size() <= sizeBefore {
		t.Errorf("heap never grew: size stayed at %d after 100 allocations into an 8-cell arena", h.Size())
	}
}

func TestMkDestructorRunsOnSweep(t *testing.T) {
	h := New(16, 80)
	ran := false
	_, err := h.MkDestructor(
		func(args Ref) (Ref, error) { return NIL, nil },
		nil,
		func() { ran = true },
	)
	if err != nil {
		t.Fatal(err)
	}
	// Nothing roots the destructor cell, so GC must sweep it and invoke
	// the destructor.
	if err := h.GC(0); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("destructor was not invoked for an unreachable destructor cell")
	}
}

func TestAllocDuringSweepIsRejected(t *testing.T) {
	h := New(16, 80)
	var allocErr error
	_, err := h.MkDestructor(
		func(args Ref) (Ref, error) { return NIL, nil },
		nil,
		func() {
			_, allocErr = h.MkInt(1)
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.GC(0); err != nil {
		t.Fatal(err)
	}
	if allocErr != ErrAllocDuringSweep {
		t.Errorf("alloc from destructor = %v, want ErrAllocDuringSweep", allocErr)
	}
}

func TestMarkIsIdempotentOnCycles(t *testing.T) {
	h := New(16, 80)
	a, _ := h.MkInt(1)
	pair, _ := h.Cons(a, NIL)
	h.SetTail(pair, pair) // cyclic: pair's tail points to itself

	done := make(chan struct{})
	go func() {
		h.Mark(pair) // must terminate despite the cycle
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Mark did not terminate on a self-referential cell")
	}
}

func TestFloatRoundTrip(t *testing.T) {
	h := New(16, 80)
	r, err := h.MkFloat(3.5)
	if err != nil {
		t.Fatal(err)
	}
	if got := h.FloatValue(r); got != 3.5 {
		t.Errorf("FloatValue = %v, want 3.5", got)
	}
}
