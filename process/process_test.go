package process

import (
	"testing"
	"time"

	"github.com/sxrt/sxrt/cell"
	"github.com/sxrt/sxrt/heap"
)

func newTestScheduler(t *testing.T) (*heap.Heap, *Scheduler, *Frame) {
	t.Helper()
	h := heap.New(64, 80)
	sched := NewScheduler(h, 10, 256, 8)
	h.SetActiveStack(sched)

	main, err := sched.CreateProcess(10, func(Ref) (Ref, error) { return heap.NIL, nil }, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.PrimeProcess(main); err != nil {
		t.Fatal(err)
	}
	main.State = Running
	return h, sched, main
}

func TestSwitchToRunsWorkerAndReturnsToMain(t *testing.T) {
	h, sched, main := newTestScheduler(t)

	ran := false
	worker, err := sched.CreateProcess(10, func(Ref) (Ref, error) {
		ran = true
		one, _ := h.MkInt(1)
		return one, nil // non-NIL terminates Run's loop after one pass
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.PrimeProcess(worker); err != nil {
		t.Fatal(err)
	}

	if err := sched.SwitchTo(worker); err != nil {
		t.Fatal(err)
	}

	if !ran {
		t.Error("worker thunk never ran")
	}
	if sched.Current() != main {
		t.Errorf("Current() = %p, want main %p", sched.Current(), main)
	}
	if worker.State != Dead {
		t.Errorf("worker.State = %v, want Dead", worker.State)
	}
}

func TestCreateProcessLocalsSeededFromCurrent(t *testing.T) {
	_, sched, main := newTestScheduler(t)
	main.Locals.Set(3, 77)

	worker, err := sched.CreateProcess(10, func(Ref) (Ref, error) {
		one := Ref(1)
		return one, nil
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := worker.Locals.Get(3); got != 77 {
		t.Errorf("new process locals[3] = %v, want 77 (copied from current)", got)
	}
}

func TestYieldSwitchesOnExhaustedAttention(t *testing.T) {
	h, sched, main := newTestScheduler(t)
	main.Attention = 1
	main.Remaining = 0 // already exhausted

	switched := false
	worker, err := sched.CreateProcess(10, func(Ref) (Ref, error) {
		switched = true
		one, _ := h.MkInt(1)
		return one, nil
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.PrimeProcess(worker); err != nil {
		t.Fatal(err)
	}

	if err := sched.Yield(1); err != nil {
		t.Fatal(err)
	}
	if !switched {
		t.Error("Yield with exhausted attention did not switch to the next process")
	}
}

func TestAtomicBlockSuppressesYield(t *testing.T) {
	_, sched, main := newTestScheduler(t)
	main.Attention = 1
	main.Remaining = 0

	sched.EnterAtomic()
	switched := false
	worker, err := sched.CreateProcess(10, func(Ref) (Ref, error) {
		switched = true
		return Ref(1), nil
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.PrimeProcess(worker); err != nil {
		t.Fatal(err)
	}

	if err := sched.Yield(1); err != nil {
		t.Fatal(err)
	}
	if switched {
		t.Error("Yield switched processes while inside an atomic block")
	}
	sched.LeaveAtomic()
}

func TestTimeoutIndexTracksEarliestDeadline(t *testing.T) {
	_, sched, main := newTestScheduler(t)
	main.HasTimeout = true
	main.Deadline = time.Now().Add(50 * time.Millisecond)
	sched.TrackTimeout(main)

	dl, ok := sched.EarliestDeadline()
	if !ok {
		t.Fatal("EarliestDeadline reported none tracked")
	}
	if !dl.Equal(main.Deadline) {
		t.Errorf("EarliestDeadline = %v, want %v", dl, main.Deadline)
	}

	sched.UntrackTimeout(main)
	if _, ok := sched.EarliestDeadline(); ok {
		t.Error("EarliestDeadline still reports an entry after UntrackTimeout")
	}
}

func TestMarkRootsMarksCurrentProcessValueStack(t *testing.T) {
	h, sched, main := newTestScheduler(t)
	h.SetRootSet(sched)

	r, err := h.MkInt(5)
	if err != nil {
		t.Fatal(err)
	}
	main.Values.Push(r)

	if err := h.GC(0); err != nil {
		t.Fatal(err)
	}
	if h.Tag(r) != cell.Int {
		t.Errorf("value rooted by the current process's value stack was reclaimed by GC")
	}
	// Only NIL and r are live, so every other cell is back on the free list.
	if h.FreeCount() != h.Size()-2 {
		t.Errorf("FreeCount after GC = %d, want %d (rooted value kept)", h.FreeCount(), h.Size()-2)
	}
}
