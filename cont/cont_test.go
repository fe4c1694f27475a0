package cont

import (
	"testing"

	"github.com/sxrt/sxrt/heap"
	"github.com/sxrt/sxrt/process"
)

func newTestRig(t *testing.T) (*heap.Heap, *process.Scheduler) {
	t.Helper()
	h := heap.New(256, 80)
	sched := process.NewScheduler(h, 10, 256, 8)
	h.SetActiveStack(sched)

	main, err := sched.CreateProcess(10, func(heap.Ref) (heap.Ref, error) { return heap.NIL, nil }, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.PrimeProcess(main); err != nil {
		t.Fatal(err)
	}
	main.State = process.Running
	return h, sched
}

func TestCallCCReturnsProcResultWhenKNeverInvoked(t *testing.T) {
	h, sched := newTestRig(t)

	result, err := CallCC(h, sched, func(k Ref) (Ref, error) {
		v, _ := h.MkInt(5)
		return v, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.IntValue(result) != 5 {
		t.Errorf("result = %v, want 5", h.IntValue(result))
	}
}

func TestCallCCReturnsInvokedValueWhenKCalledSynchronously(t *testing.T) {
	h, sched := newTestRig(t)

	result, err := CallCC(h, sched, func(k Ref) (Ref, error) {
		nf, ok := h.NativeFnOf(k)
		if !ok {
			t.Fatal("continuation cell has no native callable")
		}
		seven, _ := h.MkInt(7)
		args, _ := h.Cons(seven, heap.NIL)
		// Invoking k never returns to this point; it escapes straight
		// out of CallCC with the supplied value.
		return nf.Fn(args)
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.IntValue(result) != 7 {
		t.Errorf("result = %v, want 7", h.IntValue(result))
	}
}

func TestInvokingContinuationAfterCallCCReturnsReportsGone(t *testing.T) {
	h, sched := newTestRig(t)

	var savedK Ref
	_, err := CallCC(h, sched, func(k Ref) (Ref, error) {
		savedK = k
		return heap.NIL, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	nf, ok := h.NativeFnOf(savedK)
	if !ok {
		t.Fatal("continuation cell has no native callable")
	}
	if _, err := nf.Fn(heap.NIL); err != ErrContinuationGone {
		t.Errorf("invoking a continuation past its CallCC's return = %v, want ErrContinuationGone", err)
	}
}

func TestInvokingContinuationFromAnotherProcessReportsWrongProcess(t *testing.T) {
	h, sched := newTestRig(t)

	var savedK Ref
	var invokeErr error
	_, err := CallCC(h, sched, func(k Ref) (Ref, error) {
		savedK = k

		worker, werr := sched.CreateProcess(10, func(heap.Ref) (heap.Ref, error) {
			nf, _ := h.NativeFnOf(savedK)
			_, invokeErr = nf.Fn(heap.NIL)
			one, _ := h.MkInt(1)
			return one, nil
		}, false)
		if werr != nil {
			t.Fatal(werr)
		}
		if err := sched.PrimeProcess(worker); err != nil {
			t.Fatal(err)
		}
		if err := sched.SwitchTo(worker); err != nil {
			t.Fatal(err)
		}
		return heap.NIL, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if invokeErr != ErrWrongProcess {
		t.Errorf("cross-process invocation = %v, want ErrWrongProcess", invokeErr)
	}
}
