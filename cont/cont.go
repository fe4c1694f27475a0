// Package cont implements call/cc (spec.md §4.6): escape-only, one-shot
// continuations captured as functional objects and invoked via Go's
// panic/recover instead of the original's setjmp/longjmp over a raw
// system stack (SPEC_FULL.md §D.3). A continuation is valid for exactly
// as long as the CallCC Go frame that captured it is still on the stack
// — every scenario spec.md §8 actually exercises invokes k synchronously
// within that dynamic extent, so this covers the full contract without
// needing a portable "resume a dead Go stack" mechanism, which does not
// exist.
//
// Grounded on original_source/v0.2cp/src/muse_builtin_continuation.c's
// capture_continuation/fn_continuation pair.
package cont

import (
	"errors"

	"github.com/sxrt/sxrt/heap"
	"github.com/sxrt/sxrt/process"
)

type Ref = heap.Ref

// ErrWrongProcess is returned when a continuation is invoked from a
// process other than the one that captured it (spec.md §9 open
// question, resolved in SPEC_FULL.md §D.1: forbidden, reported, not UB).
var ErrWrongProcess = errors.New("cont: continuation invoked from a different process than where it was captured")

// ErrContinuationGone is returned when a continuation is invoked after
// its capturing CallCC call has already returned — the escape-only
// limitation of this port (SPEC_FULL.md §D.3).
var ErrContinuationGone = errors.New("cont: continuation invoked outside the dynamic extent that captured it")

// continuation is the functional-object payload backing a captured
// continuation cell (spec.md §4.8).
type continuation struct {
	h     *heap.Heap
	sched *process.Scheduler
	proc  *process.Frame

	atomicity  int
	valuePos   int
	bindingPos int
	nativeSnap []byte

	live bool
	self Ref
}

// escapeSignal is panicked by invokeContinuation and caught only by the
// CallCC frame that captured the matching continuation; any other
// in-flight escapeSignal is re-panicked so it keeps unwinding toward its
// own owner (nested call/cc is otherwise safe to use).
type escapeSignal struct {
	k     *continuation
	value Ref
}

var contType = &heap.ObjectType{
	Name: "continuation",
	Invoke: func(data interface{}, args Ref) (Ref, error) {
		return invokeContinuation(data.(*continuation), args)
	},
	Mark: func(data interface{}, mark func(Ref)) {
		// A continuation records only stack positions, atomicity and a
		// native-region byte snapshot; it holds no cell references of its
		// own, so there is nothing to mark.
	},
}

// CallCC captures the current continuation as a NATIVEFN cell and passes
// it to proc, exactly once, synchronously (spec.md §4.6's call/cc). If
// proc returns normally, that return value is CallCC's result. If proc
// (directly or through anything it calls) invokes the continuation cell,
// CallCC instead returns the value supplied to that invocation — control
// never returns to the point right after the invoking call.
func CallCC(h *heap.Heap, sched *process.Scheduler, proc func(k Ref) (Ref, error)) (result Ref, err error) {
	p := sched.Current()
	c := &continuation{
		h:          h,
		sched:      sched,
		proc:       p,
		atomicity:  p.Atomicity,
		valuePos:   p.Values.Pos(),
		bindingPos: p.Bindings().Pos(),
		live:       true,
	}
	if p.NativeStack != nil {
		c.nativeSnap = p.NativeStack.Snapshot()
	}

	kRef, mkErr := h.MkFunctionalObject(contType, c)
	if mkErr != nil {
		return heap.NIL, mkErr
	}
	c.self = kRef

	defer func() { c.live = false }()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		sig, ok := r.(escapeSignal)
		if !ok || sig.k != c {
			panic(r)
		}
		result, err = sig.value, nil
	}()

	return proc(kRef)
}

// invokeContinuation is fn_continuation: restore the captured process
// state and unwind the Go call stack back to the owning CallCC frame.
func invokeContinuation(c *continuation, args Ref) (Ref, error) {
	if !c.live {
		return heap.NIL, ErrContinuationGone
	}
	cur := c.sched.Current()
	if cur != c.proc {
		return heap.NIL, ErrWrongProcess
	}

	value := heap.NIL
	if args != heap.NIL {
		value = c.h.Head(args)
	}

	cur.Atomicity = c.atomicity
	cur.Values.Unwind(c.valuePos)
	cur.Bindings().Unwind(c.bindingPos)
	if cur.NativeStack != nil && c.nativeSnap != nil {
		cur.NativeStack.Restore(c.nativeSnap)
	}

	panic(escapeSignal{k: c, value: value})
}
