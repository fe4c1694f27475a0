// Package except implements resumable exceptions (spec.md §4.7): a
// "trap-point" symbol bound, via pushdef, to the innermost try block's
// trap object; raise walks the trap chain looking for a matching
// handler, evaluating each candidate with the trap-point temporarily
// rebound to the previous trap so a raise from within a handler is
// caught by the enclosing try, not the one currently running.
//
// Two distinct control transfers are modeled, both as Go panic/recover
// escapes (the same technique package cont uses for call/cc, and for the
// same reason — there is no evaluator here to drive with an explicit
// trampoline):
//   - a handler that simply returns a value unwinds all the way to the
//     end of its try block, discarding everything raise() was doing;
//   - a handler that instead calls the resume callable it was given
//     makes raise() itself return that value to its caller, as if
//     nothing had unwound at all.
//
// Grounded on spec.md §4.7's prose account of try/raise/resume; no
// analogous construct exists in original_source (the source language's
// condition system predates this specification's redesign), so the
// control-flow shape follows spec.md directly while the mechanics follow
// cont.CallCC's escape idiom.
package except

import (
	"fmt"

	"github.com/sxrt/sxrt/heap"
	"github.com/sxrt/sxrt/process"
	"github.com/sxrt/sxrt/symtab"
)

type Ref = heap.Ref

// ResumeFunc is passed to every handler as its first argument (spec.md
// §4.7: "the handler-argument list as (resume-callable, args...)").
// Calling it makes the enclosing Raise return value to its own caller
// without unwinding the try block.
type ResumeFunc func(value Ref) (Ref, error)

// Handler is one eagerly-evaluated try-block handler. It reports
// whether it matches args; a matching handler either returns (value,
// true, nil) to terminate the try block with value, or calls resume(v)
// to make the raising raise() call return v directly.
type Handler func(resume ResumeFunc, args Ref) (value Ref, matched bool, err error)

type trap struct {
	h        *heap.Heap
	handlers []Handler
	prev     *trap
	self     Ref
	live     bool
}

var trapType = &heap.ObjectType{Name: "trap"}

type escapeSignal struct {
	t     *trap
	value Ref
}

// Try constructs a trap object from handlers, installs it as the
// current trap-point, runs body, and returns either body's own result
// or — if raise() inside body (or anything it calls) found and ran a
// non-resuming handler belonging to this trap — that handler's value
// (spec.md §4.7).
func Try(h *heap.Heap, sched *process.Scheduler, st *symtab.Table, handlers []Handler, body func() (Ref, error)) (result Ref, err error) {
	p := sched.Current()
	trapSym := st.BuiltinSymbol(symtab.BuiltinTrapPoint)

	t := &trap{h: h, handlers: handlers, live: true}
	if prevRef := h.SymbolValue(trapSym); prevRef != heap.NIL {
		if obj, ok := h.Object(prevRef); ok {
			t.prev, _ = obj.Data.(*trap)
		}
	}

	trapRef, mkErr := h.MkFunctionalObject(trapType, t)
	if mkErr != nil {
		return heap.NIL, mkErr
	}
	t.self = trapRef

	savedPos := p.Bindings().Pos()
	st.Pushdef(trapSym, trapRef)

	defer func() { t.live = false }()
	defer p.Bindings().Unwind(savedPos)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		sig, ok := r.(escapeSignal)
		if !ok || sig.t != t {
			panic(r)
		}
		result, err = sig.value, nil
	}()

	return body()
}

// Raise implements raise(args...) (spec.md §4.7): walk the trap chain
// from the current trap-point outward, evaluating each trap's handlers
// in turn with the trap-point rebound to that trap's predecessor.
func Raise(h *heap.Heap, sched *process.Scheduler, st *symtab.Table, args Ref) (Ref, error) {
	p := sched.Current()
	trapSym := st.BuiltinSymbol(symtab.BuiltinTrapPoint)
	trapRef := h.SymbolValue(trapSym)

	for trapRef != heap.NIL {
		obj, ok := h.Object(trapRef)
		if !ok {
			break
		}
		t, ok := obj.Data.(*trap)
		if !ok || !t.live {
			break
		}

		prevRef := heap.NIL
		if t.prev != nil {
			prevRef = t.prev.self
		}
		savedPos := p.Bindings().Pos()
		st.Pushdef(trapSym, prevRef)

		result, matched, resumed, herr := runHandlers(t, args)
		p.Bindings().Unwind(savedPos)

		if herr != nil {
			return heap.NIL, herr
		}
		if resumed {
			return result, nil
		}
		if matched {
			panic(escapeSignal{t: t, value: result})
		}
		trapRef = prevRef
	}

	_ = sched.Kill(p)
	return heap.NIL, fmt.Errorf("except: unhandled exception in process %d", p.ID)
}

// runHandlers evaluates t's handlers in order against args, distinguishing
// a plain match (unwind-to-try-end) from a resumed one (return-to-raise).
func runHandlers(t *trap, args Ref) (result Ref, matched, resumed bool, err error) {
	type resumeSig struct{ value Ref }

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		sig, ok := r.(resumeSig)
		if !ok {
			panic(r)
		}
		result, matched, resumed = sig.value, true, true
	}()

	resumeFn := func(v Ref) (Ref, error) { panic(resumeSig{value: v}) }

	for _, handler := range t.handlers {
		v, m, e := handler(resumeFn, args)
		if e != nil {
			return heap.NIL, false, false, e
		}
		if m {
			return v, true, false, nil
		}
	}
	return heap.NIL, false, false, nil
}
