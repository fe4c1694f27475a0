// Package process implements cooperative multi-process scheduling:
// process frames arranged in a ring, attention-budgeted round-robin
// switching, and atomic blocks (spec.md §4.4). Continuation capture
// (package cont) and message passing (package mailbox) both build on the
// Frame type defined here.
//
// Unlike the original implementation, which switches processes with
// setjmp/longjmp over per-process native stacks, each non-main Frame here
// runs its thunk on its own goroutine; SwitchTo hands control from one
// goroutine to another over a pair of rendezvous channels, so that at
// every instant exactly one goroutine is actually runnable — the same
// single-threaded cooperative contract (spec.md §5), implemented
// portably (spec.md §9's "explicit CPS or defunctionalized state
// machine" alternative to native-stack copying).
package process

import (
	"container/ring"
	"time"

	"github.com/sxrt/sxrt/heap"
	"github.com/sxrt/sxrt/stack"
)

type Ref = heap.Ref

// State is one of the five process states of spec.md §4.4.
type State int

const (
	Paused State = iota
	Virgin
	Running
	Waiting
	Dead
)

func (s State) String() string {
	switch s {
	case Paused:
		return "PAUSED"
	case Virgin:
		return "VIRGIN"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// ThunkFunc is a process's top-level computation. It is re-applied to the
// mailbox head cell until it returns a non-NIL cell, per spec.md §4.4's
// run(p) ("repeatedly apply p.thunk to its mailbox until the thunk
// returns a non-NIL value").
type ThunkFunc func(mailbox Ref) (Ref, error)

// Frame is a single cooperative process: its stacks, mailbox cells,
// scheduling metadata and ring linkage (spec.md §3).
type Frame struct {
	ID int

	Attention int
	Remaining int
	State     State
	Atomicity int

	HasTimeout bool
	Deadline   time.Time

	Thunk ThunkFunc

	Values   *stack.ValueStack
	Locals   *stack.Locals
	bindings *stack.BindingStack

	NativeStack *nativeStackRegion

	// Mailbox is the cons cell whose head is this process's PID
	// NATIVEFN and whose tail is the FIFO of pending messages.
	// MailboxEnd is the last cons cell of that FIFO, maintained for
	// O(1) append (spec.md §4.5).
	Mailbox    Ref
	MailboxEnd Ref

	elem *ring.Ring
	turn chan struct{}
}

// PushBinding and SetLocal implement symtab.ActiveProcess against
// whichever Frame is current.
func (p *Frame) PushBinding(sym, prevValue Ref, localIndex int) {
	p.bindings.Push(sym, prevValue, localIndex)
}

func (p *Frame) SetLocal(idx int, v Ref) { p.Locals.Set(idx, v) }

// Bindings exposes the binding stack for Popdef/Unwind callers (package
// except and cont both need to save/restore binding-stack positions).
func (p *Frame) Bindings() *stack.BindingStack { return p.bindings }

// HasPendingMessage reports whether at least one message is queued,
// i.e. the tail of the mailbox head cell is non-NIL.
func (p *Frame) HasPendingMessage(h *heap.Heap) bool {
	return h.Tail(p.Mailbox) != heap.NIL
}

// PID returns this process's identity cell (the head of its mailbox).
func (p *Frame) PID(h *heap.Heap) Ref { return h.Head(p.Mailbox) }
