// Package mailbox implements message passing between processes (spec.md
// §4.5): a process's PID doubles as a NATIVEFN callable that, when
// invoked with arguments, appends them as a message to that process's
// queue; Receive scans the queue in FIFO order against a set of patterns,
// parking the calling process (WAITING, with an optional deadline) when
// nothing matches yet.
//
// Grounded on the original implementation's fn_pid/init_process_mailbox
// (original_source/src/muse.c) and create_process's PID-as-destructor
// idiom (spec.md §4.8's "functional objects" contract, instantiated here
// via heap.MkDestructor exactly as SPEC_FULL.md §C.2 calls for).
package mailbox

import (
	"time"

	"github.com/sxrt/sxrt/heap"
	"github.com/sxrt/sxrt/process"
	"github.com/sxrt/sxrt/symtab"
)

type Ref = heap.Ref

// Mailbox wires a heap, symbol table and scheduler together to implement
// Send/Receive. It holds no state of its own beyond those references;
// all actual message storage lives in each process.Frame's Mailbox cell.
type Mailbox struct {
	h     *heap.Heap
	st    *symtab.Table
	sched *process.Scheduler
}

// New creates a Mailbox bound to the given heap, symbol table and
// scheduler.
func New(h *heap.Heap, st *symtab.Table, sched *process.Scheduler) *Mailbox {
	return &Mailbox{h: h, st: st, sched: sched}
}

// Init constructs p's identity cell — a destructor-backed NATIVEFN whose
// invocation is Send — and installs it as p.Mailbox's head, mirroring
// init_process_mailbox's "mailbox = cons(mk_destructor(fn_pid, p), NIL)".
// Must be called once, after process.Scheduler.CreateProcess and before
// PrimeProcess, with the stack position saved/restored around it exactly
// as the original does (the PID cell itself must not become a stray
// GC root of the *creating* process once mailbox construction is done).
func (m *Mailbox) Init(p *process.Frame) error {
	savePos := m.h.ActivePos()
	pid, err := m.h.MkDestructor(
		func(args Ref) (Ref, error) { return m.invokePID(p, args) },
		p,
		func() { m.reclaim(p) },
	)
	if err != nil {
		return err
	}
	mbox, err := m.h.Cons(pid, heap.NIL)
	if err != nil {
		return err
	}
	m.h.ActiveUnwind(savePos)
	p.Mailbox = mbox
	p.MailboxEnd = mbox
	return nil
}

// invokePID is fn_pid: called whenever something applies p's PID to a
// list of arguments. A DEAD target silently drops the message and returns
// NIL (the original also runs process cleanup in the same call; here
// Scheduler.Kill has already released the native-stack region, and the
// destructor registered in Init does no further cleanup).
func (m *Mailbox) invokePID(p *process.Frame, args Ref) (Ref, error) {
	if args == heap.NIL || p.State == process.Dead {
		return heap.NIL, nil
	}
	sender := m.sched.Current()
	var senderPID Ref = heap.NIL
	if sender != nil {
		senderPID = sender.PID(m.h)
	}
	msg, err := m.h.Cons(senderPID, args)
	if err != nil {
		return heap.NIL, err
	}
	entry, err := m.h.Cons(msg, heap.NIL)
	if err != nil {
		return heap.NIL, err
	}
	m.h.SetTail(p.MailboxEnd, entry)
	p.MailboxEnd = entry
	return m.st.BuiltinSymbol(symtab.BuiltinT), nil
}

// reclaim runs when a dead process's PID becomes unreachable; there is
// no explicit free() to issue under Go's GC, but the original's
// destroy_stack calls are mirrored by releasing the native-stack region,
// already handled by Scheduler.Kill — this hook exists so a destructor
// entry is still present on the specials list the way spec.md §4.8
// describes, should future work need a hook at final collection time.
func (m *Mailbox) reclaim(p *process.Frame) {}

// Send delivers args to target by invoking its PID exactly as ordinary
// application would. It exists as a direct entry point for the
// evaluator's apply path to call without going through NativeFnOf.
func (m *Mailbox) Send(target *process.Frame, args Ref) (Ref, error) {
	return m.invokePID(target, args)
}

// Receive implements the pattern-matching receive of spec.md §4.5: it
// scans p's mailbox FIFO for the first message any pattern in matchers
// accepts, removing it and returning (matched index, message, true). If
// none match and timeout is negative, p is parked WAITING with no
// deadline. If timeout is zero or positive, p is parked WAITING with a
// deadline, and once the scheduler resumes it past that deadline with
// still nothing matching, Receive returns (0, NIL, false).
//
// Receive must be called with p already current; it calls
// Scheduler.Suspend to yield the processor while WAITING and relies on
// SwitchTo to wake it once a message arrives or the deadline passes.
func (m *Mailbox) Receive(p *process.Frame, matchers []func(msg Ref) bool, timeout time.Duration) (int, Ref, bool) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if idx, msg, ok := m.tryMatch(p, matchers); ok {
			return idx, msg, true
		}
		if timeout >= 0 {
			p.HasTimeout = true
			p.Deadline = deadline
			m.sched.TrackTimeout(p)
		} else {
			p.HasTimeout = false
		}
		p.State = process.Waiting
		_ = m.sched.Suspend()
		if p.HasTimeout {
			m.sched.UntrackTimeout(p)
		}
		if p.HasTimeout && !time.Now().Before(p.Deadline) {
			if idx, msg, ok := m.tryMatch(p, matchers); ok {
				return idx, msg, true
			}
			p.HasTimeout = false
			return 0, heap.NIL, false
		}
	}
}

// tryMatch scans the FIFO once, unlinking and returning the first
// message any matcher accepts.
func (m *Mailbox) tryMatch(p *process.Frame, matchers []func(Ref) bool) (int, Ref, bool) {
	h := m.h
	prevEntry := p.Mailbox // head cell; tail is the first real message-entry cons
	entry := h.Tail(prevEntry)
	for entry != heap.NIL {
		msg := h.Head(entry)
		for idx, match := range matchers {
			if match(msg) {
				next := h.Tail(entry)
				h.SetTail(prevEntry, next)
				if entry == p.MailboxEnd {
					p.MailboxEnd = prevEntry
				}
				p.State = process.Running
				return idx, msg, true
			}
		}
		prevEntry = entry
		entry = h.Tail(entry)
	}
	return 0, heap.NIL, false
}
