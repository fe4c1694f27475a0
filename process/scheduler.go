package process

import (
	"container/ring"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sxrt/sxrt/heap"
	"github.com/sxrt/sxrt/stack"
)

// ErrNotVirgin is returned by PrimeProcess for a frame that has already
// been run.
var ErrNotVirgin = errors.New("process: not a virgin process")

var frameIDSeq int64

// Scheduler owns the process ring and the currently running Frame
// (spec.md §4.4). It implements heap.ActiveStack, heap.RootSet's process
// half, and symtab.ActiveProcess/ProcessRegistry, wiring the heap and
// symbol table to whichever process is currently executing.
type Scheduler struct {
	h *heap.Heap

	mu         sync.Mutex // guards ring topology and current, not hot-path execution
	ringHead   *ring.Ring // nil when no process exists yet
	currentEl  *ring.Ring
	current    *Frame
	numSymbols int

	stackPool sync.Pool // of *nativeStackRegion, reused across dead processes

	timeouts   timeoutQueue
	timeoutIdx map[*Frame]*timeoutItem

	defaultAttention  int
	defaultStackSize  int
	defaultMaxSymbols int
}

// NewScheduler creates a scheduler bound to h, with the given default
// process parameters (spec.md §6).
func NewScheduler(h *heap.Heap, defaultAttention, defaultStackSize, defaultMaxSymbols int) *Scheduler {
	if defaultAttention <= 0 {
		defaultAttention = 10
	}
	if defaultStackSize <= 0 {
		defaultStackSize = 4096
	}
	s := &Scheduler{
		h:                 h,
		defaultAttention:  defaultAttention,
		defaultStackSize:  defaultStackSize,
		defaultMaxSymbols: defaultMaxSymbols,
	}
	s.stackPool.New = func() interface{} {
		r, err := newNativeStackRegion(defaultStackSize * 8)
		if err != nil {
			return nil
		}
		return r
	}
	return s
}

// heap.ActiveStack -----------------------------------------------------

func (s *Scheduler) Push(r Ref) {
	if s.current != nil {
		s.current.Values.Push(r)
	}
}
func (s *Scheduler) Pos() int {
	if s.current == nil {
		return 0
	}
	return s.current.Values.Pos()
}
func (s *Scheduler) Unwind(pos int) {
	if s.current != nil {
		s.current.Values.Unwind(pos)
	}
}

// symtab.ActiveProcess ---------------------------------------------------

func (s *Scheduler) PushBinding(sym, prevValue Ref, localIndex int) {
	if s.current != nil {
		s.current.PushBinding(sym, prevValue, localIndex)
	}
}
func (s *Scheduler) SetLocal(idx int, v Ref) {
	if s.current != nil {
		s.current.SetLocal(idx, v)
	}
}

// symtab.ProcessRegistry -------------------------------------------------

// BroadcastLocal writes a freshly interned symbol's self-value into every
// existing process's locals array (spec.md §4.2).
func (s *Scheduler) BroadcastLocal(idx int, v Ref) {
	s.numSymbols = idx + 1
	s.forEachFrame(func(p *Frame) { p.Locals.Set(idx, v) })
}

func (s *Scheduler) forEachFrame(fn func(*Frame)) {
	if s.ringHead == nil {
		return
	}
	s.ringHead.Do(func(v interface{}) { fn(v.(*Frame)) })
}

// Current returns the process presently holding the processor.
func (s *Scheduler) Current() *Frame { return s.current }

// CreateProcess allocates a new Frame (spec.md §4.4). isMain marks this
// as the main process, which runs on the caller's own goroutine and so
// gets no native-stack region; every other frame takes one from the pool
// (the original's native-stack-pointer handshake has no analogue here,
// see nativestack_unix.go).
func (s *Scheduler) CreateProcess(attention int, thunk ThunkFunc, isMain bool) (*Frame, error) {
	if attention <= 0 {
		attention = s.defaultAttention
	}
	id := int(atomic.AddInt64(&frameIDSeq, 1))

	p := &Frame{
		ID:        id,
		Attention: attention,
		Remaining: attention,
		State:     Paused,
		Thunk:     thunk,
		Values:    stack.NewValueStack(s.defaultStackSize),
		Locals:    stack.NewLocals(s.numSymbols),
		turn:      make(chan struct{}, 1),
	}
	p.bindings = stack.NewBindingStack(func(sym, v Ref, idx int) {
		s.h.SetSymbolValue(sym, v)
		p.Locals.Set(idx, v)
	})

	if !isMain {
		region, ok := s.stackPool.Get().(*nativeStackRegion)
		if !ok || region == nil {
			return nil, errors.New("process: failed to allocate native-stack region")
		}
		p.NativeStack = region
	}

	// Copy all currently defined symbols over to the new process (spec.md
	// §4.4's create_process: "Seed the locals array by copying from the
	// current process.")
	if s.current != nil {
		for i := 0; i < s.current.Locals.Len(); i++ {
			p.Locals.Set(i, s.current.Locals.Get(i))
		}
	}

	return p, nil
}

// PrimeProcess splices p into the ring immediately after the current
// process and marks it VIRGIN (spec.md §4.4).
func (s *Scheduler) PrimeProcess(p *Frame) error {
	if p.State != Paused && p.State != Virgin {
		return ErrNotVirgin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elem := ring.New(1)
	elem.Value = p
	p.elem = elem

	if s.ringHead == nil {
		s.ringHead = elem
		s.currentEl = elem
		s.current = p
	} else if s.currentEl != nil {
		s.currentEl.Link(elem)
	} else {
		s.ringHead.Link(elem)
	}
	p.State = Virgin
	return nil
}

// Run repeatedly applies p's thunk to its mailbox until it returns a
// non-NIL value, then kills p and switches to its successor (spec.md
// §4.4). It is the body a freshly spawned process goroutine executes.
// The main process is not started through Run: its creator marks it
// RUNNING and it keeps executing on the creator's goroutine.
func (s *Scheduler) Run(p *Frame) error {
	for {
		result, err := p.Thunk(p.Mailbox)
		if err != nil {
			return err
		}
		if result != heap.NIL {
			break
		}
	}
	return s.Kill(p)
}

// SwitchTo transfers the processor to p (spec.md §4.4). If p is RUNNING
// or VIRGIN it is resumed (spawning its goroutine on first entry); if
// WAITING it is resumed only once its mailbox has a message or its
// timeout has elapsed, otherwise the next process in the ring is tried;
// DEAD processes are skipped the same way.
func (s *Scheduler) SwitchTo(p *Frame) error {
	if p == s.current {
		return nil
	}
	switch p.State {
	case Running, Virgin:
		return s.transferTo(p, true)
	case Waiting:
		if p.HasPendingMessage(s.h) || (p.HasTimeout && !time.Now().Before(p.Deadline)) {
			p.State = Running
			return s.transferTo(p, true)
		}
		return s.SwitchTo(s.nextOf(p))
	case Dead:
		return s.SwitchTo(s.nextOf(p))
	}
	return nil
}

func (s *Scheduler) nextOf(p *Frame) *Frame {
	if p.elem == nil || p.elem.Next() == nil {
		return p
	}
	return p.elem.Next().Value.(*Frame)
}

// transferTo performs the actual goroutine handoff and, if park is true,
// blocks the calling goroutine until it is itself resumed.
func (s *Scheduler) transferTo(p *Frame, park bool) error {
	prev := s.current
	s.mu.Lock()
	s.current = p
	s.currentEl = p.elem
	s.mu.Unlock()

	if p.State == Virgin {
		p.State = Running
		go func() {
			_ = s.Run(p)
		}()
	} else {
		p.turn <- struct{}{}
	}

	if park && prev != nil && prev.State != Dead {
		<-prev.turn
	}
	return nil
}

// Yield is the cooperative scheduling point (spec.md §4.4): called from
// within long-running native loops with how much attention was just
// spent. If the current process is not inside an atomic block and has
// exhausted its budget, the budget is reset and control passes to the
// next process in the ring; otherwise (including inside an atomic block)
// the budget is simply decremented.
func (s *Scheduler) Yield(spent int) error {
	p := s.current
	if p == nil {
		return nil
	}
	if p.Atomicity == 0 && p.Remaining <= 0 {
		p.Remaining = p.Attention
		return s.SwitchTo(s.nextOf(p))
	}
	p.Remaining -= spent
	return nil
}

// Suspend unconditionally gives up the processor to the next process in
// the ring, regardless of attention or atomicity. mailbox.Receive uses
// this once it has set the current process to WAITING.
func (s *Scheduler) Suspend() error {
	p := s.current
	if p == nil {
		return nil
	}
	return s.SwitchTo(s.nextOf(p))
}

// EnterAtomic increments the current process's atomicity counter,
// suppressing Yield (spec.md §4.4).
func (s *Scheduler) EnterAtomic() {
	if s.current != nil {
		s.current.Atomicity++
	}
}

// LeaveAtomic decrements it.
func (s *Scheduler) LeaveAtomic() {
	if s.current != nil && s.current.Atomicity > 0 {
		s.current.Atomicity--
	}
}

// Kill unlinks p from the ring, marks it DEAD, and — if p was current —
// switches to its former successor without parking the (now finished)
// caller goroutine (spec.md §4.4).
func (s *Scheduler) Kill(p *Frame) error {
	s.mu.Lock()
	var next *Frame
	if p.elem != nil {
		if p.elem.Len() == 1 {
			s.ringHead = nil
			s.currentEl = nil
		} else {
			next = p.elem.Next().Value.(*Frame)
			prev := p.elem.Prev()
			if s.ringHead == p.elem {
				s.ringHead = next.elem
			}
			prev.Unlink(1)
		}
		p.elem = nil
	}
	p.State = Dead
	wasCurrent := p == s.current
	s.mu.Unlock()

	if p.NativeStack != nil {
		s.stackPool.Put(p.NativeStack)
		p.NativeStack = nil
	}

	if wasCurrent && next != nil {
		return s.transferTo(next, false)
	}
	if wasCurrent {
		s.current = nil
		s.currentEl = nil
	}
	return nil
}
