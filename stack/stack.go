// Package stack implements the per-process value stack, locals array and
// binding stack of spec.md §3/§4.2–4.3. The growth pattern — keep a
// backing slice, grow by doubling when a push would overflow it — mirrors
// bytes.Buffer.Grow in the teacher's bytes package rather than the
// original C implementation's manual realloc/ensure_stack pair.
package stack

import "github.com/sxrt/sxrt/cell"

type Ref = cell.Ref

// ValueStack is a process's GC root stack of live cell references. cons
// and friends push onto it; the evaluator contract (spec.md §4.3) is
// stack_pos/stack_unwind/stack_push.
type ValueStack struct {
	data []Ref
}

// NewValueStack preallocates a stack with the given initial capacity
// (spec.md §6's stack-size parameter).
func NewValueStack(capacity int) *ValueStack {
	return &ValueStack{data: make([]Ref, 0, capacity)}
}

// Push appends r, growing the backing slice if necessary.
func (s *ValueStack) Push(r Ref) { s.data = append(s.data, r) }

// Pos returns the current stack height, a position stack_unwind can
// later restore to.
func (s *ValueStack) Pos() int { return len(s.data) }

// Unwind truncates the stack back to pos, discarding everything above it.
// It is idempotent at a fixed point: Unwind(p) twice in a row has the
// same effect as once (spec.md §8 invariant 5), since the second call
// finds len(s.data) already equal to pos and is a no-op.
func (s *ValueStack) Unwind(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.data) {
		return
	}
	s.data = s.data[:pos]
}

// At returns the reference at stack position i (0-indexed from the
// bottom), for GC root walking and for the evaluator's own stack
// inspection.
func (s *ValueStack) At(i int) Ref { return s.data[i] }

// Each calls fn for every live entry, bottom to top.
func (s *ValueStack) Each(fn func(Ref)) {
	for _, r := range s.data {
		fn(r)
	}
}

// Top returns the top of stack without popping it; callers doing a
// stack_pos/compute/stack_unwind/push-result dance (spec.md §4.3) use
// this to read back the computed result before unwinding past it.
func (s *ValueStack) Top() Ref {
	if len(s.data) == 0 {
		return cell.NIL
	}
	return s.data[len(s.data)-1]
}

// Locals is a process's flat array of "current value of every interned
// symbol by local index" (spec.md §3's process-frame field).
type Locals struct {
	data []Ref
}

// NewLocals preallocates room for n symbols.
func NewLocals(n int) *Locals {
	l := &Locals{data: make([]Ref, n)}
	for i := range l.data {
		l.data[i] = cell.NIL
	}
	return l
}

// Ensure grows the locals array to at least n entries, zero-filling
// (NIL-filling) the new slots — needed whenever symtab.Intern assigns a
// fresh local index to an existing process that predates it.
func (l *Locals) Ensure(n int) {
	if n <= len(l.data) {
		return
	}
	grown := make([]Ref, n)
	copy(grown, l.data)
	for i := len(l.data); i < n; i++ {
		grown[i] = cell.NIL
	}
	l.data = grown
}

// Get reads the current value of local index idx.
func (l *Locals) Get(idx int) Ref { return l.data[idx] }

// Set writes the current value of local index idx, growing first if
// necessary.
func (l *Locals) Set(idx int, v Ref) {
	l.Ensure(idx + 1)
	l.data[idx] = v
}

// Each calls fn for every local slot — used by the GC root walk.
func (l *Locals) Each(fn func(Ref)) {
	for _, r := range l.data {
		fn(r)
	}
}

// Len reports how many local slots currently exist.
func (l *Locals) Len() int { return len(l.data) }
