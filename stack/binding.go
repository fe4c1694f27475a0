package stack

// bindingEntry is one (symbol, previous value, local index) triple
// pushed by pushdef (spec.md §4.2).
type bindingEntry struct {
	sym        Ref
	prevValue  Ref
	localIndex int
}

// Restorer writes a restored (symbol, value) pair back to both the
// symbol's heap value-slot and the owning process's locals array. It is
// supplied by process.Frame at construction time so this package never
// needs to import heap or symtab.
type Restorer func(sym Ref, value Ref, localIndex int)

// BindingStack is the per-process binding-stack undo log of spec.md §3:
// pushdef appends an entry, popdef/unwind restores entries in strict
// LIFO order (spec.md §8 invariant 3 and 5).
type BindingStack struct {
	entries []bindingEntry
	restore Restorer
}

// NewBindingStack creates a binding stack that calls restore to undo
// each popped entry.
func NewBindingStack(restore Restorer) *BindingStack {
	return &BindingStack{restore: restore}
}

// Push records (sym, prevValue, localIndex) for later undo.
func (b *BindingStack) Push(sym, prevValue Ref, localIndex int) {
	b.entries = append(b.entries, bindingEntry{sym, prevValue, localIndex})
}

// Pos returns the current depth, a position Unwind can later restore to.
func (b *BindingStack) Pos() int { return len(b.entries) }

// Unwind restores every entry above pos, in LIFO order (topmost — most
// recently pushed — first), per spec.md §4.2. It is idempotent at a
// fixed point (spec.md §8 invariant 5): once len(b.entries) == pos, a
// repeat call finds nothing left to do.
func (b *BindingStack) Unwind(pos int) {
	if pos < 0 {
		pos = 0
	}
	for len(b.entries) > pos {
		last := len(b.entries) - 1
		e := b.entries[last]
		b.entries = b.entries[:last]
		if b.restore != nil {
			b.restore(e.sym, e.prevValue, e.localIndex)
		}
	}
}

// Popdef undoes exactly the most recent Push — shorthand for
// Unwind(Pos()-1).
func (b *BindingStack) Popdef() {
	if len(b.entries) == 0 {
		return
	}
	b.Unwind(len(b.entries) - 1)
}

// EachValue visits every symbol and shadowed previous-value cell still
// held by pending entries, so a GC root-marking pass can keep them alive
// until they are actually restored.
func (b *BindingStack) EachValue(fn func(Ref)) {
	for _, e := range b.entries {
		fn(e.sym)
		fn(e.prevValue)
	}
}
