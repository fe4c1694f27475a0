// Package symtab implements symbol interning (spec.md §4.2): a
// fixed-size array of hashed buckets mapping names to canonical SYMBOL
// cell references, plus pushdef/popdef (dynamic/special binding) and the
// reserved built-in symbol indices of spec.md §6.
package symtab

import (
	"hash/fnv"

	"github.com/sxrt/sxrt/heap"
)

type Ref = heap.Ref

// ActiveProcess is the binding-stack and locals-array surface of
// whichever process currently holds the processor; Pushdef/Popdef write
// through it. Implemented by process.Scheduler.
type ActiveProcess interface {
	PushBinding(sym Ref, prevValue Ref, localIndex int)
	SetLocal(idx int, v Ref)
}

// ProcessRegistry broadcasts a freshly interned symbol's self-value into
// every existing process's locals array (spec.md §4.2: "set its
// value-slot to itself in every existing process's locals array").
// Implemented by process.Scheduler.
type ProcessRegistry interface {
	BroadcastLocal(idx int, v Ref)
}

// Table is the symbol table: hashed buckets of named symbols, plus the
// per-symbol local-index assignment that backs every process's locals
// array.
type Table struct {
	h       *heap.Heap
	buckets [][]Ref

	localIndex map[Ref]int
	nextLocal  int

	active   ActiveProcess
	registry ProcessRegistry

	anonSeq int32

	builtins [numBuiltins]Ref
}

// New creates a symbol table with bucketCount buckets (spec.md §6's
// max-symbols parameter is a reasonable bucket count: plenty of named
// symbols never collide in a small embedded language).
func New(h *heap.Heap, bucketCount int) *Table {
	if bucketCount < 1 {
		bucketCount = 1
	}
	t := &Table{
		h:          h,
		buckets:    make([][]Ref, bucketCount),
		localIndex: make(map[Ref]int),
	}
	return t
}

// SetActiveProcess installs the process whose binding stack/locals
// Pushdef mutates. Installed once; process.Scheduler forwards each call
// to whichever process is current, so a switch does not reinstall it.
func (t *Table) SetActiveProcess(ap ActiveProcess) { t.active = ap }

// SetProcessRegistry installs the broadcaster used when a new symbol is
// interned.
func (t *Table) SetProcessRegistry(pr ProcessRegistry) { t.registry = pr }

// LocalIndex returns the local-index assigned to sym at intern time. It
// panics if sym was never interned by this table — a programming error,
// not a runtime condition a caller should need to handle.
func (t *Table) LocalIndex(sym Ref) int {
	idx, ok := t.localIndex[sym]
	if !ok {
		panic("symtab: LocalIndex of a non-interned symbol")
	}
	return idx
}

// NumLocals returns how many local slots have been assigned so far —
// every process's locals array must be at least this long.
func (t *Table) NumLocals() int { return t.nextLocal }

func hashName(name string) uint64 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(name))
	return f.Sum64()
}

func bucketIndex(hash uint64, size int) int {
	// ((hash % size) + size) % size, per spec.md §3 — kept even though
	// Go's uint64 % never goes negative, to mirror the original's signed
	// hash arithmetic exactly and to stay correct if hashName is ever
	// changed to a signed algorithm.
	return int((int64(hash%uint64(size)) + int64(size)) % int64(size))
}

// Intern returns the canonical cell reference for name, allocating a new
// SYMBOL cell (and its plist's (hash, name-text) pair) the first time a
// given name is seen. Two Intern calls with string-equal inputs always
// return the identical Ref (spec.md §8 invariant 2 and round-trip law).
func (t *Table) Intern(name string) (Ref, error) {
	h := hashName(name)
	idx := bucketIndex(h, len(t.buckets))
	for _, sym := range t.buckets[idx] {
		if t.symbolHash(sym) == h && t.symbolName(sym) == name {
			return sym, nil
		}
	}
	return t.internNew(name, h, idx)
}

func (t *Table) internNew(name string, h uint64, bucketIdx int) (Ref, error) {
	nameRef, err := t.MkTextUTF8(name)
	if err != nil {
		return heap.NIL, err
	}
	hashRef, err := t.h.MkInt(int64(h))
	if err != nil {
		return heap.NIL, err
	}
	head, err := t.h.Cons(hashRef, nameRef)
	if err != nil {
		return heap.NIL, err
	}
	plist, err := t.h.Cons(head, heap.NIL)
	if err != nil {
		return heap.NIL, err
	}
	sym, err := t.h.MkSymbol(heap.NIL, plist)
	if err != nil {
		return heap.NIL, err
	}
	t.h.SetSymbolValue(sym, sym) // a named symbol's initial value is itself

	localIdx := t.nextLocal
	t.nextLocal++
	t.localIndex[sym] = localIdx
	if t.registry != nil {
		t.registry.BroadcastLocal(localIdx, sym)
	}

	t.buckets[bucketIdx] = append(t.buckets[bucketIdx], sym)
	return sym, nil
}

// MkAnonSymbol allocates an anonymous symbol: same SYMBOL tag, but not
// placed in any bucket, and its "hash" is simply its own cell index
// rather than a stored name hash (spec.md §3).
func (t *Table) MkAnonSymbol() (Ref, error) {
	sym, err := t.h.MkSymbol(heap.NIL, heap.NIL)
	if err != nil {
		return heap.NIL, err
	}
	t.h.SetSymbolValue(sym, sym)
	t.anonSeq++
	return sym, nil
}

// symbolHash reads back the hash cons'd into a named symbol's plist.
func (t *Table) symbolHash(sym Ref) uint64 {
	plist := t.h.SymbolPlist(sym)
	if plist == heap.NIL {
		return uint64(sym) // anonymous-symbol convention
	}
	pair := t.h.Head(plist)
	return uint64(t.h.IntValue(t.h.Head(pair)))
}

// symbolName reads back a named symbol's name text as a Go string; for
// an anonymous symbol (NIL plist) it returns "".
func (t *Table) symbolName(sym Ref) string {
	plist := t.h.SymbolPlist(sym)
	if plist == heap.NIL {
		return ""
	}
	pair := t.h.Head(plist)
	nameRef := t.h.Tail(pair)
	return FromUTF16(t.h.TextOf(nameRef))
}

// Name is the exported form of symbolName, for debugging/diagnostics.
func (t *Table) Name(sym Ref) string { return t.symbolName(sym) }

// Pushdef saves (sym, sym's current value) onto the active process's
// binding stack, then sets sym's value slot and locals entry to val
// (spec.md §4.2). Popdef is simply "unwind the binding stack by one",
// exposed by the active process's own binding stack, not by this table —
// see BindingStack.Popdef / BindingStack.Unwind, reached through
// process.Frame.Bindings.
func (t *Table) Pushdef(sym, val Ref) {
	prev := t.h.SymbolValue(sym)
	idx := t.localIndex[sym]
	if t.active != nil {
		t.active.PushBinding(sym, prev, idx)
		t.active.SetLocal(idx, val)
	}
	t.h.SetSymbolValue(sym, val)
}
