package heap

import "github.com/sxrt/sxrt/cell"

// NativeFn is the out-of-band payload for a NATIVEFN cell: a native
// callable plus an opaque context pointer (spec.md §3). The evaluator
// (out of scope here) decides what Args and the return Ref mean; this
// package only stores and marks/destroys the pair.
type NativeFn struct {
	Fn  func(args Ref) (Ref, error)
	Ctx interface{}
}

// TextBuffer is the out-of-band payload for one or more TEXT cells: an
// externally allocated wide-character (UTF-16, to match spec.md's
// "wide-character buffer" over the original's wchar_t) buffer that a TEXT
// cell's (start, end) slots index into.
type TextBuffer struct {
	Data []uint16
}

// ObjectType is a functional object's type descriptor (spec.md §4.8):
// invocation, initialization, GC marking of cells the object owns,
// destruction at sweep time, and an optional property-view dispatcher for
// polymorphic features.
type ObjectType struct {
	Name    string
	Invoke  func(data interface{}, args Ref) (Ref, error)
	Mark    func(data interface{}, mark func(Ref))
	Destroy func(data interface{})
	View    func(data interface{}, key Ref) (Ref, bool)
}

// Object is a functional object instance: its type descriptor plus
// whatever state Init produced.
type Object struct {
	Type *ObjectType
	Data interface{}
}

type specialEntry struct {
	ref     Ref
	destroy func()
}

// cons is the base allocator: obtain a free cell, write head/tail, push
// the result onto the active process's value stack. If the free list is
// empty it follows spec.md §4.1 exactly: push head/tail as temporary
// roots, collect, unwind, retry; only grow if still empty after that.
func (h *Heap) cons(tag Tag, a, b int64, headRoot, tailRoot Ref, hasRoots bool) (Ref, error) {
	if h.sweeping {
		return NIL, ErrAllocDuringSweep
	}
	r, ok := h.popFree()
	if !ok {
		savePos := -1
		if hasRoots && h.active != nil {
			savePos = h.active.Pos()
			h.active.Push(headRoot)
			h.active.Push(tailRoot)
		}
		if err := h.GC(1); err != nil {
			return NIL, err
		}
		if savePos >= 0 {
			h.active.Unwind(savePos)
		}
		r, ok = h.popFree()
		if !ok {
			if err := h.grow(h.nextSize(1)); err != nil {
				return NIL, err
			}
			r, ok = h.popFree()
			if !ok {
				return NIL, ErrOutOfMemory
			}
		}
	}
	h.cells[r].tag = tag
	h.cells[r].a = a
	h.cells[r].b = b
	if h.active != nil {
		h.active.Push(r)
	}
	return r, nil
}

func (h *Heap) popFree() (Ref, bool) {
	if h.freeCount == 0 {
		return NIL, false
	}
	r := h.freeHead
	h.freeHead = Ref(h.cells[r].b)
	h.freeCount--
	h.stats.Free = h.freeCount
	return r, true
}

// Cons is the pair-construction primitive: every other allocator below is
// Cons followed by retagging and overwriting the payload, per spec.md
// §4.1.
func (h *Heap) Cons(head, tail Ref) (Ref, error) {
	return h.cons(cell.Cons, int64(head), int64(tail), head, tail, true)
}

// MkInt allocates an INT cell.
func (h *Heap) MkInt(v int64) (Ref, error) {
	return h.cons(cell.Int, v, v, NIL, NIL, false)
}

// MkFloat allocates a FLOAT cell.
func (h *Heap) MkFloat(v float64) (Ref, error) {
	bits := floatBits(v)
	return h.cons(cell.Float, bits, bits, NIL, NIL, false)
}

// MkLambda allocates a LAMBDA cell. formals is stored quick-quoted, per
// spec.md §3: "the formals reference is quick-quoted when constructed so
// the head slot's raw integer is negated."
func (h *Heap) MkLambda(formals, body Ref) (Ref, error) {
	return h.cons(cell.Lambda, int64(cell.Quote(formals)), int64(body), formals, body, true)
}

// MkSymbol allocates a bare SYMBOL cell with the given initial
// value-slot and plist. Named-symbol bookkeeping (bucket placement, local
// index assignment, name text) lives in package symtab; this is the raw
// heap primitive symtab.Intern builds on.
func (h *Heap) MkSymbol(valueSlot, plist Ref) (Ref, error) {
	return h.cons(cell.Symbol, int64(valueSlot), int64(plist), valueSlot, plist, true)
}

// SetSymbolValue mutates a symbol's value slot in place — this is what
// Pushdef/Popdef (package symtab) and direct assignment use; it does not
// itself touch any binding stack or locals array.
func (h *Heap) SetSymbolValue(sym, v Ref) { h.cells[cell.Unquote(sym)].a = int64(v) }

// SymbolValue reads a symbol's current value slot.
func (h *Heap) SymbolValue(sym Ref) Ref { return Ref(h.cells[cell.Unquote(sym)].a) }

// SymbolPlist reads a symbol's property list cell.
func (h *Heap) SymbolPlist(sym Ref) Ref { return Ref(h.cells[cell.Unquote(sym)].b) }

// SetSymbolPlist mutates a symbol's plist cell.
func (h *Heap) SetSymbolPlist(sym, plist Ref) { h.cells[cell.Unquote(sym)].b = int64(plist) }

// MkNativeFn allocates a NATIVEFN cell wrapping fn and an opaque context.
func (h *Heap) MkNativeFn(fn func(args Ref) (Ref, error), ctx interface{}) (Ref, error) {
	r, err := h.cons(cell.NativeFn, 0, 0, NIL, NIL, false)
	if err != nil {
		return NIL, err
	}
	h.nativeFns[r] = &NativeFn{Fn: fn, Ctx: ctx}
	return r, nil
}

// MkDestructor is MkNativeFn plus a destructor invoked from Sweep if the
// cell is unmarked (spec.md §4.8's "destroy callback", and the original
// implementation's muse_mk_destructor). It is kept distinct from
// MkNativeFn per SPEC_FULL.md §C.3: most native callables never need a
// specials-list entry at all.
func (h *Heap) MkDestructor(fn func(args Ref) (Ref, error), ctx interface{}, destroy func()) (Ref, error) {
	r, err := h.MkNativeFn(fn, ctx)
	if err != nil {
		return NIL, err
	}
	h.addSpecial(r, destroy)
	return r, nil
}

// MkFunctionalObject allocates a NATIVEFN cell backed by a type-described
// functional object (spec.md §4.8). If t.Destroy is non-nil the cell is
// placed on the specials list so Destroy runs during Sweep when the
// object becomes unreachable.
func (h *Heap) MkFunctionalObject(t *ObjectType, initData interface{}) (Ref, error) {
	obj := &Object{Type: t, Data: initData}
	r, err := h.cons(cell.NativeFn, 0, 0, NIL, NIL, false)
	if err != nil {
		return NIL, err
	}
	h.objects[r] = obj
	if t.Invoke != nil {
		h.nativeFns[r] = &NativeFn{
			Fn:  func(args Ref) (Ref, error) { return t.Invoke(obj.Data, args) },
			Ctx: obj,
		}
	}
	if t.Destroy != nil {
		h.addSpecial(r, func() { t.Destroy(obj.Data) })
	}
	return r, nil
}

// Object returns the functional object backing r, if any.
func (h *Heap) Object(r Ref) (*Object, bool) {
	o, ok := h.objects[cell.Unquote(r)]
	return o, ok
}

// NativeFnOf returns the native callable backing r, if any.
func (h *Heap) NativeFnOf(r Ref) (*NativeFn, bool) {
	nf, ok := h.nativeFns[cell.Unquote(r)]
	return nf, ok
}

// MkText allocates a TEXT cell over an existing wide-character buffer, a
// [start, end) window into it. Use MkTextFrom to allocate buffer and
// cell together.
func (h *Heap) MkText(buf *TextBuffer, start, end int) (Ref, error) {
	r, err := h.cons(cell.Text, int64(start), int64(end), NIL, NIL, false)
	if err != nil {
		return NIL, err
	}
	h.textBufs[r] = buf
	h.addSpecial(r, func() { delete(h.textBufs, r) })
	return r, nil
}

// MkTextFrom allocates a fresh owned buffer holding data and a TEXT cell
// spanning all of it.
func (h *Heap) MkTextFrom(data []uint16) (Ref, error) {
	return h.MkText(&TextBuffer{Data: data}, 0, len(data))
}

// TextOf returns the wide-character slice a TEXT cell denotes.
func (h *Heap) TextOf(r Ref) []uint16 {
	r = cell.Unquote(r)
	buf, ok := h.textBufs[r]
	if !ok {
		return nil
	}
	start := int(h.cells[r].a)
	end := int(h.cells[r].b)
	return buf.Data[start:end]
}

func (h *Heap) addSpecial(r Ref, destroy func()) {
	h.specials.PushBack(&specialEntry{ref: r, destroy: destroy})
}
