// Package cell defines the fundamental addressing and tagging types shared
// by every other package in this module: a cell reference (a small signed
// integer index into a heap arena) and the tag of the seven cell variants a
// reference can name.
package cell

import "strconv"

// Ref is a reference to a cell: a signed index into a Heap's arena. The
// sign bit doubles as the "quick-quote" marker described in spec.md §9 —
// Quote/Unquote convert between the signed wire form stored in a slot and
// the unsigned index used everywhere else.
type Ref int32

// NIL is the permanent, always-marked, never-freed cell at index 0.
const NIL Ref = 0

// T is conventionally bound by an embedder to a non-NIL truthy symbol; the
// runtime core itself only distinguishes NIL from non-NIL.

// Quote returns r encoded with the quick-quote bit set, i.e. negated. NIL
// is never quoted (negating 0 is a no-op, which is exactly the identity
// element this needs).
func Quote(r Ref) Ref { return -r }

// Unquote strips the quick-quote bit, returning the plain unsigned index.
func Unquote(r Ref) Ref {
	if r < 0 {
		return -r
	}
	return r
}

// IsQuoted reports whether r carries the quick-quote bit.
func IsQuoted(r Ref) bool { return r < 0 }

// Tag identifies which of the seven cell variants a Ref currently names.
type Tag uint8

const (
	// Cons is a (head, tail) pair cell.
	Cons Tag = iota
	// Lambda is a (formals, body) pair; formals is quick-quoted.
	Lambda
	// Symbol is a (value-slot, plist) pair.
	Symbol
	// NativeFn is a native callable cell, (function, context) held
	// out-of-band in a side table (see heap.NativeFn).
	NativeFn
	// Int is a 64-bit signed integer payload.
	Int
	// Float is a 64-bit float payload.
	Float
	// Text is a (start, end) window into an external wide-character
	// buffer, held out-of-band (see heap.TextBuffer).
	Text
)

var tagNames = [...]string{
	Cons:     "CONS",
	Lambda:   "LAMBDA",
	Symbol:   "SYMBOL",
	NativeFn: "NATIVEFN",
	Int:      "INT",
	Float:    "FLOAT",
	Text:     "TEXT",
}

// TagName returns the debug name of a tag, mirroring the original
// implementation's g_muse_typenames table.
func TagName(t Tag) string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// String renders a reference for debugging as e.g. "#42" or "'#-42" is
// never produced directly — callers that want the quick-quote bit visible
// should check IsQuoted separately; String always shows the plain index.
func (r Ref) String() string {
	return "#" + strconv.Itoa(int(Unquote(r)))
}
