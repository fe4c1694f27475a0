package symtab

// Builtin indexes the reserved built-in symbols of spec.md §6. NIL is
// index 0 and is never interned — cell.NIL already names it.
type Builtin int

const (
	BuiltinT Builtin = iota
	BuiltinQuote
	BuiltinReturn
	BuiltinBreak
	BuiltinClass
	BuiltinSuper
	BuiltinDoc
	BuiltinCode
	BuiltinSignature
	BuiltinUsage
	BuiltinBrief
	BuiltinDescr
	BuiltinTimeout
	BuiltinDefine
	BuiltinTrapPoint
	numBuiltins
)

var builtinNames = [numBuiltins]string{
	BuiltinT:         "t",
	BuiltinQuote:     "quote",
	BuiltinReturn:    "return",
	BuiltinBreak:     "break",
	BuiltinClass:     "class",
	BuiltinSuper:     "super",
	BuiltinDoc:       "doc",
	BuiltinCode:      "code",
	BuiltinSignature: "signature",
	BuiltinUsage:     "usage",
	BuiltinBrief:     "brief",
	BuiltinDescr:     "descr",
	BuiltinTimeout:   "timeout",
	BuiltinDefine:    "define",
	BuiltinTrapPoint: "trap-point",
}

// InitBuiltins interns every reserved symbol name and caches the result
// for O(1) BuiltinSymbol lookups, mirroring the original implementation's
// table of fixed builtin-symbol indices (spec.md §6).
func (t *Table) InitBuiltins() error {
	for i, name := range builtinNames {
		sym, err := t.Intern(name)
		if err != nil {
			return err
		}
		t.builtins[i] = sym
	}
	return nil
}

// BuiltinSymbol returns the cell reference for a reserved built-in symbol
// by its small enum index.
func (t *Table) BuiltinSymbol(b Builtin) Ref { return t.builtins[b] }
